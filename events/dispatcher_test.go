package events

import (
	"encoding/json"
	"testing"
)

func envelope(kind Kind, props string) Envelope {
	return Envelope{Type: kind, Properties: json.RawMessage(props)}
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	d := NewDispatcher()

	var statuses, parts, all int
	d.Subscribe(KindSessionStatus, func(Envelope) { statuses++ })
	d.Subscribe(KindMessagePartUpdated, func(Envelope) { parts++ })
	d.SubscribeAll(func(Envelope) { all++ })

	d.dispatch([]Envelope{
		envelope(KindSessionStatus, `{}`),
		envelope(KindSessionStatus, `{}`),
		envelope(KindMessagePartUpdated, `{}`),
	})

	if statuses != 2 {
		t.Errorf("expected 2 status deliveries, got %d", statuses)
	}
	if parts != 1 {
		t.Errorf("expected 1 part delivery, got %d", parts)
	}
	if all != 3 {
		t.Errorf("expected 3 catch-all deliveries, got %d", all)
	}
}

func TestDispatcher_BatchHandlerRunsOncePerBatch(t *testing.T) {
	d := NewDispatcher()

	var singles int
	var batchSizes []int
	d.SubscribeAll(func(Envelope) { singles++ })
	d.SubscribeBatch(func(b []Envelope) {
		if singles != len(b) {
			t.Errorf("batch handler ran before all %d envelopes were delivered (saw %d)", len(b), singles)
		}
		batchSizes = append(batchSizes, len(b))
	})

	d.dispatch([]Envelope{
		envelope(KindMessageUpdated, `{}`),
		envelope(KindMessageUpdated, `{}`),
		envelope(KindSessionStatus, `{}`),
	})

	if len(batchSizes) != 1 || batchSizes[0] != 3 {
		t.Errorf("expected one batch of 3, got %v", batchSizes)
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher()

	var kindCalls, allCalls int
	kindID := d.Subscribe(KindSessionError, func(Envelope) { kindCalls++ })
	allID := d.SubscribeAll(func(Envelope) { allCalls++ })

	d.dispatch([]Envelope{envelope(KindSessionError, `{}`)})
	d.Unsubscribe(kindID)
	d.Unsubscribe(allID)
	d.Unsubscribe("not-a-subscription")
	d.dispatch([]Envelope{envelope(KindSessionError, `{}`)})

	if kindCalls != 1 {
		t.Errorf("kind handler called %d times, want 1", kindCalls)
	}
	if allCalls != 1 {
		t.Errorf("catch-all handler called %d times, want 1", allCalls)
	}
}

func TestEnvelope_DecodeProperties(t *testing.T) {
	e := envelope(KindMessagePartUpdated, `{"part":{"id":"p1","text":"hello"},"delta":"lo"}`)

	var props PartProperties
	if err := e.DecodeProperties(&props); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if props.Part.ID != "p1" || props.Delta != "lo" {
		t.Errorf("unexpected properties: %+v", props)
	}
}

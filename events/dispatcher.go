package events

import (
	"sync"

	"github.com/google/uuid"
)

// Handler receives a single envelope.
type Handler func(Envelope)

// BatchHandler receives a whole coalesced batch in arrival order.
type BatchHandler func([]Envelope)

// Dispatcher routes envelope batches to subscribers. Handlers for a batch
// run on the flushing goroutine, one batch at a time; a slow handler delays
// the next flush rather than racing it.
type Dispatcher struct {
	mu       sync.Mutex
	byKind   map[Kind]map[string]Handler
	all      map[string]Handler
	batch    map[string]BatchHandler
	idToKind map[string]Kind
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		byKind:   make(map[Kind]map[string]Handler),
		all:      make(map[string]Handler),
		batch:    make(map[string]BatchHandler),
		idToKind: make(map[string]Kind),
	}
}

// Subscribe registers h for envelopes of the given kind and returns a
// subscription id for Unsubscribe.
func (d *Dispatcher) Subscribe(kind Kind, h Handler) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.NewString()
	if d.byKind[kind] == nil {
		d.byKind[kind] = make(map[string]Handler)
	}
	d.byKind[kind][id] = h
	d.idToKind[id] = kind
	return id
}

// SubscribeAll registers h for every envelope regardless of kind.
func (d *Dispatcher) SubscribeAll(h Handler) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.NewString()
	d.all[id] = h
	return id
}

// SubscribeBatch registers h to receive each coalesced batch once, after
// the per-envelope handlers have run. Front ends use this as their single
// render trigger per flush.
func (d *Dispatcher) SubscribeBatch(h BatchHandler) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.NewString()
	d.batch[id] = h
	return id
}

// Unsubscribe removes the subscription with the given id. Unknown ids are
// ignored.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if kind, ok := d.idToKind[id]; ok {
		delete(d.byKind[kind], id)
		delete(d.idToKind, id)
		return
	}
	delete(d.all, id)
	delete(d.batch, id)
}

func (d *Dispatcher) dispatch(batch []Envelope) {
	d.mu.Lock()
	allHandlers := make([]Handler, 0, len(d.all))
	for _, h := range d.all {
		allHandlers = append(allHandlers, h)
	}
	kindHandlers := make(map[Kind][]Handler, len(d.byKind))
	for kind, hs := range d.byKind {
		for _, h := range hs {
			kindHandlers[kind] = append(kindHandlers[kind], h)
		}
	}
	batchHandlers := make([]BatchHandler, 0, len(d.batch))
	for _, h := range d.batch {
		batchHandlers = append(batchHandlers, h)
	}
	d.mu.Unlock()

	for _, e := range batch {
		for _, h := range kindHandlers[e.Type] {
			h(e)
		}
		for _, h := range allHandlers {
			h(e)
		}
	}
	for _, h := range batchHandlers {
		h(batch)
	}
}

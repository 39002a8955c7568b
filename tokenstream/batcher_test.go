package tokenstream

import (
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu        sync.Mutex
	batches   []string
	completes int
}

func (c *capture) onBatch(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, text)
}

func (c *capture) onComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completes++
}

func (c *capture) snapshot() ([]string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.batches...), c.completes
}

func (c *capture) waitBatches(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		batches, _ := c.snapshot()
		if len(batches) >= n {
			return batches
		}
		time.Sleep(5 * time.Millisecond)
	}
	batches, _ := c.snapshot()
	t.Fatalf("timed out waiting for %d batches, have %v", n, batches)
	return nil
}

func TestProcessToken_SizeThresholdFlushesImmediately(t *testing.T) {
	c := &capture{}
	b := NewBatcher(Config{BatchSize: 5, FlushDelay: time.Hour}, c.onBatch, c.onComplete)

	b.ProcessToken("Hel")
	b.ProcessToken("lo")

	batches, _ := c.snapshot()
	if len(batches) != 1 || batches[0] != "Hello" {
		t.Fatalf("expected immediate flush of %q, got %v", "Hello", batches)
	}
}

func TestProcessToken_TrailingDebounce(t *testing.T) {
	c := &capture{}
	b := NewBatcher(Config{BatchSize: 1000, FlushDelay: 30 * time.Millisecond}, c.onBatch, c.onComplete)

	// Tokens arriving faster than the delay keep pushing the timer back.
	b.ProcessToken("a")
	time.Sleep(10 * time.Millisecond)
	b.ProcessToken("b")
	time.Sleep(10 * time.Millisecond)
	b.ProcessToken("c")

	if batches, _ := c.snapshot(); len(batches) != 0 {
		t.Fatalf("flushed during an active stream: %v", batches)
	}

	batches := c.waitBatches(t, 1)
	if batches[0] != "abc" {
		t.Errorf("expected coalesced batch %q, got %q", "abc", batches[0])
	}
}

func TestComplete_FlushesThenSignalsAfterGrace(t *testing.T) {
	c := &capture{}
	b := NewBatcher(Config{BatchSize: 1000, FlushDelay: time.Hour, CompleteGrace: 30 * time.Millisecond}, c.onBatch, c.onComplete)

	b.ProcessToken("Hi")
	b.Complete()

	batches, completes := c.snapshot()
	if len(batches) != 1 || batches[0] != "Hi" {
		t.Fatalf("expected final flush before completion, got %v", batches)
	}
	if completes != 0 {
		t.Fatal("completion fired before the grace period")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, completes := c.snapshot(); completes == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("completion never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCleanup_DropsBufferAndTimers(t *testing.T) {
	c := &capture{}
	b := NewBatcher(Config{BatchSize: 1000, FlushDelay: 20 * time.Millisecond, CompleteGrace: 20 * time.Millisecond}, c.onBatch, c.onComplete)

	b.ProcessToken("discarded")
	b.Complete()
	b.ProcessToken("also discarded")
	b.Cleanup()

	time.Sleep(60 * time.Millisecond)
	batches, completes := c.snapshot()
	// The Complete call flushed "discarded" before Cleanup ran; nothing
	// after it may surface.
	if len(batches) != 1 || batches[0] != "discarded" {
		t.Errorf("unexpected batches after cleanup: %v", batches)
	}
	if completes != 0 {
		t.Error("completion fired despite cleanup")
	}
}

func TestFlush_EmptyBufferEmitsNothing(t *testing.T) {
	c := &capture{}
	b := NewBatcher(Config{}, c.onBatch, c.onComplete)

	b.Flush()
	if batches, _ := c.snapshot(); len(batches) != 0 {
		t.Errorf("empty flush must not emit, got %v", batches)
	}
}

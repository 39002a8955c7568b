// Package tokenstream accumulates streamed completion tokens into render
// batches so front ends repaint per batch instead of per token.
package tokenstream

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultBatchSize     = 50
	defaultFlushDelay    = 50 * time.Millisecond
	defaultCompleteGrace = 100 * time.Millisecond
)

// Config tunes a batcher. Zero fields select the defaults.
type Config struct {
	// BatchSize is the character count that forces an immediate flush.
	BatchSize int
	// FlushDelay is the quiet period after the last token before the
	// buffer flushes on its own.
	FlushDelay time.Duration
	// CompleteGrace is the pause between the final flush and the
	// completion callback, letting the last batch render first.
	CompleteGrace time.Duration
}

// Batcher buffers token text and emits it in batches. Unlike the event
// stream's leading flush, this is a pure trailing debounce: every token
// pushes the timer back, so a steady stream emits at most one batch per
// delay window unless the size threshold trips first.
type Batcher struct {
	cfg        Config
	onBatch    func(text string)
	onComplete func()

	mu            sync.Mutex
	buf           strings.Builder
	flushTimer    *time.Timer
	completeTimer *time.Timer
}

func NewBatcher(cfg Config, onBatch func(string), onComplete func()) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}
	if cfg.CompleteGrace <= 0 {
		cfg.CompleteGrace = defaultCompleteGrace
	}
	return &Batcher{cfg: cfg, onBatch: onBatch, onComplete: onComplete}
}

// ProcessToken appends token text to the buffer. Reaching the size
// threshold flushes immediately; otherwise the trailing timer is reset.
func (b *Batcher) ProcessToken(token string) {
	if token == "" {
		return
	}

	b.mu.Lock()
	b.buf.WriteString(token)
	if b.buf.Len() >= b.cfg.BatchSize {
		text := b.takeLocked()
		b.mu.Unlock()
		b.emit(text)
		return
	}
	if b.flushTimer != nil {
		b.flushTimer.Stop()
	}
	b.flushTimer = time.AfterFunc(b.cfg.FlushDelay, b.Flush)
	b.mu.Unlock()
}

// Flush emits whatever is buffered, if anything.
func (b *Batcher) Flush() {
	b.mu.Lock()
	text := b.takeLocked()
	b.mu.Unlock()
	b.emit(text)
}

// Complete flushes the remaining buffer and schedules the completion
// callback after the grace period.
func (b *Batcher) Complete() {
	b.mu.Lock()
	text := b.takeLocked()
	if b.completeTimer != nil {
		b.completeTimer.Stop()
	}
	b.completeTimer = time.AfterFunc(b.cfg.CompleteGrace, func() {
		if b.onComplete != nil {
			b.onComplete()
		}
	})
	b.mu.Unlock()
	b.emit(text)
}

// Cleanup stops all timers and discards buffered text without emitting.
func (b *Batcher) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if b.completeTimer != nil {
		b.completeTimer.Stop()
		b.completeTimer = nil
	}
	b.buf.Reset()
}

// takeLocked drains the buffer and stops the pending flush timer. Callers
// hold b.mu.
func (b *Batcher) takeLocked() string {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	text := b.buf.String()
	b.buf.Reset()
	return text
}

func (b *Batcher) emit(text string) {
	if text == "" || b.onBatch == nil {
		return
	}
	b.onBatch(text)
}

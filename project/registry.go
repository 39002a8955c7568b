package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DisposeListener receives a notification after a context is removed from
// the registry, carrying the directory that identified it.
type DisposeListener interface {
	OnContextDisposed(dir string)
}

// Registry creates, caches, and tears down project contexts. It is the only
// shared mutable structure of the runtime: one live Context per directory,
// with concurrent Provide calls collapsed onto a single construction and
// concurrent DisposeAll calls collapsed onto a single disposal.
type Registry struct {
	mu       sync.Mutex
	contexts map[string]*Context

	provideFlight singleflight.Group
	disposeFlight singleflight.Group

	listenerMu sync.Mutex
	listeners  []DisposeListener
}

func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Context)}
}

// AddDisposeListener registers a listener for disposal notifications.
func (r *Registry) AddDisposeListener(l DisposeListener) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) notifyDisposed(dir string) {
	r.listenerMu.Lock()
	listeners := make([]DisposeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenerMu.Unlock()

	for _, l := range listeners {
		l.OnContextDisposed(dir)
	}
}

// Provide returns the live context for dir, constructing it on first use.
// The optional init side effect runs exactly once, only when this call
// performed the construction. Concurrent calls for the same directory
// during construction share a single in-flight construction; a
// construction or init failure propagates to every waiter and leaves no
// entry in the registry.
func (r *Registry) Provide(ctx context.Context, dir string, init func(*Context) error) (*Context, error) {
	key, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}

	r.mu.Lock()
	if existing, ok := r.contexts[key]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.mu.Unlock()

	v, err, _ := r.provideFlight.Do(key, func() (any, error) {
		// A racing Provide may have completed between the fast path
		// and joining this flight.
		r.mu.Lock()
		if existing, ok := r.contexts[key]; ok {
			r.mu.Unlock()
			return existing, nil
		}
		r.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := newContext(key)
		if err != nil {
			return nil, fmt.Errorf("construct context for %s: %w", key, err)
		}
		if init != nil {
			if err := init(c); err != nil {
				return nil, fmt.Errorf("init context for %s: %w", key, err)
			}
		}

		r.mu.Lock()
		r.contexts[key] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// Get returns the live context for dir without constructing one.
func (r *Registry) Get(dir string) (*Context, bool) {
	key, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[key]
	return c, ok
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

// Dispose removes c from the registry, runs its teardown hooks, and emits
// a disposal notification. A second call for a context the registry no
// longer holds is a no-op.
func (r *Registry) Dispose(c *Context) error {
	r.mu.Lock()
	held, ok := r.contexts[c.WorkDir]
	if !ok || held != c {
		r.mu.Unlock()
		return nil
	}
	delete(r.contexts, c.WorkDir)
	r.mu.Unlock()

	errs := c.runTeardown()
	r.notifyDisposed(c.WorkDir)

	if len(errs) > 0 {
		return fmt.Errorf("dispose %s: %w", c.WorkDir, errors.Join(errs...))
	}
	return nil
}

// DisposeAll disposes every registered context. Concurrent calls collapse
// into the single in-flight disposal. A teardown failure for one context
// is logged and does not block disposal of the others.
func (r *Registry) DisposeAll() error {
	_, err, _ := r.disposeFlight.Do("all", func() (any, error) {
		r.mu.Lock()
		contexts := make([]*Context, 0, len(r.contexts))
		for _, c := range r.contexts {
			contexts = append(contexts, c)
		}
		r.mu.Unlock()

		var errs []error
		for _, c := range contexts {
			if err := r.Dispose(c); err != nil {
				slog.Error("context disposal failed", "dir", c.WorkDir, "error", err)
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, nil
	})
	return err
}

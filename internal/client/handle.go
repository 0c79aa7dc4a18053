package client

import (
	"context"
	"sync"
)

// Handle is an item id that becomes known some time after the request that
// created it. It resolves exactly once, with an id or an error.
type Handle struct {
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	id        string
	err       error
	callbacks []func(id string)
}

func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Resolved returns a handle that already carries id.
func Resolved(id string) *Handle {
	h := NewHandle()
	h.Resolve(id, nil)
	return h
}

// Failed returns a handle that already carries err.
func Failed(err error) *Handle {
	h := NewHandle()
	h.Resolve("", err)
	return h
}

// Resolve sets the outcome. Only the first call has any effect. Callbacks
// registered with OnResolve run on the resolving goroutine when err is nil.
func (h *Handle) Resolve(id string, err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.id, h.err = id, err
		cbs := h.callbacks
		h.callbacks = nil
		close(h.done)
		h.mu.Unlock()

		if err != nil {
			return
		}
		for _, fn := range cbs {
			fn(id)
		}
	})
}

// Done is closed once the handle resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.id, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ID returns the id without blocking. ok is false until the handle resolved
// successfully.
func (h *Handle) ID() (id string, ok bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.id, h.err == nil
	default:
		return "", false
	}
}

// OnResolve registers fn to run with the id once the handle resolves
// successfully. If it already has, fn runs immediately on the caller.
func (h *Handle) OnResolve(fn func(id string)) {
	h.mu.Lock()
	select {
	case <-h.done:
		id, err := h.id, h.err
		h.mu.Unlock()
		if err == nil {
			fn(id)
		}
		return
	default:
	}
	h.callbacks = append(h.callbacks, fn)
	h.mu.Unlock()
}

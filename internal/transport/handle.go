package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// handle is the Handle implementation shared by the transports in this
// module. The owning transport calls finish exactly once.
type handle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	resp *Response
	err  error
}

func newHandle(parent context.Context) *handle {
	ctx, cancel := context.WithCancel(parent)
	return &handle{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (h *handle) ID() string { return h.id }

// Cancel is context.CancelFunc underneath, which is already idempotent.
func (h *handle) Cancel() { h.cancel() }

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Result() (*Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resp, h.err
}

func (h *handle) String() string { return h.id }

// finish records the outcome, runs the callbacks and closes Done.
func (h *handle) finish(req *Request, hooks Hooks, resp *Response, err error) {
	h.mu.Lock()
	h.resp, h.err = resp, err
	h.mu.Unlock()

	if req.Callback != nil {
		req.Callback(resp, err)
	}
	if hooks.Complete != nil {
		hooks.Complete(h)
	}
	h.cancel()
	close(h.done)
}

// Package transporttest provides an in-memory Transport whose requests
// finish only when a test says so.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/billie-coop/reqproxy/internal/csync"
	"github.com/billie-coop/reqproxy/internal/transport"
)

// Transport records every issued request and never touches the network.
type Transport struct {
	// AutoComplete finishes each request with a 200 on its own goroutine
	// right after it is issued.
	AutoComplete bool

	issued *csync.Slice[*Handle]
	log    *csync.Slice[string]
	seq    int
	mu     sync.Mutex
}

var _ transport.Transport = (*Transport)(nil)

// New creates an empty fake transport.
func New() *Transport {
	return &Transport{
		issued: csync.NewSlice[*Handle](),
		log:    csync.NewSlice[string](),
	}
}

// Issue records req, runs BeforeSend and returns a pending handle.
func (t *Transport) Issue(ctx context.Context, req *transport.Request, hooks transport.Hooks) transport.Handle {
	t.mu.Lock()
	t.seq++
	id := fmt.Sprintf("fake-%d", t.seq)
	t.mu.Unlock()

	h := &Handle{
		id:    id,
		req:   req,
		hooks: hooks,
		owner: t,
		done:  make(chan struct{}),
	}
	if hooks.BeforeSend != nil {
		hooks.BeforeSend(h)
	}
	t.issued.Append(h)
	t.log.Append("issue " + req.URL)

	if t.AutoComplete {
		go h.Complete(&transport.Response{StatusCode: 200})
	}
	return h
}

// Issued returns the handles in issue order.
func (t *Transport) Issued() []*Handle {
	return t.issued.ToSlice()
}

// Count returns how many requests were issued.
func (t *Transport) Count() int {
	return t.issued.Len()
}

// Handle returns the i-th issued handle.
func (t *Transport) Handle(i int) (*Handle, bool) {
	return t.issued.Get(i)
}

// Last returns the most recently issued handle.
func (t *Transport) Last() (*Handle, bool) {
	return t.issued.Last()
}

// URLs returns the URLs of all issued requests in order.
func (t *Transport) URLs() []string {
	handles := t.issued.ToSlice()
	urls := make([]string, len(handles))
	for i, h := range handles {
		urls[i] = h.req.URL
	}
	return urls
}

// Log returns "issue <url>" and "cancel <url>" entries in the order they
// happened.
func (t *Transport) Log() []string {
	return t.log.ToSlice()
}

// Handle is a fake request handle.
type Handle struct {
	id    string
	req   *transport.Request
	hooks transport.Hooks
	owner *Transport
	done  chan struct{}

	mu       sync.Mutex
	cancels  int
	finished bool
	resp     *transport.Response
	err      error
}

var _ transport.Handle = (*Handle)(nil)

func (h *Handle) ID() string { return h.id }

// Request returns what was issued.
func (h *Handle) Request() *transport.Request { return h.req }

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Result() (*transport.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resp, h.err
}

// Cancel counts the call and, if the request is still pending, completes
// it synchronously with transport.ErrAborted.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancels++
	h.mu.Unlock()
	h.owner.log.Append("cancel " + h.req.URL)
	h.finish(nil, transport.ErrAborted)
}

// CancelCalls returns how many times Cancel was called.
func (h *Handle) CancelCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels
}

// Finished reports whether the request has completed.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Complete finishes the request successfully. It is a no-op on a
// finished request.
func (h *Handle) Complete(resp *transport.Response) {
	h.finish(resp, nil)
}

// Fail finishes the request with err.
func (h *Handle) Fail(err error) {
	h.finish(nil, err)
}

func (h *Handle) finish(resp *transport.Response, err error) {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	h.resp, h.err = resp, err
	h.mu.Unlock()

	if h.req.Callback != nil {
		h.req.Callback(resp, err)
	}
	if h.hooks.Complete != nil {
		h.hooks.Complete(h)
	}
	close(h.done)
}

// Package blocker keeps at most one live request per named queue.
//
// Submitting a request to a queue first aborts every request still in
// flight on that queue, oldest first, and only then issues the new one.
// Queues are independent: a submission never touches another queue.
//
// The typical use is type-ahead search, where every keystroke fires a
// lookup and only the newest answer matters:
//
//	b := blocker.New(t)
//	b.Submit(&transport.Request{URL: "/search?q=go"}, "search")
//	b.Submit(&transport.Request{URL: "/search?q=gol"}, "search") // aborts the first
//
// A request with no name goes to DefaultQueue.
package blocker

import (
	"context"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/transport"
)

// DefaultQueue is used when a submission names no queue.
const DefaultQueue = "default"

// Blocker owns the queue pool: queue name to in-flight handles, oldest
// first. Build one with New and pass it to whoever submits; it is not a
// global.
type Blocker struct {
	transport transport.Transport
	ctx       context.Context
	logger    logr.Logger
	onDrop    func(*transport.Request)
	onAbort   func(queue string, h transport.Handle)

	// mu guards pool and gen. It is never held across transport calls, so
	// hooks and callbacks fired synchronously from Issue or Cancel may
	// take it or submit again.
	mu   sync.Mutex
	pool map[string][]transport.Handle

	// gen counts claims per queue. A submission whose claim is no longer
	// current by the time Issue returns has been superseded.
	gen map[string]uint64
}

// Option configures a Blocker.
type Option func(*Blocker)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logr.Logger) Option {
	return func(b *Blocker) {
		b.logger = l
	}
}

// WithContext sets the parent context handed to the transport.
func WithContext(ctx context.Context) Option {
	return func(b *Blocker) {
		b.ctx = ctx
	}
}

// WithDropHook is called for each submission rejected for lacking a URL.
func WithDropHook(fn func(*transport.Request)) Option {
	return func(b *Blocker) {
		b.onDrop = fn
	}
}

// WithAbortHook is called for each handle cancelled by AbortAll.
func WithAbortHook(fn func(queue string, h transport.Handle)) Option {
	return func(b *Blocker) {
		b.onAbort = fn
	}
}

// New creates a blocker with an empty default queue.
func New(t transport.Transport, opts ...Option) *Blocker {
	b := &Blocker{
		transport: t,
		ctx:       context.Background(),
		logger:    logr.Discard(),
		pool: map[string][]transport.Handle{
			DefaultQueue: {},
		},
		gen: map[string]uint64{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit aborts whatever is in flight on queue and then issues req there.
// An empty queue name means DefaultQueue. A request without a URL is
// logged and dropped, and Submit returns nil.
func (b *Blocker) Submit(req *transport.Request, queue string) transport.Handle {
	if !req.Valid() {
		b.logger.Error(nil, "Request URL is not specified, dropping request", "queue", queue)
		if b.onDrop != nil {
			b.onDrop(req)
		}
		return nil
	}
	queue = normalize(queue)

	hooks := transport.Hooks{
		BeforeSend: func(h transport.Handle) {
			b.enqueue(h, queue)
		},
		Complete: func(h transport.Handle) {
			b.dequeue(h, queue)
		},
	}

	claim := b.claim(queue)
	h := b.transport.Issue(withQueue(b.ctx, queue), req, hooks)
	if h != nil && b.superseded(queue, claim, h) {
		b.logger.V(logging.DEBUG).Info("Submission superseded while issuing", "handle", h.ID(), "queue", queue)
		b.abort(queue, h)
	}
	return h
}

// claim aborts everything on queue and, once it is empty, takes the next
// generation. Callbacks run by Cancel may submit again, so the queue is
// drained until nothing new shows up.
func (b *Blocker) claim(queue string) uint64 {
	b.mu.Lock()
	if _, ok := b.pool[queue]; !ok {
		b.pool[queue] = []transport.Handle{}
	}
	b.mu.Unlock()

	for {
		b.AbortAll(queue)

		b.mu.Lock()
		if len(b.pool[queue]) == 0 {
			b.gen[queue]++
			claim := b.gen[queue]
			b.mu.Unlock()
			return claim
		}
		b.mu.Unlock()
	}
}

// superseded reports whether a newer claim or abort happened on queue
// since claim. If so and h is still recorded, h is removed and the caller
// owns cancelling it. A handle already taken out was cancelled by whoever
// took it, or has completed.
func (b *Blocker) superseded(queue string, claim uint64, h transport.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.gen[queue] == claim {
		return false
	}
	q := b.pool[queue]
	for i := range q {
		if q[i] == h {
			b.pool[queue] = append(q[:i], q[i+1:]...)
			return true
		}
	}
	return false
}

type queueKey struct{}

func withQueue(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, queueKey{}, queue)
}

// QueueFrom returns the queue a request was submitted to, for transports
// and decorators that want to label their work.
func QueueFrom(ctx context.Context) (string, bool) {
	queue, ok := ctx.Value(queueKey{}).(string)
	return queue, ok
}

// AbortAll cancels every request in flight on queue, oldest first, until
// the queue is empty. A submission to queue that is still inside Issue is
// cancelled as it returns. Unknown queues are a logged no-op. No lock is
// held while cancelling.
func (b *Blocker) AbortAll(queue string) {
	queue = normalize(queue)

	b.mu.Lock()
	_, ok := b.pool[queue]
	length := len(b.pool[queue])
	if ok {
		b.gen[queue]++
	}
	b.mu.Unlock()
	if !ok {
		b.logger.V(logging.VERBOSE).Info("Queue does not exist, nothing to abort", "queue", queue)
		return
	}
	b.logger.V(logging.DEBUG).Info("Aborting all requests in queue", "queue", queue, "length", length)

	for {
		h, ok := b.shift(queue)
		if !ok {
			return
		}
		if h == nil {
			continue
		}
		b.abort(queue, h)
	}
}

func (b *Blocker) abort(queue string, h transport.Handle) {
	h.Cancel()
	if b.onAbort != nil {
		b.onAbort(queue, h)
	}
}

// Len returns the number of in-flight handles recorded for queue.
func (b *Blocker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pool[normalize(queue)])
}

// Queues returns the names of all known queues, sorted.
func (b *Blocker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.pool))
	for name := range b.pool {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handles returns a copy of the in-flight handles for queue, oldest first.
func (b *Blocker) Handles(queue string) []transport.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.pool[normalize(queue)]
	out := make([]transport.Handle, len(q))
	copy(out, q)
	return out
}

// enqueue records h at the back of queue.
func (b *Blocker) enqueue(h transport.Handle, queue string) {
	b.mu.Lock()
	b.pool[queue] = append(b.pool[queue], h)
	length := len(b.pool[queue])
	b.mu.Unlock()

	b.logger.V(logging.TRACE).Info("Request pushed into queue", "handle", h.ID(), "queue", queue, "length", length)
}

// dequeue removes the first entry in queue that is h itself. Position is
// irrelevant; an abort may already have taken it out, which is logged.
func (b *Blocker) dequeue(h transport.Handle, queue string) {
	b.mu.Lock()
	q, ok := b.pool[queue]
	if !ok {
		b.mu.Unlock()
		b.logger.Error(nil, "Queue does not exist", "queue", queue)
		return
	}
	for i := range q {
		if q[i] == h {
			b.pool[queue] = append(q[:i], q[i+1:]...)
			b.mu.Unlock()
			b.logger.V(logging.TRACE).Info("Request removed from queue", "handle", h.ID(), "queue", queue)
			return
		}
	}
	b.mu.Unlock()
	b.logger.V(logging.DEBUG).Info("Request not found in queue", "handle", h.ID(), "queue", queue)
}

// shift pops the oldest handle of queue. ok is false once it is empty.
func (b *Blocker) shift(queue string) (transport.Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.pool[queue]
	if len(q) == 0 {
		return nil, false
	}
	h := q[0]
	q[0] = nil
	b.pool[queue] = q[1:]
	return h, true
}

func normalize(queue string) string {
	if queue == "" {
		return DefaultQueue
	}
	return queue
}

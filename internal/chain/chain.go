// Package chain runs HTTP requests strictly one after another.
//
// A Chain holds requests in registration order and a cursor. Nothing is
// sent until Start; from then on the request under the cursor is issued,
// and only when its handle is done does the cursor move and the next one
// go out. Success and failure are the same thing to a chain: it orders
// requests, it does not judge them.
//
//	c := chain.New(t).
//		Register(&transport.Request{URL: "/login", Method: http.MethodPost}).
//		Register(&transport.Request{URL: "/profile"}).
//		Register(&transport.Request{URL: "/inbox"})
//	c.Start()
//	<-c.Done()
//
// There is no timeout. A request that never completes holds up the rest
// of its chain forever, and so does a request without a URL: it is
// dropped without being sent, so the cursor never moves past it.
package chain

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/transport"
)

// State is where a chain is in its life.
type State int

const (
	// Idle chains accept registrations and wait for Start.
	Idle State = iota
	// Running chains have one request in flight.
	Running
	// Ended chains have run off the end of their list and stay inert.
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// entry is the chain's private bookkeeping for one registered request.
type entry struct {
	req      *transport.Request
	executed bool
	handle   transport.Handle
}

// Chain is an ordered list of requests plus a cursor. Create one per
// sequence with New; chains share nothing with each other.
type Chain struct {
	transport transport.Transport
	ctx       context.Context
	logger    logr.Logger
	name      string
	onDrop    func(*transport.Request)
	onEnd     func(*Chain)

	mu      sync.Mutex
	entries []*entry
	cursor  int
	state   State
	done    chan struct{}
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logr.Logger) Option {
	return func(c *Chain) {
		c.logger = l
	}
}

// WithContext sets the parent context handed to the transport for every
// request in the chain.
func WithContext(ctx context.Context) Option {
	return func(c *Chain) {
		c.ctx = ctx
	}
}

// WithName labels the chain in logs. Defaults to a random id.
func WithName(name string) Option {
	return func(c *Chain) {
		c.name = name
	}
}

// WithDropHook is called when the chain reaches a request without a URL
// and stalls on it.
func WithDropHook(fn func(*transport.Request)) Option {
	return func(c *Chain) {
		c.onDrop = fn
	}
}

// WithEndHook is called once, when the chain ends.
func WithEndHook(fn func(*Chain)) Option {
	return func(c *Chain) {
		c.onEnd = fn
	}
}

// New creates an idle, empty chain on top of t.
func New(t transport.Transport, opts ...Option) *Chain {
	c := &Chain{
		transport: t,
		ctx:       context.Background(),
		logger:    logr.Discard(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = uuid.NewString()[:8]
	}
	c.logger = c.logger.WithValues("chain", c.name)
	return c
}

// Register appends req to the chain and returns the chain so calls can
// be strung together. It never sends anything.
func (c *Chain) Register(req *transport.Request) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Ended {
		c.logger.V(logging.DEFAULT).Info("Registering on an ended chain, request will not be sent", "position", len(c.entries))
	}
	c.entries = append(c.entries, &entry{req: req})
	return c
}

// Start sends the first request. An empty chain stays idle and sends
// nothing; a chain that already started ignores the call.
func (c *Chain) Start() {
	c.mu.Lock()
	switch {
	case c.state != Idle:
		c.logger.V(logging.VERBOSE).Info("Chain already started", "state", c.state.String())
		c.mu.Unlock()
		return
	case len(c.entries) == 0:
		c.logger.V(logging.VERBOSE).Info("Nothing to start, chain is empty")
		c.mu.Unlock()
		return
	}
	c.state = Running
	c.logger.V(logging.DEBUG).Info("Chain started", "length", len(c.entries))
	c.mu.Unlock()

	c.advance()
}

// advance issues the request under the cursor, if there is one that has
// not run yet. Past the end of the list the chain ends.
func (c *Chain) advance() {
	c.mu.Lock()
	if c.state == Ended {
		c.mu.Unlock()
		return
	}
	if c.cursor < 0 || c.cursor >= len(c.entries) {
		c.endLocked()
		c.mu.Unlock()
		return
	}

	position := c.cursor
	e := c.entries[position]
	if e.executed {
		c.logger.V(logging.DEBUG).Info("Request under cursor already executed, not sending again", "position", position)
		c.mu.Unlock()
		return
	}

	if !e.req.Valid() {
		// Nothing is sent, so nothing completes: the cursor stays put
		// and the rest of the chain waits forever.
		c.mu.Unlock()
		c.logger.V(logging.DEFAULT).Info("Dropping request without URL, chain stalls here", "position", position)
		if c.onDrop != nil {
			c.onDrop(e.req)
		}
		return
	}
	c.mu.Unlock()

	c.logger.V(logging.TRACE).Info("Issuing request", "position", position, "url", e.req.URL)
	h := c.transport.Issue(c.ctx, e.req, transport.Hooks{})

	c.mu.Lock()
	e.handle = h
	c.mu.Unlock()

	go c.await(e, h)
}

// await blocks until h is done and then moves the chain along.
func (c *Chain) await(e *entry, h transport.Handle) {
	if h != nil {
		<-h.Done()
	} else {
		c.logger.V(logging.DEFAULT).Info("Transport returned no handle, treating request as completed", "url", e.req.URL)
	}
	c.complete(e)
}

// complete marks e executed, moves the cursor and issues the next request.
func (c *Chain) complete(e *entry) {
	c.mu.Lock()
	if e.executed {
		c.mu.Unlock()
		return
	}
	e.executed = true
	c.cursor++
	c.mu.Unlock()

	c.advance()
}

// endLocked moves the chain to Ended once. Callers hold mu.
func (c *Chain) endLocked() {
	if c.state == Ended {
		return
	}
	c.logger.V(logging.DEBUG).Info("Chain ended", "length", len(c.entries))
	c.state = Ended
	close(c.done)
	if c.onEnd != nil {
		go c.onEnd(c)
	}
}

// Done is closed when the chain ends. It never closes for a chain that
// was not started.
func (c *Chain) Done() <-chan struct{} {
	return c.done
}

// Name returns the chain's log label.
func (c *Chain) Name() string {
	return c.name
}

// State returns the current state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Len returns how many requests are registered.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cursor returns the position of the request currently in flight, or
// Len() once the chain has ended.
func (c *Chain) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

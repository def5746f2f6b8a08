// Package proxy is the entry point most callers want. It owns one shared
// queue blocker and hands out fresh chains, both on top of the same
// transport, and reports what they do as events and metrics.
//
// Build a Proxy once at startup and pass it to whatever needs it:
//
//	p := proxy.New(transport.NewHTTPTransport(transport.WithBaseURL(url)),
//		proxy.WithLogger(logger),
//		proxy.WithBroker(broker),
//	)
//
//	// Ordered: /a, then /b, then /c.
//	p.Req(&transport.Request{URL: "/a"}).
//		Register(&transport.Request{URL: "/b"}).
//		Register(&transport.Request{URL: "/c"}).
//		Start()
//
//	// Latest wins: each call aborts the previous one on "search".
//	p.BlockReq(&transport.Request{URL: "/search?q=" + text}, "search")
package proxy

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/billie-coop/reqproxy/internal/blocker"
	"github.com/billie-coop/reqproxy/internal/chain"
	"github.com/billie-coop/reqproxy/internal/events"
	"github.com/billie-coop/reqproxy/internal/metrics"
	"github.com/billie-coop/reqproxy/internal/transport"
)

// Proxy ties a transport to both scheduling modes.
type Proxy struct {
	ctx     context.Context
	logger  logr.Logger
	broker  *events.Broker
	metrics bool

	chainTransport transport.Transport
	blocker        *blocker.Blocker
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger passed down to chains and the blocker.
func WithLogger(l logr.Logger) Option {
	return func(p *Proxy) {
		p.logger = l
	}
}

// WithBroker publishes request lifecycle events to b.
func WithBroker(b *events.Broker) Option {
	return func(p *Proxy) {
		p.broker = b
	}
}

// WithMetrics turns prometheus recording on or off. On by default.
func WithMetrics(enabled bool) Option {
	return func(p *Proxy) {
		p.metrics = enabled
	}
}

// WithContext sets the parent context of every request. Cancelling it
// aborts everything the proxy has in flight.
func WithContext(ctx context.Context) Option {
	return func(p *Proxy) {
		p.ctx = ctx
	}
}

// New creates a Proxy on top of t.
func New(t transport.Transport, opts ...Option) *Proxy {
	p := &Proxy{
		ctx:     context.Background(),
		logger:  logr.Discard(),
		metrics: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics {
		metrics.Register()
	}

	p.chainTransport = &instrumented{next: t, mode: events.ModeChain, broker: p.broker, metrics: p.metrics}
	queueTransport := &instrumented{next: t, mode: events.ModeQueue, broker: p.broker, metrics: p.metrics}

	p.blocker = blocker.New(queueTransport,
		blocker.WithLogger(p.logger.WithName("blocker")),
		blocker.WithContext(p.ctx),
		blocker.WithDropHook(func(req *transport.Request) {
			p.dropped(events.ModeQueue, req)
		}),
		blocker.WithAbortHook(func(queue string, _ transport.Handle) {
			if p.metrics {
				metrics.RecordAborted(queue)
			}
		}),
	)
	return p
}

// Chain returns a new, empty chain. Options are applied after the
// proxy's own, so they may override logger or context.
func (p *Proxy) Chain(opts ...chain.Option) *chain.Chain {
	base := []chain.Option{
		chain.WithLogger(p.logger.WithName("chain")),
		chain.WithContext(p.ctx),
		chain.WithDropHook(func(req *transport.Request) {
			p.dropped(events.ModeChain, req)
		}),
		chain.WithEndHook(func(c *chain.Chain) {
			p.publish(events.ChainEndedEvent, events.ChainPayload{Name: c.Name(), Length: c.Len()})
		}),
	}
	return chain.New(p.chainTransport, append(base, opts...)...)
}

// Req starts a new chain with req registered first. Call Register for the
// rest and Start when done.
func (p *Proxy) Req(req *transport.Request) *chain.Chain {
	return p.Chain().Register(req)
}

// BlockReq submits req to the named queue of the shared blocker,
// aborting whatever is still in flight there. See blocker.Blocker.Submit.
func (p *Proxy) BlockReq(req *transport.Request, queue string) transport.Handle {
	return p.blocker.Submit(req, queue)
}

// Blocker returns the shared blocker.
func (p *Proxy) Blocker() *blocker.Blocker {
	return p.blocker
}

// Broker returns the event broker, nil if none was configured.
func (p *Proxy) Broker() *events.Broker {
	return p.broker
}

func (p *Proxy) dropped(mode events.Mode, req *transport.Request) {
	if p.metrics {
		metrics.RecordDropped(string(mode))
	}
	payload := events.RequestPayload{Mode: mode}
	if req != nil {
		payload.Method = req.MethodOrDefault()
	}
	p.publish(events.RequestDroppedEvent, payload)
}

func (p *Proxy) publish(t events.EventType, payload interface{}) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(events.Event{Type: t, Payload: payload})
}

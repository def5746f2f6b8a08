package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/billie-coop/reqproxy/internal/blocker"
	"github.com/billie-coop/reqproxy/internal/events"
	"github.com/billie-coop/reqproxy/internal/metrics"
	"github.com/billie-coop/reqproxy/internal/transport"
)

// instrumented decorates a transport with lifecycle events and metrics.
// One instance per scheduling mode, so every event carries its mode.
type instrumented struct {
	next    transport.Transport
	mode    events.Mode
	broker  *events.Broker
	metrics bool
}

func (i *instrumented) Issue(ctx context.Context, req *transport.Request, hooks transport.Hooks) transport.Handle {
	queue, _ := blocker.QueueFrom(ctx)
	start := time.Now()

	wrapped := transport.Hooks{
		BeforeSend: func(h transport.Handle) {
			if i.metrics {
				metrics.RecordIssued(string(i.mode))
			}
			i.publish(events.RequestIssuedEvent, i.payload(h, req, queue, nil, nil))
			if hooks.BeforeSend != nil {
				hooks.BeforeSend(h)
			}
		},
		Complete: func(h transport.Handle) {
			resp, err := h.Result()

			eventType, outcome := events.RequestCompletedEvent, metrics.OutcomeSuccess
			switch {
			case errors.Is(err, transport.ErrAborted):
				eventType, outcome = events.RequestAbortedEvent, metrics.OutcomeAborted
			case err != nil:
				eventType, outcome = events.RequestFailedEvent, metrics.OutcomeFailure
			}
			if i.metrics {
				metrics.RecordCompleted(string(i.mode), outcome, time.Since(start))
			}
			i.publish(eventType, i.payload(h, req, queue, resp, err))

			if hooks.Complete != nil {
				hooks.Complete(h)
			}
		},
	}
	return i.next.Issue(ctx, req, wrapped)
}

func (i *instrumented) payload(h transport.Handle, req *transport.Request, queue string, resp *transport.Response, err error) events.RequestPayload {
	p := events.RequestPayload{
		HandleID: h.ID(),
		Mode:     i.mode,
		Method:   req.MethodOrDefault(),
		URL:      req.URL,
		Queue:    queue,
		Err:      err,
	}
	if resp != nil {
		p.Status = resp.StatusCode
	}
	return p
}

func (i *instrumented) publish(t events.EventType, payload interface{}) {
	if i.broker == nil {
		return
	}
	i.broker.Publish(events.Event{Type: t, Payload: payload})
}

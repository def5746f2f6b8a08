package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"

	"github.com/billie-coop/reqproxy/internal/csync"
	"github.com/billie-coop/reqproxy/internal/logging"
)

// maxErrorBody caps how much of a non-2xx body is copied into StatusError.
const maxErrorBody = 512

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	client  *http.Client
	timeout *time.Duration
	baseURL *url.URL
	header  http.Header
	logger  logr.Logger

	// Live handles by id, so Close can abort everything still running.
	inflight *csync.Map[string, *handle]
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithClient replaces the default http.Client. The client itself is never
// modified; WithTimeout applies to a copy.
func WithClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithBaseURL sets the URL relative request URLs are resolved against.
// An unparsable base is ignored.
func WithBaseURL(raw string) Option {
	return func(t *HTTPTransport) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			t.logger.Error(err, "Ignoring invalid base URL", "baseURL", raw)
			return
		}
		t.baseURL = u
	}
}

// WithTimeout bounds every request. Zero means no timeout. It wins over
// the timeout of a client passed to WithClient, in any option order.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		t.timeout = &d
	}
}

// WithDefaultHeader adds a header sent with every request unless the
// request sets the same key itself.
func WithDefaultHeader(key, value string) Option {
	return func(t *HTTPTransport) {
		t.header.Add(key, value)
	}
}

// WithLogger sets the logger. Apply it first so later options can log.
func WithLogger(l logr.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = l
	}
}

// NewHTTPTransport creates a transport with a fresh http.Client.
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		client:   &http.Client{},
		header:   make(http.Header),
		logger:   logr.Discard(),
		inflight: csync.NewMap[string, *handle](),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.timeout != nil {
		client := *t.client
		client.Timeout = *t.timeout
		t.client = &client
	}
	return t
}

// Issue starts req in the background. BeforeSend runs before Issue
// returns; Complete runs on the request goroutine.
func (t *HTTPTransport) Issue(ctx context.Context, req *Request, hooks Hooks) Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	h := newHandle(ctx)
	t.inflight.Set(h.id, h)

	if hooks.BeforeSend != nil {
		hooks.BeforeSend(h)
	}

	go t.run(h, req, hooks)
	return h
}

// InFlight returns the number of requests that have not completed yet.
func (t *HTTPTransport) InFlight() int {
	return t.inflight.Len()
}

// Close aborts every in-flight request. Handles still complete normally,
// with ErrAborted.
func (t *HTTPTransport) Close() {
	t.inflight.Range(func(_ string, h *handle) bool {
		h.Cancel()
		return true
	})
}

func (t *HTTPTransport) run(h *handle, req *Request, hooks Hooks) {
	start := time.Now()
	resp, err := t.do(h.ctx, req)
	if resp != nil {
		resp.Duration = time.Since(start)
	}
	if err != nil && errors.Is(h.ctx.Err(), context.Canceled) {
		err = fmt.Errorf("%w: %v", ErrAborted, err)
	}

	logger := t.logger.WithValues("handle", h.id, "method", req.MethodOrDefault(), "url", req.URL)
	switch {
	case errors.Is(err, ErrAborted):
		logger.V(logging.DEBUG).Info("Request aborted")
	case err != nil:
		logger.V(logging.VERBOSE).Info("Request failed", "err", err.Error())
	default:
		logger.V(logging.TRACE).Info("Request completed", "status", resp.StatusCode, "duration", resp.Duration)
	}

	t.inflight.Delete(h.id)
	h.finish(req, hooks, resp, err)
}

func (t *HTTPTransport) do(ctx context.Context, req *Request) (*Response, error) {
	target, err := t.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.MethodOrDefault(), target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range t.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := data
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return resp, &StatusError{StatusCode: httpResp.StatusCode, Body: string(msg)}
	}
	return resp, nil
}

func (t *HTTPTransport) resolve(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("request URL is empty")
	}
	if t.baseURL == nil {
		return raw, nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", raw, err)
	}
	return t.baseURL.ResolveReference(ref).String(), nil
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAborted is reported by a handle that was cancelled before its
// request finished.
var ErrAborted = errors.New("request aborted")

// Request is the caller-supplied configuration of a single HTTP request.
// The schedulers never look inside it beyond checking that URL is set.
type Request struct {
	// URL is the target address. It is the only required field.
	// Relative URLs are resolved by the transport against its base URL.
	URL string

	// Method defaults to GET when empty.
	Method string

	Header http.Header
	Body   []byte

	// Callback receives the outcome of the request, success or failure.
	// It runs on the transport's goroutine before the completion hooks.
	Callback func(*Response, error)
}

// Valid reports whether the request has a target address.
func (r *Request) Valid() bool {
	return r != nil && r.URL != ""
}

// MethodOrDefault returns the request method, GET if unset.
func (r *Request) MethodOrDefault() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is what came back from the wire.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError is returned for responses outside the 2xx range. The
// response is still delivered alongside it.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Hooks are the lifecycle callbacks a transport invokes for one request.
type Hooks struct {
	// BeforeSend is called with the new handle before anything is
	// transmitted. Transports call it synchronously from Issue.
	BeforeSend func(Handle)

	// Complete is called exactly once per issued request, on success,
	// failure and abort alike.
	Complete func(Handle)
}

// Handle is the live identity of an issued request.
type Handle interface {
	// ID is unique per issued request.
	ID() string

	// Cancel aborts the request. It is idempotent and safe to call after
	// the request has finished.
	Cancel()

	// Done is closed once the request has completed and all hooks ran.
	Done() <-chan struct{}

	// Result returns the outcome. It is only meaningful after Done closed.
	Result() (*Response, error)
}

// Transport issues asynchronous requests.
//
// Issue never blocks on the network. It returns a handle right away; the
// request runs in the background and reports through hooks and the
// handle's Done channel.
type Transport interface {
	Issue(ctx context.Context, req *Request, hooks Hooks) Handle
}

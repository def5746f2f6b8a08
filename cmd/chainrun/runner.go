package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/billie-coop/reqproxy/internal/chain"
	"github.com/billie-coop/reqproxy/internal/proxy"
	"github.com/billie-coop/reqproxy/internal/transport"
)

// Summary counts outcomes across all chains of a run.
type Summary struct {
	Succeeded int
	Failed    int
	Dropped   int
}

// Runner runs chains of URLs through a proxy, one chain per goroutine.
type Runner struct {
	proxy    *proxy.Proxy
	method   string
	out      io.Writer
	progress bool

	mu      sync.Mutex
	summary Summary
}

// NewRunner creates a runner that prints one line per response to out.
func NewRunner(p *proxy.Proxy, method string, out io.Writer, progress bool) *Runner {
	return &Runner{
		proxy:    p,
		method:   method,
		out:      out,
		progress: progress,
	}
}

// ParseChains splits each argument on commas. Blank entries are kept so
// Run can report them as dropped.
func ParseChains(args []string) [][]string {
	chains := make([][]string, 0, len(args))
	for _, arg := range args {
		parts := strings.Split(arg, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		chains = append(chains, parts)
	}
	return chains
}

// Run starts every chain and waits for all of them to end. Requests within
// a chain run strictly in order; chains do not wait for each other.
func (r *Runner) Run(ctx context.Context, chains [][]string) (Summary, error) {
	total := 0
	for _, urls := range chains {
		total += len(urls)
	}

	var bar *pb.ProgressBar
	if r.progress {
		bar = pb.New(total)
		bar.Output = r.out
		bar.Start()
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, urls := range chains {
		name := fmt.Sprintf("chain-%d", i+1)
		c := r.proxy.Chain(chain.WithName(name), chain.WithContext(ctx))
		// A blank URL would stall the chain for good, so it is left out
		// rather than registered.
		for pos, u := range urls {
			if u == "" {
				r.record(func(s *Summary) { s.Dropped++ })
				if bar != nil {
					bar.Increment()
				}
				continue
			}
			c.Register(r.request(name, pos, len(urls), u, bar))
		}
		if c.Len() == 0 {
			continue
		}

		g.Go(func() error {
			c.Start()
			select {
			case <-c.Done():
			case <-ctx.Done():
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if bar != nil {
		bar.Finish()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary, err
}

func (r *Runner) request(name string, pos, length int, url string, bar *pb.ProgressBar) *transport.Request {
	return &transport.Request{
		URL:    url,
		Method: r.method,
		Callback: func(resp *transport.Response, err error) {
			if err != nil {
				r.record(func(s *Summary) { s.Failed++ })
			} else {
				r.record(func(s *Summary) { s.Succeeded++ })
			}
			r.print(name, pos, length, url, resp, err)
			if bar != nil {
				bar.Increment()
			}
		},
	}
}

func (r *Runner) record(fn func(*Summary)) {
	r.mu.Lock()
	fn(&r.summary)
	r.mu.Unlock()
}

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	nameColor  = color.New(color.FgCyan)
)

func (r *Runner) print(name string, pos, length int, url string, resp *transport.Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := nameColor.Sprintf("%s [%d/%d]", name, pos+1, length)
	var statusErr *transport.StatusError
	switch {
	case errors.Is(err, transport.ErrAborted):
		fmt.Fprintf(r.out, "%s %s %s\n", prefix, warnColor.Sprint("ABORTED"), url)
	case errors.As(err, &statusErr):
		fmt.Fprintf(r.out, "%s %s %s %s\n", prefix, errorColor.Sprint(statusErr.StatusCode), url, resp.Duration.Round(time.Millisecond))
	case err != nil:
		fmt.Fprintf(r.out, "%s %s %s: %v\n", prefix, errorColor.Sprint("ERROR"), url, err)
	default:
		fmt.Fprintf(r.out, "%s %s %s %s\n", prefix, okColor.Sprint(resp.StatusCode), url, resp.Duration.Round(time.Millisecond))
	}
}

package blocker

import (
	"context"
	"fmt"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/billie-coop/reqproxy/internal/logging"
	"github.com/billie-coop/reqproxy/internal/transport"
	"github.com/billie-coop/reqproxy/internal/transport/mocks"
	"github.com/billie-coop/reqproxy/internal/transport/transporttest"
)

func req(url string) *transport.Request {
	return &transport.Request{URL: url}
}

func TestBlocker_NewSubmissionAbortsPrevious(t *testing.T) {
	fake := transporttest.New()
	b := New(fake, WithLogger(logging.NewTestLogger()))

	x := b.Submit(req("/x"), "Q")
	y := b.Submit(req("/y"), "Q")

	hx, _ := fake.Handle(0)
	hy, _ := fake.Handle(1)
	assert.Equal(t, 1, hx.CancelCalls())
	assert.Equal(t, 0, hy.CancelCalls())

	want := []string{"issue /x", "cancel /x", "issue /y"}
	if diff := cmp.Diff(want, fake.Log()); diff != "" {
		t.Errorf("cancel must precede the new issue (-want +got):\n%s", diff)
	}

	require.Equal(t, 1, b.Len("Q"))
	assert.Equal(t, y, b.Handles("Q")[0])
	assert.NotEqual(t, x, y)
}

func TestBlocker_EveryPredecessorCancelledOnce(t *testing.T) {
	for _, m := range []int{2, 3, 10} {
		t.Run(fmt.Sprintf("%d_submissions", m), func(t *testing.T) {
			fake := transporttest.New()
			b := New(fake)

			for i := 0; i < m; i++ {
				b.Submit(req(fmt.Sprintf("/%d", i)), "Q")
			}

			handles := fake.Issued()
			require.Len(t, handles, m)
			for i, h := range handles[:m-1] {
				assert.Equal(t, 1, h.CancelCalls(), "handle %d", i)
			}
			assert.Equal(t, 0, handles[m-1].CancelCalls())

			// Each issue is preceded by the cancel of the one before it.
			log := fake.Log()
			for i := 1; i < m; i++ {
				cancelAt := indexOf(log, fmt.Sprintf("cancel /%d", i-1))
				issueAt := indexOf(log, fmt.Sprintf("issue /%d", i))
				assert.Less(t, cancelAt, issueAt)
			}
			assert.Equal(t, 1, b.Len("Q"))
		})
	}
}

func indexOf(entries []string, s string) int {
	for i, e := range entries {
		if e == s {
			return i
		}
	}
	return -1
}

func TestBlocker_QueuesAreIndependent(t *testing.T) {
	fake := transporttest.New()
	b := New(fake)

	b.Submit(req("/a"), "left")
	b.Submit(req("/b"), "right")
	b.Submit(req("/c"), "third")

	for _, h := range fake.Issued() {
		assert.Equal(t, 0, h.CancelCalls(), h.Request().URL)
	}
	assert.Equal(t, []string{"default", "left", "right", "third"}, b.Queues())
	for _, q := range []string{"left", "right", "third"} {
		assert.Equal(t, 1, b.Len(q), q)
	}
}

func TestBlocker_DefaultQueue(t *testing.T) {
	fake := transporttest.New()
	b := New(fake)

	b.Submit(req("/first"), "")
	assert.Equal(t, 1, b.Len(DefaultQueue))

	b.Submit(req("/second"), "")
	first, _ := fake.Handle(0)
	assert.Equal(t, 1, first.CancelCalls())
	assert.Equal(t, 1, b.Len(DefaultQueue))

	b.Submit(req("/third"), DefaultQueue)
	second, _ := fake.Handle(1)
	assert.Equal(t, 1, second.CancelCalls())
}

func TestBlocker_MissingURLIsDropped(t *testing.T) {
	fake := transporttest.New()
	dropped := 0
	b := New(fake, WithDropHook(func(*transport.Request) { dropped++ }))

	assert.Nil(t, b.Submit(&transport.Request{Method: "POST"}, "Q"))
	assert.Nil(t, b.Submit(nil, "Q"))

	assert.Equal(t, 0, fake.Count())
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{DefaultQueue}, b.Queues(), "a dropped request must not create its queue")
}

func TestBlocker_DroppedSubmissionKeepsPredecessorAlive(t *testing.T) {
	fake := transporttest.New()
	b := New(fake)

	b.Submit(req("/live"), "Q")
	b.Submit(&transport.Request{}, "Q")

	h, _ := fake.Handle(0)
	assert.Equal(t, 0, h.CancelCalls())
	assert.Equal(t, 1, b.Len("Q"))
}

func TestBlocker_CompletionRemovesHandle(t *testing.T) {
	fake := transporttest.New()
	b := New(fake)

	b.Submit(req("/a"), "Q")
	require.Equal(t, 1, b.Len("Q"))

	h, _ := fake.Handle(0)
	h.Complete(&transport.Response{StatusCode: 200})
	assert.Equal(t, 0, b.Len("Q"))

	// Aborting a queue whose request already completed does nothing.
	b.AbortAll("Q")
	assert.Equal(t, 0, h.CancelCalls())
}

func TestBlocker_DequeueMiss(t *testing.T) {
	fake := transporttest.New()
	b := New(fake)
	kept := b.Submit(req("/kept"), "Q")

	stranger := transporttest.New().Issue(context.Background(), req("/stranger"), transport.Hooks{})
	b.dequeue(stranger, "Q")
	b.dequeue(stranger, "nope")

	assert.Equal(t, []transport.Handle{kept}, b.Handles("Q"))
}

func TestBlocker_AbortAllUnknownQueue(t *testing.T) {
	b := New(transporttest.New())

	assert.NotPanics(t, func() { b.AbortAll("missing") })
	assert.Equal(t, []string{DefaultQueue}, b.Queues())
}

func TestBlocker_AbortAllDrainsOldestFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mocks.NewMockTransport(ctrl)

	// A transport that records but never completes, so handles pile up.
	var handles []*mocks.MockHandle
	for i := 0; i < 3; i++ {
		h := mocks.NewMockHandle(ctrl)
		h.EXPECT().ID().Return(fmt.Sprintf("h%d", i)).AnyTimes()
		handles = append(handles, h)
	}
	next := 0
	mt.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *transport.Request, hooks transport.Hooks) transport.Handle {
			h := handles[next]
			next++
			hooks.BeforeSend(h)
			return h
		}).Times(2)

	var aborted []string
	b := New(mt, WithAbortHook(func(queue string, h transport.Handle) {
		assert.Equal(t, "Q", queue)
		aborted = append(aborted, h.ID())
	}))
	b.Submit(req("/0"), "Q")
	// Bypass Submit's abort to stack two live handles on the queue.
	b.enqueue(handles[1], "Q")
	next = 2

	gomock.InOrder(
		handles[0].EXPECT().Cancel(),
		handles[1].EXPECT().Cancel(),
	)
	b.Submit(req("/2"), "Q")

	assert.Equal(t, []string{"h0", "h1"}, aborted)
	assert.Equal(t, []transport.Handle{handles[2]}, b.Handles("Q"))
}

func TestBlocker_CancelAfterCompletionIsHarmless(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := mocks.NewMockTransport(ctrl)

	// The transport already finished h but never fired Complete, so it is
	// still recorded. Cancel on it must be tolerated.
	h := mocks.NewMockHandle(ctrl)
	h.EXPECT().ID().Return("done").AnyTimes()
	h.EXPECT().Cancel().Times(1)
	second := mocks.NewMockHandle(ctrl)
	second.EXPECT().ID().Return("second").AnyTimes()

	gomock.InOrder(
		mt.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *transport.Request, hooks transport.Hooks) transport.Handle {
				hooks.BeforeSend(h)
				return h
			}),
		mt.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *transport.Request, hooks transport.Hooks) transport.Handle {
				hooks.BeforeSend(second)
				return second
			}),
	)

	b := New(mt)
	b.Submit(req("/a"), "Q")
	assert.NotPanics(t, func() { b.Submit(req("/b"), "Q") })
	assert.Equal(t, 1, b.Len("Q"))
}

func TestBlocker_ConcurrentSubmissions(t *testing.T) {
	fake := transporttest.New()
	b := New(fake)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Submit(req(fmt.Sprintf("/%d", i)), "Q")
		}(i)
	}
	wg.Wait()

	live := 0
	for _, h := range fake.Issued() {
		if !h.Finished() {
			live++
		}
		assert.LessOrEqual(t, h.CancelCalls(), 1)
	}
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, b.Len("Q"))
}

// submitWithin runs fn on its own goroutine and fails the test if it does
// not return in time.
func submitWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Submit did not return")
	}
}

func TestBlocker_SubmitFromAbortCallback(t *testing.T) {
	t.Run("other queue", func(t *testing.T) {
		fake := transporttest.New()
		b := New(fake)

		b.Submit(&transport.Request{
			URL: "/x",
			Callback: func(_ *transport.Response, err error) {
				if errors.Is(err, transport.ErrAborted) {
					b.Submit(req("/audit"), "audit")
				}
			},
		}, "Q")

		submitWithin(t, time.Second, func() { b.Submit(req("/y"), "Q") })

		assert.Equal(t, []string{"/x", "/audit", "/y"}, fake.URLs())
		assert.Equal(t, 1, b.Len("Q"))
		assert.Equal(t, 1, b.Len("audit"))
	})

	t.Run("same queue", func(t *testing.T) {
		fake := transporttest.New()
		b := New(fake)

		b.Submit(&transport.Request{
			URL: "/x",
			Callback: func(_ *transport.Response, err error) {
				if errors.Is(err, transport.ErrAborted) {
					b.Submit(req("/retry"), "Q")
				}
			},
		}, "Q")

		var y transport.Handle
		submitWithin(t, time.Second, func() { y = b.Submit(req("/y"), "Q") })

		// The outer submission is the newest, so the retry it triggered is
		// aborted before /y goes out.
		want := []string{"issue /x", "cancel /x", "issue /retry", "cancel /retry", "issue /y"}
		if diff := cmp.Diff(want, fake.Log()); diff != "" {
			t.Errorf("log mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, []transport.Handle{y}, b.Handles("Q"))
	})
}

// abortingTransport aborts the submission's queue from inside the first
// Issue, before the request is recorded, the way a concurrent AbortAll
// can land between the drain and the send.
type abortingTransport struct {
	*transporttest.Transport
	b    *Blocker
	done bool
}

func (a *abortingTransport) Issue(ctx context.Context, r *transport.Request, hooks transport.Hooks) transport.Handle {
	if !a.done {
		a.done = true
		queue, _ := QueueFrom(ctx)
		a.b.AbortAll(queue)
	}
	return a.Transport.Issue(ctx, r, hooks)
}

func TestBlocker_AbortDuringIssueCancelsSubmission(t *testing.T) {
	fake := transporttest.New()
	at := &abortingTransport{Transport: fake}
	var aborted []string
	b := New(at, WithAbortHook(func(_ string, h transport.Handle) { aborted = append(aborted, h.ID()) }))
	at.b = b

	h := b.Submit(req("/a"), "Q")
	require.NotNil(t, h)

	first, _ := fake.Handle(0)
	assert.Equal(t, 1, first.CancelCalls())
	assert.Equal(t, []string{h.ID()}, aborted)
	assert.Equal(t, 0, b.Len("Q"))

	// The next submission is not affected.
	b.Submit(req("/b"), "Q")
	second, _ := fake.Handle(1)
	assert.Equal(t, 0, second.CancelCalls())
	assert.Equal(t, 1, b.Len("Q"))
}

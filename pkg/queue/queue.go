// Package queue serializes calls to an LLM provider.
//
// A Queue owns a single drain goroutine that takes requests in FIFO order,
// keeps at least MinInterval between provider calls and retries rate-limited
// requests with a linear backoff. At most one request is in flight at a time.
// Every outbound call of the application should go through one Queue so the
// provider's shared request budget holds.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cpunion/meetassist/pkg/llm"
)

// Request is one queued provider call.
type Request struct {
	ID       string
	Question string
	Context  string
	Prompt   *llm.Prompt

	// Retries counts rate-limited attempts so far. Owned by the queue.
	Retries    int
	EnqueuedAt time.Time
}

// Future resolves when its request finishes.
type Future struct {
	id   string
	done chan struct{}
	resp *llm.Response
	err  error
}

// ID returns the request id.
func (f *Future) ID() string { return f.id }

// Done is closed when the request has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the request finishes or ctx is done. Giving up on the
// wait does not remove the request from the queue.
func (f *Future) Wait(ctx context.Context) (*llm.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type item struct {
	ctx    context.Context
	req    *Request
	fut    *Future
	policy backoff.BackOff
}

// Stats is a point-in-time view of queue activity.
type Stats struct {
	Depth     int
	Draining  bool
	Enqueued  int
	Succeeded int
	Failed    int
	Retries   int
	LastCall  time.Time
}

// Queue is a single-consumer FIFO in front of an llm.Provider.
type Queue struct {
	provider llm.Provider
	cfg      Config
	log      zerolog.Logger

	base   context.Context // cancelled by Close
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  []*item // head is the request being processed
	draining bool
	closed   bool
	lastCall time.Time
	stats    Stats
}

// New constructs a queue. The drain goroutine starts on the first Enqueue
// and exits whenever the queue runs empty.
func New(provider llm.Provider, cfg Config, log zerolog.Logger) *Queue {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	base, cancel := context.WithCancel(context.Background())
	return &Queue{
		provider: provider,
		cfg:      cfg,
		log:      log.With().Str("component", "queue").Logger(),
		base:     base,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Enqueue appends req to the tail of the queue and returns its future.
//
//   - Returns llm.ErrQueueClosed if the queue is closed.
//   - Returns llm.ErrQueueFull if MaxDepth is set and reached.
//
// ctx governs the request itself: if it is done before the request reaches
// the head, the request is skipped and resolved with ctx.Err().
func (q *Queue) Enqueue(ctx context.Context, req *Request) (*Future, error) {
	if req == nil || req.Prompt == nil {
		return nil, errors.New("queue: request without prompt")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Retries = 0
	req.EnqueuedAt = time.Now()

	it := &item{
		ctx:    ctx,
		req:    req,
		fut:    &Future{id: req.ID, done: make(chan struct{})},
		policy: newRetryPolicy(q.cfg),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, llm.ErrQueueClosed
	}
	if q.cfg.MaxDepth > 0 && len(q.pending) >= q.cfg.MaxDepth {
		depth := len(q.pending)
		q.mu.Unlock()
		queueFullTotal.Inc()
		return nil, fmt.Errorf("%w (depth=%d)", llm.ErrQueueFull, depth)
	}
	q.pending = append(q.pending, it)
	q.stats.Enqueued++
	depth := len(q.pending)
	if !q.draining {
		q.draining = true
		q.wg.Add(1)
		go q.drain()
	}
	q.mu.Unlock()

	submissionsTotal.Inc()
	queueDepth.Set(float64(depth))
	q.log.Debug().Str("request_id", req.ID).Int("depth", depth).Msg("request enqueued")
	q.notify(depth)
	return it.fut, nil
}

// Do enqueues req and waits for its result.
func (q *Queue) Do(ctx context.Context, req *Request) (*llm.Response, error) {
	fut, err := q.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Len returns the number of pending requests, including the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Depth = len(q.pending)
	s.Draining = q.draining
	s.LastCall = q.lastCall
	return s
}

// Close stops the drain loop, cancels the call in flight and rejects every
// pending request with llm.ErrQueueClosed. It is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	rest := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, it := range rest {
		q.resolve(it, nil, llm.ErrQueueClosed)
	}
	if len(rest) > 0 {
		q.log.Info().Int("rejected", len(rest)).Msg("queue closed with pending requests")
	}
	queueDepth.Set(0)
	q.notify(0)
	return nil
}

// ------------------------- internals -------------------------

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		it := q.pending[0]
		wait := q.cfg.MinInterval - time.Since(q.lastCall)
		q.mu.Unlock()

		if err := it.ctx.Err(); err != nil {
			q.finish(it, nil, err)
			continue
		}

		if err := q.sleep(it.ctx, wait); err != nil {
			q.finish(it, nil, err)
			continue
		}

		resp, err := q.call(it)
		if err == nil {
			q.finish(it, resp, nil)
			continue
		}

		if !llm.IsRetryable(err) {
			q.finish(it, nil, err)
			continue
		}

		delay := it.policy.NextBackOff()
		if delay == backoff.Stop {
			q.finish(it, nil, fmt.Errorf("%w after %d attempts: %w", llm.ErrRetryExhausted, it.req.Retries+1, err))
			continue
		}
		var rl *llm.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}

		q.mu.Lock()
		it.req.Retries++
		q.stats.Retries++
		q.mu.Unlock()

		q.log.Warn().
			Str("request_id", it.req.ID).
			Int("retry", it.req.Retries).
			Dur("delay", delay).
			Err(err).
			Msg("rate limited, retrying")

		if err := q.sleep(it.ctx, delay); err != nil {
			q.finish(it, nil, err)
		}
	}
}

// call invokes the provider for the head request and records the call time.
func (q *Queue) call(it *item) (*llm.Response, error) {
	ctx, cancel := context.WithCancel(it.ctx)
	defer cancel()
	stop := context.AfterFunc(q.base, cancel)
	defer stop()

	start := time.Now()
	resp, err := q.provider.Generate(ctx, it.req.Prompt)
	callDuration.Observe(time.Since(start).Seconds())

	q.mu.Lock()
	q.lastCall = time.Now()
	closed := q.closed
	q.mu.Unlock()

	if err != nil {
		err = llm.Classify(err)
		if closed {
			err = llm.ErrQueueClosed
		}
	}
	attemptsTotal.WithLabelValues(outcomeFor(err)).Inc()
	return resp, err
}

// sleep waits d unless the request context or the queue is done first.
func (q *Queue) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return llm.ErrQueueClosed
	}
}

// finish pops it from the head of the queue and resolves its future.
func (q *Queue) finish(it *item, resp *llm.Response, err error) {
	q.mu.Lock()
	if len(q.pending) > 0 && q.pending[0] == it {
		q.pending[0] = nil
		q.pending = q.pending[1:]
	}
	if err == nil {
		q.stats.Succeeded++
	} else {
		q.stats.Failed++
	}
	depth := len(q.pending)
	q.mu.Unlock()

	if err != nil {
		q.log.Error().Str("request_id", it.req.ID).Int("retries", it.req.Retries).Err(err).Msg("request failed")
	}

	queueDepth.Set(float64(depth))
	q.notify(depth)
	q.resolve(it, resp, err)
}

func (q *Queue) resolve(it *item, resp *llm.Response, err error) {
	it.fut.resp, it.fut.err = resp, err
	close(it.fut.done)
}

func (q *Queue) notify(depth int) {
	if q.cfg.OnUpdate == nil {
		return
	}
	func() {
		// Guard against panics in the user-supplied handler.
		defer func() {
			if r := recover(); r != nil {
				q.log.Error().Interface("panic", r).Msg("queue update handler panic")
			}
		}()
		q.cfg.OnUpdate(depth)
	}()
}

func outcomeFor(err error) string {
	if err == nil {
		return outcomeOK
	}
	var (
		rl *llm.RateLimitedError
		te *llm.TransportError
	)
	switch {
	case errors.As(err, &rl):
		return outcomeRateLimited
	case errors.As(err, &te):
		return outcomeTransport
	default:
		return outcomeUpstream
	}
}

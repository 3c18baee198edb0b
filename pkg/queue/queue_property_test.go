package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"pgregory.net/rapid"

	"github.com/cpunion/meetassist/pkg/llm"
)

// TestQueue_AttemptsAreContiguousAndOrdered checks that, whatever mix of
// outcomes the provider returns, every request's attempts happen back to back
// and requests are served in enqueue order.
func TestQueue_AttemptsAreContiguousAndOrdered(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "requests")
		maxRetries := rapid.IntRange(0, 3).Draw(rt, "maxRetries")

		// failures[q] is how many rate-limit errors q sees before success;
		// -1 means a permanent upstream failure.
		failures := make(map[string]int, n)
		questions := make([]string, n)
		for i := range questions {
			questions[i] = fmt.Sprintf("q%d", i)
			failures[questions[i]] = rapid.IntRange(-1, 4).Draw(rt, questions[i])
		}

		rec := &recorder{fail: func(q string, attempt int) error {
			f := failures[q]
			if f < 0 {
				return &llm.UpstreamError{Status: 400}
			}
			if attempt <= f {
				return &llm.RateLimitedError{Err: errors.New("quota")}
			}
			return nil
		}}
		q := New(rec, Config{MaxRetries: maxRetries, RetryDelay: 100 * time.Microsecond}, zerolog.Nop())
		defer q.Close()

		futures := make([]*Future, n)
		for i, question := range questions {
			fut, err := q.Enqueue(context.Background(), request(question))
			if err != nil {
				rt.Fatalf("enqueue: %v", err)
			}
			futures[i] = fut
		}

		var want []string
		for i, question := range questions {
			_, err := futures[i].Wait(context.Background())
			f := failures[question]
			attempts := 1
			switch {
			case f < 0:
				if err == nil {
					rt.Fatalf("%s: expected upstream failure", question)
				}
			case f > maxRetries:
				attempts = maxRetries + 1
				if !errors.Is(err, llm.ErrRetryExhausted) {
					rt.Fatalf("%s: expected retry exhaustion, got %v", question, err)
				}
			default:
				attempts = f + 1
				if err != nil {
					rt.Fatalf("%s: unexpected error %v", question, err)
				}
			}
			for j := 0; j < attempts; j++ {
				want = append(want, question)
			}
		}

		calls, _ := rec.snapshot()
		if fmt.Sprint(calls) != fmt.Sprint(want) {
			rt.Fatalf("call order %v, want %v", calls, want)
		}
	})
}

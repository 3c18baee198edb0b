package similarity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello world", "hello world", 1},
		{"case insensitive", "Hello World", "hello world", 1},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"half", "a b", "a c d", 0.25},
		{"both empty", "", "", 0},
		{"one empty", "", "something", 0},
		{"punctuation ignored", "dosage?", "dosage", 1},
		{"single token with mark", "x?", "x", 1},
		{"contraction expanded", "What's the dosage for compound X?", "What is the dosage for compound X?", 1},
		{"korean tokens", "이 약의 용량은 얼마인가요", "이 약의 용량은 얼마예요", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_Properties(t *testing.T) {
	word := rapid.StringMatching(`[a-zA-Z가-힣]{1,8}`)
	sentence := rapid.Custom(func(t *rapid.T) string {
		return strings.Join(rapid.SliceOfN(word, 0, 12).Draw(t, "words"), " ")
	})

	rapid.Check(t, func(t *rapid.T) {
		a := sentence.Draw(t, "a")
		b := sentence.Draw(t, "b")

		ab := Similarity(a, b)
		if ab != Similarity(b, a) {
			t.Fatalf("not symmetric: %q vs %q", a, b)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("out of range: %v", ab)
		}
		if strings.TrimSpace(a) != "" && Similarity(a, a) != 1 {
			t.Fatalf("self similarity of %q is %v", a, Similarity(a, a))
		}
	})
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTracker_DuplicateWithinCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := NewTracker(30*time.Second, 0.7, clock.Now)

	require.False(t, tr.IsDuplicate("What is the dosage for compound X?"))

	clock.Advance(5 * time.Second)
	require.True(t, tr.IsDuplicate("What's the dosage for compound X?"))

	// The rejected duplicate is not recorded.
	require.Equal(t, 1, tr.Len())

	clock.Advance(31 * time.Second)
	require.False(t, tr.IsDuplicate("What is the dosage for compound X?"))
	require.Equal(t, 1, tr.Len(), "expired record should be purged")
}

func TestTracker_DistinctQuestions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := NewTracker(30*time.Second, 0.7, clock.Now)

	require.False(t, tr.IsDuplicate("What is the dosage for compound X?"))
	require.False(t, tr.IsDuplicate("Who is running the phase two trial?"))
	require.Equal(t, 2, tr.Len())
}

func TestTracker_ConcurrentCallersAdmitOne(t *testing.T) {
	tr := NewTracker(time.Minute, 0.7, nil)

	const callers = 32
	results := make(chan bool, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		go func() {
			<-start
			results <- tr.IsDuplicate("when does the trial start")
		}()
	}
	close(start)

	admitted := 0
	for i := 0; i < callers; i++ {
		if !<-results {
			admitted++
		}
	}
	require.Equal(t, 1, admitted)
}

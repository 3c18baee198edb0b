// Package similarity scores lexical overlap between questions and suppresses
// near-duplicates within a cooldown window.
package similarity

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cpunion/meetassist/pkg/types"
)

var contractions = map[string]string{
	"what's":  "what is",
	"where's": "where is",
	"who's":   "who is",
	"how's":   "how is",
	"when's":  "when is",
	"why's":   "why is",
	"it's":    "it is",
	"that's":  "that is",
	"there's": "there is",
	"isn't":   "is not",
	"aren't":  "are not",
	"doesn't": "does not",
	"don't":   "do not",
	"can't":   "can not",
	"won't":   "will not",
}

// Similarity returns the Jaccard index of the word sets of a and b.
// Both strings are lowercased and split on whitespace. Tokens are then
// normalized beyond plain splitting: punctuation at token edges is dropped
// and common English contractions are expanded, so "What's the budget?"
// and "what is the budget" score 1 and Similarity("x?", "x") is 1.
// The normalization is deliberate: repeats of one question compare equal
// whatever punctuation the recognizer attached. Returns 0 when both are
// empty.
func Similarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	union := len(setA)
	intersection := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) && r != '\''
		})
		tok = strings.Trim(tok, "'")
		if tok == "" {
			continue
		}
		if expanded, ok := contractions[tok]; ok {
			for _, w := range strings.Fields(expanded) {
				set[w] = struct{}{}
			}
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// Tracker remembers recently asked questions and reports near-duplicates.
type Tracker struct {
	mu sync.Mutex

	cooldown  time.Duration
	threshold float64
	now       func() time.Time

	recent []types.RecentQuestion
}

// NewTracker creates a tracker. A nil clock uses time.Now.
func NewTracker(cooldown time.Duration, threshold float64, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		cooldown:  cooldown,
		threshold: threshold,
		now:       clock,
	}
}

// IsDuplicate reports whether question is similar enough to a question seen
// within the cooldown window. When it is not, the question is recorded so
// later calls can match against it. Check and insert happen under one lock.
func (t *Tracker) IsDuplicate(question string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	kept := t.recent[:0]
	for _, rec := range t.recent {
		if now.Sub(rec.Timestamp) < t.cooldown {
			kept = append(kept, rec)
		}
	}
	t.recent = kept

	for _, rec := range t.recent {
		if Similarity(question, rec.Text) >= t.threshold {
			return true
		}
	}

	t.recent = append(t.recent, types.RecentQuestion{Text: question, Timestamp: now})
	return false
}

// Len returns the number of tracked questions, including expired ones that
// have not been purged yet.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.recent)
}

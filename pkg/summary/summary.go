// Package summary keeps a rolling summary of a meeting transcript.
package summary

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cpunion/meetassist/pkg/llm"
	"github.com/cpunion/meetassist/pkg/queue"
	"github.com/cpunion/meetassist/pkg/types"
)

// Doer submits a request and waits for its result. *queue.Queue satisfies it.
type Doer interface {
	Do(ctx context.Context, req *queue.Request) (*llm.Response, error)
}

// Config holds summarizer configuration.
type Config struct {
	Interval time.Duration
	// MinChars is the amount of new transcript text required before a
	// summary call is made.
	MinChars    int
	MaxSegments int
	// MaxSummaryRunes caps the stored summary, keeping its tail.
	MaxSummaryRunes int
	Timeout         time.Duration

	// Configured gates outbound calls; nil means always configured.
	Configured func() bool
	OnSummary  func(summary string)
	Clock      func() time.Time
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:        60 * time.Second,
		MinChars:        200,
		MaxSegments:     500,
		MaxSummaryRunes: 4000,
		Timeout:         15 * time.Second,
	}
}

type entry struct {
	seg types.TranscriptSegment
	seq uint64
}

// Summarizer folds new transcript segments into a running summary.
type Summarizer struct {
	doer Doer
	cfg  Config
	log  zerolog.Logger

	mu          sync.Mutex
	buf         []entry
	nextSeq     uint64
	summarized  uint64 // segments with seq < summarized are in the summary
	summary     string
	lastSummary time.Time
	inflight    bool
}

// New creates a summarizer. Zero config fields fall back to DefaultConfig.
func New(doer Doer, cfg Config, log zerolog.Logger) *Summarizer {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = def.MinChars
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = def.MaxSegments
	}
	if cfg.MaxSummaryRunes <= 0 {
		cfg.MaxSummaryRunes = def.MaxSummaryRunes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Summarizer{
		doer: doer,
		cfg:  cfg,
		log:  log.With().Str("component", "summary").Logger(),
	}
}

// AddTranscript appends a finalized transcript segment.
func (s *Summarizer) AddTranscript(text string, timestamp time.Time) {
	s.AddSegment(types.TranscriptSegment{Text: text, Timestamp: timestamp})
}

// AddSegment appends seg, evicting the oldest segment when the buffer is
// full. Blank segments are ignored.
func (s *Summarizer) AddSegment(seg types.TranscriptSegment) {
	seg.Text = strings.TrimSpace(seg.Text)
	if seg.Text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seg.AddedAt = s.cfg.Clock()
	if seg.Timestamp.IsZero() {
		seg.Timestamp = seg.AddedAt
	}
	s.buf = append(s.buf, entry{seg: seg, seq: s.nextSeq})
	s.nextSeq++
	if len(s.buf) > s.cfg.MaxSegments {
		s.buf = append([]entry(nil), s.buf[len(s.buf)-s.cfg.MaxSegments:]...)
	}
}

// Recent returns up to n of the newest segments, oldest first.
func (s *Summarizer) Recent(n int) []types.TranscriptSegment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.buf) {
		n = len(s.buf)
	}
	out := make([]types.TranscriptSegment, 0, n)
	for _, e := range s.buf[len(s.buf)-n:] {
		out = append(out, e.seg)
	}
	return out
}

// Summary returns the current summary text.
func (s *Summarizer) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// State returns a snapshot of the summarizer state.
func (s *Summarizer) State() types.SummaryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := make([]types.TranscriptSegment, 0, len(s.buf))
	for _, e := range s.buf {
		segs = append(segs, e.seg)
	}
	return types.SummaryState{
		SummaryText:      s.summary,
		LastSummaryTime:  s.lastSummary,
		TranscriptBuffer: segs,
	}
}

// Restore loads a saved state. Segments added after LastSummaryTime count
// as not yet summarized.
func (s *Summarizer) Restore(state types.SummaryState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = s.buf[:0]
	s.summarized = s.nextSeq
	for _, seg := range state.TranscriptBuffer {
		s.buf = append(s.buf, entry{seg: seg, seq: s.nextSeq})
		if !seg.AddedAt.After(state.LastSummaryTime) {
			s.summarized = s.nextSeq + 1
		}
		s.nextSeq++
	}
	if len(s.buf) > s.cfg.MaxSegments {
		s.buf = append([]entry(nil), s.buf[len(s.buf)-s.cfg.MaxSegments:]...)
	}
	s.summary = state.SummaryText
	s.lastSummary = state.LastSummaryTime
}

// MaybeSummarize folds segments added since the last summary into it when
// enough new text has accumulated. It reports whether the summary changed.
// Failures are logged and leave the previous summary in place; the next
// call retries with the larger window.
func (s *Summarizer) MaybeSummarize(ctx context.Context) (string, bool) {
	s.mu.Lock()
	if s.inflight {
		cur := s.summary
		s.mu.Unlock()
		return cur, false
	}

	var (
		pending []types.TranscriptSegment
		chars   int
		upto    = s.summarized
	)
	for _, e := range s.buf {
		if e.seq < s.summarized {
			continue
		}
		pending = append(pending, e.seg)
		chars += len([]rune(e.seg.Text))
		upto = e.seq + 1
	}
	prev := s.summary
	if chars < s.cfg.MinChars {
		s.mu.Unlock()
		return prev, false
	}
	if s.cfg.Configured != nil && !s.cfg.Configured() {
		s.mu.Unlock()
		s.log.Debug().Int("segments", len(pending)).Msg("summary skipped, api key not configured")
		return prev, false
	}
	s.inflight = true
	snapshot := s.cfg.Clock()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight = false
		s.mu.Unlock()
	}()

	req := &queue.Request{
		Question: "meeting summary",
		Prompt: &llm.Prompt{
			SystemInstruction: summarySystemInstruction,
			History: []types.ConversationTurn{
				{Role: types.RoleUser, Text: buildPrompt(prev, pending)},
			},
			Timeout: s.cfg.Timeout,
		},
	}
	resp, err := s.doer.Do(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Int("segments", len(pending)).Msg("summary failed, keeping previous")
		return prev, false
	}
	text := trimToLastRunes(strings.TrimSpace(resp.Text), s.cfg.MaxSummaryRunes)
	if text == "" {
		return prev, false
	}

	s.mu.Lock()
	s.summary = text
	s.summarized = upto
	s.lastSummary = snapshot
	s.mu.Unlock()

	s.log.Info().Int("segments", len(pending)).Int("chars", chars).Msg("summary updated")
	if s.cfg.OnSummary != nil {
		s.cfg.OnSummary(text)
	}
	return text, true
}

// Run calls MaybeSummarize every Interval until ctx is done.
func (s *Summarizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.MaybeSummarize(ctx)
		}
	}
}

const summarySystemInstruction = `당신은 회의 기록을 요약하는 비서입니다.
기존 요약에 새 발언을 반영하여 회의 전체 요약을 갱신하세요.
핵심 논의 사항, 결정 사항, 후속 조치를 간결한 글머리표로 정리하고, 발언에 없는 내용은 추가하지 마세요.`

func buildPrompt(prev string, segs []types.TranscriptSegment) string {
	var b strings.Builder
	if prev != "" {
		fmt.Fprintf(&b, "## 기존 요약\n%s\n\n", prev)
	}
	b.WriteString("## 새 발언\n")
	for _, seg := range segs {
		b.WriteString(FormatSegment(seg))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatSegment renders a segment as a transcript line.
func FormatSegment(seg types.TranscriptSegment) string {
	ts := seg.Timestamp.Format("15:04:05")
	if seg.Speaker != "" {
		return fmt.Sprintf("[%s] %s: %s", ts, seg.Speaker, seg.Text)
	}
	return fmt.Sprintf("[%s] %s", ts, seg.Text)
}

func trimToLastRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[len(runes)-maxRunes:])
}

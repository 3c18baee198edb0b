// Package assistant wires the meeting assistant together.
//
// One Assistant owns a single request queue shared by the answer client and
// the background summarizer, so every outbound provider call of a meeting
// obeys the same spacing and retry budget.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cpunion/meetassist/pkg/answer"
	"github.com/cpunion/meetassist/pkg/detect"
	"github.com/cpunion/meetassist/pkg/eventlog"
	"github.com/cpunion/meetassist/pkg/llm"
	"github.com/cpunion/meetassist/pkg/queue"
	"github.com/cpunion/meetassist/pkg/session"
	"github.com/cpunion/meetassist/pkg/summary"
	"github.com/cpunion/meetassist/pkg/types"
)

// Assistant turns a live transcript into answers and a running summary.
type Assistant struct {
	cfg Config
	log zerolog.Logger

	provider   llm.Provider
	queue      *queue.Queue
	answers    *answer.Client
	summarizer *summary.Summarizer
	detector   *detect.Detector
	events     eventlog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	pending sync.WaitGroup
}

// New creates an assistant calling provider through one queue.
func New(provider llm.Provider, cfg Config, log zerolog.Logger) *Assistant {
	if cfg.ContextSegments <= 0 {
		cfg.ContextSegments = DefaultConfig().ContextSegments
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Events == nil {
		cfg.Events = eventlog.Nop{}
	}

	a := &Assistant{
		cfg:      cfg,
		log:      log.With().Str("component", "assistant").Logger(),
		provider: provider,
		detector: detect.New(),
		events:   cfg.Events,
	}
	a.queue = queue.New(provider, cfg.Queue, log)
	a.summarizer = summary.New(a.queue, summary.Config{
		Interval:   cfg.SummaryInterval,
		MinChars:   cfg.SummaryMinChars,
		Timeout:    cfg.SummaryTimeout,
		Configured: a.IsConfigured,
		OnSummary:  a.handleSummary,
		Clock:      cfg.Clock,
	}, log)
	a.answers = answer.New(a.queue, answer.Config{
		Persona:         cfg.Persona,
		Grounding:       cfg.Grounding,
		MaxHistoryPairs: cfg.MaxHistoryPairs,
		Timeout:         cfg.AnswerTimeout,
		OnAnswer:        a.handleAnswer,
		OnError:         a.handleError,
		Clock:           cfg.Clock,
	}, log)
	a.answers.SetSummarySource(a.summarizer.Summary)
	a.answers.SetContext(cfg.Topic)
	return a
}

// SetAPIKey sets the credential that gates outbound calls. Providers
// implementing llm.KeySetter receive the key first; if that fails the
// previous key stays in effect.
func (a *Assistant) SetAPIKey(ctx context.Context, key string) error {
	if ks, ok := a.provider.(llm.KeySetter); ok {
		if err := ks.SetAPIKey(ctx, key); err != nil {
			return fmt.Errorf("set provider api key: %w", err)
		}
	}
	a.answers.SetAPIKey(key)
	return nil
}

// IsConfigured reports whether an API key is set.
func (a *Assistant) IsConfigured() bool { return a.answers.IsConfigured() }

// SetTopic sets the meeting topic.
func (a *Assistant) SetTopic(topic string) { a.answers.SetContext(topic) }

// Start runs the background summarizer until ctx is done or Stop is called.
func (a *Assistant) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return errors.New("assistant stopped")
	}
	if a.running {
		return errors.New("assistant already running")
	}
	a.running = true

	ctx, a.cancel = context.WithCancel(ctx)
	a.loops.Add(1)
	go func() {
		defer a.loops.Done()
		a.summarizer.Run(ctx)
	}()
	a.log.Info().Dur("summary_interval", a.cfg.SummaryInterval).Msg("assistant started")
	return nil
}

// Stop ends the summarizer loop, fails requests still queued, waits for
// in-flight answers and closes the event log. It is safe to call once
// Start was never called.
func (a *Assistant) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.loops.Wait()
	err := a.queue.Close()
	a.pending.Wait()

	stats := a.queue.Stats()
	a.log.Info().Interface("queue", stats).Msg("assistant stopped")
	return errors.Join(err, a.events.Close())
}

// Wait blocks until all answers started by HandleTranscript have finished.
func (a *Assistant) Wait() { a.pending.Wait() }

// HandleTranscript records a finalized transcript segment and, with
// AutoAnswer on, answers every question it contains in the background.
// It returns the detected questions.
func (a *Assistant) HandleTranscript(ctx context.Context, seg types.TranscriptSegment) []string {
	seg.Text = strings.TrimSpace(seg.Text)
	if seg.Text == "" {
		return nil
	}
	if seg.Timestamp.IsZero() {
		seg.Timestamp = a.cfg.Clock()
	}
	a.summarizer.AddSegment(seg)
	a.logEvent(eventlog.Event{
		Timestamp:  seg.Timestamp,
		Kind:       eventlog.KindTranscript,
		Speaker:    seg.Speaker,
		Transcript: seg.Text,
	})

	questions := a.detector.Extract(seg.Text)
	if !a.cfg.AutoAnswer || len(questions) == 0 {
		return questions
	}

	a.mu.Lock()
	stopped := a.stopped
	if !stopped {
		a.pending.Add(len(questions))
	}
	a.mu.Unlock()
	if stopped {
		return questions
	}

	window := a.RecentContext()
	for _, q := range questions {
		go func(q string) {
			defer a.pending.Done()
			// Errors are reported through OnError.
			_, _ = a.answers.GenerateAnswer(ctx, q, window)
		}(q)
	}
	return questions
}

// Ask answers question synchronously using the recent transcript.
func (a *Assistant) Ask(ctx context.Context, question string) (*types.AnswerResult, error) {
	return a.answers.GenerateAnswer(ctx, question, a.RecentContext())
}

// SummarizeNow runs one summary pass immediately.
func (a *Assistant) SummarizeNow(ctx context.Context) (string, bool) {
	return a.summarizer.MaybeSummarize(ctx)
}

// Summary returns the current running summary.
func (a *Assistant) Summary() string { return a.summarizer.Summary() }

// SummaryState returns a snapshot of the summarizer.
func (a *Assistant) SummaryState() types.SummaryState { return a.summarizer.State() }

// History returns the answered conversation so far.
func (a *Assistant) History() []types.ConversationTurn { return a.answers.History() }

// Snapshot copies the resumable state into sess.
func (a *Assistant) Snapshot(sess *session.Session) {
	sess.Summary = a.summarizer.State()
	sess.History = a.answers.History()
}

// Restore resumes from a saved session. Call before feeding new transcript.
func (a *Assistant) Restore(sess *session.Session) {
	if sess.Topic != "" {
		a.answers.SetContext(sess.Topic)
	}
	a.summarizer.Restore(sess.Summary)
	a.answers.RestoreHistory(sess.History)
	a.log.Info().
		Str("session", sess.ID).
		Int("segments", len(sess.Summary.TranscriptBuffer)).
		Int("turns", len(sess.History)).
		Msg("session restored")
}

// QueueStats returns queue counters.
func (a *Assistant) QueueStats() queue.Stats { return a.queue.Stats() }

// RecentContext returns the newest ContextSegments transcript lines.
func (a *Assistant) RecentContext() string {
	segs := a.summarizer.Recent(a.cfg.ContextSegments)
	lines := make([]string, 0, len(segs))
	for _, seg := range segs {
		lines = append(lines, summary.FormatSegment(seg))
	}
	return strings.Join(lines, "\n")
}

func (a *Assistant) handleAnswer(res *types.AnswerResult) {
	a.logEvent(eventlog.AnswerEvent(res))
	if a.cfg.OnAnswer != nil {
		a.cfg.OnAnswer(res)
	}
}

// handleError drops duplicate notices; the detector re-firing on the same
// utterance is expected.
func (a *Assistant) handleError(question string, err error) {
	if errors.Is(err, llm.ErrDuplicateQuestion) {
		return
	}
	a.logEvent(eventlog.Event{
		Timestamp: a.cfg.Clock(),
		Kind:      eventlog.KindError,
		Question:  question,
		Error:     err.Error(),
	})
	if a.cfg.OnError != nil {
		a.cfg.OnError(question, err)
	}
}

func (a *Assistant) handleSummary(text string) {
	a.logEvent(eventlog.Event{
		Timestamp: a.cfg.Clock(),
		Kind:      eventlog.KindSummary,
		Summary:   text,
	})
	if a.cfg.OnSummary != nil {
		a.cfg.OnSummary(text)
	}
}

func (a *Assistant) logEvent(ev eventlog.Event) {
	if err := a.events.LogEvent(ev); err != nil {
		a.log.Warn().Err(fmt.Errorf("event log: %w", err)).Str("kind", string(ev.Kind)).Msg("dropping event")
	}
}

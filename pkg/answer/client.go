// Package answer turns detected meeting questions into grounded answers.
//
// Client checks the credential gate and duplicate suppression before any
// request reaches the shared queue, replays a bounded conversation history
// on every call and parses the structured answer and its citations.
package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cpunion/meetassist/pkg/llm"
	"github.com/cpunion/meetassist/pkg/queue"
	"github.com/cpunion/meetassist/pkg/similarity"
	"github.com/cpunion/meetassist/pkg/types"
)

// Doer submits a request and waits for its result. *queue.Queue satisfies it.
type Doer interface {
	Do(ctx context.Context, req *queue.Request) (*llm.Response, error)
}

// Config holds answer client configuration.
type Config struct {
	Persona   types.Persona
	Grounding bool

	// MaxHistoryPairs bounds the replayed history, counted in
	// question/answer pairs.
	MaxHistoryPairs int

	DuplicateThreshold float64
	DuplicateCooldown  time.Duration

	// Timeout bounds a single provider call.
	Timeout time.Duration

	OnAnswer func(*types.AnswerResult)
	OnError  func(question string, err error)

	Clock func() time.Time
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Persona:            types.PersonaGeneral,
		MaxHistoryPairs:    10,
		DuplicateThreshold: 0.7,
		DuplicateCooldown:  30 * time.Second,
		Timeout:            30 * time.Second,
	}
}

// Client answers questions through a shared request queue.
type Client struct {
	doer  Doer
	cfg   Config
	log   zerolog.Logger
	dedup *similarity.Tracker

	mu      sync.Mutex
	apiKey  string
	topic   string
	summary func() string
	history []types.ConversationTurn // complete user/model pairs only
}

// New creates a client. Zero config fields fall back to DefaultConfig.
func New(doer Doer, cfg Config, log zerolog.Logger) *Client {
	def := DefaultConfig()
	if !cfg.Persona.Valid() {
		cfg.Persona = def.Persona
	}
	if cfg.MaxHistoryPairs <= 0 {
		cfg.MaxHistoryPairs = def.MaxHistoryPairs
	}
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = def.DuplicateThreshold
	}
	if cfg.DuplicateCooldown <= 0 {
		cfg.DuplicateCooldown = def.DuplicateCooldown
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Client{
		doer:  doer,
		cfg:   cfg,
		log:   log.With().Str("component", "answer").Logger(),
		dedup: similarity.NewTracker(cfg.DuplicateCooldown, cfg.DuplicateThreshold, cfg.Clock),
	}
}

// SetAPIKey sets the credential that gates all outbound calls.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey != ""
}

// SetContext sets the meeting topic included in every prompt.
func (c *Client) SetContext(meetingTopic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = meetingTopic
}

// SetSummarySource sets the function that returns the running meeting
// summary spliced into prompts.
func (c *Client) SetSummarySource(fn func() string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = fn
}

// History returns a copy of the conversation history.
func (c *Client) History() []types.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ConversationTurn(nil), c.history...)
}

// RestoreHistory replaces the history with turns from a saved session.
// Unpaired turns are dropped and the pair limit applies.
func (c *Client) RestoreHistory(turns []types.ConversationTurn) {
	var paired []types.ConversationTurn
	for i := 0; i+1 < len(turns); i++ {
		if turns[i].Role == types.RoleUser && turns[i+1].Role == types.RoleModel {
			paired = append(paired, turns[i], turns[i+1])
			i++
		}
	}
	if limit := c.cfg.MaxHistoryPairs * 2; len(paired) > limit {
		paired = paired[len(paired)-limit:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = paired
}

// Reset clears the conversation history.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// GenerateAnswer answers question using transcript as the recent context.
//
// Failures never panic: the result is nil, the error is returned and also
// delivered to OnError. llm.ErrUnconfigured and llm.ErrDuplicateQuestion are
// reported without touching the queue; callers should treat the latter as a
// soft notice.
func (c *Client) GenerateAnswer(ctx context.Context, question, transcript string) (*types.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, c.fail(question, errors.New("answer: empty question"))
	}
	if !c.IsConfigured() {
		return nil, c.fail(question, llm.ErrUnconfigured)
	}
	if c.dedup.IsDuplicate(question) {
		c.log.Debug().Str("question", question).Msg("duplicate question suppressed")
		return nil, c.fail(question, llm.ErrDuplicateQuestion)
	}

	userTurn := types.ConversationTurn{Role: types.RoleUser, Text: buildQuestion(question)}

	c.mu.Lock()
	summary := ""
	if c.summary != nil {
		summary = c.summary()
	}
	system := buildSystemInstruction(c.cfg.Persona, c.topic, summary, transcript)
	history := make([]types.ConversationTurn, 0, len(c.history)+1)
	history = append(history, c.history...)
	history = append(history, userTurn)
	c.mu.Unlock()

	req := &queue.Request{
		Question: question,
		Context:  transcript,
		Prompt: &llm.Prompt{
			SystemInstruction: system,
			History:           history,
			Grounding:         c.cfg.Grounding,
			Timeout:           c.cfg.Timeout,
		},
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, c.fail(question, err)
	}

	text := strings.TrimSpace(resp.Text)
	conclusion, rationale := parseSections(text)
	result := &types.AnswerResult{
		ID:           uuid.NewString(),
		Question:     question,
		Answer:       text,
		Conclusion:   conclusion,
		Rationale:    rationale,
		Sources:      resp.Sources,
		HasGrounding: len(resp.Sources) > 0,
		Timestamp:    c.cfg.Clock(),
	}

	c.commit(userTurn, types.ConversationTurn{Role: types.RoleModel, Text: text})

	c.log.Info().
		Str("request_id", req.ID).
		Int("sources", len(result.Sources)).
		Int("retries", req.Retries).
		Msg("answer generated")

	if c.cfg.OnAnswer != nil {
		c.cfg.OnAnswer(result)
	}
	return result, nil
}

// commit appends a completed pair and drops the oldest pairs beyond the limit.
func (c *Client) commit(user, model types.ConversationTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, user, model)
	if limit := c.cfg.MaxHistoryPairs * 2; len(c.history) > limit {
		c.history = append([]types.ConversationTurn(nil), c.history[len(c.history)-limit:]...)
	}
}

func (c *Client) fail(question string, err error) error {
	if errors.Is(err, llm.ErrDuplicateQuestion) {
		c.log.Debug().Err(err).Msg("answer skipped")
	} else {
		c.log.Error().Err(err).Str("question", question).Msg("answer failed")
	}
	if c.cfg.OnError != nil {
		c.cfg.OnError(question, err)
	}
	return err
}

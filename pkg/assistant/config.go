package assistant

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/cpunion/meetassist/pkg/eventlog"
	"github.com/cpunion/meetassist/pkg/queue"
	"github.com/cpunion/meetassist/pkg/types"
)

// Config holds assistant configuration. Scalar values can be taken from
// environment variables with the prefix "MEETASSIST_"; queue tunables use
// "MEETASSIST_QUEUE_".
type Config struct {
	Persona    types.Persona `envconfig:"PERSONA" default:"general"`
	Grounding  bool          `envconfig:"GROUNDING" default:"true"`
	AutoAnswer bool          `envconfig:"AUTO_ANSWER" default:"true"`
	Topic      string        `envconfig:"TOPIC"`

	// ContextSegments is how many recent transcript segments are sent with
	// a question.
	ContextSegments int           `envconfig:"CONTEXT_SEGMENTS" default:"20"`
	MaxHistoryPairs int           `envconfig:"MAX_HISTORY_PAIRS" default:"10"`
	AnswerTimeout   time.Duration `envconfig:"ANSWER_TIMEOUT" default:"30s"`

	SummaryInterval time.Duration `envconfig:"SUMMARY_INTERVAL" default:"60s"`
	SummaryMinChars int           `envconfig:"SUMMARY_MIN_CHARS" default:"200"`
	SummaryTimeout  time.Duration `envconfig:"SUMMARY_TIMEOUT" default:"15s"`

	Queue queue.Config `envconfig:"QUEUE"`

	Events eventlog.Logger `ignored:"true"`

	OnAnswer  func(*types.AnswerResult)         `ignored:"true"`
	OnError   func(question string, err error) `ignored:"true"`
	OnSummary func(summary string)             `ignored:"true"`

	Clock func() time.Time `ignored:"true"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Persona:         types.PersonaGeneral,
		Grounding:       true,
		AutoAnswer:      true,
		ContextSegments: 20,
		MaxHistoryPairs: 10,
		AnswerTimeout:   30 * time.Second,
		SummaryInterval: 60 * time.Second,
		SummaryMinChars: 200,
		SummaryTimeout:  15 * time.Second,
		Queue:           queue.DefaultConfig(),
	}
}

// LoadConfig populates Config from environment variables.
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("MEETASSIST", &c)
}

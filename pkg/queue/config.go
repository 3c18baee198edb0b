package queue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config groups the queue tunables. Values can be taken from environment
// variables with the prefix "MEETASSIST_QUEUE_", e.g.
// MEETASSIST_QUEUE_MIN_INTERVAL=4s MEETASSIST_QUEUE_MAX_DEPTH=32 .
type Config struct {
	// MinInterval is the minimum spacing between two provider calls.
	MinInterval time.Duration `envconfig:"MIN_INTERVAL" default:"4500ms"`

	// MaxRetries bounds how often a rate-limited request is retried; total
	// attempts are MaxRetries+1.
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`

	// RetryDelay is the linear backoff step: the n-th retry waits n*RetryDelay.
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"5s"`

	// MaxDepth rejects Enqueue with llm.ErrQueueFull once this many requests
	// are pending. Zero means unbounded.
	MaxDepth int `envconfig:"MAX_DEPTH" default:"0"`

	// OnUpdate is called with the pending depth after every enqueue and
	// completion. Leave nil if you do not care.
	OnUpdate func(depth int) `ignored:"true"`
}

// DefaultConfig returns the provider-friendly defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval: 4500 * time.Millisecond,
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
	}
}

// LoadConfig populates Config from environment variables (prefix MEETASSIST_QUEUE_).
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("MEETASSIST_QUEUE", &c)
}

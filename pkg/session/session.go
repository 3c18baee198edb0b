// Package session persists a meeting so the assistant can resume it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cpunion/meetassist/pkg/types"
)

const fileName = "session.json"

// Session is the resumable state of one meeting.
type Session struct {
	ID        string                   `json:"id"`
	Topic     string                   `json:"topic,omitempty"`
	StartedAt time.Time                `json:"started_at"`
	UpdatedAt time.Time                `json:"updated_at"`
	Summary   types.SummaryState       `json:"summary"`
	History   []types.ConversationTurn `json:"history,omitempty"`
}

// New returns an empty session started now.
func New(topic string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Topic:     topic,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Store keeps a session in a data directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the session file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Save writes sess, replacing any previous file atomically.
func (s *Store) Save(sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	sess.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, fileName+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path())
}

// Load reads the stored session. A missing file yields an error matching
// os.ErrNotExist.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, err
	}
	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path(), err)
	}
	return sess, nil
}

// LoadOrNew returns the stored session, or a new one for topic when none
// exists yet.
func (s *Store) LoadOrNew(topic string) (*Session, error) {
	sess, err := s.Load()
	if errors.Is(err, os.ErrNotExist) {
		return New(topic), nil
	}
	return sess, err
}

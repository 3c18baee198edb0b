// Package eventlog records meeting assistant events as JSON lines and turns
// them back into a meeting report.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cpunion/meetassist/pkg/types"
)

// Kind names an event type.
type Kind string

const (
	KindTranscript Kind = "transcript"
	KindAnswer     Kind = "answer"
	KindSummary    Kind = "summary"
	KindError      Kind = "error"
)

// Event is one logged occurrence during a meeting.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Kind       Kind           `json:"kind"`
	Speaker    string         `json:"speaker,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Question   string         `json:"question,omitempty"`
	Answer     string         `json:"answer,omitempty"`
	Conclusion string         `json:"conclusion,omitempty"`
	Rationale  string         `json:"rationale,omitempty"`
	Sources    []types.Source `json:"sources,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// AnswerEvent builds an answer event from a result.
func AnswerEvent(res *types.AnswerResult) Event {
	return Event{
		Timestamp:  res.Timestamp,
		Kind:       KindAnswer,
		Question:   res.Question,
		Answer:     res.Answer,
		Conclusion: res.Conclusion,
		Rationale:  res.Rationale,
		Sources:    res.Sources,
	}
}

// Logger records events.
type Logger interface {
	LogEvent(Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) LogEvent(Event) error { return nil }
func (Nop) Close() error         { return nil }

// JSONLLogger appends each event to a file as a JSON line.
type JSONLLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLLogger opens path for appending, creating parent directories.
func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLLogger{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// LogEvent writes ev and flushes.
func (l *JSONLLogger) LogEvent(ev Event) error {
	if l == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return l.writer.Flush()
}

// Close flushes and closes the file.
func (l *JSONLLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	flushErr := l.writer.Flush()
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(flushErr, closeErr)
}

// Read loads all events from a JSONL file. Blank lines are skipped.
func Read(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

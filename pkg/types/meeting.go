// Package types defines core types for the meeting assistant.
package types

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ConversationTurn is one side of a question/answer exchange kept for
// multi-turn context.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Source is a citation returned by a grounded answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// AnswerResult is a parsed answer for one question.
type AnswerResult struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`

	// Conclusion and Rationale are the [결론] and [근거] sections of Answer,
	// empty when the model ignored the format.
	Conclusion string `json:"conclusion,omitempty"`
	Rationale  string `json:"rationale,omitempty"`

	Sources      []Source  `json:"sources,omitempty"`
	HasGrounding bool      `json:"has_grounding"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecentQuestion records a question that was recently sent for answering.
type RecentQuestion struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptSegment is a finalized piece of transcribed speech.
type TranscriptSegment struct {
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker,omitempty"`
	Timestamp time.Time `json:"timestamp"` // when it was spoken
	AddedAt   time.Time `json:"added_at"`  // when it reached the assistant
}

// SummaryState is a snapshot of the running meeting summary.
type SummaryState struct {
	SummaryText      string              `json:"summary_text"`
	LastSummaryTime  time.Time           `json:"last_summary_time"`
	TranscriptBuffer []TranscriptSegment `json:"transcript_buffer"`
}

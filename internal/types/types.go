package types

import (
	"fmt"
	"strings"
	"time"
)

// Message is the canonical, normalized form of an inbound chat event.
// It is transient: the linking engine consumes it and only the derived
// Question/Answer/pair records are persisted.
type Message struct {
	ID         string    `json:"id"` // platform-stable identifier, unique
	ChannelID  string    `json:"channel_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	IsEdit     bool      `json:"is_edit,omitempty"`
}

// Validate checks if the message has valid field values
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if m.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("text is empty")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// QuestionStatus represents the lifecycle state of a question
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"     // Awaiting an answer, eligible for matching
	QuestionAnswered QuestionStatus = "answered" // Linked to exactly one answer
	QuestionExpired  QuestionStatus = "expired"  // Aged out of the answer-timeout horizon
)

// IsValid checks if the status value is valid
func (s QuestionStatus) IsValid() bool {
	switch s {
	case QuestionOpen, QuestionAnswered, QuestionExpired:
		return true
	}
	return false
}

// Question is a message classified as seeking information.
// SourceMessageID is unique in storage: at most one question per message.
type Question struct {
	ID              int64          `json:"id"`
	Text            string         `json:"text"`
	AuthorID        string         `json:"author_id"`
	AuthorName      string         `json:"author_name"`
	ChannelID       string         `json:"channel_id"`
	Timestamp       time.Time      `json:"timestamp"`
	SourceMessageID string         `json:"source_message_id"`
	Confidence      float64        `json:"confidence_score"`
	Status          QuestionStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Validate checks if the question has valid field values
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text is required")
	}
	if q.ChannelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if q.SourceMessageID == "" {
		return fmt.Errorf("source_message_id is required")
	}
	if q.Confidence < 0 || q.Confidence > 1 {
		return fmt.Errorf("confidence_score must be between 0 and 1 (got %.2f)", q.Confidence)
	}
	if !q.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", q.Status)
	}
	return nil
}

// AnswerQuality categorizes how well an answer addresses its question
type AnswerQuality string

const (
	QualityDirect     AnswerQuality = "direct"
	QualityPartial    AnswerQuality = "partial"
	QualityHelpful    AnswerQuality = "helpful"
	QualityIrrelevant AnswerQuality = "irrelevant"
)

// IsValid checks if the quality value is valid
func (q AnswerQuality) IsValid() bool {
	switch q {
	case QualityDirect, QualityPartial, QualityHelpful, QualityIrrelevant:
		return true
	}
	return false
}

// Answer is a message linked to the open question it resolves.
// An answer belongs to exactly one question; SourceMessageID is unique
// in storage so redelivery never produces a second answer row.
type Answer struct {
	ID              int64         `json:"id"`
	QuestionID      int64         `json:"question_id"`
	Text            string        `json:"text"`
	AuthorID        string        `json:"author_id"`
	AuthorName      string        `json:"author_name"`
	ChannelID       string        `json:"channel_id"`
	Timestamp       time.Time     `json:"timestamp"`
	SourceMessageID string        `json:"source_message_id"`
	Confidence      float64       `json:"confidence_score"`
	Quality         AnswerQuality `json:"answer_quality"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Validate checks if the answer has valid field values
func (a *Answer) Validate() error {
	if a.QuestionID == 0 {
		return fmt.Errorf("question_id is required")
	}
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("answer text is required")
	}
	if a.SourceMessageID == "" {
		return fmt.Errorf("source_message_id is required")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence_score must be between 0 and 1 (got %.2f)", a.Confidence)
	}
	if a.Quality != "" && !a.Quality.IsValid() {
		return fmt.Errorf("invalid answer quality: %s", a.Quality)
	}
	return nil
}

// QAPair is the denormalized (question, answer) projection kept for
// export. (Question, Answer, ChannelID) is unique in storage: deriving
// the same pair twice is a no-op.
type QAPair struct {
	ID             int64     `json:"id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	QuestionAuthor string    `json:"question_user"`
	AnswerAuthor   string    `json:"answer_user"`
	ChannelID      string    `json:"channel"`
	Timestamp      time.Time `json:"timestamp"`
	Confidence     float64   `json:"confidence_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks if the pair has valid field values
func (p *QAPair) Validate() error {
	if strings.TrimSpace(p.Question) == "" {
		return fmt.Errorf("question text is required")
	}
	if strings.TrimSpace(p.Answer) == "" {
		return fmt.Errorf("answer text is required")
	}
	if p.ChannelID == "" {
		return fmt.Errorf("channel is required")
	}
	return nil
}

// Decision is the terminal outcome of processing one message
type Decision string

const (
	DecisionQuestion Decision = "question" // Created a new open question
	DecisionAnswer   Decision = "answer"   // Linked as the answer to an open question
	DecisionIgnored  Decision = "ignored"  // Neither; recorded only as processed
)

// PairFilter narrows pair enumeration for export
type PairFilter struct {
	ChannelID string    `json:"channel,omitempty"`   // Only pairs from this channel ("" = all)
	Since     time.Time `json:"since,omitempty"`     // Only pairs at or after this time (zero = unbounded)
	Until     time.Time `json:"until,omitempty"`     // Only pairs before this time (zero = unbounded)
	Limit     int       `json:"limit,omitempty"`     // Maximum rows (0 = default 100)
}

// Statistics summarizes stored state, for status output
type Statistics struct {
	Questions         int `json:"questions"`
	OpenQuestions     int `json:"open_questions"`
	AnsweredQuestions int `json:"answered_questions"`
	ExpiredQuestions  int `json:"expired_questions"`
	Answers           int `json:"answers"`
	Pairs             int `json:"qa_pairs"`
	ProcessedMessages int `json:"processed_messages"`
	Channels          int `json:"channels"`
}

// FormatTimestamp renders a message timestamp the way transcripts show
// it, for classifier context lines.
func FormatTimestamp(t time.Time) string {
	return t.Format("15:04")
}

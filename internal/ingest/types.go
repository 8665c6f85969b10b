// Package ingest turns exported group-chat transcripts into structured
// messages, participant profiles, conversation chunks and Q&A pairs.
// Everything here is a pure function of its input.
package ingest

import "time"

// ParsedMessage is one message of an exported chat, with continuation
// lines already folded into Content.
type ParsedMessage struct {
	ID              string
	Timestamp       time.Time
	Sender          string
	Content         string
	MediaFilename   string
	IsSystemMessage bool
}

// HasMedia reports whether the message references an attachment.
func (m ParsedMessage) HasMedia() bool { return m.MediaFilename != "" }

type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseResult is the output of Parse.
type ParseResult struct {
	Messages     []ParsedMessage
	Participants []string // first-seen order
	MediaFiles   []string
	DateRange    *DateRange
	SkippedLines int
	MergedLines  int // continuation lines folded into a kept message
}

// Role is the inferred function of a chat participant.
type Role string

const (
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
	RoleUnknown  Role = "unknown"
)

// IsManagerial reports whether answers from this role carry authority.
func (r Role) IsManagerial() bool {
	switch r {
	case RoleManager, RoleAdmin:
		return true
	case RoleEmployee, RoleUnknown:
		return false
	default:
		return false
	}
}

// ParticipantProfile aggregates one sender's behaviour across a transcript.
type ParticipantProfile struct {
	Name             string
	MessageCount     int
	QuestionCount    int
	MediaCount       int
	InstructionCount int
	AvgLength        float64
	FirstSeen        time.Time
	LastSeen         time.Time
	Role             Role
	Indicators       []string
}

// Chunk is a contiguous slice of the message sequence.
type Chunk struct {
	ID           string
	Messages     []ParsedMessage
	Participants []string
	StartTime    time.Time
	EndTime      time.Time
	Topic        string // empty when no rule matched
	HasMedia     bool
	MediaFiles   []string
	CharCount    int
}

// QAPair is a question and the answer that followed it in a chunk.
type QAPair struct {
	Question    string
	QuestionBy  string
	Answer      string
	AnswerBy    string
	AnswerMedia string
	Timestamp   time.Time
	Confidence  float64
}

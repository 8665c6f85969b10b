package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type ItemType string

const (
	ItemFAQ            ItemType = "faq"
	ItemDocument       ItemType = "document"
	ItemRepeatedAnswer ItemType = "repeated_answer"
	ItemPolicy         ItemType = "policy"
	ItemProcedure      ItemType = "procedure"
)

type ItemSource string

const (
	SourceChatImport ItemSource = "chat_import"
	SourceEscalation ItemSource = "escalation"
	SourceManual     ItemSource = "manual"
)

type KnowledgeItem struct {
	ID         uuid.UUID  `json:"id"`
	CompanyID  string     `json:"company_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Type       ItemType   `json:"type"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	Tags       []string   `json:"tags"`
	Priority   int        `json:"priority"`
	IsActive   bool       `json:"is_active"`
	Source     ItemSource `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Category struct {
	ID        uuid.UUID `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	ID              uuid.UUID `json:"id"`
	KnowledgeItemID uuid.UUID `json:"knowledge_item_id"`
	Filename        string    `json:"filename"`
	URL             string    `json:"url"`
	CreatedAt       time.Time `json:"created_at"`
}

// Step is a session's position in onboarding.
type Step string

const (
	StepIntro      Step = "intro"
	StepRoleSelect Step = "role_select"
	StepComplete   Step = "complete"
)

// Role is the role a user picked during onboarding. RoleNone means not yet chosen.
type Role string

const (
	RoleNone     Role = ""
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
)

type Session struct {
	ID            uuid.UUID `json:"id"`
	CompanyID     string    `json:"company_id"`
	Phone         string    `json:"phone"`
	DisplayName   string    `json:"display_name,omitempty"`
	Step          Step      `json:"step"`
	Role          Role      `json:"role,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type EscalationStatus string

const (
	StatusPending    EscalationStatus = "pending"
	StatusInProgress EscalationStatus = "in_progress"
	StatusResolved   EscalationStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s EscalationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

type Escalation struct {
	ID                uuid.UUID        `json:"id"`
	CompanyID         string           `json:"company_id"`
	EmployeeSessionID uuid.UUID        `json:"employee_session_id"`
	EmployeeQuery     string           `json:"employee_query"`
	ManagerSessionID  *uuid.UUID       `json:"manager_session_id,omitempty"`
	Status            EscalationStatus `json:"status"`
	AssignedAt        *time.Time       `json:"assigned_at,omitempty"`
	ManagerResponse   string           `json:"manager_response,omitempty"`
	ResolvedAt        *time.Time       `json:"resolved_at,omitempty"`
	ShouldAddToKB     bool             `json:"should_add_to_kb"`
	CreatedAt         time.Time        `json:"created_at"`
}

type QueryLog struct {
	ID              uuid.UUID  `json:"id"`
	CompanyID       string     `json:"company_id"`
	SessionID       uuid.UUID  `json:"session_id"`
	Query           string     `json:"query"`
	Answer          string     `json:"answer,omitempty"`
	Confidence      float64    `json:"confidence"`
	Escalated       bool       `json:"escalated"`
	KnowledgeItemID *uuid.UUID `json:"knowledge_item_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
}

// Analytics summarizes query and escalation volume since a point in time.
type Analytics struct {
	Since              time.Time
	Queries            int
	Escalated          int
	AvgConfidence      float64
	EscalationsOpened  int
	EscalationsPending int
	EscalationsClosed  int
}

func errInvalidStatus(s EscalationStatus) error {
	return fmt.Errorf("invalid escalation status %q", s)
}

package hermes

import "time"

const (
	SubjectInboundMessage     = "askops.inbound.message"
	SubjectEscalationCreated  = "askops.escalation.created"
	SubjectEscalationAssigned = "askops.escalation.assigned"
	SubjectEscalationResolved = "askops.escalation.resolved"
	SubjectKnowledgeCreated   = "askops.knowledge.created"
	SubjectImportCompleted    = "askops.import.completed"
)

// InboundMessage is a user message received by the channel gateway.
type InboundMessage struct {
	CompanyID   string    `json:"company_id"`
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	ButtonID    string    `json:"button_id,omitempty"`
	MediaURLs   []string  `json:"media_urls,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

type EscalationEvent struct {
	EscalationID     string    `json:"escalation_id"`
	CompanyID        string    `json:"company_id"`
	Status           string    `json:"status"`
	ManagerSessionID string    `json:"manager_session_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type KnowledgeEvent struct {
	ItemID    string    `json:"item_id"`
	CompanyID string    `json:"company_id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

type ImportEvent struct {
	CompanyID         string    `json:"company_id"`
	Messages          int       `json:"messages"`
	Pairs             int       `json:"pairs"`
	CategoriesCreated int       `json:"categories_created"`
	ItemsCreated      int       `json:"items_created"`
	Errors            int       `json:"errors"`
	DryRun            bool      `json:"dry_run"`
	Timestamp         time.Time `json:"timestamp"`
}

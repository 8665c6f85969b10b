// Package query answers live employee questions from the knowledge base and
// escalates the ones it cannot answer with confidence.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/confidence"
	"github.com/MikeSquared-Agency/askops/internal/llm"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

const (
	// NoMatchConfidence is reported when no knowledge item matched the query.
	NoMatchConfidence = 0.3
	// FailureConfidence is reported when the completion service failed.
	FailureConfidence = 0.1

	defaultSearchLimit = 5
	minTermRunes       = 3
)

const (
	noMatchMessage       = "לא מצאתי מידע על זה במאגר הידע."
	lowConfidenceMessage = "אני לא בטוח מספיק בתשובה לשאלה הזו 🤔"
	assignedNotice       = "העברתי את השאלה למנהל, הוא יחזור אליך בהקדם."
	pendingNotice        = "העברתי את השאלה להנהלה. כרגע אין מנהל זמין, ואחזור אליך ברגע שתתקבל תשובה."
)

// deflections mark answers where the model admitted the context was insufficient.
var deflections = []string{
	"didn't find", "did not find", "couldn't", "could not", "don't have", "do not have",
	"no information", "not sure",
	"לא מצאתי", "לא הצלחתי", "אין לי", "אין מידע", "לא יודע", "אינני יודע",
}

// Store is the persistence surface the handler needs.
type Store interface {
	GetSessionByID(ctx context.Context, id uuid.UUID) (store.Session, error)
	FindActiveItemsByKeyword(ctx context.Context, companyID string, terms []string, limit int) ([]store.KnowledgeItem, error)
	ListAttachments(ctx context.Context, itemID uuid.UUID) ([]store.Attachment, error)
	CreateQueryLog(ctx context.Context, l store.QueryLog) (store.QueryLog, error)
	UpdateQueryLog(ctx context.Context, l store.QueryLog) error
}

// Escalator hands a question to a human.
type Escalator interface {
	CreateEscalation(ctx context.Context, employeeSessionID uuid.UUID, query string) (store.Escalation, bool, error)
}

// Answerer produces an answer from knowledge. It never returns an error;
// failures are reported through Completion.Failed.
type Answerer interface {
	Answer(ctx context.Context, knowledge, query string) llm.Completion
}

// Options tunes the handler.
type Options struct {
	Threshold   float64
	Weights     confidence.AnswerWeights
	SearchLimit int
}

// Response is what the employee receives for one question.
type Response struct {
	Messages        []string
	MediaURLs       []string
	Confidence      float64
	Escalated       bool
	Assigned        bool
	KnowledgeItemID *uuid.UUID
	EscalationID    *uuid.UUID
}

type Handler struct {
	store     Store
	answerer  Answerer
	escalator Escalator
	opts      Options
	now       func() time.Time
	logger    *slog.Logger
}

func NewHandler(s Store, a Answerer, e Escalator, opts Options, logger *slog.Logger) *Handler {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	return &Handler{
		store:     s,
		answerer:  a,
		escalator: e,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// Handle answers query on behalf of the employee session.
func (h *Handler) Handle(ctx context.Context, sessionID uuid.UUID, query string) (Response, error) {
	sess, err := h.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return Response{}, fmt.Errorf("session %s: %w", sessionID, err)
	}

	logEntry, err := h.store.CreateQueryLog(ctx, store.QueryLog{
		CompanyID: sess.CompanyID,
		SessionID: sess.ID,
		Query:     query,
	})
	if err != nil {
		h.logger.Warn("query log write failed", "session_id", sessionID, "error", err)
	}

	resp, answer, err := h.answer(ctx, sess, query)
	if err != nil {
		return Response{}, err
	}

	if logEntry.ID != uuid.Nil {
		answeredAt := h.now()
		logEntry.Answer = answer
		logEntry.Confidence = resp.Confidence
		logEntry.Escalated = resp.Escalated
		logEntry.KnowledgeItemID = resp.KnowledgeItemID
		logEntry.AnsweredAt = &answeredAt
		if err := h.store.UpdateQueryLog(ctx, logEntry); err != nil {
			h.logger.Warn("query log update failed", "query_log_id", logEntry.ID, "error", err)
		}
	}

	h.logger.Info("query handled",
		"company_id", sess.CompanyID,
		"session_id", sess.ID,
		"confidence", resp.Confidence,
		"escalated", resp.Escalated,
	)
	return resp, nil
}

func (h *Handler) answer(ctx context.Context, sess store.Session, query string) (Response, string, error) {
	items, err := h.store.FindActiveItemsByKeyword(ctx, sess.CompanyID, SearchTerms(query), h.opts.SearchLimit)
	if err != nil {
		// A store outage is treated like an empty result: the question goes
		// to a human rather than being answered from nothing.
		h.logger.Error("knowledge search failed", "company_id", sess.CompanyID, "error", err)
		items = nil
	}

	if len(items) == 0 {
		return h.escalate(ctx, sess, query, NoMatchConfidence, noMatchMessage)
	}

	completion := h.answerer.Answer(ctx, BuildContext(items), query)
	if completion.Failed {
		return h.escalate(ctx, sess, query, FailureConfidence, completion.Text)
	}

	score := h.opts.Weights.ScoreAnswer(confidence.AnswerInput{
		AnswerLen:       len(completion.Text),
		Deflected:       IsDeflection(completion.Text),
		MatchedItems:    len(items),
		HighPriorityHit: hasHighPriority(items),
	})
	if score < h.opts.Threshold {
		return h.escalate(ctx, sess, query, score, lowConfidenceMessage)
	}

	best := items[0]
	resp := Response{
		Messages:        []string{completion.Text},
		Confidence:      score,
		KnowledgeItemID: &best.ID,
	}
	atts, err := h.store.ListAttachments(ctx, best.ID)
	if err != nil {
		h.logger.Warn("attachment lookup failed", "item_id", best.ID, "error", err)
	}
	for _, a := range atts {
		resp.MediaURLs = append(resp.MediaURLs, a.URL)
	}
	return resp, completion.Text, nil
}

func (h *Handler) escalate(ctx context.Context, sess store.Session, query string, score float64, lead string) (Response, string, error) {
	e, assigned, err := h.escalator.CreateEscalation(ctx, sess.ID, query)
	if err != nil {
		return Response{}, "", fmt.Errorf("escalate: %w", err)
	}

	resp := Response{
		Confidence:   score,
		Escalated:    true,
		Assigned:     assigned,
		EscalationID: &e.ID,
	}
	if lead == llm.FallbackAnswer {
		resp.Messages = []string{lead}
	} else if assigned {
		resp.Messages = []string{lead, assignedNotice}
	} else {
		resp.Messages = []string{lead, pendingNotice}
	}
	return resp, lead, nil
}

// SearchTerms returns the full query followed by its distinct tokens longer
// than two characters.
func SearchTerms(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	terms := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, tok := range strings.Fields(query) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(tok) < minTermRunes {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, tok)
	}
	return terms
}

// BuildContext concatenates items into the knowledge block passed to the model.
func BuildContext(items []store.KnowledgeItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", it.Title, it.Content)
	}
	return b.String()
}

// IsDeflection reports whether answer admits it could not find the answer.
func IsDeflection(answer string) bool {
	lower := strings.ToLower(answer)
	for _, d := range deflections {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

func hasHighPriority(items []store.KnowledgeItem) bool {
	for _, it := range items {
		if it.Priority > 0 {
			return true
		}
	}
	return false
}

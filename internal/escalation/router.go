// Package escalation hands low-confidence questions to human managers and
// folds their answers back into the knowledge base.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/lock"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

// claimAttempts bounds how often ClaimOldestPending retries after losing a race.
const claimAttempts = 3

var (
	// ErrNotManager is returned when an assignee is not an active, onboarded
	// manager of the escalation's company.
	ErrNotManager = errors.New("assignee is not an active manager of the company")
	// ErrEmptyResponse is returned when a resolution carries neither text nor media.
	ErrEmptyResponse = errors.New("manager response is empty")
)

// Store is the persistence surface the router needs.
type Store interface {
	GetSessionByID(ctx context.Context, id uuid.UUID) (store.Session, error)
	ListActiveManagers(ctx context.Context, companyID string) ([]store.Session, error)
	CountInProgressByManager(ctx context.Context, companyID string) (map[uuid.UUID]int, error)
	CreateEscalation(ctx context.Context, e store.Escalation) (store.Escalation, error)
	GetEscalation(ctx context.Context, id uuid.UUID) (store.Escalation, error)
	AssignEscalation(ctx context.Context, id, managerID uuid.UUID, at time.Time) (bool, error)
	ResolveEscalation(ctx context.Context, id uuid.UUID, response string, at time.Time) (bool, error)
	OldestPending(ctx context.Context, companyID string) (store.Escalation, error)
	ListEscalations(ctx context.Context, companyID string, status store.EscalationStatus) ([]store.Escalation, error)
	CreateItem(ctx context.Context, item store.KnowledgeItem) (store.KnowledgeItem, error)
	CreateAttachment(ctx context.Context, a store.Attachment) (store.Attachment, error)
}

// Router creates, assigns and resolves escalations.
type Router struct {
	store     Store
	locker    lock.Locker
	publisher hermes.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewRouter(s Store, locker lock.Locker, pub hermes.Publisher, logger *slog.Logger) *Router {
	if pub == nil {
		pub = hermes.Nop{}
	}
	return &Router{
		store:     s,
		locker:    locker,
		publisher: pub,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock overrides the time source.
func (r *Router) SetClock(now func() time.Time) { r.now = now }

func companyKey(companyID string) string { return "company:" + companyID }

// CreateEscalation records query as an escalation for the employee's company.
// It is assigned to the least-busy active manager when one exists and left
// pending otherwise. The returned bool reports whether it was assigned.
func (r *Router) CreateEscalation(ctx context.Context, employeeSessionID uuid.UUID, query string) (store.Escalation, bool, error) {
	employee, err := r.store.GetSessionByID(ctx, employeeSessionID)
	if err != nil {
		return store.Escalation{}, false, fmt.Errorf("employee session %s: %w", employeeSessionID, err)
	}

	unlock, err := r.locker.Lock(ctx, companyKey(employee.CompanyID))
	if err != nil {
		return store.Escalation{}, false, fmt.Errorf("lock company %s: %w", employee.CompanyID, err)
	}
	defer unlock()

	manager, ok, err := r.leastBusy(ctx, employee.CompanyID)
	if err != nil {
		return store.Escalation{}, false, err
	}

	e := store.Escalation{
		CompanyID:         employee.CompanyID,
		EmployeeSessionID: employee.ID,
		EmployeeQuery:     query,
		Status:            store.StatusPending,
		ShouldAddToKB:     true,
	}
	if ok {
		at := r.now()
		mgr := manager.ID
		e.Status = store.StatusInProgress
		e.ManagerSessionID = &mgr
		e.AssignedAt = &at
	}

	created, err := r.store.CreateEscalation(ctx, e)
	if err != nil {
		return store.Escalation{}, false, fmt.Errorf("create escalation: %w", err)
	}

	r.logger.Info("escalation created",
		"escalation_id", created.ID,
		"company_id", created.CompanyID,
		"status", created.Status,
		"assigned", ok,
	)
	r.publish(hermes.SubjectEscalationCreated, created)
	return created, ok, nil
}

// leastBusy picks the active manager holding the fewest in-progress
// escalations. Ties go to the earliest manager in store order.
func (r *Router) leastBusy(ctx context.Context, companyID string) (store.Session, bool, error) {
	managers, err := r.store.ListActiveManagers(ctx, companyID)
	if err != nil {
		return store.Session{}, false, fmt.Errorf("list managers: %w", err)
	}
	if len(managers) == 0 {
		return store.Session{}, false, nil
	}
	counts, err := r.store.CountInProgressByManager(ctx, companyID)
	if err != nil {
		return store.Session{}, false, fmt.Errorf("count in-progress: %w", err)
	}

	best := managers[0]
	for _, m := range managers[1:] {
		if counts[m.ID] < counts[best.ID] {
			best = m
		}
	}
	return best, true, nil
}

// ResolveResult reports what ResolveEscalation did.
type ResolveResult struct {
	Resolved        bool
	Escalation      store.Escalation
	KnowledgeItemID *uuid.UUID
}

// ResolveEscalation closes an in-progress escalation with the manager's
// response. Escalations in any other status are left untouched and reported
// with Resolved=false.
func (r *Router) ResolveEscalation(ctx context.Context, id uuid.UUID, response string, mediaURLs []string) (ResolveResult, error) {
	if strings.TrimSpace(response) == "" && len(mediaURLs) == 0 {
		return ResolveResult{}, ErrEmptyResponse
	}
	ok, err := r.store.ResolveEscalation(ctx, id, response, r.now())
	if err != nil {
		return ResolveResult{}, fmt.Errorf("resolve escalation %s: %w", id, err)
	}
	e, err := r.store.GetEscalation(ctx, id)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("reload escalation %s: %w", id, err)
	}
	if !ok {
		r.logger.Warn("resolve skipped", "escalation_id", id, "status", e.Status)
		return ResolveResult{Resolved: false, Escalation: e}, nil
	}

	result := ResolveResult{Resolved: true, Escalation: e}
	r.publish(hermes.SubjectEscalationResolved, e)

	if !e.ShouldAddToKB {
		return result, nil
	}

	item, err := r.store.CreateItem(ctx, store.KnowledgeItem{
		CompanyID: e.CompanyID,
		Title:     e.EmployeeQuery,
		Content:   fmt.Sprintf("שאלה: %s\nתשובה: %s", e.EmployeeQuery, response),
		Type:      store.ItemFAQ,
		Tags:      []string{"escalation", "manager-answer", "auto-generated"},
		Priority:  1,
		IsActive:  true,
		Source:    store.SourceEscalation,
	})
	if err != nil {
		// The escalation is already resolved; a failed write-back only costs
		// the knowledge base this one entry.
		r.logger.Error("knowledge write-back failed", "escalation_id", id, "error", err)
		return result, nil
	}
	result.KnowledgeItemID = &item.ID

	for i, u := range mediaURLs {
		if _, err := r.store.CreateAttachment(ctx, store.Attachment{
			KnowledgeItemID: item.ID,
			Filename:        mediaFilename(u, i),
			URL:             u,
		}); err != nil {
			r.logger.Warn("attachment write failed", "item_id", item.ID, "url", u, "error", err)
		}
	}

	r.logger.Info("escalation resolved", "escalation_id", id, "knowledge_item_id", item.ID)
	if err := r.publisher.Publish(hermes.SubjectKnowledgeCreated, hermes.KnowledgeEvent{
		ItemID:    item.ID.String(),
		CompanyID: item.CompanyID,
		Type:      string(item.Type),
		Source:    string(item.Source),
		Title:     item.Title,
		Timestamp: r.now(),
	}); err != nil {
		r.logger.Warn("publish failed", "subject", hermes.SubjectKnowledgeCreated, "error", err)
	}
	return result, nil
}

// AssignEscalationToManager claims a pending escalation for managerID. It
// returns false without changing anything when the escalation is no longer
// pending, and ErrNotManager when managerID cannot answer it.
func (r *Router) AssignEscalationToManager(ctx context.Context, id, managerID uuid.UUID) (bool, error) {
	e, err := r.store.GetEscalation(ctx, id)
	if err != nil {
		return false, fmt.Errorf("escalation %s: %w", id, err)
	}
	if err := r.checkManager(ctx, e.CompanyID, managerID); err != nil {
		return false, err
	}

	ok, err := r.store.AssignEscalation(ctx, id, managerID, r.now())
	if err != nil {
		return false, fmt.Errorf("assign escalation %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	if e, err := r.store.GetEscalation(ctx, id); err == nil {
		r.publish(hermes.SubjectEscalationAssigned, e)
	}
	return true, nil
}

func (r *Router) checkManager(ctx context.Context, companyID string, managerID uuid.UUID) error {
	mgr, err := r.store.GetSessionByID(ctx, managerID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("manager session %s: %w", managerID, ErrNotManager)
	}
	if err != nil {
		return fmt.Errorf("manager session %s: %w", managerID, err)
	}
	if mgr.CompanyID != companyID || mgr.Role != store.RoleManager || mgr.Step != store.StepComplete || !mgr.IsActive {
		return fmt.Errorf("manager session %s: %w", managerID, ErrNotManager)
	}
	return nil
}

// ClaimOldestPending assigns the company's oldest pending escalation to
// managerID. It returns store.ErrNotFound when nothing is pending.
func (r *Router) ClaimOldestPending(ctx context.Context, companyID string, managerID uuid.UUID) (store.Escalation, error) {
	unlock, err := r.locker.Lock(ctx, companyKey(companyID))
	if err != nil {
		return store.Escalation{}, fmt.Errorf("lock company %s: %w", companyID, err)
	}
	defer unlock()

	for attempt := 0; attempt < claimAttempts; attempt++ {
		e, err := r.store.OldestPending(ctx, companyID)
		if err != nil {
			return store.Escalation{}, err
		}
		ok, err := r.AssignEscalationToManager(ctx, e.ID, managerID)
		if err != nil {
			return store.Escalation{}, err
		}
		if ok {
			return r.store.GetEscalation(ctx, e.ID)
		}
		r.logger.Debug("lost claim race", "escalation_id", e.ID, "attempt", attempt+1)
	}
	return store.Escalation{}, store.ErrNotFound
}

// AssignPending assigns every pending escalation of the company least-busy
// first and returns the escalations it assigned.
func (r *Router) AssignPending(ctx context.Context, companyID string) ([]store.Escalation, error) {
	unlock, err := r.locker.Lock(ctx, companyKey(companyID))
	if err != nil {
		return nil, fmt.Errorf("lock company %s: %w", companyID, err)
	}
	defer unlock()

	pending, err := r.store.ListEscalations(ctx, companyID, store.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	var assigned []store.Escalation
	for _, e := range pending {
		manager, ok, err := r.leastBusy(ctx, companyID)
		if err != nil {
			return assigned, err
		}
		if !ok {
			break
		}
		claimed, err := r.AssignEscalationToManager(ctx, e.ID, manager.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return assigned, err
		}
		if !claimed {
			continue
		}
		if updated, err := r.store.GetEscalation(ctx, e.ID); err == nil {
			assigned = append(assigned, updated)
		}
	}
	if len(assigned) > 0 {
		r.logger.Info("pending escalations assigned", "company_id", companyID, "count", len(assigned))
	}
	return assigned, nil
}

// Get returns a single escalation.
func (r *Router) Get(ctx context.Context, id uuid.UUID) (store.Escalation, error) {
	return r.store.GetEscalation(ctx, id)
}

func (r *Router) publish(subject string, e store.Escalation) {
	evt := hermes.EscalationEvent{
		EscalationID: e.ID.String(),
		CompanyID:    e.CompanyID,
		Status:       string(e.Status),
		Timestamp:    r.now(),
	}
	if e.ManagerSessionID != nil {
		evt.ManagerSessionID = e.ManagerSessionID.String()
	}
	if err := r.publisher.Publish(subject, evt); err != nil {
		r.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}

func mediaFilename(rawURL string, idx int) string {
	if i := strings.LastIndex(rawURL, "/"); i >= 0 && i < len(rawURL)-1 {
		return rawURL[i+1:]
	}
	return fmt.Sprintf("media-%d", idx+1)
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemory_FindActiveItemsByKeyword(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	low, _ := m.CreateItem(ctx, KnowledgeItem{CompanyID: "acme", Title: "Opening hours", Content: "We open at 8", Type: ItemFAQ})
	high, _ := m.CreateItem(ctx, KnowledgeItem{CompanyID: "acme", Title: "Holiday hours", Content: "Closed on holidays", Type: ItemFAQ, Priority: 1})
	_, _ = m.CreateItem(ctx, KnowledgeItem{CompanyID: "other", Title: "Opening hours", Content: "9-17", Type: ItemFAQ})
	deleted, _ := m.CreateItem(ctx, KnowledgeItem{CompanyID: "acme", Title: "Old hours", Content: "obsolete", Type: ItemFAQ})
	if err := m.SoftDeleteItem(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDeleteItem: %v", err)
	}

	got, err := m.FindActiveItemsByKeyword(ctx, "acme", []string{"HOURS"}, 5)
	if err != nil {
		t.Fatalf("FindActiveItemsByKeyword: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].ID != high.ID || got[1].ID != low.ID {
		t.Errorf("expected priority order [high, low], got [%s, %s]", got[0].Title, got[1].Title)
	}

	limited, _ := m.FindActiveItemsByKeyword(ctx, "acme", []string{"hours"}, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit to cap results at 1, got %d", len(limited))
	}

	none, _ := m.FindActiveItemsByKeyword(ctx, "acme", []string{"  "}, 5)
	if len(none) != 0 {
		t.Errorf("blank terms matched %d items", len(none))
	}
}

func TestMemory_SoftDeleteMissing(t *testing.T) {
	m := NewMemory()
	if err := m.SoftDeleteItem(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_CategoriesAreIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.FindCategoryByName(ctx, "acme", "משמרות"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before create, got %v", err)
	}
	first, _ := m.CreateCategory(ctx, "acme", "משמרות")
	second, _ := m.CreateCategory(ctx, "acme", "משמרות")
	if first.ID != second.ID {
		t.Error("creating the same category twice produced two rows")
	}

	catID := first.ID
	_, _ = m.CreateItem(ctx, KnowledgeItem{CompanyID: "acme", Title: "in category", CategoryID: &catID})
	_, _ = m.CreateItem(ctx, KnowledgeItem{CompanyID: "acme", Title: "uncategorized"})

	inCat, _ := m.ListItemsByCategory(ctx, "acme", &catID)
	if len(inCat) != 1 || inCat[0].Title != "in category" {
		t.Errorf("category listing = %+v", inCat)
	}
	all, _ := m.ListItemsByCategory(ctx, "acme", nil)
	if len(all) != 2 {
		t.Errorf("expected 2 items without filter, got %d", len(all))
	}
}

func TestMemory_SessionsUniquePerCompanyPhone(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, _ := m.CreateSession(ctx, Session{CompanyID: "acme", Phone: "+972501"})
	b, _ := m.CreateSession(ctx, Session{CompanyID: "acme", Phone: "+972501"})
	c, _ := m.CreateSession(ctx, Session{CompanyID: "other", Phone: "+972501"})

	if a.ID != b.ID {
		t.Error("same (company, phone) produced two sessions")
	}
	if a.ID == c.ID {
		t.Error("different companies shared a session")
	}
	if a.Step != StepIntro {
		t.Errorf("new session step = %s, want intro", a.Step)
	}
}

func TestMemory_AssignAndResolveGuards(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	emp, _ := m.CreateSession(ctx, Session{CompanyID: "acme", Phone: "1"})
	mgr, _ := m.CreateSession(ctx, Session{CompanyID: "acme", Phone: "2"})
	e, _ := m.CreateEscalation(ctx, Escalation{CompanyID: "acme", EmployeeSessionID: emp.ID, EmployeeQuery: "q", Status: StatusPending})

	if ok, _ := m.ResolveEscalation(ctx, e.ID, "early", now); ok {
		t.Error("resolved a pending escalation")
	}
	if ok, err := m.AssignEscalation(ctx, e.ID, mgr.ID, now); !ok || err != nil {
		t.Fatalf("AssignEscalation = %v, %v", ok, err)
	}
	if ok, _ := m.AssignEscalation(ctx, e.ID, mgr.ID, now); ok {
		t.Error("assigned an escalation twice")
	}

	found, err := m.FindInProgressForManager(ctx, mgr.ID)
	if err != nil || found.ID != e.ID {
		t.Fatalf("FindInProgressForManager = %v, %v", found.ID, err)
	}

	if ok, _ := m.ResolveEscalation(ctx, e.ID, "answer", now.Add(time.Minute)); !ok {
		t.Fatal("expected resolve to succeed")
	}
	if ok, _ := m.ResolveEscalation(ctx, e.ID, "again", now.Add(time.Hour)); ok {
		t.Error("resolved an escalation twice")
	}
	got, _ := m.GetEscalation(ctx, e.ID)
	if got.ManagerResponse != "answer" || !got.ResolvedAt.Equal(now.Add(time.Minute)) {
		t.Errorf("second resolve changed the record: %+v", got)
	}

	if _, err := m.AssignEscalation(ctx, uuid.New(), mgr.ID, now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown escalation, got %v", err)
	}
}

func TestMemory_CreateEscalationRejectsUnknownStatus(t *testing.T) {
	m := NewMemory()
	if _, err := m.CreateEscalation(context.Background(), Escalation{CompanyID: "acme", Status: "open"}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestMemory_OldestPendingAndCompanies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	emp, _ := m.CreateSession(ctx, Session{CompanyID: "acme", Phone: "1"})

	first, _ := m.CreateEscalation(ctx, Escalation{CompanyID: "acme", EmployeeSessionID: emp.ID, EmployeeQuery: "first", Status: StatusPending})
	_, _ = m.CreateEscalation(ctx, Escalation{CompanyID: "acme", EmployeeSessionID: emp.ID, EmployeeQuery: "second", Status: StatusPending})
	_, _ = m.CreateEscalation(ctx, Escalation{CompanyID: "beta", EmployeeSessionID: emp.ID, EmployeeQuery: "third", Status: StatusPending})

	oldest, err := m.OldestPending(ctx, "acme")
	if err != nil || oldest.ID != first.ID {
		t.Errorf("OldestPending = %v, %v; want first", oldest.EmployeeQuery, err)
	}
	companies, _ := m.PendingCompanies(ctx)
	if len(companies) != 2 || companies[0] != "acme" || companies[1] != "beta" {
		t.Errorf("PendingCompanies = %v", companies)
	}
	if _, err := m.OldestPending(ctx, "gamma"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_Analytics(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now.Add(-10 * 24 * time.Hour) })

	emp, _ := m.CreateSession(ctx, Session{CompanyID: "acme", Phone: "1"})
	_, _ = m.CreateQueryLog(ctx, QueryLog{CompanyID: "acme", SessionID: emp.ID, Query: "old", Confidence: 0.9})

	m.SetClock(func() time.Time { return now })
	_, _ = m.CreateQueryLog(ctx, QueryLog{CompanyID: "acme", SessionID: emp.ID, Query: "a", Confidence: 0.8})
	_, _ = m.CreateQueryLog(ctx, QueryLog{CompanyID: "acme", SessionID: emp.ID, Query: "b", Confidence: 0.4, Escalated: true})
	_, _ = m.CreateEscalation(ctx, Escalation{CompanyID: "acme", EmployeeSessionID: emp.ID, EmployeeQuery: "b", Status: StatusPending})

	a, err := m.Analytics(ctx, "acme", now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.Queries != 2 || a.Escalated != 1 {
		t.Errorf("queries/escalated = %d/%d, want 2/1", a.Queries, a.Escalated)
	}
	if a.AvgConfidence < 0.59 || a.AvgConfidence > 0.61 {
		t.Errorf("avg confidence = %v, want 0.6", a.AvgConfidence)
	}
	if a.EscalationsOpened != 1 || a.EscalationsPending != 1 {
		t.Errorf("escalations = %+v", a)
	}
}

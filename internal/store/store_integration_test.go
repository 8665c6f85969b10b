//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Postgres {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_KnowledgeItems(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	company := "it-" + uuid.New().String()[:8]

	cat, err := s.CreateCategory(ctx, company, "שעות פעילות")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	again, err := s.CreateCategory(ctx, company, "שעות פעילות")
	if err != nil || again.ID != cat.ID {
		t.Fatalf("CreateCategory not idempotent: %v %v", again.ID, err)
	}

	item, err := s.CreateItem(ctx, KnowledgeItem{
		CompanyID: company, Title: "מה שעות הפעילות?", Content: "פתוח 8-20",
		Type: ItemFAQ, CategoryID: &cat.ID, Tags: []string{"peer-answer"}, Source: SourceChatImport,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	found, err := s.FindActiveItemsByKeyword(ctx, company, []string{"8-20"}, 5)
	if err != nil {
		t.Fatalf("FindActiveItemsByKeyword: %v", err)
	}
	if len(found) != 1 || found[0].ID != item.ID {
		t.Fatalf("expected to find created item, got %+v", found)
	}

	if _, err := s.CreateAttachment(ctx, Attachment{KnowledgeItemID: item.ID, Filename: "hours.jpg", URL: "https://cdn/hours.jpg"}); err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}
	atts, err := s.ListAttachments(ctx, item.ID)
	if err != nil || len(atts) != 1 {
		t.Fatalf("ListAttachments = %v, %v", atts, err)
	}

	if err := s.SoftDeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("SoftDeleteItem: %v", err)
	}
	n, _ := s.CountActiveItems(ctx, company)
	if n != 0 {
		t.Errorf("expected 0 active items after soft delete, got %d", n)
	}
}

func TestIntegration_EscalationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	company := "it-" + uuid.New().String()[:8]

	emp, err := s.CreateSession(ctx, Session{CompanyID: company, Phone: "+1000"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	mgr, _ := s.CreateSession(ctx, Session{CompanyID: company, Phone: "+2000"})
	mgr.Step, mgr.Role = StepComplete, RoleManager
	if err := s.UpdateSession(ctx, mgr); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	e, err := s.CreateEscalation(ctx, Escalation{CompanyID: company, EmployeeSessionID: emp.ID, EmployeeQuery: "q", Status: StatusPending, ShouldAddToKB: true})
	if err != nil {
		t.Fatalf("CreateEscalation: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if ok, err := s.AssignEscalation(ctx, e.ID, mgr.ID, now); !ok || err != nil {
		t.Fatalf("AssignEscalation = %v, %v", ok, err)
	}
	if ok, _ := s.AssignEscalation(ctx, e.ID, mgr.ID, now); ok {
		t.Error("second assignment succeeded")
	}

	counts, _ := s.CountInProgressByManager(ctx, company)
	if counts[mgr.ID] != 1 {
		t.Errorf("in-progress count = %d, want 1", counts[mgr.ID])
	}

	if ok, err := s.ResolveEscalation(ctx, e.ID, "answer", now); !ok || err != nil {
		t.Fatalf("ResolveEscalation = %v, %v", ok, err)
	}
	if ok, _ := s.ResolveEscalation(ctx, e.ID, "again", now.Add(time.Hour)); ok {
		t.Error("second resolve succeeded")
	}

	if _, err := s.GetEscalation(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const escalationColumns = `id, company_id, employee_session_id, employee_query, manager_session_id, status,
	assigned_at, manager_response, resolved_at, should_add_to_kb, created_at`

func scanEscalation(row pgx.Row) (Escalation, error) {
	var e Escalation
	err := row.Scan(&e.ID, &e.CompanyID, &e.EmployeeSessionID, &e.EmployeeQuery, &e.ManagerSessionID, &e.Status,
		&e.AssignedAt, &e.ManagerResponse, &e.ResolvedAt, &e.ShouldAddToKB, &e.CreatedAt)
	return e, err
}

func (s *Postgres) CreateEscalation(ctx context.Context, e Escalation) (Escalation, error) {
	if !e.Status.Valid() {
		return Escalation{}, errInvalidStatus(e.Status)
	}
	e.ID = uuid.New()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO escalations (id, company_id, employee_session_id, employee_query, manager_session_id, status,
			assigned_at, should_add_to_kb, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at`,
		e.ID, e.CompanyID, e.EmployeeSessionID, e.EmployeeQuery, e.ManagerSessionID, e.Status, e.AssignedAt, e.ShouldAddToKB,
	).Scan(&e.CreatedAt)
	if err != nil {
		return Escalation{}, fmt.Errorf("insert escalation: %w", err)
	}
	return e, nil
}

func (s *Postgres) GetEscalation(ctx context.Context, id uuid.UUID) (Escalation, error) {
	e, err := scanEscalation(s.pool.QueryRow(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id))
	if err != nil {
		return Escalation{}, notFound(err)
	}
	return e, nil
}

func (s *Postgres) CountInProgressByManager(ctx context.Context, companyID string) (map[uuid.UUID]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT manager_session_id, count(*)
		FROM escalations
		WHERE company_id = $1 AND status = 'in_progress' AND manager_session_id IS NOT NULL
		GROUP BY manager_session_id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("count in-progress escalations: %w", err)
	}
	defer rows.Close()
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan escalation count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// AssignEscalation moves a pending escalation to in_progress. It reports
// false when the escalation was no longer pending.
func (s *Postgres) AssignEscalation(ctx context.Context, id, managerID uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalations
		SET status = 'in_progress', manager_session_id = $2, assigned_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, managerID, at,
	)
	if err != nil {
		return false, fmt.Errorf("assign escalation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetEscalation(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ResolveEscalation moves an in_progress escalation to resolved. It reports
// false when the escalation was not in progress.
func (s *Postgres) ResolveEscalation(ctx context.Context, id uuid.UUID, response string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalations
		SET status = 'resolved', manager_response = $2, resolved_at = $3
		WHERE id = $1 AND status = 'in_progress'`,
		id, response, at,
	)
	if err != nil {
		return false, fmt.Errorf("resolve escalation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetEscalation(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Postgres) FindInProgressForManager(ctx context.Context, managerID uuid.UUID) (Escalation, error) {
	e, err := scanEscalation(s.pool.QueryRow(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE manager_session_id = $1 AND status = 'in_progress'
		ORDER BY assigned_at DESC, created_at DESC
		LIMIT 1`, managerID))
	if err != nil {
		return Escalation{}, notFound(err)
	}
	return e, nil
}

func (s *Postgres) OldestPending(ctx context.Context, companyID string) (Escalation, error) {
	e, err := scanEscalation(s.pool.QueryRow(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE company_id = $1 AND status = 'pending'
		ORDER BY created_at, id
		LIMIT 1`, companyID))
	if err != nil {
		return Escalation{}, notFound(err)
	}
	return e, nil
}

// ListEscalations lists a company's escalations oldest first; an empty
// status lists all of them.
func (s *Postgres) ListEscalations(ctx context.Context, companyID string, status EscalationStatus) ([]Escalation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE company_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at, id`, companyID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()
	var out []Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) PendingCompanies(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT company_id FROM escalations WHERE status = 'pending' ORDER BY company_id`)
	if err != nil {
		return nil, fmt.Errorf("list pending companies: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan pending companies: %w", err)
	}
	return ids, nil
}

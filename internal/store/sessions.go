package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, company_id, phone, display_name, step, role, is_active, created_at, last_message_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CompanyID, &s.Phone, &s.DisplayName, &s.Step, &s.Role, &s.IsActive, &s.CreatedAt, &s.LastMessageAt)
	return s, err
}

func (s *Postgres) GetSession(ctx context.Context, companyID, phone string) (Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE company_id = $1 AND phone = $2`, companyID, phone))
	if err != nil {
		return Session{}, notFound(err)
	}
	return sess, nil
}

func (s *Postgres) GetSessionByID(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return Session{}, notFound(err)
	}
	return sess, nil
}

// CreateSession inserts sess, or returns the existing session for the same
// (company, phone) when another request created it first.
func (s *Postgres) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.Step == "" {
		sess.Step = StepIntro
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, company_id, phone, display_name, step, role, is_active, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
		ON CONFLICT (company_id, phone) DO NOTHING`,
		uuid.New(), sess.CompanyID, sess.Phone, sess.DisplayName, sess.Step, sess.Role,
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s.GetSession(ctx, sess.CompanyID, sess.Phone)
}

func (s *Postgres) UpdateSession(ctx context.Context, sess Session) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET display_name = $2, step = $3, role = $4, is_active = $5, last_message_at = $6
		WHERE id = $1`,
		sess.ID, sess.DisplayName, sess.Step, sess.Role, sess.IsActive, sess.LastMessageAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveManagers returns onboarded managers in creation order.
func (s *Postgres) ListActiveManagers(ctx context.Context, companyID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE company_id = $1 AND is_active AND role = 'manager' AND step = 'complete'
		ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Postgres) CountSessionsByRole(ctx context.Context, companyID string) (map[Role]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, count(*) FROM sessions WHERE company_id = $1 AND is_active GROUP BY role`, companyID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()
	counts := make(map[Role]int)
	for rows.Next() {
		var role Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan session count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

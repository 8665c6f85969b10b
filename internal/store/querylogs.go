package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Postgres) CreateQueryLog(ctx context.Context, l QueryLog) (QueryLog, error) {
	l.ID = uuid.New()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO query_logs (id, company_id, session_id, query, answer, confidence, escalated, knowledge_item_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at`,
		l.ID, l.CompanyID, l.SessionID, l.Query, l.Answer, l.Confidence, l.Escalated, l.KnowledgeItemID,
	).Scan(&l.CreatedAt)
	if err != nil {
		return QueryLog{}, fmt.Errorf("insert query log: %w", err)
	}
	return l, nil
}

func (s *Postgres) UpdateQueryLog(ctx context.Context, l QueryLog) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE query_logs
		SET answer = $2, confidence = $3, escalated = $4, knowledge_item_id = $5, answered_at = $6
		WHERE id = $1`,
		l.ID, l.Answer, l.Confidence, l.Escalated, l.KnowledgeItemID, l.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("update query log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Analytics(ctx context.Context, companyID string, since time.Time) (Analytics, error) {
	a := Analytics{Since: since}
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE escalated), coalesce(avg(confidence), 0)
		FROM query_logs
		WHERE company_id = $1 AND created_at >= $2`,
		companyID, since,
	).Scan(&a.Queries, &a.Escalated, &a.AvgConfidence)
	if err != nil {
		return Analytics{}, fmt.Errorf("query log analytics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE status = 'pending'), count(*) FILTER (WHERE status = 'resolved')
		FROM escalations
		WHERE company_id = $1 AND created_at >= $2`,
		companyID, since,
	).Scan(&a.EscalationsOpened, &a.EscalationsPending, &a.EscalationsClosed)
	if err != nil {
		return Analytics{}, fmt.Errorf("escalation analytics: %w", err)
	}
	return a, nil
}

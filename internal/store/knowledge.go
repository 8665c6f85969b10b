package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const itemColumns = `id, company_id, title, content, type, category_id, tags, priority, is_active, source, created_at`

func scanItem(row pgx.Row) (KnowledgeItem, error) {
	var it KnowledgeItem
	err := row.Scan(&it.ID, &it.CompanyID, &it.Title, &it.Content, &it.Type, &it.CategoryID,
		&it.Tags, &it.Priority, &it.IsActive, &it.Source, &it.CreatedAt)
	return it, err
}

func collectItems(rows pgx.Rows) ([]KnowledgeItem, error) {
	defer rows.Close()
	var out []KnowledgeItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// FindActiveItemsByKeyword returns active items whose title or content
// contains any of terms, highest priority first.
func (s *Postgres) FindActiveItemsByKeyword(ctx context.Context, companyID string, terms []string, limit int) ([]KnowledgeItem, error) {
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			patterns = append(patterns, "%"+escapeLike(t)+"%")
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM knowledge_items
		WHERE company_id = $1 AND is_active
		  AND (title ILIKE ANY($2) OR content ILIKE ANY($2))
		ORDER BY priority DESC, created_at DESC
		LIMIT $3`,
		companyID, patterns, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search knowledge items: %w", err)
	}
	return collectItems(rows)
}

func (s *Postgres) CreateItem(ctx context.Context, item KnowledgeItem) (KnowledgeItem, error) {
	item.ID = uuid.New()
	item.IsActive = true
	if item.Tags == nil {
		item.Tags = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO knowledge_items (id, company_id, title, content, type, category_id, tags, priority, is_active, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, now())
		RETURNING created_at`,
		item.ID, item.CompanyID, item.Title, item.Content, item.Type, item.CategoryID, item.Tags, item.Priority, item.Source,
	).Scan(&item.CreatedAt)
	if err != nil {
		return KnowledgeItem{}, fmt.Errorf("insert knowledge item: %w", err)
	}
	return item, nil
}

func (s *Postgres) GetItem(ctx context.Context, id uuid.UUID) (KnowledgeItem, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM knowledge_items WHERE id = $1`, id))
	if err != nil {
		return KnowledgeItem{}, notFound(err)
	}
	return it, nil
}

func (s *Postgres) SoftDeleteItem(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE knowledge_items SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("soft delete knowledge item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItemsByCategory lists active items; a nil categoryID lists all of them.
func (s *Postgres) ListItemsByCategory(ctx context.Context, companyID string, categoryID *uuid.UUID) ([]KnowledgeItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM knowledge_items
		WHERE company_id = $1 AND is_active AND ($2::uuid IS NULL OR category_id = $2)
		ORDER BY created_at, id`,
		companyID, categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("list knowledge items: %w", err)
	}
	return collectItems(rows)
}

func (s *Postgres) CountActiveItems(ctx context.Context, companyID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_items WHERE company_id = $1 AND is_active`, companyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count knowledge items: %w", err)
	}
	return n, nil
}

func (s *Postgres) ActiveTitles(ctx context.Context, companyID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT title FROM knowledge_items WHERE company_id = $1 AND is_active`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	titles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan titles: %w", err)
	}
	return titles, nil
}

func (s *Postgres) FindCategoryByName(ctx context.Context, companyID, name string) (Category, error) {
	var c Category
	err := s.pool.QueryRow(ctx, `
		SELECT id, company_id, name, created_at FROM categories WHERE company_id = $1 AND name = $2`,
		companyID, name,
	).Scan(&c.ID, &c.CompanyID, &c.Name, &c.CreatedAt)
	if err != nil {
		return Category{}, notFound(err)
	}
	return c, nil
}

// CreateCategory inserts a category or returns the existing one with the same name.
func (s *Postgres) CreateCategory(ctx context.Context, companyID, name string) (Category, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO categories (id, company_id, name, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (company_id, name) DO NOTHING`,
		uuid.New(), companyID, name,
	)
	if err != nil {
		return Category{}, fmt.Errorf("insert category: %w", err)
	}
	return s.FindCategoryByName(ctx, companyID, name)
}

func (s *Postgres) CreateAttachment(ctx context.Context, a Attachment) (Attachment, error) {
	a.ID = uuid.New()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO attachments (id, knowledge_item_id, filename, url, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (knowledge_item_id, filename) DO UPDATE SET filename = EXCLUDED.filename
		RETURNING id, created_at`,
		a.ID, a.KnowledgeItemID, a.Filename, a.URL,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	return a, nil
}

func (s *Postgres) ListAttachments(ctx context.Context, itemID uuid.UUID) ([]Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, knowledge_item_id, filename, url, created_at
		FROM attachments WHERE knowledge_item_id = $1 ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()
	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.KnowledgeItemID, &a.Filename, &a.URL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

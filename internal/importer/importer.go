// Package importer turns analyzed chat exports into knowledge base records.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/ingest"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

const (
	// maxDocuments bounds how many conversation documents one import creates.
	maxDocuments        = 100
	minDocumentMessages = 4
	maxTitleRunes       = 200
)

// Store is the persistence surface the importer writes to.
type Store interface {
	FindCategoryByName(ctx context.Context, companyID, name string) (store.Category, error)
	CreateCategory(ctx context.Context, companyID, name string) (store.Category, error)
	CreateItem(ctx context.Context, item store.KnowledgeItem) (store.KnowledgeItem, error)
	CreateAttachment(ctx context.Context, a store.Attachment) (store.Attachment, error)
	ActiveTitles(ctx context.Context, companyID string) ([]string, error)
}

// Result counts what an import created. Per-record failures are collected in
// Errors and never abort the batch.
type Result struct {
	CategoriesCreated  int      `json:"categories_created"`
	ItemsCreated       int      `json:"items_created"`
	DocumentsCreated   int      `json:"documents_created"`
	AttachmentsCreated int      `json:"attachments_created"`
	Skipped            int      `json:"skipped"`
	Errors             []string `json:"errors,omitempty"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type Importer struct {
	store        Store
	mediaBaseURL string
	logger       *slog.Logger
}

// New creates an importer. Media attachments are only recorded when
// mediaBaseURL is set.
func New(s Store, mediaBaseURL string, logger *slog.Logger) *Importer {
	return &Importer{
		store:        s,
		mediaBaseURL: strings.TrimRight(mediaBaseURL, "/"),
		logger:       logger,
	}
}

// Import writes categories, FAQ items and conversation documents for one
// company. Existing records are never overwritten.
func (im *Importer) Import(ctx context.Context, companyID string, profiles []ingest.ParticipantProfile, chunks []ingest.Chunk, pairs []ingest.QAPair, minConfidence float64) Result {
	var res Result

	categories := im.ensureCategories(ctx, companyID, &res)

	existing, err := im.store.ActiveTitles(ctx, companyID)
	if err != nil {
		res.addError("load existing titles: %v", err)
	}
	titles := newTitleIndex(existing)
	roles := ingest.RoleLookup(profiles)

	for _, p := range pairs {
		if ctx.Err() != nil {
			res.addError("import interrupted: %v", ctx.Err())
			return res
		}
		if p.Confidence < minConfidence {
			continue
		}
		im.importPair(ctx, companyID, p, roles, categories, titles, &res)
	}

	documents := 0
	for _, c := range chunks {
		if documents >= maxDocuments {
			break
		}
		if !qualifiesAsDocument(c, roles) {
			continue
		}
		documents++
		im.importDocument(ctx, companyID, c, categories, titles, &res)
	}

	im.logger.Info("import finished",
		"company_id", companyID,
		"categories_created", res.CategoriesCreated,
		"items_created", res.ItemsCreated,
		"documents_created", res.DocumentsCreated,
		"attachments_created", res.AttachmentsCreated,
		"skipped", res.Skipped,
		"errors", len(res.Errors),
	)
	return res
}

func (im *Importer) ensureCategories(ctx context.Context, companyID string, res *Result) map[string]uuid.UUID {
	ids := make(map[string]uuid.UUID)
	for _, label := range ingest.TopicLabels() {
		cat, err := im.store.FindCategoryByName(ctx, companyID, label)
		if errors.Is(err, store.ErrNotFound) {
			cat, err = im.store.CreateCategory(ctx, companyID, label)
			if err == nil {
				res.CategoriesCreated++
			}
		}
		if err != nil {
			res.addError("category %q: %v", label, err)
			continue
		}
		ids[label] = cat.ID
	}
	return ids
}

func (im *Importer) importPair(ctx context.Context, companyID string, p ingest.QAPair, roles map[string]ingest.Role, categories map[string]uuid.UUID, titles titleIndex, res *Result) {
	title := truncateRunes(strings.TrimSpace(p.Question), maxTitleRunes)
	if titles.has(title) {
		res.Skipped++
		return
	}

	provenance, priority := "peer-answer", 0
	if roles[p.AnswerBy].IsManagerial() {
		provenance, priority = "manager-answer", 1
	}

	item := store.KnowledgeItem{
		CompanyID: companyID,
		Title:     title,
		Content:   fmt.Sprintf("שאלה: %s\nתשובה: %s", p.Question, p.Answer),
		Type:      store.ItemFAQ,
		Tags:      []string{"chat-import", provenance},
		Priority:  priority,
		IsActive:  true,
		Source:    store.SourceChatImport,
	}
	if id, ok := categories[ingest.DetectTopic(p.Question+" "+p.Answer)]; ok {
		item.CategoryID = &id
	}

	created, err := im.store.CreateItem(ctx, item)
	if err != nil {
		res.addError("faq %q: %v", title, err)
		return
	}
	titles.add(title)
	res.ItemsCreated++

	if p.AnswerMedia != "" {
		im.attach(ctx, created.ID, p.AnswerMedia, res)
	}
}

func (im *Importer) importDocument(ctx context.Context, companyID string, c ingest.Chunk, categories map[string]uuid.UUID, titles titleIndex, res *Result) {
	title := DocumentTitle(c)
	if titles.has(title) {
		res.Skipped++
		return
	}

	item := store.KnowledgeItem{
		CompanyID: companyID,
		Title:     title,
		Content:   ingest.FormatTranscript(c),
		Type:      store.ItemDocument,
		Tags:      []string{"chat-import", "conversation"},
		IsActive:  true,
		Source:    store.SourceChatImport,
	}
	if id, ok := categories[c.Topic]; ok {
		item.CategoryID = &id
	}

	created, err := im.store.CreateItem(ctx, item)
	if err != nil {
		res.addError("document %q: %v", title, err)
		return
	}
	titles.add(title)
	res.DocumentsCreated++

	for _, f := range c.MediaFiles {
		im.attach(ctx, created.ID, f, res)
	}
}

func (im *Importer) attach(ctx context.Context, itemID uuid.UUID, filename string, res *Result) {
	if im.mediaBaseURL == "" {
		return
	}
	_, err := im.store.CreateAttachment(ctx, store.Attachment{
		KnowledgeItemID: itemID,
		Filename:        filename,
		URL:             im.mediaBaseURL + "/" + url.PathEscape(filename),
	})
	if err != nil {
		res.addError("attachment %q: %v", filename, err)
		return
	}
	res.AttachmentsCreated++
}

// qualifiesAsDocument reports whether a chunk is worth keeping as a
// conversation document: it has a topic, enough messages and at least one
// managerial participant.
func qualifiesAsDocument(c ingest.Chunk, roles map[string]ingest.Role) bool {
	if c.Topic == "" || len(c.Messages) < minDocumentMessages {
		return false
	}
	for _, p := range c.Participants {
		if roles[p].IsManagerial() {
			return true
		}
	}
	return false
}

// DocumentTitle is the topic followed by the chunk's start date.
func DocumentTitle(c ingest.Chunk) string {
	return c.Topic + " - " + c.StartTime.Format("02/01/2006")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package importer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/ingest"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if subject == hermes.SubjectImportCompleted {
		p.events = append(p.events, data)
	}
	return nil
}

const sampleExport = `[1.3.2024, 09:15:02] Dana: מה שעות הפעילות?
[1.3.2024, 09:17:10] Yossi מנהל: פתוח 8-20
[1.3.2024, 09:20:00] Dana: תודה רבה!
[1.3.2024, 09:25:00] Yossi מנהל: אל תשכחו לסגור את הקופה בסוף היום
`

func TestPipeline_Run(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	p := NewPipeline(New(mem, "", discardLogger()), pub, time.UTC, discardLogger())
	ctx := context.Background()

	report, err := p.Run(ctx, "acme", sampleExport, Options{MinConfidence: 0.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Messages != 4 || report.Chunks != 1 || report.Pairs != 1 || report.Qualifying != 1 {
		t.Errorf("report = %+v", report)
	}
	im := report.Import
	if im.CategoriesCreated != len(ingest.TopicLabels()) {
		t.Errorf("categories = %d, want %d", im.CategoriesCreated, len(ingest.TopicLabels()))
	}
	if im.ItemsCreated != 1 || im.DocumentsCreated != 1 || len(im.Errors) != 0 {
		t.Errorf("import = %+v", im)
	}
	if len(pub.events) != 1 {
		t.Errorf("import.completed events = %d, want 1", len(pub.events))
	}

	items, err := mem.ListItemsByCategory(ctx, "acme", nil)
	if err != nil {
		t.Fatal(err)
	}
	var faq, doc *store.KnowledgeItem
	for i := range items {
		switch items[i].Type {
		case store.ItemFAQ:
			faq = &items[i]
		case store.ItemDocument:
			doc = &items[i]
		}
	}
	if faq == nil || doc == nil {
		t.Fatalf("expected one faq and one document, got %+v", items)
	}
	if faq.Priority != 1 || !containsTag(faq.Tags, "manager-answer") {
		t.Errorf("faq should be attributed to the manager: %+v", faq)
	}
	if faq.CategoryID == nil {
		t.Error("faq should be categorized")
	}
	if doc.Title != "שעות פעילות - 01/03/2024" {
		t.Errorf("document title = %q", doc.Title)
	}
	if !strings.Contains(doc.Content, "[01/03/2024 09:17] Yossi מנהל: פתוח 8-20") {
		t.Errorf("document content = %q", doc.Content)
	}

	// A second import of the same export creates nothing new.
	again, err := p.Run(ctx, "acme", sampleExport, Options{MinConfidence: 0.6})
	if err != nil {
		t.Fatal(err)
	}
	if again.Import.CategoriesCreated != 0 || again.Import.ItemsCreated != 0 || again.Import.DocumentsCreated != 0 {
		t.Errorf("re-import created records: %+v", again.Import)
	}
	if again.Import.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", again.Import.Skipped)
	}
}

func TestPipeline_DryRunWritesNothing(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	p := NewPipeline(New(mem, "", discardLogger()), pub, nil, discardLogger())

	report, err := p.Run(context.Background(), "acme", sampleExport, Options{MinConfidence: 0.6, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if !report.DryRun || report.Pairs != 1 {
		t.Errorf("report = %+v", report)
	}
	n, _ := mem.CountActiveItems(context.Background(), "acme")
	if n != 0 {
		t.Errorf("dry run created %d items", n)
	}
	if len(pub.events) != 0 {
		t.Error("dry run should not publish")
	}
}

func TestPipeline_RequiresCompany(t *testing.T) {
	p := NewPipeline(New(store.NewMemory(), "", discardLogger()), nil, nil, discardLogger())
	if _, err := p.Run(context.Background(), "", sampleExport, Options{}); err != ErrNoCompany {
		t.Errorf("expected ErrNoCompany, got %v", err)
	}
}

func TestImport_ThresholdAndProvenance(t *testing.T) {
	mem := store.NewMemory()
	im := New(mem, "https://media.example/acme/", discardLogger())
	profiles := []ingest.ParticipantProfile{
		{Name: "Boss", Role: ingest.RoleManager},
		{Name: "Peer", Role: ingest.RoleEmployee},
	}
	pairs := []ingest.QAPair{
		{Question: "איפה המטף?", QuestionBy: "Dana", Answer: "ליד הדלת האחורית", AnswerBy: "Peer", Confidence: 0.8},
		{Question: "מתי משכורת?", QuestionBy: "Dana", Answer: "בעשירי לחודש", AnswerBy: "Boss", AnswerMedia: "payslip 1.jpg", Confidence: 0.75},
		{Question: "מה עם החופש?", QuestionBy: "Dana", Answer: "נדבר מחר", AnswerBy: "Boss", Confidence: 0.55},
	}

	res := im.Import(context.Background(), "acme", profiles, nil, pairs, 0.6)
	if res.ItemsCreated != 2 {
		t.Fatalf("items = %d, want 2 (one below threshold)", res.ItemsCreated)
	}
	if res.AttachmentsCreated != 1 {
		t.Errorf("attachments = %d, want 1", res.AttachmentsCreated)
	}

	items, _ := mem.ListItemsByCategory(context.Background(), "acme", nil)
	for _, it := range items {
		switch it.Title {
		case "איפה המטף?":
			if it.Priority != 0 || !containsTag(it.Tags, "peer-answer") {
				t.Errorf("peer item = %+v", it)
			}
		case "מתי משכורת?":
			if it.Priority != 1 || !containsTag(it.Tags, "manager-answer") {
				t.Errorf("manager item = %+v", it)
			}
			atts, _ := mem.ListAttachments(context.Background(), it.ID)
			if len(atts) != 1 || atts[0].URL != "https://media.example/acme/payslip%201.jpg" {
				t.Errorf("attachments = %+v", atts)
			}
		default:
			t.Errorf("unexpected item %q", it.Title)
		}
	}
}

func TestImport_SkipsNearDuplicateTitles(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	if _, err := mem.CreateItem(ctx, store.KnowledgeItem{
		CompanyID: "acme", Title: "What are the opening hours?", Type: store.ItemFAQ, IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}

	pairs := []ingest.QAPair{
		{Question: "what are the  OPENING hours", Answer: "8 to 20 every day", AnswerBy: "x", Confidence: 0.9},
	}
	res := New(mem, "", discardLogger()).Import(ctx, "acme", nil, nil, pairs, 0.6)
	if res.ItemsCreated != 0 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImport_DocumentRules(t *testing.T) {
	roles := []ingest.ParticipantProfile{{Name: "Boss", Role: ingest.RoleManager}}
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	chunk := func(day int, topic string, participants []string, n int) ingest.Chunk {
		start := base.AddDate(0, 0, day)
		c := ingest.Chunk{Topic: topic, Participants: participants, StartTime: start, EndTime: start}
		for i := 0; i < n; i++ {
			c.Messages = append(c.Messages, ingest.ParsedMessage{
				Timestamp: start, Sender: participants[i%len(participants)], Content: "נוהל חדש",
			})
		}
		return c
	}

	var chunks []ingest.Chunk
	chunks = append(chunks,
		chunk(0, "", []string{"Boss", "Dana"}, 5),      // no topic
		chunk(1, "נהלים", []string{"Dana", "Roni"}, 5), // no manager
		chunk(2, "נהלים", []string{"Boss", "Dana"}, 3), // too short
	)
	for day := 3; day < 3+maxDocuments+5; day++ {
		chunks = append(chunks, chunk(day, "נהלים", []string{"Boss", "Dana"}, 4))
	}

	mem := store.NewMemory()
	res := New(mem, "", discardLogger()).Import(context.Background(), "acme", roles, chunks, nil, 0.6)
	if res.DocumentsCreated != maxDocuments {
		t.Errorf("documents = %d, want %d", res.DocumentsCreated, maxDocuments)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  What are   the HOURS? ", "what are the hours"},
		{"מה שעות הפעילות?!", "מה שעות הפעילות"},
		{"שעות פעילות - 01/03/2024", "שעות פעילות 01032024"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("א", 80)
	if got := []rune(NormalizeTitle(long)); len(got) != titlePrefixRunes {
		t.Errorf("prefix length = %d, want %d", len(got), titlePrefixRunes)
	}
	if NormalizeTitle(long+"x") != NormalizeTitle(long+"y") {
		t.Error("titles differing after the prefix should collide")
	}
}

func TestFormatReport(t *testing.T) {
	out := FormatReport(Report{
		CompanyID: "acme", Messages: 4, Pairs: 1, Qualifying: 1,
		Participants: []ingest.ParticipantProfile{{Name: "Yossi", Role: ingest.RoleManager, Indicators: []string{`name contains "מנהל"`}}},
		Import:       Result{ItemsCreated: 1, Errors: []string{"boom"}},
	})
	for _, want := range []string{"acme", "Yossi [manager]", "1 faq", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

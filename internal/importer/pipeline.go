package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/askops/internal/confidence"
	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/ingest"
)

var ErrNoCompany = errors.New("company id is required")

// Analysis is the offline view of one transcript.
type Analysis struct {
	Parse    ingest.ParseResult
	Profiles []ingest.ParticipantProfile
	Chunks   []ingest.Chunk
	Pairs    []ingest.QAPair
}

// Report summarizes one pipeline run.
type Report struct {
	CompanyID    string                      `json:"company_id"`
	Messages     int                         `json:"messages"`
	SkippedLines int                         `json:"skipped_lines"`
	MergedLines  int                         `json:"merged_lines"`
	DateRange    *ingest.DateRange           `json:"date_range,omitempty"`
	Participants []ingest.ParticipantProfile `json:"participants"`
	Chunks       int                         `json:"chunks"`
	Pairs        int                         `json:"pairs"`
	Qualifying   int                         `json:"qualifying_pairs"`
	DryRun       bool                        `json:"dry_run"`
	Import       Result                      `json:"import"`
}

// Options controls a single run.
type Options struct {
	MinConfidence float64
	DryRun        bool
}

// Pipeline runs parse, classify, chunk, extract and import over a transcript.
type Pipeline struct {
	importer  *Importer
	publisher hermes.Publisher
	location  *time.Location
	chunking  ingest.ChunkOptions
	weights   confidence.QAWeights
	logger    *slog.Logger
}

func NewPipeline(im *Importer, pub hermes.Publisher, loc *time.Location, logger *slog.Logger) *Pipeline {
	if pub == nil {
		pub = hermes.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		importer:  im,
		publisher: pub,
		location:  loc,
		chunking:  ingest.DefaultChunkOptions(),
		weights:   confidence.DefaultQAWeights(),
		logger:    logger,
	}
}

// Analyze runs the offline stages without touching the store.
func (p *Pipeline) Analyze(transcript string) Analysis {
	parsed := ingest.Parse(transcript, ingest.ParseOptions{Location: p.location})
	chunks := ingest.ChunkMessages(parsed.Messages, p.chunking)
	return Analysis{
		Parse:    parsed,
		Profiles: ingest.ClassifyParticipants(parsed.Messages),
		Chunks:   chunks,
		Pairs:    ingest.ExtractQA(chunks, p.weights),
	}
}

// Run analyzes transcript and, unless opts.DryRun is set, imports the result
// for companyID.
func (p *Pipeline) Run(ctx context.Context, companyID, transcript string, opts Options) (Report, error) {
	if companyID == "" {
		return Report{}, ErrNoCompany
	}

	a := p.Analyze(transcript)
	report := Report{
		CompanyID:    companyID,
		Messages:     len(a.Parse.Messages),
		SkippedLines: a.Parse.SkippedLines,
		MergedLines:  a.Parse.MergedLines,
		DateRange:    a.Parse.DateRange,
		Participants: a.Profiles,
		Chunks:       len(a.Chunks),
		Pairs:        len(a.Pairs),
		DryRun:       opts.DryRun,
	}
	for _, pair := range a.Pairs {
		if pair.Confidence >= opts.MinConfidence {
			report.Qualifying++
		}
	}

	p.logger.Info("transcript analyzed",
		"company_id", companyID,
		"messages", report.Messages,
		"skipped_lines", report.SkippedLines,
		"participants", len(report.Participants),
		"chunks", report.Chunks,
		"pairs", report.Pairs,
		"qualifying", report.Qualifying,
	)

	if opts.DryRun {
		return report, nil
	}

	report.Import = p.importer.Import(ctx, companyID, a.Profiles, a.Chunks, a.Pairs, opts.MinConfidence)

	if err := p.publisher.Publish(hermes.SubjectImportCompleted, hermes.ImportEvent{
		CompanyID:         companyID,
		Messages:          report.Messages,
		Pairs:             report.Pairs,
		CategoriesCreated: report.Import.CategoriesCreated,
		ItemsCreated:      report.Import.ItemsCreated + report.Import.DocumentsCreated,
		Errors:            len(report.Import.Errors),
		DryRun:            false,
		Timestamp:         time.Now().UTC(),
	}); err != nil {
		p.logger.Warn("publish failed", "subject", hermes.SubjectImportCompleted, "error", err)
	}
	return report, ctx.Err()
}

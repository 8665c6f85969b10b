package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/askops/internal/api"
	"github.com/MikeSquared-Agency/askops/internal/commands"
	"github.com/MikeSquared-Agency/askops/internal/confidence"
	"github.com/MikeSquared-Agency/askops/internal/config"
	"github.com/MikeSquared-Agency/askops/internal/delivery"
	"github.com/MikeSquared-Agency/askops/internal/escalation"
	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/importer"
	"github.com/MikeSquared-Agency/askops/internal/llm"
	"github.com/MikeSquared-Agency/askops/internal/lock"
	"github.com/MikeSquared-Agency/askops/internal/processor"
	"github.com/MikeSquared-Agency/askops/internal/query"
	"github.com/MikeSquared-Agency/askops/internal/scheduler"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

// dataStore is everything the service needs from persistence. Both the
// Postgres and the in-memory store satisfy it.
type dataStore interface {
	processor.Store
	escalation.Store
	query.Store
	commands.Store
	importer.Store
	api.Store
	scheduler.CompanyLister
}

// app holds the wired components and the resources that need closing.
type app struct {
	cfg       config.Config
	store     dataStore
	bus       *hermes.Client
	publisher hermes.Publisher
	processor *processor.Processor
	pipeline  *importer.Pipeline
	status    api.Status
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func (a *app) openStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		a.store = store.NewMemory()
		a.status.Store = "memory"
		return nil
	}
	db, err := store.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("database connected")
	a.store = db
	a.status.Store = "postgres"
	return nil
}

func (a *app) openBus(ctx context.Context) error {
	if a.cfg.NatsURL == "" {
		a.publisher = hermes.Nop{}
		a.status.Bus = "none"
		return nil
	}
	client, err := hermes.NewClient(ctx, a.cfg.NatsURL, a.cfg.NatsToken, slog.Default())
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	slog.Info("NATS connected", "url", a.cfg.NatsURL)
	a.bus = client
	a.publisher = client
	a.status.Bus = "nats"
	return nil
}

func (a *app) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.RedisAddr == "" {
		a.status.Lock = "local"
		return lock.NewKeyed(), nil
	}
	r, err := lock.NewRedis(ctx, a.cfg.RedisAddr, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = r.Close() })
	slog.Info("redis lock ready", "addr", a.cfg.RedisAddr)
	a.status.Lock = "redis"
	return r, nil
}

func (a *app) generator() llm.Generator {
	switch a.cfg.LLMProvider {
	case "openai":
		if a.cfg.OpenAIAPIKey != "" {
			a.status.LLM = "openai:" + a.cfg.OpenAIModel
			return llm.NewOpenAI(a.cfg.OpenAIAPIKey, a.cfg.OpenAIModel)
		}
	case "anthropic":
		if a.cfg.AnthropicAPIKey != "" {
			a.status.LLM = "anthropic:" + a.cfg.AnthropicModel
			return llm.NewAnthropic(a.cfg.AnthropicAPIKey, a.cfg.AnthropicModel)
		}
	}
	slog.Warn("no completion provider configured, every answer escalates", "provider", a.cfg.LLMProvider)
	a.status.LLM = "none"
	return nil
}

func (a *app) sink() delivery.Sink {
	if a.cfg.TwilioConfigured() {
		a.status.Delivery = "twilio"
		return delivery.NewTwilio(a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioWhatsAppFrom, slog.Default())
	}
	slog.Warn("twilio not configured, outbound messages are logged only")
	a.status.Delivery = "log"
	return delivery.NewLogSink(slog.Default())
}

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("unknown timezone, using UTC", "timezone", tz, "error", err)
		return time.UTC
	}
	return loc
}

// newImportApp wires only what an import run needs.
func newImportApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openBus(ctx); err != nil {
		a.Close()
		return nil, err
	}
	im := importer.New(a.store, cfg.MediaBaseURL, slog.Default())
	a.pipeline = importer.NewPipeline(im, a.publisher, location(cfg.Timezone), slog.Default())
	return a, nil
}

// newServeApp wires the full message path on top of the import path.
func newServeApp(ctx context.Context, cfg config.Config) (*app, error) {
	a, err := newImportApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger := slog.Default()
	router := escalation.NewRouter(a.store, locker, a.publisher, logger)
	answerer := llm.NewAnswerer(a.generator(), time.Duration(cfg.CompletionTimeout)*time.Second, logger)
	queries := query.NewHandler(a.store, answerer, router, query.Options{
		Threshold: cfg.EscalationThreshold,
		Weights:   confidence.DefaultAnswerWeights(),
	}, logger)
	dispatcher := commands.NewDispatcher(a.store, router, cfg.DashboardURL, logger)
	a.processor = processor.New(a.store, locker, queries, dispatcher, router, a.sink(), logger)
	a.status.SweepSchedule = cfg.SweepSchedule
	return a, nil
}

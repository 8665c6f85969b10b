// Package scheduler periodically hands pending escalations to managers who
// became available after the escalation was created.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CompanyLister reports which companies have pending escalations.
type CompanyLister interface {
	PendingCompanies(ctx context.Context) ([]string, error)
}

// Assigner assigns one company's pending escalations and returns how many
// were assigned.
type Assigner interface {
	AssignPending(ctx context.Context, companyID string) int
}

// Sweeper runs one assignment pass over every company with pending work.
type Sweeper struct {
	companies CompanyLister
	assigner  Assigner
	logger    *slog.Logger
}

func NewSweeper(c CompanyLister, a Assigner, logger *slog.Logger) *Sweeper {
	return &Sweeper{companies: c, assigner: a, logger: logger}
}

// Sweep returns the total number of escalations assigned.
func (s *Sweeper) Sweep(ctx context.Context) int {
	companies, err := s.companies.PendingCompanies(ctx)
	if err != nil {
		s.logger.Error("list pending companies failed", "error", err)
		return 0
	}
	total := 0
	for _, id := range companies {
		if ctx.Err() != nil {
			break
		}
		total += s.assigner.AssignPending(ctx, id)
	}
	if total > 0 {
		s.logger.Info("sweep assigned escalations", "companies", len(companies), "assigned", total)
	}
	return total
}

// Scheduler runs the sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	sweeper *Sweeper
	timeout time.Duration
	logger  *slog.Logger
}

// New parses schedule (standard five-field cron or a descriptor such as
// "@every 1m") in the given timezone.
func New(schedule, timezone string, sweeper *Sweeper, logger *slog.Logger) (*Scheduler, error) {
	schedule = strings.Join(strings.Fields(schedule), " ")
	if schedule == "" {
		return nil, fmt.Errorf("empty sweep schedule")
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression: %w", err)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{cron: c, sweeper: sweeper, timeout: time.Minute, logger: logger}
	s.entry = c.Schedule(sched, cron.FuncJob(s.run))
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.sweeper.Sweep(ctx)
}

// Next returns the next scheduled sweep, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Run starts the cron loop and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("escalation sweep scheduled", "next", s.Next())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("escalation sweep stopped")
	return nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

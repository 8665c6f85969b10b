package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/askops/internal/api"
	"github.com/MikeSquared-Agency/askops/internal/config"
	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/importer"
	"github.com/MikeSquared-Agency/askops/internal/scheduler"
)

func newRoot(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "askops",
		Short:         "AskOps answers employee questions from a company knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(cfg))
	root.AddCommand(newImportCommand(cfg))
	root.AddCommand(newAnalyzeCommand(cfg))
	return root
}

func newServeCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the bus subscriber and the escalation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			slog.Info("askops starting", "port", cfg.Port)

			a, err := newServeApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.bus != nil {
				if err := a.bus.Subscribe(hermes.SubjectInboundMessage, a.processor.InboundHandler(ctx)); err != nil {
					return fmt.Errorf("subscribe inbound messages: %w", err)
				}
			}

			sched, err := scheduler.New(cfg.SweepSchedule, cfg.Timezone,
				scheduler.NewSweeper(a.store, a.processor, slog.Default()), slog.Default())
			if err != nil {
				return err
			}

			srv := api.NewServer(cfg.Port, api.Deps{
				Processor:           a.processor,
				Imports:             a.pipeline,
				Store:               a.store,
				ImportMinConfidence: cfg.ImportMinConfidence,
				Status:              a.status,
			}, slog.Default())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error { return sched.Run(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			slog.Info("askops ready", "port", cfg.Port, "store", a.status.Store, "llm", a.status.LLM)
			err = g.Wait()
			slog.Info("askops stopped")
			return err
		},
	}
}

func newImportCommand(cfg config.Config) *cobra.Command {
	var (
		companyID     string
		minConfidence float64
		dryRun        bool
		watchDir      string
		stateFile     string
	)
	cmd := &cobra.Command{
		Use:   "import [export.txt...]",
		Short: "Import WhatsApp chat exports into a company knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID == "" {
				return importer.ErrNoCompany
			}
			if minConfidence < 0 || minConfidence > 1 {
				return fmt.Errorf("--min-confidence must be within [0,1], got %v", minConfidence)
			}
			if watchDir == "" && len(args) == 0 {
				return errors.New("pass export files or --watch")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newImportApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			opts := importer.Options{MinConfidence: minConfidence, DryRun: dryRun}

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				report, err := a.pipeline.Run(ctx, companyID, string(data), opts)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), importer.FormatReport(report))
			}
			if watchDir == "" {
				return nil
			}

			state, err := importer.LoadState(stateFile)
			if err != nil {
				return err
			}
			w, err := importer.NewWatcher(watchDir, companyID, a.pipeline, state, opts, slog.Default())
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company id to import into (required)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", cfg.ImportMinConfidence, "minimum Q&A pair confidence")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without writing")
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory to watch for new exports")
	cmd.Flags().StringVar(&stateFile, "state", "~/.askops/import-state.json", "watch state file")
	return cmd
}

func newAnalyzeCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <export.txt>",
		Short: "Print parse, participant and Q&A statistics for an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			p := importer.NewPipeline(nil, nil, location(cfg.Timezone), slog.Default())
			an := p.Analyze(string(data))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "messages: %d (skipped %d, merged %d)\n",
				len(an.Parse.Messages), an.Parse.SkippedLines, an.Parse.MergedLines)
			for _, prof := range an.Profiles {
				fmt.Fprintf(out, "  %s: %d messages, %d questions, role=%s\n", prof.Name, prof.MessageCount, prof.QuestionCount, prof.Role)
			}
			fmt.Fprintf(out, "chunks: %d\npairs: %d\n", len(an.Chunks), len(an.Pairs))
			for _, c := range an.Chunks {
				if c.Topic != "" {
					fmt.Fprintf(out, "  topic: %s (%d messages)\n", c.Topic, len(c.Messages))
				}
			}
			return nil
		},
	}
}

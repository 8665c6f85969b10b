package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay lets an export finish being written before it is imported.
const settleDelay = 2 * time.Second

// Watcher imports chat exports (.txt) dropped into a directory.
type Watcher struct {
	dir       string
	companyID string
	pipeline  *Pipeline
	state     *State
	opts      Options
	logger    *slog.Logger
	watcher   *fsnotify.Watcher

	settle  time.Duration
	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

func NewWatcher(dir, companyID string, p *Pipeline, state *State, opts Options, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		dir:       expandHome(dir),
		companyID: companyID,
		pipeline:  p,
		state:     state,
		opts:      opts,
		logger:    logger,
		watcher:   fsw,
		pending:   make(map[string]*time.Timer),
		settle:    settleDelay,
		ready:     make(chan string, 16),
		done:      make(chan struct{}),
	}, nil
}

// Run imports existing exports, then watches for new ones until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer close(w.done)

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if err := w.ScanExisting(ctx); err != nil {
		return err
	}
	w.logger.Info("export watcher started", "dir", w.dir, "company_id", w.companyID)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.logger.Info("export watcher stopped")
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case path := <-w.ready:
			w.processFile(ctx, path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// ScanExisting imports every export already in the directory that the state
// has not seen.
func (w *Watcher) ScanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if e.IsDir() || !isExport(e.Name()) {
			continue
		}
		w.processFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isExport(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[event.Name]; ok {
		t.Reset(w.settle)
		return
	}
	path := event.Name
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.enqueue(path)
	})
}

// enqueue hands a settled file to Run, or drops it once Run has returned.
func (w *Watcher) enqueue(path string) {
	select {
	case w.ready <- path:
	case <-w.done:
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	if w.state.IsProcessed(path) {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("failed to read export", "path", path, "error", err)
		}
		return
	}

	report, err := w.pipeline.Run(ctx, w.companyID, string(data), w.opts)
	if err != nil {
		w.logger.Error("import failed", "path", path, "error", err)
		w.state.AddError(fmt.Sprintf("%s: %v", filepath.Base(path), err))
		_ = w.state.Save()
		return
	}

	w.state.Record(path, report)
	if err := w.state.Save(); err != nil {
		w.logger.Warn("failed to save import state", "error", err)
	}
	w.logger.Info("export imported",
		"path", path,
		"messages", report.Messages,
		"items_created", report.Import.ItemsCreated,
		"documents_created", report.Import.DocumentsCreated,
	)
}

func isExport(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

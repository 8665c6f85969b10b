package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/askops/internal/store"
)

func TestState_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if s.StartedAt.IsZero() {
		t.Error("fresh state should have a start time")
	}
	s.Record("/exports/a.txt", Report{Messages: 10, Import: Result{ItemsCreated: 2, DocumentsCreated: 1, Errors: []string{"bad"}}})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !loaded.IsProcessed("/exports/a.txt") || loaded.IsProcessed("/exports/b.txt") {
		t.Errorf("processed files = %v", loaded.FilesProcessed)
	}
	if loaded.MessagesSeen != 10 || loaded.ItemsCreated != 3 {
		t.Errorf("totals = %d messages, %d items", loaded.MessagesSeen, loaded.ItemsCreated)
	}
	if len(loaded.Errors) != 1 || loaded.Errors[0] != "a.txt: bad" {
		t.Errorf("errors = %v", loaded.Errors)
	}
}

func TestState_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestWatcher_ScanExisting(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"a.txt":    sampleExport,
		"b.TXT":    sampleExport,
		"notes.md": "ignored",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	state, err := LoadState(filepath.Join(dir, ".state", "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemory()
	p := NewPipeline(New(mem, "", discardLogger()), nil, nil, discardLogger())
	w, err := NewWatcher(dir, "acme", p, state, Options{MinConfidence: 0.6}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()

	ctx := context.Background()
	if err := w.ScanExisting(ctx); err != nil {
		t.Fatal(err)
	}
	if len(state.FilesProcessed) != 2 {
		t.Fatalf("processed = %v, want both exports", state.FilesProcessed)
	}
	n, _ := mem.CountActiveItems(ctx, "acme")
	if n != 2 {
		t.Errorf("items = %d, want 2", n)
	}

	if err := w.ScanExisting(ctx); err != nil {
		t.Fatal(err)
	}
	if len(state.FilesProcessed) != 2 {
		t.Errorf("rescan re-imported: %v", state.FilesProcessed)
	}
}

func newDirWatcher(t *testing.T, dir string, mem *store.Memory) *Watcher {
	t.Helper()
	state, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(New(mem, "", discardLogger()), nil, nil, discardLogger())
	w, err := NewWatcher(dir, "acme", p, state, Options{MinConfidence: 0.6}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	w.settle = 20 * time.Millisecond
	return w
}

func TestWatcher_ImportsNewExport(t *testing.T) {
	dir := t.TempDir()
	mem := store.NewMemory()
	w := newDirWatcher(t, dir, mem)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Give Run time to register the directory before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "chat.txt"), []byte(sampleExport), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, _ := mem.CountActiveItems(context.Background(), "acme")
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("items = %d, want 2 after the export settled", n)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_SettledFilesAfterStopDoNotBlock(t *testing.T) {
	w := newDirWatcher(t, t.TempDir(), store.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 2*cap(w.ready); i++ {
			w.enqueue(filepath.Join("exports", "late.txt"))
		}
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("timer callbacks blocked after the watcher stopped")
	}
}

func TestIsExport(t *testing.T) {
	if !isExport("/x/chat.txt") || !isExport("/x/CHAT.TXT") || isExport("/x/chat.md") {
		t.Error("isExport mismatch")
	}
}

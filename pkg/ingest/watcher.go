package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher ingests trace files dropped into a directory. Each file name is
// ingested once; files are picked up after they have been quiet for the
// debounce interval.
type DirWatcher struct {
	dir      string
	applier  Applier
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	pending map[string]time.Time
	seen    map[string]bool
	ready   chan struct{}

	// OnIngest is called after a file has been handled, with the number of
	// batches applied and the error if any.
	OnIngest func(path string, batches int, err error)
}

// NewDirWatcher watches dir, which must exist.
func NewDirWatcher(dir string, a Applier, logger *slog.Logger) (*DirWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &DirWatcher{
		dir:      dir,
		applier:  a,
		logger:   logger.With("watch_dir", dir),
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		pending:  make(map[string]time.Time),
		seen:     make(map[string]bool),
		ready:    make(chan struct{}),
	}, nil
}

// SetDebounce overrides the quiet period. Call before Run.
func (w *DirWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Ready is closed once files already in the directory have been ingested.
func (w *DirWatcher) Ready() <-chan struct{} { return w.ready }

// Run ingests files already present, then new ones, until ctx is done.
func (w *DirWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.scanExisting(ctx); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Info("watcher_started")

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher_stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isTraceFile(event.Name) || w.seen[event.Name] {
				continue
			}
			w.pending[event.Name] = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", "error", err)

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *DirWatcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isTraceFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.ingest(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

func (w *DirWatcher) flush(ctx context.Context, now time.Time) {
	var due []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			due = append(due, path)
		}
	}
	sort.Strings(due)
	for _, path := range due {
		delete(w.pending, path)
		w.ingest(ctx, path)
	}
}

func (w *DirWatcher) ingest(ctx context.Context, path string) {
	w.seen[path] = true
	n, err := ReplayFile(ctx, path, w.applier, w.logger)
	if err != nil {
		w.logger.Error("watch_ingest_failed", "path", path, "error", err)
	}
	if w.OnIngest != nil {
		w.OnIngest(path, n, err)
	}
}

func isTraceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonl":
		return true
	}
	return false
}

package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bull/policy-rag/internal/loader"
	"github.com/bull/policy-rag/internal/storage"
)

// DefaultDebounce is how long the watcher waits for the data directory to settle.
const DefaultDebounce = 2 * time.Second

// Rebuilder indexes a source into a brand-new backend and swaps it in on success.
// The index serving queries is never written to. A Qdrant backend builds into a new
// collection and moves its alias only after the build completes.
type Rebuilder struct {
	source     loader.Source
	parser     *loader.Parser
	newBackend func() (storage.Backend, error)
	swap       func(storage.Backend)
	logger     *slog.Logger
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(
	source loader.Source,
	parser *loader.Parser,
	newBackend func() (storage.Backend, error),
	swap func(storage.Backend),
	logger *slog.Logger,
) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{
		source:     source,
		parser:     parser,
		newBackend: newBackend,
		swap:       swap,
		logger:     logger,
	}
}

// Rebuild builds a fresh index. The previous backend keeps serving if anything fails.
func (r *Rebuilder) Rebuild(ctx context.Context) (*IndexResult, error) {
	backend, err := r.newBackend()
	if err != nil {
		return nil, err
	}
	result, err := NewPipeline(r.source, r.parser, backend, r.logger).IndexAll(ctx)
	if err != nil {
		return result, err
	}
	r.swap(backend)
	r.logger.Info("Swapped in rebuilt index", "chunks", result.TotalChunks)
	return result, nil
}

// Watcher rebuilds the index when files under a directory change.
type Watcher struct {
	root     string
	matches  func(rel string) bool
	debounce time.Duration
	rebuild  func(ctx context.Context) error
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over root. matches filters paths relative to root;
// rebuild runs once per burst of changes, after debounce of quiet.
func NewWatcher(
	root string,
	matches func(rel string) bool,
	debounce time.Duration,
	rebuild func(ctx context.Context) error,
	logger *slog.Logger,
) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		matches:  matches,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled. It returns an error only if watching cannot start.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("Watching data directory", "dir", w.root, "debounce", w.debounce)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Data directory changed", "path", event.Name, "op", event.Op.String())
			fire = time.After(w.debounce)

		case <-fire:
			fire = nil
			if err := w.rebuild(ctx); err != nil {
				w.logger.Error("Rebuild after change failed", "error", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	return w.matches(rel)
}

// addTree watches dir and every directory below it. fsnotify is not recursive.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

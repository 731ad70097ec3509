// Package watch provides an inbox directory watcher that ingests documents
// as files appear.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	syncpkg "github.com/vsedlak/chatrag/internal/sync"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Extensions ingested from the inbox. Everything else is ignored.
var documentExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".text":     true,
}

// Watcher watches an inbox directory and ingests files dropped into it.
type Watcher struct {
	coordinator *syncpkg.Coordinator
	inboxDir    string
	logger      *slog.Logger

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// Config contains watcher configuration.
type Config struct {
	InboxDir     string
	Coordinator  *syncpkg.Coordinator
	Logger       *slog.Logger
	DebounceTime time.Duration // Default: 500ms
}

// New creates a new inbox watcher.
func New(cfg Config) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		coordinator:  cfg.Coordinator,
		inboxDir:     cfg.InboxDir,
		logger:       logger,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Watch starts watching the inbox. It blocks until the context is
// cancelled. Files already present when watching starts are ingested
// first.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.inboxDir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.inboxDir); err != nil {
		return err
	}

	w.logger.Info("watching inbox", "dir", w.inboxDir)

	w.ingestExisting(ctx)

	// Start debounce processor
	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// ingestExisting picks up files that were dropped before the watcher started.
func (w *Watcher) ingestExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		w.logger.Warn("failed to read inbox", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.inboxDir, entry.Name())
		if !documentExtensions[strings.ToLower(filepath.Ext(path))] {
			continue
		}
		w.ingestFile(ctx, path)
	}
}

// handleEvent queues a changed file for ingestion after the debounce
// period, so half-written files settle first.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	if !documentExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	w.pendingMu.Lock()
	w.pendingFiles[event.Name] = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("inbox file changed", "path", event.Name, "op", event.Op.String())
}

// processDebounced processes pending files after the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.takeSettled() {
				w.ingestFile(ctx, path)
			}
		}
	}
}

// takeSettled removes and returns files that have been stable for the
// debounce period.
func (w *Watcher) takeSettled() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	var settled []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			settled = append(settled, path)
			delete(w.pendingFiles, path)
		}
	}
	return settled
}

// ingestFile reads and ingests one file. Already-known content is a no-op
// because ingestion de-duplicates by hash.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read inbox file", "path", path, "error", err)
		return
	}
	if len(content) == 0 {
		return
	}

	doc, err := w.coordinator.IngestDocument(ctx, filepath.Base(path), string(content))
	if err != nil {
		var partial *types.PartialWriteError
		if errors.As(err, &partial) {
			w.logger.Warn("ingested with missing vectors, resync will repair",
				"path", path,
				"document_id", doc.ID,
				"failed_chunks", len(partial.FailedIndexes))
			return
		}
		w.logger.Error("failed to ingest inbox file", "path", path, "error", err)
		return
	}

	w.logger.Info("ingested inbox file",
		"path", path,
		"document_id", doc.ID,
		"chunks", doc.ChunkCount)
}

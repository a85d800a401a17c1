// Package watch merges fragment files dropped into an inbox directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"autobuilder/internal/merge"
	"autobuilder/internal/xmlcore"
)

// Config describes one inbox.
type Config struct {
	// Inbox is watched for *.xml fragment files.
	Inbox string
	// Target is the document every fragment is merged into.
	Target   string
	Options  xmlcore.MergeOptions
	Debounce time.Duration
}

// Stats tracks watcher activity.
type Stats struct {
	Received      int
	Merged        int
	Failed        int
	Errors        int
	LastFile      string
	LastError     string
	LastEventTime time.Time
}

// Watcher moves each processed fragment to done/ or failed/ under the inbox.
// A failed fragment gets a sibling .err file holding the error text.
type Watcher struct {
	mu        sync.RWMutex
	fsw       *fsnotify.Watcher
	svc       *merge.Service
	cfg       Config
	doneDir   string
	failedDir string
	pending   map[string]time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	stats     Stats
	logger    *zap.Logger
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config, svc *merge.Service, logger *zap.Logger) (*Watcher, error) {
	if cfg.Inbox == "" || cfg.Target == "" {
		return nil, fmt.Errorf("watch: inbox and target are required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &Watcher{
		fsw:       fsw,
		svc:       svc,
		cfg:       cfg,
		doneDir:   filepath.Join(cfg.Inbox, "done"),
		failedDir: filepath.Join(cfg.Inbox, "failed"),
		pending:   make(map[string]time.Time),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger,
	}, nil
}

// Start creates the inbox directories, queues fragments already waiting
// there and starts the event loop. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()
	if running {
		return nil
	}

	for _, dir := range []string{w.cfg.Inbox, w.doneDir, w.failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("watch: create %s: %w", dir, err)
		}
	}
	if err := w.fsw.Add(w.cfg.Inbox); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.cfg.Inbox, err)
	}

	existing, err := filepath.Glob(filepath.Join(w.cfg.Inbox, "*.xml"))
	if err != nil {
		return fmt.Errorf("watch: scan inbox: %w", err)
	}
	// Backdated so the first tick processes them.
	queued := time.Now().Add(-w.cfg.Debounce)
	w.mu.Lock()
	for _, name := range existing {
		w.pending[name] = queued
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("watching inbox",
		zap.String("inbox", w.cfg.Inbox),
		zap.String("target", w.cfg.Target),
		zap.Int("queued", len(existing)))

	go w.run(ctx)
	return nil
}

// Stop stops the event loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.fsw.Close(); err != nil {
		w.logger.Error("error closing watcher", zap.Error(err))
	}
	w.logger.Info("watcher stopped")
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.cfg.Debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".xml") || filepath.Dir(event.Name) != filepath.Clean(w.cfg.Inbox) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.stats.LastEventTime = time.Now()
	w.mu.Unlock()
}

// processPending merges every fragment that has been quiet for the
// debounce interval.
func (w *Watcher) processPending(ctx context.Context) {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for name, last := range w.pending {
		if now.Sub(last) >= w.cfg.Debounce {
			ready = append(ready, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, name)
	}
}

func (w *Watcher) process(ctx context.Context, name string) {
	data, err := os.ReadFile(name)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("failed to read fragment", zap.String("file", name), zap.Error(err))
		}
		return
	}

	w.mu.Lock()
	w.stats.Received++
	w.stats.LastFile = name
	w.mu.Unlock()

	out, err := w.svc.Merge(ctx, merge.Request{
		Fragment: string(data),
		Document: w.cfg.Target,
		Options:  w.cfg.Options,
		Source:   "watch",
	})
	if err != nil {
		w.logger.Warn("fragment rejected", zap.String("file", name), zap.Error(err))
		if dest := w.move(name, w.failedDir); dest != "" {
			if werr := os.WriteFile(dest+".err", []byte(err.Error()+"\n"), 0644); werr != nil {
				w.logger.Warn("failed to write error file", zap.String("file", dest), zap.Error(werr))
			}
		}
		w.mu.Lock()
		w.stats.Failed++
		w.stats.LastError = err.Error()
		w.mu.Unlock()
		return
	}

	w.logger.Info("fragment merged",
		zap.String("file", filepath.Base(name)),
		zap.String("identifier", out.Result.Identifier),
		zap.String("action", string(out.Result.Action)))
	w.move(name, w.doneDir)
	w.mu.Lock()
	w.stats.Merged++
	w.mu.Unlock()
}

// move renames name into dir, suffixing a timestamp when the name is
// taken. It returns the destination, or "" on failure.
func (w *Watcher) move(name, dir string) string {
	dest := filepath.Join(dir, filepath.Base(name))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + "." + time.Now().UTC().Format("20060102T150405.000000000") + ext
	}
	if err := os.Rename(name, dest); err != nil {
		w.logger.Warn("failed to move fragment", zap.String("file", name), zap.Error(err))
		return ""
	}
	return dest
}

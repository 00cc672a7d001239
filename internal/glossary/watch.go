package glossary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Live is a glossary that can be swapped while transcripts are being
// rewritten. A reload that fails to parse keeps the previous substitutions.
type Live struct {
	path    string
	limit   int
	logger  *slog.Logger
	current atomic.Pointer[Glossary]
}

// NewLive loads path once. The initial load must succeed.
func NewLive(path string, iterationLimit int, logger *slog.Logger) (*Live, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g, err := Load(path, iterationLimit)
	if err != nil {
		return nil, err
	}
	l := &Live{path: strings.TrimSpace(path), limit: iterationLimit, logger: logger}
	l.current.Store(g)
	return l, nil
}

func (l *Live) Apply(text string) (string, error) {
	return l.current.Load().Apply(text)
}

func (l *Live) Len() int {
	return l.current.Load().Len()
}

func (l *Live) Path() string {
	return l.path
}

// Reload re-reads the file and swaps it in on success.
func (l *Live) Reload() error {
	g, err := Load(l.path, l.limit)
	if err != nil {
		l.logger.Warn("glossary reload failed; keeping previous substitutions", "path", l.path, "error", err)
		return err
	}
	l.current.Store(g)
	l.logger.Info("glossary reloaded", "path", l.path, "substitutions", g.Len())
	return nil
}

// Watch reloads the glossary whenever its file is written, replaced or
// removed, until ctx ends. The parent directory is watched so editors that
// save by rename are seen.
func (l *Live) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch glossary directory %q: %w", dir, err)
	}
	l.logger.Debug("watching glossary", "path", l.path)

	target := filepath.Clean(l.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			_ = l.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("glossary watcher error", "error", err)
		}
	}
}

package crews

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Watcher polls the crew directory and reloads the registry when any
// definition file changes. Polling keeps it portable; the catalog is
// small so a stat sweep per tick is cheap.
type Watcher struct {
	loader   *Loader
	registry *Registry
	dir      string
	interval time.Duration
	logger   *zap.Logger

	lastFingerprint string
}

func NewWatcher(loader *Loader, registry *Registry, dir string, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		loader:   loader,
		registry: registry,
		dir:      dir,
		interval: interval,
		logger:   logger.With(zap.String("component", "crew_watcher")),
	}
}

// Start blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.lastFingerprint = w.fingerprint()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fp := w.fingerprint()
			if fp == w.lastFingerprint {
				continue
			}
			w.lastFingerprint = fp
			defs, err := w.loader.Load()
			if err != nil {
				w.logger.Error("crew reload failed, keeping previous catalog", zap.Error(err))
				continue
			}
			if err := w.registry.Replace(defs); err != nil {
				w.logger.Error("crew reload rejected, keeping previous catalog", zap.Error(err))
				continue
			}
			w.logger.Info("crew catalog reloaded", zap.Int("crews", len(defs)))
		}
	}
}

// fingerprint summarizes the directory as name:size:mtime triples.
func (w *Watcher) fingerprint() string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return ""
	}
	var parts []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		parts = append(parts, filepath.Base(e.Name())+":"+
			strconv.FormatInt(info.Size(), 10)+":"+
			strconv.FormatInt(info.ModTime().UnixNano(), 10))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

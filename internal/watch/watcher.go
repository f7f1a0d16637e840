// Package watch refreshes directory caches when their files change.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/vcq/internal/contactservice"
)

// DefaultDebounce is how long a directory must stay quiet before it is
// rescanned.
const DefaultDebounce = 200 * time.Millisecond

// Refresher is the part of contactservice.Service the watcher drives.
type Refresher interface {
	Paths() []string
	Refresh(ctx context.Context, dir string, full bool) (contactservice.DirectoryInfo, error)
}

// EventCallback is called after every watcher-driven refresh.
type EventCallback func(info contactservice.DirectoryInfo)

// Watch starts an fsnotify watcher on every directory of svc and processes
// change events until ctx is cancelled. Events are debounced per directory;
// each burst ends in one full rescan of that directory followed by cb (if
// non-nil). Subdirectories are not watched since they are never indexed.
func Watch(ctx context.Context, svc Refresher, logger *slog.Logger, debounce time.Duration, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watched := make(map[string]struct{})
	for _, dir := range svc.Paths() {
		if err := w.Add(dir); err != nil {
			logger.Warn("watcher: cannot watch directory", slog.String("dir", dir), slog.String("error", err.Error()))
			continue
		}
		watched[dir] = struct{}{}
	}

	logger.Info("watcher: started", slog.Int("dirs", len(watched)))

	fire := make(chan string, len(watched))
	pending := make(map[string]*time.Timer)

	schedule := func(dir string) {
		if t, ok := pending[dir]; ok {
			t.Reset(debounce)
			return
		}
		pending[dir] = time.AfterFunc(debounce, func() {
			select {
			case fire <- dir:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case dir := <-fire:
			delete(pending, dir)
			info, err := svc.Refresh(ctx, dir, true)
			if err != nil {
				logger.Warn("watcher: refresh failed", slog.String("dir", dir), slog.String("error", err.Error()))
			} else {
				logger.Debug("watcher: refreshed", slog.String("dir", dir), slog.String("stats", info.Stats.String()))
			}
			if cb != nil {
				cb(info)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			dir := filepath.Dir(ev.Name)
			if _, ok := watched[dir]; !ok {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule(dir)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

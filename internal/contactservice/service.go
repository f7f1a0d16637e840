// Package contactservice owns the set of configured vCard directories and
// answers queries over their reconciled caches.
package contactservice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/starford/vcq/internal/apperr"
	"github.com/starford/vcq/internal/cache"
	"github.com/starford/vcq/internal/models"
	"github.com/starford/vcq/internal/query"
)

// DirectoryInfo describes the current state of one configured directory.
type DirectoryInfo struct {
	Path     string      `json:"path"`
	Key      string      `json:"key,omitempty"`
	Files    int         `json:"files"`
	Records  int         `json:"records"`
	Stats    cache.Stats `json:"stats"`
	Error    string      `json:"error,omitempty"`
	LoadedAt time.Time   `json:"loaded_at"`
}

type entry struct {
	dir      *cache.Directory
	err      error
	loadedAt time.Time
}

// Service coordinates the directory caches and the query engine.
type Service struct {
	store  cache.Store
	logger *slog.Logger
	paths  []string
	known  map[string]struct{}

	refreshMu sync.Mutex // serializes reconciles so store writes do not interleave

	mu      sync.RWMutex
	entries map[string]*entry
}

// CheckDirectories verifies that every dir exists and is a directory.
func CheckDirectories(dirs []string) error {
	if len(dirs) == 0 {
		return errors.New("no vCard directory given")
	}
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", d, apperr.ErrNotADirectory)
		}
	}
	return nil
}

// NewService creates a service over dirs. Paths are made absolute and
// duplicates are dropped; nothing is read until LoadAll or Refresh.
func NewService(store cache.Store, dirs []string, logger *slog.Logger) (*Service, error) {
	s := &Service{
		store:   store,
		logger:  logger,
		known:   make(map[string]struct{}),
		entries: make(map[string]*entry),
	}
	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("contactservice: resolve %s: %w", d, err)
		}
		abs = filepath.Clean(abs)
		if _, ok := s.known[abs]; ok {
			continue
		}
		s.paths = append(s.paths, abs)
		s.known[abs] = struct{}{}
		s.entries[abs] = &entry{}
	}
	return s, nil
}

// Paths returns the configured absolute directory paths in config order.
func (s *Service) Paths() []string {
	return slices.Clone(s.paths)
}

// Owner returns the configured directory that directly contains path.
func (s *Service) Owner(path string) (string, bool) {
	parent := filepath.Dir(filepath.Clean(path))
	if _, ok := s.known[parent]; ok {
		return parent, true
	}
	return "", false
}

// LoadAll reconciles every directory. A directory that fails is logged and
// contributes nothing until a later refresh succeeds.
func (s *Service) LoadAll(ctx context.Context) []DirectoryInfo {
	return s.RefreshAll(ctx, false)
}

// RefreshAll reconciles every directory and returns their new state.
func (s *Service) RefreshAll(ctx context.Context, full bool) []DirectoryInfo {
	out := make([]DirectoryInfo, 0, len(s.paths))
	for _, p := range s.paths {
		if ctx.Err() != nil {
			break
		}
		info, err := s.Refresh(ctx, p, full)
		if err != nil {
			s.logger.Warn("contactservice: directory skipped",
				slog.String("dir", p), slog.String("error", err.Error()))
		}
		out = append(out, info)
	}
	return out
}

// Refresh reconciles one configured directory. With full set the
// directory is enumerated even if its mtime has not changed.
func (s *Service) Refresh(_ context.Context, dir string, full bool) (DirectoryInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return DirectoryInfo{}, err
	}
	abs = filepath.Clean(abs)
	if _, ok := s.known[abs]; !ok {
		return DirectoryInfo{}, fmt.Errorf("%s: %w", dir, apperr.ErrUnknownDirectory)
	}

	opts := []cache.Option{cache.WithLogger(s.logger)}
	if full {
		opts = append(opts, cache.WithFullScan())
	}

	s.refreshMu.Lock()
	d, err := cache.Open(abs, s.store, opts...)
	s.refreshMu.Unlock()

	e := &entry{dir: d, err: err, loadedAt: time.Now()}
	s.mu.Lock()
	if err != nil {
		// keep serving the last good cache of this directory
		e.dir = s.entries[abs].dir
	}
	s.entries[abs] = e
	s.mu.Unlock()

	return infoFor(abs, e), err
}

// Directories returns the state of every configured directory.
func (s *Service) Directories() []DirectoryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DirectoryInfo, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, infoFor(p, s.entries[p]))
	}
	return out
}

// Query runs the query engine over every loaded directory.
func (s *Service) Query(_ context.Context, opts query.Options) []models.Record {
	s.mu.RLock()
	dirs := make([]*cache.Directory, 0, len(s.paths))
	for _, p := range s.paths {
		if d := s.entries[p].dir; d != nil {
			dirs = append(dirs, d)
		}
	}
	s.mu.RUnlock()

	srcs := make([]iter.Seq[models.Contact], 0, len(dirs))
	for _, d := range dirs {
		srcs = append(srcs, d.Contacts())
	}
	return query.Run(opts, srcs...)
}

// Forget drops the stored snapshots of every configured directory.
func (s *Service) Forget() error {
	var errs []error
	for _, p := range s.paths {
		if err := cache.Forget(p, s.store); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func infoFor(path string, e *entry) DirectoryInfo {
	info := DirectoryInfo{Path: path}
	if e == nil {
		return info
	}
	info.LoadedAt = e.loadedAt
	if e.err != nil {
		info.Error = e.err.Error()
	}
	if e.dir != nil {
		info.Key = e.dir.Key()
		info.Files = e.dir.FileCount()
		info.Records = e.dir.RecordCount()
		if e.err == nil {
			info.Stats = e.dir.Stats()
		}
	}
	return info
}

// Describe renders a one-line summary of infos for logs and status output.
func Describe(infos []DirectoryInfo) string {
	parts := make([]string, 0, len(infos))
	for _, i := range infos {
		parts = append(parts, fmt.Sprintf("%s(%d files, %d records)", filepath.Base(i.Path), i.Files, i.Records))
	}
	return strings.Join(parts, ", ")
}

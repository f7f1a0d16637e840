// Package cache keeps one persisted snapshot of extracted contacts per
// vCard directory and reconciles it against the filesystem.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/vcq/internal/extract"
	"github.com/starford/vcq/internal/models"
)

// SchemaVersion is bumped whenever the snapshot layout or extraction rules
// change. Stores written under another version are discarded, not migrated.
const SchemaVersion = 1

// SourceFile holds what was extracted from one contact file.
type SourceFile struct {
	Path      string           `json:"path"`
	Timestamp int64            `json:"timestamp"` // mtime, unix nanoseconds
	Contacts  []models.Contact `json:"contacts"`
}

// NewSourceFile extracts path from scratch. The mtime is read before the
// content so a concurrent edit is picked up on the next run.
func NewSourceFile(path string, logger *slog.Logger) (*SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cache: stat %s: %w", path, err)
	}
	contacts, err := extract.File(path, logger)
	if err != nil {
		return nil, err
	}
	return &SourceFile{
		Path:      path,
		Timestamp: info.ModTime().UnixNano(),
		Contacts:  contacts,
	}, nil
}

// StaleAt reports whether a live mtime is newer than the stored one.
func (f *SourceFile) StaleAt(mtime int64) bool {
	return mtime > f.Timestamp
}

// NeedsUpdate stats the file and reports whether it must be re-extracted.
// A file that can no longer be stat'ed always needs an update.
func (f *SourceFile) NeedsUpdate() bool {
	info, err := os.Stat(f.Path)
	if err != nil {
		return true
	}
	return f.StaleAt(info.ModTime().UnixNano())
}

// Snapshot is the persisted state of one directory.
type Snapshot struct {
	Version      int                    `json:"version"`
	DirTimestamp int64                  `json:"dir_timestamp"` // directory mtime, unix nanoseconds
	Files        map[string]*SourceFile `json:"files"`
}

// NewSnapshot returns the empty snapshot used on first run and whenever a
// stored one cannot be trusted.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: SchemaVersion,
		Files:   make(map[string]*SourceFile),
	}
}

// Validate checks that every entry is keyed by its own absolute path and
// lives directly in dir.
func (s *Snapshot) Validate(dir string) error {
	if s.Files == nil {
		return fmt.Errorf("cache: snapshot has no file map")
	}
	for p, f := range s.Files {
		if f == nil {
			return fmt.Errorf("cache: nil entry for %s", p)
		}
		if f.Path != p {
			return fmt.Errorf("cache: entry %s keyed as %s", f.Path, p)
		}
		if !filepath.IsAbs(p) || !samePath(filepath.Dir(p), dir) {
			return fmt.Errorf("cache: entry %s outside %s", p, dir)
		}
	}
	return nil
}

// rebase re-keys entries under dir's spelling. Entries written by a run that
// named the directory with different case on a case-folding platform would
// otherwise never match the live listing.
func (s *Snapshot) rebase(dir string) {
	var moved []*SourceFile
	for p, f := range s.Files {
		if filepath.Dir(p) != dir {
			moved = append(moved, f)
			delete(s.Files, p)
		}
	}
	for _, f := range moved {
		f.Path = filepath.Join(dir, filepath.Base(f.Path))
		s.Files[f.Path] = f
	}
}

// RecordCount returns the number of address-expanded records.
func (s *Snapshot) RecordCount() int {
	n := 0
	for _, f := range s.Files {
		for _, c := range f.Contacts {
			n += len(c.Addresses)
		}
	}
	return n
}

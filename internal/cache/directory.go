package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/vcq/internal/apperr"
	"github.com/starford/vcq/internal/models"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	fullScan bool
}

// WithLogger sets the logger for reconcile diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithFullScan enumerates the directory even when its mtime has not
// advanced. In-place edits do not touch the directory mtime, so callers
// that know a file changed (the watcher) use this. Per-file staleness
// checks still apply.
func WithFullScan() Option {
	return func(o *options) {
		o.fullScan = true
	}
}

// Stats describes what one reconcile did.
type Stats struct {
	FastPath  bool `json:"fast_path"`
	Files     int  `json:"files"`
	Reused    int  `json:"reused"`
	Extracted int  `json:"extracted"`
	Pruned    int  `json:"pruned"`
	Failed    int  `json:"failed"`
}

func (s Stats) String() string {
	return fmt.Sprintf("fast_path=%t files=%d reused=%d extracted=%d pruned=%d failed=%d",
		s.FastPath, s.Files, s.Reused, s.Extracted, s.Pruned, s.Failed)
}

// Directory is the reconciled contact cache of one directory. Its snapshot
// is not modified after Open returns.
type Directory struct {
	path  string
	key   string
	snap  *Snapshot
	stats Stats
}

// Open loads the stored snapshot for dir, reconciles it with the
// filesystem and persists the result. Only a failure to read the directory
// itself is returned; store and per-file problems are logged.
func Open(dir string, store Store, opts ...Option) (*Directory, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger := o.logger

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve %s: %w", dir, err)
	}
	abs = filepath.Clean(abs)
	canon, err := Canonical(abs)
	if err != nil {
		return nil, err
	}

	d := &Directory{path: abs, key: Key(canon)}
	d.snap = load(store, d.key, abs, logger)

	if err := d.reconcile(o.fullScan, logger); err != nil {
		return nil, err
	}

	if err := store.Save(d.key, d.snap); err != nil {
		logger.Warn("cache: persist failed", slog.String("dir", abs), slog.String("error", err.Error()))
	}

	logger.Debug("cache: reconciled", slog.String("dir", abs), slog.String("stats", d.stats.String()))
	return d, nil
}

// Forget removes the stored snapshot of dir so the next Open starts cold.
func Forget(dir string, store Store) error {
	canon, err := Canonical(dir)
	if err != nil {
		return err
	}
	return store.Remove(Key(canon))
}

func load(store Store, key, dir string, logger *slog.Logger) *Snapshot {
	snap, err := store.Load(key)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewSnapshot()
	case err != nil:
		logger.Warn("cache: unreadable snapshot, starting empty",
			slog.String("dir", dir), slog.String("error", err.Error()))
		return NewSnapshot()
	case snap.Version != SchemaVersion:
		logger.Debug("cache: schema version changed, starting empty",
			slog.String("dir", dir), slog.Int("stored", snap.Version), slog.Int("want", SchemaVersion))
		return NewSnapshot()
	}
	if err := snap.Validate(dir); err != nil {
		logger.Warn("cache: invalid snapshot, starting empty",
			slog.String("dir", dir), slog.String("error", err.Error()))
		return NewSnapshot()
	}
	snap.rebase(dir)
	return snap
}

func (d *Directory) reconcile(fullScan bool, logger *slog.Logger) error {
	info, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("cache: stat %s: %w", d.path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache: %s: %w", d.path, apperr.ErrNotADirectory)
	}
	dirStamp := info.ModTime().UnixNano()

	if !fullScan && dirStamp <= d.snap.DirTimestamp {
		d.stats = Stats{FastPath: true, Files: len(d.snap.Files), Reused: len(d.snap.Files)}
		return nil
	}

	live, err := listFiles(d.path, logger)
	if err != nil {
		return err
	}

	for p := range d.snap.Files {
		if _, ok := live[p]; !ok {
			delete(d.snap.Files, p)
			d.stats.Pruned++
		}
	}

	for p, mtime := range live {
		if sf, ok := d.snap.Files[p]; ok && !sf.StaleAt(mtime) {
			d.stats.Reused++
			continue
		}
		sf, err := NewSourceFile(p, logger)
		if err != nil {
			logger.Warn("cache: extract failed", slog.String("path", p), slog.String("error", err.Error()))
			delete(d.snap.Files, p)
			d.stats.Failed++
			continue
		}
		d.snap.Files[p] = sf
		d.stats.Extracted++
	}

	// A failed file has no entry, so the fast path must not hide it from the
	// next run.
	if d.stats.Failed == 0 {
		d.snap.DirTimestamp = dirStamp
	}
	d.stats.Files = len(d.snap.Files)
	return nil
}

// listFiles returns the absolute path and mtime of every regular file
// directly inside dir. Symlinks are followed; entries that vanish between
// listing and stat are skipped.
func listFiles(dir string, logger *slog.Logger) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", dir, err)
	}
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		info, err := os.Stat(p)
		if err != nil {
			logger.Debug("cache: skipped entry", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out[p] = info.ModTime().UnixNano()
	}
	return out, nil
}

// Path returns the absolute directory path.
func (d *Directory) Path() string { return d.path }

// Key returns the store key of the directory.
func (d *Directory) Key() string { return d.key }

// Stats returns what the reconcile in Open did.
func (d *Directory) Stats() Stats { return d.stats }

// FileCount returns the number of indexed files.
func (d *Directory) FileCount() int { return len(d.snap.Files) }

// RecordCount returns the number of address-expanded records.
func (d *Directory) RecordCount() int { return d.snap.RecordCount() }

// Contacts yields every contact of every indexed file. File order is
// unspecified; contacts within a file keep their source order.
func (d *Directory) Contacts() iter.Seq[models.Contact] {
	return func(yield func(models.Contact) bool) {
		for _, f := range d.snap.Files {
			for _, c := range f.Contacts {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// Records yields one record per address of every indexed contact.
func (d *Directory) Records() iter.Seq[models.Record] {
	return func(yield func(models.Record) bool) {
		for c := range d.Contacts() {
			for r := range c.Records() {
				if !yield(r) {
					return
				}
			}
		}
	}
}

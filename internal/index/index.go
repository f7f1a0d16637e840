package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/vcq/internal/cache"
)

// Verify *Store satisfies cache.Store at compile time.
var _ cache.Store = (*Store)(nil)

// Store keeps each directory snapshot in its own <key>.db file under root.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first Save.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("index: resolve root: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("index: root %s is not a directory", abs)
	}
	return &Store{root: abs}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, key+".db")
}

// Load reads the snapshot stored under key. A missing database file yields
// an error matching fs.ErrNotExist.
func (s *Store) Load(key string) (*cache.Snapshot, error) {
	p := s.path(key)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	db, err := Open(p)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.ReadSnapshot()
}

// Save replaces the snapshot stored under key. A file that cannot be opened
// as a database is deleted and recreated.
func (s *Store) Save(key string, snap *cache.Snapshot) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("index: create root: %w", err)
	}
	p := s.path(key)
	db, err := Open(p)
	if err != nil {
		if rmErr := removeDB(p); rmErr != nil {
			return errors.Join(err, rmErr)
		}
		if db, err = Open(p); err != nil {
			return err
		}
	}
	defer db.Close()
	return db.WriteSnapshot(snap)
}

// Remove deletes the database stored under key. Removing a missing key is
// not an error.
func (s *Store) Remove(key string) error {
	return removeDB(s.path(key))
}

func removeDB(p string) error {
	var errs []error
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(p + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("index: remove %s: %w", p+suffix, err))
		}
	}
	return errors.Join(errs...)
}

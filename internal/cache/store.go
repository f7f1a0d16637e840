package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/starford/vcq/internal/storage"
)

// Store persists snapshots under a stable key. Load must return an error
// matching fs.ErrNotExist when nothing is stored under key.
type Store interface {
	Load(key string) (*Snapshot, error)
	Save(key string, snap *Snapshot) error
	Remove(key string) error
}

// DefaultDir returns the per-user cache location, e.g. ~/.cache/vcq.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache: locate user cache dir: %w", err)
	}
	return filepath.Join(base, "vcq"), nil
}

// Canonical returns the absolute, cleaned form of dir, case-folded on
// platforms whose default filesystems are case-insensitive.
func Canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("cache: resolve %s: %w", dir, err)
	}
	abs = filepath.Clean(abs)
	if foldCase {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}

// foldCase is set on platforms whose default filesystems are
// case-insensitive.
var foldCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// samePath compares two cleaned absolute paths the way Canonical does.
func samePath(a, b string) bool {
	if foldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Key derives the store key of a directory from its canonical path.
func Key(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// JSONStore keeps one JSON document per directory on a storage.Provider.
type JSONStore struct {
	blobs storage.Provider
}

// NewJSONStore creates a JSON store on top of blobs.
func NewJSONStore(blobs storage.Provider) *JSONStore {
	return &JSONStore{blobs: blobs}
}

// OpenJSONStore creates a JSON store in dir.
func OpenJSONStore(dir string) (*JSONStore, error) {
	fsys, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return NewJSONStore(fsys), nil
}

func blobName(key string) string {
	return key + ".json"
}

// Load reads and decodes the snapshot stored under key.
func (s *JSONStore) Load(key string) (*Snapshot, error) {
	data, err := s.blobs.Read(blobName(key))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("cache: decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Save encodes snap and atomically replaces the stored document.
func (s *JSONStore) Save(key string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: encode snapshot %s: %w", key, err)
	}
	return s.blobs.Write(blobName(key), data)
}

// Remove deletes the document stored under key.
func (s *JSONStore) Remove(key string) error {
	return s.blobs.Delete(blobName(key))
}

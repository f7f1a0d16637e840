// Package storage defines the blob store that holds persisted cache files.
package storage

// Provider is the interface for cache-store file operations. Names are
// relative to the store root.
type Provider interface {
	// Read returns the raw bytes stored under name. A missing blob yields an
	// error matching fs.ErrNotExist.
	Read(name string) ([]byte, error)
	// Write atomically replaces the blob stored under name, creating the
	// store root if needed.
	Write(name string, content []byte) error
	// Delete removes the blob stored under name. Deleting a missing blob is
	// not an error.
	Delete(name string) error
}

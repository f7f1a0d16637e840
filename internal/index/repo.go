package index

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/starford/vcq/internal/cache"
	"github.com/starford/vcq/internal/models"
)

const (
	metaSchemaVersion = "schema_version"
	metaDirTimestamp  = "dir_timestamp"
)

// ReadSnapshot loads the whole snapshot. A database without a version row
// yields a snapshot with Version 0.
func (db *DB) ReadSnapshot() (*cache.Snapshot, error) {
	snap := &cache.Snapshot{Files: make(map[string]*cache.SourceFile)}

	meta, err := db.readMeta()
	if err != nil {
		return nil, err
	}
	if v, ok := meta[metaSchemaVersion]; ok {
		if snap.Version, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("index: bad %s %q: %w", metaSchemaVersion, v, err)
		}
	}
	if v, ok := meta[metaDirTimestamp]; ok {
		if snap.DirTimestamp, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("index: bad %s %q: %w", metaDirTimestamp, v, err)
		}
	}

	rows, err := db.conn.Query(`SELECT path, mtime FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: read files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f := &cache.SourceFile{}
		if err := rows.Scan(&f.Path, &f.Timestamp); err != nil {
			return nil, err
		}
		snap.Files[f.Path] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.readContacts(snap.Files); err != nil {
		return nil, err
	}
	return snap, nil
}

func (db *DB) readMeta() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("index: read meta: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (db *DB) readContacts(files map[string]*cache.SourceFile) error {
	rows, err := db.conn.Query(`SELECT path, name, description, addresses FROM contacts ORDER BY path, seq`)
	if err != nil {
		return fmt.Errorf("index: read contacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			path, addrs string
			c           models.Contact
		)
		if err := rows.Scan(&path, &c.Name, &c.Description, &addrs); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(addrs), &c.Addresses); err != nil {
			return fmt.Errorf("index: decode addresses of %s: %w", path, err)
		}
		f, ok := files[path]
		if !ok {
			return fmt.Errorf("index: contact row for unknown file %s", path)
		}
		f.Contacts = append(f.Contacts, c)
	}
	return rows.Err()
}

// WriteSnapshot replaces every stored row with snap in one transaction.
func (db *DB) WriteSnapshot(snap *cache.Snapshot) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, table := range []string{"contacts", "files", "meta"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?), (?, ?)`,
		metaSchemaVersion, strconv.Itoa(snap.Version),
		metaDirTimestamp, strconv.FormatInt(snap.DirTimestamp, 10))
	if err != nil {
		return fmt.Errorf("index: write meta: %w", err)
	}

	fileStmt, err := tx.Prepare(`INSERT INTO files (path, mtime) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare file insert: %w", err)
	}
	defer fileStmt.Close()
	contactStmt, err := tx.Prepare(`INSERT INTO contacts (path, seq, name, description, addresses) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare contact insert: %w", err)
	}
	defer contactStmt.Close()

	for _, p := range slices.Sorted(maps.Keys(snap.Files)) {
		f := snap.Files[p]
		if _, err := fileStmt.Exec(f.Path, f.Timestamp); err != nil {
			return fmt.Errorf("index: insert file %s: %w", f.Path, err)
		}
		for seq, c := range f.Contacts {
			addrs := c.Addresses
			if addrs == nil {
				addrs = []string{}
			}
			addrsJSON, _ := json.Marshal(addrs)
			if _, err := contactStmt.Exec(f.Path, seq, c.Name, c.Description, string(addrsJSON)); err != nil {
				return fmt.Errorf("index: insert contact %s#%d: %w", f.Path, seq, err)
			}
		}
	}

	return tx.Commit()
}

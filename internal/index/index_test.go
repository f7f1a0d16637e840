package index

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/vcq/internal/cache"
	"github.com/starford/vcq/internal/models"
	"github.com/starford/vcq/internal/testutil"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func sampleSnapshot() *cache.Snapshot {
	snap := cache.NewSnapshot()
	snap.DirTimestamp = 1_700_000_000_123_456_789
	snap.Files["/c/a.vcf"] = &cache.SourceFile{
		Path:      "/c/a.vcf",
		Timestamp: 42,
		Contacts: []models.Contact{
			{Name: "Jane Doe", Addresses: []string{"jane@x.com", "j@y.com"}, Description: "vip; friend"},
			{Name: "", Addresses: []string{}, Description: ""},
			{Name: "Zed", Addresses: []string{"zed@x.com"}},
		},
	}
	snap.Files["/c/empty.vcf"] = &cache.SourceFile{Path: "/c/empty.vcf", Timestamp: 7}
	return snap
}

func TestSchemaCreation(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	for _, table := range []string{"meta", "files", "contacts"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	want := sampleSnapshot()
	if err := s.Save("k", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("k")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Version != want.Version || got.DirTimestamp != want.DirTimestamp {
		t.Errorf("header = (%d, %d), want (%d, %d)", got.Version, got.DirTimestamp, want.Version, want.DirTimestamp)
	}
	a := got.Files["/c/a.vcf"]
	if a == nil || !reflect.DeepEqual(a.Contacts, want.Files["/c/a.vcf"].Contacts) {
		t.Errorf("contacts of a.vcf = %+v", a)
	}
	if e := got.Files["/c/empty.vcf"]; e == nil || e.Timestamp != 7 || len(e.Contacts) != 0 {
		t.Errorf("empty.vcf = %+v", e)
	}
}

func TestSaveReplacesRows(t *testing.T) {
	s := testStore(t)
	if err := s.Save("k", sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	next := cache.NewSnapshot()
	next.Files["/c/b.vcf"] = &cache.SourceFile{Path: "/c/b.vcf", Contacts: []models.Contact{{Addresses: []string{"b@x"}}}}
	if err := s.Save("k", next); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("k")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Files) != 1 || got.Files["/c/b.vcf"] == nil {
		t.Errorf("files = %v, want only b.vcf", got.Files)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := testStore(t).Load("nope")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestCorruptFileReportedThenRepaired(t *testing.T) {
	s := testStore(t)
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.path("k"), []byte("this is not a sqlite database, just text padding it out"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load("k")
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load of garbage = %v, want a corruption error", err)
	}

	if err := s.Save("k", sampleSnapshot()); err != nil {
		t.Fatalf("Save over garbage: %v", err)
	}
	got, err := s.Load("k")
	if err != nil {
		t.Fatalf("Load after repair: %v", err)
	}
	if len(got.Files) != 2 {
		t.Errorf("files = %d, want 2", len(got.Files))
	}
}

func TestRemove(t *testing.T) {
	s := testStore(t)
	if err := s.Save("k", sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Load("k"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load after Remove = %v", err)
	}
	if err := s.Remove("k"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestNewStore_RootIsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(f); err == nil {
		t.Fatal("expected error for file root")
	}
}

func TestBackendForDirectoryCache(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCards(t, dir, "a.vcf", testutil.At(0),
		testutil.Card{Name: "Jane Doe", Emails: []string{"jane@x.com"}},
		testutil.Card{Name: "Bob", Emails: []string{"bob@x.com"}})
	testutil.Touch(t, dir, testutil.At(0))
	s := testStore(t)

	cold, err := cache.Open(dir, s, cache.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatalf("cold Open: %v", err)
	}
	if st := cold.Stats(); st.FastPath || st.Extracted != 1 {
		t.Errorf("cold stats = %s", st)
	}

	warm, err := cache.Open(dir, s, cache.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatalf("warm Open: %v", err)
	}
	if st := warm.Stats(); !st.FastPath {
		t.Errorf("warm stats = %s, want fast path", st)
	}
	if warm.RecordCount() != 2 {
		t.Errorf("records = %d, want 2", warm.RecordCount())
	}
}

// Package testutil provides shared test helpers for building vCard
// directories with controlled timestamps.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Base is the reference instant test timestamps are derived from.
var Base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// At returns Base shifted by n seconds.
func At(n int) time.Time {
	return Base.Add(time.Duration(n) * time.Second)
}

// Card describes one vCard to render.
type Card struct {
	Name   string
	Emails []string
	Note   string
}

// Render renders the card as vCard 3.0 text.
func (c Card) Render() string {
	var b strings.Builder
	b.WriteString("BEGIN:VCARD\r\nVERSION:3.0\r\n")
	if c.Name != "" {
		fmt.Fprintf(&b, "FN:%s\r\n", c.Name)
	}
	for _, e := range c.Emails {
		fmt.Fprintf(&b, "EMAIL:%s\r\n", e)
	}
	if c.Note != "" {
		fmt.Fprintf(&b, "NOTE:%s\r\n", strings.ReplaceAll(c.Note, "\n", `\n`))
	}
	b.WriteString("END:VCARD\r\n")
	return b.String()
}

// WriteFile writes raw content to dir/name and pins its mtime.
func WriteFile(t *testing.T, dir, name, content string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	Touch(t, p, mtime)
	return p
}

// WriteCards writes the cards into one file and pins its mtime.
func WriteCards(t *testing.T, dir, name string, mtime time.Time, cards ...Card) string {
	t.Helper()
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.Render())
	}
	return WriteFile(t, dir, name, b.String(), mtime)
}

// Touch sets both atime and mtime of path.
func Touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that drops everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

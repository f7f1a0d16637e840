package vcard

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const janeCard = "BEGIN:VCARD\r\n" +
	"VERSION:3.0\r\n" +
	"FN:Jane Doe\r\n" +
	"EMAIL;TYPE=work:jane@x.com\r\n" +
	"EMAIL;TYPE=home:j@y.com\r\n" +
	"NOTE:vip\\nfriend\r\n" +
	"END:VCARD\r\n"

func TestDecode_SingleCard(t *testing.T) {
	comps, err := Decode(strings.NewReader(janeCard), quiet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(comps) != 1 {
		t.Fatalf("components = %d, want 1", len(comps))
	}
	c := comps[0]
	if c.Kind != KindVCard {
		t.Errorf("kind = %q", c.Kind)
	}
	if fn, ok := c.Value("fn"); !ok || fn != "Jane Doe" {
		t.Errorf("FN = %q, %v", fn, ok)
	}
	if got := c.Values("EMAIL"); !slices.Equal(got, []string{"jane@x.com", "j@y.com"}) {
		t.Errorf("EMAIL = %v", got)
	}
	if note, _ := c.Value("NOTE"); note != "vip\nfriend" {
		t.Errorf("NOTE = %q", note)
	}
	if c.Has("TEL") {
		t.Error("TEL should be absent")
	}
}

func TestDecode_MultipleCards(t *testing.T) {
	input := janeCard + "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Bob\r\nEMAIL:bob@x.com\r\nEND:VCARD\r\n"
	comps, err := Decode(strings.NewReader(input), quiet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("components = %d, want 2", len(comps))
	}
	if fn, _ := comps[1].Value("FN"); fn != "Bob" {
		t.Errorf("second FN = %q", fn)
	}
}

func TestDecode_Empty(t *testing.T) {
	comps, err := Decode(strings.NewReader(""), quiet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(comps) != 0 {
		t.Errorf("components = %d, want 0", len(comps))
	}
}

func TestDecode_NotAVCard(t *testing.T) {
	_, err := Decode(strings.NewReader("FN:orphan property\nEMAIL:x@y.z\n"), quiet)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestDecode_WrappedCard(t *testing.T) {
	input := "BEGIN:VCARD\r\n" +
		"BEGIN:VCARD\r\n" +
		"VERSION:2.1\r\n" +
		"FN:Old Style\r\n" +
		"EMAIL:old@x.com\r\n" +
		"END:VCARD\r\n" +
		"END:VCARD\r\n"
	comps, err := Decode(strings.NewReader(input), quiet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(comps) != 1 {
		t.Fatalf("components = %d, want 1", len(comps))
	}
	if comps[0].Has("BEGIN") {
		t.Error("BEGIN marker leaked into properties")
	}
	if mail, _ := comps[0].Value("EMAIL"); mail != "old@x.com" {
		t.Errorf("EMAIL = %q", mail)
	}
}

func TestComponentChild(t *testing.T) {
	inner := Component{Kind: "vcard", Props: map[string][]string{"FN": {"Inner"}}}
	outer := Component{Kind: "VCALENDAR", Nested: []Component{{Kind: "VEVENT"}, inner}}
	got, ok := outer.Child(KindVCard)
	if !ok {
		t.Fatal("expected nested vcard")
	}
	if fn, _ := got.Value("FN"); fn != "Inner" {
		t.Errorf("FN = %q", fn)
	}
	if _, ok := inner.Child(KindVCard); ok {
		t.Error("leaf component should have no children")
	}
}

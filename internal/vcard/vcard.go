// Package vcard adapts the go-vcard decoder to the small component model the
// rest of vcq works with: a kind, a map of property name to ordered values,
// and optional nested components.
package vcard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	govcard "github.com/emersion/go-vcard"
)

// KindVCard is the component kind of a contact.
const KindVCard = "VCARD"

// ErrFormat wraps any decoding failure reported by the underlying decoder.
var ErrFormat = errors.New("vcard: format error")

// Component is one decoded block of a contact file.
type Component struct {
	Kind   string
	Props  map[string][]string
	Nested []Component
}

// Value returns the first value of the named property.
func (c Component) Value(name string) (string, bool) {
	vals := c.Props[strings.ToUpper(name)]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Values returns every value of the named property in source order.
func (c Component) Values(name string) []string {
	return c.Props[strings.ToUpper(name)]
}

// Has reports whether the named property is present.
func (c Component) Has(name string) bool {
	return len(c.Props[strings.ToUpper(name)]) > 0
}

// Child returns the first nested component of the given kind.
func (c Component) Child(kind string) (Component, bool) {
	for _, n := range c.Nested {
		if strings.EqualFold(n.Kind, kind) {
			return n, true
		}
	}
	return Component{}, false
}

// Decode reads every card in r. The logger receives the adapter's own
// diagnostics; pass a discard logger to silence them.
//
// Some exporters wrap a card in a second BEGIN:VCARD/END:VCARD pair. The
// decoder folds the inner card's properties into the outer one and then
// trips over the unmatched trailing END; Decode drops that one line per
// wrapper instead of failing the whole file.
func Decode(r io.Reader, logger *slog.Logger) ([]Component, error) {
	dec := govcard.NewDecoder(r)

	var out []Component
	pendingEnds := 0
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if pendingEnds > 0 {
				pendingEnds--
				logger.Debug("vcard: skipped wrapper terminator", slog.String("error", err.Error()))
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}

		c := fromCard(card)
		if wrapped := len(card["BEGIN"]); wrapped > 0 {
			pendingEnds += wrapped
			logger.Debug("vcard: unwrapped nested card", slog.Int("depth", wrapped))
		}
		out = append(out, c)
	}
	return out, nil
}

func fromCard(card govcard.Card) Component {
	props := make(map[string][]string, len(card))
	for name, fields := range card {
		if name == "BEGIN" || name == "END" {
			continue
		}
		vals := make([]string, 0, len(fields))
		for _, f := range fields {
			vals = append(vals, f.Value)
		}
		props[strings.ToUpper(name)] = vals
	}
	return Component{Kind: KindVCard, Props: props}
}

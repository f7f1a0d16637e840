// Package extract maps decoded vCard components to contacts.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/vcq/internal/models"
	"github.com/starford/vcq/internal/vcard"
)

// Property names read from a card.
const (
	PropFormattedName = "FN"
	PropEmail         = "EMAIL"
	PropNote          = "NOTE"
)

// ErrNotAContact is returned for components that are neither a vCard nor
// wrap one.
var ErrNotAContact = errors.New("extract: component is not a vcard")

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Contact maps one component to a contact. A component whose kind is not
// VCARD is unwrapped if it carries a nested VCARD (older nesting layout).
func Contact(c vcard.Component) (models.Contact, error) {
	if !strings.EqualFold(c.Kind, vcard.KindVCard) {
		inner, ok := c.Child(vcard.KindVCard)
		if !ok {
			return models.Contact{}, fmt.Errorf("%w: kind %q", ErrNotAContact, c.Kind)
		}
		c = inner
	}

	name, _ := c.Value(PropFormattedName)
	addrs := append([]string(nil), c.Values(PropEmail)...)
	note, _ := c.Value(PropNote)

	return models.Contact{
		Name:        name,
		Addresses:   addrs,
		Description: Description(note),
	}, nil
}

// Description collapses a multi-line note into one line: empty lines are
// dropped and the rest joined with "; ".
func Description(note string) string {
	if note == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(lineBreaks.Replace(note), "\n") {
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "; ")
}

// File decodes the contact file at path and extracts every contact in it.
// Components that are not contacts are logged and skipped; open and decode
// failures are returned.
func File(path string, logger *slog.Logger) ([]models.Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	comps, err := vcard.Decode(f, logger)
	if err != nil {
		return nil, fmt.Errorf("extract: decode %s: %w", path, err)
	}

	contacts := make([]models.Contact, 0, len(comps))
	for _, comp := range comps {
		c, err := Contact(comp)
		if err != nil {
			logger.Warn("extract: skipped component", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

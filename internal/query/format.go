package query

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/starford/vcq/internal/apperr"
	"github.com/starford/vcq/internal/models"
)

// Mode selects how a record is printed.
type Mode int

const (
	// ModeListing prints mail, name and description separated by tabs.
	ModeListing Mode = iota
	// ModeAddressHeader prints an RFC 5322 address such as
	// Jane Doe <jane@x.com>, quoting the name when it needs it.
	ModeAddressHeader
)

var modeNames = map[Mode]string{
	ModeListing:       "listing",
	ModeAddressHeader: "address-header",
}

// ModeNames lists the accepted mode names in display order.
func ModeNames() []string {
	return []string{modeNames[ModeListing], modeNames[ModeAddressHeader]}
}

// ParseMode maps a mode name to a Mode. The empty string means listing.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeListing, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %v)", apperr.ErrInvalidMode, s, ModeNames())
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Format renders r in mode m.
func (m Mode) Format(r models.Record) string {
	if m == ModeAddressHeader {
		return formatAddress(r.Name, r.Mail)
	}
	return r.Listing()
}

// formatAddress renders name <addr>. The name is quoted (or RFC 2047
// encoded) only when it holds something other than atext and spaces. The
// address is printed as stored unless it is a plain local@domain.
func formatAddress(name, addr string) string {
	angle := "<" + addr + ">"
	if wellFormed(addr) {
		angle = (&mail.Address{Address: addr}).String()
	}
	if name == "" {
		return angle
	}
	return displayName(name) + " " + angle
}

const placeholderAddr = "x@x"

func displayName(name string) string {
	if plainName(name) {
		return name
	}
	s := (&mail.Address{Name: name, Address: placeholderAddr}).String()
	return strings.TrimSuffix(s, " <"+placeholderAddr+">")
}

// plainName reports whether name is a phrase of atext words.
func plainName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r == ' ', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-/=?^_`{|}~", r):
		default:
			return false
		}
	}
	return true
}

func wellFormed(addr string) bool {
	local, domain, ok := strings.Cut(addr, "@")
	return ok && local != "" && domain != "" && !strings.Contains(domain, "@")
}

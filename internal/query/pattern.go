// Package query deduplicates, sorts, filters and renders contact records
// gathered from any number of directories.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/vcq/internal/apperr"
)

// Pattern selects records by their listing line. The zero value matches
// everything.
type Pattern struct {
	raw   string
	lower string
	re    *regexp.Regexp
}

// MatchAll returns the pattern used when no pattern is given.
func MatchAll() Pattern {
	return Pattern{}
}

// Literal returns a case-insensitive substring pattern.
func Literal(s string) Pattern {
	return Pattern{raw: s, lower: strings.ToLower(s)}
}

// Regex compiles a case-insensitive regular expression pattern. Syntax
// errors wrap apperr.ErrInvalidPattern.
func Regex(expr string) (Pattern, error) {
	if expr == "" {
		return MatchAll(), nil
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %q: %v", apperr.ErrInvalidPattern, expr, err)
	}
	return Pattern{raw: expr, re: re}, nil
}

// Compile builds a pattern from user input: a regex when regex is set,
// otherwise a literal.
func Compile(text string, regex bool) (Pattern, error) {
	if regex {
		return Regex(text)
	}
	return Literal(text), nil
}

// IsMatchAll reports whether p accepts every line.
func (p Pattern) IsMatchAll() bool {
	return p.re == nil && p.raw == ""
}

// String returns the pattern as the user gave it.
func (p Pattern) String() string {
	return p.raw
}

// Match reports whether line contains a match of p.
func (p Pattern) Match(line string) bool {
	switch {
	case p.re != nil:
		return p.re.MatchString(line)
	case p.lower == "":
		return true
	default:
		return strings.Contains(strings.ToLower(line), p.lower)
	}
}

// MatchAtStart reports whether a match of p begins at the first byte of
// line.
func (p Pattern) MatchAtStart(line string) bool {
	switch {
	case p.re != nil:
		loc := p.re.FindStringIndex(line)
		return loc != nil && loc[0] == 0
	case p.lower == "":
		return true
	default:
		return strings.HasPrefix(strings.ToLower(line), p.lower)
	}
}

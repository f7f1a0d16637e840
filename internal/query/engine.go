package query

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/starford/vcq/internal/models"
)

// SortKey selects the primary sort field.
type SortKey int

const (
	// SortByMail orders by (mail, name, description).
	SortByMail SortKey = iota
	// SortByName orders by (name, mail, description).
	SortByName
)

// ParseSortKey maps "mail" (or "") and "name" to a SortKey.
func ParseSortKey(s string) (SortKey, error) {
	switch s {
	case "", "mail":
		return SortByMail, nil
	case "name":
		return SortByName, nil
	}
	return 0, fmt.Errorf("query: unknown sort key %q (want mail or name)", s)
}

// Options controls one query run.
type Options struct {
	Pattern       Pattern
	AllAddresses  bool
	SortBy        SortKey
	StartingFirst bool
}

// Set is a deduplicated collection of records.
type Set map[models.Record]struct{}

// Add inserts the records of every contact in contacts. Unless all is set,
// only the first address of each contact contributes.
func (s Set) Add(contacts iter.Seq[models.Contact], all bool) {
	for c := range contacts {
		if !all {
			if r, ok := c.First(); ok {
				s[r] = struct{}{}
			}
			continue
		}
		for r := range c.Records() {
			s[r] = struct{}{}
		}
	}
}

// Run collects every source into one set, then filters and sorts it.
func Run(opts Options, sources ...iter.Seq[models.Contact]) []models.Record {
	set := make(Set)
	for _, src := range sources {
		set.Add(src, opts.AllAddresses)
	}

	recs := slices.Collect(maps.Keys(set))
	recs = Filter(recs, opts.Pattern)
	Sort(recs, opts.SortBy)
	if opts.StartingFirst {
		recs = StartingFirst(recs, opts.Pattern)
	}
	return recs
}

// Filter keeps the records whose listing line matches p. recs is reused.
func Filter(recs []models.Record, p Pattern) []models.Record {
	if p.IsMatchAll() {
		return recs
	}
	return slices.DeleteFunc(recs, func(r models.Record) bool {
		return !p.Match(r.Listing())
	})
}

// Sort orders recs ascending, case-insensitively, by the fields selected
// with by. Records that differ only in case are ordered case-sensitively.
func Sort(recs []models.Record, by SortKey) {
	slices.SortFunc(recs, func(a, b models.Record) int {
		ka, kb := sortFields(a, by), sortFields(b, by)
		for i := range ka {
			if c := strings.Compare(strings.ToLower(ka[i]), strings.ToLower(kb[i])); c != 0 {
				return c
			}
		}
		for i := range ka {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
		}
		return 0
	})
}

func sortFields(r models.Record, by SortKey) [3]string {
	if by == SortByName {
		return [3]string{r.Name, r.Mail, r.Description}
	}
	return [3]string{r.Mail, r.Name, r.Description}
}

// StartingFirst moves the records whose listing line starts with a match of
// p in front of the others. Both groups keep their relative order.
func StartingFirst(recs []models.Record, p Pattern) []models.Record {
	if p.IsMatchAll() {
		return recs
	}
	out := make([]models.Record, 0, len(recs))
	var rest []models.Record
	for _, r := range recs {
		if p.MatchAtStart(r.Listing()) {
			out = append(out, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(out, rest...)
}

// StatusLine is printed before the results when requested. Mail clients
// using the query protocol skip the first line of output.
func StatusLine(n int) string {
	return fmt.Sprintf("vcq: %d matching entries", n)
}

// Write prints one line per record in mode, preceded by StatusLine when
// status is set.
func Write(w io.Writer, recs []models.Record, mode Mode, status bool) error {
	bw := bufio.NewWriter(w)
	if status {
		fmt.Fprintln(bw, StatusLine(len(recs)))
	}
	for _, r := range recs {
		bw.WriteString(mode.Format(r))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

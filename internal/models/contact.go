// Package models defines the domain types for vcq.
package models

import "iter"

// Record is one (mail, name, description) triple. It is the unit of
// deduplication, sorting and output. Equality is struct equality over all
// three fields and is case-sensitive.
type Record struct {
	Mail        string `json:"mail"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Listing renders the record as the unescaped tab-separated line that
// patterns are matched against.
func (r Record) Listing() string {
	return r.Mail + "\t" + r.Name + "\t" + r.Description
}

// Contact is what one vCard yields after extraction.
type Contact struct {
	Name        string   `json:"name"`
	Addresses   []string `json:"addresses"`
	Description string   `json:"description"`
}

// Records yields one Record per address, in address order.
// A contact without addresses yields nothing.
func (c Contact) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, addr := range c.Addresses {
			if !yield(Record{Mail: addr, Name: c.Name, Description: c.Description}) {
				return
			}
		}
	}
}

// First returns the record for the contact's first address.
func (c Contact) First() (Record, bool) {
	if len(c.Addresses) == 0 {
		return Record{}, false
	}
	return Record{Mail: c.Addresses[0], Name: c.Name, Description: c.Description}, true
}

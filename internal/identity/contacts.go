// Package identity collapses the redundant identity rows chat.db accumulates
// (one handle row per service and formatting variant of the same person, one
// chat row per device migration of the same conversation) into canonical
// contacts and conversation groups. Source rows are never merged away;
// grouping is recorded alongside them.
package identity

import (
	"strings"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
)

// Contact is a canonical person: every handle row that resolved to the same
// identity. Handles and identities are in source row order.
type Contact struct {
	ID int

	// Hint is the contact-resolution id Messages recorded, when the group
	// was formed by one.
	Hint string

	HandleIDs  []int64
	Identities []string
}

// Contacts is the partition of all handle rows into contacts.
type Contacts struct {
	Contacts []Contact

	// ByHandle maps a handle row id to its contact id.
	ByHandle map[int64]int
}

// NormalizeIdentity reduces a raw handle address to its comparison form:
// email-like strings lowercase, phone-like strings lose their formatting
// punctuation. The result is never used for display.
func NormalizeIdentity(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.ContainsRune(s, '@') {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '(', ')', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DedupeHandles partitions handle rows into contacts.
//
// The resolution hint is authoritative where present: handles sharing a hint
// merge, and handles under different hints never merge, even when their
// identities normalize equal. Hintless handles then join the first contact
// whose identity normalizes equal to theirs, or start their own. Iteration
// is in row order throughout, so repeated runs produce the same partition.
func DedupeHandles(handles []chatdb.HandleRow) *Contacts {
	out := &Contacts{ByHandle: make(map[int64]int, len(handles))}

	byHint := map[string]int{}
	byNormalized := map[string]int{}

	join := func(idx int, h chatdb.HandleRow) {
		c := &out.Contacts[idx]
		c.HandleIDs = append(c.HandleIDs, h.RowID)
		c.Identities = append(c.Identities, h.Identity)
		out.ByHandle[h.RowID] = c.ID
	}
	create := func(h chatdb.HandleRow, hint string) int {
		idx := len(out.Contacts)
		out.Contacts = append(out.Contacts, Contact{ID: idx, Hint: hint})
		join(idx, h)
		return idx
	}

	// First pass: hint groups. Each group also claims its normalized
	// identities so the second pass can route hintless variants to it.
	var hintless []chatdb.HandleRow
	for _, h := range handles {
		if h.PersonCentricID == "" {
			hintless = append(hintless, h)
			continue
		}
		idx, ok := byHint[h.PersonCentricID]
		if !ok {
			idx = create(h, h.PersonCentricID)
			byHint[h.PersonCentricID] = idx
		} else {
			join(idx, h)
		}
		n := NormalizeIdentity(h.Identity)
		if _, claimed := byNormalized[n]; !claimed {
			byNormalized[n] = idx
		}
	}

	// Second pass: merge by normalized identity.
	for _, h := range hintless {
		n := NormalizeIdentity(h.Identity)
		if idx, ok := byNormalized[n]; ok {
			join(idx, h)
			continue
		}
		byNormalized[n] = create(h, "")
	}

	return out
}

// DuplicateCount reports how many contacts own more than one handle row.
func (c *Contacts) DuplicateCount() int {
	n := 0
	for _, contact := range c.Contacts {
		if len(contact.HandleIDs) > 1 {
			n++
		}
	}
	return n
}

// Package integrity cross-references the loaded tables: which messages
// belong to which conversations, which are orphaned, and whether attachment
// rows still point at real files. It reports what it finds and discards
// nothing.
package integrity

import (
	"github.com/trymoose/imessage-exporter/internal/chatdb"
)

// MembershipScan is the outcome of cross-referencing messages against the
// chat-message join table. Every message id appears either in Orphaned or in
// at least one ByChat list, never both.
type MembershipScan struct {
	// ByChat maps a chat row id to its message row ids, in join row order.
	ByChat map[int64][]int64

	// ByMessage maps a message row id to every chat row id that claims it.
	// Messages claimed by several chats stay whole; each chat references
	// the same entity.
	ByMessage map[int64][]int64

	// Orphaned lists message row ids with no join row at all, in source
	// row order. Orphans are retained, just not attached to any chat.
	Orphaned []int64

	// Shared counts messages claimed by more than one chat.
	Shared int

	// DanglingJoins counts join rows naming a message id that does not
	// exist in the message table.
	DanglingJoins int
}

// ScanMemberships partitions messageIDs by the join rows. messageIDs must be
// the full set of loaded message row ids in source order.
func ScanMemberships(messageIDs []int64, joins []chatdb.MembershipRow) *MembershipScan {
	known := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		known[id] = true
	}

	scan := &MembershipScan{
		ByChat:    make(map[int64][]int64),
		ByMessage: make(map[int64][]int64, len(messageIDs)),
	}
	for _, j := range joins {
		if !known[j.MessageID] {
			scan.DanglingJoins++
			continue
		}
		scan.ByChat[j.ChatID] = append(scan.ByChat[j.ChatID], j.MessageID)
		scan.ByMessage[j.MessageID] = append(scan.ByMessage[j.MessageID], j.ChatID)
	}

	for _, id := range messageIDs {
		chats := scan.ByMessage[id]
		switch {
		case len(chats) == 0:
			scan.Orphaned = append(scan.Orphaned, id)
		case len(chats) > 1:
			scan.Shared++
		}
	}
	return scan
}

// Attached reports how many messages belong to at least one chat. Together
// with len(Orphaned) this always sums to the scanned message count.
func (s *MembershipScan) Attached() int {
	return len(s.ByMessage)
}

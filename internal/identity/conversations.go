package identity

import (
	"sort"
	"strconv"
	"strings"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
)

// Conversation is one chat row plus its canonical participant set. Duplicate
// rows of the same conversation (same participants, typically left over from
// device migrations) share a CanonicalID but are never merged: messages stay
// attached to the row that owns them.
type Conversation struct {
	ID          int64
	GUID        string
	Identifier  string
	DisplayName string
	Service     string
	Style       int64

	// Participants is the deduplicated, ascending set of handle row ids.
	Participants []int64

	// CanonicalID is shared by every chat row with the same participant set.
	CanonicalID int

	// MessageIDs is filled during extraction, in timestamp order, and only
	// ever appended to. A message shared with another chat appears in both
	// lists; an orphaned message appears in none.
	MessageIDs []int64
}

// Conversations holds every chat row with canonical grouping applied.
type Conversations struct {
	Chats []Conversation

	// ByChat maps a chat row id to its index in Chats.
	ByChat map[int64]int
}

// Name returns the conversation's display name, falling back to its
// identifier when none was set.
func (c *Conversation) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Identifier
}

// IsGroup reports whether the chat is a group conversation.
func (c *Conversation) IsGroup() bool {
	return c.Style == 43
}

func participantKey(ids []int64) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// BuildConversations groups chat rows by canonical participant set.
// Canonical ids are assigned sequentially from zero in chat row order, so
// the same database always yields the same grouping.
func BuildConversations(chats []chatdb.ChatRow, participants []chatdb.ParticipantRow) *Conversations {
	members := make(map[int64][]int64, len(chats))
	for _, p := range participants {
		members[p.ChatID] = append(members[p.ChatID], p.HandleID)
	}
	for id, ids := range members {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		dedup := ids[:0]
		for i, v := range ids {
			if i == 0 || v != ids[i-1] {
				dedup = append(dedup, v)
			}
		}
		members[id] = dedup
	}

	out := &Conversations{
		Chats:  make([]Conversation, 0, len(chats)),
		ByChat: make(map[int64]int, len(chats)),
	}
	canonical := map[string]int{}
	for _, ch := range chats {
		set := members[ch.RowID]
		key := participantKey(set)
		id, ok := canonical[key]
		if !ok {
			id = len(canonical)
			canonical[key] = id
		}
		out.ByChat[ch.RowID] = len(out.Chats)
		out.Chats = append(out.Chats, Conversation{
			ID:           ch.RowID,
			GUID:         ch.GUID,
			Identifier:   ch.Identifier,
			DisplayName:  ch.DisplayName,
			Service:      ch.ServiceName,
			Style:        ch.Style,
			Participants: set,
			CanonicalID:  id,
		})
	}
	return out
}

// DuplicateGroups reports how many canonical participant sets own more than
// one chat row. A migrated pair counts once.
func (c *Conversations) DuplicateGroups() int {
	owners := map[int]int{}
	for _, ch := range c.Chats {
		owners[ch.CanonicalID]++
	}
	n := 0
	for _, count := range owners {
		if count > 1 {
			n++
		}
	}
	return n
}

// NoParticipantCount reports how many chat rows have no participant rows
// at all.
func (c *Conversations) NoParticipantCount() int {
	n := 0
	for _, ch := range c.Chats {
		if len(ch.Participants) == 0 {
			n++
		}
	}
	return n
}

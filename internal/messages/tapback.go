package messages

import (
	"strconv"
	"strings"
)

// Tapback association types occupy two bands in the message table: 2000s add
// a reaction, 3000s remove one. Offset 6 in either band is a custom emoji
// carried in its own column.
const (
	tapbackAddBase    = 2000
	tapbackRemoveBase = 3000
	tapbackKindSpan   = 6
)

// TapbackKind is the reaction glyph family.
type TapbackKind int

const (
	TapbackLoved TapbackKind = iota
	TapbackLiked
	TapbackDisliked
	TapbackLaughed
	TapbackEmphasized
	TapbackQuestioned
	// TapbackEmoji is a custom emoji reaction; the emoji itself travels in
	// Tapback.Emoji.
	TapbackEmoji
)

// Symbol returns the glyph a reaction renders as.
func (k TapbackKind) Symbol() string {
	switch k {
	case TapbackLoved:
		return "❤️"
	case TapbackLiked:
		return "👍"
	case TapbackDisliked:
		return "👎"
	case TapbackLaughed:
		return "😂"
	case TapbackEmphasized:
		return "‼️"
	case TapbackQuestioned:
		return "❓"
	}
	return ""
}

func (k TapbackKind) String() string {
	switch k {
	case TapbackLoved:
		return "loved"
	case TapbackLiked:
		return "liked"
	case TapbackDisliked:
		return "disliked"
	case TapbackLaughed:
		return "laughed"
	case TapbackEmphasized:
		return "emphasized"
	case TapbackQuestioned:
		return "questioned"
	case TapbackEmoji:
		return "emoji"
	}
	return "tapback(" + strconv.Itoa(int(k)) + ")"
}

// Tapback is one reaction event aimed at a part of another message.
type Tapback struct {
	Kind  TapbackKind
	Emoji string

	// Target addressing, parsed from the association GUID. TargetUnresolved
	// is set by Link when the target message is not in the extraction.
	TargetGUID       string
	TargetPart       int
	TargetUnresolved bool

	// Removal marks the 3000-band events that retract an earlier reaction.
	Removal bool

	FromMe   bool
	HandleID int64
}

// parseTapback classifies a row's association type. The second return is
// false for rows that are not reactions, including sticker placements.
func parseTapback(assocType int64, assocGUID, emoji string) (*Tapback, bool) {
	var kind TapbackKind
	removal := false

	switch {
	case assocType >= tapbackAddBase && assocType <= tapbackAddBase+tapbackKindSpan:
		kind = TapbackKind(assocType - tapbackAddBase)
	case assocType >= tapbackRemoveBase && assocType <= tapbackRemoveBase+tapbackKindSpan:
		kind = TapbackKind(assocType - tapbackRemoveBase)
		removal = true
	default:
		return nil, false
	}

	t := &Tapback{Kind: kind, Removal: removal}
	if kind == TapbackEmoji {
		t.Emoji = emoji
	}
	t.TargetPart, t.TargetGUID = parseTarget(assocGUID)
	return t, true
}

// parseTarget splits an association GUID into the target part index and the
// target message GUID. Three layouts exist: "p:<part>/<guid>" for one part,
// "bp:<guid>" for the whole bubble, and a bare GUID on older databases.
func parseTarget(s string) (part int, guid string) {
	if rest, ok := strings.CutPrefix(s, "p:"); ok {
		if partStr, target, found := strings.Cut(rest, "/"); found {
			n, err := strconv.Atoi(partStr)
			if err == nil {
				return n, target
			}
			return 0, target
		}
		return 0, rest
	}
	if rest, ok := strings.CutPrefix(s, "bp:"); ok {
		return 0, rest
	}
	return 0, s
}

// Package messages turns raw chat.db rows and decoded typedstream archives
// into canonical message entities: body text with attribute ranges, reply and
// tapback linkage, edit history, and announcement classification.
package messages

import (
	"fmt"
	"time"
)

// appleEpoch is the zero point of every timestamp in chat.db.
var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// fromAppleTime converts a raw message timestamp to a wall-clock time.
// Modern databases store nanoseconds since the Apple epoch, pre-High Sierra
// databases whole seconds; the magnitude separates them cleanly because one
// interpretation of any plausible value lands decades outside the other.
func fromAppleTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	if v > 1_000_000_000_000 {
		return appleEpoch.Add(time.Duration(v))
	}
	return appleEpoch.Add(time.Duration(v) * time.Second)
}

// fromAppleSeconds converts a fractional-seconds timestamp, the form used
// inside edit-history property lists.
func fromAppleSeconds(d float64) time.Time {
	if d == 0 {
		return time.Time{}
	}
	return appleEpoch.Add(time.Duration(d * float64(time.Second)))
}

// RangeKind classifies one attribute range of a message body.
type RangeKind int

const (
	// RangeMention marks a mentioned contact; Value is the mentioned
	// identity as recorded by the sender.
	RangeMention RangeKind = iota
	// RangeLink marks a clickable link; Value is the URL.
	RangeLink
	// RangeAttachment marks an attachment position; Value is the file
	// transfer GUID, empty when recovered from a legacy body.
	RangeAttachment
	// RangeEffect marks animated text; Value is the animation name.
	RangeEffect
	// RangeCustom carries an attribute this package does not interpret;
	// Value is the raw attribute key so nothing is silently dropped.
	RangeCustom
)

func (k RangeKind) String() string {
	switch k {
	case RangeMention:
		return "mention"
	case RangeLink:
		return "link"
	case RangeAttachment:
		return "attachment"
	case RangeEffect:
		return "effect"
	case RangeCustom:
		return "custom"
	}
	return fmt.Sprintf("range(%d)", int(k))
}

// AttributeRange is one attributed span of a message body. Offsets are byte
// indexes into Message.Text, half-open, and never extend past the text.
// Ranges of different kinds may cover the same span; two ranges of the same
// kind never start at the same offset.
type AttributeRange struct {
	Start int
	End   int
	Kind  RangeKind
	Value string
}

// Variant is the top-level classification of a message row.
type Variant int

const (
	// VariantNormal is an ordinary message.
	VariantNormal Variant = iota
	// VariantTapback is a reaction to part of another message; it carries a
	// Tapback and renders no body of its own.
	VariantTapback
	// VariantAnnouncement is a system line in the transcript, e.g. a group
	// rename.
	VariantAnnouncement
	// VariantApp is a message generated by an iMessage app; the body text,
	// if any, is a fallback representation.
	VariantApp
)

func (v Variant) String() string {
	switch v {
	case VariantNormal:
		return "normal"
	case VariantTapback:
		return "tapback"
	case VariantAnnouncement:
		return "announcement"
	case VariantApp:
		return "app"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// AnnouncementKind distinguishes the system lines this package recognizes.
type AnnouncementKind int

const (
	// AnnouncementNameChange is a group rename; Title holds the new name.
	AnnouncementNameChange AnnouncementKind = iota
	// AnnouncementIconChange is a new group photo.
	AnnouncementIconChange
	// AnnouncementIconRemoved is a removed group photo.
	AnnouncementIconRemoved
	// AnnouncementUnsent is a message whose every part was unsent.
	AnnouncementUnsent
)

// Announcement is the payload of a VariantAnnouncement message.
type Announcement struct {
	Kind  AnnouncementKind
	Title string
}

// EditStatus is the lifecycle state of one message part.
type EditStatus int

const (
	EditOriginal EditStatus = iota
	EditEdited
	EditUnsent
)

// EditEvent is one revision of an edited message part.
type EditEvent struct {
	Date time.Time
	Text string
	GUID string
}

// PartEdit is the edit state of one message part, with the revision history
// oldest first for edited parts.
type PartEdit struct {
	Part    int
	Status  EditStatus
	History []EditEvent
}

// EditHistory is the decoded edit state of a message, keyed by part index.
type EditHistory struct {
	Parts []PartEdit
}

// PartStatus returns the state of the given part; parts the history does not
// mention are original.
func (h *EditHistory) PartStatus(part int) EditStatus {
	for _, p := range h.Parts {
		if p.Part == part {
			return p.Status
		}
	}
	return EditOriginal
}

// IsFullyUnsent reports whether every recorded part was unsent, which turns
// the whole message into an announcement.
func (h *EditHistory) IsFullyUnsent() bool {
	if len(h.Parts) == 0 {
		return false
	}
	for _, p := range h.Parts {
		if p.Status != EditUnsent {
			return false
		}
	}
	return true
}

// Message is one canonical message entity, constructed once from its source
// row and never mutated afterwards except by reply/tapback linking.
type Message struct {
	ID       int64
	GUID     string
	Date     time.Time
	IsFromMe bool
	HandleID int64
	Service  string
	Subject  string

	// DateRead and DateDelivered are zero when the database recorded no
	// receipt for the message.
	DateRead      time.Time
	DateDelivered time.Time

	// Text is the recovered body; empty when nothing was recoverable.
	// Ranges annotate spans of Text and Lossy records that the styled
	// payload could not be fully decoded.
	Text   string
	Ranges []AttributeRange
	Lossy  bool

	Variant      Variant
	Tapback      *Tapback
	Announcement *Announcement

	// Reply linkage, resolved by Link. ReplyToID is the target message id
	// when resolution succeeded; ReplyUnresolved records a reply whose
	// target is not part of this extraction.
	ThreadOriginatorGUID string
	ReplyToID            int64
	ReplyUnresolved      bool

	// Tapbacks holds the reactions currently applied to this message,
	// newest state only, populated by Link.
	Tapbacks []Tapback

	Edits      *EditHistory
	DateEdited time.Time

	BalloonBundleID       string
	ExpressiveSendStyleID string
}

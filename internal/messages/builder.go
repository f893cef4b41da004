package messages

import (
	"github.com/trymoose/imessage-exporter/internal/chatdb"
	"github.com/trymoose/imessage-exporter/internal/typedstream"
)

// Build constructs the canonical entity for one message row. Body decoding
// never fails the build: an undecodable styled payload falls back to the
// plain text column, or to the legacy extractor, and marks the message
// lossy. Reply and tapback linkage is left for Link.
func Build(row chatdb.MessageRow) Message {
	m := Message{
		ID:                    row.RowID,
		GUID:                  row.GUID,
		Date:                  fromAppleTime(row.Date),
		DateRead:              fromAppleTime(row.DateRead),
		DateDelivered:         fromAppleTime(row.DateDelivered),
		DateEdited:            fromAppleTime(row.DateEdited),
		IsFromMe:              row.IsFromMe,
		HandleID:              row.HandleID,
		Service:               row.Service,
		Subject:               row.Subject,
		ThreadOriginatorGUID:  row.ThreadOriginatorGUID,
		BalloonBundleID:       row.BalloonBundleID,
		ExpressiveSendStyleID: row.ExpressiveSendStyleID,
	}

	buildBody(row, &m)

	if len(row.SummaryInfo) > 0 {
		history, err := ParseEditHistory(row.SummaryInfo)
		if err != nil {
			m.Lossy = true
		} else {
			m.Edits = history
		}
	}

	classify(row, &m)
	return m
}

// buildBody recovers the message text and its attribute ranges.
//
// The styled payload is authoritative when it decodes; the text column is
// the fallback. Replacement characters in fallback text still yield
// attachment ranges, so position information survives even the lossy path.
func buildBody(row chatdb.MessageRow, m *Message) {
	if len(row.AttributedBody) == 0 {
		m.Text = row.Text
		m.Ranges = legacyRanges(m.Text)
		return
	}

	components, err := typedstream.Decode(row.AttributedBody)
	if err == nil {
		if text, ok := bodyText(components); ok {
			m.Text = text
			ranges, rangeErr := buildRanges(text, components)
			if rangeErr != nil {
				m.Lossy = true
				m.Ranges = legacyRanges(text)
				return
			}
			m.Ranges = ranges
			return
		}
		// A well-formed archive with no text object carries no body.
		m.Text = row.Text
		m.Ranges = legacyRanges(m.Text)
		return
	}

	m.Lossy = true
	if row.Text != "" {
		m.Text = row.Text
	} else if text, extractErr := typedstream.ExtractText(row.AttributedBody); extractErr == nil {
		m.Text = text
	}
	m.Ranges = legacyRanges(m.Text)
}

// classify assigns the message variant. Reactions outrank announcements,
// announcements outrank app messages; a message whose every part was
// retracted becomes an announcement regardless of its other fields.
func classify(row chatdb.MessageRow, m *Message) {
	if tapback, ok := parseTapback(row.AssociatedType, row.AssociatedGUID, row.AssociatedEmoji); ok {
		tapback.FromMe = row.IsFromMe
		tapback.HandleID = row.HandleID
		m.Variant = VariantTapback
		m.Tapback = tapback
		return
	}

	switch row.ItemType {
	case 2:
		m.Variant = VariantAnnouncement
		m.Announcement = &Announcement{Kind: AnnouncementNameChange, Title: row.GroupTitle}
		return
	case 3:
		kind := AnnouncementIconChange
		if row.GroupActionType == 1 {
			kind = AnnouncementIconRemoved
		}
		m.Variant = VariantAnnouncement
		m.Announcement = &Announcement{Kind: kind}
		return
	}

	if m.Edits != nil && m.Edits.IsFullyUnsent() {
		m.Variant = VariantAnnouncement
		m.Announcement = &Announcement{Kind: AnnouncementUnsent}
		return
	}

	if row.BalloonBundleID != "" {
		m.Variant = VariantApp
		return
	}
	m.Variant = VariantNormal
}

package chatdb

import (
	"context"
	"database/sql"
	"fmt"
)

// MessageRow is one message table row, raw. Timestamps are nanoseconds since
// the Apple epoch (2001-01-01 UTC) on modern databases, whole seconds on
// databases written before macOS High Sierra.
type MessageRow struct {
	RowID                 int64
	GUID                  string
	Text                  string
	AttributedBody        []byte
	SummaryInfo           []byte
	Service               string
	HandleID              int64
	Subject               string
	Date                  int64
	DateRead              int64
	DateDelivered         int64
	DateEdited            int64
	IsFromMe              bool
	ItemType              int64
	GroupTitle            string
	GroupActionType       int64
	ThreadOriginatorGUID  string
	AssociatedGUID        string
	AssociatedType        int64
	AssociatedEmoji       string
	BalloonBundleID       string
	ExpressiveSendStyleID string
}

// HandleRow is one handle table row: a raw address on one service, with the
// contact-resolution hint Messages recorded for it (if any).
type HandleRow struct {
	RowID           int64
	Identity        string
	Service         string
	PersonCentricID string
}

// ChatRow is one chat table row.
type ChatRow struct {
	RowID       int64
	GUID        string
	Identifier  string
	ServiceName string
	DisplayName string
	Style       int64
}

// ParticipantRow links a chat to one of its member handles.
type ParticipantRow struct {
	ChatID   int64
	HandleID int64
}

// MembershipRow links a message to a chat it appears in. A message may have
// zero or several of these.
type MembershipRow struct {
	ChatID    int64
	MessageID int64
}

// AttachmentRow is one attachment table row. MessageID is zero for rows no
// message references. Filename is empty when the database never recorded a
// path.
type AttachmentRow struct {
	RowID        int64
	MessageID    int64
	GUID         string
	Filename     string
	UTI          string
	MimeType     string
	TransferName string
	TotalBytes   int64
	IsSticker    bool
}

// optional substitutes NULL for columns the open-time probe did not find.
func optional(has bool, expr string) string {
	if has {
		return expr
	}
	return "NULL"
}

// Messages loads every message row in ROWID order.
func (c *DB) Messages(ctx context.Context) ([]MessageRow, error) {
	q := fmt.Sprintf(`
		SELECT
			m.ROWID, m.guid, m.text, m.attributedBody, m.service, m.handle_id,
			m.subject, m.date, m.date_read, m.date_delivered, %s,
			m.is_from_me, m.item_type,
			m.group_title, m.group_action_type,
			m.associated_message_guid, m.associated_message_type, %s,
			m.balloon_bundle_id, m.expressive_send_style_id,
			%s, %s
		FROM message m
		ORDER BY m.ROWID`,
		optional(c.hasDateEdited, "m.date_edited"),
		optional(c.hasTapbackEmoji, "m.associated_message_emoji"),
		optional(c.hasThreadOriginator, "m.thread_originator_guid"),
		optional(c.hasSummaryInfo, "m.message_summary_info"),
	)

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var (
			rowID                          int64
			guid                           string
			text, service, subject         sql.NullString
			groupTitle, assocGUID          sql.NullString
			assocEmoji, threadOriginator   sql.NullString
			balloonBundle, expressiveStyle sql.NullString
			attributedBody, summaryInfo    []byte
			handleID, itemType             sql.NullInt64
			date, dateRead, dateDelivered  sql.NullInt64
			dateEdited                     sql.NullInt64
			isFromMe, groupActionType      sql.NullInt64
			assocType                      sql.NullInt64
		)
		if err := rows.Scan(
			&rowID, &guid, &text, &attributedBody, &service, &handleID,
			&subject, &date, &dateRead, &dateDelivered, &dateEdited,
			&isFromMe, &itemType,
			&groupTitle, &groupActionType,
			&assocGUID, &assocType, &assocEmoji,
			&balloonBundle, &expressiveStyle,
			&threadOriginator, &summaryInfo,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, MessageRow{
			RowID:                 rowID,
			GUID:                  guid,
			Text:                  text.String,
			AttributedBody:        attributedBody,
			SummaryInfo:           summaryInfo,
			Service:               service.String,
			HandleID:              handleID.Int64,
			Subject:               subject.String,
			Date:                  date.Int64,
			DateRead:              dateRead.Int64,
			DateDelivered:         dateDelivered.Int64,
			DateEdited:            dateEdited.Int64,
			IsFromMe:              isFromMe.Int64 != 0,
			ItemType:              itemType.Int64,
			GroupTitle:            groupTitle.String,
			GroupActionType:       groupActionType.Int64,
			ThreadOriginatorGUID:  threadOriginator.String,
			AssociatedGUID:        assocGUID.String,
			AssociatedType:        assocType.Int64,
			AssociatedEmoji:       assocEmoji.String,
			BalloonBundleID:       balloonBundle.String,
			ExpressiveSendStyleID: expressiveStyle.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return out, nil
}

// Handles loads every handle row in ROWID order.
func (c *DB) Handles(ctx context.Context) ([]HandleRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT ROWID, id, service, person_centric_id
		FROM handle
		ORDER BY ROWID`)
	if err != nil {
		return nil, fmt.Errorf("failed to query handles: %w", err)
	}
	defer rows.Close()

	var out []HandleRow
	for rows.Next() {
		var (
			rowID             int64
			identity          string
			service, centric  sql.NullString
		)
		if err := rows.Scan(&rowID, &identity, &service, &centric); err != nil {
			return nil, fmt.Errorf("failed to scan handle row: %w", err)
		}
		out = append(out, HandleRow{
			RowID:           rowID,
			Identity:        identity,
			Service:         service.String,
			PersonCentricID: centric.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read handles: %w", err)
	}
	return out, nil
}

// Chats loads every chat row in ROWID order.
func (c *DB) Chats(ctx context.Context) ([]ChatRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT ROWID, guid, chat_identifier, service_name, display_name, style
		FROM chat
		ORDER BY ROWID`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var (
			rowID                    int64
			guid                     string
			identifier, serviceName  sql.NullString
			displayName              sql.NullString
			style                    sql.NullInt64
		)
		if err := rows.Scan(&rowID, &guid, &identifier, &serviceName, &displayName, &style); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		out = append(out, ChatRow{
			RowID:       rowID,
			GUID:        guid,
			Identifier:  identifier.String,
			ServiceName: serviceName.String,
			DisplayName: displayName.String,
			Style:       style.Int64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chats: %w", err)
	}
	return out, nil
}

// Participants loads the chat-to-handle join table.
func (c *DB) Participants(ctx context.Context) ([]ParticipantRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT chat_id, handle_id
		FROM chat_handle_join
		ORDER BY chat_id, handle_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat participants: %w", err)
	}
	defer rows.Close()

	var out []ParticipantRow
	for rows.Next() {
		var p ParticipantRow
		if err := rows.Scan(&p.ChatID, &p.HandleID); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat participants: %w", err)
	}
	return out, nil
}

// Memberships loads the chat-to-message join table.
func (c *DB) Memberships(ctx context.Context) ([]MembershipRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT chat_id, message_id
		FROM chat_message_join
		ORDER BY chat_id, message_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat memberships: %w", err)
	}
	defer rows.Close()

	var out []MembershipRow
	for rows.Next() {
		var m MembershipRow
		if err := rows.Scan(&m.ChatID, &m.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan membership row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat memberships: %w", err)
	}
	return out, nil
}

// Attachments loads every attachment row in ROWID order, carrying the owning
// message id where one exists.
func (c *DB) Attachments(ctx context.Context) ([]AttachmentRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT
			a.ROWID, j.message_id, a.guid, a.filename, a.uti,
			a.mime_type, a.transfer_name, a.total_bytes, a.is_sticker
		FROM attachment a
		LEFT JOIN message_attachment_join j ON j.attachment_id = a.ROWID
		ORDER BY a.ROWID`)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var out []AttachmentRow
	for rows.Next() {
		var (
			rowID                   int64
			messageID               sql.NullInt64
			guid                    sql.NullString
			filename, uti, mime     sql.NullString
			transferName            sql.NullString
			totalBytes, isSticker   sql.NullInt64
		)
		if err := rows.Scan(
			&rowID, &messageID, &guid, &filename, &uti,
			&mime, &transferName, &totalBytes, &isSticker,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		out = append(out, AttachmentRow{
			RowID:        rowID,
			MessageID:    messageID.Int64,
			GUID:         guid.String,
			Filename:     filename.String,
			UTI:          uti.String,
			MimeType:     mime.String,
			TransferName: transferName.String,
			TotalBytes:   totalBytes.Int64,
			IsSticker:    isSticker.Int64 != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attachments: %w", err)
	}
	return out, nil
}

package chatdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

const modernSchema = `
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT NOT NULL,
	text TEXT,
	attributedBody BLOB,
	service TEXT,
	handle_id INTEGER DEFAULT 0,
	subject TEXT,
	date INTEGER DEFAULT 0,
	date_read INTEGER DEFAULT 0,
	date_delivered INTEGER DEFAULT 0,
	date_edited INTEGER DEFAULT 0,
	is_from_me INTEGER DEFAULT 0,
	item_type INTEGER DEFAULT 0,
	group_title TEXT,
	group_action_type INTEGER DEFAULT 0,
	associated_message_guid TEXT,
	associated_message_type INTEGER DEFAULT 0,
	associated_message_emoji TEXT,
	balloon_bundle_id TEXT,
	expressive_send_style_id TEXT,
	thread_originator_guid TEXT,
	message_summary_info BLOB
);
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY,
	id TEXT NOT NULL,
	service TEXT,
	person_centric_id TEXT
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT NOT NULL,
	chat_identifier TEXT,
	service_name TEXT,
	display_name TEXT,
	style INTEGER DEFAULT 45
);
CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER);
CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);
CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT,
	filename TEXT,
	uti TEXT,
	mime_type TEXT,
	transfer_name TEXT,
	total_bytes INTEGER DEFAULT 0,
	is_sticker INTEGER DEFAULT 0
);
CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER);
`

// legacySchema drops the columns added in later macOS releases.
const legacySchema = `
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT NOT NULL,
	text TEXT,
	attributedBody BLOB,
	service TEXT,
	handle_id INTEGER DEFAULT 0,
	subject TEXT,
	date INTEGER DEFAULT 0,
	date_read INTEGER DEFAULT 0,
	date_delivered INTEGER DEFAULT 0,
	is_from_me INTEGER DEFAULT 0,
	item_type INTEGER DEFAULT 0,
	group_title TEXT,
	group_action_type INTEGER DEFAULT 0,
	associated_message_guid TEXT,
	associated_message_type INTEGER DEFAULT 0,
	balloon_bundle_id TEXT,
	expressive_send_style_id TEXT
);
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY,
	id TEXT NOT NULL,
	service TEXT,
	person_centric_id TEXT
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT NOT NULL,
	chat_identifier TEXT,
	service_name TEXT,
	display_name TEXT,
	style INTEGER DEFAULT 45
);
CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER);
CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);
CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT,
	filename TEXT,
	uti TEXT,
	mime_type TEXT,
	transfer_name TEXT,
	total_bytes INTEGER DEFAULT 0,
	is_sticker INTEGER DEFAULT 0
);
CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER);
`

func createTestDB(t *testing.T, schema string, inserts ...func(*sql.DB) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	for _, insert := range inserts {
		if err := insert(db); err != nil {
			t.Fatalf("failed to seed test database: %v", err)
		}
	}
	return path
}

func exec(query string, args ...any) func(*sql.DB) error {
	return func(db *sql.DB) error {
		_, err := db.Exec(query, args...)
		return err
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "chat.db")); err == nil {
		t.Fatal("expected an error for a missing database file")
	}
}

func TestMessagesModernSchema(t *testing.T) {
	body := []byte{0x04, 0x0B, 's'}
	summary := []byte{0x62, 0x70}
	path := createTestDB(t, modernSchema,
		exec(`INSERT INTO message (
			ROWID, guid, text, attributedBody, service, handle_id, subject, date,
			date_read, date_delivered,
			date_edited, is_from_me, item_type, group_title, group_action_type,
			associated_message_guid, associated_message_type, associated_message_emoji,
			balloon_bundle_id, expressive_send_style_id, thread_originator_guid,
			message_summary_info
		) VALUES (7, 'MSG-GUID', NULL, ?, 'iMessage', 3, NULL, 1000, 1500, 1200,
			2000, 1, 0,
			NULL, 0, 'p:0/OTHER-GUID', 2000, '❤️', NULL, 'invisible-ink',
			'THREAD-GUID', ?)`, body, summary),
	)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	msgs, err := db.Messages(context.Background())
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	m := msgs[0]
	if m.RowID != 7 || m.GUID != "MSG-GUID" {
		t.Fatalf("unexpected identity: %+v", m)
	}
	if m.Text != "" {
		t.Fatalf("NULL text should load empty, got %q", m.Text)
	}
	if len(m.AttributedBody) != len(body) || m.AttributedBody[0] != 0x04 {
		t.Fatalf("unexpected attributedBody: %v", m.AttributedBody)
	}
	if len(m.SummaryInfo) != len(summary) {
		t.Fatalf("unexpected summary info: %v", m.SummaryInfo)
	}
	if !m.IsFromMe || m.HandleID != 3 || m.Date != 1000 || m.DateEdited != 2000 {
		t.Fatalf("unexpected flags: %+v", m)
	}
	if m.DateRead != 1500 || m.DateDelivered != 1200 {
		t.Fatalf("unexpected receipt dates: %+v", m)
	}
	if m.AssociatedGUID != "p:0/OTHER-GUID" || m.AssociatedType != 2000 || m.AssociatedEmoji != "❤️" {
		t.Fatalf("unexpected tapback fields: %+v", m)
	}
	if m.ThreadOriginatorGUID != "THREAD-GUID" || m.ExpressiveSendStyleID != "invisible-ink" {
		t.Fatalf("unexpected thread fields: %+v", m)
	}
}

func TestMessagesLegacySchema(t *testing.T) {
	path := createTestDB(t, legacySchema,
		exec(`INSERT INTO message (ROWID, guid, text, date) VALUES (1, 'OLD-GUID', 'hi', 500)`),
	)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	msgs, err := db.Messages(context.Background())
	if err != nil {
		t.Fatalf("failed to load messages from legacy schema: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	m := msgs[0]
	if m.Text != "hi" || m.Date != 500 {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.ThreadOriginatorGUID != "" || m.DateEdited != 0 || m.SummaryInfo != nil || m.AssociatedEmoji != "" {
		t.Fatalf("absent columns should load as zero values: %+v", m)
	}
}

func TestHandlesChatsAndJoins(t *testing.T) {
	path := createTestDB(t, modernSchema,
		exec(`INSERT INTO handle (ROWID, id, service, person_centric_id)
			VALUES (1, '+15558675309', 'iMessage', 'ABC'), (2, 'a@b.com', 'iMessage', NULL)`),
		exec(`INSERT INTO chat (ROWID, guid, chat_identifier, service_name, display_name, style)
			VALUES (10, 'iMessage;-;+15558675309', '+15558675309', 'iMessage', NULL, 45)`),
		exec(`INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (10, 1), (10, 2)`),
		exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (10, 7)`),
	)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	handles, err := db.Handles(ctx)
	if err != nil {
		t.Fatalf("failed to load handles: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}
	if handles[0].Identity != "+15558675309" || handles[0].PersonCentricID != "ABC" {
		t.Fatalf("unexpected handle: %+v", handles[0])
	}
	if handles[1].PersonCentricID != "" {
		t.Fatalf("NULL hint should load empty, got %+v", handles[1])
	}

	chats, err := db.Chats(ctx)
	if err != nil {
		t.Fatalf("failed to load chats: %v", err)
	}
	if len(chats) != 1 || chats[0].GUID != "iMessage;-;+15558675309" || chats[0].DisplayName != "" {
		t.Fatalf("unexpected chats: %+v", chats)
	}

	participants, err := db.Participants(ctx)
	if err != nil {
		t.Fatalf("failed to load participants: %v", err)
	}
	if len(participants) != 2 || participants[0].ChatID != 10 {
		t.Fatalf("unexpected participants: %+v", participants)
	}

	memberships, err := db.Memberships(ctx)
	if err != nil {
		t.Fatalf("failed to load memberships: %v", err)
	}
	if len(memberships) != 1 || memberships[0].MessageID != 7 {
		t.Fatalf("unexpected memberships: %+v", memberships)
	}
}

func TestAttachments(t *testing.T) {
	path := createTestDB(t, modernSchema,
		exec(`INSERT INTO attachment (ROWID, guid, filename, uti, mime_type, transfer_name, total_bytes, is_sticker)
			VALUES (1, 'AT-1', '~/Library/Messages/Attachments/a.heic', 'public.heic', 'image/heic', 'a.heic', 4096, 0),
			       (2, 'AT-2', NULL, NULL, NULL, NULL, 0, 1)`),
		exec(`INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (7, 1)`),
	)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	attachments, err := db.Attachments(context.Background())
	if err != nil {
		t.Fatalf("failed to load attachments: %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(attachments))
	}

	a := attachments[0]
	if a.MessageID != 7 || a.GUID != "AT-1" || a.TotalBytes != 4096 {
		t.Fatalf("unexpected attachment: %+v", a)
	}
	if a.Filename != "~/Library/Messages/Attachments/a.heic" {
		t.Fatalf("unexpected filename: %q", a.Filename)
	}

	b := attachments[1]
	if b.MessageID != 0 {
		t.Fatalf("unreferenced attachment should carry message id 0, got %+v", b)
	}
	if b.Filename != "" || !b.IsSticker {
		t.Fatalf("unexpected attachment: %+v", b)
	}
}

func TestStats(t *testing.T) {
	path := createTestDB(t, modernSchema,
		exec(`INSERT INTO message (ROWID, guid) VALUES (1, 'A'), (2, 'B'), (3, 'C')`),
		exec(`INSERT INTO handle (ROWID, id) VALUES (1, 'x')`),
		exec(`INSERT INTO chat (ROWID, guid) VALUES (1, 'c1'), (2, 'c2')`),
		exec(`INSERT INTO attachment (ROWID, guid) VALUES (1, 'a1')`),
	)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer db.Close()

	stats, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("failed to collect stats: %v", err)
	}
	if stats.Messages != 3 || stats.Handles != 1 || stats.Chats != 2 || stats.Attachments != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.SizeBytes <= 0 {
		t.Fatalf("expected a positive database size, got %d", stats.SizeBytes)
	}
}

package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trymoose/imessage-exporter/internal/extract"
	"github.com/trymoose/imessage-exporter/internal/messages"
)

// ndjsonFile is the single output file; one JSON object per line, one line
// per message, in timestamp order.
const ndjsonFile = "messages.ndjson"

type jsonRange struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

type jsonTapback struct {
	Kind  string `json:"kind"`
	Emoji string `json:"emoji,omitempty"`
	By    string `json:"by"`
	Part  int    `json:"part"`
}

type jsonRevision struct {
	Date time.Time `json:"date"`
	Text string    `json:"text"`
}

type jsonEdit struct {
	Part    int            `json:"part"`
	Status  string         `json:"status"`
	History []jsonRevision `json:"history,omitempty"`
}

type jsonAttachment struct {
	GUID         string `json:"guid"`
	Status       string `json:"status"`
	Path         string `json:"path,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	TransferName string `json:"transfer_name,omitempty"`
	Bytes        int64  `json:"bytes,omitempty"`
	Sticker      bool   `json:"sticker,omitempty"`
}

type jsonAnnouncement struct {
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"`
}

type jsonMessage struct {
	RowID         int64             `json:"row_id"`
	GUID          string            `json:"guid"`
	Conversations []string          `json:"conversations"`
	Sender        string            `json:"sender"`
	FromMe        bool              `json:"from_me"`
	Service       string            `json:"service,omitempty"`
	Date          time.Time         `json:"date"`
	DateRead      *time.Time        `json:"date_read,omitempty"`
	DateDelivered *time.Time        `json:"date_delivered,omitempty"`
	DateEdited    *time.Time        `json:"date_edited,omitempty"`
	Subject       string            `json:"subject,omitempty"`
	Text          string            `json:"text,omitempty"`
	Lossy         bool              `json:"lossy,omitempty"`
	Variant       string            `json:"variant"`
	Announcement  *jsonAnnouncement `json:"announcement,omitempty"`
	ReplyToGUID   string            `json:"reply_to_guid,omitempty"`
	ReplyTo       int64             `json:"reply_to,omitempty"`
	Unresolved    bool              `json:"unresolved_reply,omitempty"`
	Expressive    string            `json:"expressive,omitempty"`
	Ranges        []jsonRange       `json:"ranges,omitempty"`
	Tapbacks      []jsonTapback     `json:"tapbacks,omitempty"`
	Edits         []jsonEdit        `json:"edits,omitempty"`
	Attachments   []jsonAttachment  `json:"attachments,omitempty"`
	Orphaned      bool              `json:"orphaned,omitempty"`
}

// WriteNDJSON renders every message, including orphans and reactions, as
// one JSON object per line.
func WriteNDJSON(ctx context.Context, res *extract.Result, opts Options) error {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f := newFormatter(res, opts)

	path := filepath.Join(opts.Dir, ndjsonFile)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)

	for i := range res.Messages {
		if err := ctx.Err(); err != nil {
			file.Close()
			return err
		}
		if err := enc.Encode(buildRecord(f, &res.Messages[i])); err != nil {
			file.Close()
			return fmt.Errorf("failed to encode message %d: %w", res.Messages[i].ID, err)
		}
	}

	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func buildRecord(f *formatter, msg *messages.Message) jsonMessage {
	rec := jsonMessage{
		RowID:         msg.ID,
		GUID:          msg.GUID,
		Conversations: []string{},
		Sender:        f.who(msg.HandleID, msg.IsFromMe),
		FromMe:        msg.IsFromMe,
		Service:       msg.Service,
		Date:          msg.Date,
		Subject:       msg.Subject,
		Text:          msg.Text,
		Lossy:         msg.Lossy,
		Variant:       msg.Variant.String(),
		ReplyToGUID:   msg.ThreadOriginatorGUID,
		ReplyTo:       msg.ReplyToID,
		Unresolved:    msg.ReplyUnresolved,
		Expressive:    msg.ExpressiveSendStyleID,
	}
	if !msg.DateRead.IsZero() {
		read := msg.DateRead
		rec.DateRead = &read
	}
	if !msg.DateDelivered.IsZero() {
		delivered := msg.DateDelivered
		rec.DateDelivered = &delivered
	}
	if !msg.DateEdited.IsZero() {
		edited := msg.DateEdited
		rec.DateEdited = &edited
	}

	chats := f.res.Scan.ByMessage[msg.ID]
	for _, chatID := range chats {
		if idx, ok := f.res.Conversations.ByChat[chatID]; ok {
			rec.Conversations = append(rec.Conversations, f.conversationName(&f.res.Conversations.Chats[idx]))
		}
	}
	rec.Orphaned = len(chats) == 0

	if msg.Announcement != nil {
		rec.Announcement = &jsonAnnouncement{
			Kind:  announcementKindName(msg.Announcement.Kind),
			Title: msg.Announcement.Title,
		}
	}

	for _, r := range msg.Ranges {
		rec.Ranges = append(rec.Ranges, jsonRange{
			Start: r.Start, End: r.End, Kind: r.Kind.String(), Value: r.Value,
		})
	}
	for i := range msg.Tapbacks {
		t := &msg.Tapbacks[i]
		rec.Tapbacks = append(rec.Tapbacks, jsonTapback{
			Kind:  t.Kind.String(),
			Emoji: t.Emoji,
			By:    f.who(t.HandleID, t.FromMe),
			Part:  t.TargetPart,
		})
	}
	if msg.Edits != nil {
		for _, part := range msg.Edits.Parts {
			edit := jsonEdit{Part: part.Part, Status: editStatusName(part.Status)}
			for _, ev := range part.History {
				edit.History = append(edit.History, jsonRevision{Date: ev.Date, Text: ev.Text})
			}
			rec.Edits = append(rec.Edits, edit)
		}
	}
	for _, idx := range f.res.ByAttachmentMessage[msg.ID] {
		a := &f.res.Attachments[idx]
		rec.Attachments = append(rec.Attachments, jsonAttachment{
			GUID:         a.GUID,
			Status:       a.Status.String(),
			Path:         a.Path,
			MimeType:     a.MimeType,
			TransferName: a.TransferName,
			Bytes:        a.DiskBytes,
			Sticker:      a.IsSticker,
		})
	}
	return rec
}

func announcementKindName(k messages.AnnouncementKind) string {
	switch k {
	case messages.AnnouncementNameChange:
		return "name-change"
	case messages.AnnouncementIconChange:
		return "icon-change"
	case messages.AnnouncementIconRemoved:
		return "icon-removed"
	case messages.AnnouncementUnsent:
		return "unsent"
	}
	return "unknown"
}

func editStatusName(s messages.EditStatus) string {
	switch s {
	case messages.EditOriginal:
		return "original"
	case messages.EditEdited:
		return "edited"
	case messages.EditUnsent:
		return "unsent"
	}
	return "unknown"
}

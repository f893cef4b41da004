package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/trymoose/imessage-exporter/internal/extract"
	"github.com/trymoose/imessage-exporter/internal/identity"
	"github.com/trymoose/imessage-exporter/internal/integrity"
	"github.com/trymoose/imessage-exporter/internal/messages"
)

// WriteTXT renders one text file per conversation with messages, plus
// orphaned.txt for messages no conversation claims. Reactions render under
// their targets, not as their own entries.
func WriteTXT(ctx context.Context, res *extract.Result, opts Options) error {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f := newFormatter(res, opts)
	replies := f.replyIndex()

	used := make(map[string]bool)
	for i := range res.Conversations.Chats {
		conv := &res.Conversations.Chats[i]
		if len(conv.MessageIDs) == 0 {
			continue
		}
		name := sanitizeFilename(f.conversationName(conv)) + ".txt"
		if used[name] {
			name = fmt.Sprintf("%s-%d.txt", strings.TrimSuffix(name, ".txt"), conv.ID)
		}
		used[name] = true

		if err := writeConversation(ctx, f, replies, conv, filepath.Join(opts.Dir, name)); err != nil {
			return err
		}
		opts.Logger.Debug().Str("file", name).Int("messages", len(conv.MessageIDs)).Msg("conversation exported")
	}

	if len(res.Scan.Orphaned) > 0 {
		if err := writeMessageList(ctx, f, replies, res.Scan.Orphaned, filepath.Join(opts.Dir, "orphaned.txt")); err != nil {
			return err
		}
	}
	return nil
}

func writeConversation(ctx context.Context, f *formatter, replies map[int64][]int64, conv *identity.Conversation, path string) error {
	return writeMessageList(ctx, f, replies, conv.MessageIDs, path)
}

func writeMessageList(ctx context.Context, f *formatter, replies map[int64][]int64, ids []int64, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(file)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			file.Close()
			return err
		}
		msg := f.message(id)
		if msg == nil || msg.Variant == messages.VariantTapback {
			continue
		}
		w.WriteString(renderMessage(f, replies, msg, 0))
		w.WriteString("\n")
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

// addLine appends an indented, newline-terminated block. Multi-line parts
// keep the indent on every line.
func addLine(b *strings.Builder, part, indent string) {
	if part == "" {
		return
	}
	for _, line := range strings.Split(part, "\n") {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// renderMessage formats one message and, at the top level, its replies
// indented beneath it.
func renderMessage(f *formatter, replies map[int64][]int64, msg *messages.Message, indentSize int) string {
	indent := strings.Repeat(" ", indentSize)
	var b strings.Builder

	if msg.Variant == messages.VariantAnnouncement {
		addLine(&b, renderAnnouncement(f, msg), indent)
		return b.String()
	}

	addLine(&b, f.timestampLine(msg), indent)
	addLine(&b, f.who(msg.HandleID, msg.IsFromMe), indent)
	if msg.Subject != "" {
		addLine(&b, msg.Subject, indent)
	}

	if msg.Variant == messages.VariantApp {
		label := "App message"
		if msg.BalloonBundleID != "" {
			label = fmt.Sprintf("App message (%s)", msg.BalloonBundleID)
		}
		addLine(&b, label, indent)
	}

	if msg.Text != "" {
		addLine(&b, msg.Text, indent)
	}
	renderEdits(f, &b, msg, indent)

	for _, idx := range f.res.ByAttachmentMessage[msg.ID] {
		addLine(&b, renderAttachment(&f.res.Attachments[idx]), indent)
	}

	if msg.ExpressiveSendStyleID != "" {
		addLine(&b, "Sent with "+msg.ExpressiveSendStyleID, indent)
	}

	if len(msg.Tapbacks) > 0 {
		addLine(&b, "Tapbacks:", indent)
		for i := range msg.Tapbacks {
			addLine(&b, f.tapbackLabel(&msg.Tapbacks[i]), indent)
		}
	}

	if indentSize == 0 {
		for _, replyID := range replies[msg.ID] {
			reply := f.message(replyID)
			if reply == nil || reply.Variant == messages.VariantTapback {
				continue
			}
			b.WriteString(renderMessage(f, replies, reply, 4))
		}
		if msg.ReplyToID != 0 || msg.ReplyUnresolved {
			addLine(&b, "This message responded to an earlier message.", indent)
		}
	}

	return b.String()
}

// renderEdits appends prior revisions and unsent notes. The message text
// already shows the final state, so the last revision is not repeated.
func renderEdits(f *formatter, b *strings.Builder, msg *messages.Message, indent string) {
	if msg.Edits == nil {
		return
	}
	inner := indent + "    "
	for _, part := range msg.Edits.Parts {
		switch part.Status {
		case messages.EditUnsent:
			who := "They"
			if msg.IsFromMe {
				who = "You"
			}
			addLine(b, who+" unsent this message part!", indent)
		case messages.EditEdited:
			if len(part.History) < 2 {
				continue
			}
			addLine(b, "Edit history:", indent)
			prev := part.History[0].Date
			for i, ev := range part.History[:len(part.History)-1] {
				if i == 0 {
					addLine(b, f.timestamp(ev.Date), inner)
				} else {
					addLine(b, "Edited "+humanize.RelTime(prev, ev.Date, "later", "earlier")+":", inner)
				}
				prev = ev.Date
				addLine(b, ev.Text, inner)
			}
		}
	}
}

func renderAttachment(a *integrity.ClassifiedAttachment) string {
	name := a.TransferName
	if name == "" {
		name = a.Path
	}
	switch a.Status {
	case integrity.StatusPresent:
		if a.IsSticker {
			return "Sticker: " + a.Path
		}
		return a.Path
	case integrity.StatusMissingNoFile:
		return fmt.Sprintf("%s (file missing)", name)
	default:
		return "Attachment missing!"
	}
}

func renderAnnouncement(f *formatter, msg *messages.Message) string {
	who := f.who(msg.HandleID, msg.IsFromMe)
	if msg.IsFromMe {
		who = "You"
	}
	stamp := f.timestamp(msg.Date)
	if msg.Announcement == nil {
		return stamp + " " + who + " performed an unknown action."
	}
	switch msg.Announcement.Kind {
	case messages.AnnouncementNameChange:
		return fmt.Sprintf("%s %s renamed the conversation to %s", stamp, who, msg.Announcement.Title)
	case messages.AnnouncementIconChange:
		return fmt.Sprintf("%s %s changed the group photo.", stamp, who)
	case messages.AnnouncementIconRemoved:
		return fmt.Sprintf("%s %s removed the group photo.", stamp, who)
	case messages.AnnouncementUnsent:
		return fmt.Sprintf("%s %s unsent a message!", stamp, who)
	}
	return stamp + " " + who + " performed an unknown action."
}

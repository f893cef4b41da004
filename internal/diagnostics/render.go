package diagnostics

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

func comma(n int) string {
	return humanize.Comma(int64(n))
}

func bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	line := func(label, format string, args ...any) {
		fmt.Fprintf(w, "  %-28s %s\n", label+":", fmt.Sprintf(format, args...))
	}

	fmt.Fprintf(w, "iMessage database diagnostics (run %s, %s)\n",
		r.RunID, r.GeneratedAt.UTC().Format(time.RFC3339))

	fmt.Fprintln(w, "\nSource")
	line("Database", "%s (%s)", r.DatabasePath, bytes(r.Source.SizeBytes))
	line("Message rows", "%s", humanize.Comma(r.Source.MessageRows))
	line("Handle rows", "%s", humanize.Comma(r.Source.HandleRows))
	line("Chat rows", "%s", humanize.Comma(r.Source.ChatRows))
	line("Attachment rows", "%s", humanize.Comma(r.Source.AttachmentRows))

	fmt.Fprintln(w, "\nContacts")
	line("Contacts", "%s (from %s handles)", comma(r.Contacts.Contacts), comma(r.Contacts.Handles))
	line("Duplicated contacts", "%s", comma(r.Contacts.Duplicated))

	fmt.Fprintln(w, "\nConversations")
	line("Conversations", "%s (%s unique participant sets)",
		comma(r.Conversations.Total), comma(r.Conversations.UniqueSets))
	line("Duplicated chats", "%s", comma(r.Conversations.Duplicated))
	line("Chats with no participants", "%s", comma(r.Conversations.NoParticipants))

	fmt.Fprintln(w, "\nMessages")
	line("Messages", "%s", comma(r.Messages.Total))
	line("Not in any chat", "%s (%s)", comma(r.Messages.Orphaned),
		percent(r.Messages.Orphaned, r.Messages.Total))
	line("In more than one chat", "%s", comma(r.Messages.MultiConversation))
	line("Lossy bodies", "%s (%s)", comma(r.Messages.Lossy),
		percent(r.Messages.Lossy, r.Messages.Total))
	line("Unresolved references", "%s", comma(r.Messages.Unresolved))
	line("Edited", "%s", comma(r.Messages.Edited))
	line("Reactions", "%s", comma(r.Messages.Tapbacks))

	fmt.Fprintln(w, "\nAttachments")
	line("Attachments", "%s", comma(r.Attachments.Total))
	line("Present", "%s (%s)", comma(r.Attachments.Present),
		percent(r.Attachments.Present, r.Attachments.Total))
	line("Missing, no path", "%s", comma(r.Attachments.MissingNoPath))
	line("Missing, no file", "%s", comma(r.Attachments.MissingNoFile))
	line("Bytes declared", "%s", bytes(r.Attachments.DeclaredBytes))
	line("Bytes on disk", "%s", bytes(r.Attachments.DiskBytes))
}

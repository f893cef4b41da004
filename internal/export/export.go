// Package export renders an extraction result to files: plain text, one
// file per conversation, or newline-delimited JSON, one object per message.
// Exporters only read the result; nothing in it changes while they run.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/trymoose/imessage-exporter/internal/extract"
	"github.com/trymoose/imessage-exporter/internal/identity"
	"github.com/trymoose/imessage-exporter/internal/messages"
)

// Options tune one export run.
type Options struct {
	// Dir is the output directory, created if absent.
	Dir string

	// SelfName labels messages sent from this account. Empty means "Me".
	SelfName string

	Logger zerolog.Logger
}

const timestampLayout = "Jan 02, 2006 3:04:05 PM"

// formatter carries the lookups both exporters share.
type formatter struct {
	res  *extract.Result
	self string
}

func newFormatter(res *extract.Result, opts Options) *formatter {
	self := opts.SelfName
	if self == "" {
		self = "Me"
	}
	return &formatter{res: res, self: self}
}

// who names a message sender for display.
func (f *formatter) who(handleID int64, fromMe bool) string {
	if fromMe {
		return f.self
	}
	return f.handleName(handleID)
}

// handleName resolves a handle to its contact's first raw identity.
func (f *formatter) handleName(handleID int64) string {
	if idx, ok := f.res.Contacts.ByHandle[handleID]; ok {
		c := &f.res.Contacts.Contacts[idx]
		if len(c.Identities) > 0 {
			return c.Identities[0]
		}
	}
	return "Unknown"
}

func (f *formatter) timestamp(t time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.Format(timestampLayout)
}

// timestampLine renders the date header for one message. When the database
// recorded a read receipt the delay is appended: for sent messages the time
// until the other side read it, for received ones the time between delivery
// and reading it here.
func (f *formatter) timestampLine(msg *messages.Message) string {
	stamp := f.timestamp(msg.Date)
	since := msg.DateDelivered
	who := "you"
	if msg.IsFromMe {
		since = msg.Date
		who = "them"
	}
	if since.IsZero() || msg.DateRead.Sub(since) < time.Second {
		return stamp
	}
	delay := strings.TrimSpace(humanize.RelTime(since, msg.DateRead, "", ""))
	return fmt.Sprintf("%s (Read by %s after %s)", stamp, who, delay)
}

// conversationName picks the display name, the participant identities, or
// the raw identifier, in that order.
func (f *formatter) conversationName(conv *identity.Conversation) string {
	if conv.DisplayName != "" {
		return conv.DisplayName
	}
	if len(conv.Participants) > 0 {
		names := make([]string, len(conv.Participants))
		for i, h := range conv.Participants {
			names[i] = f.handleName(h)
		}
		return strings.Join(names, ", ")
	}
	if conv.Identifier != "" {
		return conv.Identifier
	}
	return "Unknown conversation"
}

// message returns a pointer into the result's message slice, nil when the
// row id is unknown.
func (f *formatter) message(id int64) *messages.Message {
	if idx, ok := f.res.ByMessageID[id]; ok {
		return &f.res.Messages[idx]
	}
	return nil
}

// replyIndex maps each message to the row ids that reply to it, in
// timestamp order.
func (f *formatter) replyIndex() map[int64][]int64 {
	replies := make(map[int64][]int64)
	for i := range f.res.Messages {
		m := &f.res.Messages[i]
		if m.ReplyToID != 0 {
			replies[m.ReplyToID] = append(replies[m.ReplyToID], m.ID)
		}
	}
	return replies
}

// tapbackLabel renders one reaction: the glyph (or custom emoji) and who
// sent it.
func (f *formatter) tapbackLabel(t *messages.Tapback) string {
	symbol := t.Kind.Symbol()
	if t.Kind == messages.TapbackEmoji && t.Emoji != "" {
		symbol = t.Emoji
	}
	return symbol + " by " + f.who(t.HandleID, t.FromMe)
}

// sanitizeFilename replaces characters that are unsafe in filenames on
// either macOS or Windows.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '"', '/', '\\', '<', '>', ':', '|', '?':
			return '_'
		}
		return r
	}, name)
}

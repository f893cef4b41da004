// Package diagnostics folds the outcome of a full extraction into one
// report: entity counts, damage counts, and source-table totals. It makes no
// decisions of its own; every number is a straight count over data the
// earlier stages already produced.
package diagnostics

import (
	"time"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
	"github.com/trymoose/imessage-exporter/internal/identity"
	"github.com/trymoose/imessage-exporter/internal/integrity"
	"github.com/trymoose/imessage-exporter/internal/messages"
)

// Input carries everything the fold reads. Nil slices and pointers count as
// empty.
type Input struct {
	RunID        string
	GeneratedAt  time.Time
	DatabasePath string

	Stats         chatdb.Stats
	Messages      []messages.Message
	Scan          *integrity.MembershipScan
	Contacts      *identity.Contacts
	Conversations *identity.Conversations
	Attachments   []integrity.ClassifiedAttachment
}

// SourceCounts are raw table totals straight from the database.
type SourceCounts struct {
	MessageRows    int64 `json:"message_rows"`
	HandleRows     int64 `json:"handle_rows"`
	ChatRows       int64 `json:"chat_rows"`
	AttachmentRows int64 `json:"attachment_rows"`
	SizeBytes      int64 `json:"size_bytes"`
}

// ContactCounts summarize the handle partition.
type ContactCounts struct {
	Handles    int `json:"handles"`
	Contacts   int `json:"contacts"`
	Duplicated int `json:"duplicated"`
}

// ConversationCounts summarize chat grouping.
type ConversationCounts struct {
	Total          int `json:"total"`
	UniqueSets     int `json:"unique_sets"`
	Duplicated     int `json:"duplicated"`
	NoParticipants int `json:"no_participants"`
}

// MessageCounts summarize the built message set.
type MessageCounts struct {
	Total             int `json:"total"`
	Orphaned          int `json:"orphaned"`
	MultiConversation int `json:"multi_conversation"`
	Lossy             int `json:"lossy"`
	Unresolved        int `json:"unresolved"`
	Edited            int `json:"edited"`
	Tapbacks          int `json:"tapbacks"`
}

// AttachmentCounts summarize attachment classification and byte totals.
type AttachmentCounts struct {
	Total         int   `json:"total"`
	Present       int   `json:"present"`
	MissingNoPath int   `json:"missing_no_path"`
	MissingNoFile int   `json:"missing_no_file"`
	DeclaredBytes int64 `json:"declared_bytes"`
	DiskBytes     int64 `json:"disk_bytes"`
}

// Report is the complete diagnostic picture of one run. It is built once and
// never mutated.
type Report struct {
	RunID        string    `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	DatabasePath string    `json:"database_path"`

	Source        SourceCounts       `json:"source"`
	Contacts      ContactCounts      `json:"contacts"`
	Conversations ConversationCounts `json:"conversations"`
	Messages      MessageCounts      `json:"messages"`
	Attachments   AttachmentCounts   `json:"attachments"`
}

// BuildReport folds the input into a report.
func BuildReport(in Input) *Report {
	r := &Report{
		RunID:        in.RunID,
		GeneratedAt:  in.GeneratedAt,
		DatabasePath: in.DatabasePath,
		Source: SourceCounts{
			MessageRows:    in.Stats.Messages,
			HandleRows:     in.Stats.Handles,
			ChatRows:       in.Stats.Chats,
			AttachmentRows: in.Stats.Attachments,
			SizeBytes:      in.Stats.SizeBytes,
		},
	}

	if in.Contacts != nil {
		for _, c := range in.Contacts.Contacts {
			r.Contacts.Handles += len(c.HandleIDs)
		}
		r.Contacts.Contacts = len(in.Contacts.Contacts)
		r.Contacts.Duplicated = in.Contacts.DuplicateCount()
	}

	if in.Conversations != nil {
		sets := map[int]bool{}
		for _, ch := range in.Conversations.Chats {
			sets[ch.CanonicalID] = true
		}
		r.Conversations.Total = len(in.Conversations.Chats)
		r.Conversations.UniqueSets = len(sets)
		r.Conversations.Duplicated = in.Conversations.DuplicateGroups()
		r.Conversations.NoParticipants = in.Conversations.NoParticipantCount()
	}

	r.Messages.Total = len(in.Messages)
	for i := range in.Messages {
		m := &in.Messages[i]
		if m.Lossy {
			r.Messages.Lossy++
		}
		if m.ReplyUnresolved {
			r.Messages.Unresolved++
		}
		if m.Tapback != nil && m.Tapback.TargetUnresolved {
			r.Messages.Unresolved++
		}
		if m.Edits != nil {
			r.Messages.Edited++
		}
		if m.Variant == messages.VariantTapback {
			r.Messages.Tapbacks++
		}
	}
	if in.Scan != nil {
		r.Messages.Orphaned = len(in.Scan.Orphaned)
		r.Messages.MultiConversation = in.Scan.Shared
	}

	r.Attachments.Total = len(in.Attachments)
	for _, a := range in.Attachments {
		switch a.Status {
		case integrity.StatusPresent:
			r.Attachments.Present++
			r.Attachments.DiskBytes += a.DiskBytes
		case integrity.StatusMissingNoPath:
			r.Attachments.MissingNoPath++
		case integrity.StatusMissingNoFile:
			r.Attachments.MissingNoFile++
		}
		r.Attachments.DeclaredBytes += a.TotalBytes
	}

	return r
}

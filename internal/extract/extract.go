// Package extract runs the full pipeline: load rows, build messages on a
// worker pool, link references, resolve identities, check attachments, and
// fold the diagnostic report. One call, one read-only result.
package extract

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
	"github.com/trymoose/imessage-exporter/internal/diagnostics"
	"github.com/trymoose/imessage-exporter/internal/identity"
	"github.com/trymoose/imessage-exporter/internal/integrity"
	"github.com/trymoose/imessage-exporter/internal/messages"
)

// Options tune one pipeline run.
type Options struct {
	// Workers bounds the decode pool and the attachment-check pool.
	// Non-positive means GOMAXPROCS.
	Workers int

	// CheckAttachments stats declared attachment paths. When false,
	// declared paths are taken at face value and reported present with an
	// unknown on-disk size.
	CheckAttachments bool

	// Checker overrides the filesystem collaborator. Nil means the real
	// one.
	Checker integrity.FileChecker

	// Home anchors `~` in attachment paths. Empty means the current
	// user's home directory.
	Home string

	Logger zerolog.Logger
}

// Result is everything one run produced. It is handed out read-only; the
// exporters and the CLI only ever walk it.
type Result struct {
	RunID string

	// Messages in (timestamp, row id) order.
	Messages []messages.Message

	// ByMessageID maps a message row id to its index in Messages.
	ByMessageID map[int64]int

	Contacts      *identity.Contacts
	Conversations *identity.Conversations
	Scan          *integrity.MembershipScan

	// Attachments in source row order, classified.
	Attachments []integrity.ClassifiedAttachment

	// ByAttachmentMessage maps a message row id to indexes into
	// Attachments. ByTransferGUID resolves an attachment placeholder
	// range's transfer GUID the same way.
	ByAttachmentMessage map[int64][]int
	ByTransferGUID      map[string]int

	Report *diagnostics.Report
}

// trustingChecker backs the skip-check mode: every declared path is taken
// at face value.
type trustingChecker struct{}

func (trustingChecker) Exists(string) bool         { return true }
func (trustingChecker) Size(string) (int64, error) { return 0, nil }

// Run executes the pipeline against an open database. Any load failure is
// fatal: the error is returned and no result, not even a partial one, comes
// back. Cancellation behaves the same way with ctx.Err().
func Run(ctx context.Context, db *chatdb.DB, opts Options) (*Result, error) {
	log := opts.Logger
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	start := time.Now()

	res := &Result{RunID: uuid.NewString()}
	log.Info().Str("run_id", res.RunID).Str("db", db.Path()).Msg("extraction started")

	stats, err := db.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table stats: %w", err)
	}

	handles, err := db.Handles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load handles: %w", err)
	}
	chats, err := db.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	participants, err := db.Participants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat participants: %w", err)
	}
	memberships, err := db.Memberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat memberships: %w", err)
	}
	attachmentRows, err := db.Attachments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	rows, err := db.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	log.Debug().
		Int("messages", len(rows)).
		Int("handles", len(handles)).
		Int("chats", len(chats)).
		Int("attachments", len(attachmentRows)).
		Msg("rows loaded")

	res.Messages, err = buildMessages(ctx, rows, workers)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(res.Messages, func(i, j int) bool {
		a, b := &res.Messages[i], &res.Messages[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	res.ByMessageID = make(map[int64]int, len(res.Messages))
	for i := range res.Messages {
		res.ByMessageID[res.Messages[i].ID] = i
	}

	links := messages.Link(res.Messages)
	log.Debug().
		Int("replies", links.RepliesResolved).
		Int("tapbacks", links.TapbacksApplied).
		Int("unresolved", links.RepliesUnresolved+links.TapbacksUnresolved).
		Msg("references linked")

	res.Contacts = identity.DedupeHandles(handles)
	res.Conversations = identity.BuildConversations(chats, participants)

	messageIDs := make([]int64, len(rows))
	for i, row := range rows {
		messageIDs[i] = row.RowID
	}
	res.Scan = integrity.ScanMemberships(messageIDs, memberships)
	attachConversations(res)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	checker := opts.Checker
	if checker == nil {
		checker = integrity.OSChecker{}
	}
	if !opts.CheckAttachments {
		checker = trustingChecker{}
	}
	home := opts.Home
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	res.Attachments, err = integrity.NewClassifier(checker, home, workers).Classify(ctx, attachmentRows)
	if err != nil {
		return nil, err
	}
	res.ByAttachmentMessage = make(map[int64][]int)
	res.ByTransferGUID = make(map[string]int, len(res.Attachments))
	for i, a := range res.Attachments {
		if a.MessageID != 0 {
			res.ByAttachmentMessage[a.MessageID] = append(res.ByAttachmentMessage[a.MessageID], i)
		}
		res.ByTransferGUID[a.GUID] = i
	}

	res.Report = diagnostics.BuildReport(diagnostics.Input{
		RunID:         res.RunID,
		GeneratedAt:   time.Now().UTC(),
		DatabasePath:  db.Path(),
		Stats:         stats,
		Messages:      res.Messages,
		Scan:          res.Scan,
		Contacts:      res.Contacts,
		Conversations: res.Conversations,
		Attachments:   res.Attachments,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info().
		Int("messages", len(res.Messages)).
		Int("orphaned", len(res.Scan.Orphaned)).
		Dur("elapsed", time.Since(start)).
		Msg("extraction finished")
	return res, nil
}

// buildMessages decodes rows into messages on a bounded pool. Workers share
// nothing; each writes only its own slot.
func buildMessages(ctx context.Context, rows []chatdb.MessageRow, workers int) ([]messages.Message, error) {
	out := make([]messages.Message, len(rows))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = messages.Build(rows[i])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range rows {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// attachConversations appends message ids to their owning conversations in
// timestamp order. Shared messages land in every owner; orphans in none.
func attachConversations(res *Result) {
	for i := range res.Messages {
		id := res.Messages[i].ID
		for _, chatID := range res.Scan.ByMessage[id] {
			if idx, ok := res.Conversations.ByChat[chatID]; ok {
				conv := &res.Conversations.Chats[idx]
				conv.MessageIDs = append(conv.MessageIDs, id)
			}
		}
	}
}

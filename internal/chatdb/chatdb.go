// Package chatdb reads the Messages sqlite database (chat.db) without ever
// writing to it. It exposes the source tables as plain row slices and leaves
// all interpretation (body decoding, identity merging, integrity checks) to
// the packages above it.
package chatdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// DB is a read-only handle to a chat.db file.
type DB struct {
	db   *sql.DB
	path string

	// Columns added in later macOS releases; probed once at open so the
	// row queries can substitute NULL on older databases.
	hasThreadOriginator bool
	hasSummaryInfo      bool
	hasTapbackEmoji     bool
	hasDateEdited       bool
}

// Open opens chat.db read-only. The file must exist; a missing database is a
// setup problem (usually Full Disk Access), not something to create.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("chat.db not found at %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// query_only blocks writes even inside this process; busy_timeout
	// reduces SQLITE_BUSY errors while Messages.app is active.
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set query_only: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	c := &DB{db: db, path: path}
	for col, dst := range map[string]*bool{
		"thread_originator_guid":   &c.hasThreadOriginator,
		"message_summary_info":     &c.hasSummaryInfo,
		"associated_message_emoji": &c.hasTapbackEmoji,
		"date_edited":              &c.hasDateEdited,
	} {
		has, err := c.hasColumn("message", col)
		if err != nil {
			db.Close()
			return nil, err
		}
		*dst = has
	}
	return c, nil
}

// Close closes the underlying connection pool.
func (c *DB) Close() error {
	return c.db.Close()
}

// Path returns the database file path the handle was opened with.
func (c *DB) Path() string {
	return c.path
}

func (c *DB) hasColumn(table, column string) (bool, error) {
	var n int
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to probe %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// Stats are raw source-table counts plus the database file size, reported
// before any deduplication or filtering.
type Stats struct {
	Messages    int64
	Handles     int64
	Chats       int64
	Attachments int64
	SizeBytes   int64
}

// Stats counts the source tables and sizes the database file.
func (c *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	for table, dst := range map[string]*int64{
		"message":    &s.Messages,
		"handle":     &s.Handles,
		"chat":       &s.Chats,
		"attachment": &s.Attachments,
	} {
		err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to stat database: %w", err)
	}
	s.SizeBytes = info.Size()
	return s, nil
}

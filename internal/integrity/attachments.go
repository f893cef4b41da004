package integrity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
)

// AttachmentStatus classifies one attachment row. Exactly one status applies
// to every row.
type AttachmentStatus int

const (
	// StatusPresent means the declared file exists on disk.
	StatusPresent AttachmentStatus = iota

	// StatusMissingNoPath means the row declares no path at all.
	StatusMissingNoPath

	// StatusMissingNoFile means a path was declared but nothing exists
	// there. Absence means the file is gone now, not that it never was.
	StatusMissingNoFile
)

func (s AttachmentStatus) String() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusMissingNoPath:
		return "missing-no-path"
	case StatusMissingNoFile:
		return "missing-no-file"
	}
	return "unknown"
}

// ClassifiedAttachment is an attachment row plus its on-disk verdict.
type ClassifiedAttachment struct {
	chatdb.AttachmentRow

	Status AttachmentStatus

	// Path is the expanded filesystem path, empty when none was declared.
	Path string

	// DiskBytes is the current file size, set only when Status is
	// StatusPresent. TotalBytes on the row is what the database declared.
	DiskBytes int64
}

// FileChecker answers existence and size questions for attachment paths.
// Tests substitute a fake; OSChecker is the real one.
type FileChecker interface {
	Exists(path string) bool
	Size(path string) (int64, error)
}

// OSChecker checks the local filesystem.
type OSChecker struct{}

func (OSChecker) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSChecker) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Classifier stats attachment paths on a bounded worker pool.
type Classifier struct {
	checker FileChecker
	home    string
	workers int
}

// NewClassifier builds a classifier. home anchors `~` expansion; workers
// bounds stat parallelism and defaults to 4 when non-positive.
func NewClassifier(checker FileChecker, home string, workers int) *Classifier {
	if workers < 1 {
		workers = 4
	}
	return &Classifier{checker: checker, home: home, workers: workers}
}

func (c *Classifier) expand(path string) string {
	if path == "~" {
		return c.home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(c.home, rest)
	}
	return path
}

func (c *Classifier) classify(row chatdb.AttachmentRow) ClassifiedAttachment {
	out := ClassifiedAttachment{AttachmentRow: row}
	if row.Filename == "" {
		out.Status = StatusMissingNoPath
		return out
	}
	out.Path = c.expand(row.Filename)
	if !c.checker.Exists(out.Path) {
		out.Status = StatusMissingNoFile
		return out
	}
	size, err := c.checker.Size(out.Path)
	if err != nil {
		// Vanished between the two calls.
		out.Status = StatusMissingNoFile
		return out
	}
	out.Status = StatusPresent
	out.DiskBytes = size
	return out
}

// Classify stats every row on the pool. Results keep source order. A
// cancelled context aborts the run and returns no partial result.
func (c *Classifier) Classify(ctx context.Context, rows []chatdb.AttachmentRow) ([]ClassifiedAttachment, error) {
	out := make([]ClassifiedAttachment, len(rows))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = c.classify(rows[i])
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

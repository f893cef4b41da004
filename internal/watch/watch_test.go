package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRelevant(t *testing.T) {
	for _, tc := range []struct {
		name string
		want bool
	}{
		{"/messages/chat.db", true},
		{"/messages/chat.db-wal", true},
		{"/messages/chat.db-shm", true},
		{"/messages/chat.db-journal", false},
		{"/messages/other.db", false},
		{"/messages/.DS_Store", false},
	} {
		if got := relevant(tc.name, "chat.db"); got != tc.want {
			t.Errorf("relevant(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.db")
	if err := os.WriteFile(path, []byte("seed"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, Options{
			Path:     path,
			Debounce: 50 * time.Millisecond,
			Logger:   zerolog.Nop(),
		}, func(context.Context) { calls <- struct{}{} })
	}()

	// The initial run fires before any filesystem event.
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run never happened")
	}

	// A burst of writes to the db and its sidecar collapses into one call.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("update"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.WriteFile(path+"-wal", []byte("wal"), 0o644); err != nil {
			t.Fatalf("write wal: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("debounced run never happened")
	}

	// Quiet period with no writes: no further calls.
	select {
	case <-calls:
		t.Error("unexpected extra callback")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop on cancellation")
	}
}

func TestWatchIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.db")
	if err := os.WriteFile(path, []byte("seed"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 16)
	go Watch(ctx, Options{
		Path:     path,
		Debounce: 50 * time.Millisecond,
		Logger:   zerolog.Nop(),
	}, func(context.Context) { calls <- struct{}{} })

	<-calls // initial run

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-calls:
		t.Error("unrelated file triggered the callback")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), Options{
		Path:   filepath.Join(t.TempDir(), "gone", "chat.db"),
		Logger: zerolog.Nop(),
	}, func(context.Context) {})
	if err == nil {
		t.Fatal("expected an error for a missing watch directory")
	}
}

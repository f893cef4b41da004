package integrity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
)

type fakeChecker struct {
	files map[string]int64
}

func (f fakeChecker) Exists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f fakeChecker) Size(path string) (int64, error) {
	size, ok := f.files[path]
	if !ok {
		return 0, errors.New("no such file")
	}
	return size, nil
}

func attachment(rowID int64, filename string) chatdb.AttachmentRow {
	return chatdb.AttachmentRow{RowID: rowID, GUID: fmt.Sprintf("AT-%d", rowID), Filename: filename}
}

func TestClassifyStatuses(t *testing.T) {
	checker := fakeChecker{files: map[string]int64{
		"/home/user/Library/Messages/Attachments/ab/photo.heic": 2048,
	}}
	c := NewClassifier(checker, "/home/user", 2)

	rows := []chatdb.AttachmentRow{
		attachment(1, "~/Library/Messages/Attachments/ab/photo.heic"),
		attachment(2, ""),
		attachment(3, "~/Library/Messages/Attachments/cd/gone.mov"),
	}

	got, err := c.Classify(context.Background(), rows)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("results = %d, want 3", len(got))
	}

	if got[0].Status != StatusPresent {
		t.Errorf("row 1 status = %v, want present", got[0].Status)
	}
	if got[0].DiskBytes != 2048 {
		t.Errorf("row 1 disk bytes = %d, want 2048", got[0].DiskBytes)
	}
	if got[0].Path != "/home/user/Library/Messages/Attachments/ab/photo.heic" {
		t.Errorf("row 1 path = %q, tilde not expanded", got[0].Path)
	}
	if got[1].Status != StatusMissingNoPath {
		t.Errorf("row 2 status = %v, want missing-no-path", got[1].Status)
	}
	if got[2].Status != StatusMissingNoFile {
		t.Errorf("row 3 status = %v, want missing-no-file", got[2].Status)
	}
}

func TestClassifyKeepsSourceOrder(t *testing.T) {
	checker := fakeChecker{files: map[string]int64{}}
	for i := 0; i < 50; i++ {
		checker.files[fmt.Sprintf("/files/%d", i)] = int64(i)
	}
	c := NewClassifier(checker, "/home/user", 8)

	var rows []chatdb.AttachmentRow
	for i := 0; i < 50; i++ {
		rows = append(rows, attachment(int64(i), fmt.Sprintf("/files/%d", i)))
	}

	got, err := c.Classify(context.Background(), rows)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for i, a := range got {
		if a.RowID != int64(i) {
			t.Fatalf("result %d has row id %d, order not preserved", i, a.RowID)
		}
		if a.Status != StatusPresent || a.DiskBytes != int64(i) {
			t.Errorf("result %d = %v/%d", i, a.Status, a.DiskBytes)
		}
	}
}

func TestClassifyExhaustive(t *testing.T) {
	checker := fakeChecker{files: map[string]int64{"/present": 1}}
	c := NewClassifier(checker, "/home/user", 1)

	rows := []chatdb.AttachmentRow{
		attachment(1, "/present"),
		attachment(2, ""),
		attachment(3, "/absent"),
	}
	got, err := c.Classify(context.Background(), rows)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	counts := map[AttachmentStatus]int{}
	for _, a := range got {
		counts[a.Status]++
	}
	if counts[StatusPresent]+counts[StatusMissingNoPath]+counts[StatusMissingNoFile] != len(rows) {
		t.Errorf("statuses not exhaustive: %v", counts)
	}
}

func TestClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClassifier(fakeChecker{}, "/home/user", 2)
	rows := []chatdb.AttachmentRow{attachment(1, "/a"), attachment(2, "/b")}

	got, err := c.Classify(ctx, rows)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got != nil {
		t.Errorf("got partial results %v, want nil", got)
	}
}

func TestStatusStrings(t *testing.T) {
	for status, want := range map[AttachmentStatus]string{
		StatusPresent:       "present",
		StatusMissingNoPath: "missing-no-path",
		StatusMissingNoFile: "missing-no-file",
	} {
		if status.String() != want {
			t.Errorf("String() = %q, want %q", status.String(), want)
		}
	}
}

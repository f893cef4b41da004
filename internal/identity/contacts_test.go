package identity

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
)

func handle(rowID int64, identity, hint string) chatdb.HandleRow {
	return chatdb.HandleRow{RowID: rowID, Identity: identity, Service: "iMessage", PersonCentricID: hint}
}

func TestNormalizeIdentity(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want string
	}{
		{"+1 (555) 867-5309", "+15558675309"},
		{"+15558675309", "+15558675309"},
		{"555.867.5309", "5558675309"},
		{"Jared@Example.COM", "jared@example.com"},
		{"  person@example.com ", "person@example.com"},
		{"BANKALERT", "BANKALERT"},
		{"", ""},
	} {
		if got := NormalizeIdentity(tc.raw); got != tc.want {
			t.Errorf("NormalizeIdentity(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestDedupeHandlesByHint(t *testing.T) {
	contacts := DedupeHandles([]chatdb.HandleRow{
		handle(1, "+15551112222", "ABCDEF"),
		handle(2, "person@example.com", "ABCDEF"),
		handle(3, "+15553334444", "GHIJKL"),
	})

	if len(contacts.Contacts) != 2 {
		t.Fatalf("contacts = %d, want 2", len(contacts.Contacts))
	}
	first := contacts.Contacts[0]
	if first.Hint != "ABCDEF" {
		t.Errorf("hint = %q, want ABCDEF", first.Hint)
	}
	if !reflect.DeepEqual(first.HandleIDs, []int64{1, 2}) {
		t.Errorf("handle ids = %v, want [1 2]", first.HandleIDs)
	}
	if !reflect.DeepEqual(first.Identities, []string{"+15551112222", "person@example.com"}) {
		t.Errorf("identities = %v", first.Identities)
	}
	if contacts.ByHandle[2] != 0 || contacts.ByHandle[3] != 1 {
		t.Errorf("ByHandle = %v", contacts.ByHandle)
	}
}

func TestDedupeHandlesByNormalizedIdentity(t *testing.T) {
	contacts := DedupeHandles([]chatdb.HandleRow{
		handle(1, "+1 (555) 867-5309", ""),
		handle(2, "+15558675309", ""),
		handle(3, "Jared@Example.COM", ""),
		handle(4, "jared@example.com", ""),
		handle(5, "+15550000000", ""),
	})

	if len(contacts.Contacts) != 3 {
		t.Fatalf("contacts = %d, want 3", len(contacts.Contacts))
	}
	if !reflect.DeepEqual(contacts.Contacts[0].HandleIDs, []int64{1, 2}) {
		t.Errorf("phone group = %v, want [1 2]", contacts.Contacts[0].HandleIDs)
	}
	if !reflect.DeepEqual(contacts.Contacts[1].HandleIDs, []int64{3, 4}) {
		t.Errorf("email group = %v, want [3 4]", contacts.Contacts[1].HandleIDs)
	}
	if got := contacts.Contacts[0].Identities[0]; got != "+1 (555) 867-5309" {
		t.Errorf("raw identity = %q, formatting should be preserved", got)
	}
	if contacts.DuplicateCount() != 2 {
		t.Errorf("duplicates = %d, want 2", contacts.DuplicateCount())
	}
}

func TestDedupeHandlesHintlessJoinsHintedGroup(t *testing.T) {
	contacts := DedupeHandles([]chatdb.HandleRow{
		handle(1, "+15551112222", "ABCDEF"),
		handle(2, "+1 (555) 111-2222", ""),
	})

	if len(contacts.Contacts) != 1 {
		t.Fatalf("contacts = %d, want 1", len(contacts.Contacts))
	}
	if !reflect.DeepEqual(contacts.Contacts[0].HandleIDs, []int64{1, 2}) {
		t.Errorf("handle ids = %v, want [1 2]", contacts.Contacts[0].HandleIDs)
	}
}

func TestDedupeHandlesHintSeparates(t *testing.T) {
	// Two people sharing a recycled number: the hint keeps them apart even
	// though the identities normalize equal. A hintless variant lands in
	// whichever group appeared first.
	contacts := DedupeHandles([]chatdb.HandleRow{
		handle(1, "+15551112222", "PERSON-A"),
		handle(2, "+15551112222", "PERSON-B"),
		handle(3, "+1 555 111 2222", ""),
	})

	if len(contacts.Contacts) != 2 {
		t.Fatalf("contacts = %d, want 2", len(contacts.Contacts))
	}
	if contacts.ByHandle[1] == contacts.ByHandle[2] {
		t.Error("distinct hints must not merge")
	}
	if contacts.ByHandle[3] != contacts.ByHandle[1] {
		t.Errorf("hintless variant joined contact %d, want %d", contacts.ByHandle[3], contacts.ByHandle[1])
	}
}

func TestDedupeHandlesDeterministic(t *testing.T) {
	rows := []chatdb.HandleRow{
		handle(1, "+15551112222", "ABCDEF"),
		handle(2, "person@example.com", ""),
		handle(3, "+1 (555) 111-2222", ""),
		handle(4, "Person@Example.com", ""),
		handle(5, "+15559998888", "GHIJKL"),
	}

	first := DedupeHandles(rows)
	for i := 0; i < 10; i++ {
		again := DedupeHandles(rows)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different partition", i)
		}
	}
	if first.DuplicateCount() != 2 {
		t.Errorf("duplicates = %d, want 2", first.DuplicateCount())
	}
}

func TestDedupeHandlesIdempotent(t *testing.T) {
	contacts := DedupeHandles([]chatdb.HandleRow{
		handle(1, "+15551112222", "ABCDEF"),
		handle(2, "+1 (555) 111-2222", ""),
		handle(3, "person@example.com", ""),
		handle(4, "Person@Example.COM", ""),
		handle(5, "+15553334444", ""),
	})

	// Feed the partition back in as rows: one handle per contact, the
	// contact index standing in for the hint.
	rerun := make([]chatdb.HandleRow, len(contacts.Contacts))
	for i, c := range contacts.Contacts {
		rerun[i] = chatdb.HandleRow{
			RowID:           int64(i + 1),
			Identity:        c.Identities[0],
			PersonCentricID: fmt.Sprintf("contact-%d", i),
		}
	}

	again := DedupeHandles(rerun)
	if len(again.Contacts) != len(contacts.Contacts) {
		t.Fatalf("second pass merged %d contacts into %d", len(contacts.Contacts), len(again.Contacts))
	}
	for i := range again.Contacts {
		if len(again.Contacts[i].HandleIDs) != 1 {
			t.Errorf("contact %d grew to %v on the second pass", i, again.Contacts[i].HandleIDs)
		}
	}
}

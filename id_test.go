package spantree

import (
	"sort"
	"testing"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()
	if id1 == id2 {
		t.Error("two IDs should be unique")
	}
	if string(id1.Bytes()) >= string(id2.Bytes()) {
		t.Error("sequential IDs should be time-ordered")
	}
}

func TestNewIDMonotonicSequence(t *testing.T) {
	ids := make([]ID, 100)
	for i := range ids {
		ids[i] = NewID()
	}
	sorted := sort.SliceIsSorted(ids, func(i, j int) bool {
		return string(ids[i].Bytes()) < string(ids[j].Bytes())
	})
	if !sorted {
		t.Error("id sequence not monotonically increasing")
	}
}

func TestIDStringRoundTrip(t *testing.T) {
	for i := 0; i < 10; i++ {
		id := NewID()
		s := id.String()
		parsed, err := ParseID(s)
		if err != nil {
			t.Fatalf("ParseID(%q): %v", s, err)
		}
		if parsed != id {
			t.Errorf("round trip mismatch: %v != %v", parsed, id)
		}
	}
}

func TestIDStringURLSafe(t *testing.T) {
	s := NewID().String()
	if len(s) != 22 {
		t.Errorf("expected 22 chars for 16 bytes unpadded, got %d: %s", len(s), s)
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			t.Errorf("non URL-safe char %q in %s", c, s)
		}
	}
}

func TestParseIDRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "abc", "!!!!", "AAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := ParseID(s); err == nil {
			t.Errorf("ParseID(%q) should fail", s)
		}
	}
}

func TestIDFromBytes(t *testing.T) {
	id := NewID()
	back, err := IDFromBytes(id.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if back != id {
		t.Error("bytes round trip mismatch")
	}
	if _, err := IDFromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("short input should fail")
	}
}

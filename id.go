package spantree

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// ID is a span identifier: a UUIDv7 (RFC 9562), globally unique and
// time-ordered, so later spans compare greater and inserts land near the end
// of the storage index. The zero value is not a valid persisted id.
type ID [16]byte

// NewID generates a new time-sortable span identifier.
// Safe for concurrent use; ordering holds across processes because the
// ordering is time-based, not counter-based.
func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()))
}

// String encodes the id as URL-safe base64 without padding, fit for URL path
// segments and wire payloads.
func (id ID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// IsZero reports whether the id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Bytes returns the raw 16-byte identifier.
func (id ID) Bytes() []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

// ParseID is the inverse of [ID.String].
func ParseID(s string) (ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	if len(raw) != len(ID{}) {
		return ID{}, fmt.Errorf("parse id %q: got %d bytes, want %d", s, len(raw), len(ID{}))
	}
	return ID(raw), nil
}

// IDFromBytes converts a raw identifier, e.g. read back from storage.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != len(ID{}) {
		return ID{}, fmt.Errorf("id from bytes: got %d bytes, want %d", len(b), len(ID{}))
	}
	return ID(b), nil
}

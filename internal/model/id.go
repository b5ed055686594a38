package model

import (
	"github.com/oklog/ulid/v2"
)

// IDLength is the length of a canonical ULID string.
const IDLength = ulid.EncodedSize

// NewID returns a lexicographically sortable identifier whose prefix encodes
// the creation time. Identifiers generated within the same millisecond are
// monotonic.
func NewID() string {
	return ulid.Make().String()
}

// ValidID reports whether s is a well-formed ULID.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

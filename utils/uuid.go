package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// PrefixedID returns a new identifier tagged with its kind, e.g. "bid-<uuid>".
// Ids of one kind share the prefix, so comparing them lexicographically is
// the same as comparing the bare uuids.
func PrefixedID(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// Package uuid provides id generation for locally created records and
// validation helpers.
package uuid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// LocalPrefix marks ids assigned on this device before the server has
// confirmed the record. Server-assigned ids never carry it, so the two id
// spaces cannot collide.
const LocalPrefix = "local-"

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewLocal generates a store-local id for a record created offline.
func NewLocal() string {
	return LocalPrefix + uuid.New().String()
}

// IsLocal reports whether the id was assigned locally rather than by the
// server.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// IsValid checks if a string is a valid UUID v4, with or without the local
// prefix.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(strings.TrimPrefix(s, LocalPrefix))
}

// Validate returns an error if the string is not a valid id.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid id format: %q", s)
	}
	return nil
}

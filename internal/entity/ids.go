package entity

import (
	"strings"

	"github.com/google/uuid"
)

// NullID converts an optional actor or reference id; uuid.Nil becomes NULL.
func NullID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

// ShortID returns the first n upper-case hex characters of id without dashes.
func ShortID(id uuid.UUID, n int) string {
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return hex[:min(n, len(hex))]
}

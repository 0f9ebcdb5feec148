package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Number builds a human-readable document number such as ORD-20250101120000-1A2B3C4D.
func Number(prefix string, id uuid.UUID, at time.Time, idChars int) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102150405"), ShortID(id, idChars))
}

package event

import (
	"fmt"
	"strings"
)

// Importance orders messages by how prominently they should be shown.
// ImportanceLow < ImportanceNormal < ImportanceHigh.
type Importance uint8

const (
	ImportanceLow Importance = iota
	ImportanceNormal
	ImportanceHigh
)

// String returns the lower-case name of the importance.
func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceNormal:
		return "normal"
	case ImportanceHigh:
		return "high"
	default:
		return fmt.Sprintf("importance(%d)", uint8(i))
	}
}

// Valid reports whether i is one of the defined levels.
func (i Importance) Valid() bool { return i <= ImportanceHigh }

// ParseImportance parses "low", "normal" or "high" (case-insensitive).
func ParseImportance(s string) (Importance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImportanceLow, nil
	case "normal", "":
		return ImportanceNormal, nil
	case "high":
		return ImportanceHigh, nil
	default:
		return ImportanceNormal, fmt.Errorf("unknown importance %q", s)
	}
}

package results

import (
	"fmt"
	"strings"
)

// IsolationLevel is a transaction consistency guarantee for result writes.
type IsolationLevel string

const (
	// ReadCommitted readers see only completed writes. Always supported.
	ReadCommitted IsolationLevel = "READ_COMMITTED"

	// Serializable writers run under an exclusive lock. Requires a lock manager.
	Serializable IsolationLevel = "SERIALIZABLE"
)

// ParseIsolationLevel parses a level name, case-insensitively.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	level := IsolationLevel(strings.ToUpper(strings.TrimSpace(s)))
	switch level {
	case ReadCommitted, Serializable:
		return level, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedIsolationLevel, s)
}

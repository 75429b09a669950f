// Package diagnostics holds the small, non-format-critical helpers a
// pagestore.Store uses to identify and describe itself in logs and CLI
// output. None of this touches the on-disk layout.
package diagnostics

import (
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// NewInstanceID returns a random identifier for correlating log lines
// across multiple open stores in one process, the way uuid_helpers.go
// wraps uuid for the rest of the teacher's codebase.
func NewInstanceID() uuid.UUID { return uuid.New() }

// FormatBytes renders a byte count the way a human reads it, e.g. "12 MB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

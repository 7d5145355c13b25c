package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDFunc mints a fresh id for the given prefix (usually a node type).
type IDFunc func(prefix string) string

// NewID returns "<prefix>-<unix millis>-<9 random hex chars>".
func NewID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}

// SequentialIDs returns an IDFunc producing "<prefix>-1", "<prefix>-2", ...
// Useful wherever ids must be reproducible.
func SequentialIDs() IDFunc {
	n := 0
	return func(prefix string) string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// Package idgen generates identifiers for sync and backfill runs so their log
// lines and events can be correlated.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Run ID prefixes.
const (
	SyncPrefix     = "sync-"
	BackfillPrefix = "fill-"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	length   = 12
)

// RunID returns a new run identifier with the given prefix.
func RunID(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustRunID is RunID for callers that cannot act on a failure; it falls back
// to the bare prefix.
func MustRunID(prefix string) string {
	id, err := RunID(prefix)
	if err != nil {
		return prefix + "unknown"
	}
	return id
}

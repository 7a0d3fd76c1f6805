package idgen

import (
	"regexp"
	"testing"
)

func TestRunID(t *testing.T) {
	for _, prefix := range []string{SyncPrefix, BackfillPrefix, ""} {
		id, err := RunID(prefix)
		if err != nil {
			t.Fatalf("RunID(%q) error: %v", prefix, err)
		}
		pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `[0-9a-z]{12}$`)
		if !pattern.MatchString(id) {
			t.Errorf("RunID(%q) = %q, does not match %s", prefix, id, pattern)
		}
	}
}

func TestRunID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := MustRunID(SyncPrefix)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

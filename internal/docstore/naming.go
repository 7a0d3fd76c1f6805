package docstore

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionedName returns the physical index name for version of the logical
// index name.
func VersionedName(name string, version int) string {
	return fmt.Sprintf("%s_%04d", name, version)
}

// ParseVersion extracts the version from a physical index name produced by
// VersionedName.
func ParseVersion(physical string) (int, error) {
	i := strings.LastIndexByte(physical, '_')
	if i < 0 || i == len(physical)-1 {
		return 0, fmt.Errorf("index %q has no version suffix", physical)
	}
	v, err := strconv.Atoi(physical[i+1:])
	if err != nil || v < 1 {
		return 0, fmt.Errorf("index %q has no version suffix", physical)
	}
	return v, nil
}

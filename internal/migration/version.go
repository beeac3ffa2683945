package migration

import (
	"sort"
	"strings"
)

// CanonicalVersion strips leading zeros so that "001" and "1" compare equal.
// The zero version canonicalises to "0".
func CanonicalVersion(v string) string {
	trimmed := strings.TrimLeft(v, "0")
	if trimmed == "" {
		return "0"
	}

	return trimmed
}

// CompareVersions orders two digit-only versions numerically, without
// parsing them into a fixed-size integer. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	ca, cb := CanonicalVersion(a), CanonicalVersion(b)

	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}

	return strings.Compare(ca, cb)
}

// SortScripts returns a new slice of scripts sorted ascending by version.
// The sort is stable and the input slice is not modified.
func SortScripts(scripts []Script) []Script {
	sorted := make([]Script, len(scripts))
	copy(sorted, scripts)

	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareVersions(sorted[i].Version, sorted[j].Version) < 0
	})

	return sorted
}

// Package version compares the dotted numeric version strings workers
// declare (spec.md §6: "version and engine_version are dotted numeric
// strings compared component-wise").
//
// Built on golang.org/x/mod/semver rather than a hand-rolled splitter:
// it already appears (indirectly) in the teacher's dependency graph, and
// reimplementing zero-padding/short-version comparison by hand would
// just duplicate what that module already gets right.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// normalize turns a bare dotted version ("1", "1.2", "1.2.3") into a
// semver string ("v1.0.0", "v1.2.0", "v1.2.3") that golang.org/x/mod/semver
// accepts.
func normalize(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("version: empty version string")
	}
	parts := strings.Split(v, ".")
	for _, p := range parts {
		for _, c := range p {
			if c < '0' || c > '9' {
				return "", fmt.Errorf("version: %q is not a dotted numeric version", v)
			}
		}
	}
	if len(parts) > 3 {
		return "", fmt.Errorf("version: %q has more than 3 dotted components", v)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return "v" + strings.Join(parts, "."), nil
}

// Compare returns -1, 0, or +1 as a is less than, equal to, or greater
// than b, comparing component-wise.
func Compare(a, b string) (int, error) {
	na, err := normalize(a)
	if err != nil {
		return 0, err
	}
	nb, err := normalize(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(na, nb), nil
}

// Satisfies reports whether engineVersion <= runningEngineVersion,
// i.e. whether a worker declaring engineVersion loads under a running
// engine of runningEngineVersion — spec.md §6's load rule.
func Satisfies(engineVersion, runningEngineVersion string) (bool, error) {
	cmp, err := Compare(engineVersion, runningEngineVersion)
	if err != nil {
		return false, err
	}
	return cmp <= 0, nil
}

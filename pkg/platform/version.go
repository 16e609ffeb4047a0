// Package platform models runtime platform versions and the external table
// that maps library references to the first version providing them.
package platform

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a platform version. Versions are immutable and compared by
// semantic version order; the distinguished Unknown version is greater than
// every known version.
type Version struct {
	v       string // canonical semver, empty for Unknown
	unknown bool
}

// Unknown is the version of references that cannot be resolved. Joining
// with it always yields Unknown.
var Unknown = &Version{unknown: true}

// Parse parses "v21", "21", "v26.1" or "v26.1.0".
func Parse(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty platform version")
	}
	if strings.EqualFold(s, "unknown") {
		return Unknown, nil
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return nil, fmt.Errorf("invalid platform version %q", s)
	}
	return &Version{v: semver.Canonical(s)}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsUnknown reports whether v is the Unknown version.
func (v *Version) IsUnknown() bool { return v.unknown }

// Compare returns -1, 0 or +1 as v is older than, equal to, or newer than w.
func (v *Version) Compare(w *Version) int {
	switch {
	case v.unknown && w.unknown:
		return 0
	case v.unknown:
		return 1
	case w.unknown:
		return -1
	}
	return semver.Compare(v.v, w.v)
}

// Equal reports whether v and w denote the same version.
func (v *Version) Equal(w *Version) bool { return v.Compare(w) == 0 }

// String returns the short form, e.g. "v21" or "v26.1".
func (v *Version) String() string {
	if v.unknown {
		return "unknown"
	}
	s := strings.TrimSuffix(v.v, ".0")
	return strings.TrimSuffix(s, ".0")
}

// MarshalText implements encoding.TextMarshaler.
func (v *Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Max returns the newer of v and w, without allocating. Ties return v.
func Max(v, w *Version) *Version {
	if w.Compare(v) > 0 {
		return w
	}
	return v
}

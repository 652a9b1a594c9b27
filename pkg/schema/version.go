package schema

import (
	"cmp"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a major.minor.patch schema version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "1.2.3", tolerating a leading "v". Pre-release and
// build metadata suffixes are rejected.
func ParseVersion(s string) (Version, error) {
	sv, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return Version{}, fmt.Errorf("invalid version %q: want major.minor.patch", s)
	}

	return Version{
		Major: int(sv.Major()),
		Minor: int(sv.Minor()),
		Patch: int(sv.Patch()),
	}, nil
}

// MustParseVersion is ParseVersion for validated input; it panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, o.Patch)
}

// NextMinor returns the next minor version with patch reset.
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// sortDefinitions orders defs by ascending version.
func sortDefinitions(defs []*Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, _ := ParseVersion(defs[i].Version)
		b, _ := ParseVersion(defs[j].Version)
		return a.Compare(b) < 0
	})
}

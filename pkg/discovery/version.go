package discovery

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/freitascorp/agentsdk/pkg/clawerr"
)

// semver is a parsed major.minor.patch triple. Pre-release/build metadata
// is not tracked — the floor check only needs numeric ordering (spec §4.1,
// DESIGN.md: "no semver library appears in any pack go.mod").
type semver struct {
	major, minor, patch int
}

func (v semver) less(other semver) bool {
	if v.major != other.major {
		return v.major < other.major
	}
	if v.minor != other.minor {
		return v.minor < other.minor
	}
	return v.patch < other.patch
}

func parseSemver(s string) (semver, bool) {
	s = strings.TrimPrefix(s, "v")
	// Strip any pre-release/build suffix (e.g. "2.1.0-beta.1").
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return semver{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return semver{}, false
		}
		nums[i] = n
	}
	return semver{major: nums[0], minor: nums[1], patch: nums[2]}, true
}

var minVersion = semver{major: 2, minor: 0, patch: 0}

// CheckVersion runs "<cliPath> --version", extracts a semver from its
// output, and verifies it is not below MinVersion.
//
// spec.md describes only the happy path ("take the first whitespace-
// delimited token"); original_source/transport/discovery.rs additionally
// scans every whitespace token in the output for the first one that
// parses as semver, defending against CLIs that print a banner before the
// version string. This module implements that fallback scan per
// SPEC_FULL.md §4.1.
func CheckVersion(cliPath string) error {
	out, err := exec.Command(cliPath, "--version").Output()
	if err != nil {
		return &clawerr.InvalidVersionError{Version: "(unavailable: " + err.Error() + ")"}
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return &clawerr.InvalidVersionError{Version: ""}
	}

	for _, tok := range fields {
		if v, ok := parseSemver(tok); ok {
			if v.less(minVersion) {
				return &clawerr.InvalidVersionError{Version: tok}
			}
			return nil
		}
	}

	return &clawerr.InvalidVersionError{Version: fields[0]}
}

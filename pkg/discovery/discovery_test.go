package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFind_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	path, err := Find(bin)
	require.NoError(t, err)
	require.Equal(t, bin, path)
}

func TestFind_EnvVarFallback(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv(EnvCLIPath, bin)

	path, err := Find("")
	require.NoError(t, err)
	require.Equal(t, bin, path)
}

func TestFind_NoneFound(t *testing.T) {
	t.Setenv(EnvCLIPath, "")
	t.Setenv("PATH", t.TempDir())

	_, err := Find("/nonexistent/path/to/claude")
	require.Error(t, err)
}

func TestParseSemver(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
		v     semver
	}{
		{"2.0.0", true, semver{2, 0, 0}},
		{"v2.3.1", true, semver{2, 3, 1}},
		{"2.3.1-beta.1", true, semver{2, 3, 1}},
		{"not-a-version", false, semver{}},
		{"2.0", true, semver{2, 0, 0}},
	}
	for _, c := range cases {
		v, ok := parseSemver(c.in)
		require.Equal(t, c.valid, ok, c.in)
		if c.valid {
			require.Equal(t, c.v, v, c.in)
		}
	}
}

func TestSemver_Less(t *testing.T) {
	require.True(t, semver{1, 9, 9}.less(semver{2, 0, 0}))
	require.False(t, semver{2, 0, 0}.less(semver{2, 0, 0}))
	require.True(t, semver{2, 0, 0}.less(semver{2, 0, 1}))
}

func TestCheckVersion_BannerPrefix(t *testing.T) {
	// Simulates original_source's banner-then-version output shape: the
	// first whitespace token isn't semver, so CheckVersion must scan.
	dir := t.TempDir()
	script := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho claude-cli version 2.3.1\n"), 0o755))

	require.NoError(t, CheckVersion(script))
}

func TestCheckVersion_BelowFloor(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 1.9.9\n"), 0o755))

	err := CheckVersion(script)
	require.Error(t, err)
}

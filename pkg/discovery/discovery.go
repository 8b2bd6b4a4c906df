// Package discovery locates the backend CLI binary and verifies it meets
// the minimum supported version (spec §4.1).
package discovery

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/freitascorp/agentsdk/pkg/clawerr"
)

// MinVersion is the minimum backend CLI version this runtime supports.
const MinVersion = "2.0.0"

// EnvCLIPath is the environment variable that overrides discovery (spec §6).
const EnvCLIPath = "CLAUDE_CLI_PATH"

// fixedCandidates is the last-resort fixed candidate list (spec §4.1 step 4).
func fixedCandidates() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"/opt/homebrew/bin/claude",
		"/usr/local/bin/claude",
		"/usr/bin/claude",
		filepath.Join(home, ".local", "bin", "claude"),
		filepath.Join(home, ".npm", "bin", "claude"),
		filepath.Join(home, ".claude", "local", "claude"),
	}
}

// Find resolves the backend binary path following the search order of
// spec §4.1: explicit path, CLAUDE_CLI_PATH, PATH search, fixed candidates.
// explicitPath may be empty.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if fileExists(explicitPath) {
			return explicitPath, nil
		}
	}

	if envPath := os.Getenv(EnvCLIPath); envPath != "" {
		if fileExists(envPath) {
			return envPath, nil
		}
	}

	if found, err := lookPath("claude"); err == nil {
		return found, nil
	}

	for _, candidate := range fixedCandidates() {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", clawerr.ErrCliNotFound
}

// lookPath wraps exec.LookPath, additionally trying .exe/.cmd suffixes on
// Windows (spec §4.1 step 3).
func lookPath(name string) (string, error) {
	if found, err := exec.LookPath(name); err == nil {
		return found, nil
	}
	if runtime.GOOS == "windows" {
		for _, ext := range []string{".exe", ".cmd"} {
			if found, err := exec.LookPath(name + ext); err == nil {
				return found, nil
			}
		}
	}
	return "", exec.ErrNotFound
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Resolve locates the CLI binary and verifies its version meets MinVersion,
// combining Find and CheckVersion into the single entry point callers use
// (spec §4.2 connect step 1-2).
func Resolve(explicitPath string) (string, error) {
	path, err := Find(explicitPath)
	if err != nil {
		return "", err
	}
	if err := CheckVersion(path); err != nil {
		return "", err
	}
	return path, nil
}

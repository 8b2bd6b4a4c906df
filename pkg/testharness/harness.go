package testharness

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	buildOnce sync.Once
	builtPath string
	buildErr  error
)

// repoRoot locates the module root by walking up from this file's
// directory (grounded on the common Go test idiom of resolving fixture
// paths via runtime.Caller, used here since the mockcli binary must be
// built relative to the module, not the test's working directory).
func repoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}

// BuildMockCLI compiles cmd/agentsdk-mockcli once per test binary run and
// returns the path to the resulting executable. Subsequent calls reuse
// the same binary.
func BuildMockCLI(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "agentsdk-mockcli-*")
		if err != nil {
			buildErr = err
			return
		}
		out := filepath.Join(dir, "agentsdk-mockcli")
		cmd := exec.Command("go", "build", "-o", out, "./cmd/agentsdk-mockcli")
		cmd.Dir = repoRoot()
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("build agentsdk-mockcli: %w: %s", err, output)
			return
		}
		builtPath = out
	})
	require.NoError(t, buildErr)
	return builtPath
}

// WriteScript marshals script to a temp file and returns its path.
func WriteScript(t *testing.T, script Script) string {
	t.Helper()
	data, err := json.Marshal(script)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// Session bundles everything a test needs to spawn the mock CLI with a
// given script and read back its recorded results after the run.
type Session struct {
	CLIPath    string
	ScriptPath string
	ResultPath string
	Env        []string
}

// NewSession builds the mock CLI binary (if needed) and prepares a
// scripted session. Call ReadResults after the driven transport/client
// has finished interacting with it.
func NewSession(t *testing.T, script Script) *Session {
	t.Helper()
	cliPath := BuildMockCLI(t)
	scriptPath := WriteScript(t, script)
	resultPath := filepath.Join(t.TempDir(), "result.json")

	return &Session{
		CLIPath:    cliPath,
		ScriptPath: scriptPath,
		ResultPath: resultPath,
		Env: []string{
			"AGENTSDK_MOCKCLI_SCRIPT=" + scriptPath,
			"AGENTSDK_MOCKCLI_RESULT=" + resultPath,
		},
	}
}

// ReadResults reads back the recorded control_response bodies the mock
// CLI observed, keyed by the record_key used in ExpectResponse steps.
func (s *Session) ReadResults(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(s.ResultPath)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

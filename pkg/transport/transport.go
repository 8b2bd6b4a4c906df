// Package transport owns the backend CLI child process and its pipes,
// presenting a line-framed bidirectional byte pipe to the rest of the
// runtime (spec §4.2).
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freitascorp/agentsdk/pkg/clawerr"
	"github.com/freitascorp/agentsdk/pkg/discovery"
	"github.com/freitascorp/agentsdk/pkg/logger"
	"github.com/freitascorp/agentsdk/pkg/observability"
)

// Item is either a decoded JSON value read from the child's stdout or a
// parse/process error, fed to the router over the inbound channel (spec
// §4.2 step 5 — "channel of Result<JsonValue, Error>").
type Item struct {
	Value json.RawMessage
	Err   error
}

// Config configures a Transport's subprocess spawn.
type Config struct {
	CLIPath string
	Args    []string
	Dir     string
	Env     []string // additional "KEY=VALUE" entries merged onto os.Environ()

	// Metrics, if set, receives connect/write/process-exit counters. Left
	// nil by tests constructing a Config literal directly.
	Metrics *observability.RuntimeMetrics
}

// Transport owns one backend CLI child process.
type Transport struct {
	cfg Config

	mu        sync.Mutex // guards stdin writes and connected state
	connected bool
	stdinShut bool

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	group      *errgroup.Group
	groupCtx   context.Context
	cancelFunc context.CancelFunc

	inbound     chan Item
	inboundOnce sync.Once
	inboundTook bool

	stderrMu  sync.Mutex
	stderrBuf []string
}

// New constructs a disconnected Transport for the given config. If
// cfg.CLIPath is empty, Connect resolves it via pkg/discovery.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// IsReady reports whether the transport is connected (spec §4.2 "is_ready").
func (t *Transport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connect resolves the CLI path (if unset), verifies its version, spawns
// the child, seizes its pipes, and starts the reader/stderr-drain/monitor
// goroutines (spec §4.2 "Connect").
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return &clawerr.ConnectionError{Reason: "already connected"}
	}
	t.mu.Unlock()

	if t.cfg.Metrics != nil {
		t.cfg.Metrics.ConnectAttempts.Inc()
	}

	cliPath := t.cfg.CLIPath
	if cliPath == "" {
		resolved, err := discovery.Resolve("")
		if err != nil {
			t.connectError()
			return err
		}
		cliPath = resolved
	}

	cmd := exec.Command(cliPath, t.cfg.Args...)
	if t.cfg.Dir != "" {
		cmd.Dir = t.cfg.Dir
	}
	if len(t.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), t.cfg.Env...)
	}
	prepareCommandForTermination(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.connectError()
		return &clawerr.ConnectionError{Reason: fmt.Sprintf("stdin pipe: %v", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.connectError()
		return &clawerr.ConnectionError{Reason: fmt.Sprintf("stdout pipe: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.connectError()
		return &clawerr.ConnectionError{Reason: fmt.Sprintf("stderr pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		t.connectError()
		return &clawerr.ConnectionError{Reason: fmt.Sprintf("start: %v", err)}
	}

	groupCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(groupCtx)

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.group = group
	t.groupCtx = groupCtx
	t.cancelFunc = cancel
	t.inbound = make(chan Item, 64)
	t.connected = true
	t.mu.Unlock()

	group.Go(func() error { t.readLoop(); return nil })
	group.Go(func() error { t.stderrLoop(); return nil })
	group.Go(func() error { t.monitorLoop(); return nil })

	logger.InfoCF("transport", "connected", map[string]any{"cli_path": cliPath})
	return nil
}

func (t *Transport) connectError() {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.ConnectErrors.Inc()
	}
}

// readLoop line-reads stdout; each non-empty line is parsed as JSON and
// forwarded (spec §4.2 "Reader"). On EOF it closes the inbound channel.
func (t *Transport) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("transport", "reader panic recovered", map[string]any{"panic": fmt.Sprint(r)})
		}
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		close(t.inbound)
	}()

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v json.RawMessage
		if err := json.Unmarshal(line, &v); err != nil {
			t.inbound <- Item{Err: &clawerr.JSONDecodeError{Source: err}}
			continue
		}
		t.inbound <- Item{Value: append(json.RawMessage(nil), v...)}
	}
}

// stderrLoop line-reads stderr, buffers it, and logs each line at warn
// level (spec §4.2 "Stderr drain").
func (t *Transport) stderrLoop() {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("transport", "stderr drain panic recovered", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	scanner := bufio.NewScanner(t.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		t.stderrMu.Lock()
		t.stderrBuf = append(t.stderrBuf, line)
		t.stderrMu.Unlock()
		logger.WarnCF("transport", "cli stderr", map[string]any{"line": line})
	}
}

// monitorLoop waits for the child to exit and, on non-zero exit, pushes a
// terminal ProcessError onto the inbound channel before it is closed by
// the reader goroutine (spec §4.2 "Monitor"; §9's "Non-zero exit
// surfacing" design-note adoption recorded in DESIGN.md).
func (t *Transport) monitorLoop() {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("transport", "monitor panic recovered", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	err := t.cmd.Wait()
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.ProcessExits.Inc()
	}
	if err == nil {
		return
	}
	exitErr, ok := err.(*exec.ExitError)
	code := -1
	if ok {
		code = exitErr.ExitCode()
	}

	t.stderrMu.Lock()
	stderrText := joinLines(t.stderrBuf)
	t.stderrMu.Unlock()

	logger.ErrorCF("transport", "cli process exited non-zero", map[string]any{"code": code})

	defer func() { recover() }() // inbound may already be closed by readLoop
	t.inbound <- Item{Err: &clawerr.ProcessError{Code: code, Stderr: stderrText}}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// Write acquires the stdin mutex and writes b followed by a flush.
// Callers are responsible for trailing newlines (spec §4.2 "Write").
func (t *Transport) Write(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return &clawerr.ConnectionError{Reason: "not connected"}
	}
	if t.stdinShut {
		return &clawerr.ConnectionError{Reason: "stdin closed"}
	}
	if _, err := t.stdin.Write(b); err != nil {
		return &clawerr.IOError{Source: err}
	}
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.StdinWrites.Inc()
		t.cfg.Metrics.StdinWriteBytes.Add(int64(len(b)))
	}
	return nil
}

// Messages returns the inbound channel. Callable exactly once; a second
// call panics — the router is the sole consumer (spec §4.2 "messages()").
func (t *Transport) Messages() <-chan Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inboundTook {
		panic("transport: Messages() called more than once")
	}
	t.inboundTook = true
	return t.inbound
}

// EndInput half-closes stdin. Idempotent (spec §4.2 "end_input").
func (t *Transport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdinShut || t.stdin == nil {
		return nil
	}
	t.stdinShut = true
	return t.stdin.Close()
}

// Close gracefully shuts down the child: half-close stdin, wait briefly,
// then escalate to SIGTERM and finally SIGKILL if still alive (spec §4.2
// "Close").
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	_ = t.EndInput()
	time.Sleep(500 * time.Millisecond)

	if t.IsReady() {
		terminateProcessTree(t.cmd, 5*time.Second)
	}

	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	if t.group != nil {
		_ = t.group.Wait()
	}

	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

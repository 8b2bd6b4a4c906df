package client_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/agentsdk/pkg/agentopt"
	"github.com/freitascorp/agentsdk/pkg/client"
	"github.com/freitascorp/agentsdk/pkg/clawerr"
	"github.com/freitascorp/agentsdk/pkg/testharness"
)

func optsFor(t *testing.T, sess *testharness.Session) agentopt.Options {
	t.Helper()
	opts := agentopt.New()
	opts.CLIPath = sess.CLIPath
	opts.Env = map[string]string{}
	for _, kv := range sess.Env {
		// split "KEY=VALUE" once
		for i := range kv {
			if kv[i] == '=' {
				opts.Env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return opts
}

// S1: a simple query produces the expected argv-driven message sequence.
func TestClient_SimpleQueryMessageSequence(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
		testharness.ExpectUserMessage(),
		testharness.Emit(map[string]any{
			"type": "system", "subtype": "init", "session_id": "sess-1",
		}),
		testharness.Emit(map[string]any{
			"type": "assistant",
			"message": map[string]any{
				"role": "assistant",
				"content": []map[string]any{
					{"type": "text", "text": "hello there"},
				},
			},
		}),
		testharness.Emit(map[string]any{"type": "result", "num_turns": 1}),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	stream, err := c.SendMessage(ctx, "hi")
	require.NoError(t, err)

	messages, errs := stream.All()
	assert.Empty(t, errs)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].Type)
	assert.Equal(t, "sess-1", messages[0].SessionID)
	assert.Equal(t, "assistant", messages[1].Type)
	assert.Equal(t, "result", messages[2].Type)
	assert.Equal(t, "sess-1", c.SessionID())
}

// S2: host-initiated control requests (set_permission_mode) round-trip
// through the real Client, not just pkg/control in isolation.
func TestClient_SetPermissionModeRoundTrip(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
		testharness.ExpectRequest("set_permission_mode", map[string]any{}),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.SetPermissionMode(ctx, "acceptEdits"))
}

// S3: a can_use_tool permission request from the backend is answered by a
// registered handler through a real Client, and denial is observable.
func TestClient_PermissionDenialThroughRealClient(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
		testharness.SendRequest("perm-1", "can_use_tool", map[string]any{
			"tool_name": "bash", "tool_input": map[string]any{"command": "rm -rf /"},
		}),
		testharness.ExpectResponse("perm-1", "perm_result"),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	var sawTool string
	c.RegisterPermissionHandler(func(toolName string, toolInput json.RawMessage) (bool, error) {
		sawTool = toolName
		return false, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	// Give the mock CLI's send_request/expect_response steps time to land;
	// the client has no observable action to wait on here since the
	// request originates from the backend, not the host.
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, "bash", sawTool)

	results := sess.ReadResults(t)
	raw, ok := results["perm_result"]
	require.True(t, ok)
	var resp struct {
		Subtype string `json:"subtype"`
		Allowed bool   `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "success", resp.Subtype)
	assert.False(t, resp.Allowed)
}

// S4: an mcp_message control request from the backend is routed through
// the registered MCP handler and answered.
func TestClient_MCPMessageRoutedThroughHandler(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
		testharness.SendRequest("mcp-1", "mcp_message", map[string]any{
			"server_name": "calc",
			"message": map[string]any{
				"jsonrpc": "2.0", "id": 1, "method": "tools/list",
			},
		}),
		testharness.ExpectResponse("mcp-1", "mcp_result"),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	c.RegisterMCPMessageHandler(func(serverName string, message json.RawMessage) (json.RawMessage, error) {
		assert.Equal(t, "calc", serverName)
		return json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	time.Sleep(200 * time.Millisecond)

	results := sess.ReadResults(t)
	raw, ok := results["mcp_result"]
	require.True(t, ok)
	assert.Contains(t, string(raw), `"success"`)
}

// S5 (partial): RequestTimeout is 30s in production; this test only checks
// that Connect's Initialize completes promptly when the mock CLI answers
// normally. The 30s timer path itself is not exercised by any test;
// control_test.go covers a pending request failing on context cancellation.
func TestClient_ConnectSucceedsPromptly(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	assert.Less(t, time.Since(start), 2*time.Second)
}

// S6: Close terminates the child process and completes within budget,
// and is idempotent/safe even with an undrained stream.
func TestClient_CloseWithinBudget(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
		testharness.ExpectUserMessage(),
		testharness.Emit(map[string]any{"type": "system", "subtype": "init", "session_id": "sess-2"}),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	_, err := c.SendMessage(ctx, "hi")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), 5500*time.Millisecond)

	// idempotent
	require.NoError(t, c.Close())
}

func TestClient_SendMessageBeforeConnectFails(t *testing.T) {
	c := client.New(agentopt.New())
	_, err := c.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	var connErr *clawerr.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestClient_SendMessageTwiceFails(t *testing.T) {
	script := testharness.Script{Steps: []testharness.Step{
		testharness.ExpectRequest("initialize", map[string]any{}),
		testharness.ExpectUserMessage(),
		testharness.Emit(map[string]any{"type": "result", "num_turns": 1}),
	}}

	sess := testharness.NewSession(t, script)
	opts := optsFor(t, sess)

	c := client.New(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	_, err := c.SendMessage(ctx, "hi")
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, "again")
	require.Error(t, err)
}

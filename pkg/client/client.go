// Package client is the host-facing surface of the agent SDK runtime: a
// one-shot Query for fire-and-forget sessions, and a persistent Client for
// multi-turn sessions (spec §4.6, §4.7).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/freitascorp/agentsdk/pkg/agentopt"
	"github.com/freitascorp/agentsdk/pkg/clawerr"
	"github.com/freitascorp/agentsdk/pkg/control"
	"github.com/freitascorp/agentsdk/pkg/logger"
	"github.com/freitascorp/agentsdk/pkg/observability"
	"github.com/freitascorp/agentsdk/pkg/resilience"
	"github.com/freitascorp/agentsdk/pkg/router"
	"github.com/freitascorp/agentsdk/pkg/transport"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

// pendingHandlers accumulates handler registrations made before Connect.
// original_source/the teacher silently drops everything except the MCP
// handler (spec §9 "Handler registration timing"); this module treats that
// asymmetry as the bug spec §9 calls it and stores all three uniformly,
// applying them to the registry at Connect time before Initialize is sent
// (DESIGN.md "Open Question decisions").
type pendingHandlers struct {
	permission control.CanUseToolHandler
	mcp        control.McpMessageHandler
	hooks      map[string]control.HookHandler
}

// Client drives the lifecycle of a multi-turn backend CLI session: argv
// translation, connect/initialize, SendMessage, control operations, and
// the response stream (spec §4.6).
type Client struct {
	opts agentopt.Options

	mu          sync.Mutex
	connected   bool
	initialized bool
	sessionID   string

	pending *pendingHandlers

	transport *transport.Transport
	protocol  *control.Protocol
	registry  *control.Registry
	router    *router.Router

	metrics *observability.RuntimeMetrics
	breaker *resilience.CircuitBreaker

	streamTaken bool
	userChannel <-chan wire.RoutedMessage
}

// New constructs a Client with the given options snapshot. No I/O is
// started until Connect (spec §4.6 "Construction"). A metrics suite and a
// circuit breaker guarding the control protocol against a wedged backend
// are created up front so a host can read Metrics() even before Connect.
func New(opts agentopt.Options) *Client {
	return &Client{
		opts:    opts,
		pending: &pendingHandlers{hooks: make(map[string]control.HookHandler)},
		metrics: observability.NewRuntimeMetrics(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "control-protocol",
			MaxFailures: 5,
		}),
	}
}

// Metrics returns the client's runtime metrics suite (transport connects,
// control-request latency/timeouts, MCP tool-call counts). A host embeds
// this however its own process exports metrics; the SDK exposes no
// exporter of its own.
func (c *Client) Metrics() *observability.RuntimeMetrics { return c.metrics }

// RegisterPermissionHandler stores the permission decider. If Connect has
// already run, it is installed directly in the registry; otherwise it is
// held until Connect (spec §9, see pendingHandlers doc above).
func (c *Client) RegisterPermissionHandler(h control.CanUseToolHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.registry.SetPermissionHandler(h)
		return
	}
	c.pending.permission = h
}

// RegisterHookHandler stores a named hook handler (spec §4.4's lookup-by-
// hook_id, not event).
func (c *Client) RegisterHookHandler(hookID string, h control.HookHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.registry.RegisterHook(hookID, h)
		return
	}
	c.pending.hooks[hookID] = h
}

// RegisterMCPMessageHandler stores the MCP routing handler. Unlike the
// other two registrations, the teacher's original asymmetry made this one
// special-cased (installed pre-connect because initialize may race
// mcp_message requests, spec §4.6 step 7, §8 property 12) — this module
// keeps that urgency but treats all three uniformly internally.
func (c *Client) RegisterMCPMessageHandler(h control.McpMessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.registry.SetMCPHandler(h)
		return
	}
	c.pending.mcp = h
}

// Agents returns the configured subagent definitions (supplemented from
// original_source/client.rs per SPEC_FULL.md §4.6).
func (c *Client) Agents() map[string]wire.AgentDefinition {
	return c.opts.Agents
}

// SessionID returns the session id carried by the system/init message,
// once observed on the stream; empty until then (SPEC_FULL.md §4.6).
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// validateAgents checks that configured agent names are non-empty and
// unique (SPEC_FULL.md §4.6 supplement from original_source/client.rs).
func (c *Client) validateAgents() error {
	seen := make(map[string]bool, len(c.opts.Agents))
	for name := range c.opts.Agents {
		if name == "" {
			return &clawerr.ConnectionError{Reason: "agent name must not be empty"}
		}
		if seen[name] {
			return &clawerr.ConnectionError{Reason: fmt.Sprintf("duplicate agent name: %s", name)}
		}
		seen[name] = true
	}
	return nil
}

// Connect builds argv, spawns the transport, starts the router, installs
// any pre-connect handler registrations, and drives the initialize
// handshake (spec §4.6 "Connect").
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return &clawerr.ConnectionError{Reason: "already connected"}
	}
	c.mu.Unlock()

	if err := c.validateAgents(); err != nil {
		return err
	}

	args := c.opts.ToArgs("")
	var env []string
	for k, v := range c.opts.Env {
		env = append(env, k+"="+v)
	}
	tr := transport.New(transport.Config{
		CLIPath: c.opts.CLIPath,
		Args:    args,
		Dir:     c.opts.CWD,
		Env:     env,
		Metrics: c.metrics,
	})

	if err := tr.Connect(ctx); err != nil {
		return err
	}

	inbound := tr.Messages()

	registry := control.NewRegistry()
	proto := control.New(tr, registry)
	proto.SetMetrics(c.metrics)
	proto.SetCircuitBreaker(c.breaker)
	rt := router.New(proto, proto, 64)

	go rt.Run(inbound)

	c.mu.Lock()
	c.transport = tr
	c.protocol = proto
	c.registry = registry
	c.router = rt
	c.userChannel = rt.UserChannel()

	// Install pre-connect handler registrations before Initialize is sent
	// (spec §4.6 step 7; §8 property 12's mcp-handler-before-initialize
	// contract, generalized uniformly per §9's design-note resolution).
	if c.pending.permission != nil {
		registry.SetPermissionHandler(c.pending.permission)
	}
	if c.pending.mcp != nil {
		registry.SetMCPHandler(c.pending.mcp)
	}
	for id, h := range c.pending.hooks {
		registry.RegisterHook(id, h)
	}
	c.connected = true
	c.mu.Unlock()

	initReq := wire.InitializeRequest{
		Hooks:          c.opts.Hooks,
		Agents:         c.opts.Agents,
		SDKMCPServers:  c.opts.SDKMCPServers,
		PermissionMode: c.opts.PermissionMode.ToCLIArg(),
		CanUseTool:     c.opts.CanUseTool,
	}
	if err := proto.Initialize(ctx, initReq); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	return nil
}

// recordSessionID is the ResponseStream tee callback that caches the
// session id carried by the first system/init message it observes,
// matching original_source/client.rs's Arc<Mutex<Option<String>>> field.
func (c *Client) recordSessionID(msg wire.Message) {
	if msg.Type != "system" || msg.Subtype != "init" || msg.SessionID == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = msg.SessionID
	c.mu.Unlock()
}

// SendMessage writes a user message and returns a ResponseStream wrapping
// the user channel. Callable exactly once per Client instance — a second
// call fails (spec §4.6 "send_message", §9 "One-shot receiver").
func (c *Client) SendMessage(ctx context.Context, text string) (*ResponseStream, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, &clawerr.ConnectionError{Reason: "not connected"}
	}
	if c.streamTaken {
		c.mu.Unlock()
		return nil, &clawerr.ConnectionError{Reason: "Message receiver already taken; send_message() can only be called once per client."}
	}
	c.streamTaken = true
	ch := c.userChannel
	tr := c.transport
	c.mu.Unlock()

	env := struct {
		Type           string `json:"type"`
		SessionID      string `json:"session_id"`
		Message        struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		ParentToolUseID *string `json:"parent_tool_use_id"`
	}{Type: "user", SessionID: ""}
	env.Message.Role = "user"
	env.Message.Content = text

	line, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	if err := tr.Write(line); err != nil {
		return nil, err
	}

	return newResponseStream(ch, c.recordSessionID), nil
}

// Interrupt sends the interrupt control request.
func (c *Client) Interrupt(ctx context.Context) error {
	proto, err := c.requireConnected()
	if err != nil {
		return err
	}
	return proto.Interrupt(ctx)
}

// SetPermissionMode sends the set_permission_mode control request.
func (c *Client) SetPermissionMode(ctx context.Context, mode string) error {
	proto, err := c.requireConnected()
	if err != nil {
		return err
	}
	return proto.SetPermissionMode(ctx, mode)
}

// SetModel sends the set_model control request.
func (c *Client) SetModel(ctx context.Context, model string) error {
	proto, err := c.requireConnected()
	if err != nil {
		return err
	}
	return proto.SetModel(ctx, model)
}

// MCPStatus sends the mcp_status control request and returns its data.
func (c *Client) MCPStatus(ctx context.Context) (json.RawMessage, error) {
	proto, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	return proto.MCPStatus(ctx)
}

// RewindFiles sends the rewind_files control request.
func (c *Client) RewindFiles(ctx context.Context, messageID string) error {
	proto, err := c.requireConnected()
	if err != nil {
		return err
	}
	return proto.RewindFiles(ctx, messageID)
}

func (c *Client) requireConnected() (*control.Protocol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, &clawerr.ConnectionError{Reason: "not connected"}
	}
	return c.protocol, nil
}

// Close shuts down the transport and marks the client disconnected.
// No-op if not connected; idempotent (spec §4.6 "Close").
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	tr := c.transport
	rt := c.router
	c.connected = false
	c.mu.Unlock()

	if rt != nil {
		rt.Stop()
	}
	if tr == nil {
		return nil
	}
	if err := tr.Close(); err != nil {
		logger.ErrorCF("client", "close error", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}

package control

import (
	"encoding/json"
	"sync"

	"github.com/freitascorp/agentsdk/pkg/wire"
)

// CanUseToolHandler decides whether a tool invocation is permitted (spec
// §3 "Handler Registry", §4.4 "can_use_tool").
type CanUseToolHandler func(toolName string, toolInput json.RawMessage) (bool, error)

// HookHandler runs a host-registered lifecycle callback. The returned
// value is flattened into the Success control-response data, so it must
// encode as a JSON object (e.g. a wire.HookDecision or a map) or be nil
// (spec §4.4 "hook_callback"; SPEC_FULL §5's hook-decision supplement).
type HookHandler func(event wire.HookEvent, input json.RawMessage) (any, error)

// McpMessageHandler routes an inbound mcp_message control request to the
// in-process MCP bridge (spec §4.4 "mcp_message", §4.5).
type McpMessageHandler func(serverName string, message json.RawMessage) (json.RawMessage, error)

// Registry holds at most one permission decider, at most one MCP routing
// handler, and a map of named lifecycle hooks (spec §4 "Handler Registry").
//
// Registry locks are never held across a handler invocation: callers
// snapshot the handler reference while holding the lock, release it, then
// invoke (spec §4.4 "Why lock-then-clone-then-release?").
type Registry struct {
	mu         sync.Mutex
	permission CanUseToolHandler
	mcp        McpMessageHandler
	hooks      map[string]HookHandler
}

// NewRegistry constructs an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]HookHandler)}
}

// SetPermissionHandler installs (or replaces) the permission decider.
func (r *Registry) SetPermissionHandler(h CanUseToolHandler) {
	r.mu.Lock()
	r.permission = h
	r.mu.Unlock()
}

// PermissionHandler snapshots the current permission decider.
func (r *Registry) PermissionHandler() CanUseToolHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permission
}

// SetMCPHandler installs (or replaces) the MCP routing handler.
func (r *Registry) SetMCPHandler(h McpMessageHandler) {
	r.mu.Lock()
	r.mcp = h
	r.mu.Unlock()
}

// MCPHandler snapshots the current MCP routing handler.
func (r *Registry) MCPHandler() McpMessageHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mcp
}

// RegisterHook installs a named hook handler, looked up by hook_id (not
// by event) at dispatch time (spec §4.4 "hook_callback").
func (r *Registry) RegisterHook(hookID string, h HookHandler) {
	r.mu.Lock()
	r.hooks[hookID] = h
	r.mu.Unlock()
}

// HookHandlerFor snapshots the hook handler registered under hookID, if any.
func (r *Registry) HookHandlerFor(hookID string) (HookHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hooks[hookID]
	return h, ok
}

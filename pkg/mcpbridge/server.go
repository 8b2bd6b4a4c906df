// Package mcpbridge exposes in-process tools to the backend CLI over the
// control protocol's mcp_message channel, implementing the Model Context
// Protocol's minimal request/response surface (spec §4.5).
//
// Generalized from pkg/mcp/server.go (teacher): where the teacher's
// server is a stdio-bound singleton, a mcpbridge.Server owns no pipe of
// its own — it is addressed purely through HandleJSONRPC, called by
// pkg/control's inbound mcp_message dispatch (DESIGN.md).
package mcpbridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/freitascorp/agentsdk/pkg/observability"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

// JSON-RPC 2.0 error codes used by the bridge (spec §4.5, §8 properties
// 16-18). Note: these values intentionally diverge from the teacher's own
// pkg/mcp/types.go constants where the spec requires a different code for
// the same condition (its ErrInvalidReq is -32600; this module needs
// -32602 for "tool not found" — see DESIGN.md).
const (
	ErrCodeParse        = -32700
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

const protocolVersion = "2024-11-05"

// rpcRequest/rpcResponse/rpcError mirror pkg/mcp/types.go's JSON-RPC
// envelope shape (teacher), generalized only in that these never touch a
// real stdio transport.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      any      `json:"id"`
	Result  any      `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Server holds one named MCP tool server: its tool descriptor map and
// dispatch logic (spec §4.5 "MCP server").
type Server struct {
	Name    string
	Version string

	mu      sync.RWMutex
	tools   map[string]wire.ToolDescriptor
	metrics *observability.RuntimeMetrics
}

// NewServer constructs an empty tool server.
func NewServer(name, version string) *Server {
	return &Server{Name: name, Version: version, tools: make(map[string]wire.ToolDescriptor)}
}

// SetMetrics attaches a metrics sink; every tools/call thereafter is
// counted and timed. Optional — nil-safe when never called.
func (s *Server) SetMetrics(m *observability.RuntimeMetrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// RegisterTool inserts a tool descriptor by name, replacing any existing
// entry under the same name (spec §4.5 "register_tool(d)").
func (s *Server) RegisterTool(d wire.ToolDescriptor) {
	s.mu.Lock()
	s.tools[d.Name] = d
	s.mu.Unlock()
}

// Tools returns the registered tool descriptors, sorted by name is not
// guaranteed — callers needing stable order should sort.
func (s *Server) Tools() []wire.ToolDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wire.ToolDescriptor, 0, len(s.tools))
	for _, d := range s.tools {
		out = append(out, d)
	}
	return out
}

func (s *Server) tool(name string) (wire.ToolDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.tools[name]
	return d, ok
}

// HandleJSONRPC dispatches one JSON-RPC request against this server (spec
// §4.5 "handle_jsonrpc"). Each call is independent; tool handlers may run
// concurrently with no serialization imposed by the bridge.
func (s *Server) HandleJSONRPC(reqBytes []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(reqBytes, &req); err != nil {
		return s.encodeError(nil, ErrCodeParse, "parse error: "+err.Error())
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.ID)
	case "notifications/initialized":
		return s.encodeResult(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req.ID)
	case "tools/call":
		return s.handleToolsCall(req.ID, req.Params)
	default:
		return s.encodeError(req.ID, ErrCodeMethodNotFound, "Method not found")
	}
}

func (s *Server) handleInitialize(id any) []byte {
	return s.encodeResult(id, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": s.Name, "version": s.Version},
	})
}

func (s *Server) handleToolsList(id any) []byte {
	tools := s.Tools()
	defs := make([]map[string]any, 0, len(tools))
	for _, d := range tools {
		schema := d.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": schema,
		})
	}
	return s.encodeResult(id, map[string]any{"tools": defs})
}

func (s *Server) handleToolsCall(id any, paramsRaw json.RawMessage) []byte {
	var params toolCallParams
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return s.encodeError(id, ErrCodeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	d, ok := s.tool(params.Name)
	if !ok {
		return s.encodeError(id, ErrCodeInvalidParams, fmt.Sprintf("tool not found: %s", params.Name))
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	start := time.Now()
	result, err := d.Handler(params.Arguments)
	if metrics != nil {
		metrics.ToolCalls.Inc()
		metrics.ToolLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ToolErrors.Inc()
		}
	}
	if err != nil {
		return s.encodeError(id, ErrCodeInternal, err.Error())
	}
	return s.encodeResult(id, result)
}

func (s *Server) encodeResult(id any, result any) []byte {
	b, _ := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
	return b
}

func (s *Server) encodeError(id any, code int, message string) []byte {
	b, _ := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
	return b
}

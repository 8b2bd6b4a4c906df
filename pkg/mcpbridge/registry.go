package mcpbridge

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Registry maps server name to Server and exposes the single routing
// function pkg/control's inbound mcp_message dispatch calls (spec §4.5
// "Registry").
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

// NewRegistry constructs an empty server registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*Server)}
}

// Register adds (or replaces) a named server.
func (r *Registry) Register(s *Server) {
	r.mu.Lock()
	r.servers[s.Name] = s
	r.mu.Unlock()
}

// Server looks up a registered server by name.
func (r *Registry) Server(name string) (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[name]
	return s, ok
}

// HandleMCPMessage routes an inbound mcp_message to the named server,
// matching pkg/control's McpMessageHandler signature (spec §4.5 "Missing
// server: Error 'Server not found: X'").
func (r *Registry) HandleMCPMessage(serverName string, message json.RawMessage) (json.RawMessage, error) {
	s, ok := r.Server(serverName)
	if !ok {
		return nil, fmt.Errorf("Server not found: %s", serverName)
	}
	return s.HandleJSONRPC(message), nil
}

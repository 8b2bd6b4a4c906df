package mcpbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/agentsdk/pkg/wire"
)

func echoTool() wire.ToolDescriptor {
	return wire.ToolDescriptor{
		Name:        "echo",
		Description: "echoes the message argument",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
			"required":   []string{"message"},
		},
		Handler: func(args json.RawMessage) (wire.ToolResult, error) {
			var parsed struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(args, &parsed); err != nil {
				return wire.ToolResult{}, err
			}
			return wire.ToolResult{Content: []wire.ToolContent{wire.TextContent(parsed.Message)}}, nil
		},
	}
}

func TestServer_Initialize(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp, &decoded))
	result := decoded["result"].(map[string]any)
	require.Equal(t, "2024-11-05", result["protocolVersion"])
	serverInfo := result["serverInfo"].(map[string]any)
	require.Equal(t, "tools_v1", serverInfo["name"])
}

func TestServer_ToolsList(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	s.RegisterTool(echoTool())

	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp, &decoded))
	result := decoded["result"].(map[string]any)
	tools := result["tools"].([]any)
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].(map[string]any)["name"])
}

func TestServer_S4_ToolsCall(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	s.RegisterTool(echoTool())

	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`))
	require.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"content":[{"type":"text","text":"hi"}]}}`, string(resp))
}

func TestServer_ToolsCall_UnknownToolIsInvalidParams(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"nope","arguments":{}}}`))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp, &decoded))
	errObj := decoded["error"].(map[string]any)
	require.Equal(t, float64(ErrCodeInvalidParams), errObj["code"])
}

func TestServer_UnknownMethodIsMethodNotFound(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":9,"method":"bogus"}`))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp, &decoded))
	errObj := decoded["error"].(map[string]any)
	require.Equal(t, float64(ErrCodeMethodNotFound), errObj["code"])
}

func TestServer_ToolHandlerErrorIsInternal(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	s.RegisterTool(wire.ToolDescriptor{
		Name: "boom",
		Handler: func(args json.RawMessage) (wire.ToolResult, error) {
			return wire.ToolResult{}, assertErr{}
		},
	})

	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"boom","arguments":{}}}`))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp, &decoded))
	errObj := decoded["error"].(map[string]any)
	require.Equal(t, float64(ErrCodeInternal), errObj["code"])
	require.Equal(t, "boom failed", errObj["message"])
}

type assertErr struct{}

func (assertErr) Error() string { return "boom failed" }

func TestRegistry_RoutesToNamedServer(t *testing.T) {
	reg := NewRegistry()
	s := NewServer("tools_v1", "1.0.0")
	s.RegisterTool(echoTool())
	reg.Register(s)

	out, err := reg.HandleMCPMessage("tools_v1", json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	require.Contains(t, string(out), "protocolVersion")
}

func TestRegistry_MissingServer(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.HandleMCPMessage("nope", json.RawMessage(`{}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Server not found: nope")
}

func TestServer_MultiBlockToolResult(t *testing.T) {
	s := NewServer("tools_v1", "1.0.0")
	s.RegisterTool(wire.ToolDescriptor{
		Name: "snapshot",
		Handler: func(args json.RawMessage) (wire.ToolResult, error) {
			return wire.ToolResult{Content: []wire.ToolContent{
				wire.TextContent("a screenshot follows"),
				wire.ImageContent("QUJD", "image/png"),
			}}, nil
		},
	})

	resp := s.HandleJSONRPC([]byte(`{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"snapshot","arguments":{}}}`))
	require.JSONEq(t, `{"jsonrpc":"2.0","id":11,"result":{"content":[{"type":"text","text":"a screenshot follows"},{"type":"image","data":"QUJD","mimeType":"image/png"}]}}`, string(resp))
}

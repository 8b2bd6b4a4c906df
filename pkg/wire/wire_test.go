package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_Assistant(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}`)
	msg, err := Decode(line)
	require.NoError(t, err)
	require.Equal(t, "assistant", msg.Type)
	require.NotNil(t, msg.AssistantMessage)
	require.Equal(t, "assistant", msg.AssistantMessage.Role)
	require.Len(t, msg.AssistantMessage.Content, 1)
	require.Equal(t, "hi", msg.AssistantMessage.Content[0].Text)
}

func TestDecode_ControlResponse_NestedRequestID(t *testing.T) {
	line := []byte(`{"type":"control_response","response":{"subtype":"success","request_id":"abc-123","servers":[]}}`)
	msg, err := Decode(line)
	require.NoError(t, err)
	require.Equal(t, "control_response", msg.Type)

	var resp ControlResponse
	require.NoError(t, json.Unmarshal(msg.Response, &resp))
	require.Equal(t, "abc-123", resp.RequestID)
	require.True(t, resp.IsSuccess())
	require.JSONEq(t, `{"servers":[]}`, string(resp.Data))
}

func TestDecode_ControlRequest_TopLevelRequestID(t *testing.T) {
	line := []byte(`{"type":"control_request","request_id":"X","request":{"subtype":"can_use_tool","tool_name":"Bash","tool_input":{"command":"rm -rf /"}}}`)
	msg, err := Decode(line)
	require.NoError(t, err)
	require.Equal(t, "X", msg.RequestID)

	var req IncomingControlRequest
	require.NoError(t, json.Unmarshal(msg.Request, &req))
	require.Equal(t, "can_use_tool", req.Subtype)
	require.Equal(t, "Bash", req.ToolName)
}

func TestNewSuccessResponse_FlattensData(t *testing.T) {
	env, err := NewSuccessResponse("X", map[string]any{"allowed": false})
	require.NoError(t, err)
	require.Equal(t, "control_response", env.Type)
	require.Equal(t, "success", env.Response.Subtype)
	require.Equal(t, "X", env.Response.RequestID)

	encoded, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"control_response","response":{"subtype":"success","request_id":"X","allowed":false}}`, string(encoded))
}

func TestNewErrorResponse(t *testing.T) {
	env := NewErrorResponse("X", "No handler registered for hook_id: foo")
	require.Equal(t, "error", env.Response.Subtype)
	require.Equal(t, "No handler registered for hook_id: foo", env.Response.Error)
}

func TestHookMatcher_Matches(t *testing.T) {
	all := HookMatcher{HookID: "h1"}
	require.True(t, all.Matches("Bash"))
	require.True(t, all.Matches("Write"))

	specific := HookMatcher{HookID: "h2", ToolName: "Bash"}
	require.True(t, specific.Matches("Bash"))
	require.False(t, specific.Matches("Write"))
}

func TestNewControlRequestEnvelope(t *testing.T) {
	env := NewControlRequestEnvelope("uuid-1", NewInterruptRequest())
	encoded, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"control_request","request_id":"uuid-1","request":{"subtype":"interrupt"}}`, string(encoded))
}

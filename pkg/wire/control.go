package wire

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ControlRequestEnvelope is an outbound control_request line, as written
// to the child's stdin by the control protocol (spec §4.4 step 4).
type ControlRequestEnvelope struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Request   any    `json:"request"`
}

// NewControlRequestEnvelope builds the envelope for an outbound control
// request with the given id and variant body.
func NewControlRequestEnvelope(id string, request any) ControlRequestEnvelope {
	return ControlRequestEnvelope{Type: "control_request", RequestID: id, Request: request}
}

// InitializeRequest is the "initialize" outbound control request variant
// (spec §3, §4.4, §4.6 step 8).
type InitializeRequest struct {
	Subtype          string                  `json:"subtype"`
	Hooks            map[HookEvent][]HookMatcher `json:"hooks,omitempty"`
	Agents           map[string]AgentDefinition `json:"agents,omitempty"`
	SDKMCPServers    []SDKMCPServerRef        `json:"sdk_mcp_servers,omitempty"`
	PermissionMode   string                  `json:"permission_mode,omitempty"`
	CanUseTool       bool                    `json:"can_use_tool"`
}

// HookMatcher pairs an optional tool-name filter with a hook identifier,
// carried under a HookEvent key in the initialize request's Hooks map.
type HookMatcher struct {
	HookID   string `json:"hook_id"`
	ToolName string `json:"tool_name,omitempty"` // empty means "matches all tools"
}

// Matches reports whether this matcher applies to the given tool name.
// An empty ToolName matches every tool (original_source/hooks/mod.rs's
// HookMatcher::all semantics).
func (m HookMatcher) Matches(toolName string) bool {
	return m.ToolName == "" || m.ToolName == toolName
}

// AgentDefinition is a named subagent definition carried in the
// initialize request (spec §6's `agents` option key).
type AgentDefinition struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// SDKMCPServerRef declares an in-process MCP server to the backend at
// initialize time by name and version only — never by config file (spec
// §4.5, §6's note on the --mcp-config hang).
type SDKMCPServerRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InterruptRequest is the "interrupt" outbound control request variant.
type InterruptRequest struct {
	Subtype string `json:"subtype"`
}

// NewInterruptRequest builds an interrupt request body.
func NewInterruptRequest() InterruptRequest { return InterruptRequest{Subtype: "interrupt"} }

// SetPermissionModeRequest is the "set_permission_mode" outbound variant.
type SetPermissionModeRequest struct {
	Subtype string `json:"subtype"`
	Mode    string `json:"mode"`
}

// SetModelRequest is the "set_model" outbound variant.
type SetModelRequest struct {
	Subtype string `json:"subtype"`
	Model   string `json:"model"`
}

// MCPStatusRequest is the "mcp_status" outbound variant.
type MCPStatusRequest struct {
	Subtype string `json:"subtype"`
}

// RewindFilesRequest is the "rewind_files" outbound variant.
type RewindFilesRequest struct {
	Subtype   string `json:"subtype"`
	MessageID string `json:"message_id"`
}

// ControlResponse is the parsed body of an inbound control_response
// message's nested "response" object (spec §3's documented asymmetry:
// the request_id lives here, not at the envelope level). Data holds the
// success payload's fields, but is never itself a JSON key on the wire:
// success carries arbitrary data flattened directly into the response
// object (spec.md:49), matching original_source's `#[serde(flatten)]
// data: Value` on ResponseEnvelope.
type ControlResponse struct {
	Subtype   string
	RequestID string
	Data      json.RawMessage
	Error     string
}

// IsSuccess reports whether this response is the "success" variant.
func (r ControlResponse) IsSuccess() bool { return r.Subtype == "success" }

// MarshalJSON flattens Data's top-level keys into the response object
// alongside subtype/request_id/error, instead of nesting them under a
// "data" key.
func (r ControlResponse) MarshalJSON() ([]byte, error) {
	b := []byte(`{}`)
	var err error
	if b, err = sjson.SetBytes(b, "subtype", r.Subtype); err != nil {
		return nil, err
	}
	if b, err = sjson.SetBytes(b, "request_id", r.RequestID); err != nil {
		return nil, err
	}
	if r.Error != "" {
		if b, err = sjson.SetBytes(b, "error", r.Error); err != nil {
			return nil, err
		}
	}
	if len(r.Data) > 0 {
		result := gjson.ParseBytes(r.Data)
		if !result.IsObject() {
			return nil, fmt.Errorf("control response data must be a JSON object to flatten, got %q", r.Data)
		}
		result.ForEach(func(key, value gjson.Result) bool {
			b, err = sjson.SetRawBytes(b, key.String(), []byte(value.Raw))
			return err == nil
		})
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// UnmarshalJSON recovers subtype/request_id/error from their known keys
// and collects every remaining top-level key back into Data, undoing the
// flattening MarshalJSON performs.
func (r *ControlResponse) UnmarshalJSON(b []byte) error {
	var known struct {
		Subtype   string `json:"subtype"`
		RequestID string `json:"request_id"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	r.Subtype = known.Subtype
	r.RequestID = known.RequestID
	r.Error = known.Error
	r.Data = nil

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	delete(fields, "subtype")
	delete(fields, "request_id")
	delete(fields, "error")
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	r.Data = raw
	return nil
}

// NewSuccessResponse builds a success control_response body flattening
// data into the envelope, keyed by request id.
func NewSuccessResponse(requestID string, data any) (ControlResponseEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return ControlResponseEnvelope{}, err
	}
	if string(raw) == "null" {
		raw = nil
	} else if !gjson.ParseBytes(raw).IsObject() {
		return ControlResponseEnvelope{}, fmt.Errorf("control response data must be a JSON object to flatten, got %s", raw)
	}
	return ControlResponseEnvelope{
		Type: "control_response",
		Response: ControlResponse{
			Subtype:   "success",
			RequestID: requestID,
			Data:      raw,
		},
	}, nil
}

// NewErrorResponse builds an error control_response body.
func NewErrorResponse(requestID, reason string) ControlResponseEnvelope {
	return ControlResponseEnvelope{
		Type: "control_response",
		Response: ControlResponse{
			Subtype:   "error",
			RequestID: requestID,
			Error:     reason,
		},
	}
}

// ControlResponseEnvelope is an inbound (or, when replying to a backend
// control_request, outbound) control_response line.
type ControlResponseEnvelope struct {
	Type     string          `json:"type"`
	Response ControlResponse `json:"response"`
}

// IncomingControlRequest is the parsed body of an inbound control_request
// message's nested "request" object (spec §3, §4.4).
type IncomingControlRequest struct {
	Subtype string `json:"subtype"`

	// can_use_tool
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// hook_callback
	HookID    string          `json:"hook_id,omitempty"`
	HookEvent string          `json:"hook_event,omitempty"`
	HookInput json.RawMessage `json:"hook_input,omitempty"`

	// mcp_message
	ServerName string          `json:"server_name,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
}

// HookDecision is the structured result a PreToolUse-style hook handler
// may return, richer than a plain allow/deny bool (supplemented from
// original_source/hooks/response.rs per SPEC_FULL.md §5).
type HookDecision struct {
	Decision     string          `json:"decision"` // "allow" | "deny" | "ask"
	Reason       string          `json:"reason,omitempty"`
	UpdatedInput json.RawMessage `json:"updated_input,omitempty"`
}

// Package wire defines the NDJSON message and content-block data model
// exchanged with the backend CLI: inbound session messages, content
// blocks, and the control-request/control-response envelopes that ride
// over the same stream (spec §3).
package wire

import "encoding/json"

// Message is an inbound line from the backend's stdout, already
// discriminated by Type. Raw holds the full decoded JSON object so
// callers needing fields this struct doesn't surface can still get at
// them; the typed fields below cover the common cases.
type Message struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`

	// system
	Subtype        string   `json:"subtype,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	MCPServers     []string `json:"mcp_servers,omitempty"`

	// assistant / user
	AssistantMessage *AssistantMessage `json:"message,omitempty"`

	// result
	DurationAPIMs int64   `json:"duration_api_ms,omitempty"`
	NumTurns      int     `json:"num_turns,omitempty"`
	TotalCostUSD  float64 `json:"total_cost_usd,omitempty"`
	Error         string  `json:"error,omitempty"`

	// control_request (inbound demand from the backend)
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`

	// control_response (reply to an outbound request; request_id lives
	// nested in Response, per spec §3's documented wire asymmetry)
	Response json.RawMessage `json:"response,omitempty"`
}

// AssistantMessage carries the role and ordered content blocks of an
// assistant or user wire message.
type AssistantMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one element of an assistant/user message's content
// list, discriminated by Type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`
}

// RateLimitEvent is the typed shape of a rate_limit_event wire message
// (supplemented from original_source). The router forwards such messages
// to the host stream unchanged and does not parse them into this struct;
// a host may decode Message.Raw into it.
type RateLimitEvent struct {
	RetryAfterMs *int64 `json:"retry_after_ms,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// StreamEvent is the typed shape of a partial/streaming delta message,
// forwarded unchanged to the host stream when include_partial_messages is
// set (supplemented from original_source's partial_messages example).
type StreamEvent struct {
	Index int             `json:"index"`
	Delta json.RawMessage `json:"delta"`
}

// RoutedMessage is what the router forwards on the user-facing channel:
// either a successfully decoded non-control Message, or a per-item error
// (a JSON parse failure from the transport, a terminal process error, or
// a message-shape mismatch) that does not terminate the stream (spec §4.3,
// §7's "partial failures preferred over aborts").
type RoutedMessage struct {
	Message *Message
	Err     error
}

// Decode parses a raw NDJSON line into a Message, retaining the original
// bytes in Raw for callers that need fields beyond the typed surface.
func Decode(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, err
	}
	m.Raw = append(json.RawMessage(nil), line...)
	return m, nil
}

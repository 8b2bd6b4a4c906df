package wire

import "encoding/json"

// ToolHandler executes a tool invocation against a decoded arguments
// object and returns a ToolResult or a clawerr.ToolExecutionError.
type ToolHandler func(args json.RawMessage) (ToolResult, error)

// ToolDescriptor is an MCP tool registered on a server (spec §3, §4.5).
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     ToolHandler
}

// ToolResult is what a tool handler returns: an ordered list of content
// blocks plus an error flag.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"is_error,omitempty"`
}

// ToolContent is one block of a ToolResult — text or an inline image
// (spec §3; multi-block results exercised per SPEC_FULL.md §5).
type ToolContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`     // base64, image only
	MimeType string `json:"mimeType,omitempty"` // image only
}

// TextContent builds a text ToolContent block.
func TextContent(text string) ToolContent {
	return ToolContent{Type: "text", Text: text}
}

// ImageContent builds an image ToolContent block.
func ImageContent(base64Data, mimeType string) ToolContent {
	return ToolContent{Type: "image", Data: base64Data, MimeType: mimeType}
}

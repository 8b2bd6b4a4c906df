// Package testharness provides a scriptable fake backend CLI used to
// exercise the runtime end-to-end without a real `claude` binary — the
// role original_source/test_support/mock_cli.rs plays for the Rust
// implementation, generalized to a Go subprocess (cmd/agentsdk-mockcli)
// driven through pkg/transport exactly like the real backend.
package testharness

import (
	"encoding/json"
)

// Step is one action the fake backend performs, in order. Type selects
// the action; only the fields listed for that action are meaningful.
type Step struct {
	Type string `json:"type"`

	// expect_request / expect_request_error: wait for the next inbound
	// control_request whose subtype matches Subtype ("" matches any),
	// then reply.
	Subtype string          `json:"subtype,omitempty"`
	Respond json.RawMessage `json:"respond,omitempty"`
	Error   string          `json:"error,omitempty"`

	// emit: write a literal NDJSON line.
	Line json.RawMessage `json:"line,omitempty"`

	// send_request: the backend initiates its own control_request with a
	// fixed id (so the test can assert on the host's reply).
	ID   string          `json:"id,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`

	// expect_response: wait for the host's control_response keyed by ID,
	// record its nested response object under RecordKey in the result log.
	RecordKey string `json:"record_key,omitempty"`

	// expect_user_message: consume and discard the next inbound non-
	// control line (paces multi-turn scripts).
}

// Script is an ordered sequence of Steps the fake backend executes.
type Script struct {
	Steps []Step `json:"steps"`
}

// ExpectRequest waits for an inbound control_request with the given
// subtype and replies success with respond (a JSON-encodable value).
func ExpectRequest(subtype string, respond any) Step {
	raw, _ := json.Marshal(respond)
	return Step{Type: "expect_request", Subtype: subtype, Respond: raw}
}

// ExpectRequestError waits for an inbound control_request with the given
// subtype and replies with an error response.
func ExpectRequestError(subtype, reason string) Step {
	return Step{Type: "expect_request_error", Subtype: subtype, Error: reason}
}

// Emit writes a literal NDJSON line built from v.
func Emit(v any) Step {
	raw, _ := json.Marshal(v)
	return Step{Type: "emit", Line: raw}
}

// SendRequest has the backend initiate its own control_request with a
// fixed id, merging subtype into body.
func SendRequest(id, subtype string, body any) Step {
	raw, _ := json.Marshal(body)
	return Step{Type: "send_request", ID: id, Subtype: subtype, Body: raw}
}

// ExpectResponse waits for the host's control_response keyed by id and
// records its response object under recordKey.
func ExpectResponse(id, recordKey string) Step {
	return Step{Type: "expect_response", ID: id, RecordKey: recordKey}
}

// ExpectUserMessage consumes and discards the next inbound non-control line.
func ExpectUserMessage() Step {
	return Step{Type: "expect_user_message"}
}

// Package control implements the request/response control protocol on
// both directions: outbound control requests correlated via the pending
// table, and inbound control requests dispatched through the handler
// registry (spec §4.4).
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freitascorp/agentsdk/pkg/clawerr"
	"github.com/freitascorp/agentsdk/pkg/logger"
	"github.com/freitascorp/agentsdk/pkg/observability"
	"github.com/freitascorp/agentsdk/pkg/resilience"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

// RequestTimeout is the fixed timeout every outbound control request is
// held to (spec §4.4 step 5, §5).
const RequestTimeout = 30 * time.Second

// Writer is the subset of pkg/transport's Transport the protocol needs to
// write outbound lines.
type Writer interface {
	Write(b []byte) error
}

// Protocol implements the control request/response machinery over a
// Writer and a Pending table, and dispatches inbound control requests
// through a Registry (spec §4.4).
type Protocol struct {
	w        Writer
	pending  *Pending
	registry *Registry

	metrics *observability.RuntimeMetrics
	breaker *resilience.CircuitBreaker
}

// New constructs a Protocol bound to the given transport writer. The
// registry is fixed at construction and must be non-nil: inbound control
// requests are dispatched through it.
func New(w Writer, registry *Registry) *Protocol {
	return &Protocol{w: w, pending: NewPending(), registry: registry}
}

// SetMetrics attaches a metrics sink; every outbound request thereafter
// is counted and timed. Optional — nil-safe when never called.
func (p *Protocol) SetMetrics(m *observability.RuntimeMetrics) { p.metrics = m }

// SetCircuitBreaker attaches a breaker guarding repeated outbound control-
// request failures against a wedged or crash-looping backend CLI: once
// tripped, request() fails fast instead of waiting out RequestTimeout on
// every call. Optional — nil-safe when never called.
func (p *Protocol) SetCircuitBreaker(cb *resilience.CircuitBreaker) { p.breaker = cb }

// Registry returns the bound handler registry.
func (p *Protocol) Registry() *Registry { return p.registry }

// Pending returns the bound pending table (used by pkg/router to
// complete outbound requests, and by tests to assert on table size).
func (p *Protocol) Pending() *Pending { return p.pending }

// Complete implements router.PendingCompleter.
func (p *Protocol) Complete(id string, resp wire.ControlResponse) bool {
	return p.pending.Complete(id, resp)
}

// request mints a fresh id, inserts a pending entry, writes the control
// request envelope, and awaits the response with RequestTimeout (spec
// §4.4 "Outbound request(r)"). When a circuit breaker is attached (spec
// §2 budget item "resilience against a wedged backend"), the round trip
// runs through it so repeated failures trip the breaker and subsequent
// calls fail fast instead of each waiting out RequestTimeout.
func (p *Protocol) request(ctx context.Context, subtype string, body any) (wire.ControlResponse, error) {
	if p.metrics != nil {
		p.metrics.ControlRequests.Inc()
		p.metrics.PendingInFlight.Inc()
		defer p.metrics.PendingInFlight.Dec()
	}
	start := time.Now()

	var resp wire.ControlResponse
	var err error
	call := func() error {
		resp, err = p.doRequest(ctx, subtype, body)
		return err
	}
	if p.breaker != nil {
		if cbErr := p.breaker.Execute(call); cbErr != nil && err == nil {
			err = cbErr
		}
	} else {
		call()
	}

	if p.metrics != nil {
		p.metrics.ControlLatency.Observe(time.Since(start).Seconds())
		var timeoutErr *clawerr.ControlTimeoutError
		switch {
		case errors.As(err, &timeoutErr):
			p.metrics.ControlTimeouts.Inc()
		case err != nil:
			p.metrics.ControlErrors.Inc()
		}
	}
	return resp, err
}

// doRequest performs one outbound control-request round trip, unwrapped
// from metrics/circuit-breaker bookkeeping.
func (p *Protocol) doRequest(ctx context.Context, subtype string, body any) (wire.ControlResponse, error) {
	id := uuid.NewString()
	ch := p.pending.Insert(id)

	env := wire.NewControlRequestEnvelope(id, body)
	line, err := json.Marshal(env)
	if err != nil {
		p.pending.Cancel(id)
		return wire.ControlResponse{}, &clawerr.ControlError{Reason: fmt.Sprintf("encode request: %v", err)}
	}
	line = append(line, '\n')

	if err := p.w.Write(line); err != nil {
		p.pending.Cancel(id)
		return wire.ControlResponse{}, err
	}

	timer := time.NewTimer(RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return wire.ControlResponse{}, &clawerr.ControlError{Reason: "Response channel closed"}
		}
		return resp, nil
	case <-timer.C:
		p.pending.Cancel(id)
		return wire.ControlResponse{}, &clawerr.ControlTimeoutError{Subtype: subtype}
	case <-ctx.Done():
		p.pending.Cancel(id)
		return wire.ControlResponse{}, ctx.Err()
	}
}

// Initialize sends the initialize control request (spec §4.4
// "Outbound initialize(options)").
func (p *Protocol) Initialize(ctx context.Context, req wire.InitializeRequest) error {
	req.Subtype = "initialize"
	resp, err := p.request(ctx, "initialize", req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &clawerr.ControlError{Reason: resp.Error}
	}
	return nil
}

// Interrupt sends the interrupt control request.
func (p *Protocol) Interrupt(ctx context.Context) error {
	resp, err := p.request(ctx, "interrupt", wire.NewInterruptRequest())
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &clawerr.ControlError{Reason: resp.Error}
	}
	return nil
}

// SetPermissionMode sends the set_permission_mode control request.
func (p *Protocol) SetPermissionMode(ctx context.Context, mode string) error {
	resp, err := p.request(ctx, "set_permission_mode", wire.SetPermissionModeRequest{Subtype: "set_permission_mode", Mode: mode})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &clawerr.ControlError{Reason: resp.Error}
	}
	return nil
}

// SetModel sends the set_model control request.
func (p *Protocol) SetModel(ctx context.Context, model string) error {
	resp, err := p.request(ctx, "set_model", wire.SetModelRequest{Subtype: "set_model", Model: model})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &clawerr.ControlError{Reason: resp.Error}
	}
	return nil
}

// MCPStatus sends the mcp_status control request and returns its data
// field (spec §4.6 "mcp_status's case, the data field").
func (p *Protocol) MCPStatus(ctx context.Context) (json.RawMessage, error) {
	resp, err := p.request(ctx, "mcp_status", wire.MCPStatusRequest{Subtype: "mcp_status"})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &clawerr.ControlError{Reason: resp.Error}
	}
	return resp.Data, nil
}

// RewindFiles sends the rewind_files control request.
func (p *Protocol) RewindFiles(ctx context.Context, messageID string) error {
	resp, err := p.request(ctx, "rewind_files", wire.RewindFilesRequest{Subtype: "rewind_files", MessageID: messageID})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &clawerr.ControlError{Reason: resp.Error}
	}
	return nil
}

// HandleIncoming dispatches an inbound control request to the registry
// and writes exactly one control_response line in reply (spec §4.4
// "Inbound handle_incoming").
func (p *Protocol) HandleIncoming(requestID string, req wire.IncomingControlRequest) {
	var env wire.ControlResponseEnvelope

	switch req.Subtype {
	case "can_use_tool":
		env = p.handleCanUseTool(requestID, req)
	case "hook_callback":
		env = p.handleHookCallback(requestID, req)
	case "mcp_message":
		env = p.handleMCPMessage(requestID, req)
	default:
		env = wire.NewErrorResponse(requestID, fmt.Sprintf("unknown control request subtype: %s", req.Subtype))
	}

	p.writeResponse(env)
}

func (p *Protocol) handleCanUseTool(requestID string, req wire.IncomingControlRequest) wire.ControlResponseEnvelope {
	handler := p.registry.PermissionHandler()
	if handler == nil {
		env, _ := wire.NewSuccessResponse(requestID, map[string]any{"allowed": true})
		return env
	}
	allowed, err := handler(req.ToolName, req.ToolInput)
	if err != nil {
		return wire.NewErrorResponse(requestID, err.Error())
	}
	env, err := wire.NewSuccessResponse(requestID, map[string]any{"allowed": allowed})
	if err != nil {
		return wire.NewErrorResponse(requestID, err.Error())
	}
	return env
}

func (p *Protocol) handleHookCallback(requestID string, req wire.IncomingControlRequest) wire.ControlResponseEnvelope {
	handler, ok := p.registry.HookHandlerFor(req.HookID)
	if !ok {
		return wire.NewErrorResponse(requestID, fmt.Sprintf("No handler registered for hook_id: %s", req.HookID))
	}
	result, err := handler(wire.HookEvent(req.HookEvent), req.HookInput)
	if err != nil {
		return wire.NewErrorResponse(requestID, err.Error())
	}
	env, err := wire.NewSuccessResponse(requestID, result)
	if err != nil {
		return wire.NewErrorResponse(requestID, err.Error())
	}
	return env
}

func (p *Protocol) handleMCPMessage(requestID string, req wire.IncomingControlRequest) wire.ControlResponseEnvelope {
	handler := p.registry.MCPHandler()
	if handler == nil {
		return wire.NewErrorResponse(requestID, "No MCP message handler registered")
	}
	data, err := handler(req.ServerName, req.Message)
	if err != nil {
		return wire.NewErrorResponse(requestID, err.Error())
	}
	env, err := wire.NewSuccessResponse(requestID, data)
	if err != nil {
		return wire.NewErrorResponse(requestID, err.Error())
	}
	return env
}

func (p *Protocol) writeResponse(env wire.ControlResponseEnvelope) {
	line, err := json.Marshal(env)
	if err != nil {
		logger.ErrorCF("control", "failed to marshal control_response", map[string]any{"error": err.Error()})
		return
	}
	line = append(line, '\n')
	if err := p.w.Write(line); err != nil {
		logger.ErrorCF("control", "failed to write control_response", map[string]any{"error": err.Error()})
	}
}

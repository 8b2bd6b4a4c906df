// Package router implements the background message router: demultiplexing
// every inbound JSON object by its "type" discriminator (spec §4.3).
package router

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/freitascorp/agentsdk/pkg/clawerr"
	"github.com/freitascorp/agentsdk/pkg/logger"
	"github.com/freitascorp/agentsdk/pkg/transport"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

// PendingCompleter is the subset of pkg/control's Pending table the router
// needs: routing a parsed control_response to its awaiting caller.
type PendingCompleter interface {
	Complete(requestID string, resp wire.ControlResponse) bool
}

// IncomingDispatcher is the subset of pkg/control's Protocol the router
// needs: dispatching an inbound control_request to the handler registry
// and writing its control_response reply.
type IncomingDispatcher interface {
	HandleIncoming(requestID string, req wire.IncomingControlRequest)
}

// Router reads transport.Item values from an inbound channel and routes
// each to the Pending table, the Handler dispatch, or a user-facing
// channel (spec §4.3).
type Router struct {
	pending  PendingCompleter
	dispatch IncomingDispatcher
	userCh   chan wire.RoutedMessage
	stopped  chan struct{}
}

// New constructs a Router. userChSize sizes the buffered user channel.
func New(pending PendingCompleter, dispatch IncomingDispatcher, userChSize int) *Router {
	return &Router{
		pending:  pending,
		dispatch: dispatch,
		userCh:   make(chan wire.RoutedMessage, userChSize),
		stopped:  make(chan struct{}),
	}
}

// UserChannel returns the channel non-control messages are forwarded to.
func (r *Router) UserChannel() <-chan wire.RoutedMessage {
	return r.userCh
}

// Stop signals Run to abandon delivery to the user channel and exit on
// its next send attempt, without requiring the consumer to fully drain
// in first (spec §5/§8 property 10: "dropping the response stream mid-
// poll is safe... the router exits without panicking"). Idempotent.
func (r *Router) Stop() {
	select {
	case <-r.stopped:
	default:
		close(r.stopped)
	}
}

// Run drains in until it closes or Stop is called, routing each item
// (spec §4.3). It is meant to be started as its own goroutine immediately
// after Transport Connect, before the initialize handshake is awaited
// (spec §4.3's rationale: "Why a background router rather than lazy
// dispatch").
func (r *Router) Run(in <-chan transport.Item) {
	defer close(r.userCh)

	for {
		select {
		case <-r.stopped:
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			if item.Err != nil {
				if !r.send(wire.RoutedMessage{Err: item.Err}) {
					return
				}
				continue
			}
			if !r.route(item.Value) {
				return
			}
		}
	}
}

// route returns false iff the user channel send was abandoned (Stop was
// called), signalling Run to exit.
func (r *Router) route(raw json.RawMessage) bool {
	typ := gjson.GetBytes(raw, "type").String()

	switch typ {
	case "control_response":
		r.routeControlResponse(raw)
		return true
	case "control_request":
		r.routeControlRequest(raw)
		return true
	default:
		msg, err := wire.Decode(raw)
		if err != nil {
			return r.send(wire.RoutedMessage{Err: &clawerr.MessageParseError{Reason: err.Error(), Raw: string(raw)}})
		}
		return r.send(wire.RoutedMessage{Message: &msg})
	}
}

func (r *Router) routeControlResponse(raw json.RawMessage) {
	responseRaw := gjson.GetBytes(raw, "response").Raw
	if responseRaw == "" {
		logger.WarnCF("router", "control_response missing nested response object", nil)
		return
	}
	var resp wire.ControlResponse
	if err := json.Unmarshal([]byte(responseRaw), &resp); err != nil {
		logger.WarnCF("router", "unparseable control_response dropped", map[string]any{"error": err.Error()})
		return
	}
	if resp.RequestID == "" {
		logger.WarnCF("router", "control_response missing nested request_id", nil)
		return
	}
	r.pending.Complete(resp.RequestID, resp)
}

func (r *Router) routeControlRequest(raw json.RawMessage) {
	requestID := gjson.GetBytes(raw, "request_id").String()
	requestRaw := gjson.GetBytes(raw, "request").Raw
	if requestID == "" || requestRaw == "" {
		logger.WarnCF("router", "unparseable control_request dropped", nil)
		return
	}
	var req wire.IncomingControlRequest
	if err := json.Unmarshal([]byte(requestRaw), &req); err != nil {
		logger.WarnCF("router", "unparseable control_request dropped", map[string]any{"error": err.Error()})
		return
	}
	r.dispatch.HandleIncoming(requestID, req)
}

// send forwards msg to the user channel, returning false if Stop was
// called first (spec's "closes router loop on send failure" for the Err
// branch; spec §5/§8 property 10).
func (r *Router) send(msg wire.RoutedMessage) bool {
	select {
	case r.userCh <- msg:
		return true
	case <-r.stopped:
		return false
	}
}

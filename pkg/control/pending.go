package control

import (
	"sync"

	"github.com/freitascorp/agentsdk/pkg/wire"
)

// Pending is the outbound control-request correlation table: request id
// to a single-use completion channel (spec §3 "Pending request entry",
// §4.4 "Pending Requests table"). Grounded on pkg/relay/ws_relay.go's
// `pending map[string]chan *ResultEnvelope` / SendCommandWS pattern — the
// closest teacher-pack analogue (DESIGN.md).
type Pending struct {
	mu      sync.Mutex
	entries map[string]chan wire.ControlResponse
}

// NewPending constructs an empty pending table.
func NewPending() *Pending {
	return &Pending{entries: make(map[string]chan wire.ControlResponse)}
}

// Insert registers a fresh completion channel for id, unconditionally.
func (p *Pending) Insert(id string) <-chan wire.ControlResponse {
	ch := make(chan wire.ControlResponse, 1)
	p.mu.Lock()
	p.entries[id] = ch
	p.mu.Unlock()
	return ch
}

// Complete removes the entry for id, if present, and sends resp on its
// channel. Returns whether a receiver actually took it (spec §4.4
// "Pending Requests table").
func (p *Pending) Complete(id string, resp wire.ControlResponse) bool {
	p.mu.Lock()
	ch, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// Cancel removes the entry for id without sending (spec §4.4 "request"
// step 6 timeout path).
func (p *Pending) Cancel(id string) {
	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
}

// Len reports the number of outstanding entries (used by tests asserting
// spec §8 property 5's "pending-table entry is removed" on timeout).
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

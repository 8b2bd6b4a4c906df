package router

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/agentsdk/pkg/transport"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

type fakePending struct {
	completed map[string]wire.ControlResponse
}

func (f *fakePending) Complete(id string, resp wire.ControlResponse) bool {
	if f.completed == nil {
		f.completed = map[string]wire.ControlResponse{}
	}
	f.completed[id] = resp
	return true
}

type fakeDispatch struct {
	handled []string
}

func (f *fakeDispatch) HandleIncoming(requestID string, req wire.IncomingControlRequest) {
	f.handled = append(f.handled, requestID)
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestRouter_ControlResponseGoesToPending(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 8)

	in := make(chan transport.Item, 1)
	in <- transport.Item{Value: raw(`{"type":"control_response","response":{"subtype":"success","request_id":"abc"}}`)}
	close(in)

	r.Run(in)

	require.Contains(t, p.completed, "abc")
	require.Empty(t, d.handled)
}

func TestRouter_ControlRequestGoesToDispatch(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 8)

	in := make(chan transport.Item, 1)
	in <- transport.Item{Value: raw(`{"type":"control_request","request_id":"X","request":{"subtype":"interrupt"}}`)}
	close(in)

	r.Run(in)

	require.Equal(t, []string{"X"}, d.handled)
}

func TestRouter_NonControlForwardedInOrder(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 8)

	in := make(chan transport.Item, 3)
	in <- transport.Item{Value: raw(`{"type":"system","subtype":"init"}`)}
	in <- transport.Item{Value: raw(`{"type":"assistant","message":{"role":"assistant","content":[]}}`)}
	in <- transport.Item{Value: raw(`{"type":"result","subtype":"success"}`)}
	close(in)

	done := make(chan struct{})
	var seen []string
	go func() {
		for msg := range r.UserChannel() {
			require.NoError(t, msg.Err)
			seen = append(seen, msg.Message.Type)
		}
		close(done)
	}()

	r.Run(in)
	<-done

	require.Equal(t, []string{"system", "assistant", "result"}, seen)
}

func TestRouter_ControlMessagesNeverOnUserChannel(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 8)

	in := make(chan transport.Item, 2)
	in <- transport.Item{Value: raw(`{"type":"control_response","response":{"subtype":"success","request_id":"a"}}`)}
	in <- transport.Item{Value: raw(`{"type":"control_request","request_id":"b","request":{"subtype":"interrupt"}}`)}
	close(in)

	done := make(chan struct{})
	var seen int
	go func() {
		for range r.UserChannel() {
			seen++
		}
		close(done)
	}()

	r.Run(in)
	<-done
	require.Zero(t, seen)
}

func TestRouter_MalformedControlResponseDroppedSilently(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 8)

	in := make(chan transport.Item, 1)
	in <- transport.Item{Value: raw(`{"type":"control_response","response":"not-an-object"}`)}
	close(in)

	r.Run(in)
	require.Empty(t, p.completed)
}

func TestRouter_ErrItemForwardedToUserChannel(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 8)

	in := make(chan transport.Item, 1)
	in <- transport.Item{Err: assertErr{}}
	close(in)

	var got wire.RoutedMessage
	done := make(chan struct{})
	go func() {
		got = <-r.UserChannel()
		close(done)
	}()
	r.Run(in)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed error")
	}
	require.Error(t, got.Err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestRouter_StoppedRouterExitsWithoutPanicking(t *testing.T) {
	p := &fakePending{}
	d := &fakeDispatch{}
	r := New(p, d, 0)

	in := make(chan transport.Item)
	r.Stop()

	done := make(chan struct{})
	go func() {
		r.Run(in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router did not exit after Stop")
	}
}

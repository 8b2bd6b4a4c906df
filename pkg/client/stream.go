package client

import (
	"io"

	"github.com/freitascorp/agentsdk/pkg/wire"
)

// ResponseStream is the host-facing typed sequence of assistant/user/
// system/result messages pulled from the router's user channel. Per-item
// parse errors surface from Recv without terminating the stream; Recv
// returns io.EOF once the channel closes (spec §4.6 "Response stream").
type ResponseStream struct {
	ch  <-chan wire.RoutedMessage
	tap func(wire.Message)
}

func newResponseStream(ch <-chan wire.RoutedMessage, tap func(wire.Message)) *ResponseStream {
	return &ResponseStream{ch: ch, tap: tap}
}

// Recv blocks for the next message. Returns io.EOF when the stream ends.
func (s *ResponseStream) Recv() (wire.Message, error) {
	routed, ok := <-s.ch
	if !ok {
		return wire.Message{}, io.EOF
	}
	if routed.Err != nil {
		return wire.Message{}, routed.Err
	}
	if s.tap != nil {
		s.tap(*routed.Message)
	}
	return *routed.Message, nil
}

// All drains the stream to completion, collecting successfully parsed
// messages and per-item errors separately — a per-item error (spec §7
// "recoverable: MessageParse") never stops the drain; only the channel
// closing (io.EOF) does. Intended for tests and simple callers;
// long-running hosts should use Recv directly.
func (s *ResponseStream) All() (messages []wire.Message, errs []error) {
	for {
		msg, err := s.Recv()
		if err == io.EOF {
			return messages, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		messages = append(messages, msg)
	}
}

package client

import (
	"context"

	"github.com/freitascorp/agentsdk/pkg/agentopt"
	"github.com/freitascorp/agentsdk/pkg/control"
	"github.com/freitascorp/agentsdk/pkg/router"
	"github.com/freitascorp/agentsdk/pkg/transport"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

// QueryStream is the one-shot counterpart to ResponseStream: it owns the
// transport it was built from, so closing it terminates the child process
// (spec §4.7 "The returned stream owns the transport (drop-joined)").
type QueryStream struct {
	*ResponseStream
	transport *transport.Transport
}

// Close terminates the backend child process and releases transport
// resources. Safe to call even if the stream was not fully drained.
func (q *QueryStream) Close() error {
	return q.transport.Close()
}

// Query is the one-shot fire-and-forget path: it appends "-p <prompt>" to
// argv, connects, immediately half-closes stdin (the prompt rides on the
// child's argv, not stdin, for this path), and returns a stream of typed
// messages (spec §4.7).
func Query(ctx context.Context, prompt string, opts agentopt.Options) (*QueryStream, error) {
	args := opts.ToArgs(prompt)
	var env []string
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	tr := transport.New(transport.Config{
		CLIPath: opts.CLIPath,
		Args:    args,
		Dir:     opts.CWD,
		Env:     env,
	})

	if err := tr.Connect(ctx); err != nil {
		return nil, err
	}
	if err := tr.EndInput(); err != nil {
		_ = tr.Close()
		return nil, err
	}

	inbound := tr.Messages()
	registry := control.NewRegistry()
	proto := control.New(tr, registry)
	rt := router.New(proto, proto, 64)
	go rt.Run(inbound)

	stream := newResponseStream(rt.UserChannel(), func(wire.Message) {})
	return &QueryStream{ResponseStream: stream, transport: tr}, nil
}

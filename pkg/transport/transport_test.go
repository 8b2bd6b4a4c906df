package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFakeCLI writes a tiny shell script that echoes a fixed NDJSON
// sequence to stdout and then exits, used as a stand-in backend process
// without depending on pkg/testharness (which itself layers on transport).
func writeFakeCLI(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestTransport_ConnectAndReadLines(t *testing.T) {
	path := writeFakeCLI(t, `echo '{"type":"system","subtype":"init"}'
echo '{"type":"result","subtype":"success"}'
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))
	require.True(t, tr.IsReady())

	ch := tr.Messages()
	var items []Item
	for item := range ch {
		items = append(items, item)
	}
	require.Len(t, items, 2)
	require.Contains(t, string(items[0].Value), "system")
	require.Contains(t, string(items[1].Value), "result")
}

func TestTransport_EmptyLinesDropped(t *testing.T) {
	path := writeFakeCLI(t, `echo ''
echo '{"type":"system"}'
echo ''
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))

	ch := tr.Messages()
	var items []Item
	for item := range ch {
		items = append(items, item)
	}
	require.Len(t, items, 1)
}

func TestTransport_ConnectTwiceFails(t *testing.T) {
	path := writeFakeCLI(t, `sleep 1
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	err := tr.Connect(context.Background())
	require.Error(t, err)
}

func TestTransport_MessagesCalledTwicePanics(t *testing.T) {
	path := writeFakeCLI(t, `sleep 1
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	_ = tr.Messages()
	require.Panics(t, func() { tr.Messages() })
}

func TestTransport_CloseIsIdempotent(t *testing.T) {
	path := writeFakeCLI(t, `sleep 1
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))
	_ = tr.Messages()

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	require.False(t, tr.IsReady())
}

func TestTransport_WriteAfterCloseFails(t *testing.T) {
	path := writeFakeCLI(t, `sleep 1
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))
	_ = tr.Messages()
	require.NoError(t, tr.Close())

	err := tr.Write([]byte("{}\n"))
	require.Error(t, err)
}

func TestTransport_CloseWithinTimeBudget(t *testing.T) {
	path := writeFakeCLI(t, `trap '' TERM
sleep 30
`)
	tr := New(Config{CLIPath: path})
	require.NoError(t, tr.Connect(context.Background()))
	_ = tr.Messages()

	start := time.Now()
	require.NoError(t, tr.Close())
	require.Less(t, time.Since(start), 6*time.Second)
}

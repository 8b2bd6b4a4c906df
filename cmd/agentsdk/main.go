// Command agentsdk demonstrates the runtime against a real backend CLI:
// a one-shot query, a single-turn chat read from stdin, and an in-process MCP tool
// server wired through a live session (spec §4.6, §4.7, §4.5).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentsdk:", err)
		os.Exit(1)
	}
}

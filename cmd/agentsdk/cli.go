package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/freitascorp/agentsdk/pkg/agentopt"
	"github.com/freitascorp/agentsdk/pkg/client"
	"github.com/freitascorp/agentsdk/pkg/logger"
	"github.com/freitascorp/agentsdk/pkg/mcpbridge"
	"github.com/freitascorp/agentsdk/pkg/observability"
	"github.com/freitascorp/agentsdk/pkg/wire"
)

var (
	flagCLIPath string
	flagCWD     string
	flagModel   string
	flagDebug   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentsdk",
		Short: "Drive a backend coding-assistant CLI as a subprocess",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				logger.SetLevel(logger.DEBUG)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagCLIPath, "cli-path", "", "path to the backend CLI binary (default: auto-discover)")
	root.PersistentFlags().StringVar(&flagCWD, "cwd", "", "working directory for the backend process")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "model override")
	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")

	root.AddCommand(newQueryCmd(), newChatCmd(), newMCPServeCmd())
	return root
}

func baseOptions() agentopt.Options {
	opts := agentopt.New()
	opts.CLIPath = flagCLIPath
	opts.CWD = flagCWD
	opts.Model = flagModel
	return opts
}

// printMessage renders one wire.Message the way a plain-stdout host would,
// deliberately not a TUI (see DESIGN.md's pkg/tui deletion rationale).
func printMessage(w io.Writer, msg wire.Message) {
	switch msg.Type {
	case "system":
		if msg.Subtype == "init" {
			fmt.Fprintf(w, "[session %s]\n", msg.SessionID)
		}
	case "assistant", "user":
		if msg.AssistantMessage == nil {
			return
		}
		for _, block := range msg.AssistantMessage.Content {
			switch block.Type {
			case "text":
				fmt.Fprintln(w, block.Text)
			case "tool_use":
				fmt.Fprintf(w, "[tool_use %s %s]\n", block.Name, block.ID)
			case "tool_result":
				fmt.Fprintf(w, "[tool_result %s]\n", block.ToolUseID)
			case "thinking":
				fmt.Fprintf(w, "[thinking] %s\n", block.Thinking)
			}
		}
	case "result":
		fmt.Fprintf(w, "[done: %d turns, %s]\n", msg.NumTurns, time.Duration(msg.DurationAPIMs)*time.Millisecond)
	}
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [prompt]",
		Short: "Run a single fire-and-forget prompt and print the response stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stream, err := client.Query(ctx, args[0], baseOptions())
			if err != nil {
				return err
			}
			defer stream.Close()

			for {
				msg, err := stream.Recv()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					fmt.Fprintln(os.Stderr, "stream error:", err)
					continue
				}
				printMessage(os.Stdout, msg)
			}
		},
	}
	return cmd
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Single-turn session: reads one prompt from stdin and prints the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.New(baseOptions())
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			interactive := term.IsTerminal(int(os.Stdin.Fd()))

			scanner := bufio.NewScanner(os.Stdin)
			for {
				if interactive {
					fmt.Print("> ")
				}
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := scanner.Text()
				if line == "" {
					continue
				}

				stream, err := c.SendMessage(ctx, line)
				if err != nil {
					return err
				}
				messages, errs := stream.All()
				for _, e := range errs {
					fmt.Fprintln(os.Stderr, "stream error:", e)
				}
				for _, msg := range messages {
					printMessage(os.Stdout, msg)
				}
				// SendMessage is one-shot per spec §9a; chat only supports a
				// single turn per process invocation until a future redesign
				// lifts that restriction.
				return nil
			}
		},
	}
	return cmd
}

// demoTimeServer builds a single-tool in-process MCP server used to
// exercise pkg/mcpbridge end-to-end through a real backend CLI. metrics
// may be nil; when set, every tools/call is counted and timed.
func demoTimeServer(metrics *observability.RuntimeMetrics) *mcpbridge.Server {
	srv := mcpbridge.NewServer("agentsdk-demo", "0.1.0")
	srv.SetMetrics(metrics)
	srv.RegisterTool(wire.ToolDescriptor{
		Name:        "current_time",
		Description: "Returns the current time in RFC3339 form",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(args json.RawMessage) (wire.ToolResult, error) {
			return wire.ToolResult{Content: []wire.ToolContent{wire.TextContent(time.Now().Format(time.RFC3339))}}, nil
		},
	})
	return srv
}

func newMCPServeCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "mcp-serve",
		Short: "Drive a query with an in-process MCP tool server wired in",
		Long: `Registers a demo in-process MCP server (a single current_time tool)
against a real backend session and issues one query, demonstrating
pkg/mcpbridge wired end-to-end rather than run as a standalone protocol
server a different process would connect to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts := baseOptions()
			opts.SDKMCPServers = append(opts.SDKMCPServers, wire.SDKMCPServerRef{
				Name: "agentsdk-demo", Version: "0.1.0",
			})

			c := client.New(opts)

			registry := mcpbridge.NewRegistry()
			registry.Register(demoTimeServer(c.Metrics()))
			c.RegisterMCPMessageHandler(registry.HandleMCPMessage)

			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			stream, err := c.SendMessage(ctx, prompt)
			if err != nil {
				return err
			}
			messages, errs := stream.All()
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, "stream error:", e)
			}
			for _, msg := range messages {
				printMessage(os.Stdout, msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "what time is it?", "prompt to send after wiring the demo MCP server")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/coordinator"
	"github.com/hupe1980/toolmesh/stream"
)

var (
	chatSession string
	chatStream  bool
	chatQuiet   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message to the coordinator",
	Long: `Send one message to the coordinator and print its reply.

The coordinator delegates to the demo agents (Assistant, Counter). Tool
updates are printed to stderr as they happen unless --quiet is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runChat(ctx, strings.Join(args, " "))
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Session identifier for conversation memory")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "Stream the reply token by token")
	chatCmd.Flags().BoolVarP(&chatQuiet, "quiet", "q", false, "Do not print tool updates")
}

func runChat(ctx context.Context, message string) error {
	var streamed bool
	printToken := func(token string) {
		streamed = true
		fmt.Print(token)
	}

	m, err := newDemoMesh(ctx, func(o *toolmesh.Options) {
		o.OnToken = printToken
		if !chatQuiet {
			o.OnToolUpdate = streamPrinter()
		}
		o.OnTimeout = func(toolName string, d time.Duration) {
			printStatus("⏱", fmt.Sprintf("%s timed out after %s", toolName, d), color.FgRed)
		}
	})
	if err != nil {
		return err
	}
	defer m.Close()

	var msgOpts []coordinator.MessageOption
	if chatSession != "" {
		msgOpts = append(msgOpts, coordinator.WithSession(chatSession))
	}
	if chatStream {
		msgOpts = append(msgOpts, coordinator.WithStreaming(printToken))
	}

	reply, err := m.ProcessMessage(ctx, message, msgOpts...)
	if err != nil {
		return err
	}

	if streamed {
		fmt.Println()
		return nil
	}

	fmt.Println(reply)

	return nil
}

func streamPrinter() stream.Handler { return stream.HandlerFunc(printUpdate) }

// printUpdate renders one tool update on stderr.
func printUpdate(u stream.Update) {
	switch u.Kind {
	case stream.KindStart:
		printStatus("▶", u.ToolName, color.FgCyan)
	case stream.KindProgress:
		printStatus("…", fmt.Sprintf("%s %3d%% %s", u.ToolName, u.Progress, u.Content), color.FgBlue)
	case stream.KindComplete:
		printStatus("✓", u.ToolName, color.FgGreen)
	case stream.KindError:
		printStatus("✗", fmt.Sprintf("%s: %s", u.ToolName, u.Error), color.FgRed)
	case stream.KindTimeout:
		printStatus("⏱", u.ToolName, color.FgYellow)
	}
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(os.Stderr, "%s %s\n", c.Sprint(symbol), message)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/tool"
)

var toolsVerbose bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newDemoMesh(cmd.Context())
		if err != nil {
			return err
		}
		defer m.Close()

		return listTools(m.Tools().List(), toolsVerbose)
	},
}

var callArgs string

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Run one tool directly through an execution envelope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var input map[string]any
		if err := json.Unmarshal([]byte(callArgs), &input); err != nil {
			return fmt.Errorf("invalid --args: %w", err)
		}

		m, err := newDemoMesh(cmd.Context(), func(o *toolmesh.Options) {
			o.OnToolUpdate = streamPrinter()
		})
		if err != nil {
			return err
		}
		defer m.Close()

		out, err := m.CallTool(cmd.Context(), args[0], input)
		if err != nil {
			return err
		}

		fmt.Println(out)

		return nil
	},
}

func init() {
	toolsCmd.Flags().BoolVarP(&toolsVerbose, "verbose", "v", false, "Print the input schema of every tool")
	callCmd.Flags().StringVarP(&callArgs, "args", "a", "{}", "Tool arguments as JSON object")
}

// newDemoMesh builds a mesh from --config with the demo tools registered.
func newDemoMesh(ctx context.Context, optFns ...func(o *toolmesh.Options)) (*toolmesh.Mesh, error) {
	cfg, err := toolmesh.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	m, err := toolmesh.FromConfig(ctx, cfg, optFns...)
	if err != nil {
		return nil, err
	}

	if err := registerDemo(m, cfg.Coordinator.ModelProvider()); err != nil {
		_ = m.Close()
		return nil, err
	}

	return m, nil
}

func listTools(tools []tool.Tool, verbose bool) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s\t%s\n", bold.Sprint("NAME"), bold.Sprint("DESCRIPTION"))

	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if !verbose {
		return nil
	}

	for _, t := range tools {
		schema, err := json.MarshalIndent(t.Parameters(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n%s\n", color.CyanString(t.Name()), schema)
	}

	return nil
}

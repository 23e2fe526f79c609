package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "toolmesh",
	Short: "Tool and agent orchestration for LLMs",
	Long: `toolmesh routes a message through a coordinator that delegates to
registered agents. Agents call tools through execution envelopes that enforce
timeouts and stream progress updates.

Configuration is read from a YAML file (see --config). Values of the form
${VAR} are expanded from the environment.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
}

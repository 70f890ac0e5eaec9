package main

import (
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "repochat",
	Short:         "Chat with a GitHub codebase over REST, SSE, and WebSocket",
	Long:          "repochat ingests GitHub repositories into a local vector index and answers questions about them through an HTTP API or an MCP stdio server.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

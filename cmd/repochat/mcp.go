package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repochat/repochat/internal/tools"
)

var (
	mcpCodebaseID string
	mcpServerKind string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve a codebase's tools over MCP stdio",
	Long:  "Expose the code tools (search_code, read_file, list_files, get_repo_summary) or the file tools (read_file, list_directory, search_files, grep) of an ingested codebase to an MCP client on stdio. Logs go to stderr.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMCP(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpCodebaseID, "codebase", "", "id of an ingested codebase (required)")
	mcpCmd.Flags().StringVar(&mcpServerKind, "server", "code", "tool server to expose: code or file")
	_ = mcpCmd.MarkFlagRequired("codebase")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(ctx context.Context) error {
	app, err := buildApp(os.Stderr, false)
	if err != nil {
		return err
	}
	defer app.close()

	cb, err := app.pipeline.Status(ctx, mcpCodebaseID)
	if err != nil {
		return err
	}
	if !cb.Ready() {
		return fmt.Errorf("codebase %s is %s, ingest it first", cb.ID, cb.Status)
	}

	var registry *tools.Registry
	switch mcpServerKind {
	case "code":
		srv, err := tools.NewCodeServer(cb, app.store, app.indexes, app.embedder, app.cfg.TopK)
		if err != nil {
			return err
		}
		registry = srv.Registry()
	case "file":
		srv, err := tools.NewFileServer(cb.LocalPath)
		if err != nil {
			return err
		}
		registry = srv.Registry()
	default:
		return fmt.Errorf("unknown server kind %q, want code or file", mcpServerKind)
	}

	app.log.Info("mcp server listening on stdio", "codebase_id", cb.ID, "server", mcpServerKind)
	return tools.NewMCPServer("repochat", version, registry).Serve(ctx)
}

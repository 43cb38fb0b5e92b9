package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/clawdesk/clawbench/internal/config"
	"github.com/clawdesk/clawbench/internal/mcpserver"
	"github.com/clawdesk/clawbench/internal/tools"
	"github.com/clawdesk/clawbench/internal/vfs"
)

// mcpCmd runs the Tool Catalog's MCP transport standalone over stdio, for
// an IDE or agent that spawns clawbench as a child process rather than
// dialing the streamable-HTTP transport serve already exposes.
func mcpCmd() *cobra.Command {
	var workspaceID, userID string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Tool Catalog as a stdio MCP server for one workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPStdio(workspaceID, userID)
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id every tool call is scoped to (required)")
	cmd.Flags().StringVar(&userID, "user", "", "user id attributed to every tool call (required)")
	cmd.MarkFlagRequired("workspace")
	cmd.MarkFlagRequired("user")
	return cmd
}

func runMCPStdio(workspaceID, userID string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	blobs, err := newBlobStore(ctx, cfg.BlobStore)
	if err != nil {
		return err
	}
	files := vfs.NewPGStore(pool, blobs)
	catalog := tools.RegisterAll(files, http.DefaultClient)

	resolver := func(context.Context) (string, string) { return workspaceID, userID }
	srv := mcpserver.New("clawbench-tools", Version, catalog, resolver)
	return srv.ServeStdio(ctx)
}

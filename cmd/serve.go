package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/clawdesk/clawbench/internal/authsvc"
	"github.com/clawdesk/clawbench/internal/blobstore"
	"github.com/clawdesk/clawbench/internal/cache"
	"github.com/clawdesk/clawbench/internal/chatstore"
	"github.com/clawdesk/clawbench/internal/config"
	"github.com/clawdesk/clawbench/internal/contextbuilder"
	"github.com/clawdesk/clawbench/internal/httpapi"
	"github.com/clawdesk/clawbench/internal/mcpserver"
	"github.com/clawdesk/clawbench/internal/modelgateway"
	"github.com/clawdesk/clawbench/internal/otelx"
	"github.com/clawdesk/clawbench/internal/registry"
	"github.com/clawdesk/clawbench/internal/sessions"
	"github.com/clawdesk/clawbench/internal/tools"
	"github.com/clawdesk/clawbench/internal/vfs"
	"github.com/clawdesk/clawbench/internal/workspacesvc"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the clawbench HTTP + MCP server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := otelx.Setup(ctx, cfg.Tracing.Enabled, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		slog.Error("setup tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	blobs, err := newBlobStore(ctx, cfg.BlobStore)
	if err != nil {
		slog.Error("init blob store", "error", err)
		os.Exit(1)
	}

	files := vfs.NewPGStore(pool, blobs)
	chats := chatstore.NewPGStore(pool)
	sessionStore := sessions.NewPGStore(pool)
	toolCatalog := tools.RegisterAll(files, http.DefaultClient)
	assembler := contextbuilder.NewAssembler(chats, files)

	gateway := modelgateway.NewGateway(cfg.Agents.DefaultProvider, modelgateway.NewLimiters(2, 4))
	for _, p := range cfg.Providers {
		gateway.Register(newProvider(p))
	}
	if err := gateway.Validate(); err != nil {
		slog.Error("invalid model gateway configuration", "error", err)
		os.Exit(1)
	}

	reg := registry.New(registry.Deps{
		Sessions:            sessionStore,
		Chats:               chats,
		Files:               files,
		ToolCat:             toolCatalog,
		Gateway:             gateway,
		Assembler:           assembler,
		HeartbeatInterval:   time.Duration(cfg.Agents.HeartbeatSeconds) * time.Second,
		InactivityTimeout:   time.Duration(cfg.Agents.InactivityTimeoutSecs) * time.Second,
		TokenBudget:         cfg.Agents.TokenBudget,
		MailboxSize:         cfg.Agents.MailboxSize,
		BroadcastBufferSize: cfg.Agents.BroadcastBufferSize,
		CleanupInterval:     time.Duration(cfg.Sessions.IntervalSecs) * time.Second,
		CleanupCron:         cfg.Sessions.Cron,
	})
	go reg.RunCleanup(ctx)

	memCache := cache.New(30 * time.Second)
	defer memCache.Close()

	auth := authsvc.NewPGService(pool, cfg.Auth.Secret,
		time.Duration(cfg.HTTP.AccessTokenTTLSec)*time.Second,
		time.Duration(cfg.Auth.RefreshTokenTTLSec)*time.Second)
	workspaces := workspacesvc.NewPGService(pool)

	server := httpapi.NewServer(httpapi.Deps{
		Auth:         auth,
		Workspaces:   workspaces,
		Files:        files,
		Chats:        chats,
		Sessions:     sessionStore,
		ToolCat:      toolCatalog,
		Registry:     reg,
		Cache:        memCache,
		CookieSecure: cfg.HTTP.CookieSecure,
	})

	httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: server}
	go func() {
		slog.Info("httpapi listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi server", "error", err)
		}
	}()

	var mcpSrv *http.Server
	if cfg.MCP.Enabled {
		resolver := func(context.Context) (string, string) { return "", "" }
		mcp := mcpserver.New("clawbench-tools", Version, toolCatalog, resolver)
		mcpSrv = &http.Server{Addr: cfg.MCP.Addr, Handler: mcp.HTTPHandler()}
		go func() {
			slog.Info("mcp server listening", "addr", cfg.MCP.Addr)
			if err := mcpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("mcp server", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	if mcpSrv != nil {
		mcpSrv.Shutdown(shutdownCtx)
	}
}

func newBlobStore(ctx context.Context, cfg config.BlobStoreConfig) (blobstore.Store, error) {
	if cfg.Backend == "s3" {
		return blobstore.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
	}
	return blobstore.NewLocal(cfg.LocalRoot)
}

func newProvider(p config.ProviderConfig) modelgateway.Provider {
	if p.Name == "openrouter" {
		return modelgateway.NewOpenRouterCompatible(p.BaseURL, p.APIKey, p.Default, "clawbench", http.DefaultClient)
	}
	return modelgateway.NewOpenAICompatible(p.Name, p.BaseURL, p.APIKey, p.Default, http.DefaultClient)
}

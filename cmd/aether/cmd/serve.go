package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/diagnostics"
	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/extract"
	"github.com/aether-labs/aether/internal/pipeline"
	"github.com/aether-labs/aether/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the aether HTTP API.

Documents are submitted to /api/v1/analyses and analyzed in the background.
Progress is streamed as server-sent events from
/api/v1/analyses/{id}/stream.

Examples:
  # Start with defaults (localhost:3001)
  aether serve

  # Start on custom host and port
  aether serve --host 0.0.0.0 --port 8080`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost",
		"Host address to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 3001,
		"Port to listen on")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	watchLogLevel(viper.GetViper(), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inv, err := newInvoker(cfg, logger)
	if err != nil {
		return err
	}

	store, err := session.New(session.Options{Backend: cfg.Session.Backend, Path: cfg.Session.Path})
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close session store", "error", closeErr)
		}
	}()
	logger.Info("session store ready", "backend", cfg.Session.Backend)

	broadcaster := events.NewBroadcaster(cfg.Server.EventBuffer)
	defer broadcaster.Shutdown()

	coordinator, err := pipeline.NewCoordinator(inv, broadcaster,
		pipeline.WithOptions(pipelineOptions(cfg.Pipeline)),
		pipeline.WithStore(store),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	launcher := pipeline.NewLauncher(ctx, store, broadcaster, coordinator,
		pipeline.WithMaxConcurrent(cfg.Server.MaxConcurrentSessions),
		pipeline.WithLauncherLogger(logger),
	)
	// Runs after the server stops accepting requests.
	defer launcher.Wait()

	diskPath := ""
	if cfg.Session.Backend == session.BackendSQLite {
		diskPath = cfg.Session.Path
	}

	server := api.NewServer(store, broadcaster, launcher,
		api.WithLogger(logger),
		api.WithHeartbeat(cfg.Server.Heartbeat),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithExtractor(extract.New(cfg.Server.MaxUploadBytes)),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		api.WithDiagnostics(diagnostics.NewCollector(diskPath)),
	)

	sweeper := session.NewSweeper(store, cfg.Session.Retention, cfg.Session.SweepInterval,
		session.WithEvictHook(broadcaster.Remove),
		session.WithSweeperLogger(logger),
	)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	logger.Info("server starting", "addr", addr, "cors_origins", cfg.Server.CORSOrigins)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codesquad-ai/codesquad/internal/config"
	"github.com/codesquad-ai/codesquad/internal/event"
	"github.com/codesquad-ai/codesquad/internal/ledger"
	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/internal/project"
	"github.com/codesquad-ai/codesquad/internal/provider"
	"github.com/codesquad-ai/codesquad/internal/server"
	"github.com/codesquad-ai/codesquad/internal/session"
	"github.com/codesquad-ai/codesquad/internal/squad"
	"github.com/codesquad-ai/codesquad/internal/storage"
	"github.com/codesquad-ai/codesquad/internal/workspace"
)

var (
	servePort    int
	serveDir     string
	serveNoCORS  bool
	shutdownWait = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CodeSquad server",
	Long: `Start the CodeSquad server that browser clients connect to.

The server exposes a WebSocket endpoint for the session protocol, a
server-sent-events feed of workspace activity, and a REST API for
project, file, session and squad management.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().
		Str("version", Version).
		Str("workDir", workDir).
		Msg("Starting CodeSquad server")

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	store := storage.New(filepath.Join(config.DataDir(), "storage"))

	ws, err := workspace.New(appConfig.ProjectsRoot)
	if err != nil {
		return err
	}

	ctx := context.Background()
	providers, err := provider.Initialize(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to initialize some providers")
	}

	bus := event.NewBus()
	tasks := ledger.New(appConfig.MaxTasks, bus)
	squads := squad.New(ws, bus, appConfig.Squad)
	registry := session.NewRegistry(ws, store, bus)
	coordinator := session.NewCoordinator(registry, providers, tasks, squads, ws, bus, appConfig)
	projects := project.NewService(ws, store, bus)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.EnableCORS = !serveNoCORS

	srv := server.New(serverConfig, appConfig, coordinator, projects, squads, ws, bus)

	go func() {
		logging.Info().Int("port", servePort).Msg("Server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server shutdown error")
	}

	// Agent processes outlive connections, not the server itself.
	squads.Shutdown()
	bus.Close()

	logging.Info().Msg("Server stopped")
	return nil
}

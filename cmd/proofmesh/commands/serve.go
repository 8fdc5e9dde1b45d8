package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/docstore"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/server"
)

var (
	servePort int
	serveCORS []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ProofMesh HTTP API",
	Long: `Start ProofMesh as a server that exposes the edit engine over HTTP,
with live updates on /event.

Files changed on disk by other programs are reloaded into open documents
that have no run in progress and no unsaved or pending changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringSliceVar(&serveCORS, "cors", nil, "Allowed CORS origins")
}

func runServe(cmd *cobra.Command, args []string) error {
	appConfig, err := loadConfig(false)
	if err != nil {
		return err
	}
	log := logging.Component(logging.ComponentCLI)

	eng, err := newEngine(appConfig, "", false)
	if err != nil {
		return err
	}
	defer eng.close()

	var watcher *docstore.Watcher
	if !appConfig.Watcher.Disabled {
		watcher, err = docstore.NewWatcher(eng.docs.Root(), appConfig.Watcher.Ignore, eng.coordinator.ExternalChange)
		if err != nil {
			log.Warn().Err(err).Msg("file watcher disabled")
		} else {
			watcher.Start()
		}
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = appConfig.Server.Port
	if servePort != 0 {
		serverConfig.Port = servePort
	}
	if len(serveCORS) > 0 {
		serverConfig.CORSOrigins = serveCORS
	} else if len(appConfig.Server.CORS) > 0 {
		serverConfig.CORSOrigins = appConfig.Server.CORS
	}

	srv := server.New(serverConfig, appConfig, eng.coordinator, eng.docs, eng.bus)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("workspace", eng.docs.Root()).
			Int("port", serverConfig.Port).
			Str("version", Version).
			Str("logFile", logging.LogFilePath()).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "ProofMesh listening on http://localhost:%d\n", serverConfig.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err = <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		if werr := watcher.Stop(); werr != nil {
			log.Warn().Err(werr).Msg("watcher stop failed")
		}
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("server shutdown error")
	}
	// unsaved documents are written back here
	if cerr := eng.coordinator.Shutdown(shutdownCtx); cerr != nil {
		log.Error().Err(cerr).Msg("coordinator shutdown error")
	}

	log.Info().Msg("server stopped")
	return err
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvailla/spantree/internal/config"
	"github.com/mvailla/spantree/internal/logging"
	"github.com/mvailla/spantree/remote"
	"github.com/mvailla/spantree/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the span API over a trace database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(configPath)
		logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

		db, err := sqlite.Open(cfg.Database.Path, sqlite.WithLogger(logger))
		if err != nil {
			return err
		}
		defer db.Close()

		srv := remote.NewServer(db, remote.WithServerLogger(logger))
		if err := srv.Start(cfg.Server.Addr); err != nil {
			return err
		}
		logger.Info("spantreed: serving span api", "addr", srv.Addr(), "db", db.Path())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		logger.Info("spantreed: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return db.WALCheckpoint(shutdownCtx)
	},
}

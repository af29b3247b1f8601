package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvailla/spantree/internal/config"
	"github.com/mvailla/spantree/internal/logging"
	"github.com/mvailla/spantree/liveview"
	"github.com/mvailla/spantree/store/sqlite"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse a trace database live in the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(configPath)
		logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

		db, err := sqlite.Open(cfg.Database.Path, sqlite.WithLogger(logger))
		if err != nil {
			return err
		}
		defer db.Close()

		roots, err := db.RootIDs(cmd.Context())
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			return fmt.Errorf("no root span in %s", db.Path())
		}

		srv := liveview.NewServer(db, roots[0],
			liveview.WithLogger(logger),
			liveview.WithExportPath(cfg.View.ExportPath))
		if err := srv.Start(cfg.View.Addr); err != nil {
			return err
		}
		fmt.Printf("viewing %s at %s\n", db.Path(), srv.URL())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

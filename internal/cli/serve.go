package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IsaiahDupree/EverReach-sub008/internal/config"
	"github.com/IsaiahDupree/EverReach-sub008/internal/engine"
	"github.com/IsaiahDupree/EverReach-sub008/internal/server"
	"github.com/IsaiahDupree/EverReach-sub008/internal/store"
	"github.com/IsaiahDupree/EverReach-sub008/internal/sweep"
	"github.com/IsaiahDupree/EverReach-sub008/internal/warmth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)

	// Scheduled sweep keeps cached scores fresh without events
	if cfg.Sweep.Enabled {
		sweeper := sweep.NewService(eng, cfg.Sweep.Schedule, cfg.Sweep.PageSize)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start sweep scheduler: %w", err)
		}
		defer sweeper.Stop()
	}

	srv := server.New(db, eng, cfg.Warmth.Weights, warmth.Mode(cfg.Warmth.DefaultMode), VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "warmth serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if cfg.Sweep.Enabled {
			fmt.Fprintf(os.Stderr, "  sweep: %s\n", cfg.Sweep.Schedule)
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

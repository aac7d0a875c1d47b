package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IsaiahDupree/EverReach-sub008/internal/config"
	"github.com/IsaiahDupree/EverReach-sub008/internal/engine"
	"github.com/IsaiahDupree/EverReach-sub008/internal/store"
	"github.com/IsaiahDupree/EverReach-sub008/internal/sweep"
)

var sweepTimeout time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Recompute cached warmth scores for all contacts",
	Long:  "Runs one full batch recompute and exits. Intended for external cron; resumes from the persisted cursor if a previous sweep was interrupted.",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 30*time.Minute, "abort the sweep after this long")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	ctx, cancel := context.WithTimeout(cmd.Context(), sweepTimeout)
	defer cancel()

	sweeper := sweep.NewService(engine.New(db), cfg.Sweep.Schedule, cfg.Sweep.PageSize)
	res, err := sweeper.RunOnce(ctx)
	fmt.Printf("sweep: %d processed, %d failed, %d pages\n", res.Processed, res.Failed, res.Pages)
	if err != nil {
		return fmt.Errorf("sweep interrupted: %w", err)
	}
	return nil
}

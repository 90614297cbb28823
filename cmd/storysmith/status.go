package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danielmv/storysmith/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a run and its items",
	RunE:  runStatus,
}

var (
	statusConfigPath string
	statusRunID      string
)

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Path to config.json file")
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Run id to inspect (required)")
	_ = statusCmd.MarkFlagRequired("run")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(statusConfigPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database URL is required (config 'database_url' or DATABASE_URL)")
	}

	runID, err := uuid.Parse(statusRunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q", statusRunID)
	}

	store, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  project: %s\n", run.ProjectID)
	fmt.Printf("  status:  %s\n", run.Status)
	fmt.Printf("  created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf("  done:    %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	items, err := store.ListRunItems(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Printf("\nItems (%d):\n", len(items))
	for _, item := range items {
		line := fmt.Sprintf("  %-12s %s", item.SourceItemID, item.Status)
		if item.Error != "" {
			line += "  " + item.Error
		}
		fmt.Println(line)
	}
	return nil
}

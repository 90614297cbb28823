package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danielmv/storysmith/internal/observability"
	"github.com/danielmv/storysmith/internal/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write a run's generated content back to the tracker",
	Long: `Applies selected items of a completed run to the tracker: patches the chosen
fields, merges tags, and creates deduplicated sub-tasks and test artifacts.`,
	RunE: runApply,
}

var (
	applyConfigPath  string
	applyRunID       string
	applyItemIDs     []string
	applyFields      []string
	applyTasks       bool
	applyTestCases   bool
	applyStoryPoints bool
	applyVerbose     bool
)

func init() {
	applyCmd.Flags().StringVar(&applyConfigPath, "config", "", "Path to config.json file")
	applyCmd.Flags().StringVar(&applyRunID, "run", "", "Run id to apply (required)")
	applyCmd.Flags().StringSliceVarP(&applyItemIDs, "items", "i", nil, "Work item ids to apply (required)")
	applyCmd.Flags().StringSliceVarP(&applyFields, "fields", "f", []string{"title", "description", "acceptance"}, "Fields to write: title, description, acceptance")
	applyCmd.Flags().BoolVar(&applyTasks, "create-tasks", true, "Create deduplicated sub-tasks")
	applyCmd.Flags().BoolVar(&applyTestCases, "create-test-cases", true, "Create or update test artifacts")
	applyCmd.Flags().BoolVar(&applyStoryPoints, "set-story-points", false, "Write the generated story point estimate")
	applyCmd.Flags().BoolVarP(&applyVerbose, "verbose", "v", false, "Print detailed progress information")
	_ = applyCmd.MarkFlagRequired("run")
	_ = applyCmd.MarkFlagRequired("items")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(applyConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = applyVerbose
	}

	runID, err := uuid.Parse(applyRunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q", applyRunID)
	}

	store, coordinator, err := buildCoordinator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer store.Close()

	req := &types.ApplyRequest{
		SelectedItemIDs: applyItemIDs,
		SelectedFields:  applyFields,
		CreateTasks:     applyTasks,
		CreateTestCases: applyTestCases,
		SetStoryPoints:  applyStoryPoints,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	results, summary, err := coordinator.Apply(ctx, runID, req)
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintApplySummary(results, summary)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d items were rejected", summary.Failed, summary.Total)
	}
	return nil
}

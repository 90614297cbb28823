package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielmv/storysmith/internal/guardrails"
	"github.com/danielmv/storysmith/internal/observability"
	"github.com/danielmv/storysmith/internal/types"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Enhance tracker work items with generated content",
	Long: `Fetches the given work items, runs the enhancement pipeline on each, and stores
before/after snapshots in a new run. Results are not written back to the
tracker until 'apply' is invoked.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runEnhance,
}

var (
	enhanceConfigPath    string
	enhanceProjectID     string
	enhanceItemIDs       []string
	enhanceQuery         string
	enhanceTemplateFile  string
	enhanceGuardrailFile string
	enhanceContextDir    string
	enhanceVerbose       bool
)

func init() {
	enhanceCmd.Flags().StringVar(&enhanceConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	enhanceCmd.Flags().StringVarP(&enhanceProjectID, "project", "p", "", "Project identifier recorded on the run")
	enhanceCmd.Flags().StringSliceVarP(&enhanceItemIDs, "items", "i", nil, "Work item ids to enhance (comma-separated or repeated)")
	enhanceCmd.Flags().StringVarP(&enhanceQuery, "query", "q", "", "Backend query (WIQL or JQL) selecting the items to enhance")
	enhanceCmd.Flags().StringVarP(&enhanceTemplateFile, "template", "t", "", "Path to enhancement template text")
	enhanceCmd.Flags().StringVar(&enhanceGuardrailFile, "guardrails", "", "Path to guardrail profile text")
	enhanceCmd.Flags().StringVar(&enhanceContextDir, "context-dir", "", "Directory of context snippet files")
	enhanceCmd.Flags().BoolVarP(&enhanceVerbose, "verbose", "v", false, "Print detailed progress information")

	rootCmd.AddCommand(enhanceCmd)
}

func runEnhance(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(enhanceConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("template") {
		cfg.TemplateFile = enhanceTemplateFile
	}
	if cmd.Flags().Changed("guardrails") {
		cfg.GuardrailFile = enhanceGuardrailFile
	}
	if cmd.Flags().Changed("context-dir") {
		cfg.ContextDir = enhanceContextDir
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = enhanceVerbose
	}

	if len(enhanceItemIDs) == 0 && enhanceQuery == "" {
		return fmt.Errorf("work item ids (--items) or a selection query (--query) is required")
	}

	templateBody, err := readFileIfSet(cfg.TemplateFile)
	if err != nil {
		return err
	}
	guardrailText, err := readFileIfSet(cfg.GuardrailFile)
	if err != nil {
		return err
	}
	snippets, err := readContextDir(cfg.ContextDir)
	if err != nil {
		return err
	}

	if cfg.Verbose && guardrailText != "" {
		profile := guardrails.ParseSections(guardrailText)
		observability.NewPrinter(os.Stdout).PrintGuardrailProfile(&profile)
	}

	store, coordinator, err := buildCoordinator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer store.Close()

	itemIDs := enhanceItemIDs
	if enhanceQuery != "" {
		found, err := coordinator.ResolveItemQuery(ctx, enhanceQuery)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("query matched no work items")
		}
		fmt.Printf("Query matched %d work item(s)\n", len(found))
		itemIDs = append(itemIDs, found...)
	}

	req := &types.EnhanceRequest{
		ProjectID:       enhanceProjectID,
		ItemIDs:         itemIDs,
		TemplateBody:    templateBody,
		ContextSnippets: snippets,
		GuardrailText:   guardrailText,
	}
	if req.ProjectID == "" {
		req.ProjectID = "default"
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	result, err := coordinator.StartRun(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s created\n", result.RunID)
	if result.Async {
		fmt.Printf("Processing %d items in the background; poll with 'storysmith status --run %s'\n",
			len(req.ItemIDs), result.RunID)
		return nil
	}

	printer := observability.NewPrinter(os.Stdout)
	for _, item := range result.Items {
		fmt.Printf("\n%s: %s\n", item.SourceItemID, item.Status)
		if item.Error != "" {
			fmt.Printf("  error: %s\n", item.Error)
			continue
		}
		if cfg.Verbose && item.After != nil {
			printer.PrintEnhancedContent(item.After.Enhanced)
		}
	}
	return nil
}

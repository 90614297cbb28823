package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danielmv/storysmith/internal/config"
	"github.com/danielmv/storysmith/internal/db"
	"github.com/danielmv/storysmith/internal/generation"
	"github.com/danielmv/storysmith/internal/llm"
	"github.com/danielmv/storysmith/internal/runner"
	"github.com/danielmv/storysmith/internal/syncer"
	"github.com/danielmv/storysmith/internal/tracker"
	"github.com/danielmv/storysmith/internal/tracker/ado"
	"github.com/danielmv/storysmith/internal/tracker/jira"
)

// loadConfig reads the optional config file and fills credentials from the
// environment when the file and flags left them empty.
func loadConfig(path string) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.TrackerToken == "" {
		cfg.TrackerToken = os.Getenv("TRACKER_TOKEN")
	}
	if cfg.TestMgmtToken == "" {
		cfg.TestMgmtToken = os.Getenv("TEST_MGMT_TOKEN")
	}
	return cfg, nil
}

// buildTracker creates the backend client plus the sync engine settings that
// follow from the project's test case mapping.
func buildTracker(cfg *config.Config) (tracker.Client, syncer.TestCaseMode, tracker.TestManager, error) {
	if cfg.TrackerBaseURL == "" {
		return nil, "", nil, fmt.Errorf("tracker base URL is required (config 'tracker_base_url')")
	}
	if cfg.TrackerToken == "" {
		return nil, "", nil, fmt.Errorf("tracker token is required (config 'tracker_token' or TRACKER_TOKEN)")
	}

	switch cfg.TrackerBackend {
	case "", "ado":
		return ado.New(cfg.TrackerBaseURL, cfg.TrackerToken), syncer.TestCasesAsChildren, nil, nil
	case "jira":
		client := jira.New(jira.Config{
			BaseURL:           cfg.TrackerBaseURL,
			Token:             cfg.TrackerToken,
			ProjectKey:        cfg.ProjectKey,
			AcceptanceFieldID: cfg.AcceptanceFieldID,
			TestCaseFieldID:   cfg.TestCaseFieldID,
			TestCasesMapping:  jira.TestCasesMapping(cfg.TestCasesMapping),
			TestMgmtBaseURL:   cfg.TestMgmtBaseURL,
			TestMgmtToken:     cfg.TestMgmtToken,
		})

		var mode syncer.TestCaseMode
		switch jira.TestCasesMapping(cfg.TestCasesMapping) {
		case jira.MappingCustomField:
			mode = syncer.TestCasesInCustomField
		case jira.MappingZephyr:
			mode = syncer.TestCasesManaged
		default:
			mode = syncer.TestCasesInDescription
		}
		return client, mode, client.TestManager(), nil
	default:
		return nil, "", nil, fmt.Errorf("unknown tracker backend %q", cfg.TrackerBackend)
	}
}

// buildCoordinator wires the full stack: store, tracker, orchestrator, and
// sync engine.
func buildCoordinator(ctx context.Context, cfg *config.Config) (*db.DB, *runner.Coordinator, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("database URL is required (config 'database_url' or DATABASE_URL)")
	}
	if cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("API key is required (config 'api_key' or GEMINI_API_KEY)")
	}

	store, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	trackerClient, mode, testMgr, err := buildTracker(cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	llmClient, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	engine := syncer.New(trackerClient, mode, testMgr)
	engine.SetVerbose(cfg.Verbose)

	coordinator := runner.New(store, trackerClient, generation.New(llmClient), engine)
	coordinator.SetVerbose(cfg.Verbose)
	return store, coordinator, nil
}

// readFileIfSet returns the file's contents, or empty when no path was given.
func readFileIfSet(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// readContextDir loads every regular file in the directory as one context
// snippet, in directory order.
func readContextDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read context directory %s: %w", dir, err)
	}

	var snippets []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read context file %s: %w", entry.Name(), err)
		}
		snippets = append(snippets, string(data))
	}
	return snippets, nil
}

// Package config provides configuration loading and validation for the CLI
// and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Tracker connection
	TrackerBackend string `json:"tracker_backend,omitempty"` // "ado" or "jira"
	TrackerBaseURL string `json:"tracker_base_url,omitempty"`
	TrackerToken   string `json:"tracker_token,omitempty"`
	ProjectKey     string `json:"project_key,omitempty"` // Jira project key

	// Jira field mapping
	AcceptanceFieldID string `json:"acceptance_field_id,omitempty"` // Custom field for acceptance criteria
	TestCaseFieldID   string `json:"test_case_field_id,omitempty"`  // Custom field for test case text
	TestCasesMapping  string `json:"test_cases_mapping,omitempty"`  // "description", "custom_field", or "zephyr"

	// Test management subsystem (Zephyr-style), separate credential
	TestMgmtBaseURL string `json:"test_mgmt_base_url,omitempty"`
	TestMgmtToken   string `json:"test_mgmt_token,omitempty"`

	// Inputs
	TemplateFile  string `json:"template_file,omitempty"`  // Path to enhancement template text
	GuardrailFile string `json:"guardrail_file,omitempty"` // Path to guardrail profile text
	ContextDir    string `json:"context_dir,omitempty"`    // Directory of context snippet files

	// Behavior
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed progress information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Required fields are checked after flag merging, not here.
func (c *Config) Validate() error {
	switch c.TrackerBackend {
	case "", "ado", "jira":
	default:
		return fmt.Errorf("config error: 'tracker_backend' must be \"ado\" or \"jira\"")
	}

	switch c.TestCasesMapping {
	case "", "description", "custom_field", "zephyr":
	default:
		return fmt.Errorf("config error: 'test_cases_mapping' must be \"description\", \"custom_field\", or \"zephyr\"")
	}

	if c.TestCasesMapping == "zephyr" && c.TestMgmtBaseURL == "" {
		return fmt.Errorf("config error: 'test_mgmt_base_url' is required when 'test_cases_mapping' is \"zephyr\"")
	}
	if c.TestCasesMapping == "custom_field" && c.TestCaseFieldID == "" {
		return fmt.Errorf("config error: 'test_case_field_id' is required when 'test_cases_mapping' is \"custom_field\"")
	}

	if c.TemplateFile != "" {
		if _, err := os.Stat(c.TemplateFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: template file not found: %s", c.TemplateFile)
		}
	}
	if c.GuardrailFile != "" {
		if _, err := os.Stat(c.GuardrailFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: guardrail file not found: %s", c.GuardrailFile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty string fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.TrackerBackend == "" {
		result.TrackerBackend = defaults.TrackerBackend
	}
	if result.TrackerBaseURL == "" {
		result.TrackerBaseURL = defaults.TrackerBaseURL
	}
	if result.TrackerToken == "" {
		result.TrackerToken = defaults.TrackerToken
	}
	if result.ProjectKey == "" {
		result.ProjectKey = defaults.ProjectKey
	}
	if result.AcceptanceFieldID == "" {
		result.AcceptanceFieldID = defaults.AcceptanceFieldID
	}
	if result.TestCaseFieldID == "" {
		result.TestCaseFieldID = defaults.TestCaseFieldID
	}
	if result.TestCasesMapping == "" {
		result.TestCasesMapping = defaults.TestCasesMapping
	}
	if result.TestMgmtBaseURL == "" {
		result.TestMgmtBaseURL = defaults.TestMgmtBaseURL
	}
	if result.TestMgmtToken == "" {
		result.TestMgmtToken = defaults.TestMgmtToken
	}
	if result.TemplateFile == "" {
		result.TemplateFile = defaults.TemplateFile
	}
	if result.GuardrailFile == "" {
		result.GuardrailFile = defaults.GuardrailFile
	}
	if result.ContextDir == "" {
		result.ContextDir = defaults.ContextDir
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

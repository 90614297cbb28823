// Package main provides the entry point for the Storysmith work item
// enhancement CLI and API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "storysmith",
	Short: "Storysmith work item enhancement pipeline",
	Long:  "Storysmith enhances tracker work items with LLM-generated descriptions, acceptance criteria, tasks, and test cases, and syncs the results back to Azure DevOps or Jira.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

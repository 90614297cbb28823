package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielmv/storysmith/internal/server"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for creating enhancement runs, polling their status, and applying results to the tracker.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(serveConfigPath)
	if err != nil {
		return err
	}

	store, coordinator, err := buildCoordinator(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	srv := server.New(server.Config{Port: servePort}, store, coordinator)
	return srv.Start()
}

// Package server provides the HTTP REST API for the enhancement pipeline.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/danielmv/storysmith/internal/db"
	"github.com/danielmv/storysmith/internal/runner"
	"github.com/danielmv/storysmith/internal/types"
)

// RunStore is the read side of run persistence the handlers serve from.
// *db.DB satisfies it.
type RunStore interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error)
	ListRuns(ctx context.Context, filters db.RunFilters) ([]types.Run, error)
	ListRunItems(ctx context.Context, runID uuid.UUID) ([]types.RunItem, error)
	Close()
}

// Coordinator drives run creation and apply. *runner.Coordinator satisfies it.
type Coordinator interface {
	StartRun(ctx context.Context, req *types.EnhanceRequest) (*runner.StartResult, error)
	Apply(ctx context.Context, runID uuid.UUID, req *types.ApplyRequest) ([]types.ApplyResult, types.ApplySummary, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	db          RunStore
	coordinator Coordinator
}

// Config holds server configuration
type Config struct {
	Port int
}

// New creates a new server instance around an already-wired coordinator.
func New(cfg Config, database RunStore, coordinator Coordinator) *Server {
	s := &Server{
		db:          database,
		coordinator: coordinator,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/items", s.handleListRunItems)
	mux.HandleFunc("POST /runs/{id}/apply", s.handleApplyRun)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for synchronous small batches
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.db.Close()
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

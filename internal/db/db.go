// Package db provides PostgreSQL persistence for runs and run items.
package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielmv/storysmith/internal/types"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the runs and run_items tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			project_id TEXT NOT NULL,
			template_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			context_refs JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS run_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			source_item_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			before_json JSONB,
			after_json JSONB,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS run_items_run_id_idx ON run_items (run_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// CreateRun creates a new run record and returns its ID
func (db *DB) CreateRun(ctx context.Context, projectID, templateRef string, contextRefs []string) (uuid.UUID, error) {
	if contextRefs == nil {
		contextRefs = []string{}
	}
	refs, err := json.Marshal(contextRefs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal context refs: %w", err)
	}

	var id uuid.UUID
	err = db.pool.QueryRow(ctx,
		`INSERT INTO runs (project_id, template_ref, status, context_refs)
		 VALUES ($1, $2, 'pending', $3)
		 RETURNING id`,
		projectID, templateRef, refs,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// UpdateRunStatus sets a run's lifecycle state
func (db *DB) UpdateRunStatus(ctx context.Context, runID uuid.UUID, status types.RunStatus) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with the given terminal status
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status types.RunStatus) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = NOW() WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID; a missing run returns (nil, nil)
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	var run types.Run
	var refs []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, project_id, template_ref, status, context_refs, created_at, completed_at
		 FROM runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.ProjectID, &run.TemplateRef, &run.Status, &refs, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &run.ContextRefs); err != nil {
			return nil, fmt.Errorf("failed to decode context refs: %w", err)
		}
	}
	return &run, nil
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	ProjectID string
	Status    string
	Limit     int
}

// ListRuns retrieves runs with optional filters, newest first
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]types.Run, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT id, project_id, template_ref, status, context_refs, created_at, completed_at
		FROM runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argNum)
		args = append(args, filters.ProjectID)
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		var run types.Run
		var refs []byte
		if err := rows.Scan(&run.ID, &run.ProjectID, &run.TemplateRef, &run.Status, &refs, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if len(refs) > 0 {
			if err := json.Unmarshal(refs, &run.ContextRefs); err != nil {
				return nil, fmt.Errorf("failed to decode context refs: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// CreateRunItems inserts one pending item per source id. The request position
// is stored explicitly so listing preserves request order even when inserts
// land on the same timestamp.
func (db *DB) CreateRunItems(ctx context.Context, runID uuid.UUID, sourceItemIDs []string) error {
	for i, sourceID := range sourceItemIDs {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO run_items (run_id, source_item_id, position, status)
			 VALUES ($1, $2, $3, 'pending')`,
			runID, sourceID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to create run item %s: %w", sourceID, err)
		}
	}
	return nil
}

// ListRunItems retrieves a run's items in request order
func (db *DB) ListRunItems(ctx context.Context, runID uuid.UUID) ([]types.RunItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, source_item_id, before_json, after_json, status, error, created_at, updated_at
		 FROM run_items WHERE run_id = $1 ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run items: %w", err)
	}
	defer rows.Close()

	var items []types.RunItem
	for rows.Next() {
		item, err := scanRunItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// GetRunItem retrieves one item by id; a missing item returns (nil, nil)
func (db *DB) GetRunItem(ctx context.Context, itemID uuid.UUID) (*types.RunItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, source_item_id, before_json, after_json, status, error, created_at, updated_at
		 FROM run_items WHERE id = $1`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run item: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanRunItem(rows)
}

// UpdateRunItem persists an item's snapshots, status, and error text
func (db *DB) UpdateRunItem(ctx context.Context, item *types.RunItem) error {
	before, err := marshalSnapshot(item.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal before snapshot: %w", err)
	}
	after, err := marshalSnapshot(item.After)
	if err != nil {
		return fmt.Errorf("failed to marshal after snapshot: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE run_items
		 SET before_json = $1, after_json = $2, status = $3, error = $4, updated_at = NOW()
		 WHERE id = $5`,
		before, after, string(item.Status), item.Error, item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run item: %w", err)
	}
	return nil
}

func scanRunItem(rows pgx.Rows) (*types.RunItem, error) {
	var item types.RunItem
	var before, after []byte
	if err := rows.Scan(&item.ID, &item.RunID, &item.SourceItemID, &before, &after,
		&item.Status, &item.Error, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan run item: %w", err)
	}
	if len(before) > 0 {
		if err := json.Unmarshal(before, &item.Before); err != nil {
			return nil, fmt.Errorf("failed to decode before snapshot: %w", err)
		}
	}
	if len(after) > 0 {
		if err := json.Unmarshal(after, &item.After); err != nil {
			return nil, fmt.Errorf("failed to decode after snapshot: %w", err)
		}
	}
	return &item, nil
}

func marshalSnapshot(snapshot *types.WorkItemSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

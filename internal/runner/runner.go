// Package runner owns the lifecycle of a generation batch: it fans item ids
// into orchestrator calls, persists before/after snapshots, and drives the
// sync engine on demand. Small batches run synchronously; larger ones are
// handed to a supervised background worker and the caller polls run status.
package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/danielmv/storysmith/internal/generation"
	"github.com/danielmv/storysmith/internal/syncer"
	"github.com/danielmv/storysmith/internal/tracker"
	"github.com/danielmv/storysmith/internal/types"
)

// SyncThreshold is the largest batch processed synchronously. Above it the
// caller gets the run id back immediately and polls for completion.
const SyncThreshold = 5

// maxBackgroundRuns bounds concurrently processing background batches.
const maxBackgroundRuns = 4

// RunStore is the persistence surface the coordinator writes run lifecycle
// state through.
type RunStore interface {
	CreateRun(ctx context.Context, projectID, templateRef string, contextRefs []string) (uuid.UUID, error)
	CreateRunItems(ctx context.Context, runID uuid.UUID, sourceItemIDs []string) error
	UpdateRunStatus(ctx context.Context, runID uuid.UUID, status types.RunStatus) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status types.RunStatus) error
	ListRunItems(ctx context.Context, runID uuid.UUID) ([]types.RunItem, error)
	UpdateRunItem(ctx context.Context, item *types.RunItem) error
}

// Enhancer produces enhanced content for one work item snapshot.
type Enhancer interface {
	Enhance(ctx context.Context, item *types.WorkItemSnapshot, opts generation.Options) (*types.EnhancedContent, error)
}

// Coordinator drives runs end to end.
type Coordinator struct {
	store        RunStore
	tracker      tracker.Client
	orchestrator Enhancer
	sync         *syncer.Engine
	background   *semaphore.Weighted
	verbose      bool
}

// New creates a coordinator over the given collaborators.
func New(store RunStore, trackerClient tracker.Client, orchestrator Enhancer, sync *syncer.Engine) *Coordinator {
	return &Coordinator{
		store:        store,
		tracker:      trackerClient,
		orchestrator: orchestrator,
		sync:         sync,
		background:   semaphore.NewWeighted(maxBackgroundRuns),
	}
}

// SetVerbose enables progress output for CLI use.
func (c *Coordinator) SetVerbose(v bool) {
	c.verbose = v
}

// ItemSearcher is implemented by backends that can resolve a saved query
// (WIQL, JQL) into work item ids.
type ItemSearcher interface {
	SearchItemIDs(ctx context.Context, query string) ([]string, error)
}

// ResolveItemQuery expands a backend query into the matching work item ids.
func (c *Coordinator) ResolveItemQuery(ctx context.Context, query string) ([]string, error) {
	searcher, ok := c.tracker.(ItemSearcher)
	if !ok {
		return nil, fmt.Errorf("the configured tracker backend does not support query selection")
	}
	ids, err := searcher.SearchItemIDs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve item query: %w", err)
	}
	return ids, nil
}

// StartResult is what StartRun hands back: the run id always, and the
// processed items when the batch ran synchronously.
type StartResult struct {
	RunID uuid.UUID       `json:"run_id"`
	Async bool            `json:"async"`
	Items []types.RunItem `json:"items,omitempty"`
}

// StartRun creates the run record and either processes it inline (small
// batches) or dispatches it to a background worker. Failures before the item
// loop are the only way a run record ends up failed.
func (c *Coordinator) StartRun(ctx context.Context, req *types.EnhanceRequest) (*StartResult, error) {
	runID, err := c.store.CreateRun(ctx, req.ProjectID, req.TemplateRef, req.ContextSnippets)
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	if err := c.store.CreateRunItems(ctx, runID, req.ItemIDs); err != nil {
		_ = c.store.CompleteRun(ctx, runID, types.RunFailed)
		return nil, fmt.Errorf("failed to create run items: %w", err)
	}

	opts := generation.Options{
		TemplateBody:    req.TemplateBody,
		ContextSnippets: req.ContextSnippets,
		GuardrailText:   req.GuardrailText,
		Verbose:         c.verbose,
	}

	if len(req.ItemIDs) <= SyncThreshold {
		items, err := c.processRun(ctx, runID, opts)
		if err != nil {
			return nil, err
		}
		return &StartResult{RunID: runID, Items: items}, nil
	}

	// Fire-and-forget with observable state: the run record is the completion
	// signal, and a run that outlives its caller continues server-side.
	go func() {
		bgCtx := context.Background()
		if err := c.background.Acquire(bgCtx, 1); err != nil {
			_ = c.store.CompleteRun(bgCtx, runID, types.RunFailed)
			return
		}
		defer c.background.Release(1)
		if _, err := c.processRun(bgCtx, runID, opts); err != nil && c.verbose {
			fmt.Printf("[run %s] background processing failed: %v\n", runID, err)
		}
	}()
	return &StartResult{RunID: runID, Async: true}, nil
}

// processRun walks the run's items sequentially. A run always reaches
// completed once every item has been attempted; per-item errors reject that
// item only.
func (c *Coordinator) processRun(ctx context.Context, runID uuid.UUID, opts generation.Options) ([]types.RunItem, error) {
	if err := c.store.UpdateRunStatus(ctx, runID, types.RunRunning); err != nil {
		_ = c.store.CompleteRun(ctx, runID, types.RunFailed)
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}

	items, err := c.store.ListRunItems(ctx, runID)
	if err != nil {
		_ = c.store.CompleteRun(ctx, runID, types.RunFailed)
		return nil, fmt.Errorf("failed to load run items: %w", err)
	}

	for i := range items {
		c.processItem(ctx, &items[i], opts)
		if err := c.store.UpdateRunItem(ctx, &items[i]); err != nil && c.verbose {
			fmt.Printf("[run %s] failed to persist item %s: %v\n", runID, items[i].SourceItemID, err)
		}
	}

	if err := c.store.CompleteRun(ctx, runID, types.RunCompleted); err != nil {
		return nil, err
	}
	return items, nil
}

// processItem fetches the before snapshot, runs the enhancement, and records
// the outcome on the item in place.
func (c *Coordinator) processItem(ctx context.Context, item *types.RunItem, opts generation.Options) {
	before, err := c.tracker.FetchItem(ctx, item.SourceItemID)
	if err != nil {
		item.Status = types.ItemRejected
		item.Error = err.Error()
		return
	}
	item.Before = before

	if c.verbose {
		fmt.Printf("[item %s] enhancing %q\n", item.SourceItemID, before.Title)
	}

	enhanced, err := c.orchestrator.Enhance(ctx, before, opts)
	if err != nil {
		item.Status = types.ItemRejected
		item.Error = err.Error()
		return
	}

	after := *before
	after.Enhanced = enhanced
	item.After = &after
	item.Status = types.ItemGenerated
	item.Error = ""
}

// Apply writes selected generated items back to the tracker and moves their
// lifecycle state to applied or rejected.
func (c *Coordinator) Apply(ctx context.Context, runID uuid.UUID, req *types.ApplyRequest) ([]types.ApplyResult, types.ApplySummary, error) {
	items, err := c.store.ListRunItems(ctx, runID)
	if err != nil {
		return nil, types.ApplySummary{}, fmt.Errorf("failed to load run items: %w", err)
	}

	bySource := make(map[string]*types.RunItem, len(items))
	for i := range items {
		bySource[items[i].SourceItemID] = &items[i]
	}

	var results []types.ApplyResult
	for _, sourceID := range req.SelectedItemIDs {
		item, ok := bySource[sourceID]
		if !ok {
			results = append(results, types.ApplyResult{
				ItemID: sourceID,
				Error:  "item is not part of this run",
			})
			continue
		}

		var override *types.Override
		if o, found := req.Overrides[sourceID]; found {
			override = &o
		}

		result := c.sync.ApplyItem(ctx, item, override, req)
		if result.Success {
			item.Status = types.ItemApplied
			item.Error = ""
		} else {
			item.Status = types.ItemRejected
			item.Error = result.Error
		}
		if err := c.store.UpdateRunItem(ctx, item); err != nil {
			result.Warnings = append(result.Warnings, "failed to persist item status: "+err.Error())
		}
		results = append(results, result)
	}
	return results, types.Summarize(results), nil
}

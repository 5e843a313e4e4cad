// Package orchestrate schedules the classification, assignment, and
// merge passes and reports run summaries. A single orchestrator
// instance is assumed; two concurrent runs could race on the same
// item and family rows.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storylinehq/storyline/internal/assign"
	"github.com/storylinehq/storyline/internal/merge"
	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
	"github.com/storylinehq/storyline/internal/theater"
	"github.com/storylinehq/storyline/internal/vocab"
	"github.com/storylinehq/storyline/internal/worker"
)

// Orchestrator wires the engine components into batch passes.
type Orchestrator struct {
	store    store.Store
	matcher  *vocab.Matcher
	theaters *theater.Engine
	assigner *assign.Assigner
	seeder   *assign.Seeder
	merger   *merge.Engine
	workers  int
	log      *zap.Logger
}

// New creates an orchestrator over explicitly constructed components.
func New(st store.Store, matcher *vocab.Matcher, theaters *theater.Engine,
	assigner *assign.Assigner, seeder *assign.Seeder, merger *merge.Engine,
	workers int, log *zap.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    st,
		matcher:  matcher,
		theaters: theaters,
		assigner: assigner,
		seeder:   seeder,
		merger:   merger,
		workers:  workers,
		log:      log,
	}
}

// IngestItem stores a raw headline and runs the matcher, enrichment,
// and theater phases over it. Item ids are write-once in the store, so
// re-ingesting an existing id fails at the save and the stored verdict
// is never overwritten.
func (o *Orchestrator) IngestItem(ctx context.Context, id, text string) (*model.Item, error) {
	if id == "" {
		id = uuid.NewString()
	}

	item := &model.Item{
		ID:     id,
		Text:   text,
		Status: model.ItemStatusPending,
	}
	if err := o.store.SaveItem(ctx, item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}

	result := o.matcher.Classify(text)

	var theaterName string
	if result.IsStrategic {
		theaterName, _ = o.theaters.Infer(result.Entities, result.EventType)
	}

	ext := model.Extraction{
		Actors:            result.Entities,
		IsStrategic:       result.IsStrategic,
		ExtractionVersion: model.ExtractionVersion,
	}
	if _, err := o.store.SetClassification(ctx, item.ID, ext, result.EventType, theaterName); err != nil {
		return nil, fmt.Errorf("recording classification: %w", err)
	}

	return o.store.GetItem(ctx, item.ID)
}

// assignJob processes one item inside the assignment pass.
type assignJob struct {
	orch   *Orchestrator
	item   model.Item
	efs    []model.EventFamily
	dryRun bool
}

// assignOutcome is the per-item result of an assignment attempt.
type assignOutcome struct {
	itemID   string
	efID     string // Empty when no candidate validated
	seedable bool   // Item should go to the seeding phase
	err      error
}

func (r *assignOutcome) GetError() error { return r.err }

func (j *assignJob) Execute(ctx context.Context) worker.Result {
	efID, err := j.orch.assigner.TryAssign(ctx, &j.item, j.efs, j.dryRun)
	if err != nil {
		return &assignOutcome{itemID: j.item.ID, err: err}
	}
	return &assignOutcome{
		itemID:   j.item.ID,
		efID:     efID,
		seedable: efID == "",
	}
}

// RunAssignmentPass attaches up to maxItems unassigned strategic
// items to event families. Validation runs on the worker pool (the
// classifier gate bounds external calls); seeding runs sequentially
// afterwards so duplicate ef_keys cannot race.
//
// Per-item failures are recorded and processing continues; only store
// unavailability aborts the pass.
func (o *Orchestrator) RunAssignmentPass(ctx context.Context, maxItems int, dryRun bool) model.PassResult {
	started := time.Now()
	result := model.PassResult{Pass: "assignment"}

	count, err := o.store.CountUnassigned(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("counting unassigned items: %v", err))
		result.Duration = time.Since(started)
		return result
	}
	if count == 0 {
		o.log.Info("assignment pass skipped", zap.Int("unassigned", 0))
		result.Skipped = true
		result.Duration = time.Since(started)
		return result
	}

	items, err := o.store.ListUnassigned(ctx, maxItems)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing unassigned items: %v", err))
		result.Duration = time.Since(started)
		return result
	}
	efs, err := o.store.ListActiveEFs(ctx, 0)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing active families: %v", err))
		result.Duration = time.Since(started)
		return result
	}

	pool := worker.NewPool(ctx, o.workers)
	pool.Start()
	for _, item := range items {
		pool.Submit(&assignJob{orch: o, item: item, efs: efs, dryRun: dryRun})
	}

	var seedable []string
	for _, r := range pool.Wait() {
		outcome := r.(*assignOutcome)
		result.Processed++
		switch {
		case outcome.err != nil:
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("item %s: %v", outcome.itemID, outcome.err))
		case outcome.seedable:
			seedable = append(seedable, outcome.itemID)
		default:
			result.Succeeded++
		}
	}

	// Seeding phase: sequential, so two items cannot seed the same
	// ef_key concurrently.
	for _, itemID := range seedable {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("pass cancelled: %v", ctx.Err()))
			break
		}
		item, err := o.store.GetItem(ctx, itemID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("item %s: %v", itemID, err))
			continue
		}
		if item.Assigned() {
			// A concurrent validation in this pass got there first
			result.Succeeded++
			continue
		}
		if _, err := o.seeder.Seed(ctx, item, dryRun); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("seeding for item %s: %v", itemID, err))
			continue
		}
		result.Succeeded++
	}

	result.Duration = time.Since(started)
	o.log.Info("assignment pass finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Bool("dry_run", dryRun),
		zap.Duration("duration", result.Duration))
	return result
}

// RunMergePass consolidates fragmented event families.
func (o *Orchestrator) RunMergePass(ctx context.Context, maxEFs int, dryRun bool) model.PassResult {
	started := time.Now()
	result := model.PassResult{Pass: "merge"}

	active, _, err := o.store.CountEFs(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("counting families: %v", err))
		result.Duration = time.Since(started)
		return result
	}
	if active < 2 {
		o.log.Info("merge pass skipped", zap.Int("active_efs", active))
		result.Skipped = true
		result.Duration = time.Since(started)
		return result
	}

	result.Processed = active
	merged, err := o.merger.Reconcile(ctx, maxEFs, dryRun)
	result.Succeeded = merged
	if err != nil {
		result.Failed = 1
		result.Errors = append(result.Errors, fmt.Sprintf("reconcile: %v", err))
	}

	result.Duration = time.Since(started)
	o.log.Info("merge pass finished",
		zap.Int("active_examined", active),
		zap.Int("merged", merged),
		zap.Bool("dry_run", dryRun),
		zap.Duration("duration", result.Duration))
	return result
}

// RunDailyCycle drives the pass state machine:
// Idle -> CountUnassigned -> [if >0] assignment pass ->
// CountActiveEFs -> [if >=2] merge pass -> Summarize -> Idle.
// A skipped pass is logged, not an error. Pass failures are recorded
// in the summary and the cycle continues to the next pass.
func (o *Orchestrator) RunDailyCycle(ctx context.Context, maxItems, maxEFs int, dryRun bool) model.CycleSummary {
	started := time.Now()
	summary := model.CycleSummary{DryRun: dryRun}

	// 1. Assignment pass (counts its own precondition and skips at 0)
	pass := o.RunAssignmentPass(ctx, maxItems, dryRun)
	summary.PassResults = append(summary.PassResults, pass)
	summary.Errors = append(summary.Errors, pass.Errors...)

	// 2. Merge pass (skips below 2 active families)
	pass = o.RunMergePass(ctx, maxEFs, dryRun)
	summary.PassResults = append(summary.PassResults, pass)
	summary.Errors = append(summary.Errors, pass.Errors...)

	// 3. Summarize
	summary.TotalDuration = time.Since(started)
	summary.Success = len(summary.Errors) == 0
	o.log.Info("daily cycle finished",
		zap.Bool("success", summary.Success),
		zap.Int("passes", len(summary.PassResults)),
		zap.Bool("dry_run", dryRun),
		zap.Duration("duration", summary.TotalDuration))

	return summary
}

// Status returns the operator-facing snapshot.
func (o *Orchestrator) Status(ctx context.Context) (*model.SystemStatus, error) {
	active, merged, err := o.store.CountEFs(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting families: %w", err)
	}
	unassigned, err := o.store.CountUnassigned(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting unassigned items: %w", err)
	}
	recent, err := o.store.RecentEFs(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("listing recent families: %w", err)
	}

	return &model.SystemStatus{
		ActiveEFs:       active,
		MergedEFs:       merged,
		UnassignedItems: unassigned,
		RecentEFs:       recent,
	}, nil
}

// Repair is the operator-invoked fragmentation remediation. It shares
// the merge engine with the scheduled pass and reports before/after
// counts; re-running after a successful repair is a no-op.
func (o *Orchestrator) Repair(ctx context.Context) (*model.RepairResult, error) {
	before, _, err := o.store.CountEFs(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting families: %w", err)
	}

	result := &model.RepairResult{ActiveBefore: before}

	merged, err := o.merger.Reconcile(ctx, 0, false)
	result.Merged = merged
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	after, _, err := o.store.CountEFs(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting families: %w", err)
	}
	result.ActiveAfter = after

	o.log.Info("fragmentation repair finished",
		zap.Int("active_before", result.ActiveBefore),
		zap.Int("active_after", result.ActiveAfter),
		zap.Int("merged", result.Merged))
	return result, nil
}

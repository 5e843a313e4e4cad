// Package merge detects duplicate/fragmented event families and
// consolidates them. The scheduled merge pass and the operator
// "repair" command share this engine.
package merge

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
)

// Engine plans and applies event-family consolidation.
type Engine struct {
	store     store.Store
	threshold int // Group size at which a (theater, event type) group counts as fragmented
	log       *zap.Logger
}

// NewEngine creates a merge engine. threshold below 2 is clamped to 2.
func NewEngine(st store.Store, threshold int, log *zap.Logger) *Engine {
	if threshold < 2 {
		threshold = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: st, threshold: threshold, log: log}
}

// Group is one fragmented (theater, event type) group with its
// elected master.
type Group struct {
	Theater    string
	EventType  string
	Master     model.EventFamily
	Duplicates []model.EventFamily
}

// Plan describes the consolidations a reconcile run would apply.
type Plan struct {
	Groups []Group
}

// Merges returns the total number of families that would be merged away.
func (p *Plan) Merges() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Duplicates)
	}
	return n
}

// BuildPlan groups active families by (theater, event type) and marks
// every group reaching the fragmentation threshold. Within a group
// the family with the most source items is the master; ties break by
// earliest creation time.
func (e *Engine) BuildPlan(efs []model.EventFamily) Plan {
	type key struct{ theater, eventType string }

	groups := make(map[key][]model.EventFamily)
	var order []key
	for _, ef := range efs {
		k := key{ef.Theater, ef.EventType}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ef)
	}

	var plan Plan
	for _, k := range order {
		members := groups[k]
		if len(members) < e.threshold {
			continue
		}

		sort.SliceStable(members, func(i, j int) bool {
			if members[i].ItemCount() != members[j].ItemCount() {
				return members[i].ItemCount() > members[j].ItemCount()
			}
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		})

		plan.Groups = append(plan.Groups, Group{
			Theater:    k.theater,
			EventType:  k.eventType,
			Master:     members[0],
			Duplicates: members[1:],
		})
	}

	return plan
}

// Apply runs every group consolidation transactionally. With dryRun
// nothing is written. Returns the number of families merged away.
func (e *Engine) Apply(ctx context.Context, plan Plan, dryRun bool) (int, error) {
	merged := 0

	for _, g := range plan.Groups {
		rationale := fmt.Sprintf("fragmented group (%s, %s): %d families consolidated into %q",
			g.Theater, g.EventType, len(g.Duplicates)+1, g.Master.Title)

		dupIDs := make([]string, len(g.Duplicates))
		for i, d := range g.Duplicates {
			dupIDs[i] = d.ID
		}

		if dryRun {
			e.log.Info("would merge (dry run)",
				zap.String("master", g.Master.ID),
				zap.Strings("duplicates", dupIDs),
				zap.String("theater", g.Theater),
				zap.String("event_type", g.EventType))
			merged += len(dupIDs)
			continue
		}

		if err := e.store.ApplyMerge(ctx, g.Master.ID, dupIDs, rationale); err != nil {
			return merged, fmt.Errorf("merging into %s: %w", g.Master.ID, err)
		}

		e.log.Info("families merged",
			zap.String("master", g.Master.ID),
			zap.Strings("duplicates", dupIDs),
			zap.String("theater", g.Theater),
			zap.String("event_type", g.EventType))
		merged += len(dupIDs)
	}

	return merged, nil
}

// Reconcile lists active families, builds a plan, and applies it.
// Idempotent: a second run over a consolidated store is a no-op.
func (e *Engine) Reconcile(ctx context.Context, maxEFs int, dryRun bool) (int, error) {
	efs, err := e.store.ListActiveEFs(ctx, maxEFs)
	if err != nil {
		return 0, fmt.Errorf("listing active families: %w", err)
	}

	plan := e.BuildPlan(efs)
	if len(plan.Groups) == 0 {
		e.log.Debug("no fragmentation detected", zap.Int("active_efs", len(efs)))
		return 0, nil
	}

	return e.Apply(ctx, plan, dryRun)
}

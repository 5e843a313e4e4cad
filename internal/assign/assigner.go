// Package assign attaches unassigned strategic items to event
// families: structural prefilter, ranking, thematic validation via
// the external classifier, and a guarded commit.
package assign

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/storylinehq/storyline/internal/classify"
	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
)

// minActorOverlap is the share of a family's key actors that must
// appear in the item's entities for an actor-overlap candidacy.
const minActorOverlap = 0.5

// Assigner decides event-family membership for items.
type Assigner struct {
	store         store.Store
	classifier    classify.Classifier // nil: validation fails closed
	gate          *classify.Gate
	maxCandidates int
	log           *zap.Logger
}

// NewAssigner creates an assigner. classifier may be nil, in which
// case no candidate ever validates and items seed new families.
func NewAssigner(st store.Store, classifier classify.Classifier, gate *classify.Gate, maxCandidates int, log *zap.Logger) *Assigner {
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assigner{
		store:         st,
		classifier:    classifier,
		gate:          gate,
		maxCandidates: maxCandidates,
		log:           log,
	}
}

// candidate is one prefiltered family with its ranking signals.
type candidate struct {
	ef           model.EventFamily
	theaterMatch bool
	overlap      float64
}

// Candidates applies the structural prefilter: the family's event
// type must equal the item's, and either the theaters match or at
// least half the family's key actors appear in the item's entities.
// The result is ranked: theater matches first, then by overlap.
func (a *Assigner) Candidates(item *model.Item, efs []model.EventFamily) []candidate {
	entities := make(map[string]struct{}, len(item.Entities))
	for _, e := range item.Entities {
		entities[strings.ToLower(e)] = struct{}{}
	}

	var candidates []candidate
	for _, ef := range efs {
		if ef.EventType != item.EventType {
			continue
		}

		c := candidate{ef: ef, theaterMatch: ef.Theater == item.Theater}
		if len(ef.KeyActors) > 0 {
			matched := 0
			for _, actor := range ef.KeyActors {
				if _, ok := entities[strings.ToLower(actor)]; ok {
					matched++
				}
			}
			c.overlap = float64(matched) / float64(len(ef.KeyActors))
		}

		if c.theaterMatch || c.overlap >= minActorOverlap {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].theaterMatch != candidates[j].theaterMatch {
			return candidates[i].theaterMatch
		}
		return candidates[i].overlap > candidates[j].overlap
	})

	return candidates
}

// TryAssign finds and validates a family for the item. Up to
// maxCandidates ranked candidates are checked against the external
// classifier; the first YES wins and the assignment is committed
// through the store's compare-and-set (skipped when dryRun).
// Classifier errors count as NO for that candidate and are logged.
//
// Returns the assigned family id, or "" when no candidate validated.
func (a *Assigner) TryAssign(ctx context.Context, item *model.Item, efs []model.EventFamily, dryRun bool) (string, error) {
	candidates := a.Candidates(item, efs)
	if len(candidates) > a.maxCandidates {
		candidates = candidates[:a.maxCandidates]
	}

	for _, c := range candidates {
		yes, err := a.validate(ctx, item, &c.ef)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Fail closed: an unanswered question is a NO
			a.log.Warn("thematic validation failed",
				zap.String("item", item.ID),
				zap.String("ef", c.ef.ID),
				zap.Error(err))
			continue
		}
		if !yes {
			continue
		}

		if dryRun {
			a.log.Info("would assign item (dry run)",
				zap.String("item", item.ID),
				zap.String("ef", c.ef.ID))
			return c.ef.ID, nil
		}

		ok, err := a.store.AssignItemToEF(ctx, item.ID, c.ef.ID)
		if err != nil {
			return "", err
		}
		if !ok {
			// Lost the race to a prior pass; nothing to do
			a.log.Debug("assignment guard failed",
				zap.String("item", item.ID),
				zap.String("ef", c.ef.ID))
			return "", nil
		}

		a.log.Info("item assigned",
			zap.String("item", item.ID),
			zap.String("ef", c.ef.ID),
			zap.Bool("theater_match", c.theaterMatch))
		return c.ef.ID, nil
	}

	return "", nil
}

// validate asks the external classifier whether the item fits the
// family's strategic purpose.
func (a *Assigner) validate(ctx context.Context, item *model.Item, ef *model.EventFamily) (bool, error) {
	if a.classifier == nil {
		return false, nil
	}

	anchor := ef.StrategicPurpose
	if anchor == "" {
		anchor = ef.Title
	}

	if a.gate != nil {
		return a.gate.Ask(ctx, a.classifier, anchor, item.Text)
	}
	return a.classifier.Ask(ctx, anchor, item.Text)
}

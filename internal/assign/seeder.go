package assign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
)

// maxKeyActors caps how many entities become a new family's key actors.
const maxKeyActors = 5

// maxTitleLen truncates headline-derived family titles.
const maxTitleLen = 120

// Seeder creates new event families for items no existing family
// accepted. Duplicate seeding is caught by the derived ef_key: if an
// active family already holds the key, the item attaches to it.
type Seeder struct {
	store store.Store
	log   *zap.Logger
}

// NewSeeder creates a seeder.
func NewSeeder(st store.Store, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{store: st, log: log}
}

// Seed creates (or reuses) a family for the item and assigns the item
// to it, returning the family id. Creation, promotion, and assignment
// run as one store-side transaction, so a failure can never strand a
// family without its item. With dryRun, reports the id that would be
// used without writing. Returns "" when the item was already assigned
// by the time the seed committed.
func (s *Seeder) Seed(ctx context.Context, item *model.Item, dryRun bool) (string, error) {
	efKey := DeriveEFKey(item.Theater, item.EventType, item.Entities)

	existing, err := s.store.FindActiveByKey(ctx, efKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("looking up ef_key: %w", err)
	}
	if existing != nil {
		if dryRun {
			return existing.ID, nil
		}
		ok, err := s.store.AssignItemToEF(ctx, item.ID, existing.ID)
		if err != nil {
			return "", err
		}
		if !ok {
			s.log.Debug("attach refused, item already assigned",
				zap.String("item", item.ID),
				zap.String("ef", existing.ID))
			return existing.ID, nil
		}
		s.log.Info("duplicate seed avoided",
			zap.String("item", item.ID),
			zap.String("ef", existing.ID),
			zap.String("ef_key", efKey))
		return existing.ID, nil
	}

	ef := &model.EventFamily{
		ID:               uuid.NewString(),
		Title:            truncate(item.Text, maxTitleLen),
		Theater:          item.Theater,
		EventType:        item.EventType,
		KeyActors:        keyActors(item.Entities),
		Status:           model.EFStatusSeed,
		StrategicPurpose: purposeFor(item),
	}

	if dryRun {
		s.log.Info("would seed event family (dry run)",
			zap.String("item", item.ID),
			zap.String("ef_key", efKey))
		return ef.ID, nil
	}

	ok, err := s.store.SeedEF(ctx, ef, efKey, item.ID)
	if err != nil {
		return "", fmt.Errorf("seeding event family: %w", err)
	}
	if !ok {
		s.log.Debug("seed refused, item already assigned",
			zap.String("item", item.ID))
		return "", nil
	}

	s.log.Info("event family seeded",
		zap.String("item", item.ID),
		zap.String("ef", ef.ID),
		zap.String("theater", ef.Theater),
		zap.String("event_type", ef.EventType))
	return ef.ID, nil
}

// purposeFor builds the strategic-purpose anchor text that later
// thematic validations run against.
func purposeFor(item *model.Item) string {
	actors := keyActors(item.Entities)
	if len(actors) == 0 {
		return fmt.Sprintf("Tracking %s developments in %s.", item.EventType, item.Theater)
	}
	return fmt.Sprintf("Tracking %s developments in %s involving %s.",
		item.EventType, item.Theater, strings.Join(actors, ", "))
}

func keyActors(entities []string) []string {
	if len(entities) <= maxKeyActors {
		return append([]string(nil), entities...)
	}
	return append([]string(nil), entities[:maxKeyActors]...)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

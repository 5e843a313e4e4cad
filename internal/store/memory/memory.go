// Package memory implements the item/event-family store in process
// memory. Used by the engine tests and dry-run wiring; semantics
// mirror the sqlite store, including the guarded primitives.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
)

// Store is the in-memory item/EF store.
type Store struct {
	mu    sync.RWMutex
	items map[string]*model.Item
	efs   map[string]*model.EventFamily
}

var _ store.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]*model.Item),
		efs:   make(map[string]*model.EventFamily),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// SaveItem inserts a new item. Ids are write-once, as with the
// sqlite primary key: a duplicate id is rejected, never overwritten.
func (s *Store) SaveItem(_ context.Context, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("saving item: id %s already exists", item.ID)
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = model.ItemStatusPending
	}

	copied := *item
	copied.Entities = append([]string(nil), item.Entities...)
	s.items[item.ID] = &copied
	return nil
}

// GetItem retrieves an item by id.
func (s *Store) GetItem(_ context.Context, id string) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *item
	copied.Entities = append([]string(nil), item.Entities...)
	return &copied, nil
}

// SetClassification records the matcher verdict if the item has not
// been classified yet.
func (s *Store) SetClassification(_ context.Context, itemID string, ext model.Extraction, eventType, theater string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return false, store.ErrNotFound
	}
	if item.Entities != nil {
		return false, nil
	}

	item.Entities = append([]string{}, ext.Actors...)
	item.IsStrategic = ext.IsStrategic
	item.EventType = eventType
	item.Theater = theater
	if ext.IsStrategic {
		item.Status = model.ItemStatusClassified
	} else {
		item.Status = model.ItemStatusDiscarded
	}
	return true, nil
}

// ListUnassigned returns classified strategic items without an event
// family, newest first.
func (s *Store) ListUnassigned(_ context.Context, limit int) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []model.Item
	for _, item := range s.items {
		if item.EventFamilyID == "" && item.IsStrategic && item.Entities != nil {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// CountUnassigned counts classified strategic items without an event family.
func (s *Store) CountUnassigned(ctx context.Context) (int, error) {
	items, err := s.ListUnassigned(ctx, 0)
	return len(items), err
}

// CreateEF inserts a new event family.
func (s *Store) CreateEF(_ context.Context, ef *model.EventFamily) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if ef.CreatedAt.IsZero() {
		ef.CreatedAt = now
	}
	ef.UpdatedAt = now
	if ef.Status == "" {
		ef.Status = model.EFStatusSeed
	}

	s.efs[ef.ID] = copyEF(ef)
	return nil
}

// GetEF retrieves an event family by id.
func (s *Store) GetEF(_ context.Context, id string) (*model.EventFamily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ef, ok := s.efs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyEF(ef), nil
}

// FindActiveByKey returns the active family holding efKey.
func (s *Store) FindActiveByKey(_ context.Context, efKey string) (*model.EventFamily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ef := range s.efs {
		if ef.Status == model.EFStatusActive && ef.EFKey == efKey {
			return copyEF(ef), nil
		}
	}
	return nil, store.ErrNotFound
}

// ListActiveEFs returns active families, oldest first.
func (s *Store) ListActiveEFs(_ context.Context, limit int) ([]model.EventFamily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var efs []model.EventFamily
	for _, ef := range s.efs {
		if ef.Status == model.EFStatusActive {
			efs = append(efs, *copyEF(ef))
		}
	}
	sort.Slice(efs, func(i, j int) bool {
		if !efs[i].CreatedAt.Equal(efs[j].CreatedAt) {
			return efs[i].CreatedAt.Before(efs[j].CreatedAt)
		}
		return efs[i].ID < efs[j].ID
	})
	if limit > 0 && len(efs) > limit {
		efs = efs[:limit]
	}
	return efs, nil
}

// CountEFs returns the number of active and merged families.
func (s *Store) CountEFs(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active, merged int
	for _, ef := range s.efs {
		switch ef.Status {
		case model.EFStatusActive:
			active++
		case model.EFStatusMerged:
			merged++
		}
	}
	return active, merged, nil
}

// RecentEFs returns the most recently updated families.
func (s *Store) RecentEFs(_ context.Context, limit int) ([]model.EventFamily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	var efs []model.EventFamily
	for _, ef := range s.efs {
		efs = append(efs, *copyEF(ef))
	}
	sort.Slice(efs, func(i, j int) bool {
		if !efs[i].UpdatedAt.Equal(efs[j].UpdatedAt) {
			return efs[i].UpdatedAt.After(efs[j].UpdatedAt)
		}
		return efs[i].ID < efs[j].ID
	})
	if len(efs) > limit {
		efs = efs[:limit]
	}
	return efs, nil
}

// PromoteEF moves a seed family to active with the given efKey.
func (s *Store) PromoteEF(_ context.Context, id, efKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ef, ok := s.efs[id]
	if !ok || ef.Status != model.EFStatusSeed {
		return store.ErrNotFound
	}
	ef.Status = model.EFStatusActive
	ef.EFKey = efKey
	ef.UpdatedAt = time.Now().UTC()
	return nil
}

// SeedEF creates the family as active with efKey and assigns the item,
// atomically under the store lock. A refused item guard writes nothing.
func (s *Store) SeedEF(_ context.Context, ef *model.EventFamily, efKey, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return false, nil
	}
	if item.EventFamilyID != "" || !item.IsStrategic {
		return false, nil
	}
	for _, existing := range s.efs {
		if existing.Status == model.EFStatusActive && existing.EFKey == efKey {
			return false, fmt.Errorf("seeding family: ef_key %s already active", efKey)
		}
	}

	now := time.Now().UTC()
	if ef.CreatedAt.IsZero() {
		ef.CreatedAt = now
	}
	ef.UpdatedAt = now
	ef.Status = model.EFStatusActive
	ef.EFKey = efKey
	ef.SourceItemIDs = []string{itemID}
	s.efs[ef.ID] = copyEF(ef)

	item.EventFamilyID = ef.ID
	item.Status = model.ItemStatusAssigned
	return true, nil
}

// AssignItemToEF compare-and-sets the item's family and appends the
// item to the family's source items, atomically under the store lock.
func (s *Store) AssignItemToEF(_ context.Context, itemID, efID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return false, store.ErrNotFound
	}
	if item.EventFamilyID != "" || !item.IsStrategic {
		return false, nil
	}
	ef, ok := s.efs[efID]
	if !ok {
		return false, store.ErrNotFound
	}

	item.EventFamilyID = efID
	item.Status = model.ItemStatusAssigned

	for _, id := range ef.SourceItemIDs {
		if id == itemID {
			return true, nil
		}
	}
	ef.SourceItemIDs = append(ef.SourceItemIDs, itemID)
	ef.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ApplyMerge consolidates duplicates into master under the store lock.
func (s *Store) ApplyMerge(_ context.Context, masterID string, dupIDs []string, rationale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	master, ok := s.efs[masterID]
	if !ok {
		return store.ErrNotFound
	}

	now := time.Now().UTC()

	for _, dupID := range dupIDs {
		if dupID == masterID {
			continue
		}
		dup, ok := s.efs[dupID]
		if !ok {
			continue
		}

		for _, item := range s.items {
			if item.EventFamilyID == dupID {
				item.EventFamilyID = masterID
			}
		}

		dup.Status = model.EFStatusMerged
		dup.MergedInto = masterID
		dup.MergeRationale = rationale
		dup.UpdatedAt = now

		for _, other := range s.efs {
			if other.MergedInto == dupID {
				other.MergedInto = masterID
				other.UpdatedAt = now
			}
		}
	}

	// Recompute the master's source items as a set
	var sources []model.Item
	for _, item := range s.items {
		if item.EventFamilyID == masterID {
			sources = append(sources, *item)
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		if !sources[i].CreatedAt.Equal(sources[j].CreatedAt) {
			return sources[i].CreatedAt.Before(sources[j].CreatedAt)
		}
		return sources[i].ID < sources[j].ID
	})
	master.SourceItemIDs = master.SourceItemIDs[:0]
	for _, item := range sources {
		master.SourceItemIDs = append(master.SourceItemIDs, item.ID)
	}
	master.UpdatedAt = now

	return nil
}

func copyEF(ef *model.EventFamily) *model.EventFamily {
	copied := *ef
	copied.KeyActors = append([]string(nil), ef.KeyActors...)
	copied.SourceItemIDs = append([]string(nil), ef.SourceItemIDs...)
	return &copied
}

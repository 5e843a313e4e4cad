package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, s)

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func strategicItem(id string) *model.Item {
	return &model.Item{
		ID:     id,
		Text:   "Russia strikes Kharkiv power grid",
		Status: model.ItemStatusPending,
	}
}

func classify(t *testing.T, s *Store, itemID string) {
	t.Helper()
	ok, err := s.SetClassification(context.Background(), itemID, model.Extraction{
		Actors:            []string{"Russia", "Ukraine"},
		IsStrategic:       true,
		ExtractionVersion: model.ExtractionVersion,
	}, "Military Conflict", "Russia-Ukraine Conflict")
	require.NoError(t, err)
	require.True(t, ok)
}

func activeFamily(id string) *model.EventFamily {
	return &model.EventFamily{
		ID:               id,
		Title:            "Family " + id,
		Theater:          "Russia-Ukraine Conflict",
		EventType:        "Military Conflict",
		KeyActors:        []string{"Russia", "Ukraine"},
		Status:           model.EFStatusActive,
		EFKey:            "key-" + id,
		StrategicPurpose: "Tracking the conflict",
	}
}

// ==================== Creation and migrations ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	tempDir := t.TempDir()

	s, err := NewStore(tempDir)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, filepath.Join(tempDir, "storyline.db"), s.Path())

	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestNewStore_MigrationsIdempotent(t *testing.T) {
	tempDir := t.TempDir()

	s1, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// A second open over the same file must not re-run migrations
	s2, err := NewStore(tempDir)
	require.NoError(t, err)
	defer s2.Close()

	var n int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ==================== Items ====================

func TestStore_SaveAndGetItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	item := strategicItem("i1")
	require.NoError(t, s.SaveItem(ctx, item))

	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "i1", got.ID)
	assert.Equal(t, item.Text, got.Text)
	assert.Equal(t, model.ItemStatusPending, got.Status)
	assert.Nil(t, got.Entities)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_SaveItem_DuplicateIDRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))
	classify(t, s, "i1")
	require.NoError(t, s.CreateEF(ctx, activeFamily("ef1")))
	ok, err := s.AssignItemToEF(ctx, "i1", "ef1")
	require.NoError(t, err)
	require.True(t, ok)

	// Re-ingesting the same id must fail on the primary key, leaving
	// the stored item and its assignment untouched
	dup := strategicItem("i1")
	dup.Text = "re-ingested"
	assert.Error(t, s.SaveItem(ctx, dup))

	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "ef1", got.EventFamilyID)
	assert.Equal(t, "Russia strikes Kharkiv power grid", got.Text)
}

func TestStore_GetItem_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SetClassification_Guarded(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))
	classify(t, s, "i1")

	// Second classification must not overwrite the first
	ok, err := s.SetClassification(ctx, "i1", model.Extraction{
		Actors:      []string{"China"},
		IsStrategic: true,
	}, "Diplomacy", "Global")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Russia", "Ukraine"}, got.Entities)
	assert.Equal(t, "Military Conflict", got.EventType)
	assert.Equal(t, model.ItemStatusClassified, got.Status)
}

func TestStore_SetClassification_NonStrategicDiscards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))

	ok, err := s.SetClassification(ctx, "i1", model.Extraction{
		Actors:      []string{},
		IsStrategic: false,
	}, "", "")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.False(t, got.IsStrategic)
	assert.Equal(t, model.ItemStatusDiscarded, got.Status)
}

func TestStore_ListUnassigned_FiltersAndOrders(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Unclassified item: excluded
	require.NoError(t, s.SaveItem(ctx, strategicItem("pending")))

	// Classified non-strategic: excluded
	require.NoError(t, s.SaveItem(ctx, strategicItem("noise")))
	ok, err := s.SetClassification(ctx, "noise", model.Extraction{Actors: []string{}}, "", "")
	require.NoError(t, err)
	require.True(t, ok)

	// Two strategic items at distinct times
	older := strategicItem("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.SaveItem(ctx, older))
	classify(t, s, "older")

	newer := strategicItem("newer")
	require.NoError(t, s.SaveItem(ctx, newer))
	classify(t, s, "newer")

	items, err := s.ListUnassigned(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "newer", items[0].ID)
	assert.Equal(t, "older", items[1].ID)

	n, err := s.CountUnassigned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	limited, err := s.ListUnassigned(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "newer", limited[0].ID)
}

// ==================== Event families ====================

func TestStore_CreateAndGetEF(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ef := activeFamily("ef1")
	require.NoError(t, s.CreateEF(ctx, ef))

	got, err := s.GetEF(ctx, "ef1")
	require.NoError(t, err)
	assert.Equal(t, ef.Title, got.Title)
	assert.Equal(t, ef.KeyActors, got.KeyActors)
	assert.Equal(t, model.EFStatusActive, got.Status)
	assert.Equal(t, "key-ef1", got.EFKey)
	assert.Empty(t, got.SourceItemIDs)
}

func TestStore_PromoteEF(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seed := activeFamily("ef1")
	seed.Status = model.EFStatusSeed
	seed.EFKey = ""
	require.NoError(t, s.CreateEF(ctx, seed))

	require.NoError(t, s.PromoteEF(ctx, "ef1", "the-key"))

	got, err := s.GetEF(ctx, "ef1")
	require.NoError(t, err)
	assert.Equal(t, model.EFStatusActive, got.Status)
	assert.Equal(t, "the-key", got.EFKey)

	// Promoting an already-active family fails
	assert.ErrorIs(t, s.PromoteEF(ctx, "ef1", "other-key"), store.ErrNotFound)
}

func TestStore_FindActiveByKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEF(ctx, activeFamily("ef1")))

	got, err := s.FindActiveByKey(ctx, "key-ef1")
	require.NoError(t, err)
	assert.Equal(t, "ef1", got.ID)

	_, err = s.FindActiveByKey(ctx, "unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_EFKeyUniqueAmongActiveOnly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := activeFamily("ef1")
	first.EFKey = "shared"
	require.NoError(t, s.CreateEF(ctx, first))

	// A second active family with the same key violates the index
	second := activeFamily("ef2")
	second.EFKey = "shared"
	assert.Error(t, s.CreateEF(ctx, second))

	// Once the first is merged away, the key becomes reusable
	require.NoError(t, s.CreateEF(ctx, activeFamily("master")))
	require.NoError(t, s.ApplyMerge(ctx, "master", []string{"ef1"}, "test"))

	third := activeFamily("ef3")
	third.EFKey = "shared"
	assert.NoError(t, s.CreateEF(ctx, third))
}

func TestStore_CountAndRecentEFs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEF(ctx, activeFamily("ef1")))
	require.NoError(t, s.CreateEF(ctx, activeFamily("ef2")))
	require.NoError(t, s.ApplyMerge(ctx, "ef1", []string{"ef2"}, "test"))

	active, merged, err := s.CountEFs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, merged)

	recent, err := s.RecentEFs(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

// ==================== Guarded primitives ====================

func TestStore_SeedEF_AtomicCreateAndAssign(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))
	classify(t, s, "i1")

	ef := activeFamily("ef1")
	ef.Status = model.EFStatusSeed
	ef.EFKey = ""
	ok, err := s.SeedEF(ctx, ef, "the-key", "i1")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetEF(ctx, "ef1")
	require.NoError(t, err)
	assert.Equal(t, model.EFStatusActive, got.Status)
	assert.Equal(t, "the-key", got.EFKey)
	assert.Equal(t, []string{"i1"}, got.SourceItemIDs)

	item, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "ef1", item.EventFamilyID)
	assert.Equal(t, model.ItemStatusAssigned, item.Status)

	found, err := s.FindActiveByKey(ctx, "the-key")
	require.NoError(t, err)
	assert.Equal(t, "ef1", found.ID)
}

func TestStore_SeedEF_RefusedGuardLeavesNoFamily(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// The item never gets classified, so it is not strategic and the
	// assignment guard refuses; the whole seed must roll back
	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))

	ok, err := s.SeedEF(ctx, activeFamily("ef1"), "the-key", "i1")
	require.NoError(t, err)
	assert.False(t, ok)

	active, merged, err := s.CountEFs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, active)
	assert.Equal(t, 0, merged)

	_, err = s.GetEF(ctx, "ef1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_AssignItemToEF_CommitsOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))
	classify(t, s, "i1")
	require.NoError(t, s.CreateEF(ctx, activeFamily("ef1")))
	require.NoError(t, s.CreateEF(ctx, activeFamily("ef2")))

	ok, err := s.AssignItemToEF(ctx, "i1", "ef1")
	require.NoError(t, err)
	assert.True(t, ok)

	// The compare-and-set refuses a second family
	ok, err = s.AssignItemToEF(ctx, "i1", "ef2")
	require.NoError(t, err)
	assert.False(t, ok)

	item, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "ef1", item.EventFamilyID)
	assert.Equal(t, model.ItemStatusAssigned, item.Status)

	ef1, err := s.GetEF(ctx, "ef1")
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, ef1.SourceItemIDs)

	ef2, err := s.GetEF(ctx, "ef2")
	require.NoError(t, err)
	assert.Empty(t, ef2.SourceItemIDs)
}

func TestStore_AssignItemToEF_NonStrategicRefused(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))
	ok, err := s.SetClassification(ctx, "i1", model.Extraction{Actors: []string{}}, "", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.CreateEF(ctx, activeFamily("ef1")))

	ok, err = s.AssignItemToEF(ctx, "i1", "ef1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_AssignItemToEF_MissingFamilyRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveItem(ctx, strategicItem("i1")))
	classify(t, s, "i1")

	_, err := s.AssignItemToEF(ctx, "i1", "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The item update must have rolled back with the failed append
	item, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Empty(t, item.EventFamilyID)
	assert.Equal(t, model.ItemStatusClassified, item.Status)
}

func TestStore_ApplyMerge_FullClosure(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"i1", "i2", "i3"} {
		require.NoError(t, s.SaveItem(ctx, strategicItem(id)))
		classify(t, s, id)
	}
	require.NoError(t, s.CreateEF(ctx, activeFamily("master")))
	require.NoError(t, s.CreateEF(ctx, activeFamily("dupA")))
	require.NoError(t, s.CreateEF(ctx, activeFamily("dupB")))

	for itemID, efID := range map[string]string{"i1": "master", "i2": "dupA", "i3": "dupB"} {
		ok, err := s.AssignItemToEF(ctx, itemID, efID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, s.ApplyMerge(ctx, "master", []string{"dupA", "dupB"}, "fragmented"))

	master, err := s.GetEF(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, model.EFStatusActive, master.Status)
	assert.ElementsMatch(t, []string{"i1", "i2", "i3"}, master.SourceItemIDs)

	for _, dupID := range []string{"dupA", "dupB"} {
		dup, err := s.GetEF(ctx, dupID)
		require.NoError(t, err)
		assert.Equal(t, model.EFStatusMerged, dup.Status)
		assert.Equal(t, "master", dup.MergedInto)
		assert.Equal(t, "fragmented", dup.MergeRationale)
	}

	for _, itemID := range []string{"i1", "i2", "i3"} {
		item, err := s.GetItem(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, "master", item.EventFamilyID)
	}
}

func TestStore_ApplyMerge_KeepsOneHopResolution(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEF(ctx, activeFamily("efA")))
	require.NoError(t, s.CreateEF(ctx, activeFamily("efB")))
	require.NoError(t, s.ApplyMerge(ctx, "efA", []string{"efB"}, "round one"))

	require.NoError(t, s.CreateEF(ctx, activeFamily("efC")))
	require.NoError(t, s.ApplyMerge(ctx, "efC", []string{"efA"}, "round two"))

	efB, err := s.GetEF(ctx, "efB")
	require.NoError(t, err)
	assert.Equal(t, "efC", efB.MergedInto)
}

func TestStore_ApplyMerge_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEF(ctx, activeFamily("master")))
	require.NoError(t, s.CreateEF(ctx, activeFamily("dup")))

	require.NoError(t, s.ApplyMerge(ctx, "master", []string{"dup"}, "first"))
	require.NoError(t, s.ApplyMerge(ctx, "master", []string{"dup"}, "second"))

	active, merged, err := s.CountEFs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, merged)
}

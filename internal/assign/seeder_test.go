package assign

import (
	"context"
	"strings"
	"testing"

	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store/memory"
)

func TestSeeder_Seed_CreatesActiveFamily(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	item := testItem("i1")
	if err := st.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	s := NewSeeder(st, nil)

	efID, err := s.Seed(ctx, item, false)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	ef, err := st.GetEF(ctx, efID)
	if err != nil {
		t.Fatalf("GetEF failed: %v", err)
	}
	if ef.Status != model.EFStatusActive {
		t.Errorf("Expected active family, got %q", ef.Status)
	}
	if ef.EFKey == "" {
		t.Error("Expected promoted family to carry an ef_key")
	}
	if ef.Theater != item.Theater || ef.EventType != item.EventType {
		t.Errorf("Expected family to inherit theater/event type, got %q/%q", ef.Theater, ef.EventType)
	}
	if len(ef.SourceItemIDs) != 1 || ef.SourceItemIDs[0] != "i1" {
		t.Errorf("Expected the item attached, got %v", ef.SourceItemIDs)
	}
	if !strings.Contains(ef.StrategicPurpose, item.EventType) {
		t.Errorf("Expected strategic purpose to mention the event type, got %q", ef.StrategicPurpose)
	}

	stored, _ := st.GetItem(ctx, "i1")
	if stored.EventFamilyID != efID {
		t.Errorf("Expected item assigned to %q, got %q", efID, stored.EventFamilyID)
	}
}

func TestSeeder_Seed_DuplicateKeyAttachesToExisting(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()

	first := testItem("i1")
	second := testItem("i2")
	second.Text = "Another strike on the Kharkiv grid"
	for _, item := range []*model.Item{first, second} {
		if err := st.SaveItem(ctx, item); err != nil {
			t.Fatalf("SaveItem failed: %v", err)
		}
	}

	s := NewSeeder(st, nil)

	firstEF, err := s.Seed(ctx, first, false)
	if err != nil {
		t.Fatalf("First seed failed: %v", err)
	}

	// Same theater, event type, and actors: identical ef_key
	secondEF, err := s.Seed(ctx, second, false)
	if err != nil {
		t.Fatalf("Second seed failed: %v", err)
	}
	if secondEF != firstEF {
		t.Errorf("Expected second item attached to %q, got %q", firstEF, secondEF)
	}

	active, _, err := st.CountEFs(ctx)
	if err != nil {
		t.Fatalf("CountEFs failed: %v", err)
	}
	if active != 1 {
		t.Errorf("Expected a single active family, got %d", active)
	}

	ef, _ := st.GetEF(ctx, firstEF)
	if len(ef.SourceItemIDs) != 2 {
		t.Errorf("Expected both items attached, got %v", ef.SourceItemIDs)
	}
}

func TestSeeder_Seed_AlreadyAssignedItemCreatesNoFamily(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	item := testItem("i1")
	if err := st.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	s := NewSeeder(st, nil)

	firstEF, err := s.Seed(ctx, item, false)
	if err != nil {
		t.Fatalf("First seed failed: %v", err)
	}

	// The stale copy still looks unassigned, but the guard refuses and
	// nothing new may be created
	efID, err := s.Seed(ctx, item, false)
	if err != nil {
		t.Fatalf("Second seed errored: %v", err)
	}
	if efID != firstEF {
		t.Errorf("Expected the existing family id %q, got %q", firstEF, efID)
	}

	active, _, err := st.CountEFs(ctx)
	if err != nil {
		t.Fatalf("CountEFs failed: %v", err)
	}
	if active != 1 {
		t.Errorf("Expected a single family, got %d", active)
	}
	ef, _ := st.GetEF(ctx, firstEF)
	if len(ef.SourceItemIDs) != 1 {
		t.Errorf("Expected one attached item, got %v", ef.SourceItemIDs)
	}
}

func TestSeeder_Seed_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	item := testItem("i1")
	if err := st.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	s := NewSeeder(st, nil)

	efID, err := s.Seed(ctx, item, true)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if efID == "" {
		t.Error("Expected dry run to report the prospective family id")
	}

	active, merged, err := st.CountEFs(ctx)
	if err != nil {
		t.Fatalf("CountEFs failed: %v", err)
	}
	if active != 0 || merged != 0 {
		t.Errorf("Expected no families created in dry run, got %d active %d merged", active, merged)
	}
}

func TestSeeder_Seed_LongTitleTruncated(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	item := testItem("i1")
	item.Text = strings.Repeat("Russia strikes again and again ", 10)
	if err := st.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	s := NewSeeder(st, nil)

	efID, err := s.Seed(ctx, item, false)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	ef, _ := st.GetEF(ctx, efID)
	if got := len([]rune(ef.Title)); got > 120 {
		t.Errorf("Expected title capped at 120 runes, got %d", got)
	}
}

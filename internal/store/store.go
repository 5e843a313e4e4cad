// Package store defines the item/event-family persistence contract.
// The guarded primitives (compare-and-set assignment, transactional
// merge application) are named operations here so the "assign only if
// unset" guarantee is a contract, not an SQL idiom.
package store

import (
	"context"
	"errors"

	"github.com/storylinehq/storyline/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface the engine runs against.
// Implementations: sqlite (production), memory (tests, dry runs).
type Store interface {
	// SaveItem inserts a new item (ingestion side). Item ids are
	// write-once: saving an existing id fails.
	SaveItem(ctx context.Context, item *model.Item) error

	// GetItem retrieves an item by id.
	GetItem(ctx context.Context, id string) (*model.Item, error)

	// SetClassification records the matcher verdict. Guarded: applies
	// only if the item has not been classified yet, and reports
	// whether the write happened.
	SetClassification(ctx context.Context, itemID string, ext model.Extraction, eventType, theater string) (bool, error)

	// ListUnassigned returns classified strategic items without an
	// event family, newest first, up to limit (0 = no limit).
	ListUnassigned(ctx context.Context, limit int) ([]model.Item, error)

	// CountUnassigned counts classified strategic items without an
	// event family.
	CountUnassigned(ctx context.Context) (int, error)

	// CreateEF inserts a new event family.
	CreateEF(ctx context.Context, ef *model.EventFamily) error

	// GetEF retrieves an event family by id.
	GetEF(ctx context.Context, id string) (*model.EventFamily, error)

	// FindActiveByKey returns the active family holding efKey, or
	// ErrNotFound. efKey is unique only among active families.
	FindActiveByKey(ctx context.Context, efKey string) (*model.EventFamily, error)

	// ListActiveEFs returns active families, up to limit (0 = no limit).
	ListActiveEFs(ctx context.Context, limit int) ([]model.EventFamily, error)

	// CountEFs returns the number of active and merged families.
	CountEFs(ctx context.Context) (active int, merged int, err error)

	// RecentEFs returns the most recently updated families.
	RecentEFs(ctx context.Context, limit int) ([]model.EventFamily, error)

	// PromoteEF moves a seed family to active with the given efKey.
	PromoteEF(ctx context.Context, id, efKey string) error

	// SeedEF creates ef, promotes it to active with efKey, and assigns
	// itemID to it, all in one transaction. A refused item guard rolls
	// the whole seed back (ok false, no family row left behind).
	SeedEF(ctx context.Context, ef *model.EventFamily, efKey, itemID string) (ok bool, err error)

	// AssignItemToEF is the commit primitive of the assignment pass:
	// compare-and-set the item's event family (only if currently unset
	// and the item is strategic) and append the item id to the
	// family's source items, both in one transaction. When the item
	// guard fails the append is skipped entirely and ok is false.
	AssignItemToEF(ctx context.Context, itemID, efID string) (ok bool, err error)

	// ApplyMerge consolidates duplicates into master in one
	// transaction: re-point their items, mark each duplicate merged
	// with rationale, re-point any merged_into chains at a duplicate
	// so resolution stays one hop, and recompute the master's source
	// items as a set. Idempotent.
	ApplyMerge(ctx context.Context, masterID string, dupIDs []string, rationale string) error

	// Close releases the underlying resources.
	Close() error
}

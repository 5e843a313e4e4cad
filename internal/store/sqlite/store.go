// Package sqlite implements the item/event-family store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/store"
	"github.com/storylinehq/storyline/internal/store/sqlite/migrations"
)

// Store is the SQLite-backed item/EF store.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// NewStore creates a SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.storyline/data/storyline.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".storyline", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "storyline.db")

	// WAL mode for better concurrency between the passes and status reads
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Items ====================

// SaveItem inserts a new item.
func (s *Store) SaveItem(ctx context.Context, item *model.Item) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = model.ItemStatusPending
	}

	var entitiesJSON any
	if item.Entities != nil {
		data, err := json.Marshal(item.Entities)
		if err != nil {
			return fmt.Errorf("marshalling entities: %w", err)
		}
		entitiesJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, text, entities, is_strategic, event_type, theater, event_family_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Text, entitiesJSON, item.IsStrategic, item.EventType, item.Theater,
		nullString(item.EventFamilyID), string(item.Status), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, entities, is_strategic, event_type, theater, event_family_id, status, created_at
		FROM items WHERE id = ?
	`, id)
	return scanItem(row)
}

// SetClassification records the matcher verdict under the
// "only if not already classified" guard.
func (s *Store) SetClassification(ctx context.Context, itemID string, ext model.Extraction, eventType, theater string) (bool, error) {
	entitiesJSON, err := json.Marshal(ext.Actors)
	if err != nil {
		return false, fmt.Errorf("marshalling entities: %w", err)
	}

	status := model.ItemStatusClassified
	if !ext.IsStrategic {
		status = model.ItemStatusDiscarded
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET entities = ?, is_strategic = ?, event_type = ?, theater = ?, status = ?
		WHERE id = ? AND entities IS NULL
	`, string(entitiesJSON), ext.IsStrategic, eventType, theater, string(status), itemID)
	if err != nil {
		return false, fmt.Errorf("setting classification: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListUnassigned returns classified strategic items without an event
// family, newest first.
func (s *Store) ListUnassigned(ctx context.Context, limit int) ([]model.Item, error) {
	query := `
		SELECT id, text, entities, is_strategic, event_type, theater, event_family_id, status, created_at
		FROM items
		WHERE event_family_id IS NULL AND is_strategic = 1 AND entities IS NOT NULL
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CountUnassigned counts classified strategic items without an event family.
func (s *Store) CountUnassigned(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items
		WHERE event_family_id IS NULL AND is_strategic = 1 AND entities IS NOT NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unassigned items: %w", err)
	}
	return n, nil
}

// ==================== Event families ====================

// CreateEF inserts a new event family.
func (s *Store) CreateEF(ctx context.Context, ef *model.EventFamily) error {
	now := time.Now().UTC()
	if ef.CreatedAt.IsZero() {
		ef.CreatedAt = now
	}
	ef.UpdatedAt = now
	if ef.Status == "" {
		ef.Status = model.EFStatusSeed
	}

	actorsJSON, err := json.Marshal(emptyIfNil(ef.KeyActors))
	if err != nil {
		return fmt.Errorf("marshalling key actors: %w", err)
	}
	sourcesJSON, err := json.Marshal(emptyIfNil(ef.SourceItemIDs))
	if err != nil {
		return fmt.Errorf("marshalling source items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_families
			(id, title, theater, event_type, key_actors, ef_key, status,
			 merged_into, merge_rationale, source_item_ids, strategic_purpose,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ef.ID, ef.Title, ef.Theater, ef.EventType, string(actorsJSON),
		nullString(ef.EFKey), string(ef.Status), nullString(ef.MergedInto),
		nullString(ef.MergeRationale), string(sourcesJSON), ef.StrategicPurpose,
		ef.CreatedAt, ef.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving event family: %w", err)
	}
	return nil
}

const efColumns = `id, title, theater, event_type, key_actors, ef_key, status,
	merged_into, merge_rationale, source_item_ids, strategic_purpose,
	created_at, updated_at`

// GetEF retrieves an event family by id.
func (s *Store) GetEF(ctx context.Context, id string) (*model.EventFamily, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+efColumns+` FROM event_families WHERE id = ?`, id)
	return scanEF(row)
}

// FindActiveByKey returns the active family holding efKey.
func (s *Store) FindActiveByKey(ctx context.Context, efKey string) (*model.EventFamily, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+efColumns+` FROM event_families WHERE ef_key = ? AND status = 'active'`, efKey)
	return scanEF(row)
}

// ListActiveEFs returns active families, oldest first.
func (s *Store) ListActiveEFs(ctx context.Context, limit int) ([]model.EventFamily, error) {
	query := `SELECT ` + efColumns + ` FROM event_families WHERE status = 'active' ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing active families: %w", err)
	}
	defer rows.Close()

	var efs []model.EventFamily
	for rows.Next() {
		ef, err := scanEF(rows)
		if err != nil {
			return nil, err
		}
		efs = append(efs, *ef)
	}
	return efs, rows.Err()
}

// CountEFs returns the number of active and merged families.
func (s *Store) CountEFs(ctx context.Context) (int, int, error) {
	var active, merged int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'merged')
		FROM event_families
	`).Scan(&active, &merged)
	if err != nil {
		return 0, 0, fmt.Errorf("counting families: %w", err)
	}
	return active, merged, nil
}

// RecentEFs returns the most recently updated families.
func (s *Store) RecentEFs(ctx context.Context, limit int) ([]model.EventFamily, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+efColumns+` FROM event_families ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent families: %w", err)
	}
	defer rows.Close()

	var efs []model.EventFamily
	for rows.Next() {
		ef, err := scanEF(rows)
		if err != nil {
			return nil, err
		}
		efs = append(efs, *ef)
	}
	return efs, rows.Err()
}

// PromoteEF moves a seed family to active with the given efKey.
func (s *Store) PromoteEF(ctx context.Context, id, efKey string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE event_families
		SET status = 'active', ef_key = ?, updated_at = ?
		WHERE id = ? AND status = 'seed'
	`, efKey, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("promoting family: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==================== Guarded primitives ====================

// SeedEF runs the whole seed (create, promote, assign) in a single
// transaction. A refused item guard rolls everything back, so no
// invisible seed row can be stranded by a partial failure.
func (s *Store) SeedEF(ctx context.Context, ef *model.EventFamily, efKey, itemID string) (bool, error) {
	now := time.Now().UTC()
	if ef.CreatedAt.IsZero() {
		ef.CreatedAt = now
	}
	ef.UpdatedAt = now

	actorsJSON, err := json.Marshal(emptyIfNil(ef.KeyActors))
	if err != nil {
		return false, fmt.Errorf("marshalling key actors: %w", err)
	}
	sourcesJSON, err := json.Marshal([]string{itemID})
	if err != nil {
		return false, fmt.Errorf("marshalling source items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET event_family_id = ?, status = ?
		WHERE id = ? AND event_family_id IS NULL AND is_strategic = 1
	`, ef.ID, string(model.ItemStatusAssigned), itemID)
	if err != nil {
		return false, fmt.Errorf("assigning item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Already assigned or not strategic; the rollback discards
		// everything, nothing was written
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_families
			(id, title, theater, event_type, key_actors, ef_key, status,
			 merged_into, merge_rationale, source_item_ids, strategic_purpose,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', NULL, NULL, ?, ?, ?, ?)
	`, ef.ID, ef.Title, ef.Theater, ef.EventType, string(actorsJSON),
		efKey, string(sourcesJSON), ef.StrategicPurpose, ef.CreatedAt, ef.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("creating event family: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing seed: %w", err)
	}

	ef.Status = model.EFStatusActive
	ef.EFKey = efKey
	ef.SourceItemIDs = []string{itemID}
	return true, nil
}

// AssignItemToEF commits one assignment in a single transaction:
// compare-and-set on the item, then append to the family's source
// items. A failed guard skips the append entirely.
func (s *Store) AssignItemToEF(ctx context.Context, itemID, efID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET event_family_id = ?, status = ?
		WHERE id = ? AND event_family_id IS NULL AND is_strategic = 1
	`, efID, string(model.ItemStatusAssigned), itemID)
	if err != nil {
		return false, fmt.Errorf("assigning item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Already assigned by a prior pass, or not strategic
		return false, nil
	}

	var sourcesJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT source_item_ids FROM event_families WHERE id = ?`, efID).Scan(&sourcesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("reading source items: %w", err)
	}

	var sources []string
	if err := json.Unmarshal([]byte(sourcesJSON), &sources); err != nil {
		return false, fmt.Errorf("unmarshalling source items: %w", err)
	}
	recorded := false
	for _, id := range sources {
		if id == itemID {
			recorded = true
			break
		}
	}
	if !recorded {
		sources = append(sources, itemID)
		updated, err := json.Marshal(sources)
		if err != nil {
			return false, fmt.Errorf("marshalling source items: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE event_families SET source_item_ids = ?, updated_at = ? WHERE id = ?
		`, string(updated), time.Now().UTC(), efID)
		if err != nil {
			return false, fmt.Errorf("appending source item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing assignment: %w", err)
	}
	return true, nil
}

// ApplyMerge consolidates duplicates into master in one transaction.
func (s *Store) ApplyMerge(ctx context.Context, masterID string, dupIDs []string, rationale string) error {
	if len(dupIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for _, dupID := range dupIDs {
		if dupID == masterID {
			continue
		}

		// 1. Re-point every item at the duplicate to the master
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET event_family_id = ? WHERE event_family_id = ?
		`, masterID, dupID)
		if err != nil {
			return fmt.Errorf("re-pointing items of %s: %w", dupID, err)
		}

		// 2. Mark the duplicate merged
		_, err = tx.ExecContext(ctx, `
			UPDATE event_families
			SET status = 'merged', merged_into = ?, merge_rationale = ?, updated_at = ?
			WHERE id = ?
		`, masterID, rationale, now, dupID)
		if err != nil {
			return fmt.Errorf("marking %s merged: %w", dupID, err)
		}

		// 3. Keep merged_into resolution at one hop: anything that
		// previously merged into the duplicate now points at the master
		_, err = tx.ExecContext(ctx, `
			UPDATE event_families SET merged_into = ?, updated_at = ? WHERE merged_into = ?
		`, masterID, now, dupID)
		if err != nil {
			return fmt.Errorf("re-pointing merged_into chains of %s: %w", dupID, err)
		}
	}

	// 4. Recompute the master's source items as a set, not a concatenation
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM items WHERE event_family_id = ? ORDER BY created_at ASC, id ASC
	`, masterID)
	if err != nil {
		return fmt.Errorf("recomputing source items: %w", err)
	}
	var sources []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning item id: %w", err)
		}
		sources = append(sources, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating item ids: %w", err)
	}

	sourcesJSON, err := json.Marshal(emptyIfNil(sources))
	if err != nil {
		return fmt.Errorf("marshalling source items: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE event_families SET source_item_ids = ?, updated_at = ? WHERE id = ?
	`, string(sourcesJSON), now, masterID)
	if err != nil {
		return fmt.Errorf("updating master source items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing merge: %w", err)
	}
	return nil
}

// ==================== Scan helpers ====================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	var item model.Item
	var entitiesJSON, efID sql.NullString
	var status string

	err := row.Scan(&item.ID, &item.Text, &entitiesJSON, &item.IsStrategic,
		&item.EventType, &item.Theater, &efID, &status, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}

	if entitiesJSON.Valid {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &item.Entities); err != nil {
			return nil, fmt.Errorf("unmarshalling entities: %w", err)
		}
	}
	item.EventFamilyID = efID.String
	item.Status = model.ItemStatus(status)

	return &item, nil
}

func scanEF(row rowScanner) (*model.EventFamily, error) {
	var ef model.EventFamily
	var actorsJSON, sourcesJSON, status string
	var efKey, mergedInto, rationale sql.NullString

	err := row.Scan(&ef.ID, &ef.Title, &ef.Theater, &ef.EventType, &actorsJSON,
		&efKey, &status, &mergedInto, &rationale, &sourcesJSON,
		&ef.StrategicPurpose, &ef.CreatedAt, &ef.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning event family: %w", err)
	}

	if err := json.Unmarshal([]byte(actorsJSON), &ef.KeyActors); err != nil {
		return nil, fmt.Errorf("unmarshalling key actors: %w", err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &ef.SourceItemIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling source items: %w", err)
	}
	ef.EFKey = efKey.String
	ef.MergedInto = mergedInto.String
	ef.MergeRationale = rationale.String
	ef.Status = model.EFStatus(status)

	return &ef, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

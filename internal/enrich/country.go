// Package enrich completes entity lists with countries inferred from
// entity reference metadata.
package enrich

import (
	"strings"

	"go.uber.org/zap"

	"github.com/storylinehq/storyline/internal/model"
)

// Enricher maps extracted entities to their countries. Built once at
// process start from reference metadata and passed by reference into
// every component that needs it.
type Enricher struct {
	idByName    map[string]string // lowercased display name -> entity id
	countryByID map[string]string // entity id -> country display name
	log         *zap.Logger
}

// NewEnricher builds the lookup maps from reference metadata.
// When two entities share a display name, the shortest id wins.
func NewEnricher(meta []model.EntityMeta, log *zap.Logger) *Enricher {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Enricher{
		idByName:    make(map[string]string, len(meta)),
		countryByID: make(map[string]string),
		log:         log,
	}

	for _, m := range meta {
		if m.DisplayName == "" || m.EntityID == "" {
			log.Warn("malformed entity metadata skipped",
				zap.String("id", m.EntityID),
				zap.String("name", m.DisplayName))
			continue
		}

		key := strings.ToLower(m.DisplayName)
		if existing, ok := e.idByName[key]; !ok || len(m.EntityID) < len(existing) {
			e.idByName[key] = m.EntityID
		}

		if m.ISOCode != "" {
			e.countryByID[m.EntityID] = m.DisplayName
		}
	}

	log.Info("entity metadata loaded",
		zap.Int("entities", len(e.idByName)),
		zap.Int("countries", len(e.countryByID)))

	return e
}

// Enrich appends inferred countries to the entity list. Append-only:
// existing entries are never removed or reordered, appended countries
// follow input order, and a country is added only if it is not already
// present in the input or the accumulated output (case-insensitive).
func (e *Enricher) Enrich(entities []string) []string {
	if len(entities) == 0 {
		return entities
	}

	present := make(map[string]struct{}, len(entities))
	for _, name := range entities {
		present[strings.ToLower(name)] = struct{}{}
	}

	out := make([]string, len(entities), len(entities)+4)
	copy(out, entities)

	for _, name := range entities {
		id, ok := e.idByName[strings.ToLower(name)]
		if !ok {
			continue
		}
		country, ok := e.countryByID[id]
		if !ok {
			continue
		}
		key := strings.ToLower(country)
		if _, dup := present[key]; dup {
			continue
		}
		present[key] = struct{}{}
		out = append(out, country)
	}

	return out
}

// CountryOf resolves a single entity display name to its country.
func (e *Enricher) CountryOf(name string) (string, bool) {
	id, ok := e.idByName[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	country, ok := e.countryByID[id]
	return country, ok
}

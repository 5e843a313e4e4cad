package model

// VocabularyEntry is one canonical entity in a vocabulary group.
// Immutable once loaded; owned by the taxonomy matcher.
type VocabularyEntry struct {
	CanonicalID string              `yaml:"id" json:"canonical_id"`
	DisplayName string              `yaml:"name" json:"display_name"`
	Aliases     map[string][]string `yaml:"aliases" json:"aliases"` // keyed by language code
}

// VocabularyGroup is an ordered set of entries sharing one role.
// GO groups mark content strategic; the STOP group overrides everything.
type VocabularyGroup struct {
	Name    string            `yaml:"name" json:"name"` // Doubles as the event type for GO groups
	Entries []VocabularyEntry `yaml:"entries" json:"entries"`
}

// EntityMeta is read-only reference data about a known entity,
// consumed by country enrichment.
type EntityMeta struct {
	EntityID    string `yaml:"id" json:"entity_id"`
	DisplayName string `yaml:"name" json:"display_name"`
	ISOCode     string `yaml:"iso,omitempty" json:"iso_code,omitempty"` // Empty for non-countries
}

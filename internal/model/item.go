package model

import "time"

// ItemStatus tracks where a headline sits in the pipeline
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"    // Ingested, not yet classified
	ItemStatusClassified ItemStatus = "classified" // Matcher has run (strategic or not)
	ItemStatusAssigned   ItemStatus = "assigned"   // Attached to an event family
	ItemStatusDiscarded  ItemStatus = "discarded"  // Non-strategic, out of the pipeline
)

// Item represents a single ingested headline
type Item struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`                      // Headline text as ingested
	Entities      []string   `json:"entities,omitempty"`        // Display names, matcher order
	IsStrategic   bool       `json:"is_strategic"`              // Strategic gate verdict
	EventType     string     `json:"event_type,omitempty"`      // From the first GO group that matched
	Theater       string     `json:"theater,omitempty"`         // Inferred geopolitical scope
	EventFamilyID string     `json:"event_family_id,omitempty"` // Set at most once, never reassigned
	Status        ItemStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Assigned reports whether the item is attached to an event family.
func (i *Item) Assigned() bool {
	return i.EventFamilyID != ""
}

// Extraction is the typed entity payload attached to a classified item.
// Replaces the untyped JSON blob the ingestion layer used to carry.
type Extraction struct {
	Actors            []string `json:"actors"`
	IsStrategic       bool     `json:"is_strategic"`
	ExtractionVersion string   `json:"extraction_version"`
}

// ExtractionVersion identifies the current matcher/enrichment pipeline.
const ExtractionVersion = "matcher-v2"

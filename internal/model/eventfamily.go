package model

import "time"

// EFStatus is the lifecycle state of an event family
type EFStatus string

const (
	EFStatusSeed   EFStatus = "seed"   // Created, no ef_key yet
	EFStatusActive EFStatus = "active" // Promoted with a unique ef_key
	EFStatusMerged EFStatus = "merged" // Consolidated into another family; terminal
)

// EventFamily is a persistent cluster of headlines tracking one
// ongoing real-world storyline.
type EventFamily struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Theater          string    `json:"theater"`
	EventType        string    `json:"event_type"`
	KeyActors        []string  `json:"key_actors,omitempty"`
	EFKey            string    `json:"ef_key,omitempty"` // Unique only among active families
	Status           EFStatus  `json:"status"`
	MergedInto       string    `json:"merged_into,omitempty"` // Always an active/seed family, never merged
	MergeRationale   string    `json:"merge_rationale,omitempty"`
	SourceItemIDs    []string  `json:"source_item_ids,omitempty"`
	StrategicPurpose string    `json:"strategic_purpose,omitempty"` // Anchor text for thematic validation
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ItemCount returns the number of source items attached to the family.
func (ef *EventFamily) ItemCount() int {
	return len(ef.SourceItemIDs)
}

package model

import "time"

// PassResult is the structured outcome of a single batch pass.
// Nothing is thrown to the caller except store unavailability;
// per-item failures land in Errors.
type PassResult struct {
	Pass      string        `json:"pass"` // "assignment" or "merge"
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped"` // Precondition count was zero/insufficient
	Duration  time.Duration `json:"duration"`
	Errors    []string      `json:"errors,omitempty"`
}

// CycleSummary aggregates the passes of one daily cycle.
type CycleSummary struct {
	PassResults   []PassResult  `json:"pass_results"`
	TotalDuration time.Duration `json:"total_duration"`
	Success       bool          `json:"success"` // True iff Errors is empty
	Errors        []string      `json:"errors,omitempty"`
	DryRun        bool          `json:"dry_run"`
}

// SystemStatus is the operator-facing snapshot of the store.
type SystemStatus struct {
	ActiveEFs       int           `json:"active_efs"`
	MergedEFs       int           `json:"merged_efs"`
	UnassignedItems int           `json:"unassigned_items"`
	RecentEFs       []EventFamily `json:"recent_efs,omitempty"`
}

// RepairResult reports an operator-invoked fragmentation repair.
// Re-running after a successful repair is a no-op.
type RepairResult struct {
	ActiveBefore int      `json:"active_before"`
	ActiveAfter  int      `json:"active_after"`
	Merged       int      `json:"merged"`
	Errors       []string `json:"errors,omitempty"`
}

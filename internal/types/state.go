package types

import "time"

// Status is the outcome of attempting to build a single model.
type Status string

const (
	StatusBuilt            Status = "built"
	StatusSkipped          Status = "skipped"
	StatusError            Status = "error"
	StatusAssertionFailed  Status = "assertion_failed"
)

// RunType classifies a run_log entry (spec §3).
type RunType string

const (
	RunTypeSeed      RunType = "seed"
	RunTypeIngest    RunType = "ingest"
	RunTypeTransform RunType = "transform"
	RunTypeExport    RunType = "export"
	RunTypeImport    RunType = "import"
	RunTypeScript    RunType = "script"
)

// SkipReason explains why a model was skipped, surfaced by the
// orchestrator but not persisted as a distinct column (spec keeps run_log
// append-only and silent on skips that didn't run).
type SkipReason string

const (
	SkipReasonUnchanged       SkipReason = "unchanged"
	SkipReasonUpstreamFailure SkipReason = "upstream failure"
	SkipReasonNotTargeted     SkipReason = "not targeted"
)

// ModelState is the persisted change-detection record for one model,
// keyed by full_name. Updated only on successful execution.
type ModelState struct {
	FullName      string
	ContentHash   string
	UpstreamHash  string
	MaterializedAs Materialization
	LastRunAt     time.Time
	RunDurationMs int64
	RowCount      int64
}

// RunLog is one append-only attempt record.
type RunLog struct {
	RunID        string
	RunType      RunType
	Target       string
	Status       Status
	StartedAt    time.Time
	DurationMs   int64
	RowsAffected int64
	Error        string
	LogOutput    string
}

// AssertionResult is one append-only assertion evaluation.
type AssertionResult struct {
	ModelPath  string
	Expression string
	Passed     bool
	Detail     string
	CheckedAt  time.Time
}

// ModelProfile is the upserted profiling summary for one model's output,
// keyed by model_path.
type ModelProfile struct {
	ModelPath        string
	RowCount         int64
	ColumnCount      int
	NullPercentages  map[string]float64
	DistinctCounts   map[string]int64
	ProfiledAt       time.Time
}

// ModelResult is what the orchestrator reports per model for one run.
type ModelResult struct {
	FullName string     `json:"full_name"`
	Status   Status     `json:"status"`
	Reason   SkipReason `json:"reason,omitempty"` // populated only when Status == StatusSkipped
	RowCount int64      `json:"row_count"`
	Error    string     `json:"error,omitempty"`
}

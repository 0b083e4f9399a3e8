package trackserver

import "context"

// LifecycleStage is the soft-delete flag gating whether an entity is visible
// by default. A newly created entity is always LifecycleActive.
type LifecycleStage string

const (
	LifecycleActive  LifecycleStage = "active"
	LifecycleDeleted LifecycleStage = "deleted"
)

// Experiment is a named container for runs with a lifecycle flag.
// ExperimentID is externally stringified even though it is stored as an
// integer (§3: "experiment_id is globally unique... emitted as a decimal
// string").
type Experiment struct {
	ExperimentID     string          `json:"experiment_id"`
	Name             string          `json:"name"`
	ArtifactLocation string          `json:"artifact_location"`
	LifecycleStage   LifecycleStage  `json:"lifecycle_stage"`
	Tags             []ExperimentTag `json:"tags"`
}

// ExperimentTag is a user-supplied key/value pair attached to an experiment.
// Tags on an experiment are a set keyed by Key; duplicates on insert are a
// client error (ErrConflict via CodeDuplicateTagKey).
type ExperimentTag struct {
	ExperimentID string `json:"experiment_id"`
	Key          string `json:"key"`
	Value        string `json:"value"`
}

// Run is an immutable record of a single tracked execution. RunID and
// RunUUID are the same 32-char opaque identifier (§3: "run_uuid ≡ run_id").
type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

type RunInfo struct {
	RunUUID        string         `json:"run_uuid"`
	RunID          string         `json:"run_id"`
	Name           string         `json:"name"`
	ExperimentID   string         `json:"experiment_id"`
	UserID         string         `json:"user_id"`
	Status         string         `json:"status"`
	StartTime      int64          `json:"start_time"`
	EndTime        int64          `json:"end_time"`
	LifecycleStage LifecycleStage `json:"lifecycle_stage"`
	ArtifactURI    string         `json:"artifact_uri"`
}

type RunData struct {
	Params  []Param  `json:"params"`
	Metrics []Metric `json:"metrics"`
	Tags    []RunTag `json:"tags"`
}

// Param is last-write-wins: (run_uuid, key) -> value.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metric is append-only: every (run_uuid, key, timestamp, step) is a
// distinct row; callers read back the latest one via latest_metrics.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// RunTag is last-write-wins, same shape as ExperimentTag but scoped to a run.
type RunTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store is the polymorphic handle every backend (Postgres, DuckDB) implements
// identically apart from connection acquisition (§4.4, §9 "Polymorphic
// store"). cmd/server opens one Store at startup, shares it across every
// request, and tears it down once at process shutdown.
type Store interface {
	// Teardown closes the backend: the whole connection pool for Postgres,
	// the database handle for the embedded backend. Safe to call exactly
	// once per Store.
	Teardown(ctx context.Context)

	ListExperiments(ctx context.Context) ([]Experiment, error)
	SearchExperiments(ctx context.Context, maxResults *int64, filterString string, orderBy []string) ([]Experiment, error)
	GetExperiment(ctx context.Context, experimentID string) (Experiment, error)
	CreateExperiment(ctx context.Context, name string, artifactLocation *string, tags []ExperimentTag) (Experiment, error)
	DeleteExperiment(ctx context.Context, experimentID string) (Experiment, error)
	RestoreExperiment(ctx context.Context, experimentID string) (Experiment, error)
	UpdateExperiment(ctx context.Context, experimentID string, newName string) (Experiment, error)

	SearchRuns(ctx context.Context, experimentIDs []string) ([]Run, error)
	GetRun(ctx context.Context, runID string) (Run, error)
}

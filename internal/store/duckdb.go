package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/internal/artifact"
	"github.com/caretta-labs/trackserver/internal/querybuilder"
)

var _ trackserver.Store = (*DuckDBStore)(nil)

// DuckDBStore is the embedded backend: a single database/sql connection
// opened against a DuckDB file (or :memory:), grounded on the teacher's
// DuckDBClient (internal/duckdb_conn.go) — same driver registration and
// single-connection PingContext-on-open pattern, generalised from the
// teacher's EAV schema to the fixed experiment/run tables.
type DuckDBStore struct {
	db     *sql.DB
	logger *zap.Logger
	root   string
}

// OpenDuckDBStore opens (or creates) a DuckDB file at path — ":memory:" for
// an ephemeral store — and verifies connectivity before returning.
func OpenDuckDBStore(ctx context.Context, path string, defaultArtifactRoot string, logger *zap.Logger) (*DuckDBStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to open duckdb database", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to ping duckdb database", err)
	}
	return &DuckDBStore{db: db, logger: logger, root: defaultArtifactRoot}, nil
}

func (s *DuckDBStore) Teardown(ctx context.Context) {
	s.db.Close()
}

// duckQuerier adapts database/sql's *sql.DB/*sql.Tx to the querier seam.
type duckQuerier struct {
	exec interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	}
}

func (q duckQuerier) Query(ctx context.Context, query string, args ...any) (rowsIterator, error) {
	rows, err := q.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowsAdapter{rows}, nil
}

func (q duckQuerier) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return q.exec.QueryRowContext(ctx, query, args...)
}

func (q duckQuerier) Exec(ctx context.Context, query string, args ...any) error {
	_, err := q.exec.ExecContext(ctx, query, args...)
	return err
}

func (q duckQuerier) Placeholder(i int) string {
	return "?"
}

// sqlRowsAdapter bridges *sql.Rows to rowsIterator (database/sql's
// Close() returns an error, unlike pgx's).
type sqlRowsAdapter struct{ rows *sql.Rows }

func (a sqlRowsAdapter) Next() bool             { return a.rows.Next() }
func (a sqlRowsAdapter) Scan(dest ...any) error { return a.rows.Scan(dest...) }
func (a sqlRowsAdapter) Err() error             { return a.rows.Err() }
func (a sqlRowsAdapter) Close()                 { a.rows.Close() }

func newDuckPoolQuerier(db *sql.DB) duckQuerier {
	return duckQuerier{exec: db}
}

func newDuckTxQuerier(tx *sql.Tx) duckQuerier {
	return duckQuerier{exec: tx}
}

func (s *DuckDBStore) ListExperiments(ctx context.Context) ([]trackserver.Experiment, error) {
	return searchExperiments(ctx, newDuckPoolQuerier(s.db), querybuilder.DuckDB, s.logger, nil, "", nil)
}

func (s *DuckDBStore) SearchExperiments(ctx context.Context, maxResults *int64, filterString string, orderBy []string) ([]trackserver.Experiment, error) {
	return searchExperiments(ctx, newDuckPoolQuerier(s.db), querybuilder.DuckDB, s.logger, maxResults, filterString, orderBy)
}

func (s *DuckDBStore) GetExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return getExperiment(ctx, newDuckPoolQuerier(s.db), experimentID)
}

func (s *DuckDBStore) CreateExperiment(ctx context.Context, name string, artifactLocation *string, tags []trackserver.ExperimentTag) (trackserver.Experiment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	q := newDuckTxQuerier(tx)

	var experimentID int64
	row := q.QueryRow(ctx, "INSERT INTO experiments (name, artifact_location, lifecycle_stage) VALUES (?, '', ?) RETURNING experiment_id", name, string(trackserver.LifecycleActive))
	if err := row.Scan(&experimentID); err != nil {
		if isDuckDBUniqueViolation(err) {
			return trackserver.Experiment{}, trackserver.NewConflict(trackserver.CodeDuplicateName, "experiment name already exists")
		}
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to insert experiment", err)
	}

	idStr := strconv.FormatInt(experimentID, 10)
	loc := artifact.Join(s.root, idStr)
	if artifactLocation != nil && *artifactLocation != "" {
		loc = *artifactLocation
	}
	if err := q.Exec(ctx, "UPDATE experiments SET artifact_location = ? WHERE experiment_id = ?", loc, experimentID); err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to set artifact_location", err)
	}

	if len(tags) > 0 {
		if err := insertExperimentTagsMultiRow(ctx, q, idStr, tags); err != nil {
			return trackserver.Experiment{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to commit transaction", err)
	}

	return trackserver.Experiment{
		ExperimentID:     idStr,
		Name:             name,
		ArtifactLocation: loc,
		LifecycleStage:   trackserver.LifecycleActive,
		Tags:             tags,
	}, nil
}

func (s *DuckDBStore) DeleteExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return duckToggleLifecycle(ctx, newDuckPoolQuerier(s.db), experimentID, trackserver.LifecycleDeleted)
}

func (s *DuckDBStore) RestoreExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return duckToggleLifecycle(ctx, newDuckPoolQuerier(s.db), experimentID, trackserver.LifecycleActive)
}

func duckToggleLifecycle(ctx context.Context, q querier, experimentID string, stage trackserver.LifecycleStage) (trackserver.Experiment, error) {
	if err := q.Exec(ctx, "UPDATE experiments SET lifecycle_stage = ? WHERE experiment_id = ?", string(stage), experimentID); err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to update lifecycle_stage", err)
	}
	return getExperiment(ctx, q, experimentID)
}

func (s *DuckDBStore) UpdateExperiment(ctx context.Context, experimentID string, newName string) (trackserver.Experiment, error) {
	q := newDuckPoolQuerier(s.db)
	if err := q.Exec(ctx, "UPDATE experiments SET name = ? WHERE experiment_id = ?", newName, experimentID); err != nil {
		if isDuckDBUniqueViolation(err) {
			return trackserver.Experiment{}, trackserver.NewConflict(trackserver.CodeDuplicateName, "experiment name already exists")
		}
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to rename experiment", err)
	}
	return getExperiment(ctx, q, experimentID)
}

func (s *DuckDBStore) SearchRuns(ctx context.Context, experimentIDs []string) ([]trackserver.Run, error) {
	return searchRuns(ctx, newDuckPoolQuerier(s.db), experimentIDs)
}

func (s *DuckDBStore) GetRun(ctx context.Context, runID string) (trackserver.Run, error) {
	return getRun(ctx, newDuckPoolQuerier(s.db), runID)
}

// isDuckDBUniqueViolation reports whether err came from a violated UNIQUE
// constraint; the driver surfaces this as a generic error whose message
// carries the constraint name, so matching is substring-based rather than
// a typed sentinel (unlike pgx's SQLSTATE).
func isDuckDBUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

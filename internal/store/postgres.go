package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/internal/artifact"
	"github.com/caretta-labs/trackserver/internal/querybuilder"
)

// isNoRows reports whether err is either backend's no-rows sentinel.
// getExperiment/getRun are shared between PostgresStore (pgx.ErrNoRows) and
// DuckDBStore (database/sql's sql.ErrNoRows), so both must be recognised
// here rather than only the Postgres one.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

var _ trackserver.Store = (*PostgresStore)(nil)

// pgxPoolIface is the subset of *pgxpool.Pool this package depends on. It
// exists so tests can substitute pgxmock's mock pool (which implements the
// same method set as *pgxpool.Pool) for the real thing, the way the
// teacher's repository tests inject pgxmock.NewPool() in place of a live
// connection pool.
type pgxPoolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// PostgresStore is the networked backend, grounded on the teacher's
// pgxpool-based repository (internal/postgres_persistent_repository.go):
// connections come from a shared pool, composite writes run inside a
// pgx.Tx with a deferred rollback that is a no-op once committed.
type PostgresStore struct {
	pool   pgxPoolIface
	logger *zap.Logger
	root   string
}

// NewPostgresStore builds a PostgresStore over an already-connected pool.
// defaultArtifactRoot is the base path CreateExperiment synthesises
// artifact_location under when the caller supplies none (§3).
func NewPostgresStore(pool *pgxpool.Pool, defaultArtifactRoot string, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger, root: defaultArtifactRoot}
}

// newPostgresStoreWithPool is the test seam: it accepts anything satisfying
// pgxPoolIface, including a pgxmock pool, without requiring a live
// *pgxpool.Pool.
func newPostgresStoreWithPool(pool pgxPoolIface, defaultArtifactRoot string, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger, root: defaultArtifactRoot}
}

func (s *PostgresStore) Teardown(ctx context.Context) {
	s.pool.Close()
}

// pgQuerier adapts either *pgxpool.Pool or pgx.Tx to the querier seam so
// searchExperiments/assemble* work unchanged under a transaction or not.
type pgQuerier struct {
	exec interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
		Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	}
}

// pgconnCommandTag avoids importing pgconn just for its CommandTag type;
// both *pgxpool.Pool and pgx.Tx return it, but this package only discards it.
type pgconnCommandTag = pgx.CommandTag

func (q pgQuerier) Query(ctx context.Context, sql string, args ...any) (rowsIterator, error) {
	rows, err := q.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (q pgQuerier) QueryRow(ctx context.Context, sql string, args ...any) rowScanner {
	return q.exec.QueryRow(ctx, sql, args...)
}

func (q pgQuerier) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := q.exec.Exec(ctx, sql, args...)
	return err
}

func (q pgQuerier) Placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}

func newPoolQuerier(pool pgxPoolIface) pgQuerier {
	return pgQuerier{exec: poolExecAdapter{pool}}
}

func newTxQuerier(tx pgx.Tx) pgQuerier {
	return pgQuerier{exec: txExecAdapter{tx}}
}

type poolExecAdapter struct{ pool pgxPoolIface }

func (a poolExecAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.pool.Query(ctx, sql, args...)
}
func (a poolExecAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.pool.QueryRow(ctx, sql, args...)
}
func (a poolExecAdapter) Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error) {
	return a.pool.Exec(ctx, sql, args...)
}

type txExecAdapter struct{ tx pgx.Tx }

func (a txExecAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.tx.Query(ctx, sql, args...)
}
func (a txExecAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.tx.QueryRow(ctx, sql, args...)
}
func (a txExecAdapter) Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error) {
	return a.tx.Exec(ctx, sql, args...)
}

func (s *PostgresStore) ListExperiments(ctx context.Context) ([]trackserver.Experiment, error) {
	return searchExperiments(ctx, newPoolQuerier(s.pool), querybuilder.Postgres, s.logger, nil, "", nil)
}

func (s *PostgresStore) SearchExperiments(ctx context.Context, maxResults *int64, filterString string, orderBy []string) ([]trackserver.Experiment, error) {
	return searchExperiments(ctx, newPoolQuerier(s.pool), querybuilder.Postgres, s.logger, maxResults, filterString, orderBy)
}

func (s *PostgresStore) GetExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return getExperiment(ctx, newPoolQuerier(s.pool), experimentID)
}

func getExperiment(ctx context.Context, q querier, experimentID string) (trackserver.Experiment, error) {
	var exp experimentRow
	row := q.QueryRow(ctx, "SELECT experiment_id, name, artifact_location, lifecycle_stage FROM experiments WHERE experiment_id = "+q.Placeholder(1), experimentID)
	if err := row.Scan(&exp.experimentID, &exp.name, &exp.artifactLocation, &exp.lifecycleStage); err != nil {
		if isNoRows(err) {
			return trackserver.Experiment{}, trackserver.NewNotFound(trackserver.CodeExperimentNotFound, "experiment not found", trackserver.EntityRef{Kind: "experiment", ID: experimentID})
		}
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to get experiment", err)
	}

	entity := exp.toEntity()
	assembled, err := assembleExperimentTags(ctx, q, []trackserver.Experiment{entity})
	if err != nil {
		return trackserver.Experiment{}, err
	}
	return assembled[0], nil
}

// CreateExperiment follows §4.4's two-write transaction: INSERT with an
// empty artifact_location, capture the allocated id, UPDATE to
// {default_artifact_root}/{id} (or to the caller's artifact_location when a
// non-empty one is given), then insert any tags — all in one
// transaction, grounded on the teacher's CreatePersistentRecord pattern
// (BeginTx, deferred Rollback, explicit Commit).
func (s *PostgresStore) CreateExperiment(ctx context.Context, name string, artifactLocation *string, tags []trackserver.ExperimentTag) (trackserver.Experiment, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	q := newTxQuerier(tx)

	var experimentID int64
	row := q.QueryRow(ctx, "INSERT INTO experiments (name, artifact_location, lifecycle_stage) VALUES ("+q.Placeholder(1)+", '', "+q.Placeholder(2)+") RETURNING experiment_id", name, string(trackserver.LifecycleActive))
	if err := row.Scan(&experimentID); err != nil {
		if isUniqueViolation(err) {
			return trackserver.Experiment{}, trackserver.NewConflict(trackserver.CodeDuplicateName, "experiment name already exists")
		}
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to insert experiment", err)
	}

	idStr := strconv.FormatInt(experimentID, 10)
	loc := artifact.Join(s.root, idStr)
	if artifactLocation != nil && *artifactLocation != "" {
		loc = *artifactLocation
	}
	if err := q.Exec(ctx, "UPDATE experiments SET artifact_location = "+q.Placeholder(1)+" WHERE experiment_id = "+q.Placeholder(2), loc, experimentID); err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to set artifact_location", err)
	}

	if len(tags) > 0 {
		if err := insertExperimentTagsMultiRow(ctx, q, idStr, tags); err != nil {
			return trackserver.Experiment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
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

// insertExperimentTagsMultiRow inserts all tags in one multi-row INSERT
// (§4.4: "insert them in the same transaction in a single multi-row
// INSERT"), rejecting duplicate keys in the caller's payload up front since
// tags are a set keyed by key (§3).
func insertExperimentTagsMultiRow(ctx context.Context, q querier, experimentID string, tags []trackserver.ExperimentTag) error {
	seen := make(map[string]bool, len(tags))
	valuePlaceholders := make([]string, 0, len(tags))
	args := make([]any, 0, len(tags)*3)
	for _, tag := range tags {
		if seen[tag.Key] {
			return trackserver.NewConflict(trackserver.CodeDuplicateTagKey, "duplicate tag key: "+tag.Key)
		}
		seen[tag.Key] = true

		base := len(args)
		valuePlaceholders = append(valuePlaceholders, "("+q.Placeholder(base+1)+", "+q.Placeholder(base+2)+", "+q.Placeholder(base+3)+")")
		args = append(args, experimentID, tag.Key, tag.Value)
	}

	sql := "INSERT INTO experiment_tags (experiment_id, key, value) VALUES " + strings.Join(valuePlaceholders, ", ")
	return q.Exec(ctx, sql, args...)
}

func (s *PostgresStore) DeleteExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return toggleLifecycle(ctx, newPoolQuerier(s.pool), experimentID, trackserver.LifecycleDeleted)
}

func (s *PostgresStore) RestoreExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return toggleLifecycle(ctx, newPoolQuerier(s.pool), experimentID, trackserver.LifecycleActive)
}

// toggleLifecycle implements delete/restore as lifecycle toggles that
// return the post-mutation row (§4.4).
func toggleLifecycle(ctx context.Context, q querier, experimentID string, stage trackserver.LifecycleStage) (trackserver.Experiment, error) {
	if err := q.Exec(ctx, "UPDATE experiments SET lifecycle_stage = "+q.Placeholder(1)+" WHERE experiment_id = "+q.Placeholder(2), string(stage), experimentID); err != nil {
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to update lifecycle_stage", err)
	}
	return getExperiment(ctx, q, experimentID)
}

func (s *PostgresStore) UpdateExperiment(ctx context.Context, experimentID string, newName string) (trackserver.Experiment, error) {
	q := newPoolQuerier(s.pool)
	if err := q.Exec(ctx, "UPDATE experiments SET name = "+q.Placeholder(1)+" WHERE experiment_id = "+q.Placeholder(2), newName, experimentID); err != nil {
		if isUniqueViolation(err) {
			return trackserver.Experiment{}, trackserver.NewConflict(trackserver.CodeDuplicateName, "experiment name already exists")
		}
		return trackserver.Experiment{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to rename experiment", err)
	}
	return getExperiment(ctx, q, experimentID)
}

func (s *PostgresStore) SearchRuns(ctx context.Context, experimentIDs []string) ([]trackserver.Run, error) {
	return searchRuns(ctx, newPoolQuerier(s.pool), experimentIDs)
}

func searchRuns(ctx context.Context, q querier, experimentIDs []string) ([]trackserver.Run, error) {
	if len(experimentIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(experimentIDs))
	args := make([]any, len(experimentIDs))
	for i, id := range experimentIDs {
		placeholders[i] = q.Placeholder(i + 1)
		args[i] = id
	}

	sql := "SELECT run_uuid, name, experiment_id, user_id, status, start_time, end_time, lifecycle_stage, artifact_uri " +
		"FROM runs WHERE experiment_id IN (" + strings.Join(placeholders, ", ") + ")"

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "search_runs query failed", err)
	}
	defer rows.Close()

	var runs []trackserver.Run
	for rows.Next() {
		var info trackserver.RunInfo
		var lifecycleStage string
		var experimentID int64
		if err := rows.Scan(&info.RunUUID, &info.Name, &experimentID, &info.UserID, &info.Status, &info.StartTime, &info.EndTime, &lifecycleStage, &info.ArtifactURI); err != nil {
			return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to scan run row", err)
		}
		info.ExperimentID = strconv.FormatInt(experimentID, 10)
		info.RunID = info.RunUUID
		info.LifecycleStage = trackserver.LifecycleStage(lifecycleStage)
		runs = append(runs, trackserver.Run{Info: info})
	}
	if err := rows.Err(); err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "error iterating run rows", err)
	}

	return assembleRunData(ctx, q, runs)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (trackserver.Run, error) {
	return getRun(ctx, newPoolQuerier(s.pool), runID)
}

func getRun(ctx context.Context, q querier, runID string) (trackserver.Run, error) {
	var info trackserver.RunInfo
	var lifecycleStage string
	var experimentID int64
	row := q.QueryRow(ctx, "SELECT run_uuid, name, experiment_id, user_id, status, start_time, end_time, lifecycle_stage, artifact_uri "+
		"FROM runs WHERE run_uuid = "+q.Placeholder(1), runID)
	if err := row.Scan(&info.RunUUID, &info.Name, &experimentID, &info.UserID, &info.Status, &info.StartTime, &info.EndTime, &lifecycleStage, &info.ArtifactURI); err != nil {
		if isNoRows(err) {
			return trackserver.Run{}, trackserver.NewNotFound(trackserver.CodeRunNotFound, "run not found", trackserver.EntityRef{Kind: "run", ID: runID})
		}
		return trackserver.Run{}, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to get run", err)
	}
	info.ExperimentID = strconv.FormatInt(experimentID, 10)
	info.RunID = info.RunUUID
	info.LifecycleStage = trackserver.LifecycleStage(lifecycleStage)

	runs, err := assembleRunData(ctx, q, []trackserver.Run{{Info: info}})
	if err != nil {
		return trackserver.Run{}, err
	}
	return runs[0], nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the signal CreateExperiment/UpdateExperiment
// translate into ErrConflict (§7).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

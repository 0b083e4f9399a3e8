package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretta-labs/trackserver"
)

// These tests mock the pool with pgxmock instead of a live database,
// mirroring the teacher's TestRunOptimizedQueryWithMockPool
// (postgres_persistent_repository_test.go): pgxmock.NewPool() is injected
// wherever the store would otherwise hold a *pgxpool.Pool, and every
// statement the store issues is matched against a regexp with typed
// WithArgs expectations.

func TestPostgresStore_GetExperiment_Found(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresStoreWithPool(mock, "/tmp/artifacts", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT experiment_id, name, artifact_location, lifecycle_stage FROM experiments WHERE experiment_id = $1")).
		WithArgs("5").
		WillReturnRows(pgxmock.NewRows([]string{"experiment_id", "name", "artifact_location", "lifecycle_stage"}).
			AddRow(int64(5), "my-experiment", "/tmp/artifacts/5", "active"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT experiment_id, key, value FROM experiment_tags WHERE experiment_id IN ($1)")).
		WithArgs("5").
		WillReturnRows(pgxmock.NewRows([]string{"experiment_id", "key", "value"}).
			AddRow("5", "owner", "alice"))

	exp, err := s.GetExperiment(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "5", exp.ExperimentID)
	assert.Equal(t, "my-experiment", exp.Name)
	assert.Equal(t, trackserver.LifecycleActive, exp.LifecycleStage)
	require.Len(t, exp.Tags, 1)
	assert.Equal(t, "owner", exp.Tags[0].Key)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetExperiment_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresStoreWithPool(mock, "/tmp/artifacts", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT experiment_id, name, artifact_location, lifecycle_stage FROM experiments WHERE experiment_id = $1")).
		WithArgs("99").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetExperiment(context.Background(), "99")
	require.Error(t, err)
	assert.True(t, trackserver.IsNotFound(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateExperiment_NoTags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresStoreWithPool(mock, "/tmp/artifacts", nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO experiments (name, artifact_location, lifecycle_stage) VALUES ($1, '', $2) RETURNING experiment_id")).
		WithArgs("my-experiment", "active").
		WillReturnRows(pgxmock.NewRows([]string{"experiment_id"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE experiments SET artifact_location = $1 WHERE experiment_id = $2")).
		WithArgs("/tmp/artifacts/7", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	exp, err := s.CreateExperiment(context.Background(), "my-experiment", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "7", exp.ExperimentID)
	assert.Equal(t, "/tmp/artifacts/7", exp.ArtifactLocation)
	assert.Equal(t, trackserver.LifecycleActive, exp.LifecycleStage)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateExperiment_DuplicateNameIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := newPostgresStoreWithPool(mock, "/tmp/artifacts", nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO experiments (name, artifact_location, lifecycle_stage) VALUES ($1, '', $2) RETURNING experiment_id")).
		WithArgs("dup", "active").
		WillReturnError(&fakePgError{code: "23505"})
	mock.ExpectRollback()

	_, err = s.CreateExperiment(context.Background(), "dup", nil, nil)
	require.Error(t, err)
	assert.True(t, trackserver.IsConflict(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

// fakePgError satisfies the unexported SQLState() interface isUniqueViolation
// type-asserts for, without depending on pgconn's concrete error type.
type fakePgError struct{ code string }

func (e *fakePgError) Error() string    { return "duplicate key value violates unique constraint" }
func (e *fakePgError) SQLState() string { return e.code }

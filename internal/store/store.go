// Package store implements trackserver.Store against two backends: a
// networked Postgres (or Postgres-wire-compatible DSQL) database and an
// embedded DuckDB file. Both variants share every query and every row-to-
// entity assembly step; only connection acquisition and the query
// builder's dialect differ (§4.4, §9 "Polymorphic store").
package store

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/internal/querybuilder"
	"github.com/caretta-labs/trackserver/internal/validate"
)

// querier is the minimal surface both *pgxpool.Pool/pgx.Tx and the DuckDB
// driver's *sql.DB/*sql.Tx satisfy once wrapped; it mirrors the teacher's
// queryPool seam in factory/factory.go so tests can inject a mock.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (rowsIterator, error)
	QueryRow(ctx context.Context, sql string, args ...any) rowScanner
	Exec(ctx context.Context, sql string, args ...any) error
	// Placeholder renders the i'th (1-based) bound-parameter placeholder in
	// this backend's dialect: "$i" for Postgres, "?" for DuckDB.
	Placeholder(i int) string
}

type rowsIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// searchExperiments is shared by both backends: parse/validate the filter
// and order-by, build the dialect-specific SQL, execute it, and assemble
// rows into Experiment records. Each backend supplies q and dialect.
func searchExperiments(ctx context.Context, q querier, dialect querybuilder.Dialect, logger *zap.Logger, maxResults *int64, filterString string, orderBy []string) ([]trackserver.Experiment, error) {
	comparisons, err := validate.ParseAndValidateFilter(filterString)
	if err != nil {
		return nil, err
	}
	clauses, err := validate.ParseAndValidateOrderBy(orderBy)
	if err != nil {
		return nil, err
	}

	limit := int64(-1)
	if maxResults != nil {
		limit = *maxResults
	}

	query, err := querybuilder.BuildSearchExperiments(comparisons, clauses, limit, dialect)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryBuildFailed, "failed to build search query", err)
	}

	if logger != nil {
		logger.Debug("executing search_experiments query", zap.String("sql", query.SQL))
	}

	rows, err := q.Query(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "search_experiments query failed", err)
	}
	defer rows.Close()

	var experiments []trackserver.Experiment
	for rows.Next() {
		var exp experimentRow
		if err := rows.Scan(&exp.experimentID, &exp.name, &exp.artifactLocation, &exp.lifecycleStage); err != nil {
			return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to scan experiment row", err)
		}
		experiments = append(experiments, exp.toEntity())
	}
	if err := rows.Err(); err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "error iterating experiment rows", err)
	}

	return assembleExperimentTags(ctx, q, experiments)
}

// experimentRow mirrors the experiments table's column order in §6's
// schema listing.
type experimentRow struct {
	experimentID     int64
	name             string
	artifactLocation string
	lifecycleStage   string
}

func (r experimentRow) toEntity() trackserver.Experiment {
	return trackserver.Experiment{
		ExperimentID:     strconv.FormatInt(r.experimentID, 10),
		Name:             r.name,
		ArtifactLocation: r.artifactLocation,
		LifecycleStage:   trackserver.LifecycleStage(r.lifecycleStage),
	}
}

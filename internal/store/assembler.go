package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/caretta-labs/trackserver"
)

// assembleExperimentTags fetches every tag row for the given page of
// experiments in a single batched query and merges them in (§4.5: "a
// faithful implementation may batch these into a single query per page").
func assembleExperimentTags(ctx context.Context, q querier, experiments []trackserver.Experiment) ([]trackserver.Experiment, error) {
	if len(experiments) == 0 {
		return experiments, nil
	}

	ids := make([]string, len(experiments))
	byID := make(map[string]int, len(experiments))
	for i, exp := range experiments {
		ids[i] = exp.ExperimentID
		byID[exp.ExperimentID] = i
	}

	sql := fmt.Sprintf("SELECT experiment_id, key, value FROM experiment_tags WHERE experiment_id IN (%s)", inPlaceholders(q, len(ids)))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to fetch experiment tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var experimentID, key, value string
		if err := rows.Scan(&experimentID, &key, &value); err != nil {
			return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to scan experiment tag row", err)
		}
		idx, ok := byID[experimentID]
		if !ok {
			continue
		}
		experiments[idx].Tags = append(experiments[idx].Tags, trackserver.ExperimentTag{
			ExperimentID: experimentID,
			Key:          key,
			Value:        value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeQueryExecFailed, "error iterating experiment tag rows", err)
	}

	return experiments, nil
}

// assembleRunData fetches params, metrics, and tags for the given page of
// runs in three batched queries (one per side table) and merges them in.
// Metrics are append-only; only the latest value per (run_uuid, key) is
// surfaced, mirroring the schema's latest_metrics table (§6).
func assembleRunData(ctx context.Context, q querier, runs []trackserver.Run) ([]trackserver.Run, error) {
	if len(runs) == 0 {
		return runs, nil
	}

	ids := make([]string, len(runs))
	byID := make(map[string]int, len(runs))
	for i, run := range runs {
		ids[i] = run.Info.RunUUID
		byID[run.Info.RunUUID] = i
	}

	if err := assembleParams(ctx, q, runs, ids, byID); err != nil {
		return nil, err
	}
	if err := assembleMetrics(ctx, q, runs, ids, byID); err != nil {
		return nil, err
	}
	if err := assembleRunTags(ctx, q, runs, ids, byID); err != nil {
		return nil, err
	}
	return runs, nil
}

func assembleParams(ctx context.Context, q querier, runs []trackserver.Run, ids []string, byID map[string]int) error {
	sql := fmt.Sprintf("SELECT run_uuid, key, value FROM params WHERE run_uuid IN (%s)", inPlaceholders(q, len(ids)))
	rows, err := q.Query(ctx, sql, toArgs(ids)...)
	if err != nil {
		return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to fetch run params", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runUUID, key, value string
		if err := rows.Scan(&runUUID, &key, &value); err != nil {
			return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to scan param row", err)
		}
		if idx, ok := byID[runUUID]; ok {
			runs[idx].Data.Params = append(runs[idx].Data.Params, trackserver.Param{Key: key, Value: value})
		}
	}
	return rows.Err()
}

func assembleMetrics(ctx context.Context, q querier, runs []trackserver.Run, ids []string, byID map[string]int) error {
	sql := fmt.Sprintf("SELECT run_uuid, key, value, timestamp, step FROM latest_metrics WHERE run_uuid IN (%s)", inPlaceholders(q, len(ids)))
	rows, err := q.Query(ctx, sql, toArgs(ids)...)
	if err != nil {
		return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to fetch run metrics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runUUID, key string
		var value float64
		var timestamp, step int64
		if err := rows.Scan(&runUUID, &key, &value, &timestamp, &step); err != nil {
			return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to scan metric row", err)
		}
		if idx, ok := byID[runUUID]; ok {
			runs[idx].Data.Metrics = append(runs[idx].Data.Metrics, trackserver.Metric{
				Key: key, Value: value, Timestamp: timestamp, Step: step,
			})
		}
	}
	return rows.Err()
}

func assembleRunTags(ctx context.Context, q querier, runs []trackserver.Run, ids []string, byID map[string]int) error {
	sql := fmt.Sprintf("SELECT run_uuid, key, value FROM tags WHERE run_uuid IN (%s)", inPlaceholders(q, len(ids)))
	rows, err := q.Query(ctx, sql, toArgs(ids)...)
	if err != nil {
		return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to fetch run tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runUUID, key, value string
		if err := rows.Scan(&runUUID, &key, &value); err != nil {
			return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to scan run tag row", err)
		}
		if idx, ok := byID[runUUID]; ok {
			runs[idx].Data.Tags = append(runs[idx].Data.Tags, trackserver.RunTag{Key: key, Value: value})
		}
	}
	return rows.Err()
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// inPlaceholders renders n bound-parameter placeholders in q's dialect,
// comma-joined, for an IN (...) list.
func inPlaceholders(q querier, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = q.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

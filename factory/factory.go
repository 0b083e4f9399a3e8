// Package factory builds a trackserver.Store from a backend store URI,
// dispatching on URI scheme the way the original Rust implementation's
// get_store does (stores/tracking/mod.rs), generalised here to the two
// backends this module supports (postgresql, duckdb) instead of the
// original's (postgresql, sqlite). Pool/connection wiring style — pgxpool
// construction, zap logging at each step — is grounded on the teacher's
// factory.NewEntityManagerWithConfig (factory/factory.go).
package factory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/internal/artifact"
	"github.com/caretta-labs/trackserver/internal/store"
)

// NewStore opens the backend named by config.BackendStoreURI's scheme and
// returns a ready-to-use Store. Callers must call Teardown on every exit
// path (§5).
func NewStore(ctx context.Context, config *trackserver.Config, logger *zap.Logger) (trackserver.Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := artifact.ValidateRoot(ctx, config.DefaultArtifactRoot); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(config.BackendStoreURI)
	if err != nil {
		return nil, trackserver.NewInvalidParameter(trackserver.CodeUnsupportedScheme, "malformed backend store uri: "+err.Error())
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgresql", "postgres":
		return newPostgresStore(ctx, parsed, config, logger)
	case "duckdb":
		return newDuckDBStore(ctx, parsed, config, logger)
	default:
		return nil, trackserver.NewInvalidParameter(trackserver.CodeUnsupportedScheme, fmt.Sprintf("unsupported backend store uri scheme: %q", parsed.Scheme))
	}
}

func newPostgresStore(ctx context.Context, parsed *url.URL, config *trackserver.Config, logger *zap.Logger) (trackserver.Store, error) {
	connString, err := connStringForPostgres(ctx, parsed)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to parse postgres connection string", err)
	}

	poolConfig.MaxConns = int32(config.Database.MaxConnections)
	poolConfig.MinConns = int32(config.Database.MinConnections)
	poolConfig.MaxConnLifetime = config.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.Database.ConnMaxIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, config.Database.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to open postgres connection pool", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to ping postgres", err)
	}

	if logger != nil {
		logger.Info("opened postgres store", zap.String("host", parsed.Hostname()))
	}

	return store.NewPostgresStore(pool, config.DefaultArtifactRoot, logger), nil
}

// connStringForPostgres returns parsed as-is unless its query carries
// "auth=iam", in which case the static password (if any) is discarded and
// replaced with a freshly generated DSQL auth token (store.IAMAuthConnString),
// for Postgres-wire-compatible endpoints such as Aurora DSQL that accept
// short-lived IAM tokens in place of a password.
func connStringForPostgres(ctx context.Context, parsed *url.URL) (string, error) {
	if parsed.Query().Get("auth") != "iam" {
		return parsed.String(), nil
	}

	port := 5432
	if p := parsed.Port(); p != "" {
		if parsedPort, err := strconv.Atoi(p); err == nil {
			port = parsedPort
		}
	}

	user := ""
	if parsed.User != nil {
		user = parsed.User.Username()
	}
	dbname := strings.TrimPrefix(parsed.Path, "/")
	region := parsed.Query().Get("region")

	return store.IAMAuthConnString(ctx, parsed.Hostname(), port, user, dbname, region)
}

func newDuckDBStore(ctx context.Context, parsed *url.URL, config *trackserver.Config, logger *zap.Logger) (trackserver.Store, error) {
	path := parsed.Opaque
	if path == "" {
		path = strings.TrimPrefix(parsed.Path, "/")
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.Database.ConnectTimeout)
	defer cancel()

	duckStore, err := store.OpenDuckDBStore(connectCtx, path, config.DefaultArtifactRoot, logger)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("opened duckdb store", zap.String("path", path))
	}

	return duckStore, nil
}

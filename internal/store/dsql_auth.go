package store

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"

	"github.com/caretta-labs/trackserver"
)

// IAMAuthConnString builds a pgx connection string authenticated with a
// short-lived IAM token instead of a static password, for a
// Postgres-wire-compatible endpoint such as Aurora DSQL (§6: "a backend
// store URI (scheme selects the backend)" — the postgresql scheme accepts
// an "?auth=iam" query parameter selecting this path). Grounded on the
// teacher's CDC flusher (internal/cdc/flusher.go), which generates the
// same token via auth.GenerateDbConnectAuthToken ahead of a sql.Open call;
// this generalises that one-off flusher connection into a reusable
// connection-string builder for the pool factory.
func IAMAuthConnString(ctx context.Context, host string, port int, user, dbname, region string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to load aws config for dsql iam auth", err)
	}
	if region != "" {
		awsCfg.Region = region
	}

	endpoint := fmt.Sprintf("%s:%d", host, port)
	token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
	if err != nil {
		return "", trackserver.NewStorage(trackserver.CodeTransactionFailed, "failed to generate dsql iam auth token", err)
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=require", host, port, user, token, dbname), nil
}

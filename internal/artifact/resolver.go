// Package artifact resolves and validates artifact_location roots. Per
// scope, the core never uploads or downloads artifact bytes (§1
// Non-goals: "artifact storage (the system only records artifact URIs)");
// this package only validates that a configured root is reachable before
// the store starts synthesising locations under it.
package artifact

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/caretta-labs/trackserver"
)

// Join appends a path segment (typically an experiment or run id) onto a
// root, using filepath semantics for local roots and plain string
// concatenation for URI roots (an s3:// key is not a filesystem path).
func Join(root, segment string) string {
	if strings.Contains(root, "://") {
		return strings.TrimSuffix(root, "/") + "/" + segment
	}
	return filepath.Join(root, segment)
}

// ValidateRoot checks that a configured default_artifact_root is reachable
// before the server starts accepting create_experiment calls. Local paths
// are accepted unconditionally (directory creation is the caller's
// responsibility, same as the teacher's file-based schema directory
// handling); s3:// roots are validated with a HeadBucket call, grounded on
// the teacher's ValidateS3Config/S3HealthCheck pair (internal/s3_health.go)
// generalised from an HTTP ping to a real AWS SDK call against the actual
// artifact bucket.
func ValidateRoot(ctx context.Context, root string) error {
	bucket, ok := s3Bucket(root)
	if !ok {
		return nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return trackserver.NewStorage(trackserver.CodeQueryExecFailed, "failed to load aws config for artifact root validation", err)
	}
	client := s3.NewFromConfig(awsCfg)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket}); err != nil {
		return trackserver.NewStorage(trackserver.CodeQueryExecFailed, fmt.Sprintf("artifact root bucket %q is not reachable", bucket), err)
	}
	return nil
}

// s3Bucket extracts the bucket name from an "s3://bucket/prefix" root.
func s3Bucket(root string) (string, bool) {
	const scheme = "s3://"
	if !strings.HasPrefix(root, scheme) {
		return "", false
	}
	rest := strings.TrimPrefix(root, scheme)
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

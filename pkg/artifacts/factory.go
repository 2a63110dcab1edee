package artifacts

import (
	"context"
	"fmt"
)

// SinkConfig selects and configures an archive sink backend.
type SinkConfig struct {
	Backend string `yaml:"backend"` // "fs", "s3", or "gcs"
	Dir     string `yaml:"dir"`     // fs: target directory
	Bucket  string `yaml:"bucket"`  // s3/gcs
	Region  string `yaml:"region"`  // s3
	Prefix  string `yaml:"prefix"`  // s3/gcs: optional key prefix
}

// NewSink builds the configured sink. An empty backend means no offsite
// copy; callers get a nil Sink and should skip the upload step.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "fs":
		return NewFSSink(cfg.Dir)
	case "s3":
		return NewS3Sink(ctx, S3Config{
			Bucket: cfg.Bucket,
			Region: cfg.Region,
			Prefix: cfg.Prefix,
		})
	case "gcs":
		return newGCSSink(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("artifacts: unknown sink backend %q", cfg.Backend)
	}
}

//go:build gcp

package artifacts

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/clawdbot/sentinel/pkg/hashio"
)

// GCSSink uploads audit bundle archives to a Google Cloud Storage bucket,
// keyed by the archive's content hash.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCSSink.
type GCSConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSSink creates a GCS-backed archive sink using ADC credentials.
func NewGCSSink(ctx context.Context, cfg GCSConfig) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Store uploads data and returns a gs:// reference. An object already
// present under the same hash is not re-uploaded.
func (s *GCSSink) Store(ctx context.Context, data []byte) (string, error) {
	hash := strings.TrimPrefix(hashio.HashBytes(data), hashio.HashPrefix)
	objectPath := s.prefix + hash + ".tar.gz"
	ref := "gs://" + s.bucket + "/" + objectPath

	obj := s.client.Bucket(s.bucket).Object(objectPath)
	if _, err := obj.Attrs(ctx); err == nil {
		return ref, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/gzip"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("artifacts: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("artifacts: gcs close: %w", err)
	}
	return ref, nil
}

// Close closes the underlying GCS client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}

func newGCSSink(ctx context.Context, bucket, prefix string) (Sink, error) {
	return NewGCSSink(ctx, GCSConfig{Bucket: bucket, Prefix: prefix})
}

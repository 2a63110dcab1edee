//go:build !gcp

package artifacts

import (
	"context"
	"errors"
)

// GCS support is behind the "gcp" build tag so the default build does not
// pull in the Google Cloud SDK.
func newGCSSink(_ context.Context, _, _ string) (Sink, error) {
	return nil, errors.New("artifacts: gcs sink requires building with -tags gcp")
}

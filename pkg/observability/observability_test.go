package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdbot/sentinel/pkg/observability"
)

// A disabled provider must be fully usable: every recording method is a
// no-op and shutdown is clean. This is the default deployment shape.
func TestDisabledProvider_IsUsableNoOp(t *testing.T) {
	ctx := context.Background()

	p, err := observability.New(ctx, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		p.RecordDecision(ctx, "POLICY_ALLOW", true)
		p.RecordDecision(ctx, "CONFIDENCE_TOO_LOW", false)
		p.RecordGuardViolation(ctx, "fp-1")
		p.RecordExportDuration(ctx, 250*time.Millisecond, true)
	})

	spanCtx, span := p.StartSpan(ctx, "audit.export")
	assert.NotNil(t, spanCtx)
	span.End()

	assert.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig_TelemetryOff(t *testing.T) {
	cfg := observability.DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "sentinel", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestExplicitDisabledConfig(t *testing.T) {
	cfg := observability.DefaultConfig()
	cfg.Enabled = false
	cfg.OTLPEndpoint = "collector.internal:4317"

	p, err := observability.New(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
}

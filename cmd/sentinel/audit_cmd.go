package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/clawdbot/sentinel/pkg/approval"
	"github.com/clawdbot/sentinel/pkg/artifacts"
	"github.com/clawdbot/sentinel/pkg/audit"
	"github.com/clawdbot/sentinel/pkg/config"
	"github.com/clawdbot/sentinel/pkg/receipts"
)

// runAuditExportCmd implements `sentinel audit export`.
//
// Exit codes:
//
//	0 = bundle written
//	2 = usage error
//	1 = runtime error
func runAuditExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var noRedact bool
	cmd.BoolVar(&noRedact, "no-redact", false, "Disable secret redaction (bundle leaves machine as-is)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: sentinel audit export <execution_id> [--no-redact]")
		return 2
	}
	executionID := cmd.Arg(0)

	cfg := config.Load()
	logger := newLogger(cfg, stderr)
	ctx := context.Background()

	obs, err := newObservability(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	receiptPath, err := ensureDataDir(cfg, "receipts.db")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	receiptLog, err := receipts.OpenSQLiteLog(receiptPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = receiptLog.Close() }()

	approvalPath, err := ensureDataDir(cfg, "approvals.db")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	approvals, err := approval.OpenSQLiteStore(approvalPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = approvals.Close() }()

	sink, err := artifacts.NewSink(ctx, artifacts.SinkConfig{
		Backend: cfg.SinkBackend,
		Dir:     cfg.SinkDir,
		Bucket:  cfg.SinkBucket,
		Region:  cfg.SinkRegion,
		Prefix:  cfg.SinkPrefix,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	exporter := audit.NewExporter(receiptLog, approvals, cfg.ArtifactsDir, cfg.OutDir, sink, logger)
	opts := audit.DefaultOptions()
	opts.Redact = !noRedact

	spanCtx, span := obs.StartSpan(ctx, "audit.export")
	start := time.Now()
	result, err := exporter.Export(spanCtx, executionID, opts)
	obs.RecordExportDuration(spanCtx, time.Since(start), err == nil)
	span.End()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: export failed: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "audit export ok=%t bundle=%s archive=%s files_hashed=%d redacted=%t\n",
		true, result.Dir, result.ArchivePath, result.FilesHashed, result.Redacted)
	if result.OffsiteRef != "" {
		_, _ = fmt.Fprintf(stdout, "offsite=%s\n", result.OffsiteRef)
	}
	return 0
}

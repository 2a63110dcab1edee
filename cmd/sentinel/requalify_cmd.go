package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/clawdbot/sentinel/pkg/autonomy"
	"github.com/clawdbot/sentinel/pkg/config"
)

// runRequalifyCmd implements `sentinel requalify`.
//
// Exit codes:
//
//	0 = fingerprint restored to ELIGIBLE
//	2 = usage error
//	1 = requalification refused or runtime error
func runRequalifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("requalify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var operator string
	cmd.StringVar(&operator, "operator", "", "Operator identity authorizing the requalification (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 || operator == "" {
		_, _ = fmt.Fprintln(stderr, "Usage: sentinel requalify <fingerprint> --operator <id>")
		return 2
	}
	fingerprintID := cmd.Arg(0)

	cfg := config.Load()
	logger := newLogger(cfg, stderr)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	storePath, err := ensureDataDir(cfg, "fingerprints.db")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	store, err := autonomy.OpenSQLiteStore(storePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	tracker, err := autonomy.NewTracker(store, profile.Autonomy, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fp, err := tracker.Requalify(context.Background(), fingerprintID, operator)
	if errors.Is(err, autonomy.ErrFingerprintNotFound) {
		_, _ = fmt.Fprintf(stderr, "Error: unknown fingerprint %q\n", fingerprintID)
		return 1
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: requalify refused: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "requalify ok=true fingerprint=%s state=%s confidence=%.2f clean_runs=%d\n",
		fp.ID, fp.State, fp.Confidence, fp.CleanRuns)
	return 0
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/clawdbot/sentinel/pkg/config"
	"github.com/clawdbot/sentinel/pkg/crypto"
	"github.com/clawdbot/sentinel/pkg/freeze"
)

// runFreezeCmd implements `sentinel freeze`.
//
// Exit codes:
//
//	0 = lock written
//	2 = usage error, or dirty worktree without --allow-dirty
//	1 = runtime error
func runFreezeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("freeze", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		allowDirty bool
		root       string
	)
	cmd.BoolVar(&allowDirty, "allow-dirty", false, "Freeze even with uncommitted changes")
	cmd.StringVar(&root, "root", ".", "Repository root to freeze")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	engine, ret := newFreezeEngine(root, stderr)
	if engine == nil {
		return ret
	}

	lock, err := engine.Freeze(context.Background(), freeze.Options{AllowDirty: allowDirty})
	if errors.Is(err, freeze.ErrDirtyWorktree) {
		_, _ = fmt.Fprintln(stderr, "Error: worktree has uncommitted changes (use --allow-dirty to override)")
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: freeze failed: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "freeze ok=true files=%d root_hash=%s bundle=%s dirty=%t\n",
		len(lock.Files), lock.RootHash, lock.Bundle.Filename, lock.VCSDirty)
	return 0
}

// runFreezeVerifyCmd implements `sentinel freeze-verify`.
//
// Exit codes:
//
//	0 = tree matches the lock, or no lock exists
//	3 = drift detected
//	1 = runtime error
func runFreezeVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("freeze-verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var root string
	cmd.StringVar(&root, "root", ".", "Repository root to verify")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	engine, ret := newFreezeEngine(root, stderr)
	if engine == nil {
		return ret
	}

	report, err := engine.Verify()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: freeze verify failed: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintln(stdout, report.ResultLine())
	for _, d := range report.Drifts {
		_, _ = fmt.Fprintf(stdout, "  %s\n", d)
	}
	if !report.OK {
		return 3
	}
	return 0
}

func newFreezeEngine(root string, stderr io.Writer) (*freeze.Engine, int) {
	cfg := config.Load()

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 1
	}

	keyPath, err := ensureDataDir(cfg, "signing.key")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 1
	}
	signer, err := crypto.LoadEd25519Signer(keyPath, "freeze")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load signing key: %v\n", err)
		return nil, 1
	}

	return freeze.NewEngine(root, profile.FreezeScope, signer), 0
}

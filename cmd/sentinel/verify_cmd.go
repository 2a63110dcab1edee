package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/clawdbot/sentinel/pkg/verifier"
)

// runVerifyCmd implements `sentinel verify`.
//
// Exit codes:
//
//	0 = bundle verified
//	3 = verification failed (missing, mismatched, or strict-mode extras)
//	2 = usage error
//	1 = internal error (unreadable manifest)
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		strict     bool
		jsonOutput bool
	)
	cmd.BoolVar(&strict, "strict", false, "Fail on files present in the bundle but absent from the manifest")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the full report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: sentinel verify <bundle_dir> [--strict] [--json]")
		return 2
	}

	report, err := verifier.VerifyBundle(cmd.Arg(0), strict)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintln(stdout, report.ResultLine())
		if diag := report.Diagnostics(); diag != "" {
			_, _ = fmt.Fprint(stdout, diag)
		}
	}

	if !report.OK {
		return 3
	}
	return 0
}

package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "audit":
		if len(args) < 3 || args[2] != "export" {
			_, _ = fmt.Fprintln(stderr, "Usage: sentinel audit export <execution_id> [--no-redact]")
			return 2
		}
		return runAuditExportCmd(args[3:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "freeze":
		return runFreezeCmd(args[2:], stdout, stderr)
	case "freeze-verify":
		return runFreezeVerifyCmd(args[2:], stdout, stderr)
	case "requalify":
		return runRequalifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `sentinel - trust layer for autonomous task execution

Usage:
  sentinel audit export <execution_id> [--no-redact]   Export an audit bundle
  sentinel verify <bundle_dir> [--strict] [--json]     Verify a bundle offline
  sentinel freeze [--allow-dirty]                      Freeze governed files
  sentinel freeze-verify                               Verify the freeze lock
  sentinel requalify <fingerprint> --operator <id>     Requalify a fingerprint
  sentinel help                                        Show this help

Environment:
  SENTINEL_DATA_DIR       State directory (default "data")
  SENTINEL_ARTIFACTS_DIR  Per-execution evidence directory (default "artifacts")
  SENTINEL_OUT_DIR        Bundle output directory (default "out")
  SENTINEL_PROFILE        Governance profile YAML path
  SENTINEL_SINK_BACKEND   Offsite archive sink: fs, s3, or gcs
`)
}

package audit

// embeddedVerifier is a self-contained verification program copied into
// every bundle so an auditor can check integrity with nothing but a Go
// toolchain, with no dependency on the rest of this codebase.
const embeddedVerifier = `//go:build ignore

// Standalone audit bundle verifier.
//
// Usage: go run verify.go [-strict] <bundle_dir>
//
// Recomputes the SHA-256 of every file listed in manifest.json and
// compares. Exit 0 when everything matches, 3 when integrity is broken,
// 2 on usage error.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	strict := flag.Bool("strict", false, "report files not listed in the manifest")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: go run verify.go [-strict] <bundle_dir>")
		os.Exit(2)
	}
	dir := flag.Arg(0)

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read manifest: %v\n", err)
		os.Exit(2)
	}
	var manifest map[string]string
	if err := json.Unmarshal(raw, &manifest); err != nil {
		fmt.Fprintf(os.Stderr, "manifest is not valid JSON: %v\n", err)
		os.Exit(2)
	}

	var missing, mismatched, extra []string
	checked := 0
	for rel, expected := range manifest {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			missing = append(missing, rel)
			continue
		}
		sum := sha256.Sum256(data)
		if "sha256:"+hex.EncodeToString(sum[:]) != expected {
			mismatched = append(mismatched, rel)
			continue
		}
		checked++
	}

	if *strict {
		filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
			rel, _ := filepath.Rel(dir, path)
			rel = filepath.ToSlash(rel)
			if rel == "manifest.json" {
				return nil
			}
			if _, ok := manifest[rel]; !ok {
				extra = append(extra, rel)
			}
			return nil
		})
	}

	ok := len(missing) == 0 && len(mismatched) == 0 && len(extra) == 0
	fmt.Printf("verify ok=%t checked=%d missing=%d mismatched=%d extra=%d\n",
		ok, checked, len(missing), len(mismatched), len(extra))
	for _, p := range missing {
		fmt.Printf("missing: %s\n", p)
	}
	for _, p := range mismatched {
		fmt.Printf("mismatched: %s\n", p)
	}
	for _, p := range extra {
		fmt.Printf("extra: %s\n", p)
	}
	if !ok {
		os.Exit(3)
	}
}
`

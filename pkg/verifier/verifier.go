// Package verifier provides offline audit bundle verification.
//
// This package is intentionally minimal with ZERO dependencies outside the
// standard library. It is designed to be buildable and auditable as a
// standalone verification tool that an adversarial third party can trust:
// given only a bundle directory, it recomputes every hash in the manifest
// and compares. It does NOT trust the exporter, the server, or any network
// service.
package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ManifestName is the manifest's filename inside a bundle. The manifest
// never lists itself.
const ManifestName = "manifest.json"

// VerifierVersion is stamped into reports.
const VerifierVersion = "1.0.0"

// Report is the structured output of one verification run. Verifying the
// same unmodified bundle twice yields identical results apart from the
// timestamp.
type Report struct {
	Bundle     string    `json:"bundle"`
	OK         bool      `json:"ok"`
	Strict     bool      `json:"strict"`
	Checked    int       `json:"checked"`
	Missing    []string  `json:"missing"`
	Mismatched []string  `json:"mismatched"`
	Extra      []string  `json:"extra"`
	Errors     []string  `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"verifier_version"`
}

// ResultLine renders the one-line machine-parseable summary printed by the
// CLI.
func (r *Report) ResultLine() string {
	return fmt.Sprintf("verify ok=%t checked=%d missing=%d mismatched=%d extra=%d errors=%d",
		r.OK, r.Checked, len(r.Missing), len(r.Mismatched), len(r.Extra), len(r.Errors))
}

// VerifyBundle recomputes the hash of every file listed in the bundle's
// manifest and compares. In strict mode, files present on disk but absent
// from the manifest are reported as extra; outside strict mode they are
// ignored. The error return is reserved for unreadable bundles (no
// manifest, invalid JSON); integrity findings land in the report.
func VerifyBundle(bundleDir string, strict bool) (*Report, error) {
	report := &Report{
		Bundle:     bundleDir,
		Strict:     strict,
		Missing:    []string{},
		Mismatched: []string{},
		Extra:      []string{},
		Errors:     []string{},
		Timestamp:  time.Now().UTC(),
		Version:    VerifierVersion,
	}

	manifestPath := filepath.Join(bundleDir, ManifestName)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("verifier: cannot read manifest: %w", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("verifier: manifest is not valid JSON: %w", err)
	}
	if _, ok := manifest[ManifestName]; ok {
		return nil, fmt.Errorf("verifier: manifest must not list itself")
	}

	paths := make([]string, 0, len(manifest))
	for p := range manifest {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		expected := manifest[rel]
		data, err := os.ReadFile(filepath.Join(bundleDir, filepath.FromSlash(rel)))
		if os.IsNotExist(err) {
			report.Missing = append(report.Missing, rel)
			continue
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		sum := sha256.Sum256(data)
		actual := "sha256:" + hex.EncodeToString(sum[:])
		if actual != expected {
			report.Mismatched = append(report.Mismatched, rel)
			continue
		}
		report.Checked++
	}

	if strict {
		extra, err := findExtra(bundleDir, manifest)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
		report.Extra = extra
	}

	report.OK = len(report.Missing) == 0 &&
		len(report.Mismatched) == 0 &&
		len(report.Errors) == 0 &&
		(!strict || len(report.Extra) == 0)
	return report, nil
}

// findExtra walks the bundle and returns files not listed in the manifest,
// excluding the manifest itself.
func findExtra(bundleDir string, manifest map[string]string) ([]string, error) {
	extra := []string{}
	err := filepath.Walk(bundleDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(bundleDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestName {
			return nil
		}
		if _, ok := manifest[rel]; !ok {
			extra = append(extra, rel)
		}
		return nil
	})
	if err != nil {
		return extra, fmt.Errorf("verifier: walk bundle: %w", err)
	}
	sort.Strings(extra)
	return extra, nil
}

// Diagnostics renders human-readable findings, one per line, for verbose
// output. Empty when the report is clean.
func (r *Report) Diagnostics() string {
	var b strings.Builder
	for _, p := range r.Missing {
		fmt.Fprintf(&b, "missing: %s\n", p)
	}
	for _, p := range r.Mismatched {
		fmt.Fprintf(&b, "mismatched: %s\n", p)
	}
	for _, p := range r.Extra {
		fmt.Fprintf(&b, "extra: %s\n", p)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return b.String()
}

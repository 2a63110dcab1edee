// Package audit assembles all artifacts belonging to one execution into a
// self-contained, hashed bundle: receipt, approval record (or an explicit
// absence marker), the approved plan, policy summary, prestate snapshots,
// and adapter artifacts. The bundle carries a manifest over its own final
// bytes and a deterministic archive, and can be verified offline by
// pkg/verifier or the embedded standalone verifier.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clawdbot/sentinel/pkg/approval"
	"github.com/clawdbot/sentinel/pkg/hashio"
	"github.com/clawdbot/sentinel/pkg/policy"
	"github.com/clawdbot/sentinel/pkg/receipts"
)

// ArchiveSink optionally receives the finished archive for offsite
// retention (object storage).
type ArchiveSink interface {
	Store(ctx context.Context, data []byte) (string, error)
}

// Options tune one export.
type Options struct {
	// Redact strips secret-shaped values before hashing. Defaults to on;
	// disabling it is an explicit, logged choice.
	Redact bool
}

// DefaultOptions returns the redact-on defaults.
func DefaultOptions() Options {
	return Options{Redact: true}
}

// Result describes a finished export.
type Result struct {
	Dir         string `json:"dir"`
	ArchivePath string `json:"archive_path"`
	ArchiveHash string `json:"archive_hash"`
	FilesHashed int    `json:"files_hashed"`
	Redacted    bool   `json:"redacted"`
	OffsiteRef  string `json:"offsite_ref,omitempty"`
}

// Exporter collects evidence for executions. Writes are append-only: an
// export never overwrites a prior export's directory.
type Exporter struct {
	receiptLog   receipts.Log
	approvals    approval.Store
	artifactsDir string
	outDir       string
	sink         ArchiveSink
	logger       *slog.Logger
}

// NewExporter creates an exporter. artifactsDir is scanned for adapter
// artifacts whose filenames are scoped to the execution ID; sink may be nil.
func NewExporter(receiptLog receipts.Log, approvals approval.Store, artifactsDir, outDir string, sink ArchiveSink, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		receiptLog:   receiptLog,
		approvals:    approvals,
		artifactsDir: artifactsDir,
		outDir:       outDir,
		sink:         sink,
		logger:       logger,
	}
}

// Export assembles the bundle for one execution.
func (e *Exporter) Export(ctx context.Context, executionID string, opts Options) (*Result, error) {
	files := make(map[string][]byte)

	receipt, err := e.receiptLog.Get(ctx, executionID)
	if err != nil && !errors.Is(err, receipts.ErrReceiptNotFound) {
		return nil, fmt.Errorf("audit: load receipt: %w", err)
	}
	if receipt != nil {
		files["receipt.json"] = mustJSON(receipt)
		files["policy_summary.json"] = policySummary(receipt)
	} else {
		files["receipt_missing.json"] = absenceMarker(executionID, "receipt")
	}

	// Absence of an approval is recorded, never silently omitted: a bundle
	// for an unapproved run must say so.
	rec, err := e.approvals.Get(ctx, executionID)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		files["approval_missing.json"] = absenceMarker(executionID, "approval")
	case err != nil:
		return nil, fmt.Errorf("audit: load approval: %w", err)
	default:
		files["approval.json"] = mustJSON(rec)
		if rec.Plan != nil {
			files["plan.json"] = mustJSON(rec.Plan)
		}
		for stepID, snap := range rec.PrestateSnapshots {
			files["prestate/"+sanitize(stepID)+".json"] = mustJSON(snap)
		}
	}

	if err := e.collectArtifacts(executionID, files); err != nil {
		return nil, err
	}

	files["tools/verify.go"] = []byte(embeddedVerifier)

	if opts.Redact {
		for name, data := range files {
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			redacted, err := RedactJSON(data)
			if err != nil {
				return nil, fmt.Errorf("audit: redact %s: %w", name, err)
			}
			files[name] = redacted
		}
	}

	dir, err := e.uniqueDir(executionID)
	if err != nil {
		return nil, err
	}

	// Manifest hashes are computed over the final (possibly redacted)
	// bytes, and the manifest never lists itself.
	manifest := make(map[string]string, len(files))
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		manifest[name] = hashio.HashBytes(files[name])
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: marshal manifest: %w", err)
	}

	for _, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("audit: mkdir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, files[name], 0644); err != nil {
			return nil, fmt.Errorf("audit: write %s: %w", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestBytes, 0644); err != nil {
		return nil, fmt.Errorf("audit: write manifest: %w", err)
	}

	archivePath := dir + ".tar.gz"
	archiveFiles := make(map[string][]byte, len(files)+1)
	for name, data := range files {
		archiveFiles[name] = data
	}
	archiveFiles["manifest.json"] = manifestBytes
	if err := hashio.WriteArchiveBytes(archivePath, archiveFiles); err != nil {
		return nil, fmt.Errorf("audit: write archive: %w", err)
	}

	archiveBytes, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("audit: reread archive: %w", err)
	}

	res := &Result{
		Dir:         dir,
		ArchivePath: archivePath,
		ArchiveHash: hashio.HashBytes(archiveBytes),
		FilesHashed: len(files),
		Redacted:    opts.Redact,
	}

	if e.sink != nil {
		ref, err := e.sink.Store(ctx, archiveBytes)
		if err != nil {
			// Offsite retention is best-effort; the local bundle is the
			// artifact of record.
			e.logger.Warn("offsite archive failed", "execution", executionID, "error", err)
		} else {
			res.OffsiteRef = ref
		}
	}

	e.logger.Info("audit bundle exported",
		"execution", executionID,
		"dir", dir,
		"files_hashed", res.FilesHashed,
		"redacted", opts.Redact,
	)
	return res, nil
}

// collectArtifacts copies adapter-produced artifacts whose filenames are
// scoped to the execution ID.
func (e *Exporter) collectArtifacts(executionID string, files map[string][]byte) error {
	if e.artifactsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(e.artifactsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: read artifacts dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), executionID+"_") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(e.artifactsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("audit: read artifact %s: %w", entry.Name(), err)
		}
		files["artifacts/"+entry.Name()] = data
	}
	return nil
}

// uniqueDir returns a fresh output directory, never reusing a prior
// export's path.
func (e *Exporter) uniqueDir(executionID string) (string, error) {
	base := filepath.Join(e.outDir, sanitize(executionID))
	dir := base
	for i := 2; ; i++ {
		err := os.MkdirAll(filepath.Dir(dir), 0755)
		if err != nil {
			return "", fmt.Errorf("audit: prepare output dir: %w", err)
		}
		if mkErr := os.Mkdir(dir, 0755); mkErr == nil {
			return dir, nil
		} else if !os.IsExist(mkErr) {
			return "", fmt.Errorf("audit: create output dir: %w", mkErr)
		}
		dir = fmt.Sprintf("%s-%d", base, i)
	}
}

func policySummary(r *receipts.Receipt) []byte {
	summary := map[string]interface{}{
		"execution_id": r.ExecutionID,
		"status":       r.Status,
		"policy_code":  r.PolicyCode,
	}
	if r.PolicyCode != "" {
		entry := policy.Lookup(policy.Code(r.PolicyCode))
		summary["severity"] = entry.Severity
		summary["title"] = entry.Title
		summary["meaning"] = entry.Meaning
		summary["remediation"] = entry.Remediation
	}
	summary["registry_version"] = policy.RegistryVersion.String()
	return mustJSON(summary)
}

func absenceMarker(executionID, kind string) []byte {
	return mustJSON(map[string]interface{}{
		"execution_id": executionID,
		"artifact":     kind,
		"present":      false,
		"recorded_at":  time.Now().UTC().Format(time.RFC3339),
	})
}

func mustJSON(v interface{}) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		// All inputs are in-memory structures under our control.
		panic(fmt.Sprintf("audit: marshal: %v", err))
	}
	return data
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

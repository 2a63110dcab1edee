package verifier_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdbot/sentinel/pkg/verifier"
)

// writeBundle lays out a bundle directory with a correct manifest over the
// given files.
func writeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	manifest := make(map[string]string, len(files))
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		sum := sha256.Sum256([]byte(content))
		manifest[rel] = "sha256:" + hex.EncodeToString(sum[:])
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, verifier.ManifestName), raw, 0o644))
	return dir
}

func TestVerifyBundle_CleanBundle(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"receipt.json":         `{"execution_id":"e1"}`,
		"plan.json":            `{"goal":"demo"}`,
		"prestate/s1.json":     `{"status":"open"}`,
		"artifacts/s1_log.txt": "adapter output",
	})

	report, err := verifier.VerifyBundle(dir, false)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 4, report.Checked)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Mismatched)
}

// Verification is read-only: running it twice yields the same result.
func TestVerifyBundle_Idempotent(t *testing.T) {
	dir := writeBundle(t, map[string]string{"receipt.json": `{}`})

	first, err := verifier.VerifyBundle(dir, true)
	require.NoError(t, err)
	second, err := verifier.VerifyBundle(dir, true)
	require.NoError(t, err)

	assert.Equal(t, first.OK, second.OK)
	assert.Equal(t, first.Checked, second.Checked)
	assert.Equal(t, first.ResultLine(), second.ResultLine())
}

func TestVerifyBundle_SingleBitTamperDetected(t *testing.T) {
	dir := writeBundle(t, map[string]string{"receipt.json": `{"status":"completed"}`})

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "receipt.json"),
		[]byte(`{"status":"Completed"}`), 0o644))

	report, err := verifier.VerifyBundle(dir, false)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Equal(t, []string{"receipt.json"}, report.Mismatched)
}

func TestVerifyBundle_MissingFile(t *testing.T) {
	dir := writeBundle(t, map[string]string{
		"receipt.json": `{}`,
		"plan.json":    `{}`,
	})
	require.NoError(t, os.Remove(filepath.Join(dir, "plan.json")))

	report, err := verifier.VerifyBundle(dir, false)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Equal(t, []string{"plan.json"}, report.Missing)
	assert.Equal(t, 1, report.Checked)
}

func TestVerifyBundle_ExtraFileStrictOnly(t *testing.T) {
	dir := writeBundle(t, map[string]string{"receipt.json": `{}`})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "planted.txt"), []byte("x"), 0o644))

	relaxed, err := verifier.VerifyBundle(dir, false)
	require.NoError(t, err)
	assert.True(t, relaxed.OK)

	strict, err := verifier.VerifyBundle(dir, true)
	require.NoError(t, err)
	assert.False(t, strict.OK)
	assert.Equal(t, []string{"planted.txt"}, strict.Extra)
}

func TestVerifyBundle_NoManifest(t *testing.T) {
	_, err := verifier.VerifyBundle(t.TempDir(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read manifest")
}

func TestVerifyBundle_InvalidManifestJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, verifier.ManifestName), []byte("{broken"), 0o644))

	_, err := verifier.VerifyBundle(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

// A manifest listing itself is structurally invalid: its hash cannot be
// stable.
func TestVerifyBundle_SelfListingManifestRejected(t *testing.T) {
	dir := t.TempDir()
	manifest := map[string]string{verifier.ManifestName: "sha256:" + "00"}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, verifier.ManifestName), raw, 0o644))

	_, err = verifier.VerifyBundle(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not list itself")
}

func TestResultLine_Greppable(t *testing.T) {
	dir := writeBundle(t, map[string]string{"receipt.json": `{}`})

	report, err := verifier.VerifyBundle(dir, false)
	require.NoError(t, err)
	assert.Equal(t, "verify ok=true checked=1 missing=0 mismatched=0 extra=0 errors=0", report.ResultLine())
}

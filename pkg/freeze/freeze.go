package freeze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clawdbot/sentinel/pkg/crypto"
	"github.com/clawdbot/sentinel/pkg/hashio"
)

// LockFileName is the lock document written at the repository root.
const LockFileName = "sentinel.lock.json"

// ErrDirtyWorktree is returned by Freeze when the VCS worktree has
// uncommitted changes and the caller did not opt in to freezing anyway.
var ErrDirtyWorktree = errors.New("freeze: worktree has uncommitted changes")

// FileEntry is one governed file as recorded in the lock.
type FileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// BundleInfo describes the deterministic archive built alongside the lock.
type BundleInfo struct {
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
	ByteSize int64  `json:"byte_size"`
}

// Lock is the persisted freeze document. RootHash is the single value an
// operator compares across machines.
type Lock struct {
	CreatedAt           time.Time   `json:"created_at"`
	ScopeDefinitionHash string      `json:"scope_definition_hash"`
	Files               []FileEntry `json:"files"`
	RootHash            string      `json:"root_hash"`
	Bundle              BundleInfo  `json:"bundle"`
	VCSCommit           string      `json:"vcs_commit,omitempty"`
	VCSDirty            bool        `json:"vcs_dirty"`
	Signature           string      `json:"signature,omitempty"`
	KeyID               string      `json:"key_id,omitempty"`
}

// Options controls a freeze run.
type Options struct {
	// AllowDirty permits freezing a worktree with uncommitted changes.
	// The lock still records the dirty state.
	AllowDirty bool
	// BundleName overrides the archive filename. Defaults to
	// "sentinel-freeze.tar.gz".
	BundleName string
}

// Engine computes and verifies freeze locks over one repository root.
type Engine struct {
	root   string
	scope  ScopeDefinition
	signer crypto.Signer
}

// NewEngine returns an engine rooted at root. signer may be nil, in which
// case locks are written unsigned.
func NewEngine(root string, scope ScopeDefinition, signer crypto.Signer) *Engine {
	return &Engine{root: root, scope: scope, signer: signer}
}

// Freeze resolves the scope, hashes every in-scope file, writes the
// deterministic bundle archive, and persists the signed lock document.
func (e *Engine) Freeze(ctx context.Context, opts Options) (*Lock, error) {
	commit, dirty := gitState(ctx, e.root)
	if dirty && !opts.AllowDirty {
		return nil, ErrDirtyWorktree
	}

	paths, err := e.scope.Resolve(e.root)
	if err != nil {
		return nil, err
	}
	files, err := hashAll(e.root, paths)
	if err != nil {
		return nil, err
	}

	scopeHash, err := e.scope.Hash()
	if err != nil {
		return nil, err
	}

	bundleName := opts.BundleName
	if bundleName == "" {
		bundleName = "sentinel-freeze.tar.gz"
	}
	bundle, err := e.writeBundle(bundleName, paths)
	if err != nil {
		return nil, err
	}

	lock := &Lock{
		CreatedAt:           time.Now().UTC(),
		ScopeDefinitionHash: scopeHash,
		Files:               files,
		RootHash:            RootHash(files),
		Bundle:              *bundle,
		VCSCommit:           commit,
		VCSDirty:            dirty,
	}
	if e.signer != nil {
		sig, err := e.signer.Sign([]byte(lock.RootHash))
		if err != nil {
			return nil, fmt.Errorf("freeze: sign lock: %w", err)
		}
		lock.Signature = sig
		lock.KeyID = e.signer.KeyID()
	}

	if err := writeLock(filepath.Join(e.root, LockFileName), lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// RootHash reduces the file set to one hash: the sha256 of the
// newline-joined, path-sorted "<sha256>  <path>" lines.
func RootHash(files []FileEntry) string {
	sorted := make([]FileEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	lines := make([]string, 0, len(sorted))
	for _, f := range sorted {
		lines = append(lines, strings.TrimPrefix(f.SHA256, hashio.HashPrefix)+"  "+f.Path)
	}
	return hashio.HashPrefix + hashio.HashHex([]byte(strings.Join(lines, "\n")))
}

// hashAll hashes every path concurrently. Hashing order does not matter;
// the returned slice is path-sorted so the reduction is deterministic.
func hashAll(root string, paths []string) ([]FileEntry, error) {
	type result struct {
		entry FileEntry
		err   error
	}
	jobs := make(chan string)
	results := make(chan result, len(paths))

	workers := runtime.NumCPU()
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				abs := filepath.Join(root, filepath.FromSlash(rel))
				sum, err := hashio.HashFile(abs)
				if err != nil {
					results <- result{err: fmt.Errorf("freeze: hash %s: %w", rel, err)}
					continue
				}
				info, err := os.Stat(abs)
				if err != nil {
					results <- result{err: fmt.Errorf("freeze: stat %s: %w", rel, err)}
					continue
				}
				results <- result{entry: FileEntry{Path: rel, SHA256: hashio.HashPrefix + sum, Size: info.Size()}}
			}
		}()
	}
	for _, rel := range paths {
		jobs <- rel
	}
	close(jobs)
	wg.Wait()
	close(results)

	files := make([]FileEntry, 0, len(paths))
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		files = append(files, r.entry)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (e *Engine) writeBundle(name string, paths []string) (*BundleInfo, error) {
	entries := make([]hashio.ArchiveEntry, 0, len(paths))
	for _, rel := range paths {
		entries = append(entries, hashio.ArchiveEntry{
			RelPath: rel,
			AbsPath: filepath.Join(e.root, filepath.FromSlash(rel)),
		})
	}
	out := filepath.Join(e.root, name)
	if err := hashio.WriteArchive(out, entries); err != nil {
		return nil, fmt.Errorf("freeze: write bundle: %w", err)
	}
	sum, err := hashio.HashFile(out)
	if err != nil {
		return nil, fmt.Errorf("freeze: hash bundle: %w", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("freeze: stat bundle: %w", err)
	}
	return &BundleInfo{Filename: name, SHA256: hashio.HashPrefix + sum, ByteSize: info.Size()}, nil
}

func writeLock(path string, lock *Lock) error {
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("freeze: encode lock: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("freeze: write lock: %w", err)
	}
	return nil
}

// LoadLock reads a lock document. A missing file returns (nil, nil) so
// verification can treat the unfrozen state as a no-op success.
func LoadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("freeze: read lock: %w", err)
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("freeze: decode lock: %w", err)
	}
	return &lock, nil
}

// gitState reports the current commit and whether the worktree is dirty.
// A directory that is not a git repository reports an empty commit and a
// clean state.
func gitState(ctx context.Context, root string) (commit string, dirty bool) {
	rev := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	rev.Dir = root
	out, err := rev.Output()
	if err != nil {
		return "", false
	}
	commit = strings.TrimSpace(string(out))

	status := exec.CommandContext(ctx, "git", "status", "--porcelain")
	status.Dir = root
	out, err = status.Output()
	if err != nil {
		return commit, false
	}
	return commit, len(bytes.TrimSpace(out)) > 0
}

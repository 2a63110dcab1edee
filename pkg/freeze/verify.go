package freeze

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Drift is one detected divergence between the lock and the live tree.
type Drift struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (d Drift) String() string {
	return fmt.Sprintf("%s: %s", d.Reason, d.Path)
}

// VerifyReport is the outcome of checking the live tree against a lock.
// Frozen is false when no lock exists; that state verifies trivially.
type VerifyReport struct {
	Frozen   bool    `json:"frozen"`
	OK       bool    `json:"ok"`
	Checked  int     `json:"checked"`
	RootHash string  `json:"root_hash,omitempty"`
	Drifts   []Drift `json:"drifts,omitempty"`
}

// ResultLine renders the one-line greppable summary.
func (r VerifyReport) ResultLine() string {
	if !r.Frozen {
		return "freeze-verify ok=true frozen=false"
	}
	return fmt.Sprintf("freeze-verify ok=%t frozen=true checked=%d drifts=%d", r.OK, r.Checked, len(r.Drifts))
}

// Verify re-resolves the scope against the live tree and compares it to the
// lock. The locked and live file sets must be identical and every hash must
// match; any extra, missing, or changed file is reported with a stable
// reason string. A missing lock is not an error.
func (e *Engine) Verify() (*VerifyReport, error) {
	lock, err := LoadLock(filepath.Join(e.root, LockFileName))
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return &VerifyReport{Frozen: false, OK: true}, nil
	}

	report := &VerifyReport{Frozen: true, RootHash: lock.RootHash}

	scopeHash, err := e.scope.Hash()
	if err != nil {
		return nil, err
	}
	if scopeHash != lock.ScopeDefinitionHash {
		report.Drifts = append(report.Drifts, Drift{Path: LockFileName, Reason: "scope drift"})
	}

	paths, err := e.scope.Resolve(e.root)
	if err != nil {
		return nil, err
	}
	live, err := hashAll(e.root, paths)
	if err != nil {
		return nil, err
	}
	report.Checked = len(live)

	locked := make(map[string]FileEntry, len(lock.Files))
	for _, f := range lock.Files {
		locked[f.Path] = f
	}
	liveSet := make(map[string]FileEntry, len(live))
	for _, f := range live {
		liveSet[f.Path] = f
	}

	// Files present now that were not locked: the scope gained members.
	for _, f := range live {
		if _, ok := locked[f.Path]; !ok {
			report.Drifts = append(report.Drifts, Drift{Path: f.Path, Reason: "scope drift"})
		}
	}
	// Locked files that are gone, then content comparison for the rest.
	for _, f := range lock.Files {
		cur, ok := liveSet[f.Path]
		if !ok {
			report.Drifts = append(report.Drifts, Drift{Path: f.Path, Reason: "missing file"})
			continue
		}
		if cur.SHA256 != f.SHA256 {
			report.Drifts = append(report.Drifts, Drift{Path: f.Path, Reason: "sha256 mismatch"})
		}
	}

	if len(report.Drifts) == 0 && RootHash(live) != lock.RootHash {
		report.Drifts = append(report.Drifts, Drift{Path: LockFileName, Reason: "root hash mismatch"})
	}

	sort.Slice(report.Drifts, func(i, j int) bool {
		if report.Drifts[i].Path != report.Drifts[j].Path {
			return report.Drifts[i].Path < report.Drifts[j].Path
		}
		return report.Drifts[i].Reason < report.Drifts[j].Reason
	})
	report.OK = len(report.Drifts) == 0
	return report, nil
}

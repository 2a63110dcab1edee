// Package artifacts provides offsite sinks for exported audit bundles.
// Every sink is content-addressed: the archive is stored under its own
// SHA-256 hash so re-uploading the same bundle is idempotent and the
// returned reference doubles as an integrity check.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawdbot/sentinel/pkg/hashio"
)

// Sink stores an archive offsite and returns a stable reference to it.
type Sink interface {
	Store(ctx context.Context, data []byte) (string, error)
}

// FSSink writes archives into a local directory. It is the default sink
// when no cloud backend is configured.
type FSSink struct {
	dir string
}

// NewFSSink creates the directory if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create sink dir: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

// Store writes data under its hash and returns a file:// reference.
func (s *FSSink) Store(_ context.Context, data []byte) (string, error) {
	name := strings.TrimPrefix(hashio.HashBytes(data), hashio.HashPrefix) + ".tar.gz"
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		// Content-addressed: same bytes, same file.
		return "file://" + path, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %s: %w", path, err)
	}
	return "file://" + path, nil
}

// MemorySink keeps archives in memory, keyed by hash. Test use only.
type MemorySink struct {
	Objects map[string][]byte
}

func NewMemorySink() *MemorySink {
	return &MemorySink{Objects: make(map[string][]byte)}
}

func (s *MemorySink) Store(_ context.Context, data []byte) (string, error) {
	key := hashio.HashBytes(data)
	s.Objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

// Package hashio provides content hashing of files and byte slices plus
// byte-for-byte reproducible archive creation. Every component that produces
// a verifiable artifact (audit bundles, freeze locks) builds on it.
package hashio

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// HashPrefix is the prefix carried by every content hash the system emits.
const HashPrefix = "sha256:"

// HashBytes returns the prefixed SHA-256 hash of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// HashHex returns the bare lowercase hex SHA-256 of data, without prefix.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile streams a file through SHA-256 and returns the bare hex digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashio: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashio: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ArchiveEntry pairs a POSIX-style relative path with the absolute path it
// is read from. Entries are sorted by relative path before archiving so the
// same input set always yields the same bytes.
type ArchiveEntry struct {
	RelPath string
	AbsPath string
}

// CollectDir walks root and returns one ArchiveEntry per regular file,
// sorted by relative path. Paths use forward slashes regardless of OS.
func CollectDir(root string) ([]ArchiveEntry, error) {
	var entries []ArchiveEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, ArchiveEntry{
			RelPath: filepath.ToSlash(rel),
			AbsPath: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashio: walk %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

// WriteArchive creates a deterministic tar.gz at outPath containing the given
// entries in their sorted order. Determinism: sorted paths, fixed mtime
// (epoch), uid/gid 0, mode 0644.
func WriteArchive(outPath string, entries []ArchiveEntry) error {
	sorted := make([]ArchiveEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("hashio: create archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("hashio: gzip writer: %w", err)
	}
	defer func() { _ = gw.Close() }()

	// Strip the gzip timestamp; it would otherwise leak wall-clock time
	// into the archive bytes.
	gw.ModTime = time.Unix(0, 0)

	tw := tar.NewWriter(gw)
	defer func() { _ = tw.Close() }()

	for _, e := range sorted {
		data, err := os.ReadFile(e.AbsPath)
		if err != nil {
			return fmt.Errorf("hashio: read %s: %w", e.AbsPath, err)
		}
		if err := writeEntry(tw, e.RelPath, data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("hashio: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("hashio: close gzip: %w", err)
	}
	return f.Close()
}

// WriteArchiveBytes is like WriteArchive but takes in-memory contents keyed
// by relative path.
func WriteArchiveBytes(outPath string, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("hashio: create archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("hashio: gzip writer: %w", err)
	}
	gw.ModTime = time.Unix(0, 0)

	tw := tar.NewWriter(gw)
	for _, name := range names {
		if err := writeEntry(tw, name, files[name]); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("hashio: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("hashio: close gzip: %w", err)
	}
	return f.Close()
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0644,
		ModTime: time.Unix(0, 0), // Deterministic: epoch
		Uid:     0,
		Gid:     0,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("hashio: write header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("hashio: write data %s: %w", name, err)
	}
	return nil
}

package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a lightweight per-file change signature. Size and
// ModTime are always populated; Hash is computed lazily, only when the
// cheap fields disagree or strong verification is requested.
type Fingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
	Hash    string
}

// New builds a cheap fingerprint from stat data.
func New(path string, size int64, modTime time.Time) Fingerprint {
	return Fingerprint{
		Path:    path,
		Size:    size,
		ModTime: modTime.Truncate(time.Second),
	}
}

// FromFileInfo builds a cheap fingerprint from an os.FileInfo.
func FromFileInfo(path string, info os.FileInfo) Fingerprint {
	return New(path, info.Size(), info.ModTime())
}

// CheapEqual reports whether the (size, mtime) pair matches.
// Sub-second mtime precision is truncated so that filesystems with
// coarser timestamp granularity compare stably across runs.
func (f Fingerprint) CheapEqual(other Fingerprint) bool {
	return f.Size == other.Size &&
		f.ModTime.Truncate(time.Second).Equal(other.ModTime.Truncate(time.Second))
}

// Equal reports whether two fingerprints match. When both carry a hash
// the hash decides; otherwise the cheap fields do.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if f.Hash != "" && other.Hash != "" {
		return f.Hash == other.Hash
	}
	return f.CheapEqual(other)
}

// HashFile computes the BLAKE2b-256 content hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WithHash returns a copy of the fingerprint with the content hash
// filled in from disk.
func (f Fingerprint) WithHash() (Fingerprint, error) {
	hash, err := HashFile(f.Path)
	if err != nil {
		return f, err
	}
	f.Hash = hash
	return f, nil
}

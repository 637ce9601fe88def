package models

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// TabFile describes a table file as it was when loaded. Hash is the BLAKE3
// digest of its content and is logged so operators can tell which revision
// of a table is live.
type TabFile struct {
	Path     string
	Hash     string
	Modified int64
	Uid      uint32
	Gid      uint32
	Mode     uint32
	Regular  bool
}

// ShortHash is the first 12 hex digits of Hash.
func (f TabFile) ShortHash() string {
	if len(f.Hash) < 12 {
		return f.Hash
	}
	return f.Hash[:12]
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return hashReader(file)
}

func hashReader(r io.Reader) (string, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to copy file content: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

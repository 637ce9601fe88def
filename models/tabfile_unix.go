//go:build unix

package models

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	S_IFMT  = 0o0170000
	S_IFREG = 0o0100000
)

// NewTabFile stats path without following symlinks and, for regular files,
// hashes its content.
func NewTabFile(path string) (TabFile, error) {
	var stat unix.Stat_t

	err := unix.Lstat(path, &stat)
	if err != nil {
		return TabFile{}, fmt.Errorf("failed to stat path: %w", err)
	}

	modified, _ := stat.Mtim.Unix()

	f := TabFile{
		Path:     path,
		Modified: modified,
		Uid:      stat.Uid,
		Gid:      stat.Gid,
		Mode:     uint32(stat.Mode),
		Regular:  stat.Mode&S_IFMT == S_IFREG,
	}

	if f.Regular {
		f.Hash, err = hashFile(path)
		if err != nil {
			return TabFile{}, err
		}
	}

	return f, nil
}

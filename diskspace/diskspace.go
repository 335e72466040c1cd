// Package diskspace implements DiskSpaceChecker from spec §4.4/§5: it
// verifies enough free space exists before an attempt reserves bytes on
// disk, using a safety factor of 2x the archive size (covers staging +
// final copy).
package diskspace

import (
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// safetyFactor is the multiplier spec §5 requires: staging copy plus final
// copy of the same tree must both fit before an attempt proceeds.
const safetyFactor = 2

// Checker verifies free space against a platform statfs call, isolated in
// platform-specific files the way the teacher isolates its peer-credential
// syscalls (server/peercred_linux.go, peercred_darwin.go) behind a shared
// interface and //go:build tags.
type Checker struct{}

// New returns a Checker.
func New() *Checker {
	return &Checker{}
}

// RequireFreeSpace fails with CodeInsufficientDisk unless path's filesystem
// has at least safetyFactor * archiveSize bytes free.
func (c *Checker) RequireFreeSpace(path string, archiveSize int64) error {
	required := archiveSize * safetyFactor
	available, err := freeBytes(path)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeInsufficientDisk,
			"disk space: failed to stat filesystem", "verify the install root is on a readable filesystem", err)
	}
	if available < required {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeInsufficientDisk,
			"disk space: insufficient free space for this download", "free up space or choose a smaller module", nil)
	}
	return nil
}

package diskspace

import (
	"testing"

	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

func TestRequireFreeSpaceAcceptsSmallArchive(t *testing.T) {
	c := New()
	if err := c.RequireFreeSpace(t.TempDir(), 1024); err != nil {
		t.Fatalf("expected small archive to fit, got %v", err)
	}
}

func TestRequireFreeSpaceRejectsImpossiblyLargeArchive(t *testing.T) {
	c := New()
	err := c.RequireFreeSpace(t.TempDir(), 1<<60)
	if !pipelineerrors.IsCode(err, pipelineerrors.CodeInsufficientDisk) {
		t.Fatalf("expected CodeInsufficientDisk, got %v", err)
	}
}

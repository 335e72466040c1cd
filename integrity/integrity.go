// Package integrity implements IntegrityValidator from spec §4.7: a
// post-install re-audit of an installed module's tree, plus a periodic
// sweep mode over every installed module.
package integrity

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/byteness/moduledelivery/audit"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// Validator re-checks an installed module directory for the invariants
// Extractor already enforced at write time, catching anything that
// changed on disk between extraction and this check (e.g. a symlink
// swapped in out-of-band).
type Validator struct {
	sink *audit.Sink
}

// New builds a Validator.
func New(sink *audit.Sink) *Validator {
	return &Validator{sink: sink}
}

// Validate walks modulePath and fails IntegrityCheckFailed("symlink") if
// any entry is a symbolic link. Checksum comparison over the installed
// tree is intentionally not performed here — the archive bytes were
// already the authoritative checksum check (spec §4.7).
func (v *Validator) Validate(modulePath string) error {
	info, err := os.Lstat(modulePath)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeIntegrityCheckFailed,
			fmt.Sprintf("integrity: cannot stat %q", modulePath), "", err)
	}
	if !info.IsDir() {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeIntegrityCheckFailed,
			fmt.Sprintf("integrity: %q is not a directory", modulePath), "", nil)
	}

	var totalSize int64
	foundSymlink := false
	walkErr := filepath.WalkDir(modulePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			foundSymlink = true
			v.sink.Emit(audit.KindSymlinkDetected, "", map[string]string{"path": path})
			return fmt.Errorf("symlink")
		}
		if !d.IsDir() {
			fi, statErr := d.Info()
			if statErr == nil {
				totalSize += fi.Size()
			}
		}
		return nil
	})
	if walkErr != nil {
		msg := fmt.Sprintf("integrity: failed to walk %q", modulePath)
		if foundSymlink {
			msg = fmt.Sprintf("integrity: %q contains a symlink", modulePath)
		}
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeIntegrityCheckFailed,
			msg, "", walkErr)
	}

	v.sink.Emit(audit.KindIntegrityCheckPassed, "", map[string]string{"total_bytes": fmt.Sprintf("%d", totalSize)})
	return nil
}

// SweepResult is one module's outcome from a periodic sweep.
type SweepResult struct {
	ModulePath string
	Err        error
}

// PeriodicSweep walks <root>/Modules/*/* and validates every installed
// version directory. Failures are collected and reported, not treated as
// fatal — a separate policy decides whether a failing module gets
// quarantined (spec §4.7: "they do not quarantine — a separate policy
// decides").
func (v *Validator) PeriodicSweep(root string) []SweepResult {
	modulesDir := filepath.Join(root, "Modules")
	names, err := os.ReadDir(modulesDir)
	if err != nil {
		return nil
	}

	var results []SweepResult
	for _, name := range names {
		if !name.IsDir() {
			continue
		}
		versions, err := os.ReadDir(filepath.Join(modulesDir, name.Name()))
		if err != nil {
			continue
		}
		for _, version := range versions {
			if !version.IsDir() {
				continue
			}
			path := filepath.Join(modulesDir, name.Name(), version.Name())
			err := v.Validate(path)
			if err != nil {
				v.sink.Emit(audit.KindIntegrityCheckFailed, name.Name(), map[string]string{"reason": err.Error()})
			}
			results = append(results, SweepResult{ModulePath: path, Err: err})
		}
	}
	return results
}

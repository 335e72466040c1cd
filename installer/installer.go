// Package installer implements AtomicInstaller from spec §4.6: a
// backup/rename transactional discipline that guarantees invariants I1
// (exclusive install lineage) and I4 (no orphaned backups on success).
package installer

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/moduledelivery/audit"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// Installer moves a validated staging tree into its final location under
// <root>/Modules/<name>/<version>, grounded on the rename-based promotion
// in the other_examples terraform installer handler (stage to a temp path
// under the destination filesystem, then os.Rename onto the final path so
// the move is metadata-only and therefore atomic).
type Installer struct {
	root string
	sink *audit.Sink
}

// New builds an Installer rooted at root (the platform documents
// directory housing Modules/ and ModuleBackups/, per spec §3).
func New(root string, sink *audit.Sink) *Installer {
	return &Installer{root: root, sink: sink}
}

func (i *Installer) modulesPath(name, version string) string {
	return filepath.Join(i.root, "Modules", name, version)
}

func (i *Installer) backupPath(name, version string) string {
	return filepath.Join(i.root, "ModuleBackups", fmt.Sprintf("%s_%s_%d", name, version, time.Now().Unix()))
}

// Install runs the six-step transactional protocol of spec §4.6.
func (i *Installer) Install(sourceStaging, name, version string) (string, error) {
	final := i.modulesPath(name, version)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", i.fail("failed to create Modules parent directory", err)
	}

	var backup string
	if _, err := os.Stat(final); err == nil {
		backup = i.backupPath(name, version)
		if err := os.MkdirAll(filepath.Dir(backup), 0o755); err != nil {
			return "", i.fail("failed to create ModuleBackups directory", err)
		}
		if err := os.Rename(final, backup); err != nil {
			return "", i.fail("failed to move existing install to backup", err)
		}
	}

	tempStaging := filepath.Join(filepath.Dir(final), ".staging-"+uuid.NewString())
	if err := copyTree(sourceStaging, tempStaging); err != nil {
		return "", i.rollback(final, backup, tempStaging, "failed to stage copy of new install", err)
	}
	if err := validateInstalled(tempStaging); err != nil {
		return "", i.rollback(final, backup, tempStaging, "staged copy failed validation", err)
	}

	if err := os.Rename(tempStaging, final); err != nil {
		return "", i.rollback(final, backup, tempStaging, "failed to promote staged copy", err)
	}
	if err := validateInstalled(final); err != nil {
		return "", i.rollback(final, backup, "", "promoted install failed validation", err)
	}

	if backup != "" {
		os.RemoveAll(backup)
	}
	return final, nil
}

// rollback implements step 6 of spec §4.6: remove any partial final and
// transient staging, restore backup onto final if one was taken, and
// surface InstallationFailed.
func (i *Installer) rollback(final, backup, tempStaging, detail string, cause error) error {
	os.RemoveAll(final)
	if tempStaging != "" {
		os.RemoveAll(tempStaging)
	}
	if backup != "" {
		if err := os.Rename(backup, final); err == nil {
			i.sink.Emit(audit.KindRollbackPerformed, "", nil)
		}
	}
	return i.fail(detail, cause)
}

func (i *Installer) fail(detail string, cause error) error {
	i.sink.Emit(audit.KindInstallationFailed, "", map[string]string{"detail": detail})
	return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
		"install: "+detail, "inspect the staged tree and retry the install", cause)
}

// validateInstalled checks spec §4.6's "validate_installed": non-empty
// directory, no symlinks at the top level. Absence of index.html is not
// an error — the installer is content-agnostic.
func validateInstalled(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("install: cannot read %q: %w", path, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("install: %q is empty", path)
	}
	for _, e := range entries {
		info, err := os.Lstat(filepath.Join(path, e.Name()))
		if err != nil {
			return fmt.Errorf("install: cannot stat %q: %w", e.Name(), err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("install: %q contains a top-level symlink %q", path, e.Name())
		}
	}
	return nil
}

// copyTree recursively copies src onto dst, which must not already exist.
// This is the "copy source_staging into a fresh per-attempt staging under
// the same filesystem as final" step of spec §4.6, so the subsequent move
// onto final is a same-filesystem rename.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return fmt.Errorf("install: refusing to copy symlink %q", path)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

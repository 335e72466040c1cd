// Package extractor implements SafeExtractor from spec §4.5: a two-pass
// archive extraction that validates every entry before writing anything,
// so a rejected archive never leaves partial output in the destination
// (spec §8, "if any per-entry or aggregate cap is exceeded, no file from A
// is written to R").
package extractor

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/config"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// forbiddenSubstrings are always rejected anywhere in an entry path, in
// addition to params.ForbiddenPatterns and beyond the dedicated ".."
// traversal check (spec §4.5: "redundant and acts as
// defense-in-depth").
var forbiddenSubstrings = []string{"..", "~", "__MACOSX", ".DS_Store", ".git", ".svn"}

// Extractor validates and extracts a ZIP archive into a staging
// directory, grounded on no single teacher file (the teacher has no
// archive extraction concern); the two-pass validate-then-extract shape
// follows spec §4.5 and §8 directly.
type Extractor struct {
	params config.SecurityParameters
	sink   *audit.Sink
}

// New builds an Extractor.
func New(params config.SecurityParameters, sink *audit.Sink) *Extractor {
	return &Extractor{params: params, sink: sink}
}

// Extract validates archivePath's entries (Pass 1) and, only if every
// entry and the aggregate passes, writes them under destination (Pass 2).
// destination must already exist.
func (e *Extractor) Extract(archivePath, destination string) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeFileSizeExceeded,
			"extractor: failed to stat archive", "", err)
	}
	if info.Size() > e.params.MaxDownloadSize {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeFileSizeExceeded,
			fmt.Sprintf("archive size %d exceeds max_download_size %d", info.Size(), e.params.MaxDownloadSize),
			"the server should not have produced an archive this large", nil)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeForbiddenFile,
			"extractor: archive is not a valid zip", "", err)
	}
	defer reader.Close()

	if err := e.validate(reader.File); err != nil {
		return err
	}

	destRoot, err := filepath.Abs(destination)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodePathTraversal,
			"extractor: failed to canonicalize destination", "", err)
	}

	for _, f := range reader.File {
		if err := e.extractOne(f, destRoot); err != nil {
			return err
		}
	}
	return nil
}

// validate is Pass 1: every check runs over metadata only, nothing is
// written to disk.
func (e *Extractor) validate(files []*zip.File) error {
	if len(files) > e.params.MaxFileCount {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeFileCountExceeded,
			fmt.Sprintf("archive has %d entries, exceeds max_file_count %d", len(files), e.params.MaxFileCount),
			"", nil)
	}

	var totalUncompressed int64
	for _, f := range files {
		if err := e.validateEntryPath(f.Name); err != nil {
			return err
		}
		if f.Mode()&fs.ModeSymlink != 0 {
			e.sink.Emit(audit.KindSymlinkDetected, "", map[string]string{"path": f.Name})
			return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeSymlinkDetected,
				fmt.Sprintf("archive entry %q is a symlink", f.Name), "", nil)
		}
		if !f.FileInfo().IsDir() {
			if err := e.validateEntryType(f.Name); err != nil {
				return err
			}
			if int64(f.UncompressedSize64) > e.params.MaxIndividualFileSize {
				return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeFileSizeExceeded,
					fmt.Sprintf("entry %q declares %d uncompressed bytes, exceeds max_individual_file_size %d",
						f.Name, f.UncompressedSize64, e.params.MaxIndividualFileSize),
					"", nil)
			}
			totalUncompressed += int64(f.UncompressedSize64)
		}
	}

	if totalUncompressed > e.params.MaxUncompressedSize {
		e.sink.Emit(audit.KindZipBombDetected, "", map[string]string{"total_uncompressed_bytes": fmt.Sprintf("%d", totalUncompressed)})
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeTotalSizeExceeded,
			fmt.Sprintf("archive's total uncompressed size %d exceeds max_uncompressed_size %d", totalUncompressed, e.params.MaxUncompressedSize),
			"", nil)
	}
	return nil
}

// validateEntryPath applies the traversal, forbidden-pattern, and
// hidden-file checks of spec §4.5 to a single entry's declared path.
func (e *Extractor) validateEntryPath(name string) error {
	if strings.Contains(name, "..") {
		e.sink.Emit(audit.KindPathTraversalAttempt, "", map[string]string{"path": name})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodePathTraversal,
			fmt.Sprintf("archive entry %q contains a path traversal sequence", name),
			"reject this archive", nil)
	}
	for _, patterns := range [][]string{forbiddenSubstrings, e.params.ForbiddenPatterns} {
		for _, substr := range patterns {
			if strings.Contains(name, substr) {
				e.sink.Emit(audit.KindForbiddenFileDetected, "", map[string]string{"name": name})
				return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeForbiddenFile,
					fmt.Sprintf("archive entry %q matches a forbidden pattern %q", name, substr),
					"", nil)
			}
		}
	}
	leaf := filepath.Base(name)
	if strings.HasPrefix(leaf, ".") {
		e.sink.Emit(audit.KindForbiddenFileDetected, "", map[string]string{"name": name})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeForbiddenFile,
			fmt.Sprintf("archive entry %q is a hidden file", name), "", nil)
	}
	return nil
}

// validateEntryType enforces the allowed-extension allowlist. Extensionless
// files are permitted (spec §4.5).
func (e *Extractor) validateEntryType(name string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return nil
	}
	for _, allowed := range e.params.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeUnsupportedType,
		fmt.Sprintf("archive entry %q has unsupported extension %q", name, ext),
		"", nil)
}

// extractOne is Pass 2 for a single entry: canonicalize the join against
// destRoot, write the bytes, then re-stat to catch any symlink the zip
// library materialized (spec §4.5 and §9's "reject symlinks at both
// layers").
func (e *Extractor) extractOne(f *zip.File, destRoot string) error {
	joined := filepath.Join(destRoot, f.Name)
	canonical, err := filepath.Abs(joined)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodePathTraversal,
			fmt.Sprintf("extractor: failed to canonicalize entry %q", f.Name), "", err)
	}
	if canonical != destRoot && !strings.HasPrefix(canonical, destRoot+string(filepath.Separator)) {
		e.sink.Emit(audit.KindPathTraversalAttempt, "", map[string]string{"path": f.Name})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodePathTraversal,
			fmt.Sprintf("archive entry %q escapes the destination root", f.Name), "", nil)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(canonical, 0o755)
	}
	if f.Mode()&fs.ModeSymlink != 0 {
		e.sink.Emit(audit.KindSymlinkDetected, "", map[string]string{"path": f.Name})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeSymlinkDetected,
			fmt.Sprintf("archive entry %q is a symlink", f.Name), "", nil)
	}

	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			"extractor: failed to create parent directory", "", err)
	}

	rc, err := f.Open()
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("extractor: failed to open entry %q", f.Name), "", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(canonical, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("extractor: failed to create %q", canonical), "", err)
	}
	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("extractor: failed to write %q", canonical), "", copyErr)
	}
	if closeErr != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("extractor: failed to close %q", canonical), "", closeErr)
	}

	written, err := os.Lstat(canonical)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("extractor: failed to stat written file %q", canonical), "", err)
	}
	if written.Mode()&fs.ModeSymlink != 0 {
		os.Remove(canonical)
		e.sink.Emit(audit.KindSymlinkDetected, "", map[string]string{"path": f.Name})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodeSymlinkDetected,
			fmt.Sprintf("archive entry %q materialized as a symlink on disk", f.Name), "", nil)
	}
	return nil
}

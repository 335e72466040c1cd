// Package quarantine implements QuarantineManager from spec §4.8: a
// thread-safe index of suspect artifacts, keyed by module id, backed by
// filesystem moves into an isolated directory.
package quarantine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/byteness/moduledelivery/audit"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// indexFileName is where the in-memory index is mirrored to disk, so a
// fresh process (e.g. a CLI invocation) recovers the same quarantine
// state a long-lived orchestrator would have in memory (spec §3:
// QuarantineEntry is "persistent on disk + in-memory index").
const indexFileName = ".index.json"

// Entry records one quarantined artifact.
type Entry struct {
	ModuleID       string
	QuarantinePath string
	OriginalPath   string
	Reason         string
	QuarantinedAt  time.Time
}

// Manager serializes all quarantine index mutation behind a single
// mutex, the same discipline the coordinator uses for its active-attempt
// table, grounded on the teacher's ratelimit.MemoryRateLimiter; the
// Entry shape (original path, reason, recorded timestamp) is grounded on
// breakglass.Store's event-record fields.
type Manager struct {
	mu      sync.Mutex
	entries map[string]Entry
	root    string
	sink    *audit.Sink
	now     func() time.Time
}

// New builds a Manager whose quarantine directory is <root>/Quarantine,
// loading any index persisted by a prior process.
func New(root string, sink *audit.Sink) *Manager {
	m := &Manager{
		entries: make(map[string]Entry),
		root:    root,
		sink:    sink,
		now:     time.Now,
	}
	m.loadIndex()
	return m
}

func (m *Manager) quarantinePath(moduleID string) string {
	return filepath.Join(m.root, "Quarantine", moduleID)
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.root, "Quarantine", indexFileName)
}

// loadIndex best-effort reads a previously persisted index. A missing or
// unreadable file just leaves entries empty — quarantine is a defense-in-
// depth mechanism, not something that should fail process startup.
func (m *Manager) loadIndex() {
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	m.entries = entries
}

// saveIndex persists the current entries map. Called with mu held.
func (m *Manager) saveIndex() error {
	if err := os.MkdirAll(filepath.Join(m.root, "Quarantine"), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(m.entries)
	if err != nil {
		return err
	}
	return os.WriteFile(m.indexPath(), data, 0o644)
}

// Quarantine moves path to <root>/Quarantine/<moduleID>, recording an
// entry. If moduleID already has an entry, the old quarantine path is
// removed and replaced (spec §4.8).
func (m *Manager) Quarantine(moduleID, path, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dest := m.quarantinePath(moduleID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			"quarantine: failed to create Quarantine directory", "", err)
	}

	if existing, ok := m.entries[moduleID]; ok {
		os.RemoveAll(existing.QuarantinePath)
	}
	os.RemoveAll(dest)

	if err := moveFile(path, dest); err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("quarantine: failed to move %q into quarantine", path), "", err)
	}

	m.entries[moduleID] = Entry{
		ModuleID:       moduleID,
		QuarantinePath: dest,
		OriginalPath:   path,
		Reason:         reason,
		QuarantinedAt:  m.now(),
	}
	m.saveIndex()
	m.sink.Emit(audit.KindModuleQuarantined, moduleID, map[string]string{"reason": reason})
	return nil
}

// Release moves a quarantined artifact back to its recorded original
// path and removes the entry. Fails with NotInQuarantine if moduleID is
// unknown.
func (m *Manager) Release(moduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[moduleID]
	if !ok {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeNotInQuarantine,
			fmt.Sprintf("module %q is not in quarantine", moduleID), "", nil)
	}

	if err := os.MkdirAll(filepath.Dir(entry.OriginalPath), 0o755); err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			"quarantine: failed to recreate original parent directory", "", err)
	}
	if err := moveFile(entry.QuarantinePath, entry.OriginalPath); err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("quarantine: failed to release %q", moduleID), "", err)
	}

	delete(m.entries, moduleID)
	m.saveIndex()
	m.sink.Emit(audit.KindQuarantineReleased, moduleID, nil)
	return nil
}

// Delete permanently removes a quarantined artifact and its entry.
func (m *Manager) Delete(moduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[moduleID]
	if !ok {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeNotInQuarantine,
			fmt.Sprintf("module %q is not in quarantine", moduleID), "", nil)
	}
	if err := os.RemoveAll(entry.QuarantinePath); err != nil {
		return pipelineerrors.New(pipelineerrors.KindState, pipelineerrors.CodeInstallationFailed,
			fmt.Sprintf("quarantine: failed to delete %q", moduleID), "", err)
	}
	delete(m.entries, moduleID)
	m.saveIndex()
	return nil
}

// List returns a snapshot of all current quarantine entries.
func (m *Manager) List() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// moveFile renames src to dst, falling back to copy-then-remove when the
// two paths live on different filesystems (quarantine's source, typically
// under system temp, and destination, under the documents directory,
// are not guaranteed to share a device).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	return os.Remove(src)
}

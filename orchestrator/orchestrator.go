// Package orchestrator implements InstallOrchestrator from spec §4.10:
// the top-level state machine that sequences a single module's install
// attempt through every other component, emitting typed progress stages
// and guaranteeing the ownership/cleanup rules of spec §5.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/checksum"
	"github.com/byteness/moduledelivery/config"
	"github.com/byteness/moduledelivery/coordinator"
	"github.com/byteness/moduledelivery/diskspace"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
	"github.com/byteness/moduledelivery/extractor"
	"github.com/byteness/moduledelivery/installer"
	"github.com/byteness/moduledelivery/integrity"
	"github.com/byteness/moduledelivery/manifest"
	"github.com/byteness/moduledelivery/quarantine"
	"github.com/byteness/moduledelivery/transport"
)

// Stage is one of the fixed progress states of spec §4.10.
type Stage string

const (
	StageCheckingNetwork   Stage = "checking_network"
	StagePreflightChecks   Stage = "preflight_checks"
	StageDownloading       Stage = "downloading"
	StageVerifyingChecksum Stage = "verifying_checksum"
	StageExtracting        Stage = "extracting"
	StageInstalling        Stage = "installing"
	StageIntegrityCheck    Stage = "integrity_check"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
)

// ProgressFunc receives each stage transition in order, exactly once per
// stage on the happy path (spec §4.10: "stage emissions happen exactly
// once in the order above").
type ProgressFunc func(stage Stage, message string)

// Orchestrator wires every collaborator interface spec §9 names:
// {Transport, Coordinator, Extractor, Installer, Integrity, Quarantine,
// Audit}, plus the SecurityParameters table and a root filesystem layout.
// It is test-instantiable with no process-wide state, per spec §9's
// "explicit composition root" redesign note.
type Orchestrator struct {
	transport  transport.Transport
	coord      *coordinator.Coordinator
	validator  *manifest.Validator
	extractor  *extractor.Extractor
	installer  *installer.Installer
	integrity  *integrity.Validator
	quarantine *quarantine.Manager
	diskspace  *diskspace.Checker
	sink       *audit.Sink
	params     config.SecurityParameters
	tmpDir     string
}

// New builds an Orchestrator from its fully-constructed collaborators.
func New(
	t transport.Transport,
	coord *coordinator.Coordinator,
	validator *manifest.Validator,
	ext *extractor.Extractor,
	inst *installer.Installer,
	integ *integrity.Validator,
	quar *quarantine.Manager,
	disk *diskspace.Checker,
	sink *audit.Sink,
	params config.SecurityParameters,
	tmpDir string,
) *Orchestrator {
	return &Orchestrator{
		transport:  t,
		coord:      coord,
		validator:  validator,
		extractor:  ext,
		installer:  inst,
		integrity:  integ,
		quarantine: quar,
		diskspace:  disk,
		sink:       sink,
		params:     params,
		tmpDir:     tmpDir,
	}
}

// FetchAndValidateManifest performs the manifest fetch and validation
// step that precedes orchestration of any single module (spec §2: "Manifest
// fetch → ManifestValidator → (pick module) → InstallOrchestrator").
func (o *Orchestrator) FetchAndValidateManifest(ctx context.Context, currentEnv string) (*manifest.ValidatedManifest, error) {
	signed, serverTime, err := o.transport.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	now := serverTime
	if now.IsZero() {
		now = time.Now()
	}
	return o.validator.Validate(signed, now, currentEnv)
}

// Install runs the full state machine of spec §4.10 for a single module
// descriptor, from CheckingNetwork through Completed or Failed.
func (o *Orchestrator) Install(ctx context.Context, mod manifest.ModuleDescriptor, onProgress ProgressFunc) (string, error) {
	report := func(stage Stage, message string) {
		if onProgress != nil {
			onProgress(stage, message)
		}
	}

	report(StageCheckingNetwork, "")

	report(StagePreflightChecks, "")
	attemptID, err := o.coord.Reserve(mod.ID)
	if err != nil {
		report(StageFailed, err.Error())
		return "", err
	}

	if err := o.diskspace.RequireFreeSpace(o.tmpDir, mod.SizeBytes); err != nil {
		o.sink.Emit(audit.KindInsufficientDiskSpace, mod.ID, map[string]string{"required_bytes": fmt.Sprintf("%d", mod.SizeBytes)})
		o.coord.Complete(mod.ID, attemptID, coordinator.EndInsufficientDisk, 0, mod.SizeBytes)
		report(StageFailed, err.Error())
		return "", err
	}

	tempArchive := filepath.Join(o.tmpDir, uuid.NewString()+".zip")
	stagingDir := filepath.Join(o.tmpDir, "UnzipStaging", uuid.NewString())
	cleanupTemp := func() {
		os.Remove(tempArchive)
		os.RemoveAll(stagingDir)
	}

	report(StageDownloading, "")
	downloadErr := o.transport.Download(ctx, mod.DownloadURL, tempArchive, mod.SizeBytes, func(received, expected int64) {
		o.coord.UpdateProgress(mod.ID, attemptID, received, expected)
	})
	if downloadErr != nil {
		cleanupTemp()
		reason := mapDownloadFailure(downloadErr)
		o.coord.Complete(mod.ID, attemptID, reason, 0, mod.SizeBytes)
		report(StageFailed, downloadErr.Error())
		return "", downloadErr
	}

	report(StageVerifyingChecksum, "")
	if err := o.verifyChecksum(tempArchive, mod.ChecksumHex); err != nil {
		o.quarantine.Quarantine(mod.ID, tempArchive, "Checksum mismatch")
		os.RemoveAll(stagingDir)
		o.coord.Complete(mod.ID, attemptID, coordinator.EndChecksumFail, mod.SizeBytes, mod.SizeBytes)
		report(StageFailed, err.Error())
		return "", err
	}

	report(StageExtracting, "")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		cleanupTemp()
		o.coord.Complete(mod.ID, attemptID, coordinator.EndUnknown, mod.SizeBytes, mod.SizeBytes)
		report(StageFailed, err.Error())
		return "", err
	}
	if err := o.extractor.Extract(tempArchive, stagingDir); err != nil {
		o.quarantine.Quarantine(mod.ID, tempArchive, err.Error())
		os.RemoveAll(stagingDir)
		o.coord.Complete(mod.ID, attemptID, coordinator.EndUnknown, mod.SizeBytes, mod.SizeBytes)
		report(StageFailed, err.Error())
		return "", err
	}
	os.Remove(tempArchive)

	report(StageInstalling, "")
	final, err := o.installer.Install(stagingDir, mod.Name, mod.SemanticVersion)
	os.RemoveAll(stagingDir)
	if err != nil {
		o.coord.Complete(mod.ID, attemptID, coordinator.EndUnknown, mod.SizeBytes, mod.SizeBytes)
		report(StageFailed, err.Error())
		return "", err
	}

	report(StageIntegrityCheck, "")
	if err := o.integrity.Validate(final); err != nil {
		os.RemoveAll(final)
		o.coord.Complete(mod.ID, attemptID, coordinator.EndIntegrity, mod.SizeBytes, mod.SizeBytes)
		report(StageFailed, err.Error())
		return "", err
	}

	o.coord.Complete(mod.ID, attemptID, coordinator.EndSuccess, mod.SizeBytes, mod.SizeBytes)
	o.sink.Emit(audit.KindInstallationSuccess, mod.ID, map[string]string{"version": mod.SemanticVersion})
	report(StageCompleted, "")
	return final, nil
}

// verifyChecksum hashes tempArchive with the configured algorithm and
// emits the matching audit event; the checksum package itself has no
// sink dependency, so the orchestrator owns this side effect.
func (o *Orchestrator) verifyChecksum(archivePath, expectedHex string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeChecksumMismatch,
			fmt.Sprintf("orchestrator: failed to open %q for checksum", archivePath), "", err)
	}
	defer f.Close()

	ok, err := checksum.Verify(f, expectedHex, o.params.ChecksumAlgorithm)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeChecksumMismatch,
			"orchestrator: failed to compute checksum", "", err)
	}
	if !ok {
		o.sink.Emit(audit.KindChecksumMismatch, "", map[string]string{"expected": expectedHex})
		return pipelineerrors.New(pipelineerrors.KindSizing, pipelineerrors.CodeChecksumMismatch,
			"downloaded archive checksum does not match the manifest", "the archive may have been corrupted or tampered with", nil)
	}
	o.sink.Emit(audit.KindChecksumVerified, "", map[string]string{"algorithm": string(o.params.ChecksumAlgorithm)})
	return nil
}

// mapDownloadFailure translates a transport error's code into the
// coordinator's closed EndReason enumeration (spec §4.10's failure
// routing table).
func mapDownloadFailure(err error) coordinator.EndReason {
	switch {
	case pipelineerrors.IsCode(err, pipelineerrors.CodeNoInternet):
		return coordinator.EndNoInternet
	case pipelineerrors.IsCode(err, pipelineerrors.CodeTimeout):
		return coordinator.EndTimeout
	case pipelineerrors.IsCode(err, pipelineerrors.CodeCancelled):
		return coordinator.EndCancelled
	case pipelineerrors.IsCode(err, pipelineerrors.CodeBadStatus):
		return coordinator.EndServerError
	default:
		return coordinator.EndUnknown
	}
}

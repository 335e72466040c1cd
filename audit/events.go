// Package audit implements the security-event taxonomy from the module
// delivery pipeline: a closed set of typed events, each carrying a
// severity, emitted non-blockingly to a logging.Logger-backed sink.
package audit

// Severity classifies how serious an event is for alerting purposes.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityDefault Severity = "default"
	SeverityError   Severity = "error"
	SeverityFault   Severity = "fault"
)

// Kind identifies one member of the closed event enumeration in spec §4.9.
type Kind string

const (
	KindSignatureVerified            Kind = "signature_verified"
	KindSignatureVerificationFailed  Kind = "signature_verification_failed"
	KindInvalidSignatureDetected     Kind = "invalid_signature_detected"
	KindChecksumVerified             Kind = "checksum_verified"
	KindChecksumMismatch             Kind = "checksum_mismatch"
	KindCertificatePinningSuccess    Kind = "certificate_pinning_success"
	KindCertificatePinningFailed     Kind = "certificate_pinning_failed"
	KindPathTraversalAttempt         Kind = "path_traversal_attempt"
	KindSymlinkDetected              Kind = "symlink_detected"
	KindForbiddenFileDetected        Kind = "forbidden_file_detected"
	KindZipBombDetected              Kind = "zip_bomb_detected"
	KindInstallationSuccess          Kind = "installation_success"
	KindInstallationFailed           Kind = "installation_failed"
	KindRollbackPerformed            Kind = "rollback_performed"
	KindReplayAttemptDetected        Kind = "replay_attempt_detected"
	KindRateLimitExceeded            Kind = "rate_limit_exceeded"
	KindManifestTimestampInFuture    Kind = "manifest_timestamp_in_future"
	KindModuleQuarantined            Kind = "module_quarantined"
	KindQuarantineReleased           Kind = "quarantine_released"
	KindIntegrityCheckPassed         Kind = "integrity_check_passed"
	KindIntegrityCheckFailed         Kind = "integrity_check_failed"
	KindInsufficientDiskSpace        Kind = "insufficient_disk_space"
)

// severityOf implements the fixed severity mapping from spec §4.9: pinning,
// extraction, replay, and quarantine events are Fault; checksum-mismatch,
// rollback, zip-bomb, install-failed, and integrity-failed are Error;
// rate-limit and disk-space are Default; success events are Info.
func severityOf(kind Kind) Severity {
	switch kind {
	case KindCertificatePinningFailed,
		KindPathTraversalAttempt,
		KindSymlinkDetected,
		KindForbiddenFileDetected,
		KindReplayAttemptDetected,
		KindModuleQuarantined,
		KindQuarantineReleased,
		KindInvalidSignatureDetected,
		KindSignatureVerificationFailed:
		return SeverityFault
	case KindChecksumMismatch,
		KindRollbackPerformed,
		KindZipBombDetected,
		KindInstallationFailed,
		KindIntegrityCheckFailed:
		return SeverityError
	case KindRateLimitExceeded,
		KindInsufficientDiskSpace,
		KindManifestTimestampInFuture:
		return SeverityDefault
	default:
		return SeverityInfo
	}
}

// Event is one occurrence of a Kind, with a free-form detail payload. Fields
// is a flat string map rather than `any` so every event serializes the same
// way regardless of sink (JSON log, test spy, future metrics exporter).
type Event struct {
	Kind     Kind              `json:"kind"`
	Severity Severity          `json:"severity"`
	Module   string            `json:"module,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// New builds an Event with the severity derived from kind, so callers never
// have to get the mapping right by hand.
func New(kind Kind, module string, fields map[string]string) Event {
	return Event{Kind: kind, Severity: severityOf(kind), Module: module, Fields: fields}
}

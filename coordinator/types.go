// Package coordinator implements DownloadCoordinator from spec §4.4: a
// single-mutex-serialized gate on concurrency, per-module cooldown, and
// hourly quota, with a bounded in-memory history ring.
package coordinator

import "time"

// EndReason is the closed set of ways an attempt can terminate (spec §4.4).
type EndReason string

const (
	EndSuccess          EndReason = "success"
	EndCancelled        EndReason = "cancelled"
	EndNoInternet       EndReason = "no_internet"
	EndTimeout          EndReason = "timeout"
	EndServerError      EndReason = "server_error"
	EndChecksumFail     EndReason = "checksum_mismatch"
	EndIntegrity        EndReason = "integrity_failed"
	EndInsufficientDisk EndReason = "insufficient_disk"
	EndUnknown          EndReason = "unknown"
)

// Attempt is the in-memory record of a reserved, in-flight download
// (spec §3 DownloadAttempt).
type Attempt struct {
	ModuleID      string
	AttemptID     string
	StartedAt     time.Time
	LastUpdatedAt time.Time
	BytesReceived int64
	ExpectedBytes int64
}

// Record is a completed attempt retained in the bounded history ring
// (spec §3 DownloadRecord).
type Record struct {
	ModuleID        string
	AttemptID       string
	StartedAt       time.Time
	FinishedAt      time.Time
	Success         bool
	EndReason       EndReason
	BytesDownloaded int64
	ExpectedBytes   int64
}

// Statistics summarizes coordinator state for monitoring.
type Statistics struct {
	Active      int
	Total       int
	Success     int
	Failed      int
	TotalBytes  int64
}

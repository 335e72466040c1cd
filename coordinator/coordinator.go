package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/moduledelivery/config"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// Coordinator serializes all mutation of the active-attempt table and
// history ring behind a single mutex, matching the teacher's
// ratelimit.MemoryRateLimiter discipline (one mutex, no reentrant locks,
// a single struct owns both pieces of state since spec §5 requires they
// be mutated together).
type Coordinator struct {
	mu      sync.Mutex
	active  map[string]*Attempt // keyed by module_id
	history []Record            // oldest first, trimmed to params.MaxHistory
	params  config.SecurityParameters
	now     func() time.Time
}

// New builds a Coordinator. now defaults to time.Now; tests may override
// it to make cooldown/quota boundaries deterministic.
func New(params config.SecurityParameters) *Coordinator {
	return &Coordinator{
		active: make(map[string]*Attempt),
		params: params,
		now:    time.Now,
	}
}

// Reserve grants a new attempt for moduleID or fails with a policy error
// per spec §4.4's check order: concurrency cap, already-in-progress,
// cooldown, then hourly quota.
func (c *Coordinator) Reserve(moduleID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if len(c.active) >= c.params.MaxConcurrentDownloads {
		return "", pipelineerrors.New(pipelineerrors.KindPolicy, pipelineerrors.CodeTooManyConcurrent,
			fmt.Sprintf("too many concurrent downloads (limit %d)", c.params.MaxConcurrentDownloads),
			"wait for an in-flight download to finish", nil)
	}
	if _, inProgress := c.active[moduleID]; inProgress {
		return "", pipelineerrors.New(pipelineerrors.KindPolicy, pipelineerrors.CodeAlreadyInProgress,
			fmt.Sprintf("module %s already has a download in progress", moduleID),
			"wait for the existing download to complete", nil)
	}

	if retryAfter, onCooldown := c.cooldownRemaining(moduleID, now); onCooldown {
		return "", pipelineerrors.WithContext(
			pipelineerrors.New(pipelineerrors.KindPolicy, pipelineerrors.CodeRateLimitExceeded,
				"module download cooldown has not elapsed", "retry after the cooldown window", nil),
			"retry_after", retryAfter.String())
	}

	if c.countSince(now.Add(-time.Hour)) >= c.params.MaxDownloadsPerHour {
		return "", pipelineerrors.New(pipelineerrors.KindPolicy, pipelineerrors.CodeDownloadQuotaExceeded,
			fmt.Sprintf("hourly download quota of %d exceeded", c.params.MaxDownloadsPerHour),
			"wait for the hourly quota window to roll over", nil)
	}

	attemptID := uuid.NewString()
	c.active[moduleID] = &Attempt{
		ModuleID:      moduleID,
		AttemptID:     attemptID,
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	return attemptID, nil
}

// cooldownRemaining reports whether moduleID's most recent finished
// attempt is still within the cooldown window, and if so, how much of it
// remains.
func (c *Coordinator) cooldownRemaining(moduleID string, now time.Time) (time.Duration, bool) {
	if c.params.DownloadCooldown <= 0 {
		return 0, false
	}
	for i := len(c.history) - 1; i >= 0; i-- {
		rec := c.history[i]
		if rec.ModuleID != moduleID {
			continue
		}
		elapsed := now.Sub(rec.FinishedAt)
		if elapsed < c.params.DownloadCooldown {
			return c.params.DownloadCooldown - elapsed, true
		}
		return 0, false
	}
	return 0, false
}

// countSince counts history records that finished at or after since.
func (c *Coordinator) countSince(since time.Time) int {
	count := 0
	for _, rec := range c.history {
		if !rec.FinishedAt.Before(since) {
			count++
		}
	}
	return count
}

// UpdateProgress records bytes received for the active attempt matching
// moduleID and attemptID, ignoring stale tuples whose attemptID no longer
// matches the active entry (an update from an attempt the coordinator has
// already completed or never reserved).
func (c *Coordinator) UpdateProgress(moduleID, attemptID string, bytesReceived, expectedBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	att, ok := c.active[moduleID]
	if !ok || att.AttemptID != attemptID {
		return
	}
	att.BytesReceived = bytesReceived
	if expectedBytes > 0 {
		att.ExpectedBytes = expectedBytes
	}
	att.LastUpdatedAt = c.now()
}

// Complete terminates an attempt: removes it from the active table (if
// still present and matching) and appends a Record to history, trimming
// history beyond MaxHistory. If the active entry is already gone (e.g. a
// duplicate completion call), startedAt falls back to now so a Record is
// still produced, though callers should ensure Complete runs exactly once
// per Reserve per spec §4.4.
func (c *Coordinator) Complete(moduleID, attemptID string, reason EndReason, bytesDownloaded, expectedBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	startedAt := now

	if att, ok := c.active[moduleID]; ok && att.AttemptID == attemptID {
		startedAt = att.StartedAt
		delete(c.active, moduleID)
	}

	c.history = append(c.history, Record{
		ModuleID:        moduleID,
		AttemptID:       attemptID,
		StartedAt:       startedAt,
		FinishedAt:      now,
		Success:         reason == EndSuccess,
		EndReason:       reason,
		BytesDownloaded: bytesDownloaded,
		ExpectedBytes:   expectedBytes,
	})

	if len(c.history) > c.params.MaxHistory {
		c.history = c.history[len(c.history)-c.params.MaxHistory:]
	}
}

// Statistics summarizes active attempts plus completed history.
func (c *Coordinator) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{Active: len(c.active), Total: len(c.history)}
	for _, rec := range c.history {
		if rec.Success {
			stats.Success++
		} else {
			stats.Failed++
		}
		stats.TotalBytes += rec.BytesDownloaded
	}
	return stats
}

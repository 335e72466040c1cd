package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// SignedLogger wraps a writer to automatically HMAC-sign every entry,
// giving the append-only security log (spec §3 SecurityLogs) tamper
// evidence independent of the RSA manifest signature. It satisfies Logger.
type SignedLogger struct {
	writer io.Writer
	config *SignatureConfig
}

// NewSignedLogger creates a SignedLogger with the given writer and config.
// The config must have a valid secret key (at least 32 bytes).
func NewSignedLogger(w io.Writer, config *SignatureConfig) *SignedLogger {
	return &SignedLogger{
		writer: w,
		config: config,
	}
}

// Log signs entry and writes it as JSON.
// On signing errors, it logs to stderr but doesn't fail (fail-open for availability).
func (l *SignedLogger) Log(entry any) {
	signed, err := NewSignedEntry(entry, l.config)
	if err != nil {
		// Fail-open: log error to stderr but continue
		fmt.Fprintf(os.Stderr, "signing error: %v\n", err)
		// Still write the unsigned entry as fallback
		l.writeFallback(entry)
		return
	}

	data, err := json.Marshal(signed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal error: %v\n", err)
		return
	}

	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// writeFallback writes an unsigned entry when signing fails.
// This ensures audit logs are still captured even if signing is misconfigured.
func (l *SignedLogger) writeFallback(entry any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

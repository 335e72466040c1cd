package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type sampleEntry struct {
	Name string `json:"name"`
}

func TestJSONLoggerWritesOneLinePerEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf)

	logger.Log(sampleEntry{Name: "a"})
	logger.Log(sampleEntry{Name: "b"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var got sampleEntry
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("line 0 not valid JSON: %v", err)
	}
	if got.Name != "a" {
		t.Errorf("got %q, want %q", got.Name, "a")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNopLogger()
	logger.Log(sampleEntry{Name: "ignored"})
}

func TestSignedLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cfg := &SignatureConfig{KeyID: "k1", SecretKey: bytes.Repeat([]byte{0x42}, 32)}
	logger := NewSignedLogger(&buf, cfg)

	logger.Log(sampleEntry{Name: "audit-event"})

	var signed SignedEntry
	if err := json.Unmarshal(buf.Bytes(), &signed); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	ok, err := signed.Verify(cfg.SecretKey)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Error("expected signature to verify")
	}

	var entry sampleEntry
	if err := signed.GetEntry(&entry); err != nil {
		t.Fatalf("GetEntry error: %v", err)
	}
	if entry.Name != "audit-event" {
		t.Errorf("got %q, want %q", entry.Name, "audit-event")
	}
}

func TestSignedLoggerTamperDetection(t *testing.T) {
	cfg := &SignatureConfig{KeyID: "k1", SecretKey: bytes.Repeat([]byte{0x42}, 32)}
	signed, err := NewSignedEntry(sampleEntry{Name: "original"}, cfg)
	if err != nil {
		t.Fatalf("NewSignedEntry error: %v", err)
	}
	signed.Entry = json.RawMessage(`{"name":"tampered"}`)

	ok, err := signed.Verify(cfg.SecretKey)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Error("expected tampered entry to fail verification")
	}
}

package transport

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/byteness/moduledelivery/audit"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
	"github.com/byteness/moduledelivery/logging"
	"github.com/byteness/moduledelivery/pinning"
)

func TestFetchManifestParsesWireShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"manifest": {
				"modules": [{"id":"feature-dashboard","name":"Dashboard Module","version":"1.0.0","checksum":"abc","size":1024,"environment":"development"}],
				"timestamp": "2026-07-30T12:00:00Z",
				"nonce": "0123456789abcdef",
				"environment": "development",
				"signature": "c2lnbmF0dXJl"
			},
			"server_time": "2026-07-30T12:00:01Z"
		}`))
	}))
	defer server.Close()

	tr := New(server.URL, 5*time.Second, nil)
	signed, serverTime, err := tr.FetchManifest(context.Background())
	if err != nil {
		t.Fatalf("FetchManifest: %v", err)
	}
	if len(signed.Body.Modules) != 1 || signed.Body.Modules[0].ID != "feature-dashboard" {
		t.Fatalf("unexpected modules: %+v", signed.Body.Modules)
	}
	if signed.Body.Nonce != "0123456789abcdef" {
		t.Errorf("unexpected nonce: %q", signed.Body.Nonce)
	}
	if signed.SignatureBase64 != "c2lnbmF0dXJl" {
		t.Errorf("unexpected signature: %q", signed.SignatureBase64)
	}
	if serverTime.IsZero() {
		t.Error("expected non-zero server time")
	}
}

func TestFetchManifestRejectsNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := New(server.URL, 5*time.Second, nil)
	_, _, err := tr.FetchManifest(context.Background())
	if !pipelineerrors.IsCode(err, pipelineerrors.CodeBadStatus) {
		t.Fatalf("expected CodeBadStatus, got %v", err)
	}
}

func TestDownloadWritesBytesAndReportsProgress(t *testing.T) {
	payload := []byte("archive-bytes-here")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "archive.zip")
	var lastReceived int64
	tr := New(server.URL, 5*time.Second, nil)
	err := tr.Download(context.Background(), server.URL, dest, int64(len(payload)), func(received, expected int64) {
		lastReceived = received
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("unexpected content: %q", data)
	}
	if lastReceived != int64(len(payload)) {
		t.Errorf("expected progress callback to report full size, got %d", lastReceived)
	}
}

func TestDownloadRejectsNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "archive.zip")
	tr := New(server.URL, 5*time.Second, nil)
	err := tr.Download(context.Background(), server.URL, dest, 0, nil)
	if !pipelineerrors.IsCode(err, pipelineerrors.CodeBadStatus) {
		t.Fatalf("expected CodeBadStatus, got %v", err)
	}
}

func TestDownloadMapsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("x"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "archive.zip")
	tr := New(server.URL, 5*time.Second, nil)
	err := tr.Download(ctx, server.URL, dest, 0, nil)
	if err == nil {
		t.Fatal("expected Download to fail on a pre-cancelled context")
	}
}

func newTestSink(t *testing.T) *audit.Sink {
	t.Helper()
	sink := audit.NewSink(logging.NewNopLogger())
	t.Cleanup(sink.Close)
	return sink
}

// trustServerCert installs tlsServer's own leaf certificate as the only
// root the transport's client trusts, so pinning is exercised without
// disabling Go's own chain verification (InsecureSkipVerify stays false).
func trustServerCert(t *testing.T, tr *HTTPTransport, tlsServer *httptest.Server) {
	t.Helper()
	pool := x509.NewCertPool()
	pool.AddCert(tlsServer.Certificate())
	tr.client.Transport.(*http.Transport).TLSClientConfig.RootCAs = pool
}

func TestDownloadAcceptsPinnedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archive-bytes"))
	}))
	defer server.Close()

	spkiHash := sha256.Sum256(server.Certificate().RawSubjectPublicKeyInfo)
	pinned := base64.StdEncoding.EncodeToString(spkiHash[:])
	pinner := pinning.New([]string{pinned}, false, newTestSink(t))

	tr := New(server.URL, 5*time.Second, pinner)
	trustServerCert(t, tr, server)

	dest := filepath.Join(t.TempDir(), "archive.zip")
	if err := tr.Download(context.Background(), server.URL, dest, 0, nil); err != nil {
		t.Fatalf("expected download over a pinned certificate to succeed, got %v", err)
	}
}

func TestDownloadRejectsUnpinnedCertificate(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archive-bytes"))
	}))
	defer server.Close()

	pinner := pinning.New([]string{"deadbeef"}, false, newTestSink(t))

	tr := New(server.URL, 5*time.Second, pinner)
	trustServerCert(t, tr, server)

	dest := filepath.Join(t.TempDir(), "archive.zip")
	if err := tr.Download(context.Background(), server.URL, dest, 0, nil); err == nil {
		t.Fatal("expected download over an unpinned certificate to fail")
	}
}

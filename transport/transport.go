// Package transport implements the HTTP edges of the module delivery
// pipeline described in spec §6: fetching the signed manifest and
// downloading archive bytes, with every network failure mapped onto the
// Network error kind so the orchestrator never branches on a raw
// net/http error.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	pipelineerrors "github.com/byteness/moduledelivery/errors"
	"github.com/byteness/moduledelivery/iso8601"
	"github.com/byteness/moduledelivery/manifest"
	"github.com/byteness/moduledelivery/pinning"
)

// ProgressFunc reports incremental download progress so a caller (the
// orchestrator, ultimately the DownloadCoordinator) can surface
// DownloadStage updates without the transport depending on either.
type ProgressFunc func(bytesReceived, expectedBytes int64)

// Transport is the capability interface the orchestrator depends on
// (spec §9: "the orchestrator polymorphic over {Transport, ...}").
// HTTPTransport is the only implementation; tests substitute a fake.
type Transport interface {
	FetchManifest(ctx context.Context) (manifest.SignedManifest, time.Time, error)
	Download(ctx context.Context, downloadURL, destPath string, expectedBytes int64, onProgress ProgressFunc) error
}

// HTTPTransport talks to the manifest and download endpoints over
// net/http, grounded on the teacher's notification.WebhookNotifier (a
// single *http.Client with an explicit Timeout, context-aware requests,
// and 2xx/5xx/4xx status classification) generalized here to GET
// requests and streamed downloads instead of webhook POSTs.
type HTTPTransport struct {
	client      *http.Client
	manifestURL string
}

// New builds an HTTPTransport. timeout bounds a single request (spec
// §6's download_timeout security parameter); overall per-attempt
// cancellation is the caller's context. pinner enforces spec §4.3
// certificate pinning on every TLS handshake this transport makes,
// for both the manifest endpoint and any download host; pass nil to
// run without pinning (tests substitute a fake Transport instead).
func New(manifestURL string, timeout time.Duration, pinner *pinning.Pinner) *HTTPTransport {
	client := &http.Client{Timeout: timeout}
	if pinner != nil {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				VerifyConnection: func(state tls.ConnectionState) error {
					return pinner.VerifyConnection(state.ServerName)(state)
				},
			},
		}
	}
	return &HTTPTransport{
		client:      client,
		manifestURL: manifestURL,
	}
}

type wireManifest struct {
	Modules     []manifest.ModuleDescriptor `json:"modules"`
	Timestamp   string                      `json:"timestamp"`
	Nonce       string                      `json:"nonce"`
	Environment string                      `json:"environment"`
	Signature   string                      `json:"signature"`
}

type wireResponse struct {
	Manifest   wireManifest `json:"manifest"`
	ServerTime string       `json:"server_time"`
}

// FetchManifest performs the manifest endpoint GET of spec §6 and
// decodes its wire shape into the internal SignedManifest/Body split.
func (t *HTTPTransport) FetchManifest(ctx context.Context) (manifest.SignedManifest, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.manifestURL, nil)
	if err != nil {
		return manifest.SignedManifest{}, time.Time{}, pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeBadURL,
			fmt.Sprintf("transport: invalid manifest URL %q", t.manifestURL), "", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return manifest.SignedManifest{}, time.Time{}, classifyNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return manifest.SignedManifest{}, time.Time{}, pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeBadStatus,
			fmt.Sprintf("manifest endpoint returned status %d", resp.StatusCode), "", nil)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return manifest.SignedManifest{}, time.Time{}, pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeUnknownNet,
			"transport: failed to decode manifest response", "", err)
	}

	timestamp, err := iso8601.Parse(wire.Manifest.Timestamp)
	if err != nil {
		return manifest.SignedManifest{}, time.Time{}, pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeUnknownNet,
			"transport: manifest timestamp is not valid ISO-8601", "", err)
	}
	serverTime, err := iso8601.Parse(wire.ServerTime)
	if err != nil {
		serverTime = time.Now()
	}

	signed := manifest.SignedManifest{
		Body: manifest.Body{
			Modules:     wire.Manifest.Modules,
			Timestamp:   timestamp,
			Nonce:       wire.Manifest.Nonce,
			Environment: wire.Manifest.Environment,
		},
		SignatureBase64: wire.Manifest.Signature,
	}
	return signed, serverTime, nil
}

// Download streams the archive at downloadURL into destPath, validating
// Content-Length against expectedBytes when the server advertises one
// and reporting progress as bytes arrive.
func (t *HTTPTransport) Download(ctx context.Context, downloadURL, destPath string, expectedBytes int64, onProgress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeBadURL,
			fmt.Sprintf("transport: invalid download URL %q", downloadURL), "", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeBadStatus,
			fmt.Sprintf("download endpoint returned status %d", resp.StatusCode), "", nil)
	}
	if expectedBytes > 0 && resp.ContentLength >= 0 && resp.ContentLength != expectedBytes {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeBadStatus,
			fmt.Sprintf("download endpoint advertised %d bytes, expected %d", resp.ContentLength, expectedBytes), "", nil)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeUnknownNet,
			fmt.Sprintf("transport: failed to create %q", destPath), "", err)
	}
	defer out.Close()

	counter := &countingWriter{out: out, onProgress: onProgress, expected: expectedBytes}
	if _, err := io.Copy(counter, resp.Body); err != nil {
		if ctx.Err() != nil {
			return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeCancelled,
				"transport: download cancelled", "", ctx.Err())
		}
		return classifyNetworkError(err)
	}
	return nil
}

type countingWriter struct {
	out        io.Writer
	onProgress ProgressFunc
	expected   int64
	received   int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.out.Write(p)
	c.received += int64(n)
	if c.onProgress != nil {
		c.onProgress(c.received, c.expected)
	}
	return n, err
}

// classifyNetworkError maps a raw net/http error onto the Network error
// kind, following the teacher's WebhookNotifier convention of
// distinguishing timeout/cancellation/connectivity instead of surfacing
// the underlying error verbatim.
func classifyNetworkError(err error) pipelineerrors.PipelineError {
	if errors.Is(err, context.Canceled) {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeCancelled,
			"transport: request cancelled", "", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeTimeout,
			"transport: request timed out", "retry once connectivity is restored", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeTimeout,
			"transport: request timed out", "retry once connectivity is restored", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if _, ok := urlErr.Err.(*net.DNSError); ok {
			return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeNoInternet,
				"transport: no network connectivity", "check the network connection and retry", err)
		}
	}
	return pipelineerrors.New(pipelineerrors.KindNetwork, pipelineerrors.CodeUnknownNet,
		"transport: request failed", "", err)
}

package pinning

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/logging"
)

func selfSignedCert(t *testing.T) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert
}

func spkiHashOf(cert *x509.Certificate) string {
	h := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(h[:])
}

func newTestSink(t *testing.T) *audit.Sink {
	t.Helper()
	sink := audit.NewSink(logging.NewNopLogger())
	t.Cleanup(sink.Close)
	return sink
}

func TestVerifyAcceptsPinnedHash(t *testing.T) {
	cert := selfSignedCert(t)
	p := New([]string{spkiHashOf(cert)}, false, newTestSink(t))

	if err := p.Verify("modules.example.com", cert); err != nil {
		t.Fatalf("expected pinned hash to verify, got %v", err)
	}
}

func TestVerifyRejectsUnpinnedHash(t *testing.T) {
	cert := selfSignedCert(t)
	p := New([]string{"deadbeef"}, false, newTestSink(t))

	if err := p.Verify("modules.example.com", cert); err == nil {
		t.Error("expected unpinned certificate to be rejected")
	}
}

func TestVerifyAllowsLocalhostBypass(t *testing.T) {
	p := New(nil, true, newTestSink(t))

	if err := p.Verify("localhost", nil); err != nil {
		t.Fatalf("expected localhost bypass to accept, got %v", err)
	}
}

func TestVerifyRejectsNilCertificateOutsideLocalhost(t *testing.T) {
	p := New(nil, true, newTestSink(t))

	if err := p.Verify("modules.example.com", nil); err == nil {
		t.Error("expected nil certificate to be rejected for non-localhost host")
	}
}

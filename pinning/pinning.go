// Package pinning implements CertificatePinner from spec §4.3: deciding a
// TLS certificate challenge by comparing the server leaf certificate's
// SPKI SHA-256 hash against a pinned allowlist.
package pinning

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"

	"github.com/byteness/moduledelivery/audit"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// Pinner holds the pinned SPKI hash set and the localhost-bypass policy.
type Pinner struct {
	pinnedHashes           map[string]struct{}
	allowInsecureLocalhost bool
	sink                   *audit.Sink
}

// New builds a Pinner. pinnedHashesBase64 are base64(SHA-256(SPKI)) values,
// matching the encoding the spec requires for comparison.
func New(pinnedHashesBase64 []string, allowInsecureLocalhost bool, sink *audit.Sink) *Pinner {
	set := make(map[string]struct{}, len(pinnedHashesBase64))
	for _, h := range pinnedHashesBase64 {
		set[h] = struct{}{}
	}
	return &Pinner{pinnedHashes: set, allowInsecureLocalhost: allowInsecureLocalhost, sink: sink}
}

// isLocalhost reports whether host is a loopback address recognized by the
// spec's insecure-localhost bypass.
func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Verify implements the leaf-certificate SPKI pinning decision of spec
// §4.3. leaf may be nil to represent "no certificate presented". host is
// the remote server's hostname, used only for the localhost bypass.
func (p *Pinner) Verify(host string, leaf *x509.Certificate) error {
	if p.allowInsecureLocalhost && isLocalhost(host) {
		return nil
	}

	if leaf == nil {
		p.sink.Emit(audit.KindCertificatePinningFailed, "", map[string]string{"reason": "no certificate presented"})
		return pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeMalformedPublicKey,
			"certificate pinning: no certificate presented", "verify the server presents a valid TLS certificate chain", nil)
	}

	spkiHash := sha256.Sum256(leaf.RawSubjectPublicKeyInfo)
	encoded := base64.StdEncoding.EncodeToString(spkiHash[:])

	if _, ok := p.pinnedHashes[encoded]; !ok {
		p.sink.Emit(audit.KindCertificatePinningFailed, "", map[string]string{"reason": "no matching pinned hash", "hash": encoded})
		return pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeMalformedPublicKey,
			"certificate pinning: server public key does not match the pinned set", "the server certificate may have rotated or the connection may be intercepted", nil)
	}

	p.sink.Emit(audit.KindCertificatePinningSuccess, "", map[string]string{"hash": encoded})
	return nil
}

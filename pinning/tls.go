package pinning

import (
	"crypto/tls"
	"crypto/x509"
)

// VerifyConnection returns a tls.Config.VerifyConnection hook that applies
// Verify to the server's leaf certificate. Wiring this into an
// http.Transport's TLSClientConfig is how the orchestrator's transport
// enforces pinning without disabling Go's own chain validation
// (InsecureSkipVerify stays false; this is an additional check, not a
// replacement for it).
func (p *Pinner) VerifyConnection(host string) func(tls.ConnectionState) error {
	return func(state tls.ConnectionState) error {
		var leaf *x509.Certificate
		if len(state.PeerCertificates) > 0 {
			leaf = state.PeerCertificates[0]
		}
		return p.Verify(host, leaf)
	}
}

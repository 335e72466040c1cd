package manifest

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	pipelineerrors "github.com/byteness/moduledelivery/errors"
)

// SignatureVerifier verifies RSA-PKCS#1v1.5-SHA256 signatures over a
// canonical manifest body against the public key passed as PEM to
// NewSignatureVerifier (spec §4.2). The key is not embedded in the binary;
// the install command reads it from the --public-key file. crypto/rsa, crypto/x509, and encoding/pem are stdlib
// here because there is no pack library providing RSA PKCS#1v1.5
// verification; every pack repo that touches asymmetric signing (the
// teacher's KMS-backed policy signing, for instance) delegates the actual
// cryptographic primitive to a cloud KMS API, not a Go library, so stdlib
// crypto is the only grounded choice for a self-contained verifier.
type SignatureVerifier struct {
	publicKey *rsa.PublicKey
}

// NewSignatureVerifier parses a PEM-encoded SPKI public key. Malformed
// input is rejected with CodeMalformedPublicKey, never a bare parse error,
// so callers can pattern-match per spec §7.
func NewSignatureVerifier(publicKeyPEM []byte) (*SignatureVerifier, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeMalformedPublicKey,
			"manifest: public key is not valid PEM", "verify the configured public key was generated with the expected tooling", nil)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeMalformedPublicKey,
			"manifest: failed to parse SPKI public key", "regenerate the public key in SPKI/PKIX DER form", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeMalformedPublicKey,
			"manifest: embedded public key is not RSA", "embed an RSA-2048 SPKI public key", nil)
	}

	return &SignatureVerifier{publicKey: rsaPub}, nil
}

// Verify checks signatureBase64 against SHA-256(canonicalBody) using
// RSA-PKCS#1v1.5. Any failure (bad base64, verification mismatch) is
// reported as CodeSignatureVerificationError; the caller decides whether
// that maps to InvalidSignature at the ManifestValidator layer.
func (v *SignatureVerifier) Verify(canonicalBody []byte, signatureBase64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeSignatureVerificationError,
			"manifest: signature is not valid base64", "ensure the server encodes the signature as standard base64", err)
	}

	digest := sha256.Sum256(canonicalBody)
	if err := rsa.VerifyPKCS1v15(v.publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeSignatureVerificationError,
			"manifest: signature verification failed", "confirm the manifest was signed by the expected private key and not altered in transit", err)
	}
	return nil
}

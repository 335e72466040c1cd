// Package manifest implements ManifestValidator and SignatureVerifier from
// spec §4.1/§4.2: parsing, freshness/nonce checks, canonical re-encoding,
// and RSA-PKCS#1v1.5-SHA256 signature verification over the signed
// manifest body.
package manifest

import "time"

// ModuleDescriptor is one advertised module from spec §3. It is immutable
// once returned from Validate.
type ModuleDescriptor struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	SemanticVersion     string `json:"version"`
	ChecksumHex         string `json:"checksum"`
	SizeBytes           int64  `json:"size"`
	DeclaredEnvironment string `json:"environment"`
	DownloadURL         string `json:"download_url"`
}

// Body is the signed portion of a manifest (spec §3 SignedManifest.body).
// Field order here does not affect the wire format: canonical encoding is
// produced separately by Canonicalize, with sorted keys.
type Body struct {
	Modules     []ModuleDescriptor `json:"modules"`
	Timestamp   time.Time          `json:"timestamp"`
	Nonce       string             `json:"nonce"`
	Environment string             `json:"environment"`
}

// SignedManifest is the wire shape returned by the manifest endpoint
// (spec §6): a Body plus its base64-encoded signature.
type SignedManifest struct {
	Body            Body   `json:"body"`
	SignatureBase64 string `json:"signature_base64"`
}

// ValidatedManifest is the result of a successful Validate call: the
// module list with server-confirmed environment and checksum, plus the
// metadata needed by callers deciding what to install.
type ValidatedManifest struct {
	Modules     []ModuleDescriptor
	Timestamp   time.Time
	Nonce       string
	Environment string
}

// minNonceLength is the spec §4.1 floor on manifest nonce length.
const minNonceLength = 16

// maxClockSkew is how far into the future a manifest timestamp may be
// before it is treated as a clock-skew attack (spec §4.1).
const maxClockSkew = 60 * time.Second

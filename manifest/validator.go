package manifest

import (
	"fmt"
	"time"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/config"
	pipelineerrors "github.com/byteness/moduledelivery/errors"
	"github.com/byteness/moduledelivery/iso8601"
	"github.com/byteness/moduledelivery/validate"
)

// Validator implements the ManifestValidator component of spec §4.1: it
// parses a SignedManifest already decoded from JSON, checks freshness and
// nonce, canonicalizes the body, and delegates to SignatureVerifier.
type Validator struct {
	verifier *SignatureVerifier
	sink     *audit.Sink
	params   config.SecurityParameters
}

// NewValidator builds a Validator over the given public-key verifier,
// audit sink, and security parameters (for MaxManifestAge and
// EnforceEnvironmentMatch).
func NewValidator(verifier *SignatureVerifier, sink *audit.Sink, params config.SecurityParameters) *Validator {
	return &Validator{verifier: verifier, sink: sink, params: params}
}

// Validate runs the full freshness/nonce/signature/environment gate from
// spec §4.1 and returns the module list on success.
func (v *Validator) Validate(manifest SignedManifest, now time.Time, currentEnv string) (*ValidatedManifest, error) {
	body := manifest.Body

	age := now.Sub(body.Timestamp)
	if age < -maxClockSkew {
		v.sink.Emit(audit.KindManifestTimestampInFuture, "", map[string]string{"age_seconds": fmt.Sprintf("%.3f", age.Seconds())})
		return nil, pipelineerrors.New(pipelineerrors.KindFreshness, pipelineerrors.CodeTimestampInFuture,
			"manifest timestamp is in the future", "check device and server clock synchronization", nil)
	}
	if age >= v.params.MaxManifestAge {
		v.sink.Emit(audit.KindReplayAttemptDetected, "", map[string]string{"age_seconds": fmt.Sprintf("%.3f", age.Seconds())})
		return nil, pipelineerrors.New(pipelineerrors.KindFreshness, pipelineerrors.CodeTooOld,
			"manifest is older than the allowed replay window", "request a fresh manifest", nil)
	}

	if len(body.Nonce) < minNonceLength {
		return nil, pipelineerrors.New(pipelineerrors.KindFreshness, pipelineerrors.CodeInvalidNonce,
			fmt.Sprintf("manifest nonce is %d characters, must be at least %d", len(body.Nonce), minNonceLength),
			"the server must generate a longer nonce", nil)
	}

	canonicalBody, err := Canonicalize(body)
	if err != nil {
		return nil, pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeSignatureVerificationError,
			"manifest: failed to canonicalize body for signature verification", "", err)
	}

	if err := v.verifier.Verify(canonicalBody, manifest.SignatureBase64); err != nil {
		v.sink.Emit(audit.KindSignatureVerificationFailed, "", map[string]string{"detail": err.Error()})
		return nil, pipelineerrors.New(pipelineerrors.KindCryptographic, pipelineerrors.CodeInvalidSignature,
			"manifest signature is invalid", "reject this manifest; do not install any of its modules", err)
	}
	v.sink.Emit(audit.KindSignatureVerified, "", map[string]string{"algorithm": "rsa-pkcs1v15-sha256"})

	if v.params.EnforceEnvironmentMatch && body.Environment != currentEnv {
		return nil, pipelineerrors.WithContext(
			pipelineerrors.WithContext(
				pipelineerrors.New(pipelineerrors.KindEnvironment, pipelineerrors.CodeEnvironmentMismatch,
					"manifest environment does not match the running environment",
					"request a manifest scoped to this environment", nil),
				"expected", currentEnv),
			"actual", body.Environment)
	}

	for _, mod := range body.Modules {
		if err := v.validateIdentifiers(mod); err != nil {
			return nil, err
		}
	}

	return &ValidatedManifest{
		Modules:     body.Modules,
		Timestamp:   body.Timestamp,
		Nonce:       body.Nonce,
		Environment: body.Environment,
	}, nil
}

// validateIdentifiers rejects a module whose name or version cannot safely
// become a path component under the install root. A valid signature only
// proves the manifest came from the publishing key; it says nothing about
// whether the signer's infrastructure was tricked into embedding a
// traversal sequence, so this check still runs after the signature (and
// the environment match) has passed.
func (v *Validator) validateIdentifiers(mod ModuleDescriptor) error {
	if err := validate.ValidateIdentifier(mod.Name); err != nil {
		v.sink.Emit(audit.KindPathTraversalAttempt, mod.ID, map[string]string{
			"field": "name",
			"value": validate.SanitizeForLog(mod.Name, 128),
		})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodePathTraversal,
			fmt.Sprintf("module name %q is not a safe path component", validate.SanitizeForLog(mod.Name, 128)),
			"reject this manifest", err)
	}
	if err := validate.ValidateIdentifier(mod.SemanticVersion); err != nil {
		v.sink.Emit(audit.KindPathTraversalAttempt, mod.ID, map[string]string{
			"field": "version",
			"value": validate.SanitizeForLog(mod.SemanticVersion, 128),
		})
		return pipelineerrors.New(pipelineerrors.KindContainment, pipelineerrors.CodePathTraversal,
			fmt.Sprintf("module version %q is not a safe path component", validate.SanitizeForLog(mod.SemanticVersion, 128)),
			"reject this manifest", err)
	}
	return nil
}

// ParseTimestamp exposes iso8601.Parse for callers decoding the raw JSON
// timestamp field before constructing a Body.
func ParseTimestamp(s string) (time.Time, error) {
	return iso8601.Parse(s)
}

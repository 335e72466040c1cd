// Package checksum computes and compares SHA-256/SHA-512 digests over
// archive bytes, the spec §4.2/§6 ChecksumEngine component.
package checksum

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/byteness/moduledelivery/config"
)

// NewHash returns a fresh hash.Hash for alg, mirroring the same
// stdlib-crypto grounding the teacher uses for its HMAC log signing
// (logging/signature.go).
func NewHash(alg config.ChecksumAlgorithm) (hash.Hash, error) {
	switch alg {
	case config.SHA256:
		return sha256.New(), nil
	case config.SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("checksum: unsupported algorithm %q", alg)
	}
}

// Sum streams r through alg's hash and returns the lowercase hex digest.
func Sum(r io.Reader, alg config.ChecksumAlgorithm) (string, error) {
	h, err := NewHash(alg)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum: reading input: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether the digest of r under alg equals expectedHex,
// using a constant-time comparison so a byte-by-byte timing side channel
// never leaks how much of the expected digest an attacker has guessed.
func Verify(r io.Reader, expectedHex string, alg config.ChecksumAlgorithm) (bool, error) {
	actual, err := Sum(r, alg)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHex)) == 1, nil
}

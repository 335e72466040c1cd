package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Validate checks a SecurityParameters value for internally inconsistent or
// dangerously permissive settings, returning every issue found rather than
// bailing out on the first one.
func Validate(p SecurityParameters, source string) ValidationResult {
	result := ValidationResult{Source: source, Valid: true, Issues: []ValidationIssue{}}

	if p.MaxDownloadSize <= 0 {
		result.fail("max_download_size", "must be positive", "set a positive byte cap, e.g. 52428800")
	}
	if p.MaxUncompressedSize < p.MaxDownloadSize {
		result.fail("max_uncompressed_size", "must be >= max_download_size", "raise max_uncompressed_size")
	}
	if p.MaxIndividualFileSize > p.MaxUncompressedSize {
		result.warn("max_individual_file_size", "exceeds max_uncompressed_size; a single file could never satisfy the aggregate cap", "lower max_individual_file_size")
	}
	if p.MaxFileCount <= 0 {
		result.fail("max_file_count", "must be positive", "set a positive entry count, e.g. 500")
	}
	if p.DownloadTimeout <= 0 {
		result.fail("download_timeout", "must be positive", "set a positive duration, e.g. 60s")
	}
	if p.DownloadCooldown < 0 {
		result.fail("download_cooldown", "must not be negative", "set to 0 to disable cooldown")
	}
	if p.MaxManifestAge <= 0 {
		result.fail("max_manifest_age", "must be positive", "set a positive replay window, e.g. 300s")
	}
	if p.MaxConcurrentDownloads <= 0 {
		result.fail("max_concurrent_downloads", "must be positive", "set a positive concurrency limit")
	}
	if p.MaxDownloadsPerHour <= 0 {
		result.fail("max_downloads_per_hour", "must be positive", "set a positive hourly quota")
	}
	if p.MaxHistory <= 0 {
		result.fail("max_history", "must be positive", "set a positive ring-buffer size, e.g. 200")
	}
	if len(p.AllowedExtensions) == 0 {
		result.warn("allowed_extensions", "empty allowlist rejects every file with an extension", "list the extensions your modules actually ship")
	}
	if p.ChecksumAlgorithm != SHA256 && p.ChecksumAlgorithm != SHA512 {
		result.fail("checksum_algorithm", fmt.Sprintf("unsupported algorithm %q", p.ChecksumAlgorithm), "use sha256 or sha512")
	}
	if p.AllowInsecureLocalhost {
		result.warn("allow_insecure_localhost", "certificate pinning is bypassed for localhost", "disable outside of local development")
	}
	if len(p.PinnedCertificateHashes) == 0 && !p.AllowInsecureLocalhost {
		result.warn("pinned_certificate_hashes", "no pinned hashes configured; every TLS connection will fail certificate pinning", "list the base64(SHA-256(SPKI)) of the manifest/download endpoint's certificate")
	}

	return result
}

func (r *ValidationResult) fail(location, message, suggestion string) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityError, Location: location, Message: message, Suggestion: suggestion})
}

func (r *ValidationResult) warn(location, message, suggestion string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityWarning, Location: location, Message: message, Suggestion: suggestion})
}

// LoadYAML parses a security-policy YAML document into SecurityParameters,
// starting from Default() so an operator only needs to specify overrides.
func LoadYAML(data []byte) (SecurityParameters, error) {
	params := Default()
	if err := yaml.Unmarshal(data, &params); err != nil {
		return SecurityParameters{}, fmt.Errorf("config: parsing security parameters: %w", err)
	}
	return params, nil
}

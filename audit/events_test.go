package audit

import "testing"

func TestSeverityMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want Severity
	}{
		{KindCertificatePinningFailed, SeverityFault},
		{KindPathTraversalAttempt, SeverityFault},
		{KindModuleQuarantined, SeverityFault},
		{KindChecksumMismatch, SeverityError},
		{KindRollbackPerformed, SeverityError},
		{KindZipBombDetected, SeverityError},
		{KindRateLimitExceeded, SeverityDefault},
		{KindInsufficientDiskSpace, SeverityDefault},
		{KindChecksumVerified, SeverityInfo},
		{KindInstallationSuccess, SeverityInfo},
	}
	for _, c := range cases {
		got := New(c.kind, "mod", nil).Severity
		if got != c.want {
			t.Errorf("severityOf(%s) = %s, want %s", c.kind, got, c.want)
		}
	}
}

func TestNewCarriesModuleAndFields(t *testing.T) {
	ev := New(KindChecksumMismatch, "feature-dashboard", map[string]string{"expected": "aa", "actual": "bb"})
	if ev.Module != "feature-dashboard" {
		t.Errorf("Module = %q, want %q", ev.Module, "feature-dashboard")
	}
	if ev.Fields["expected"] != "aa" {
		t.Errorf("Fields[expected] = %q, want %q", ev.Fields["expected"], "aa")
	}
}

package semver

import "testing"

func TestSatisfiesRange(t *testing.T) {
	tests := []struct {
		version string
		rng     string
		want    bool
	}{
		{"1.2.3", "", true},
		{"1.2.3", "1", true},
		{"1.2.3", "2", false},
		{"1.2.3", "^1.0.0", true},
		{"2.0.0", "^1.0.0", false},
		{"1.2.3", "~1.2.0", true},
		{"1.3.0", "~1.2.0", false},
		{"1.2.3", ">=1.0.0 <2.0.0", true},
		{"1.2.3", "1.2.3", true},
		{"not-a-version", "^1.0.0", false},
		{"1.2.3", "not a range", false},
	}
	for _, tt := range tests {
		if got := SatisfiesRange(tt.version, tt.rng); got != tt.want {
			t.Errorf("semver:version_test - SatisfiesRange(%q, %q) = %v, want %v", tt.version, tt.rng, got, tt.want)
		}
	}
}

func TestValidateVersion(t *testing.T) {
	got, err := ValidateVersion("1.0.0")
	if err != nil {
		t.Fatalf("semver:version_test - unexpected error: %v", err)
	}
	if got != "1.0.0" {
		t.Errorf("semver:version_test - ValidateVersion = %q, want 1.0.0", got)
	}
	for _, bad := range []string{"", "1", "1.0", "v1.0.0", "one"} {
		if _, err := ValidateVersion(bad); err == nil {
			t.Errorf("semver:version_test - expected error for %q", bad)
		}
	}
}

func TestValidateRange(t *testing.T) {
	for _, ok := range []string{"", "3", "^1.2.0", ">=1.0.0 <2.0.0"} {
		if err := ValidateRange(ok); err != nil {
			t.Errorf("semver:version_test - ValidateRange(%q) unexpected error: %v", ok, err)
		}
	}
	if err := ValidateRange("!!"); err == nil {
		t.Error("semver:version_test - expected error for malformed range")
	}
}

package version

import (
	"strings"
	"testing"
	"time"
)

func TestGetVersion_Defaults(t *testing.T) {
	ResetBuildVars()
	defer ResetBuildVars()

	vi := GetVersion()

	if vi.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", vi.Version, DefaultVersion)
	}
	if vi.Commit != DefaultCommit {
		t.Errorf("Commit = %q, want %q", vi.Commit, DefaultCommit)
	}
	if vi.BuildTime != DefaultBuildTime {
		t.Errorf("BuildTime = %q, want %q", vi.BuildTime, DefaultBuildTime)
	}
	if !vi.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true for default build")
	}
}

func TestGetVersion_InjectedValues(t *testing.T) {
	SetBuildVars("v2.3.4", "abc123def", "2025-06-01T12:00:00Z")
	defer ResetBuildVars()

	vi := GetVersion()

	if vi.Version != "v2.3.4" {
		t.Errorf("Version = %q, want v2.3.4", vi.Version)
	}
	if vi.Commit != "abc123def" {
		t.Errorf("Commit = %q, want abc123def", vi.Commit)
	}
	if vi.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false for injected version")
	}
}

func TestVersionInfo_FormatShort(t *testing.T) {
	vi := &VersionInfo{Version: "v1.0.0", Commit: "abc", BuildTime: "2025-01-01T00:00:00Z"}

	if got := vi.FormatShort(); got != "v1.0.0" {
		t.Errorf("FormatShort() = %q, want v1.0.0", got)
	}
}

func TestVersionInfo_FormatFull(t *testing.T) {
	vi := &VersionInfo{Version: "v1.0.0", Commit: "abc123", BuildTime: "2025-01-01T00:00:00Z"}

	got := vi.FormatFull()
	wantLines := []string{
		ApplicationName,
		"Version: v1.0.0",
		"Commit: abc123",
		"Built: 2025-01-01T00:00:00Z",
	}

	for _, line := range wantLines {
		if !strings.Contains(got, line) {
			t.Errorf("FormatFull() missing line %q, got:\n%s", line, got)
		}
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("FormatFull() must end with a newline")
	}
}

func TestVersionInfo_Write(t *testing.T) {
	vi := &VersionInfo{Version: "v1.0.0", Commit: "abc", BuildTime: "unknown"}

	t.Run("short", func(t *testing.T) {
		var sb strings.Builder
		if err := vi.Write(&sb, true); err != nil {
			t.Fatalf("Write(short) error: %v", err)
		}
		if sb.String() != "v1.0.0\n" {
			t.Errorf("Write(short) = %q, want %q", sb.String(), "v1.0.0\n")
		}
	})

	t.Run("full", func(t *testing.T) {
		var sb strings.Builder
		if err := vi.Write(&sb, false); err != nil {
			t.Fatalf("Write(full) error: %v", err)
		}
		if sb.String() != vi.FormatFull() {
			t.Errorf("Write(full) = %q, want FormatFull output", sb.String())
		}
	})
}

func TestVersionInfo_BuildTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		buildTime string
		wantZero  bool
	}{
		{"rfc3339", "2025-06-01T12:00:00Z", false},
		{"rfc3339 with offset", "2025-06-01T12:00:00+02:00", false},
		{"default placeholder", DefaultBuildTime, true},
		{"garbage", "last tuesday", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vi := &VersionInfo{BuildTime: tt.buildTime}
			got := vi.BuildTimestamp()

			if tt.wantZero != got.IsZero() {
				t.Errorf("BuildTimestamp() = %v, wantZero = %v", got, tt.wantZero)
			}
			if !tt.wantZero {
				parsed, err := time.Parse(time.RFC3339, tt.buildTime)
				if err != nil {
					t.Fatalf("test input must be RFC3339: %v", err)
				}
				if !got.Equal(parsed) {
					t.Errorf("BuildTimestamp() = %v, want %v", got, parsed)
				}
			}
		})
	}
}

func TestApplicationNameConstant(t *testing.T) {
	if ApplicationName != "GameAdvisor CLI" {
		t.Errorf("ApplicationName = %q, want %q", ApplicationName, "GameAdvisor CLI")
	}
}

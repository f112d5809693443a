package version

import (
	"runtime"
	"strings"
	"testing"
)

func stubVCS(t *testing.T, revision, at string) {
	t.Helper()
	orig := vcsStamp
	vcsStamp = func() (string, string) { return revision, at }
	t.Cleanup(func() { vcsStamp = orig })
}

func TestBuildNumber(t *testing.T) {
	original := Build
	defer func() { Build = original }()

	tests := []struct {
		build string
		want  int
	}{
		{"12", 12},
		{"0", 0},
		{"", 0},
		{"abc", 0},
		{"-3", 0},
	}

	for _, tt := range tests {
		Build = tt.build
		if got := BuildNumber(); got != tt.want {
			t.Errorf("BuildNumber() with Build=%q = %d, want %d", tt.build, got, tt.want)
		}
	}
}

func TestGetInfo_LinkerValuesWin(t *testing.T) {
	commit, at := GitCommit, BuildTime
	defer func() { GitCommit, BuildTime = commit, at }()
	GitCommit, BuildTime = "abc123", "2026-10-01T10:00:00Z"
	stubVCS(t, "ffffffffffffffffffff", "1999-01-01T00:00:00Z")

	info := GetInfo()
	if info.GitCommit != "abc123" {
		t.Errorf("GitCommit = %s, want abc123", info.GitCommit)
	}
	if info.BuildTime != "2026-10-01T10:00:00Z" {
		t.Errorf("BuildTime = %s, want the linker value", info.BuildTime)
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; info.Platform != want {
		t.Errorf("Platform = %s, want %s", info.Platform, want)
	}
}

func TestGetInfo_VCSFallback(t *testing.T) {
	commit, at := GitCommit, BuildTime
	defer func() { GitCommit, BuildTime = commit, at }()
	GitCommit, BuildTime = "", ""

	stubVCS(t, "0123456789abcdef0123", "2026-09-30T08:00:00Z")
	info := GetInfo()
	if info.GitCommit != "0123456789ab" {
		t.Errorf("GitCommit = %s, want the shortened VCS revision", info.GitCommit)
	}
	if info.BuildTime != "2026-09-30T08:00:00Z" {
		t.Errorf("BuildTime = %s, want the VCS time", info.BuildTime)
	}

	stubVCS(t, "", "")
	info = GetInfo()
	if info.GitCommit != "unknown" || info.BuildTime != "unknown" {
		t.Errorf("GetInfo() = %+v, want unknown commit and time", info)
	}
}

func TestString(t *testing.T) {
	result := String()

	for _, want := range []string{"ys-launcher", Version, runtime.Version()} {
		if !strings.Contains(result, want) {
			t.Errorf("String() should contain %q, got: %s", want, result)
		}
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "ys-launcher/"+Version+" ") {
		t.Errorf("UserAgent() = %s, want ys-launcher/%s prefix", ua, Version)
	}
	if strings.ContainsAny(ua, "\r\n") {
		t.Errorf("UserAgent() must be a single header line, got %q", ua)
	}
}

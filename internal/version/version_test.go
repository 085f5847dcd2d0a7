package version

import (
	"runtime"
	"strings"
	"testing"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = version, commit, date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
}

func TestGetInfo(t *testing.T) {
	withBuildInfo(t, "1.0.0", "abc123def456", "2026-01-01T12:00:00Z")

	info := GetInfo()
	if info.Version != "1.0.0" {
		t.Errorf("GetInfo().Version = %v, want 1.0.0", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GetInfo().GoVersion = %v, want %v", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("GetInfo().Platform = %v", info.Platform)
	}
}

func TestInfoString(t *testing.T) {
	withBuildInfo(t, "1.2.3", "abc123def456", "2026-01-01")

	s := GetInfo().String()
	for _, want := range []string{"sysui 1.2.3", "(abc123de)", "built 2026-01-01"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestShortCommit(t *testing.T) {
	if got := (Info{Commit: "abc"}).ShortCommit(); got != "abc" {
		t.Errorf("ShortCommit() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	withBuildInfo(t, "2.0.0", "x", "y")
	if ua := GetInfo().UserAgent(); !strings.HasPrefix(ua, "sysui/2.0.0 (") {
		t.Errorf("UserAgent() = %q", ua)
	}
}

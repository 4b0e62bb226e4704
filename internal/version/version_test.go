package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	i := Get()
	if i.Version != Version || i.Commit != Commit {
		t.Errorf("Get() = %+v", i)
	}
	if !strings.Contains(i.Platform, "/") || i.GoVersion == "" {
		t.Errorf("runtime fields missing: %+v", i)
	}
	if got := i.Short(); got != "tokenguard dev (unknown)" {
		t.Errorf("Short() = %q", got)
	}
}

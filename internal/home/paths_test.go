package home

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsLiveUnderBase(t *testing.T) {
	base := "/tmp/basilisk-test"
	for name, p := range map[string]string{
		"config":   ConfigPath(base),
		"db":       DBPath(base),
		"identity": IdentityPath(base),
		"socket":   SocketPath(base),
		"log":      LogPath(base),
	} {
		if !strings.HasPrefix(p, base+string(filepath.Separator)) {
			t.Errorf("%s path %q not under base", name, p)
		}
	}
}

func TestEnsureDirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	if err := EnsureDirs(base); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, d := range []string{base, LogDir(base)} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("stat %s: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
		if info.Mode().Perm() != 0o700 {
			t.Errorf("%s has mode %o, want 0700", d, info.Mode().Perm())
		}
	}
}

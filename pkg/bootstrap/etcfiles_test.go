package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func seedShareDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"functions", "notify.sh"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# "+name), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	legacy := filepath.Join(dir, "events", "legacy")
	if err := os.MkdirAll(legacy, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range legacyEventScripts {
		if err := os.WriteFile(filepath.Join(legacy, name), []byte("#!/bin/sh"), 0o755); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return dir
}

func TestEnsureEtcFiles(t *testing.T) {
	srcDir := seedShareDir(t)
	etcDir := filepath.Join(t.TempDir(), "ctdb")

	if err := EnsureEtcFiles(etcDir, srcDir); err != nil {
		t.Fatalf("EnsureEtcFiles: %v", err)
	}
	links := []struct{ dst, src string }{
		{filepath.Join(etcDir, "functions"), filepath.Join(srcDir, "functions")},
		{filepath.Join(etcDir, "notify.sh"), filepath.Join(srcDir, "notify.sh")},
		{
			filepath.Join(etcDir, "events", "legacy", "00.ctdb.script"),
			filepath.Join(srcDir, "events", "legacy", "00.ctdb.script"),
		},
	}
	for _, l := range links {
		target, err := os.Readlink(l.dst)
		if err != nil {
			t.Fatalf("Readlink %s: %v", l.dst, err)
		}
		if target != l.src {
			t.Fatalf("%s points at %q, want %q", l.dst, target, l.src)
		}
	}

	// second run re-points existing links instead of failing
	if err := EnsureEtcFiles(etcDir, srcDir); err != nil {
		t.Fatalf("EnsureEtcFiles repeat: %v", err)
	}
}

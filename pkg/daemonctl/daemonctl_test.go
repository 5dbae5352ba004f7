package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeScript drops an executable shell stub and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestReloadNodesArgv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "argv")
	stub := writeScript(t, `echo "$@" > `+out)
	c := &CTDB{Prefix: []string{stub}}

	if err := c.ReloadNodes(context.Background()); err != nil {
		t.Fatalf("ReloadNodes: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read argv: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "ctdb reloadnodes" {
		t.Fatalf("argv = %q, want %q", got, "ctdb reloadnodes")
	}
}

func TestReloadNodesFailure(t *testing.T) {
	stub := writeScript(t, "exit 1")
	c := &CTDB{Prefix: []string{stub}}
	if err := c.ReloadNodes(context.Background()); err == nil {
		t.Fatal("abnormal exit not reported")
	}
}

func TestConvertDatabaseArgv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "argv")
	stub := writeScript(t, `echo "$@" > `+out)
	c := &CTDB{Prefix: []string{stub}}

	if err := c.ConvertDatabase(context.Background(), "/src/passdb.tdb", "/dst/passdb.tdb.0"); err != nil {
		t.Fatalf("ConvertDatabase: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read argv: %v", err)
	}
	want := "ltdbtool convert -s0 /src/passdb.tdb /dst/passdb.tdb.0"
	if got := strings.TrimSpace(string(data)); got != want {
		t.Fatalf("argv = %q, want %q", got, want)
	}
}

func TestRunnerCommandOverrides(t *testing.T) {
	c := &CTDB{}
	if c.daemonCmd() != "ctdb" || c.convertCmd() != "ltdbtool" {
		t.Fatalf("defaults = %q %q", c.daemonCmd(), c.convertCmd())
	}
	c = &CTDB{DaemonCmd: "/opt/bin/ctdb", ConvertCmd: "/opt/bin/ltdbtool"}
	if c.daemonCmd() != "/opt/bin/ctdb" || c.convertCmd() != "/opt/bin/ltdbtool" {
		t.Fatalf("overrides = %q %q", c.daemonCmd(), c.convertCmd())
	}
}

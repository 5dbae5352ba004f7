package bootstrap

import (
	"path/filepath"
	"testing"

	"github.com/amirimatin/go-nodesync/pkg/clustermeta"
	"github.com/amirimatin/go-nodesync/pkg/waiter"
)

func TestOrdinalFromHostname(t *testing.T) {
	cases := []struct {
		hostname string
		want     int
		wantErr  bool
	}{
		{"smb-0", 0, false},
		{"smb-12", 12, false},
		{"my-cluster-smb-3", 3, false},
		{"smb", 0, true},
		{"smb-", 0, true},
		{"smb-x", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ordinalFromHostname(tc.hostname)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ordinalFromHostname(%q) accepted, got %d", tc.hostname, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ordinalFromHostname(%q): %v", tc.hostname, err)
		}
		if got != tc.want {
			t.Fatalf("ordinalFromHostname(%q) = %d, want %d", tc.hostname, got, tc.want)
		}
	}
}

func TestConfigPNN(t *testing.T) {
	// explicit number wins over the hostname policy
	pnn, err := Config{NodeNumber: 4, Hostname: "smb-1", TakeNodeNumberFromHostname: AfterLastDash}.pnn()
	if err != nil || pnn != 4 {
		t.Fatalf("pnn = %d, %v", pnn, err)
	}

	pnn, err = Config{NodeNumber: -1, Hostname: "smb-2", TakeNodeNumberFromHostname: AfterLastDash}.pnn()
	if err != nil || pnn != 2 {
		t.Fatalf("pnn = %d, %v", pnn, err)
	}

	if _, err := (Config{NodeNumber: -1, TakeNodeNumberFromHostname: "bogus"}).pnn(); err == nil {
		t.Fatal("unknown policy accepted")
	}

	// nothing configured defaults to pnn 0
	pnn, err = Config{NodeNumber: -1}.pnn()
	if err != nil || pnn != 0 {
		t.Fatalf("pnn = %d, %v", pnn, err)
	}
}

func TestConfigAddress(t *testing.T) {
	addr, err := Config{IP: "10.0.0.10", Hostname: "ignored"}.address(nil)
	if err != nil || addr != "10.0.0.10" {
		t.Fatalf("address = %q, %v", addr, err)
	}
	if _, err := (Config{}).address(nil); err == nil {
		t.Fatal("missing ip and hostname accepted")
	}
}

func TestConfigIdentity(t *testing.T) {
	if got := (Config{Hostname: "smb-0"}).identity(0); got != "smb-0" {
		t.Fatalf("identity = %q", got)
	}
	if got := (Config{}).identity(3); got != "node-3" {
		t.Fatalf("identity = %q", got)
	}
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	node, err := Setup(Config{
		Hostname:   "smb-1",
		NodeNumber: 1,
		IP:         "10.0.0.11",
		MetaURI:    filepath.Join(dir, "ctdb-nodes.json"),
		RealPath:   filepath.Join(dir, "nodes"),
		CanonPath:  filepath.Join(dir, "ctdb-nodes"),
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer node.Close()

	if node.Identity.Name != "smb-1" || node.Identity.Address != "10.0.0.11" || node.Identity.PNN != 1 {
		t.Fatalf("identity = %+v", node.Identity)
	}
	if _, ok := node.Meta.(*clustermeta.JSONFile); !ok {
		t.Fatalf("meta store = %T", node.Meta)
	}
	// a file-backed document gets a file-change waiter
	if _, ok := node.Waiter.(*waiter.Watcher); !ok {
		t.Fatalf("waiter = %T", node.Waiter)
	}
	if node.Engine == nil || node.Ctl == nil {
		t.Fatal("engine wiring incomplete")
	}
}

func TestSetupValidation(t *testing.T) {
	if _, err := Setup(Config{IP: "10.0.0.10", MetaURI: "/tmp/doc.json"}); err == nil {
		t.Fatal("empty nodes file path accepted")
	}
	if _, err := Setup(Config{IP: "10.0.0.10", RealPath: "/tmp/nodes"}); err == nil {
		t.Fatal("empty meta location accepted")
	}
}

package nodesfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func tempFile(t *testing.T, withLink bool) *File {
	t.Helper()
	dir := t.TempDir()
	f := &File{RealPath: filepath.Join(dir, "nodes")}
	if withLink {
		f.CanonPath = filepath.Join(dir, "ctdb", "nodes")
		if err := os.MkdirAll(filepath.Dir(f.CanonPath), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return f
}

func TestReadMissingFile(t *testing.T) {
	f := tempFile(t, false)
	nodes, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if nodes != nil {
		t.Fatalf("nodes = %v, want nil", nodes)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := tempFile(t, false)
	want := []string{"10.0.0.10", "10.0.0.11"}
	if err := f.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("nodes = %v, want %v", got, want)
	}

	// a rewrite replaces, never appends
	want = append(want, "10.0.0.12")
	if err := f.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, _ = f.Read(); !reflect.DeepEqual(got, want) {
		t.Fatalf("nodes = %v, want %v", got, want)
	}
}

func TestWriteMaintainsCanonLink(t *testing.T) {
	f := tempFile(t, true)
	if err := f.Write([]string{"10.0.0.10"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	target, err := os.Readlink(f.CanonPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != f.RealPath {
		t.Fatalf("link target = %q, want %q", target, f.RealPath)
	}

	// re-pointing an existing link must not fail
	if err := f.Write([]string{"10.0.0.10", "10.0.0.11"}); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	data, err := os.ReadFile(f.CanonPath)
	if err != nil {
		t.Fatalf("read via link: %v", err)
	}
	if string(data) != "10.0.0.10\n10.0.0.11\n" {
		t.Fatalf("canon content = %q", data)
	}
}

func TestEnsurePresent(t *testing.T) {
	f := tempFile(t, false)
	if err := f.EnsurePresent("10.0.0.10", 0); err != nil {
		t.Fatalf("EnsurePresent: %v", err)
	}
	got, _ := f.Read()
	if !reflect.DeepEqual(got, []string{"10.0.0.10"}) {
		t.Fatalf("nodes = %v", got)
	}

	// idempotent for an address already at its position
	if err := f.EnsurePresent("10.0.0.10", 0); err != nil {
		t.Fatalf("EnsurePresent repeat: %v", err)
	}
	if got, _ = f.Read(); len(got) != 1 {
		t.Fatalf("nodes = %v", got)
	}

	if err := f.EnsurePresent("10.0.0.11", 1); err != nil {
		t.Fatalf("EnsurePresent append: %v", err)
	}
	if got, _ = f.Read(); !reflect.DeepEqual(got, []string{"10.0.0.10", "10.0.0.11"}) {
		t.Fatalf("nodes = %v", got)
	}
}

func TestEnsurePresentWrongPosition(t *testing.T) {
	f := tempFile(t, false)
	if err := f.Write([]string{"10.0.0.10"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err := f.EnsurePresent("10.0.0.11", 0)
	if !errors.Is(err, ErrUnexpectedPNN) {
		t.Fatalf("err = %v, want ErrUnexpectedPNN", err)
	}
	// nothing written on refusal
	got, _ := f.Read()
	if !reflect.DeepEqual(got, []string{"10.0.0.10"}) {
		t.Fatalf("nodes = %v", got)
	}
}

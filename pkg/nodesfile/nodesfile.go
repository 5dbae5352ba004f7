// Package nodesfile reads and writes the positional nodes list consumed by
// the clustering daemon: one address per line, where line index i is the
// pnn of the node at that address. The daemon always looks at a fixed
// canonical path which is kept as a symlink to the operator-configured real
// path.
package nodesfile

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
)

// ErrUnexpectedPNN reports that an address does not (or would not) occupy
// the position it claims in the nodes list.
var ErrUnexpectedPNN = errors.New("nodesfile: unexpected pnn")

// File accesses one nodes list. CanonPath may be empty or equal to
// RealPath, in which case no symlink is maintained.
type File struct {
	RealPath  string
	CanonPath string
}

// Read returns the addresses in positional order. A missing file is an
// empty list, not an error.
func (f *File) Read() ([]string, error) {
	fh, err := os.Open(f.RealPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var nodes []string
	s := bufio.NewScanner(fh)
	for s.Scan() {
		nodes = append(nodes, strings.TrimSpace(s.Text()))
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Write overwrites the real backing path with the given list, flushed and
// durably synced, and re-points the canonical symlink at it.
func (f *File) Write(nodes []string) error {
	if err := f.EnsureLink(); err != nil {
		return err
	}
	fh, err := os.OpenFile(f.RealPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	for _, n := range nodes {
		if _, err := fmt.Fprintln(w, n); err != nil {
			fh.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// EnsureLink re-points the canonical symlink at the real path. The link is
// removed first when present, making the operation idempotent.
func (f *File) EnsureLink() error {
	if f.CanonPath == "" || f.CanonPath == f.RealPath {
		return nil
	}
	if err := os.Remove(f.CanonPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(f.RealPath, f.CanonPath)
}

// EnsurePresent makes sure the list contains addr, appending it when
// absent. With pnn >= 0 the resulting position of addr must equal pnn or
// the call fails with ErrUnexpectedPNN before any write. Used by the first
// node to bootstrap itself directly into the list.
func (f *File) EnsurePresent(addr string, pnn int) error {
	nodes, err := f.Read()
	if err != nil {
		return err
	}
	if !slices.Contains(nodes, addr) {
		nodes = append(nodes, addr)
	}
	if pnn >= 0 {
		if found := slices.Index(nodes, addr); found != pnn {
			return fmt.Errorf("%w: expected %d, found %d", ErrUnexpectedPNN, pnn, found)
		}
	}
	return f.Write(nodes)
}

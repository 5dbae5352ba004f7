// Package clustermeta provides locked load/store access to the shared
// cluster membership document. The document is the single source of desired
// membership truth for the whole fleet; every node process reads it and the
// supervising process mutates it, so all writes happen inside an exclusive
// cross-process critical section owned by a Store.
package clustermeta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrNotFound reports that the backing location of a store does not exist.
// Load is strict; only Update is allowed to start from an empty default.
var ErrNotFound = errors.New("clustermeta: document not found")

// NodeEntry is one member of the membership document. PNN is the stable
// positional identifier of the node and equals its line index in the
// authoritative nodes file. InNodes reports whether the entry has already
// been applied to that file; the flag only ever transitions false to true.
type NodeEntry struct {
	Node    string `json:"node"`
	PNN     int    `json:"pnn"`
	InNodes bool   `json:"in_nodes"`
}

// Document is the shared record of desired cluster membership. Entries are
// only appended and flag-flipped, never removed.
type Document struct {
	Nodes []NodeEntry `json:"nodes"`
}

// Entry returns a pointer to the entry holding pnn, or nil when no node has
// claimed that position yet.
func (d *Document) Entry(pnn int) *NodeEntry {
	for i := range d.Nodes {
		if d.Nodes[i].PNN == pnn {
			return &d.Nodes[i]
		}
	}
	return nil
}

// UpdateFunc mutates a freshly loaded document inside the store's critical
// section. It returns true when the document changed and must be persisted.
type UpdateFunc func(doc *Document) (dirty bool, err error)

// Store provides load and locked update access to one membership document,
// backed by a file or an etcd key. Handles are constructed explicitly by
// the caller and threaded through every operation.
type Store interface {
	// Load returns a point-in-time snapshot of the document without
	// taking the lock. Decisions derived from it must be revalidated
	// under Update before any write. Fails with ErrNotFound when the
	// backing location does not exist.
	Load(ctx context.Context) (*Document, error)

	// Update acquires the exclusive, blocking cross-process lock,
	// reloads a fresh document (an empty default when the location does
	// not exist yet), runs fn, and persists the result durably before
	// releasing the lock. Nothing is written when fn reports no change
	// or fails. Lock acquisition has no timeout; cancelling ctx aborts
	// the wait and propagates ctx.Err().
	Update(ctx context.Context, fn UpdateFunc) error
}

// Open selects a store backend from a location identifier. Recognized
// forms: "etcd://host:port[,host:port]/key/path", "file:/path", and plain
// filesystem paths.
func Open(uri string, logger *zap.Logger) (Store, error) {
	if uri == "" {
		return nil, errors.New("clustermeta: empty location identifier")
	}
	if strings.HasPrefix(uri, etcdScheme) {
		return OpenEtcd(uri, logger)
	}
	if path, ok := FilePath(uri); ok {
		return NewJSONFile(path, logger), nil
	}
	return nil, fmt.Errorf("clustermeta: unsupported location %q", uri)
}

// FilePath reports whether the location identifier refers to a local file
// and returns the resolved path. Callers use it to decide whether a
// file-change waiter can watch the document.
func FilePath(uri string) (string, bool) {
	switch {
	case uri == "":
		return "", false
	case strings.HasPrefix(uri, etcdScheme):
		return "", false
	case strings.HasPrefix(uri, "file:"):
		return strings.TrimPrefix(uri, "file:"), true
	default:
		return uri, true
	}
}

func decode(data []byte) (*Document, error) {
	doc := &Document{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("clustermeta: decode document: %w", err)
	}
	return doc, nil
}

func encode(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("clustermeta: encode document: %w", err)
	}
	return append(data, '\n'), nil
}

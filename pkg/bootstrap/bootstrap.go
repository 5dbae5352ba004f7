// Package bootstrap assembles the node coordination components from
// high-level configuration: it resolves the local identity (address and
// pnn), opens the metadata store named by a location identifier, and wires
// the reconciliation engine with its collaborators.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/amirimatin/go-nodesync/pkg/clustermeta"
	"github.com/amirimatin/go-nodesync/pkg/daemonctl"
	"github.com/amirimatin/go-nodesync/pkg/nodesfile"
	"github.com/amirimatin/go-nodesync/pkg/reconcile"
	"github.com/amirimatin/go-nodesync/pkg/waiter"
)

// Default locations expected by the clustering daemon.
const (
	// DBDir receives converted legacy databases.
	DBDir = "/var/lib/ctdb/persistent"
	// EtcDir is the daemon's configuration directory.
	EtcDir = "/etc/ctdb"
	// ShareDir ships the daemon's support files.
	ShareDir = "/usr/share/ctdb"
	// CanonNodesPath is the fixed nodes file path the daemon reads; kept
	// as a symlink to the operator-configured real path.
	CanonNodesPath = "/etc/ctdb/nodes"
)

// AfterLastDash derives the node number from the trailing ordinal of the
// host name (the common stateful-set naming scheme).
const AfterLastDash = "after-last-dash"

// Config defines the high-level inputs to assemble a coordination node.
type Config struct {
	// Hostname of the local node; also the fallback source for the
	// address and, with TakeNodeNumberFromHostname, the pnn.
	Hostname string
	// NodeNumber is the claimed pnn; negative means unset.
	NodeNumber int
	// TakeNodeNumberFromHostname names the derivation policy ("" or
	// AfterLastDash).
	TakeNodeNumberFromHostname string
	// IP overrides hostname resolution for the node address.
	IP string
	// MetaURI locates the shared membership document (path, file: or
	// etcd:// identifier).
	MetaURI string
	// RealPath is the operator-configured nodes file location.
	RealPath string
	// CanonPath defaults to CanonNodesPath.
	CanonPath string
	// Logger (optional); a nop logger is used when nil.
	Logger *zap.Logger
}

// Node bundles the assembled components for one local node.
type Node struct {
	Identity reconcile.Identity
	Meta     clustermeta.Store
	Nodes    *nodesfile.File
	Waiter   waiter.Waiter
	Engine   *reconcile.Engine
	Ctl      daemonctl.Runner
}

// Setup resolves the identity and wires all components. It performs name
// resolution but no cluster I/O.
func Setup(cfg Config) (*Node, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pnn, err := cfg.pnn()
	if err != nil {
		return nil, err
	}
	addr, err := cfg.address(logger)
	if err != nil {
		return nil, err
	}
	if cfg.RealPath == "" {
		return nil, errors.New("bootstrap: empty nodes file path")
	}
	canon := cfg.CanonPath
	if canon == "" {
		canon = CanonNodesPath
	}
	meta, err := clustermeta.Open(cfg.MetaURI, logger)
	if err != nil {
		return nil, err
	}

	var w waiter.Waiter
	if path, ok := clustermeta.FilePath(cfg.MetaURI); ok {
		w = waiter.Best(path)
	} else {
		w = waiter.Best("")
	}

	nodes := &nodesfile.File{RealPath: cfg.RealPath, CanonPath: canon}
	ctl := &daemonctl.CTDB{Logger: logger}
	engine, err := reconcile.New(reconcile.Options{
		Meta:   meta,
		Nodes:  nodes,
		Ctl:    ctl,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return &Node{
		Identity: reconcile.Identity{Name: cfg.identity(pnn), Address: addr, PNN: pnn},
		Meta:     meta,
		Nodes:    nodes,
		Waiter:   w,
		Engine:   engine,
		Ctl:      ctl,
	}, nil
}

// Close releases any closable components (etcd store, fs watcher).
func (n *Node) Close() error {
	var firstErr error
	if c, ok := n.Meta.(io.Closer); ok {
		firstErr = c.Close()
	}
	if c, ok := n.Waiter.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c Config) pnn() (int, error) {
	if c.NodeNumber >= 0 {
		return c.NodeNumber, nil
	}
	if c.TakeNodeNumberFromHostname == AfterLastDash {
		return ordinalFromHostname(c.Hostname)
	}
	if c.TakeNodeNumberFromHostname != "" {
		return 0, fmt.Errorf("bootstrap: unknown node number policy %q", c.TakeNodeNumberFromHostname)
	}
	return 0, nil
}

func ordinalFromHostname(hostname string) (int, error) {
	if hostname == "" {
		return 0, errors.New("bootstrap: hostname required to derive node number")
	}
	i := strings.LastIndex(hostname, "-")
	if i < 0 || i == len(hostname)-1 {
		return 0, fmt.Errorf("bootstrap: invalid hostname for node number: %q", hostname)
	}
	n, err := strconv.Atoi(hostname[i+1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bootstrap: invalid hostname for node number: %q", hostname)
	}
	return n, nil
}

func (c Config) address(logger *zap.Logger) (string, error) {
	if c.IP != "" {
		return c.IP, nil
	}
	if c.Hostname == "" {
		return "", errors.New("bootstrap: can not determine node address")
	}
	addr, err := lookupAddress(c.Hostname)
	if err != nil {
		return "", err
	}
	logger.Info("determined node address",
		zap.String("hostname", c.Hostname), zap.String("addr", addr))
	return addr, nil
}

func lookupAddress(hostname string) (string, error) {
	ips, err := net.LookupHost(hostname)
	if err != nil {
		return "", fmt.Errorf("bootstrap: resolve %s: %w", hostname, err)
	}
	for _, ip := range ips {
		if ip != "127.0.0.1" && ip != "::1" {
			return ip, nil
		}
	}
	return "", fmt.Errorf("bootstrap: no usable address for %s", hostname)
}

func (c Config) identity(pnn int) string {
	if c.Hostname != "" {
		return c.Hostname
	}
	return fmt.Sprintf("node-%d", pnn)
}

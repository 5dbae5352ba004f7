// Package reconcile implements the membership reconciliation engine: the
// pure decision logic that compares the shared membership document against
// the authoritative nodes list, and the commit routine that safely mutates
// both together under the store's exclusive lock.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/amirimatin/go-nodesync/pkg/clustermeta"
	"github.com/amirimatin/go-nodesync/pkg/daemonctl"
	"github.com/amirimatin/go-nodesync/pkg/nodesfile"
	"github.com/amirimatin/go-nodesync/pkg/observability/metrics"
	"github.com/amirimatin/go-nodesync/pkg/observability/tracing"
)

// Identity is the local node's own coordinates, supplied by the caller at
// process start. It is never stored as such; the address and pnn become the
// node's document entry.
type Identity struct {
	// Name is a stable identifier for logs (typically the hostname).
	Name string
	// Address is the network address the clustering daemon binds.
	Address string
	// PNN is the claimed positional node number.
	PNN int
}

// Options carries the injected collaborators of an Engine.
type Options struct {
	// Meta is the shared metadata store holding the document.
	Meta clustermeta.Store
	// Nodes accesses the authoritative nodes list.
	Nodes *nodesfile.File
	// Ctl invokes daemon control operations (reload).
	Ctl daemonctl.Runner
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Validate checks that all required collaborators are present.
func (o Options) Validate() error {
	if o.Meta == nil {
		return errors.New("reconcile: nil metadata store")
	}
	if o.Nodes == nil {
		return errors.New("reconcile: nil nodes file")
	}
	if o.Ctl == nil {
		return errors.New("reconcile: nil daemon control runner")
	}
	return nil
}

// Engine reconciles the membership document with the nodes list. It holds
// no state of its own; all state lives in the two artifacts.
type Engine struct {
	meta   clustermeta.Store
	nodes  *nodesfile.File
	ctl    daemonctl.Runner
	logger *zap.Logger
}

// New constructs an Engine from validated options. It performs no I/O.
func New(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Register()
	return &Engine{meta: opts.Meta, nodes: opts.Nodes, ctl: opts.Ctl, logger: logger}, nil
}

// planUpdate is the pure decision function. Walking the document entries in
// ascending pnn order it returns the complete new nodes list and the
// indexes of entries whose in_nodes flag must flip once the list is
// applied. Any append that would not land exactly at the entry's pnn fails
// with ErrOutOfOrder before anything is decided.
func planUpdate(doc *clustermeta.Document, current []string) (all []string, confirm []int, err error) {
	all = slices.Clone(current)
	order := make([]int, len(doc.Nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return doc.Nodes[order[a]].PNN < doc.Nodes[order[b]].PNN
	})
	for _, i := range order {
		e := doc.Nodes[i]
		matched := e.PNN >= 0 && e.PNN < len(all) && all[e.PNN] == e.Node
		if matched && e.InNodes {
			// everything's fine, skip this entry
			continue
		}
		if !matched {
			if e.PNN != len(all) {
				return nil, nil, fmt.Errorf("%w: pnn %d for nodes %v", ErrOutOfOrder, e.PNN, all)
			}
			all = append(all, e.Node)
		}
		if !e.InNodes {
			confirm = append(confirm, i)
		}
	}
	return all, confirm, nil
}

// Lookup returns the document entry claiming pnn. It fails with
// ErrNodeNotPresent when the node has not been registered yet.
func (e *Engine) Lookup(ctx context.Context, pnn int) (clustermeta.NodeEntry, error) {
	doc, err := e.meta.Load(ctx)
	if err != nil {
		return clustermeta.NodeEntry{}, err
	}
	entry := doc.Entry(pnn)
	if entry == nil {
		return clustermeta.NodeEntry{}, fmt.Errorf("%w: pnn %d", ErrNodeNotPresent, pnn)
	}
	return *entry, nil
}

// Pass runs one reconciliation cycle keyed by the local node's pnn:
// snapshot, decide, revalidate under the store's lock, commit. It reports
// whether any update was applied. The local node must be registered
// (ErrNodeNotPresent otherwise); beyond that, any registered process may
// drive updates, though by convention only pnn 0 does.
//
// The commit writes the nodes list and triggers the daemon reload before
// the document is touched. A failed reload therefore leaves the document
// unmodified: the next pass sees the same pending work and retries the
// reload without appending the address twice.
func (e *Engine) Pass(ctx context.Context, pnn int) (bool, error) {
	ctx, end := tracing.StartSpan(ctx, "reconcile.pass")
	defer end()

	// cheap lock-free probe; a stale result is harmless because the
	// commit recomputes under the lock
	doc, err := e.meta.Load(ctx)
	if err != nil {
		return false, err
	}
	if doc.Entry(pnn) == nil {
		return false, fmt.Errorf("%w: pnn %d", ErrNodeNotPresent, pnn)
	}
	current, err := e.nodes.Read()
	if err != nil {
		return false, err
	}
	all, confirm, err := planUpdate(doc, current)
	if err != nil {
		return false, err
	}
	if len(all) == len(current) && len(confirm) == 0 {
		e.logger.Debug("examined nodes state - no changes")
		return false, nil
	}
	metrics.PendingEntries.Set(float64(len(confirm)))

	updated := false
	err = e.meta.Update(ctx, func(fresh *clustermeta.Document) (bool, error) {
		dirty, up, err := e.commit(ctx, fresh)
		updated = up
		return dirty, err
	})
	if err != nil {
		return false, err
	}
	if updated {
		metrics.CommitsTotal.Inc()
	}
	return updated, nil
}

// commit recomputes the decision against the freshly reloaded document and
// applies it. Runs inside the store's critical section. dirty reports that
// entry flags were flipped and the document must be persisted; updated
// reports that any artifact changed at all.
func (e *Engine) commit(ctx context.Context, fresh *clustermeta.Document) (dirty, updated bool, err error) {
	ctx, end := tracing.StartSpan(ctx, "reconcile.commit")
	defer end()

	current, err := e.nodes.Read()
	if err != nil {
		return false, false, err
	}
	all, confirm, err := planUpdate(fresh, current)
	if err != nil {
		return false, false, err
	}
	if len(all) == len(current) && len(confirm) == 0 {
		e.logger.Debug("reexamined nodes state - no changes")
		return false, false, nil
	}
	e.logger.Info("writing updates to nodes file",
		zap.Strings("nodes", all), zap.Int("confirming", len(confirm)))
	if err := e.nodes.Write(all); err != nil {
		return false, false, err
	}
	if err := e.ctl.ReloadNodes(ctx); err != nil {
		metrics.ReloadFailures.Inc()
		return false, false, fmt.Errorf("reconcile: reload nodes: %w", err)
	}
	for _, i := range confirm {
		fresh.Nodes[i].InNodes = true
	}
	metrics.NodesListLength.Set(float64(len(all)))
	metrics.PendingEntries.Set(0)
	return len(confirm) > 0, true, nil
}

// Register admits the local node's intent into the membership document.
// An existing entry with the same address is a no-op refresh; a pnn held by
// a different address fails with ErrDuplicatePNN. New entries start with
// in_nodes=false except pnn 0, which bootstraps itself synchronously into
// the nodes list because no supervisor exists yet to confirm it.
func (e *Engine) Register(ctx context.Context, id Identity) error {
	if id.PNN < 0 {
		return fmt.Errorf("reconcile: invalid pnn %d", id.PNN)
	}
	if id.Address == "" {
		return errors.New("reconcile: empty node address")
	}
	added := false
	err := e.meta.Update(ctx, func(doc *clustermeta.Document) (bool, error) {
		if cur := doc.Entry(id.PNN); cur != nil {
			if cur.Node == id.Address {
				return false, nil
			}
			return false, fmt.Errorf("%w: pnn %d held by %s", ErrDuplicatePNN, id.PNN, cur.Node)
		}
		doc.Nodes = append(doc.Nodes, clustermeta.NodeEntry{
			Node:    id.Address,
			PNN:     id.PNN,
			InNodes: id.PNN == 0,
		})
		added = true
		return true, nil
	})
	switch {
	case err != nil:
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return err
	case !added:
		e.logger.Info("node already registered",
			zap.String("node", id.Address), zap.Int("pnn", id.PNN))
		metrics.RegistrationsTotal.WithLabelValues("refreshed").Inc()
		return nil
	}
	e.logger.Info("registered node",
		zap.String("name", id.Name), zap.String("node", id.Address), zap.Int("pnn", id.PNN))
	metrics.RegistrationsTotal.WithLabelValues("added").Inc()
	if id.PNN != 0 {
		return nil
	}
	return e.nodes.EnsurePresent(id.Address, 0)
}

// PNNConfirmed reports whether the entry for pnn has been applied to the
// authoritative nodes list (in_nodes true). Cheap read, no writes; used as
// a readiness gate by dependent processes.
func (e *Engine) PNNConfirmed(ctx context.Context, pnn int) (bool, error) {
	doc, err := e.meta.Load(ctx)
	if err != nil {
		return false, err
	}
	entry := doc.Entry(pnn)
	return entry != nil && entry.InNodes, nil
}

// Package monitor drives the reconciliation engine in a long-lived loop
// with bounded-retry fault tolerance, and provides the block-until-admitted
// readiness gate used by dependent processes.
package monitor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/amirimatin/go-nodesync/pkg/observability/metrics"
	"github.com/amirimatin/go-nodesync/pkg/waiter"
)

// DefaultErrorLimit is the number of consecutive pass failures tolerated
// before the last error becomes fatal.
const DefaultErrorLimit = 10

// Engine is the part of the reconciliation engine the monitor drives.
type Engine interface {
	Pass(ctx context.Context, pnn int) (bool, error)
	PNNConfirmed(ctx context.Context, pnn int) (bool, error)
}

// Options configures a Monitor.
type Options struct {
	Engine Engine
	Waiter waiter.Waiter
	// PNN identifies the local node.
	PNN int
	// ErrorLimit overrides DefaultErrorLimit when positive.
	ErrorLimit int
	Logger     *zap.Logger
}

// Validate checks the required collaborators.
func (o Options) Validate() error {
	if o.Engine == nil {
		return errors.New("monitor: nil engine")
	}
	if o.Waiter == nil {
		return errors.New("monitor: nil waiter")
	}
	if o.PNN < 0 {
		return errors.New("monitor: negative pnn")
	}
	return nil
}

// Monitor supervises the reconciliation loop for one node.
type Monitor struct {
	engine Engine
	waiter waiter.Waiter
	pnn    int
	limit  int
	logger *zap.Logger
}

// New constructs a Monitor from validated options.
func New(opts Options) (*Monitor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	limit := opts.ErrorLimit
	if limit <= 0 {
		limit = DefaultErrorLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Register()
	return &Monitor{engine: opts.Engine, waiter: opts.Waiter, pnn: opts.PNN, limit: limit, logger: logger}, nil
}

// Run drives reconciliation passes until ctx is cancelled or too many
// consecutive passes fail. Every successful pass resets the failure
// counter; once the counter exceeds the limit the last error is returned.
// Cancellation is never absorbed into the retry count.
func (m *Monitor) Run(ctx context.Context) error {
	failures := 0
	for {
		m.logger.Debug("checking for node updates", zap.Int("pnn", m.pnn))
		updated, err := m.engine.Pass(ctx, m.pnn)
		switch {
		case err == nil:
			failures = 0
			if updated {
				m.logger.Info("updated nodes", zap.Int("pnn", m.pnn))
				m.waiter.Ack()
				metrics.PassesTotal.WithLabelValues("updated").Inc()
			} else {
				metrics.PassesTotal.WithLabelValues("noop").Inc()
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			failures++
			metrics.PassesTotal.WithLabelValues("error").Inc()
			m.logger.Error("error during nodes monitoring",
				zap.Error(err), zap.Int("count", failures))
			if failures > m.limit {
				m.logger.Error("too many retries. giving up", zap.Int("count", failures))
				return err
			}
		}
		if err := m.waiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// WaitUntilAdmitted blocks until the node's entry is confirmed in the
// membership document (in_nodes true). It performs no writes, and errors
// propagate immediately without retry.
func (m *Monitor) WaitUntilAdmitted(ctx context.Context) error {
	for {
		ok, err := m.engine.PNNConfirmed(ctx, m.pnn)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		m.logger.Info("node not yet ready", zap.Int("pnn", m.pnn))
		if err := m.waiter.Wait(ctx); err != nil {
			return err
		}
	}
}

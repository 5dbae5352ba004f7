package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// Registry holds this module's collectors only, keeping the
	// /metrics output independent of whatever the host process
	// registers globally.
	Registry = prometheus.NewRegistry()

	PassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodesync",
		Name:      "passes_total",
		Help:      "Total reconciliation passes by result (updated|noop|error)",
	}, []string{"result"})

	CommitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nodesync",
		Name:      "commits_total",
		Help:      "Total commits that changed the nodes list or the document",
	})

	ReloadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nodesync",
		Name:      "reload_failures_total",
		Help:      "Total failed invocations of the daemon reload operation",
	})

	RegistrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nodesync",
		Name:      "registrations_total",
		Help:      "Total registration attempts by result (added|refreshed|error)",
	}, []string{"result"})

	NodesListLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodesync",
		Name:      "nodes_list_length",
		Help:      "Number of addresses in the authoritative nodes list",
	})

	PendingEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodesync",
		Name:      "pending_entries",
		Help:      "Document entries not yet applied to the nodes list",
	})
)

// Register registers all collectors into the package registry (idempotent).
func Register() {
	once.Do(func() {
		Registry.MustRegister(PassesTotal)
		Registry.MustRegister(CommitsTotal)
		Registry.MustRegister(ReloadFailures)
		Registry.MustRegister(RegistrationsTotal)
		Registry.MustRegister(NodesListLength)
		Registry.MustRegister(PendingEntries)
	})
}

// Handler exposes the package registry for a /metrics endpoint.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

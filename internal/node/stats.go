// Stats wires domain.StatsProvider to Prometheus via promauto, matching the
// teacher's package-level promauto.New*Vec metrics in
// internal/infra/observability/observability.go. A NoopStats implementation
// is provided for tests.
package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ringmesh/ringmesh/internal/domain"
)

var (
	protocolSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringmesh",
		Subsystem: "protocol",
		Name:      "sends_total",
		Help:      "Outbound protocol requests, by operation.",
	}, []string{"op"})

	protocolRecvs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringmesh",
		Subsystem: "protocol",
		Name:      "recvs_total",
		Help:      "Inbound protocol requests served, by operation.",
	}, []string{"op"})

	lookups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ringmesh",
		Subsystem: "ring",
		Name:      "lookups_total",
		Help:      "Total key lookups against the hash ring.",
	})

	membershipUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringmesh",
		Subsystem: "membership",
		Name:      "updates_total",
		Help:      "Accepted membership updates, by type.",
	}, []string{"type"})

	numMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ringmesh",
		Subsystem: "membership",
		Name:      "members",
		Help:      "Current count of known members.",
	})

	ringSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ringmesh",
		Subsystem: "ring",
		Name:      "servers",
		Help:      "Current count of servers on the hash ring.",
	})

	protocolTimings = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ringmesh",
		Subsystem: "protocol",
		Name:      "rtt_seconds",
		Help:      "Observed round-trip time for outbound protocol requests.",
	}, []string{"op"})
)

// PromStats is the default domain.StatsProvider, backed by the
// package-level promauto collectors above.
type PromStats struct{}

func (PromStats) IncrCounter(name string, labels map[string]string) {
	switch name {
	case "ping.send", "ping-req.send":
		protocolSends.WithLabelValues(name).Inc()
	case "ping.recv", "ping-req.recv", "join.recv":
		protocolRecvs.WithLabelValues(name).Inc()
	case "lookup":
		lookups.Inc()
	case "membership-update":
		membershipUpdates.WithLabelValues(labels["type"]).Inc()
	}
}

func (PromStats) SetGauge(name string, value float64, labels map[string]string) {
	switch name {
	case "num-members":
		numMembers.Set(value)
	case "ring-size":
		ringSize.Set(value)
	}
}

func (PromStats) ObserveTiming(name string, seconds float64, labels map[string]string) {
	switch name {
	case "ping", "ping-req":
		protocolTimings.WithLabelValues(name).Observe(seconds)
	}
}

// NoopStats discards every metric; used by tests and by callers that want
// to run a Node without registering global Prometheus collectors.
type NoopStats = domain.NopStats

var _ domain.StatsProvider = PromStats{}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics registers the daemon's internal counters and
// gauges on a private Prometheus registry (spec.md §6 EXPANDED). No
// HTTP exposition endpoint is wired up: the registry exists to be
// gathered directly by tests and, eventually, by l7classctl.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"l7classd/internal/markval"
)

// Registry holds every metric the daemon exposes.
type Registry struct {
	reg *prometheus.Registry

	PacketsSeen      prometheus.Counter
	PacketsMalformed prometheus.Counter
	EntriesCreated   prometheus.Counter
	VerdictsByMark   *prometheus.CounterVec
	TableSize        prometheus.Gauge
	EntriesReaped    prometheus.Counter
}

// New builds a Registry with every metric registered on a fresh,
// private prometheus.Registry (not the global default one, so
// multiple daemons in the same process never collide).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		PacketsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "l7classd",
			Name:      "packets_seen_total",
			Help:      "Packets with a TCP/UDP payload that received a classification verdict.",
		}),
		PacketsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "l7classd",
			Name:      "packets_malformed_total",
			Help:      "Packets that failed to parse or carried an unsupported L3/L4 protocol.",
		}),
		EntriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "l7classd",
			Name:      "entries_created_total",
			Help:      "Connection table entries created by the packet path.",
		}),
		VerdictsByMark: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "l7classd",
			Name:      "verdicts_total",
			Help:      "Verdicts issued, labeled by classification outcome.",
		}, []string{"outcome"}),
		TableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "l7classd",
			Name:      "table_size",
			Help:      "Current number of entries in the connection table.",
		}),
		EntriesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "l7classd",
			Name:      "entries_reaped_total",
			Help:      "Entries removed by idle-TTL garbage collection.",
		}),
	}

	reg.MustRegister(
		r.PacketsSeen,
		r.PacketsMalformed,
		r.EntriesCreated,
		r.VerdictsByMark,
		r.TableSize,
		r.EntriesReaped,
	)
	return r
}

// ObserveVerdict increments PacketsSeen and the outcome-labeled
// verdict counter for mark.
func (r *Registry) ObserveVerdict(mark markval.Mark) {
	r.PacketsSeen.Inc()
	r.VerdictsByMark.WithLabelValues(outcomeLabel(mark)).Inc()
}

func outcomeLabel(mark markval.Mark) string {
	switch mark {
	case markval.NoMatchYet:
		return "no_match_yet"
	case markval.NoMatch:
		return "no_match"
	case markval.Untouched:
		return "untouched"
	default:
		return "matched"
	}
}

// Gatherer exposes the underlying registry for l7classctl's future
// stats subcommand and for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

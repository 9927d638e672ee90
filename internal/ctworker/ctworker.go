// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctworker implements the connection-tracking event path
// (spec.md §4.3): it consumes a stream of NEW/DESTROY events, keeps
// the shared connection table's tracked state in sync, and runs
// periodic idle-entry garbage collection.
package ctworker

import (
	"time"

	"l7classd/internal/flow"
	"l7classd/internal/metrics"
	"l7classd/internal/netpkt"
)

// GCInterval and IdleTTL are the implementation constants spec.md §6
// says are neither exposed on the CLI nor tunable.
const (
	GCInterval = 30 * time.Second
	IdleTTL    = 5 * time.Minute
)

// EventKind mirrors spec.md §4.3's event taxonomy. UNKNOWN and ERROR
// events, along with non-TCP/UDP ones, are dropped before reaching
// the table.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventNew
	EventDestroy
	EventError
)

// Attrs is the subset of a conntrack event's tuple the table needs to
// compute a flow key.
type Attrs struct {
	L4Proto uint8
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
}

// Event is the (kind, attrs) pair spec.md §4.3 describes.
type Event struct {
	Kind  EventKind
	Attrs Attrs
}

// handler holds the state shared by the Linux and stub event loops:
// the table itself and the GC scheduling.
type handler struct {
	table  *flow.Table
	m      *metrics.Registry
	lastGC time.Time
}

func newHandler(table *flow.Table, m *metrics.Registry) *handler {
	return &handler{table: table, m: m, lastGC: time.Now()}
}

// handle applies one event to the table, running GC first if due.
// It implements spec.md §4.3's NEW/DESTROY logic plus the redesigned
// DESTROY behavior from §9(a): purge both the forward and the reverse
// key, not just the forward one.
func (h *handler) handle(ev Event, now time.Time) {
	if now.Sub(h.lastGC) > GCInterval {
		removed := h.table.GC(now)
		h.m.EntriesReaped.Add(float64(removed))
		h.m.TableSize.Set(float64(h.table.Len()))
		h.lastGC = now
	}

	switch ev.Kind {
	case EventNew:
		forward, reverse := attrsKeyPair(ev.Attrs)
		h.table.InsertTracked(forward, reverse)
	case EventDestroy:
		forward, reverse := attrsKeyPair(ev.Attrs)
		h.table.Remove(forward, reverse)
	default:
		// EventUnknown and EventError are logged by the caller, if at
		// all; the table never sees them.
	}
}

func attrsKeyPair(a Attrs) (forward, reverse string) {
	forward = netpkt.FlowKey(a.L4Proto, a.SrcIP, a.DstIP, a.SrcPort, a.DstPort)
	reverse = netpkt.FlowKey(a.L4Proto, a.DstIP, a.SrcIP, a.DstPort, a.SrcPort)
	return forward, reverse
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package queueworker implements the packet verdict path (spec.md
// §4.2): for every packet the kernel queue delivers, it reconstructs
// the flow, drives the classifier, and returns a verdict with a
// mark composed from the classification result.
package queueworker

import (
	"time"

	"l7classd/internal/classify"
	"l7classd/internal/flow"
	"l7classd/internal/markmask"
	"l7classd/internal/metrics"
	"l7classd/internal/netpkt"
)

// Config bundles what a Worker needs regardless of platform.
type Config struct {
	QueueNum uint16
	Mask     markmask.Mask
	Table    *flow.Table
	Matcher  classify.Matcher
	Metrics  *metrics.Registry
}

// handlePacket implements steps 2-7 of spec.md §4.2 against an
// already-extracted kernel mark; the packet id stays with the caller,
// which issues the verdict. It is shared by the
// Linux and stub workers so the classification semantics live in one
// place and only the kernel plumbing differs.
func handlePacket(cfg Config, kernelMark uint32, raw []byte) (verdictMark uint32, setMark bool) {
	pkt, err := netpkt.Parse(raw)
	if err != nil {
		cfg.Metrics.PacketsMalformed.Inc()
		return 0, false
	}
	if pkt.L4 == netpkt.L4Other {
		// Not a parse failure, just a protocol this daemon never
		// classifies (spec.md §4.2 step 2): accept unchanged.
		return 0, false
	}
	if len(pkt.Payload) == 0 {
		return 0, false
	}

	forward, reverse := netpkt.KeyPair(pkt)
	h, created := cfg.Table.GetOrCreate(forward, reverse)
	defer h.Release()
	if created {
		cfg.Metrics.EntriesCreated.Inc()
	}

	// GetOrCreate always hands back a handle keyed at forward, reversing
	// the entry in place first if it had been stored under reverse, so
	// the current packet is always the egress side from here on.
	mark := h.Entry().UpdatePacket(true, pkt.Payload, time.Now(), cfg.Matcher)

	cfg.Metrics.ObserveVerdict(mark)

	localOut := uint32(mark)
	composed := cfg.Mask.Compose(kernelMark, localOut)
	return composed, true
}

// SplitMark implements step 1 of spec.md §4.2. The Linux worker does
// not call it: handlePacket passes the whole kernel mark to
// Mask.Compose, which keeps the external bits itself.
func SplitMark(mask markmask.Mask, kernelMark uint32) (external, localIn uint32) {
	return mask.External(kernelMark), mask.Local(kernelMark)
}

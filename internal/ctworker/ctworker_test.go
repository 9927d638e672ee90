// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l7classd/internal/flow"
	"l7classd/internal/markval"
	"l7classd/internal/metrics"
	"l7classd/internal/ruleset"
)

func TestNewEventCreatesTrackedEntry(t *testing.T) {
	table := flow.New(IdleTTL)
	h := newHandler(table, metrics.New())

	attrs := Attrs{L4Proto: 6, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1111, DstPort: 80}
	h.handle(Event{Kind: EventNew, Attrs: attrs}, time.Now())

	forward, _ := attrsKeyPair(attrs)
	handle, ok := table.Get(forward)
	require.True(t, ok)
	assert.True(t, handle.Entry().Tracked())
	handle.Release()
}

func TestNewEventPromotesExistingUntrackedEntry(t *testing.T) {
	table := flow.New(IdleTTL)
	attrs := Attrs{L4Proto: 6, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1111, DstPort: 80}
	forward, reverse := attrsKeyPair(attrs)

	// A packet arrived before the NEW event did.
	h0, _ := table.GetOrCreate(forward, reverse)
	h0.Release()

	h := newHandler(table, metrics.New())
	h.handle(Event{Kind: EventNew, Attrs: attrs}, time.Now())

	handle, ok := table.Get(forward)
	require.True(t, ok)
	assert.True(t, handle.Entry().Tracked())
	handle.Release()
	assert.Equal(t, 1, table.Len())
}

func TestDestroyPurgesEitherKey(t *testing.T) {
	table := flow.New(IdleTTL)
	attrs := Attrs{L4Proto: 17, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 1111, DstPort: 53}
	forward, reverse := attrsKeyPair(attrs)

	// The entry ends up re-keyed under the reverse direction, as if a
	// reply packet had arrived and reversed it.
	h0, _ := table.GetOrCreate(reverse, forward)
	h0.Release()
	require.True(t, table.Has(reverse))

	h := newHandler(table, metrics.New())
	h.handle(Event{Kind: EventDestroy, Attrs: attrs}, time.Now())

	assert.Equal(t, 0, table.Len())
}

func TestUnknownAndErrorEventsAreNoOps(t *testing.T) {
	table := flow.New(IdleTTL)
	h := newHandler(table, metrics.New())

	h.handle(Event{Kind: EventUnknown}, time.Now())
	h.handle(Event{Kind: EventError}, time.Now())

	assert.Equal(t, 0, table.Len())
}

func TestGCRunsWhenIntervalElapsed(t *testing.T) {
	table := flow.New(time.Millisecond)
	h := newHandler(table, metrics.New())
	h.lastGC = time.Now().Add(-2 * GCInterval)

	stale, _ := table.GetOrCreate("stale", "stale-rev")
	stale.Entry().UpdatePacket(true, []byte("x"), time.Now().Add(-time.Hour), stubNoMatchMatcher{})
	stale.Release()

	h.handle(Event{Kind: EventUnknown}, time.Now())

	assert.Equal(t, 0, table.Len())
}

type stubNoMatchMatcher struct{}

func (stubNoMatchMatcher) Match(proto ruleset.Protocol, method, url string) markval.Mark {
	return markval.NoMatch
}

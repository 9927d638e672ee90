// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l7classd/internal/markval"
	"l7classd/internal/ruleset"
)

type stubMatcher struct{ mark markval.Mark }

func (m stubMatcher) Match(proto ruleset.Protocol, method, url string) markval.Mark {
	return m.mark
}

func TestGetOrCreateCreatesNewUntrackedEntry(t *testing.T) {
	tbl := New(time.Minute)

	h, created := tbl.GetOrCreate("tcp src=a dst=b sport=1 dport=2", "tcp src=b dst=a sport=2 dport=1")
	require.True(t, created)
	assert.False(t, h.Entry().Tracked())
	assert.Equal(t, markval.NoMatchYet, h.Entry().Mark)
	h.Release()

	assert.Equal(t, 1, tbl.Len())
}

func TestGetOrCreateReversesEntryStoredUnderReverseKey(t *testing.T) {
	tbl := New(time.Minute)
	fwd := "tcp src=a dst=b sport=1 dport=2"
	rev := "tcp src=b dst=a sport=2 dport=1"

	// First packet arrives "backwards": the table only knows the flow
	// under what is now the reverse key.
	h, created := tbl.GetOrCreate(rev, fwd)
	require.True(t, created)
	h.Entry().BytesEgress = 100
	h.Entry().BytesIngress = 7
	h.Release()

	// A later packet arrives the other way around and asks for fwd.
	h2, created2 := tbl.GetOrCreate(fwd, rev)
	require.False(t, created2)
	assert.Equal(t, fwd, h2.Key())
	assert.Equal(t, uint64(7), h2.Entry().BytesEgress)
	assert.Equal(t, uint64(100), h2.Entry().BytesIngress)
	h2.Release()

	assert.Equal(t, 1, tbl.Len())
	assert.True(t, tbl.Has(fwd))
	assert.False(t, tbl.Has(rev))
}

func TestOverflowForcesDefinitiveNoMatch(t *testing.T) {
	tbl := New(time.Minute)
	h, _ := tbl.GetOrCreate("k", "k-rev")
	defer h.Release()

	m := stubMatcher{mark: markval.NoMatchYet}
	chunk := []byte(strings.Repeat("x", 4096))

	var mark markval.Mark
	for i := 0; i < 5 && !h.Entry().Definitive; i++ {
		mark = h.Entry().UpdatePacket(true, chunk, time.Now(), m)
	}

	assert.True(t, h.Entry().Definitive)
	assert.Equal(t, markval.NoMatch, mark)
}

func TestRemovePurgesWhicheverKeyIsCanonical(t *testing.T) {
	tbl := New(time.Minute)
	fwd, rev := "tcp src=a dst=b sport=1 dport=2", "tcp src=b dst=a sport=2 dport=1"

	h, _ := tbl.GetOrCreate(fwd, rev)
	h.Release()
	require.True(t, tbl.Has(fwd))

	// DESTROY fires with the pair parsed from the packet that closed
	// the connection; it may not know which of the two keys the
	// entry actually lives under.
	removed := tbl.Remove(rev, fwd)
	assert.True(t, removed)
	assert.Equal(t, 0, tbl.Len())
}

func TestGCReapsOnlyIdleEntries(t *testing.T) {
	tbl := New(10 * time.Minute)

	hStale, _ := tbl.GetOrCreate("stale", "stale-rev")
	hStale.Entry().touch(time.Now().Add(-time.Hour))
	hStale.Release()

	hFresh, _ := tbl.GetOrCreate("fresh", "fresh-rev")
	hFresh.Entry().touch(time.Now())
	hFresh.Release()

	hNoTraffic, _ := tbl.GetOrCreate("untouched", "untouched-rev")
	hNoTraffic.Release()

	removed := tbl.GC(time.Now())
	assert.Equal(t, 1, removed)
	assert.False(t, tbl.Has("stale"))
	assert.True(t, tbl.Has("fresh"))
	assert.True(t, tbl.Has("untouched"))
}

func TestMarkTrackedPromotesEitherKey(t *testing.T) {
	tbl := New(time.Minute)
	fwd, rev := "a", "b"
	h, _ := tbl.GetOrCreate(fwd, rev)
	h.Release()

	assert.True(t, tbl.MarkTracked(rev, fwd))
	h2, _ := tbl.Get(fwd)
	assert.True(t, h2.Entry().Tracked())
	h2.Release()
}

func TestInsertTrackedIsIdempotent(t *testing.T) {
	tbl := New(time.Minute)
	fwd, rev := "a", "b"

	tbl.InsertTracked(fwd, rev)
	tbl.InsertTracked(fwd, rev)

	assert.Equal(t, 1, tbl.Len())
	h, ok := tbl.Get(fwd)
	require.True(t, ok)
	assert.True(t, h.Entry().Tracked())
	h.Release()
}

func TestSnapshotReflectsEntryState(t *testing.T) {
	tbl := New(time.Minute)
	h, _ := tbl.GetOrCreate("k", "k-rev")
	h.Entry().PacketsEgress = 3
	h.Release()

	snaps := tbl.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "k", snaps[0].Key)
	assert.Equal(t, uint64(3), snaps[0].PacketsEgress)
}

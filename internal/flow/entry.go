// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow implements the connection table and the per-entry
// payload accumulator (spec.md §3, §4.6, §5).
package flow

import (
	"sync"
	"sync/atomic"
	"time"

	"l7classd/internal/classify"
	"l7classd/internal/markval"
)

// MaxBufferSize is the per-direction buffer bound after which the
// classifier is torn down and the entry becomes definitively
// unmatched (spec.md §4.4).
const MaxBufferSize = 16 * 1024

// Entry is one connection table entry. Its exported state is only
// ever mutated while the content lock (acquired through a Handle) is
// held, except for Tracked, which the table mutates directly as an
// atomic under its own read lock (mirroring the reference implementation, where
// conntrack promotion is a table-level operation, not a per-entry
// one).
type Entry struct {
	mu sync.Mutex

	refcount int32 // atomic

	tracked atomic.Bool

	Mark       markval.Mark
	Definitive bool

	PacketsEgress, PacketsIngress uint64
	BytesEgress, BytesIngress     uint64

	bufEgress, bufIngress []byte

	classifier *classify.State // nil once Definitive

	lastActivity atomic.Int64 // UnixNano, 0 means never
}

func newEntry(tracked bool) *Entry {
	e := &Entry{
		Mark:       markval.NoMatchYet,
		classifier: &classify.State{},
	}
	e.tracked.Store(tracked)
	return e
}

// Tracked reports whether a conntrack NEW event has confirmed this flow.
func (e *Entry) Tracked() bool { return e.tracked.Load() }

// LastActivity returns the timestamp of the last packet update, or
// the zero Time if none has ever arrived.
func (e *Entry) LastActivity() time.Time {
	ns := e.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (e *Entry) touch(now time.Time) {
	e.lastActivity.Store(now.UnixNano())
}

// acquire bumps the refcount and takes the content lock. It must be
// paired with a release.
func (e *Entry) acquire() {
	atomic.AddInt32(&e.refcount, 1)
	e.mu.Lock()
}

// release drops the content lock and decrements the refcount.
func (e *Entry) release() {
	e.mu.Unlock()
	atomic.AddInt32(&e.refcount, -1)
}

// UpdatePacket appends payload to the chosen direction's buffer,
// drives the classifier, truncates the buffer per the classifier's
// hints, and enforces the overflow policy. Caller must hold the
// content lock (i.e. call this through a Handle). A zero-length
// payload must never reach here (spec.md §4.2 step 3 filters it
// before the table is even consulted).
func (e *Entry) UpdatePacket(egress bool, payload []byte, now time.Time, m classify.Matcher) markval.Mark {
	if e.Definitive {
		return e.Mark
	}

	if egress {
		e.PacketsEgress++
		e.BytesEgress += uint64(len(payload))
		e.bufEgress = append(e.bufEgress, payload...)
	} else {
		e.PacketsIngress++
		e.BytesIngress += uint64(len(payload))
		e.bufIngress = append(e.bufIngress, payload...)
	}
	e.touch(now)

	oldEgressHint, oldIngressHint := e.classifier.EgressHint, e.classifier.IngressHint
	classified := e.classifier.Update(e.bufIngress, e.bufEgress, m)
	e.Mark = e.classifier.Mark

	if classified {
		e.setDefinitive()
		return e.Mark
	}

	e.shrinkBuffer(true, e.classifier.EgressHint-oldEgressHint)
	e.shrinkBuffer(false, e.classifier.IngressHint-oldIngressHint)

	if len(e.bufEgress) > MaxBufferSize || len(e.bufIngress) > MaxBufferSize {
		e.Mark = markval.NoMatch
		e.setDefinitive()
	}

	return e.Mark
}

func (e *Entry) shrinkBuffer(egress bool, consumed uint32) {
	if consumed == 0 {
		return
	}
	if egress {
		e.bufEgress = e.bufEgress[consumed:]
	} else {
		e.bufIngress = e.bufIngress[consumed:]
	}
}

func (e *Entry) setDefinitive() {
	e.classifier = nil
	e.bufEgress = nil
	e.bufIngress = nil
	e.Definitive = true
}

// reverse swaps the per-direction counters and buffers and flips the
// classifier's client/server orientation (spec.md §4.4 Reversal).
// Caller must hold the content lock.
func (e *Entry) reverse() {
	e.PacketsEgress, e.PacketsIngress = e.PacketsIngress, e.PacketsEgress
	e.BytesEgress, e.BytesIngress = e.BytesIngress, e.BytesEgress
	e.bufEgress, e.bufIngress = e.bufIngress, e.bufEgress
	if e.classifier != nil {
		e.classifier.Reverse()
	}
}

// Snapshot is a point-in-time, lock-released copy of one entry's
// observable fields (spec.md §3 EXPANDED, control-socket use only).
type Snapshot struct {
	Key            string
	Tracked        bool
	Mark           markval.Mark
	Definitive     bool
	PacketsEgress  uint64
	PacketsIngress uint64
	BytesEgress    uint64
	BytesIngress   uint64
	LastActivity   time.Time
}

func (e *Entry) snapshot(key string) Snapshot {
	e.acquire()
	defer e.release()
	return Snapshot{
		Key:            key,
		Tracked:        e.Tracked(),
		Mark:           e.Mark,
		Definitive:     e.Definitive,
		PacketsEgress:  e.PacketsEgress,
		PacketsIngress: e.PacketsIngress,
		BytesEgress:    e.BytesEgress,
		BytesIngress:   e.BytesIngress,
		LastActivity:   e.LastActivity(),
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"sync"
	"time"
)

// Handle is a checked-out Entry. It holds the entry's content lock
// for its entire lifetime; callers must call Release exactly once.
type Handle struct {
	entry *Entry
	key   string
}

// Entry exposes the checked-out entry for mutation.
func (h *Handle) Entry() *Entry { return h.entry }

// Key is the table key this handle was obtained under. After a
// GetOrCreate that triggered a reversal, this is always the forward
// key the caller asked for, never the stale reverse key.
func (h *Handle) Key() string { return h.key }

// Release drops the content lock and the refcount bump taken by
// acquire. It mirrors Connection::Release in the reference
// implementation: in Go nothing needs to be freed, but the lock/count
// pairing is preserved so GC and Remove can wait out in-flight
// updates the same way Destroy does.
func (h *Handle) Release() {
	h.entry.release()
}

// Table is the shared connection table (spec.md §3, §4.6). The RWMutex
// guards only the map itself: Has and Get take the read side, every
// map mutation takes the write side. It is never held while a
// per-entry payload update runs — GetOrCreate acquires the entry's
// content lock while still holding the table's write lock (so
// creation/reversal is atomic with respect to concurrent conntrack
// events), then releases the table lock before the caller mutates
// the entry's buffers.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	idleTTL time.Duration
}

// New creates an empty table. idleTTL is the inactivity threshold GC
// uses to reap entries (spec.md §4.6).
func New(idleTTL time.Duration) *Table {
	return &Table{
		entries: make(map[string]*Entry),
		idleTTL: idleTTL,
	}
}

// Has reports whether key (or not) is present, taking only the read
// lock.
func (t *Table) Has(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[key]
	return ok
}

// Get looks up key and, if found, returns a checked-out Handle.
func (t *Table) Get(key string) (*Handle, bool) {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.acquire()
	return &Handle{entry: e, key: key}, true
}

// GetOrCreate finds the entry for a flow identified by its forward
// and reverse keys, reversing and re-keying it if it was previously
// stored under the reverse key, or creating a new untracked entry
// under forward if neither is present. It returns a checked-out
// Handle and whether a new entry was created; the handle's Key is
// always forward, including when the entry existed under reverse.
func (t *Table) GetOrCreate(forward, reverse string) (h *Handle, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[forward]; ok {
		e.acquire()
		return &Handle{entry: e, key: forward}, false
	}

	if e, ok := t.entries[reverse]; ok {
		e.acquire()
		e.reverse()
		delete(t.entries, reverse)
		t.entries[forward] = e
		return &Handle{entry: e, key: forward}, false
	}

	e := newEntry(false)
	e.acquire()
	t.entries[forward] = e
	return &Handle{entry: e, key: forward}, true
}

// MarkTracked idempotently promotes the entry stored at key (or its
// reverse) to tracked, meaning a conntrack NEW event has confirmed
// it. It takes only the read lock: Tracked is an atomic field, not
// part of the content a Handle's lock protects, mirroring the
// reference implementation where conntrack promotion happens under
// the table lock alone.
func (t *Table) MarkTracked(key, altKey string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[key]; ok {
		e.tracked.Store(true)
		return true
	}
	if e, ok := t.entries[altKey]; ok {
		e.tracked.Store(true)
		return true
	}
	return false
}

// InsertTracked is GetOrCreate followed by MarkTracked, exposed as
// its own operation because conntrack NEW handling (spec.md §4.3)
// treats "find-or-create, then promote" as one idempotent step.
func (t *Table) InsertTracked(forward, reverse string) {
	h, _ := t.GetOrCreate(forward, reverse)
	h.Release()
	t.MarkTracked(h.Key(), reverse)
}

// Remove purges the entry stored under either key, per the redesigned
// DESTROY handling (spec.md §9 Open Question a): the original only
// ever checked the forward key, leaking any entry that had been
// reversed and re-keyed. Before deleting, it briefly acquires and
// releases the entry's content lock, so a DESTROY racing a
// just-finished packet update always sees the final state and never
// removes an entry a Handle is still actively mutating.
func (t *Table) Remove(key, altKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := false
	if e, ok := t.entries[key]; ok {
		e.acquire()
		e.release()
		delete(t.entries, key)
		removed = true
	}
	if e, ok := t.entries[altKey]; ok {
		e.acquire()
		e.release()
		delete(t.entries, altKey)
		removed = true
	}
	return removed
}

// GC removes every entry whose last activity is older than now minus
// the table's idle TTL. Entries that have never seen a packet (zero
// LastActivity) are left alone; the conntrack DESTROY path is
// responsible for reaping those. It returns the number of entries
// removed.
func (t *Table) GC(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.idleTTL)
	removed := 0
	for key, e := range t.entries {
		last := e.LastActivity()
		if last.IsZero() || last.After(cutoff) {
			continue
		}
		e.acquire()
		e.release()
		delete(t.entries, key)
		removed++
	}
	return removed
}

// Len returns the current number of tracked+untracked entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a point-in-time copy of every entry's observable
// state, for the control-socket dump operation (spec.md §6 EXPANDED).
func (t *Table) Snapshot() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Snapshot, 0, len(t.entries))
	for key, e := range t.entries {
		out = append(out, e.snapshot(key))
	}
	return out
}

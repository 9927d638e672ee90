// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package markmask implements the mark-mask algebra the queue worker
// uses to fold a classification decision into the conntrack mark
// without disturbing whatever other subsystem owns the rest of the
// bits (spec.md §6).
package markmask

import (
	"fmt"
	"math/bits"
)

// Mask is a validated mark mask: exactly one contiguous run of set
// bits.
type Mask struct {
	raw uint32
	lsb uint32 // index of the lowest set bit
	n   uint32 // number of set bits
}

// Parse validates raw as a single contiguous run of bits and returns
// a Mask. A zero mask is rejected, since it could never carry a
// classification result (spec.md §6 EXPANDED).
func Parse(raw uint32) (Mask, error) {
	if raw == 0 {
		return Mask{}, fmt.Errorf("markmask: mask must not be zero")
	}
	lsb := bits.TrailingZeros32(raw)
	n := bits.OnesCount32(raw)
	// A contiguous run of n bits starting at lsb looks like
	// ((1<<n)-1)<<lsb; any other arrangement of the same popcount
	// fails this equality.
	contiguous := uint32((uint64(1)<<uint(n) - 1)) << uint(lsb)
	if raw != contiguous {
		return Mask{}, fmt.Errorf("markmask: mask 0x%x is not a single contiguous run of bits", raw)
	}
	return Mask{raw: raw, lsb: uint32(lsb), n: uint32(n)}, nil
}

// Raw returns the mask's original bit pattern.
func (m Mask) Raw() uint32 { return m.raw }

// External extracts the bits of mark outside the mask, i.e. the
// portion other subsystems own and that this daemon must never touch.
func (m Mask) External(mark uint32) uint32 {
	return mark &^ m.raw
}

// Local extracts the classification-owned bits of mark, right-shifted
// down to their natural value.
func (m Mask) Local(mark uint32) uint32 {
	return (mark & m.raw) >> m.lsb
}

// Compose folds localValue into the mask's bit range of mark, leaving
// every bit outside the mask untouched. It is the operation the queue
// worker calls before issuing a verdict.
func (m Mask) Compose(mark uint32, localValue uint32) uint32 {
	shifted := (localValue << m.lsb) & m.raw
	return m.External(mark) | shifted
}

// MaxLocalValue is the largest value Local/Compose can round-trip
// without the shifted value spilling outside the mask's bit range.
func (m Mask) MaxLocalValue() uint32 {
	return (uint32(1) << m.n) - 1
}

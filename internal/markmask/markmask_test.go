// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package markmask

import "testing"

func TestParseRejectsZero(t *testing.T) {
	if _, err := Parse(0); err == nil {
		t.Fatal("expected error for zero mask")
	}
}

func TestParseRejectsNonContiguous(t *testing.T) {
	// bits 0 and 2 set, bit 1 clear: not a single run.
	if _, err := Parse(0b101); err == nil {
		t.Fatal("expected error for non-contiguous mask")
	}
}

func TestParseAcceptsContiguousRuns(t *testing.T) {
	cases := []uint32{0x1, 0xff, 0xff00, 0x80000000, 0xffffffff}
	for _, raw := range cases {
		if _, err := Parse(raw); err != nil {
			t.Errorf("Parse(0x%x) = %v, want no error", raw, err)
		}
	}
}

func TestComposeAndDecomposeRoundTrip(t *testing.T) {
	m, err := Parse(0x0000ff00)
	if err != nil {
		t.Fatal(err)
	}

	original := uint32(0xdeadbeef)
	external := m.External(original)

	composed := m.Compose(original, 0x42)
	if got := m.External(composed); got != external {
		t.Errorf("External(composed) = 0x%x, want 0x%x (composition law violated)", got, external)
	}
	if got := m.Local(composed); got != 0x42 {
		t.Errorf("Local(composed) = 0x%x, want 0x42", got)
	}
}

func TestMaxLocalValue(t *testing.T) {
	m, err := Parse(0b1110)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.MaxLocalValue(); got != 7 {
		t.Errorf("MaxLocalValue() = %d, want 7", got)
	}
}

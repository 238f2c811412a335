// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package snapshot

import "testing"

func TestCommitAndReadRegisters(t *testing.T) {
	s := NewStore(2)
	s.CommitRegisters(0, false, []uint16{1, 2, 3}, true)

	if !s.Ready(0) {
		t.Fatalf("expected group 0 ready")
	}
	regs, ready := s.ReadRegisters(0, false)
	if !ready {
		t.Fatalf("expected ready on read")
	}
	if regs[0] != 1 || regs[1] != 2 || regs[2] != 3 {
		t.Fatalf("unexpected regs: %v", regs[:3])
	}
	if regs[3] != 0 {
		t.Fatalf("expected untouched tail to be zero, got %v", regs[3])
	}
}

func TestCommitBitsTruncatesToCapacity(t *testing.T) {
	s := NewStore(1)
	bits := make([]bool, MaxBits+10)
	for i := range bits {
		bits[i] = true
	}
	s.CommitBits(0, false, bits, true)

	out, ready := s.ReadBits(0, false)
	if !ready {
		t.Fatalf("expected ready")
	}
	for _, b := range out {
		if b != 0xFF {
			t.Fatalf("expected all bits set within capacity, got %08b", b)
		}
	}
}

func TestMarkFailedClearsReadyOnly(t *testing.T) {
	s := NewStore(1)
	s.CommitRegisters(0, false, []uint16{42}, true)
	s.MarkFailed(0)

	if s.Ready(0) {
		t.Fatalf("expected not ready after MarkFailed")
	}
	regs, ready := s.ReadRegisters(0, false)
	if ready {
		t.Fatalf("expected ReadRegisters to report not ready")
	}
	if regs[0] != 42 {
		t.Fatalf("expected stale data preserved, got %v", regs[0])
	}
}

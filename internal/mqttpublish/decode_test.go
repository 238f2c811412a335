// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mqttpublish

import (
	"testing"

	"github.com/modbusedge/gateway/internal/config"
)

func TestAssemble32ByteOrders(t *testing.T) {
	a, b := uint16(0x1234), uint16(0x5678)
	cases := []struct {
		method config.ParseMethod
		want   uint32
	}{
		{config.ParseInt32ABCD, 0x12345678},
		{config.ParseInt32CDAB, 0x56781234},
		{config.ParseInt32BADC, 0x34127856},
		{config.ParseInt32DCBA, 0x78563412},
	}
	for _, tc := range cases {
		if got := assemble32(a, b, tc.method); got != tc.want {
			t.Errorf("assemble32(%#04x,%#04x,%v) = %#08x, want %#08x", a, b, tc.method, got, tc.want)
		}
	}
}

func TestDecodeRegisterPairFloat32ABCD(t *testing.T) {
	// 3.14f = 0x4048F5C3
	got := decodeRegisterPair(0x4048, 0xF5C3, config.ParseFloatABCD)
	if got != 3.14 {
		t.Fatalf("got %v, want 3.14", got)
	}
}

func TestDecodeWordsSigned16(t *testing.T) {
	out := decodeWords([]uint16{0xFFFE}, config.ParseInt16Signed)
	if len(out) != 1 || out[0] != int16(-2) {
		t.Fatalf("got %v, want [-2]", out)
	}
}

func TestDecodeWordsUnsigned16(t *testing.T) {
	out := decodeWords([]uint16{0xFFFE}, config.ParseInt16Unsigned)
	if len(out) != 1 || out[0] != uint16(65534) {
		t.Fatalf("got %v, want [65534]", out)
	}
}

func TestDecodeBitsLSBFirst(t *testing.T) {
	// 0b1010 packed LSB-first -> bit0=0, bit1=1, bit2=0, bit3=1
	out := decodeBits([]byte{0b1010}, 4)
	want := []any{0, 1, 0, 1}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("bit %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import "testing"

func TestCRC(t *testing.T) {
	var c CRC
	c.Reset()
	c.PushBytes([]byte{0x02, 0x07})

	if c.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, c.Value())
	}
}

func TestCRC_PushByte(t *testing.T) {
	var a, b CRC
	a.Reset().PushBytes([]byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03})
	b.Reset()
	for _, x := range []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03} {
		b.PushByte(x)
	}
	if a.Value() != b.Value() {
		t.Fatalf("PushByte and PushBytes diverged: %v != %v", b.Value(), a.Value())
	}
}

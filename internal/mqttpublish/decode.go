// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mqttpublish

import (
	"math"

	"github.com/modbusedge/gateway/internal/config"
)

// swap16 reverses the two bytes within a 16-bit word.
func swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

// assemble32 builds a 32-bit word from a register pair (a, b) per the
// requested byte order. ABCD and CDAB are plain register-order swaps;
// BADC and DCBA additionally swap the bytes within each register before
// combining them — the standard Modbus byte-order conventions, not the
// inconsistent formulas found in the source this was distilled from (see
// DESIGN.md).
func assemble32(a, b uint16, method config.ParseMethod) uint32 {
	switch method {
	case config.ParseInt32ABCD, config.ParseFloatABCD:
		return uint32(a)<<16 | uint32(b)
	case config.ParseInt32CDAB, config.ParseFloatCDAB:
		return uint32(b)<<16 | uint32(a)
	case config.ParseInt32BADC, config.ParseFloatBADC:
		return uint32(swap16(a))<<16 | uint32(swap16(b))
	case config.ParseInt32DCBA, config.ParseFloatDCBA:
		return uint32(swap16(b))<<16 | uint32(swap16(a))
	default:
		return 0
	}
}

// decodeRegisterPair decodes one 32-bit value (int32 or float32, boxed as
// a float64 for uniform JSON emission) from a register pair per method.
func decodeRegisterPair(a, b uint16, method config.ParseMethod) float64 {
	bits := assemble32(a, b, method)
	switch method {
	case config.ParseFloatABCD, config.ParseFloatCDAB, config.ParseFloatBADC, config.ParseFloatDCBA:
		f := math.Float32frombits(bits)
		return roundTo2(float64(f))
	default:
		return float64(int32(bits))
	}
}

func roundTo2(f float64) float64 {
	return math.Round(f*100) / 100
}

// decodeWords renders the words in regs of a holding/input register group
// as JSON-ready values, per method. The 32-bit int and float methods
// consume words in pairs; a trailing odd word is ignored.
func decodeWords(regs []uint16, method config.ParseMethod) []any {
	switch method {
	case config.ParseInt16Signed:
		out := make([]any, len(regs))
		for i, r := range regs {
			out[i] = int16(r)
		}
		return out
	case config.ParseInt16Unsigned:
		out := make([]any, len(regs))
		for i, r := range regs {
			out[i] = r
		}
		return out
	case config.ParseInt32ABCD, config.ParseInt32CDAB, config.ParseInt32BADC, config.ParseInt32DCBA,
		config.ParseFloatABCD, config.ParseFloatCDAB, config.ParseFloatBADC, config.ParseFloatDCBA:
		n := len(regs) / 2
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, decodeRegisterPair(regs[i*2], regs[i*2+1], method))
		}
		return out
	default:
		return nil
	}
}

// decodeBits renders count bits unpacked LSB-first from a packed row as
// JSON numbers 0/1.
func decodeBits(packed []byte, count int) []any {
	out := make([]any, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		v := 0
		if byteIdx < len(packed) && packed[byteIdx]&(1<<bitIdx) != 0 {
			v = 1
		}
		out[i] = v
	}
	return out
}

// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tcpslave implements the Modbus-TCP slave that re-exposes a
// projection of the snapshot store to upstream SCADA clients.
package tcpslave

import (
	"fmt"
	"sync"
)

// Arenas holds the four flat register spaces the TCP slave answers
// requests from. The projector is the sole writer; the server's request
// handlers are the readers (and, for coils/holding registers, writers
// back from upstream clients).
type Arenas struct {
	mu sync.Mutex

	bits           []byte
	inputBits      []byte
	registers      []uint16
	inputRegisters []uint16
}

// NewArenas allocates the four arenas at the given sizes (in bits/words,
// not bytes).
func NewArenas(bitsSize, inputBitsSize, registersSize, inputRegistersSize int) *Arenas {
	return &Arenas{
		bits:           make([]byte, bitsSize),
		inputBits:      make([]byte, inputBitsSize),
		registers:      make([]uint16, registersSize),
		inputRegisters: make([]uint16, inputRegistersSize),
	}
}

// WriteBits overwrites count coil values starting at slaveAddr. Used by
// the projector to mirror polled data in (values are already unpacked to
// one bool per bit elsewhere) and exposed here as raw byte-indexed values
// for simplicity: 0 or 1 per entry.
func (a *Arenas) WriteBits(slaveAddr int, values []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slaveAddr < 0 || slaveAddr+len(values) > len(a.bits) {
		return fmt.Errorf("tcpslave: coil range [%d,%d) out of bounds (size %d)", slaveAddr, slaveAddr+len(values), len(a.bits))
	}
	copy(a.bits[slaveAddr:], values)
	return nil
}

// WriteInputBits is the discrete-input analogue of WriteBits.
func (a *Arenas) WriteInputBits(slaveAddr int, values []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slaveAddr < 0 || slaveAddr+len(values) > len(a.inputBits) {
		return fmt.Errorf("tcpslave: discrete input range [%d,%d) out of bounds (size %d)", slaveAddr, slaveAddr+len(values), len(a.inputBits))
	}
	copy(a.inputBits[slaveAddr:], values)
	return nil
}

// WriteRegisters overwrites holding registers starting at slaveAddr.
func (a *Arenas) WriteRegisters(slaveAddr int, values []uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slaveAddr < 0 || slaveAddr+len(values) > len(a.registers) {
		return fmt.Errorf("tcpslave: holding register range [%d,%d) out of bounds (size %d)", slaveAddr, slaveAddr+len(values), len(a.registers))
	}
	copy(a.registers[slaveAddr:], values)
	return nil
}

// WriteInputRegisters is the input-register analogue of WriteRegisters.
func (a *Arenas) WriteInputRegisters(slaveAddr int, values []uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slaveAddr < 0 || slaveAddr+len(values) > len(a.inputRegisters) {
		return fmt.Errorf("tcpslave: input register range [%d,%d) out of bounds (size %d)", slaveAddr, slaveAddr+len(values), len(a.inputRegisters))
	}
	copy(a.inputRegisters[slaveAddr:], values)
	return nil
}

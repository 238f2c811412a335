// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcpslave

import "fmt"

// RegisterTable is the capability an address range is validated against
// and dispatched into: a getter that copies out a range and, where the
// underlying table is writable, a setter that copies a range in. Tables
// that are read-only (discrete inputs, input registers) leave set nil.
type RegisterTable struct {
	size int
	get  func(addr, quantity int) ([]byte, error)
	set  func(addr int, data []byte) error
}

func inRange(size, addr, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("tcpslave: quantity %d must be positive", quantity)
	}
	if addr < 0 || addr+quantity > size {
		return fmt.Errorf("tcpslave: %w: range [%d,%d) exceeds table size %d", ErrIllegalDataAddress, addr, addr+quantity, size)
	}
	return nil
}

func bitsTable(a *Arenas, words []byte) RegisterTable {
	return RegisterTable{
		size: len(words),
		get: func(addr, quantity int) ([]byte, error) {
			if err := inRange(len(words), addr, quantity); err != nil {
				return nil, err
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			out := make([]byte, quantity)
			copy(out, words[addr:addr+quantity])
			return out, nil
		},
	}
}

// CoilsTable returns the read/write capability over a's coil arena.
func CoilsTable(a *Arenas) RegisterTable {
	t := bitsTable(a, a.bits)
	t.set = func(addr int, data []byte) error {
		if err := inRange(len(a.bits), addr, len(data)); err != nil {
			return err
		}
		return a.WriteBits(addr, data)
	}
	return t
}

// DiscreteInputsTable returns the read-only capability over a's discrete
// input arena.
func DiscreteInputsTable(a *Arenas) RegisterTable {
	return bitsTable(a, a.inputBits)
}

func registersTable(a *Arenas, words []uint16) RegisterTable {
	return RegisterTable{
		size: len(words),
		get: func(addr, quantity int) ([]byte, error) {
			if err := inRange(len(words), addr, quantity); err != nil {
				return nil, err
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			out := make([]byte, quantity*2)
			for i := 0; i < quantity; i++ {
				v := words[addr+i]
				out[i*2] = byte(v >> 8)
				out[i*2+1] = byte(v)
			}
			return out, nil
		},
	}
}

// HoldingRegistersTable returns the read/write capability over a's
// holding register arena.
func HoldingRegistersTable(a *Arenas) RegisterTable {
	t := registersTable(a, a.registers)
	t.set = func(addr int, data []byte) error {
		if len(data)%2 != 0 {
			return fmt.Errorf("tcpslave: register write payload length %d not a multiple of 2", len(data))
		}
		quantity := len(data) / 2
		if err := inRange(len(a.registers), addr, quantity); err != nil {
			return err
		}
		vals := make([]uint16, quantity)
		for i := 0; i < quantity; i++ {
			vals[i] = uint16(data[i*2])<<8 | uint16(data[i*2+1])
		}
		return a.WriteRegisters(addr, vals)
	}
	return t
}

// InputRegistersTable returns the read-only capability over a's input
// register arena.
func InputRegistersTable(a *Arenas) RegisterTable {
	return registersTable(a, a.inputRegisters)
}

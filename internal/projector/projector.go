// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package projector mirrors ready poll groups from the snapshot store
// into the TCP slave's flat register arenas on a fixed cadence.
package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/snapshot"
	"github.com/modbusedge/gateway/internal/tcpslave"
)

const tickInterval = 100 * time.Millisecond

// Projector copies snapshot data into TCP slave arenas according to a
// fixed set of map entries.
type Projector struct {
	maps   []config.MapEntry
	store  *snapshot.Store
	arenas *tcpslave.Arenas
}

// New builds a Projector over maps, reading from store and writing into
// arenas.
func New(maps []config.MapEntry, store *snapshot.Store, arenas *tcpslave.Arenas) *Projector {
	return &Projector{maps: maps, store: store, arenas: arenas}
}

// Run ticks every 100ms, applying all map entries, until ctx is
// cancelled.
func (p *Projector) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Projector) tick() {
	for _, m := range p.maps {
		if m.Count == 0 {
			continue
		}
		if !p.store.Ready(m.GroupIndex) {
			continue
		}
		if err := p.apply(m); err != nil {
			slog.Error("projector: map entry failed", "group", m.GroupIndex, "type", m.Type, "error", err)
		}
	}
}

func (p *Projector) apply(m config.MapEntry) error {
	switch m.Type {
	case config.MapCoilToCoil:
		bits, _ := p.store.ReadBits(m.GroupIndex, false)
		return p.arenas.WriteBits(int(m.SlaveStartAddr), extractBits(bits[:], m.MasterStartAddr, m.Count))
	case config.MapDiscToDisc:
		bits, _ := p.store.ReadBits(m.GroupIndex, true)
		return p.arenas.WriteInputBits(int(m.SlaveStartAddr), extractBits(bits[:], m.MasterStartAddr, m.Count))
	case config.MapHoldToHold:
		regs, _ := p.store.ReadRegisters(m.GroupIndex, false)
		return p.arenas.WriteRegisters(int(m.SlaveStartAddr), extractRegs(regs[:], m.MasterStartAddr, m.Count))
	case config.MapInputToInput:
		regs, _ := p.store.ReadRegisters(m.GroupIndex, true)
		return p.arenas.WriteInputRegisters(int(m.SlaveStartAddr), extractRegs(regs[:], m.MasterStartAddr, m.Count))
	default:
		return nil
	}
}

// extractBits reads count one-or-zero byte values out of a packed bit
// array starting at the master-side bit offset start.
func extractBits(packed []byte, start uint16, count uint16) []byte {
	out := make([]byte, count)
	for j := uint16(0); j < count; j++ {
		bitIndex := start + j
		byteIdx := int(bitIndex / 8)
		bitIdx := uint(bitIndex % 8)
		if byteIdx >= len(packed) {
			break
		}
		if packed[byteIdx]&(1<<bitIdx) != 0 {
			out[j] = 1
		}
	}
	return out
}

func extractRegs(regs []uint16, start uint16, count uint16) []uint16 {
	out := make([]uint16, count)
	for j := uint16(0); j < count; j++ {
		idx := int(start + j)
		if idx >= len(regs) {
			break
		}
		out[j] = regs[idx]
	}
	return out
}

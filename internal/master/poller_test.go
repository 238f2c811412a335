// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"testing"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/modbus"
	"github.com/modbusedge/gateway/internal/snapshot"
)

func TestResponseBudget(t *testing.T) {
	if got := responseBudget(modbus.FuncCodeReadCoils, 10); got != modbus.RTUMinSize+1+2 {
		t.Fatalf("got %d", got)
	}
	if got := responseBudget(modbus.FuncCodeReadHoldingRegisters, 10); got != modbus.RTUMinSize+1+20 {
		t.Fatalf("got %d", got)
	}
}

func TestPollerCommitHoldingRegisters(t *testing.T) {
	store := snapshot.NewStore(1)
	p := NewPoller("bus1", nil, nil, 0, 0, store)
	g := config.PollGroup{SlaveAddr: 1, FunctionCode: modbus.FuncCodeReadHoldingRegisters, StartAddr: 0, RegCount: 3}

	respPDU := modbus.ProtocolDataUnit{FunctionCode: g.FunctionCode, Data: modbus.PackRegisters([]uint16{10, 20, 30})}
	raw, err := modbus.EncodeRTU(modbus.RTUFrame{SlaveID: g.SlaveAddr, PDU: respPDU})
	if err != nil {
		t.Fatalf("EncodeRTU: %v", err)
	}

	if err := p.commit(raw, g, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !store.Ready(0) {
		t.Fatalf("expected group ready after commit")
	}
	regs, ready := store.ReadRegisters(0, false)
	if !ready || regs[0] != 10 || regs[1] != 20 || regs[2] != 30 {
		t.Fatalf("unexpected regs %v ready=%v", regs[:3], ready)
	}
}

func TestPollerCommitException(t *testing.T) {
	store := snapshot.NewStore(1)
	p := NewPoller("bus1", nil, nil, 0, 0, store)
	g := config.PollGroup{SlaveAddr: 1, FunctionCode: modbus.FuncCodeReadCoils, RegCount: 10}

	excPDU := modbus.NewException(g.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	raw, _ := modbus.EncodeRTU(modbus.RTUFrame{SlaveID: g.SlaveAddr, PDU: excPDU})

	if err := p.commit(raw, g, 0); err == nil {
		t.Fatalf("expected error for exception response")
	}
}

// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master implements the RTU master poller: one instance per
// serial bus, cycling through its configured poll groups at a fixed
// cadence, reading each over the bus with an adaptively-sized per-group
// timeout, and committing results into the shared snapshot store.
package master

import (
	"context"
	"log/slog"
	"time"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/modbus"
	"github.com/modbusedge/gateway/internal/serialbus"
	"github.com/modbusedge/gateway/internal/snapshot"
)

// Poller polls every enabled group on one serial bus and writes results
// into store, indexed by the group's global snapshot row.
type Poller struct {
	bus       string
	channel   *serialbus.Channel
	groups    []config.PollGroup
	rowOffset int // first group's index into the shared Store
	interval  time.Duration
	store     *snapshot.Store
	timeouts  []*adaptiveTimeout
}

// NewPoller builds a poller for one serial bus. rowOffset is the index in
// store where this bus's groups begin; groups across all buses share one
// flat Store so the projector and MQTT publisher can address any group
// uniformly.
func NewPoller(busName string, ch *serialbus.Channel, groups []config.PollGroup, rowOffset int, interval time.Duration, store *snapshot.Store) *Poller {
	timeouts := make([]*adaptiveTimeout, len(groups))
	for i := range timeouts {
		timeouts[i] = newAdaptiveTimeout()
	}
	return &Poller{
		bus:       busName,
		channel:   ch,
		groups:    groups,
		rowOffset: rowOffset,
		interval:  interval,
		store:     store,
		timeouts:  timeouts,
	}
}

// Run polls every enabled group once per tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

func (p *Poller) pollOnce() {
	for i, g := range p.groups {
		if !g.Enabled {
			continue
		}
		row := p.rowOffset + i
		if err := p.pollGroup(g, row, p.timeouts[i]); err != nil {
			slog.Error("poll failed", "bus", p.bus, "group", i, "slave", g.SlaveAddr, "fc", g.FunctionCode, "error", err)
			p.store.MarkFailed(row)
			p.timeouts[i].OnFailure()
			continue
		}
		p.timeouts[i].OnSuccess()
	}
}

func (p *Poller) pollGroup(g config.PollGroup, row int, at *adaptiveTimeout) error {
	req := modbus.SerializeReadRequest(g.FunctionCode, g.StartAddr, g.RegCount)
	frame, err := modbus.EncodeRTU(modbus.RTUFrame{SlaveID: g.SlaveAddr, PDU: req})
	if err != nil {
		return err
	}

	maxResp := responseBudget(g.FunctionCode, int(g.RegCount))
	raw, err := p.channel.Send(frame, maxResp, at.Timeout())
	if err != nil {
		return err
	}
	return p.commit(raw, g, row)
}

func (p *Poller) commit(raw []byte, g config.PollGroup, row int) error {
	resp, err := modbus.DecodeRTU(raw)
	if err != nil {
		return err
	}
	if resp.PDU.IsException() {
		return exceptionError(resp.PDU.ExceptionCode())
	}

	switch g.FunctionCode {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		bits, err := modbus.DeserializeBits(resp.PDU, int(g.RegCount))
		if err != nil {
			return err
		}
		p.store.CommitBits(row, g.FunctionCode == modbus.FuncCodeReadDiscreteInputs, bits, true)
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		regs, err := modbus.DeserializeRegisters(resp.PDU, int(g.RegCount))
		if err != nil {
			return err
		}
		p.store.CommitRegisters(row, g.FunctionCode == modbus.FuncCodeReadInputRegisters, regs, true)
	default:
		return errUnsupportedFunctionCode
	}
	return nil
}

func responseBudget(funcCode byte, quantity int) int {
	switch funcCode {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		return modbus.RTUMinSize + 1 + (quantity+7)/8
	default:
		return modbus.RTUMinSize + 1 + quantity*2
	}
}

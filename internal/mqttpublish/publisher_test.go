// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mqttpublish

import (
	"encoding/json"
	"testing"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/modbus"
	"github.com/modbusedge/gateway/internal/snapshot"
)

func TestBuildPayloadMatchesScenarioS5(t *testing.T) {
	store := snapshot.NewStore(2)
	store.CommitRegisters(0, false, []uint16{1, 2, 3}, true)
	store.CommitBits(1, false, []bool{false, true, false, true}, true)

	groups := []config.PollGroup{
		{FunctionCode: modbus.FuncCodeReadHoldingRegisters, RegCount: 3},
		{FunctionCode: modbus.FuncCodeReadCoils, RegCount: 4},
	}
	cfg := config.MQTTConfig{
		Enabled:      true,
		Topic:        "modbus/data",
		GroupIDs:     []int{0, 1},
		GroupCount:   2,
		ParseMethods: []config.ParseMethod{config.ParseInt16Unsigned, config.ParseInt16Unsigned},
	}

	p := New(cfg, groups, store)
	payload := p.buildPayload()

	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string][]any
	if err := json.Unmarshal(buf, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	wantGroup0 := []float64{1, 2, 3}
	if len(got["group0"]) != 3 {
		t.Fatalf("group0 = %v, want len 3", got["group0"])
	}
	for i, v := range wantGroup0 {
		if got["group0"][i] != v {
			t.Fatalf("group0[%d] = %v, want %v", i, got["group0"][i], v)
		}
	}

	wantGroup1 := []float64{0, 1, 0, 1}
	if len(got["group1"]) != 4 {
		t.Fatalf("group1 = %v, want len 4", got["group1"])
	}
	for i, v := range wantGroup1 {
		if got["group1"][i] != v {
			t.Fatalf("group1[%d] = %v, want %v", i, got["group1"][i], v)
		}
	}
}

func TestBuildPayloadSkipsNotReady(t *testing.T) {
	store := snapshot.NewStore(1)
	groups := []config.PollGroup{{FunctionCode: modbus.FuncCodeReadHoldingRegisters, RegCount: 2}}
	p := New(config.MQTTConfig{Enabled: true, GroupIDs: []int{0}, GroupCount: 1}, groups, store)

	payload := p.buildPayload()
	if len(payload) != 0 {
		t.Fatalf("expected no groups published while not ready, got %v", payload)
	}
}

// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package mqttpublish periodically projects ready poll groups from the
// snapshot store into a single JSON object and publishes it to one MQTT
// topic, decoding each group's registers per its configured function
// code and parse method.
package mqttpublish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/errs"
	"github.com/modbusedge/gateway/internal/modbus"
	"github.com/modbusedge/gateway/internal/snapshot"
)

// maxPayloadBytes bounds the serialized JSON payload; a cycle whose
// encoding would exceed it is skipped and logged rather than published
// truncated.
const maxPayloadBytes = 8 * 1024

// Publisher periodically reads ready groups out of store and publishes
// them as one JSON object to a single MQTT topic.
type Publisher struct {
	cfg    config.MQTTConfig
	groups []config.PollGroup
	store  *snapshot.Store

	client mqtt.Client
}

// New builds a Publisher over groups (flattened across all buses, in the
// same order the snapshot rows were assigned) and store. The MQTT client
// is created but not connected; call Run to connect and start publishing.
func New(cfg config.MQTTConfig, groups []config.PollGroup, store *snapshot.Store) *Publisher {
	p := &Publisher{cfg: cfg, groups: groups, store: store}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "modbusedge-gateway"
	}
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("mqttpublish: connected to broker", "broker", cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqttpublish: broker connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Run connects to the broker (if enabled and a broker URL is configured)
// and publishes one JSON snapshot per publish_interval_ms until ctx is
// cancelled. It returns promptly without connecting if mqtt is disabled.
func (p *Publisher) Run(ctx context.Context) {
	if !p.cfg.Enabled || p.cfg.BrokerURL == "" {
		slog.Info("mqttpublish: disabled or no broker configured, not starting")
		return
	}

	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		slog.Error("mqttpublish: initial connect failed, relying on auto-reconnect", "error", token.Error())
	}
	defer p.client.Disconnect(250)

	interval := time.Duration(p.cfg.PublishIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

func (p *Publisher) publishOnce() {
	if !p.cfg.Enabled || !p.client.IsConnected() {
		return
	}

	payload := p.buildPayload()
	if len(payload) == 0 {
		return
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		slog.Error("mqttpublish: marshal failed, skipping cycle", "error", err)
		return
	}
	if len(buf) > maxPayloadBytes {
		slog.Error("mqttpublish: payload too large, skipping cycle", "bytes", len(buf), "limit", maxPayloadBytes, "error", errs.ErrResourceExhausted)
		return
	}

	token := p.client.Publish(p.cfg.Topic, 0, false, buf)
	if token.Wait() && token.Error() != nil {
		slog.Error("mqttpublish: publish failed", "error", token.Error())
	}
}

// buildPayload assembles the root JSON object for one publish cycle: one
// "group<gid>" entry per configured group_ids[0:group_count] entry that is
// both a valid group index and currently ready.
func (p *Publisher) buildPayload() map[string]any {
	n := p.cfg.GroupCount
	if n > len(p.cfg.GroupIDs) {
		n = len(p.cfg.GroupIDs)
	}
	payload := make(map[string]any, n)
	for _, gid := range p.cfg.GroupIDs[:n] {
		if gid < 0 || gid >= len(p.groups) {
			continue
		}
		if !p.store.Ready(gid) {
			continue
		}
		values := p.decodeGroup(gid, p.groups[gid])
		if values == nil {
			continue
		}
		payload[fmt.Sprintf("group%d", gid)] = values
	}
	return payload
}

func (p *Publisher) parseMethod(gid int) config.ParseMethod {
	if gid < len(p.cfg.ParseMethods) {
		return p.cfg.ParseMethods[gid]
	}
	return config.ParseInt16Unsigned
}

func (p *Publisher) decodeGroup(gid int, g config.PollGroup) []any {
	switch g.FunctionCode {
	case modbus.FuncCodeReadCoils:
		bits, ready := p.store.ReadBits(gid, false)
		if !ready {
			return nil
		}
		return decodeBits(bits[:], int(g.RegCount))
	case modbus.FuncCodeReadDiscreteInputs:
		bits, ready := p.store.ReadBits(gid, true)
		if !ready {
			return nil
		}
		return decodeBits(bits[:], int(g.RegCount))
	case modbus.FuncCodeReadHoldingRegisters:
		regs, ready := p.store.ReadRegisters(gid, false)
		if !ready {
			return nil
		}
		return decodeWords(regs[:g.RegCount], p.parseMethod(gid))
	case modbus.FuncCodeReadInputRegisters:
		regs, ready := p.store.ReadRegisters(gid, true)
		if !ready {
			return nil
		}
		return decodeWords(regs[:g.RegCount], p.parseMethod(gid))
	default:
		return nil
	}
}

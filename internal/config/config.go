// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package config defines the gateway's configuration model: three serial
// buses, up to ten poll groups, the TCP slave register map, and the MQTT
// publisher, loaded from YAML via viper with in-code defaults, and
// watchable for hot reload.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/modbusedge/gateway/internal/errs"
)

// Limits mirrored from the embedded firmware this gateway's poll-group
// and register-map model is descended from.
const (
	MaxPollGroups = 10
	MaxRegs       = 100
	MaxBits       = 2048
	MaxMaps       = 10
	NumBuses      = 3
)

// Config is the top-level configuration tree.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Buses       [NumBuses]Bus     `mapstructure:"buses"`
	TCP         TCPSlaveConfig    `mapstructure:"tcp_slave"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // empty means stdout
}

// Bus is one serial bus's line parameters and poll groups.
type Bus struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits int    `mapstructure:"stop_bits"`

	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`

	PollIntervalMs int         `mapstructure:"poll_interval_ms"`
	Groups         []PollGroup `mapstructure:"groups"`
}

// PollGroup is one downstream register group the master polls on a
// cadence and publishes into the snapshot store.
type PollGroup struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlaveAddr    byte   `mapstructure:"slave_addr"`
	FunctionCode byte   `mapstructure:"function_code"` // 1..4
	StartAddr    uint16 `mapstructure:"start_addr"`
	RegCount     uint16 `mapstructure:"reg_count"`
}

// MapEntryType selects which snapshot array a TCP slave map entry mirrors
// from and which flat slave array it mirrors into.
type MapEntryType int

const (
	MapCoilToCoil MapEntryType = iota
	MapDiscToDisc
	MapHoldToHold
	MapInputToInput
)

// MapEntry projects a contiguous range of one poll group's data into the
// TCP slave's flat register space.
type MapEntry struct {
	Type            MapEntryType `mapstructure:"type"`
	GroupIndex      int          `mapstructure:"group_index"`
	MasterStartAddr uint16       `mapstructure:"master_start_addr"`
	SlaveStartAddr  uint16       `mapstructure:"slave_start_addr"`
	Count           uint16       `mapstructure:"count"`
}

// RegSizes bounds the TCP slave's four flat register arenas.
type RegSizes struct {
	Bits           uint16 `mapstructure:"bits"`
	InputBits      uint16 `mapstructure:"input_bits"`
	Registers      uint16 `mapstructure:"registers"`
	InputRegisters uint16 `mapstructure:"input_registers"`
}

// TCPSlaveConfig configures the Modbus-TCP slave engine.
type TCPSlaveConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	ListenAddr   string     `mapstructure:"listen_addr"`
	SlaveAddress byte       `mapstructure:"slave_address"`
	Maps         []MapEntry `mapstructure:"maps"`
	RegSizes     RegSizes   `mapstructure:"reg_sizes"`
}

// ParseMethod selects how a 16-bit-register pair is decoded for MQTT
// publication.
type ParseMethod int

const (
	ParseInt16Unsigned ParseMethod = iota
	ParseInt16Signed
	ParseInt32ABCD
	ParseInt32CDAB
	ParseInt32BADC
	ParseInt32DCBA
	ParseFloatABCD
	ParseFloatCDAB
	ParseFloatBADC
	ParseFloatDCBA
)

// MQTTConfig configures the JSON snapshot publisher.
type MQTTConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BrokerURL         string        `mapstructure:"broker_url"`
	ClientID          string        `mapstructure:"client_id"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	Topic             string        `mapstructure:"topic"`
	PublishIntervalMs int           `mapstructure:"publish_interval_ms"`
	GroupIDs          []int         `mapstructure:"group_ids"`     // published subset, length group_count
	GroupCount        int           `mapstructure:"group_count"`   // number of entries of GroupIDs actually in use
	ParseMethods      []ParseMethod `mapstructure:"parse_methods"` // one per poll group, across all buses in order, indexed by group id
}

// PersistenceConfig selects the kv_store backing for config and
// register-map blobs.
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "file" or "mmap"
	Dir  string `mapstructure:"dir"`
}

// Load reads configuration from configFile (or the default search path if
// empty), applies defaults, and validates/fixes up what it can.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbusedge/")
		v.AddConfigPath("$HOME/.modbusedge")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config: no config file found: %w", err)
		}
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	remaining := MaxPollGroups
	for i := range cfg.Buses {
		fixupBus(&cfg.Buses[i])
		cfg.Buses[i].Groups = validateGroups(i+1, cfg.Buses[i].Groups)
		if len(cfg.Buses[i].Groups) > remaining {
			slog.Error("config: poll groups exceed MAX_POLL_GROUPS across all buses, skipping", "uart_port", i+1, "dropped", len(cfg.Buses[i].Groups)-remaining, "error", errs.ErrConfigInvalid)
			cfg.Buses[i].Groups = cfg.Buses[i].Groups[:remaining]
		}
		remaining -= len(cfg.Buses[i].Groups)
	}
	cfg.TCP.Maps = validateMaps(cfg.TCP.Maps, cfg.TCP.RegSizes, flattenGroups(cfg.Buses))
	cfg.MQTT.GroupCount = fixupGroupCount(cfg.MQTT.GroupCount, len(cfg.MQTT.GroupIDs))

	return &cfg, nil
}

// fixupGroupCount bounds group_count to both the length of group_ids and
// MaxPollGroups, mirroring the fixed-capacity group_ids[MAX_POLL_GROUPS]
// array the spec's MQTT config is modeled on.
func fixupGroupCount(count, idsLen int) int {
	if count < 0 {
		return 0
	}
	if count > idsLen {
		count = idsLen
	}
	if count > MaxPollGroups {
		count = MaxPollGroups
	}
	return count
}

// flattenGroups concatenates every bus's groups in bus order, matching
// the global snapshot-row indexing internal/master.Poller assigns with
// its rowOffset scheme.
func flattenGroups(buses [NumBuses]Bus) []PollGroup {
	var all []PollGroup
	for _, b := range buses {
		all = append(all, b.Groups...)
	}
	return all
}

// validateGroups drops any enabled poll group that violates spec.md's §3
// invariants (function code restricted to the four read codes, reg_count
// bounded by MAX_BITS for bit functions and MAX_REGS for word functions),
// logging each drop as ErrConfigInvalid; the remaining groups are
// returned unchanged and other groups are unaffected by one bad entry.
// Disabled groups are kept as-is without these checks.
func validateGroups(uartPort int, groups []PollGroup) []PollGroup {
	out := make([]PollGroup, 0, len(groups))
	for i, g := range groups {
		if !g.Enabled {
			out = append(out, g)
			continue
		}
		switch g.FunctionCode {
		case 1, 2:
			if g.RegCount > MaxBits {
				slog.Error("config: poll group exceeds MAX_BITS, skipping", "uart_port", uartPort, "group", i, "reg_count", g.RegCount, "error", errs.ErrConfigInvalid)
				continue
			}
		case 3, 4:
			if g.RegCount > MaxRegs {
				slog.Error("config: poll group exceeds MAX_REGS, skipping", "uart_port", uartPort, "group", i, "reg_count", g.RegCount, "error", errs.ErrConfigInvalid)
				continue
			}
		default:
			slog.Error("config: poll group has unsupported function code, skipping", "uart_port", uartPort, "group", i, "function_code", g.FunctionCode, "error", errs.ErrConfigInvalid)
			continue
		}
		if g.SlaveAddr < 1 || g.SlaveAddr > 247 {
			slog.Error("config: poll group has out-of-range slave address, skipping", "uart_port", uartPort, "group", i, "slave_addr", g.SlaveAddr, "error", errs.ErrConfigInvalid)
			continue
		}
		out = append(out, g)
	}
	return out
}

// validateMaps drops any TCP slave map entry whose ranges do not satisfy
// spec.md §3's containment invariant: the slave-side range must fit
// within the matching arena and the master-side range must fit within
// its source group's reg_count. A fully-zero entry (an unused slot) is
// kept as-is since it is never dispatched (Count == 0).
func validateMaps(maps []MapEntry, sizes RegSizes, groups []PollGroup) []MapEntry {
	out := make([]MapEntry, 0, len(maps))
	for i, m := range maps {
		if m.Count == 0 {
			out = append(out, m)
			continue
		}
		if m.GroupIndex < 0 || m.GroupIndex >= len(groups) {
			slog.Error("config: map entry references unknown group, skipping", "map", i, "group_index", m.GroupIndex, "error", errs.ErrConfigInvalid)
			continue
		}
		var arenaSize uint16
		switch m.Type {
		case MapCoilToCoil:
			arenaSize = sizes.Bits
		case MapDiscToDisc:
			arenaSize = sizes.InputBits
		case MapHoldToHold:
			arenaSize = sizes.Registers
		case MapInputToInput:
			arenaSize = sizes.InputRegisters
		}
		if uint32(m.SlaveStartAddr)+uint32(m.Count) > uint32(arenaSize) {
			slog.Error("config: map entry exceeds slave arena size, skipping", "map", i, "error", errs.ErrConfigInvalid)
			continue
		}
		if uint32(m.MasterStartAddr)+uint32(m.Count) > uint32(groups[m.GroupIndex].RegCount) {
			slog.Error("config: map entry exceeds source group's reg_count, skipping", "map", i, "group_index", m.GroupIndex, "error", errs.ErrConfigInvalid)
			continue
		}
		out = append(out, m)
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("persistence.type", "file")
	v.SetDefault("persistence.dir", "/var/lib/modbusedge")
	v.SetDefault("tcp_slave.listen_addr", ":502")
	v.SetDefault("tcp_slave.slave_address", 123)
	v.SetDefault("tcp_slave.reg_sizes.bits", 50)
	v.SetDefault("tcp_slave.reg_sizes.input_bits", 50)
	v.SetDefault("tcp_slave.reg_sizes.registers", 50)
	v.SetDefault("tcp_slave.reg_sizes.input_registers", 50)
	v.SetDefault("mqtt.topic", "modbus/data")
	v.SetDefault("mqtt.publish_interval_ms", 1000)
	v.SetDefault("mqtt.group_ids", []int{0})
	v.SetDefault("mqtt.group_count", 1)
}

func fixupBus(b *Bus) {
	b.Parity = strings.ToUpper(b.Parity)
	if b.Parity == "" {
		b.Parity = "N"
	}
	if b.DataBits == 0 {
		b.DataBits = 8
	}
	if b.StopBits == 0 {
		b.StopBits = 1
	}
	if b.PollIntervalMs <= 0 {
		b.PollIntervalMs = 1000
	}
	if len(b.Groups) > MaxPollGroups {
		b.Groups = b.Groups[:MaxPollGroups]
	}
}

// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/kvstore"
)

// newKVStore opens the configured persistence backing. Small namespaces
// (line parameter overrides) fit a plain file; the mmap backing exists
// for deployments that also persist larger register-map blobs here.
func newKVStore(cfg config.PersistenceConfig) (kvstore.Store, error) {
	switch cfg.Type {
	case "mmap":
		return kvstore.NewMmapStore(cfg.Dir)
	default:
		return kvstore.NewFileStore(cfg.Dir)
	}
}

func busBaudKey(uartPort int) string {
	return fmt.Sprintf("bus%d_baud_rate", uartPort)
}

// applyPersistedBusParams overrides each bus's configured baud rate with
// one persisted through a prior run (if any), then re-persists the value
// actually in effect so the store always reflects the running line
// parameters. A field technician changing a bus's speed through the kv
// store directly takes effect on the next restart without editing the
// YAML file.
func applyPersistedBusParams(store kvstore.Store, cfg *config.Config) {
	for i := range cfg.Buses {
		key := busBaudKey(i + 1)
		data, ok, err := store.LoadBlob(kvstore.NamespaceUARTParams, key)
		if err != nil {
			slog.Warn("persistence: failed to load bus baud-rate override", "uart_port", i+1, "error", err)
		} else if ok && len(data) == 4 {
			baud := int(binary.BigEndian.Uint32(data))
			if baud != cfg.Buses[i].BaudRate {
				slog.Info("persistence: applying persisted baud-rate override", "uart_port", i+1, "baud_rate", baud)
				cfg.Buses[i].BaudRate = baud
			}
		}

		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(cfg.Buses[i].BaudRate))
		if err := store.SaveBlob(kvstore.NamespaceUARTParams, key, buf); err != nil {
			slog.Warn("persistence: failed to persist bus baud-rate", "uart_port", i+1, "error", err)
		}
	}
}

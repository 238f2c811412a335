// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"encoding/binary"
	"testing"

	"github.com/modbusedge/gateway/internal/config"
	"github.com/modbusedge/gateway/internal/kvstore"
)

type memStore struct {
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) LoadBlob(namespace, key string) ([]byte, bool, error) {
	data, ok := m.blobs[namespace+"/"+key]
	return data, ok, nil
}

func (m *memStore) SaveBlob(namespace, key string, data []byte) error {
	m.blobs[namespace+"/"+key] = append([]byte(nil), data...)
	return nil
}

var _ kvstore.Store = (*memStore)(nil)

func TestApplyPersistedBusParamsUsesOverrideWhenPresent(t *testing.T) {
	store := newMemStore()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, 57600)
	store.blobs[kvstore.NamespaceUARTParams+"/"+busBaudKey(1)] = buf

	var cfg config.Config
	cfg.Buses[0].BaudRate = 9600

	applyPersistedBusParams(store, &cfg)

	if cfg.Buses[0].BaudRate != 57600 {
		t.Fatalf("expected persisted override 57600, got %d", cfg.Buses[0].BaudRate)
	}
}

func TestApplyPersistedBusParamsPersistsCurrentValueOnFirstRun(t *testing.T) {
	store := newMemStore()

	var cfg config.Config
	cfg.Buses[1].BaudRate = 19200

	applyPersistedBusParams(store, &cfg)

	data, ok, err := store.LoadBlob(kvstore.NamespaceUARTParams, busBaudKey(2))
	if err != nil || !ok {
		t.Fatalf("expected persisted baud rate after first run, ok=%v err=%v", ok, err)
	}
	if got := binary.BigEndian.Uint32(data); got != 19200 {
		t.Fatalf("expected persisted value 19200, got %d", got)
	}
	if cfg.Buses[1].BaudRate != 19200 {
		t.Fatalf("config baud rate should be unchanged when no override was stored, got %d", cfg.Buses[1].BaudRate)
	}
}

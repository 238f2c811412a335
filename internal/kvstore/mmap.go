// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// MmapStore persists each (namespace, key) blob as its own
// memory-mapped file, for namespaces (the register-map and poll-group
// blobs) large enough that OS-managed paging beats a plain read/write
// round trip on every save.
type MmapStore struct {
	dir string
}

// NewMmapStore builds an MmapStore rooted at dir, creating it if absent.
func NewMmapStore(dir string) (*MmapStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create %s: %w", dir, err)
	}
	return &MmapStore{dir: dir}, nil
}

func (s *MmapStore) path(namespace, key string) string {
	return filepath.Join(s.dir, namespace, key)
}

// LoadBlob memory-maps (namespace, key) read-only and copies its
// contents out. A missing or empty file is reported as ok=false.
func (s *MmapStore) LoadBlob(namespace, key string) ([]byte, bool, error) {
	path := s.path(namespace, key)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: open %s/%s: %w", namespace, key, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: stat %s/%s: %w", namespace, key, err)
	}
	if fi.Size() == 0 {
		return nil, false, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: mmap %s/%s: %w", namespace, key, err)
	}
	defer m.Unmap()

	out := make([]byte, len(m))
	copy(out, m)
	return out, true, nil
}

// SaveBlob truncates (namespace, key)'s backing file to len(data), maps
// it read-write, copies data in, and flushes the mapping before
// returning.
func (s *MmapStore) SaveBlob(namespace, key string, data []byte) error {
	dir := filepath.Join(s.dir, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvstore: create namespace dir %s: %w", dir, err)
	}

	path := s.path(namespace, key)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("kvstore: open %s/%s: %w", namespace, key, err)
	}
	defer f.Close()

	if len(data) == 0 {
		return f.Truncate(0)
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("kvstore: truncate %s/%s: %w", namespace, key, err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("kvstore: mmap %s/%s: %w", namespace, key, err)
	}
	defer m.Unmap()

	copy(m, data)
	return m.Flush()
}

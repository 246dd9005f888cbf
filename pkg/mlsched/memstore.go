// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package mlsched

import (
	"errors"
	"fmt"
	"sort"
)

// ErrModuleNotFound is returned by MemStore.Locate for an unknown module id.
var ErrModuleNotFound = errors.New("module id not in directory")

// MemStore is an in-memory ModuleStore: a flat flash image plus a directory
// of module id -> range. The simulator and tests build their module
// directories with it.
type MemStore struct {
	flash   []byte
	entries map[uint32]memRange
}

// NewMemStore creates a store with an empty flash image.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[uint32]memRange)}
}

// AddModule appends a module image to the flash and indexes it under id.
// Returns the flash address the image landed at.
func (m *MemStore) AddModule(id uint32, image []byte) (uint32, error) {
	if _, dup := m.entries[id]; dup {
		return 0, fmt.Errorf("module %d already in directory", id)
	}
	addr := uint32(len(m.flash))
	m.flash = append(m.flash, image...)
	m.entries[id] = memRange{Start: addr, Size: uint32(len(image))}
	return addr, nil
}

// Locate implements ModuleStore.
func (m *MemStore) Locate(id uint32) (uint32, uint32, error) {
	e, ok := m.entries[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrModuleNotFound, id)
	}
	return e.Start, e.Size, nil
}

// ReadAt implements ModuleStore.
func (m *MemStore) ReadAt(p []byte, addr uint32) (int, error) {
	if int(addr) > len(m.flash) || int(addr)+len(p) > len(m.flash) {
		return 0, fmt.Errorf("flash read [0x%X+0x%X] outside image", addr, len(p))
	}
	return copy(p, m.flash[addr:]), nil
}

// ModuleIDs lists the directory in ascending id order.
func (m *MemStore) ModuleIDs() []uint32 {
	ids := make([]uint32, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

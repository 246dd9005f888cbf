// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package device

import (
	"errors"
	"testing"
)

func TestMemorySliceBounds(t *testing.T) {
	m := NewMemory(0x8000_0000, 0x100, 0x10)

	tests := []struct {
		name string
		addr uint32
		size uint32
		ok   bool
	}{
		{"full range", 0x8000_0000, 0x100, true},
		{"interior", 0x8000_0010, 0x20, true},
		{"last byte", 0x8000_00FF, 1, true},
		{"below base", 0x7FFF_FFFF, 4, false},
		{"past end", 0x8000_00F0, 0x20, false},
		{"size over total", 0x8000_0000, 0x101, false},
		{"wraparound", 0xFFFF_FFF0, 0x20, false},
		{"zero size", 0x8000_0000, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Slice(tt.addr, tt.size)
			if tt.ok && err != nil {
				t.Fatalf("Slice(0x%X, 0x%X) = %v", tt.addr, tt.size, err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("Slice(0x%X, 0x%X) accepted", tt.addr, tt.size)
				}
				if !errors.Is(err, ErrBadRange) {
					t.Errorf("error = %v, want ErrBadRange", err)
				}
				return
			}
			if uint32(len(got)) != tt.size {
				t.Errorf("len = %d, want %d", len(got), tt.size)
			}
		})
	}
}

func TestMemorySliceIsWritable(t *testing.T) {
	m := NewMemory(0x8000_0000, 0x100, 0x10)
	s, err := m.Slice(0x8000_0040, 4)
	if err != nil {
		t.Fatal(err)
	}
	copy(s, []byte{1, 2, 3, 4})

	again, err := m.Slice(0x8000_0040, 4)
	if err != nil {
		t.Fatal(err)
	}
	if again[0] != 1 || again[3] != 4 {
		t.Error("write through slice not visible on a later slice")
	}
}

func TestMemoryRegisters(t *testing.T) {
	m := NewMemory(0x8000_0000, 0x100, 0x10)

	if err := m.WriteReg(0x4, 0xCAFE_F00D); err != nil {
		t.Fatal(err)
	}
	v, err := m.ReadReg(0x4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xCAFE_F00D {
		t.Errorf("read back 0x%08X", v)
	}

	for _, offset := range []uint32{0x2, 0x10, 0xFFFF_FFFC} {
		if err := m.WriteReg(offset, 0); !errors.Is(err, ErrBadRegOffset) {
			t.Errorf("WriteReg(0x%X) err = %v, want ErrBadRegOffset", offset, err)
		}
		if _, err := m.ReadReg(offset); !errors.Is(err, ErrBadRegOffset) {
			t.Errorf("ReadReg(0x%X) err = %v, want ErrBadRegOffset", offset, err)
		}
	}

	// Last valid register sits 4 bytes before the end of the file.
	if err := m.WriteReg(0xC, 1); err != nil {
		t.Errorf("last register rejected: %v", err)
	}
}

func TestMemoryTinyRegisterFile(t *testing.T) {
	m := NewMemory(0x8000_0000, 0x100, 0)
	if _, err := m.ReadReg(0); !errors.Is(err, ErrBadRegOffset) {
		t.Errorf("empty register file read err = %v", err)
	}
	if err := m.WriteReg(0, 1); !errors.Is(err, ErrBadRegOffset) {
		t.Errorf("empty register file write err = %v", err)
	}
}

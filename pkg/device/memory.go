// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package device assembles a whole Kestrel device: the memory map, the
// hardware engine boundaries and their simulator, the application hook set,
// and the single-threaded control loop tying the protocol engines, pipeline
// controller and network scheduler together.
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Register and RAM access errors
var (
	ErrBadRange     = errors.New("address range outside device RAM")
	ErrBadRegOffset = errors.New("register offset invalid")
)

// Memory is the device's 32-bit address space: a small 32-bit register file
// addressed by byte offset, and the RAM image holding the network code pool,
// the network IO pool and the image buffers, addressed absolutely.
type Memory struct {
	base uint32
	ram  []byte
	regs []byte
}

// NewMemory allocates the RAM image and register file once, at boot.
func NewMemory(base, ramSize, regFileSize uint32) *Memory {
	return &Memory{
		base: base,
		ram:  make([]byte, ramSize),
		regs: make([]byte, regFileSize),
	}
}

// Base returns the RAM base address.
func (m *Memory) Base() uint32 { return m.base }

// Size returns the RAM size in bytes.
func (m *Memory) Size() uint32 { return uint32(len(m.ram)) }

// Slice returns the writable RAM window [addr, addr+size). The arithmetic
// guards 32-bit wraparound, since addresses come straight off the wire.
func (m *Memory) Slice(addr, size uint32) ([]byte, error) {
	total := uint32(len(m.ram))
	if addr < m.base || size > total || addr-m.base > total-size {
		return nil, fmt.Errorf("%w: [0x%08X+0x%X]", ErrBadRange, addr, size)
	}
	off := addr - m.base
	return m.ram[off : off+size : off+size], nil
}

// ReadReg reads the 32-bit register at a 4-byte-aligned byte offset.
func (m *Memory) ReadReg(offset uint32) (uint32, error) {
	if offset%4 != 0 || uint32(len(m.regs)) < 4 || offset > uint32(len(m.regs))-4 {
		return 0, fmt.Errorf("%w: 0x%X", ErrBadRegOffset, offset)
	}
	return binary.LittleEndian.Uint32(m.regs[offset:]), nil
}

// WriteReg writes the 32-bit register at a 4-byte-aligned byte offset.
func (m *Memory) WriteReg(offset, value uint32) error {
	if offset%4 != 0 || uint32(len(m.regs)) < 4 || offset > uint32(len(m.regs))-4 {
		return fmt.Errorf("%w: 0x%X", ErrBadRegOffset, offset)
	}
	binary.LittleEndian.PutUint32(m.regs[offset:], value)
	return nil
}

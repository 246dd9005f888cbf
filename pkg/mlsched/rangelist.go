// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package mlsched fits ML network binaries and their IO buffers into two
// small fixed memory pools and swaps networks at run time.
//
// Pool bookkeeping is a fixed-capacity ordered list of free ranges per pool,
// sized for the worst-case fragmentation of the supported network count. The
// pools are carved up once at registration; after boot the only mutation is
// the resident/evicted flip in Start. Nothing here allocates after New.
package mlsched

import "fmt"

const (
	// MaxNetworks bounds how many networks one device registers.
	MaxNetworks = 5

	// maxFreeSlots is the worst case free-range count: every allocation
	// splitting an interior hole makes at most one extra range.
	maxFreeSlots = 2 * MaxNetworks

	// AlignmentBytes is the inference engine's load alignment. Every
	// requested size is rounded up to it before any fit search.
	AlignmentBytes = 8
)

// AlignUp rounds size up to the engine alignment.
func AlignUp(size uint32) uint32 {
	return (size + AlignmentBytes - 1) &^ (AlignmentBytes - 1)
}

// memRange is a free [Start, Start+Size) window.
type memRange struct {
	Start uint32
	Size  uint32
}

func (r memRange) end() uint32 { return r.Start + r.Size }

// RangeList is the ordered free list of one pool.
type RangeList struct {
	slots [maxFreeSlots]memRange
	count int
}

// NewRangeList creates a free list covering one whole pool.
func NewRangeList(start, size uint32) RangeList {
	var l RangeList
	l.slots[0] = memRange{Start: start, Size: size}
	l.count = 1
	return l
}

func (l *RangeList) insertAt(idx int, r memRange) {
	if l.count == maxFreeSlots {
		panic("mlsched: free-range slots exhausted")
	}
	if idx < 0 || idx > l.count {
		panic(fmt.Sprintf("mlsched: free-slot insert index %d out of range", idx))
	}
	copy(l.slots[idx+1:l.count+1], l.slots[idx:l.count])
	l.slots[idx] = r
	l.count++
}

func (l *RangeList) deleteAt(idx int) {
	if idx < 0 || idx >= l.count {
		panic(fmt.Sprintf("mlsched: free-slot delete index %d out of range", idx))
	}
	copy(l.slots[idx:l.count-1], l.slots[idx+1:l.count])
	l.count--
}

// Reserve carves the exact window [start, start+size) out of the free list.
// The size is aligned up first. Returns false when no free range contains
// the window.
func (l *RangeList) Reserve(start, size uint32) bool {
	size = AlignUp(size)
	end := start + size

	for i := 0; i < l.count; i++ {
		slot := l.slots[i]
		if start < slot.Start || end > slot.end() {
			continue
		}
		switch {
		case start == slot.Start && end == slot.end():
			l.deleteAt(i)
		case start == slot.Start:
			l.slots[i].Start = end
			l.slots[i].Size = slot.end() - end
		case end == slot.end():
			l.slots[i].Size = start - slot.Start
		default:
			// Interior window splits the range in two.
			l.slots[i].Size = start - slot.Start
			l.insertAt(i+1, memRange{Start: end, Size: slot.end() - end})
		}
		return true
	}
	return false
}

// Take allocates the first free range that fits size bytes (aligned up),
// consuming the range exactly or trimming its front. Returns the start
// address, or false when nothing fits.
func (l *RangeList) Take(size uint32) (uint32, bool) {
	size = AlignUp(size)

	for i := 0; i < l.count; i++ {
		slot := l.slots[i]
		if slot.Size < size {
			continue
		}
		if slot.Size == size {
			l.deleteAt(i)
		} else {
			l.slots[i].Start += size
			l.slots[i].Size -= size
		}
		return slot.Start, true
	}
	return 0, false
}

// FreeBytes sums the free ranges.
func (l *RangeList) FreeBytes() uint32 {
	var total uint32
	for i := 0; i < l.count; i++ {
		total += l.slots[i].Size
	}
	return total
}

// Ranges returns a copy of the free ranges in address order.
func (l *RangeList) Ranges() []memRange {
	out := make([]memRange, l.count)
	copy(out, l.slots[:l.count])
	return out
}

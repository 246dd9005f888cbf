// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package mlsched

import "testing"

func TestAlignUp(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{0xFFFFFFF0, 0xFFFFFFF0},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.in); got != tt.want {
			t.Errorf("AlignUp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestReserveExactRangeDeletesSlot(t *testing.T) {
	l := NewRangeList(0x1000, 0x100)
	if !l.Reserve(0x1000, 0x100) {
		t.Fatal("reserve of the whole pool failed")
	}
	if l.FreeBytes() != 0 {
		t.Errorf("free bytes = %d, want 0", l.FreeBytes())
	}
	if len(l.Ranges()) != 0 {
		t.Errorf("ranges left: %v", l.Ranges())
	}
}

func TestReserveTrimsFront(t *testing.T) {
	l := NewRangeList(0x1000, 0x100)
	if !l.Reserve(0x1000, 0x40) {
		t.Fatal("front reserve failed")
	}
	ranges := l.Ranges()
	if len(ranges) != 1 || ranges[0].Start != 0x1040 || ranges[0].Size != 0xC0 {
		t.Errorf("ranges = %+v, want one range [0x1040+0xC0]", ranges)
	}
}

func TestReserveTrimsBack(t *testing.T) {
	l := NewRangeList(0x1000, 0x100)
	if !l.Reserve(0x10C0, 0x40) {
		t.Fatal("back reserve failed")
	}
	ranges := l.Ranges()
	if len(ranges) != 1 || ranges[0].Start != 0x1000 || ranges[0].Size != 0xC0 {
		t.Errorf("ranges = %+v, want one range [0x1000+0xC0]", ranges)
	}
}

func TestReserveInteriorSplits(t *testing.T) {
	l := NewRangeList(0x1000, 0x100)
	if !l.Reserve(0x1040, 0x40) {
		t.Fatal("interior reserve failed")
	}
	ranges := l.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("ranges = %+v, want a split into two", ranges)
	}
	if ranges[0].Start != 0x1000 || ranges[0].Size != 0x40 {
		t.Errorf("leading range = %+v", ranges[0])
	}
	if ranges[1].Start != 0x1080 || ranges[1].Size != 0x80 {
		t.Errorf("trailing range = %+v", ranges[1])
	}
}

func TestReserveRejectsUncontainedWindow(t *testing.T) {
	l := NewRangeList(0x1000, 0x100)
	if !l.Reserve(0x1040, 0x40) {
		t.Fatal("setup reserve failed")
	}

	tests := []struct {
		name        string
		start, size uint32
	}{
		{"below pool", 0x0F00, 0x10},
		{"above pool", 0x1100, 0x10},
		{"straddles reservation", 0x1030, 0x20},
		{"inside reservation", 0x1048, 0x10},
		{"runs past pool end", 0x10F8, 0x10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if l.Reserve(tt.start, tt.size) {
				t.Errorf("Reserve(0x%X, 0x%X) accepted an uncontained window", tt.start, tt.size)
			}
		})
	}
}

func TestReserveAlignsSize(t *testing.T) {
	l := NewRangeList(0, 0x100)
	if !l.Reserve(0, 1) {
		t.Fatal("reserve failed")
	}
	// One byte reserves a full alignment quantum.
	ranges := l.Ranges()
	if ranges[0].Start != AlignmentBytes {
		t.Errorf("next free start = 0x%X, want 0x%X", ranges[0].Start, AlignmentBytes)
	}
}

func TestTakeFirstFit(t *testing.T) {
	l := NewRangeList(0x2000, 0x100)

	// Carve the pool into two holes: [0x2000+0x20] and [0x2080+0x80].
	if !l.Reserve(0x2020, 0x60) {
		t.Fatal("setup reserve failed")
	}

	// A request too big for the first hole lands in the second.
	addr, ok := l.Take(0x40)
	if !ok || addr != 0x2080 {
		t.Fatalf("Take(0x40) = (0x%X, %v), want first fit at 0x2080", addr, ok)
	}

	// A small request takes the first hole exactly and consumes the slot.
	addr, ok = l.Take(0x20)
	if !ok || addr != 0x2000 {
		t.Fatalf("Take(0x20) = (0x%X, %v), want 0x2000", addr, ok)
	}

	ranges := l.Ranges()
	if len(ranges) != 1 || ranges[0].Start != 0x20C0 {
		t.Errorf("ranges = %+v, want only the trimmed second hole", ranges)
	}
}

func TestTakeFailsWhenNothingFits(t *testing.T) {
	l := NewRangeList(0, 0x40)
	if _, ok := l.Take(0x48); ok {
		t.Error("Take larger than the pool succeeded")
	}
	if _, ok := l.Take(0x40); !ok {
		t.Error("exact-size Take failed")
	}
	if _, ok := l.Take(8); ok {
		t.Error("Take from an empty list succeeded")
	}
}

func TestSlotExhaustionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic when free-range slots run out")
		}
	}()

	l := NewRangeList(0, 0x10000)
	// Each interior reservation splits one range into two. After
	// maxFreeSlots-1 splits the next one must panic.
	for i := 0; i < maxFreeSlots; i++ {
		start := uint32(0x100 + i*0x200)
		l.Reserve(start, 0x10)
	}
}

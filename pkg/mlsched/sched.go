// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package mlsched

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// UsingInternalBuffers marks a network whose IO lives in engine-internal
// memory; no IO-pool window is reserved for it.
const UsingInternalBuffers = ^uint32(0)

// StatusIdle is the engine status word reported while no inference runs.
const StatusIdle = 0xDEADBEEF

const invalid = -1

// NetworkDesc describes one network to register: its id in the flash module
// directory and the IO window it was linked against, relative to the IO pool
// base. InOutOffset of UsingInternalBuffers means no external IO window.
type NetworkDesc struct {
	ID          uint32
	InOutOffset uint32
	InOutSize   uint32
}

// ModuleStore locates and reads network binaries in the flash-resident
// module directory. It is the boundary to the flash filesystem.
type ModuleStore interface {
	// Locate returns the flash address and byte size of a module.
	Locate(id uint32) (addr, size uint32, err error)
	// ReadAt copies len(p) bytes of flash starting at addr into p.
	ReadAt(p []byte, addr uint32) (int, error)
}

// Engine is the inference hardware boundary the scheduler drives.
type Engine interface {
	// SetCodeBase points the engine at a resident network image.
	SetCodeBase(addr uint32)
	// Trigger starts one inference run.
	Trigger()
	// Status returns the status word for one engine id.
	Status(engineID uint32) uint32
}

// RAM exposes the device memory the scheduler copies network images into.
type RAM interface {
	Slice(addr, size uint32) ([]byte, error)
}

// Config is the pool geometry, fixed at boot.
type Config struct {
	CodeBase uint32
	CodeSize uint32
	IOBase   uint32
	IOSize   uint32
}

type network struct {
	desc      NetworkDesc
	flashAddr uint32
	flashSize uint32
	resident  bool
	ramAddr   uint32
	ramSize   uint32 // aligned code footprint
}

// Scheduler owns the two pools and the registered network set. All methods
// run on the control-loop thread; registration failures are boot-time
// configuration defects and panic.
type Scheduler struct {
	cfg    Config
	store  ModuleStore
	engine Engine
	ram    RAM
	log    zerolog.Logger

	codeFree RangeList
	ioFree   RangeList

	nets                []network
	current, last, next int

	workDone  bool
	swaps     atomic.Uint64
	stageDone func()
}

// New creates an empty scheduler over the given pools.
func New(cfg Config, store ModuleStore, engine Engine, ram RAM, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		ram:      ram,
		log:      log,
		codeFree: NewRangeList(cfg.CodeBase, cfg.CodeSize),
		ioFree:   NewRangeList(cfg.IOBase, cfg.IOSize),
		current:  invalid,
		last:     invalid,
		next:     invalid,
	}
}

// SetStageNotify installs the completion hook EngineDone calls, normally the
// pipeline controller's inference-done notification.
func (s *Scheduler) SetStageNotify(fn func()) { s.stageDone = fn }

// Register runs once at boot. Every descriptor's IO window is reserved,
// code space is allocated, and the binary is copied from flash so all
// networks start resident. Any descriptor that cannot be placed is a
// configuration defect and panics.
func (s *Scheduler) Register(descs []NetworkDesc) {
	if len(s.nets) != 0 {
		panic("mlsched: networks already registered")
	}
	if len(descs) == 0 || len(descs) > MaxNetworks {
		panic(fmt.Sprintf("mlsched: %d networks outside supported range 1..%d", len(descs), MaxNetworks))
	}

	// First pass: locate binaries and pin every IO window, so overlapping
	// windows fail loudly before any code is placed.
	for _, desc := range descs {
		flashAddr, flashSize, err := s.store.Locate(desc.ID)
		if err != nil {
			panic(fmt.Sprintf("mlsched: network %d not in module directory: %v", desc.ID, err))
		}

		if desc.InOutOffset != UsingInternalBuffers {
			start := s.cfg.IOBase + desc.InOutOffset
			if desc.InOutOffset+desc.InOutSize > s.cfg.IOSize {
				panic(fmt.Sprintf("mlsched: network %d IO window [0x%X+0x%X] outside IO pool", desc.ID, desc.InOutOffset, desc.InOutSize))
			}
			if !s.ioFree.Reserve(start, desc.InOutSize) {
				panic(fmt.Sprintf("mlsched: network %d IO window collides with a prior reservation", desc.ID))
			}
		}

		s.nets = append(s.nets, network{desc: desc, flashAddr: flashAddr, flashSize: flashSize})
	}

	// Second pass: place and load every code image.
	for i := range s.nets {
		n := &s.nets[i]
		addr, ok := s.codeFree.Take(n.flashSize)
		if !ok {
			panic(fmt.Sprintf("mlsched: network %d code (%d bytes) does not fit the code pool", n.desc.ID, n.flashSize))
		}
		if addr < s.cfg.CodeBase || addr+n.flashSize > s.cfg.CodeBase+s.cfg.CodeSize {
			panic(fmt.Sprintf("mlsched: network %d code range escapes the pool", n.desc.ID))
		}
		n.ramAddr = addr
		n.ramSize = AlignUp(n.flashSize)
		s.load(n)

		s.log.Info().
			Uint32("network", n.desc.ID).
			Uint32("ram_addr", n.ramAddr).
			Uint32("size", n.flashSize).
			Msg("network registered resident")
	}

	s.next = 0
	s.current = invalid
	s.last = invalid
}

// load copies a network image from flash into its RAM range.
func (s *Scheduler) load(n *network) {
	dst, err := s.ram.Slice(n.ramAddr, n.flashSize)
	if err != nil {
		panic(fmt.Sprintf("mlsched: network %d RAM range invalid: %v", n.desc.ID, err))
	}
	read, err := s.store.ReadAt(dst, n.flashAddr)
	if err != nil || read != len(dst) {
		panic(fmt.Sprintf("mlsched: network %d short flash read (%d of %d): %v", n.desc.ID, read, len(dst), err))
	}
	n.resident = true
}

func (s *Scheduler) find(id uint32) int {
	for i := range s.nets {
		if s.nets[i].desc.ID == id {
			return i
		}
	}
	return invalid
}

// Schedule records the network the next Start runs. It performs no loading
// or eviction; all pool work is deferred to Start. An unknown id is a
// caller defect.
func (s *Scheduler) Schedule(id uint32) {
	idx := s.find(id)
	if idx == invalid {
		panic(fmt.Sprintf("mlsched: schedule of unregistered network %d", id))
	}
	s.next = idx
}

func rangesOverlap(a, b *network) bool {
	return a.ramAddr < b.ramAddr+b.ramSize && b.ramAddr < a.ramAddr+a.ramSize
}

// Start runs the scheduled network. When it differs from the last executed
// one and their RAM ranges overlap, the previous image is marked evicted; a
// non-resident image is re-copied from flash before the engine is pointed
// at it and triggered.
func (s *Scheduler) Start() {
	if s.next == invalid {
		panic("mlsched: start with no network scheduled")
	}
	n := &s.nets[s.next]

	if s.last != invalid && s.last != s.next {
		prev := &s.nets[s.last]
		if rangesOverlap(prev, n) {
			prev.resident = false
			s.log.Debug().
				Uint32("evicted", prev.desc.ID).
				Uint32("for", n.desc.ID).
				Msg("overlapping network evicted")
		}
	}

	if !n.resident {
		s.load(n)
		s.swaps.Add(1)
		s.log.Debug().Uint32("network", n.desc.ID).Msg("network reloaded from flash")
	}

	s.engine.SetCodeBase(n.ramAddr)
	s.current = s.next
	s.last = s.next
	s.engine.Trigger()
}

// EngineDone is the inference-done completion path: it clears the running
// network, latches the work-done flag for the loop, and notifies the
// pipeline controller.
func (s *Scheduler) EngineDone() {
	s.current = invalid
	s.workDone = true
	if s.stageDone != nil {
		s.stageDone()
	}
}

// TakeWorkDone consumes the work-done flag.
func (s *Scheduler) TakeWorkDone() bool {
	done := s.workDone
	s.workDone = false
	return done
}

// Status reports the engine status word for the host status query.
func (s *Scheduler) Status(engineID uint32) uint32 {
	return s.engine.Status(engineID)
}

// Running returns the id of the network currently on the engine.
func (s *Scheduler) Running() (uint32, bool) {
	if s.current == invalid {
		return 0, false
	}
	return s.nets[s.current].desc.ID, true
}

// Resident reports whether a network's code image is currently in RAM.
func (s *Scheduler) Resident(id uint32) bool {
	idx := s.find(id)
	if idx == invalid {
		return false
	}
	return s.nets[idx].resident
}

// RAMAddr returns the code pool address a network was placed at.
func (s *Scheduler) RAMAddr(id uint32) (uint32, bool) {
	idx := s.find(id)
	if idx == invalid {
		return 0, false
	}
	return s.nets[idx].ramAddr, true
}

// Swaps counts flash reloads since boot. It is the one counter read off the
// loop thread, by the status surface, hence the atomic.
func (s *Scheduler) Swaps() uint64 { return s.swaps.Load() }

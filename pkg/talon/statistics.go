// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package talon

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks command traffic and error rates for one link. All
// methods are safe for concurrent use; the device control loop updates the
// counters while a status endpoint reads snapshots.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Commands        uint64
	PerCommand      map[byte]uint64
	FramingErrors   uint64
	ChecksumErrors  uint64
	UnknownCommands uint64
	Resyncs         uint64
	BytesIn         uint64
	BytesOut        uint64

	// Rates (calculated)
	CommandRate float64 // commands/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		PerCommand:     make(map[byte]uint64),
	}
}

// RecordCommand counts one accepted command id
func (s *Statistics) RecordCommand(id byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commands++
	s.PerCommand[id]++
	s.LastUpdateTime = time.Now()
}

// RecordUnknownCommand counts an id outside the catalogue
func (s *Statistics) RecordUnknownCommand() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnknownCommands++
	s.LastUpdateTime = time.Now()
}

// RecordFramingError counts an end-marker mismatch
func (s *Statistics) RecordFramingError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramingErrors++
	s.LastUpdateTime = time.Now()
}

// RecordChecksumError counts a payload checksum mismatch
func (s *Statistics) RecordChecksumError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChecksumErrors++
	s.LastUpdateTime = time.Now()
}

// RecordResync counts a host-side start-marker scan
func (s *Statistics) RecordResync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resyncs++
}

// RecordBytes adds received and sent byte counts
func (s *Statistics) RecordBytes(in, out uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesIn += in
	s.BytesOut += out
}

// Snapshot returns a copy of the counters with rates calculated.
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Statistics{
		StartTime:       s.StartTime,
		LastUpdateTime:  s.LastUpdateTime,
		Commands:        s.Commands,
		PerCommand:      make(map[byte]uint64, len(s.PerCommand)),
		FramingErrors:   s.FramingErrors,
		ChecksumErrors:  s.ChecksumErrors,
		UnknownCommands: s.UnknownCommands,
		Resyncs:         s.Resyncs,
		BytesIn:         s.BytesIn,
		BytesOut:        s.BytesOut,
	}
	for k, v := range s.PerCommand {
		out.PerCommand[k] = v
	}

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		out.CommandRate = float64(out.Commands) / elapsed
		errorCount := out.FramingErrors + out.ChecksumErrors + out.UnknownCommands
		out.ErrorRate = float64(errorCount) / elapsed
	}
	return out
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()
	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Link statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands:        %8d\n", snap.Commands)
	result += fmt.Sprintf("Bytes in/out:    %8d / %d\n", snap.BytesIn, snap.BytesOut)

	if snap.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", snap.FramingErrors)
	}
	if snap.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", snap.ChecksumErrors)
	}
	if snap.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d\n", snap.UnknownCommands)
	}
	if snap.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d\n", snap.Resyncs)
	}

	result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", snap.CommandRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.Commands = 0
	s.PerCommand = make(map[byte]uint64)
	s.FramingErrors = 0
	s.ChecksumErrors = 0
	s.UnknownCommands = 0
	s.Resyncs = 0
	s.BytesIn = 0
	s.BytesOut = 0
	s.CommandRate = 0
	s.ErrorRate = 0
}

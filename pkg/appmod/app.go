// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package appmod is the reference detection application: it rotates the
// registered networks across frames, reads each network's result window,
// and streams detection events to the host as CBOR.
package appmod

import (
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/kestrel-vision/kestrel/pkg/device"
	"github.com/kestrel-vision/kestrel/pkg/mlsched"
)

// detRecordSize is one packed detection in a network's result window:
// class, score (1/256 fixed point), x, y, w, h as uint16 each.
const detRecordSize = 12

// maxDetections caps how many records a result window is trusted to hold.
const maxDetections = 32

// Detection is one decoded result record.
type Detection struct {
	Class uint16
	Score uint16
	X     uint16
	Y     uint16
	W     uint16
	H     uint16
}

// App is the detection application. It owns no goroutine: everything runs
// inside the control loop through the hook set.
type App struct {
	core *device.Core
	log  zerolog.Logger

	networks []mlsched.NetworkDesc
	ioBase   uint32
	nextIdx  int
	frame    uint64
	dropped  uint64

	// Score threshold in 1/256 units, host-adjustable over app data.
	threshold uint16

	cfgBuf [64]byte
}

// New creates a detached application. Hooks() goes into the core's
// constructor; Attach completes the wiring.
func New(log zerolog.Logger) *App {
	return &App{log: log, threshold: 128}
}

// Hooks returns the callback set the core invokes from its loop.
func (a *App) Hooks() device.Hooks {
	return device.Hooks{
		Init:   a.onInit,
		MLDone: a.onInferenceDone,
	}
}

// Attach binds the application to its core and registers the network set.
// ioBase is the absolute IO pool base the result windows are relative to.
func (a *App) Attach(core *device.Core, networks []mlsched.NetworkDesc, ioBase uint32) {
	a.core = core
	a.networks = networks
	a.ioBase = ioBase
	core.RegisterNetworks(networks)
	core.RegisterHostDataBuffer(a.cfgBuf[:], a.onHostConfig)
}

// Threshold returns the current score threshold in 1/256 units.
func (a *App) Threshold() uint16 { return a.threshold }

// Dropped counts events discarded because the host had not collected the
// previous one.
func (a *App) Dropped() uint64 { return a.dropped }

func (a *App) onInit() {
	a.log.Info().
		Int("networks", len(a.networks)).
		Uint16("threshold", a.threshold).
		Msg("detection app initialized")
}

// onInferenceDone is the per-frame post-processing: decode the finished
// network's results, stream them, rotate to the next network, and mark the
// frame processed.
func (a *App) onInferenceDone() {
	n := a.networks[a.nextIdx]
	a.frame++

	dets := a.results(n)
	event := EncodeEvent(EventDetections, detectionsPayload(a.frame, n.ID, dets))
	if err := a.core.StreamToHost(event, nil); err != nil {
		// Host still owes us a pickup; this frame's event is lost.
		a.dropped++
		a.log.Debug().Uint64("frame", a.frame).Msg("event dropped, host buffer pending")
	}

	a.nextIdx = (a.nextIdx + 1) % len(a.networks)
	a.core.Scheduler().Schedule(a.networks[a.nextIdx].ID)

	a.core.ScheduleImageProcessingDoneEvent()
}

// results reads and filters a network's result window. Networks running on
// engine-internal buffers expose nothing to read.
func (a *App) results(n mlsched.NetworkDesc) []Detection {
	if n.InOutOffset == mlsched.UsingInternalBuffers {
		return nil
	}
	win, err := a.core.Memory().Slice(a.ioBase+n.InOutOffset, n.InOutSize)
	if err != nil {
		a.log.Error().Err(err).Uint32("network", n.ID).Msg("result window unreadable")
		return nil
	}
	all := ParseResults(win)
	kept := all[:0]
	for _, d := range all {
		if d.Score >= a.threshold {
			kept = append(kept, d)
		}
	}
	return kept
}

// onHostConfig handles a configuration blob the host pushed into the app
// buffer: a threshold-set message adjusts filtering on the fly.
func (a *App) onHostConfig(size int) {
	msgType, payload, err := ParseEvent(a.cfgBuf[:size])
	if err != nil {
		a.log.Warn().Err(err).Msg("malformed host config blob")
		return
	}
	switch msgType {
	case MsgSetThreshold:
		if v, ok := GetMapUint(payload, KeyThreshold); ok && v <= 0xFFFF {
			a.threshold = uint16(v)
			a.log.Info().Uint16("threshold", a.threshold).Msg("threshold updated by host")
		}
	default:
		a.log.Warn().Uint8("type", msgType).Msg("unknown host config message")
	}
}

// ParseResults decodes the packed records at the head of a result window:
// a uint32 count followed by count fixed-size records. A count the window
// cannot hold is treated as garbage and yields nothing.
func ParseResults(win []byte) []Detection {
	if len(win) < 4 {
		return nil
	}
	count := binary.LittleEndian.Uint32(win)
	if count == 0 || count > maxDetections || uint32(len(win)-4)/detRecordSize < count {
		return nil
	}
	dets := make([]Detection, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := win[4+i*detRecordSize:]
		dets = append(dets, Detection{
			Class: binary.LittleEndian.Uint16(rec[0:]),
			Score: binary.LittleEndian.Uint16(rec[2:]),
			X:     binary.LittleEndian.Uint16(rec[4:]),
			Y:     binary.LittleEndian.Uint16(rec[6:]),
			W:     binary.LittleEndian.Uint16(rec[8:]),
			H:     binary.LittleEndian.Uint16(rec[10:]),
		})
	}
	return dets
}

// WriteResults packs records into a result window, the inverse of
// ParseResults. The simulator and tests use it to stage engine output.
func WriteResults(win []byte, dets []Detection) {
	binary.LittleEndian.PutUint32(win, uint32(len(dets)))
	for i, d := range dets {
		rec := win[4+i*detRecordSize:]
		binary.LittleEndian.PutUint16(rec[0:], d.Class)
		binary.LittleEndian.PutUint16(rec[2:], d.Score)
		binary.LittleEndian.PutUint16(rec[4:], d.X)
		binary.LittleEndian.PutUint16(rec[6:], d.Y)
		binary.LittleEndian.PutUint16(rec[8:], d.W)
		binary.LittleEndian.PutUint16(rec[10:], d.H)
	}
}

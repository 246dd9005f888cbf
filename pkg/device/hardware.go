// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package device

import (
	"github.com/kestrel-vision/kestrel/pkg/mlsched"
)

// StageEngine is the boundary to one pipeline stage's hardware. Completion
// is a polled flag rather than a callback: platforms without completion
// interrupts expose exactly this shape, and the control loop consumes the
// flag once per pass.
type StageEngine interface {
	// Trigger starts one run of the stage.
	Trigger()
	// Busy reports a triggered run that has not completed.
	Busy() bool
	// TakeDone consumes the completion flag, true at most once per run.
	TakeDone() bool
}

// InferenceEngine is the inference hardware: a stage engine the scheduler
// can also point at a network image and query.
type InferenceEngine interface {
	StageEngine
	mlsched.Engine
}

// NotifyPin is the GPIO line that tells the host application data is
// pending pickup.
type NotifyPin interface {
	Pulse()
}

// Hooks is the application callback set, invoked at the pipeline's
// transition points. Nil members are skipped.
type Hooks struct {
	// PreInit runs before hardware and pools exist; Init runs after
	// registration, before the loop starts.
	PreInit func()
	Init    func()
	// Preprocess runs after each capture completes, before rescale.
	Preprocess func()
	// RescaleDone runs when the rescale stage completes.
	RescaleDone func()
	// MLDone runs when an inference completes, before post-processing is
	// reported to the pipeline.
	MLDone func()
	// ImageProcessingDone runs when the app's scheduled processing-done
	// event fires.
	ImageProcessingDone func()
}

// simStage is a simulated stage engine completing a fixed number of loop
// passes after its trigger. Polling TakeDone is what advances the countdown,
// which keeps the simulator in lockstep with the loop.
type simStage struct {
	latency   int
	countdown int
	busy      bool
}

// NewSimStage creates a simulated stage with a completion latency in loop
// passes; latency < 1 is treated as 1.
func NewSimStage(latency int) StageEngine {
	if latency < 1 {
		latency = 1
	}
	return &simStage{latency: latency}
}

func (s *simStage) Trigger() {
	s.busy = true
	s.countdown = s.latency
}

func (s *simStage) Busy() bool { return s.busy }

func (s *simStage) TakeDone() bool {
	if !s.busy {
		return false
	}
	s.countdown--
	if s.countdown > 0 {
		return false
	}
	s.busy = false
	return true
}

// SimInference is the simulated inference engine: a simStage that also
// records the scheduler's code base and reports the idle status placeholder
// between runs.
type SimInference struct {
	simStage
	codeBase uint32
}

// NewSimInference creates a simulated inference engine.
func NewSimInference(latency int) *SimInference {
	if latency < 1 {
		latency = 1
	}
	return &SimInference{simStage: simStage{latency: latency}}
}

func (s *SimInference) SetCodeBase(addr uint32) { s.codeBase = addr }

// CodeBase returns the network image address the engine last ran.
func (s *SimInference) CodeBase() uint32 { return s.codeBase }

func (s *SimInference) Status(engineID uint32) uint32 {
	if s.busy {
		return 1
	}
	return mlsched.StatusIdle
}

// SimPin is a notify pin that counts its pulses.
type SimPin struct {
	Pulses int
}

func (p *SimPin) Pulse() { p.Pulses++ }

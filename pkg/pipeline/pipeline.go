// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package pipeline tracks the capture->rescale->inference pipeline's
// pause/resume state.
//
// The controller never touches hardware. Stage interrupt handlers report
// completions into it, the protocol engine files pause and resume requests,
// and the owning loop consults State to decide whether to kick off the next
// stage. All methods must be called from the control-loop thread.
package pipeline

import "fmt"

// Stage identifies a completed pipeline stage.
type Stage int

const (
	StageUnknown Stage = iota
	StageCaptureDone
	StageRescaleDone
	StageInferenceDone
	StagePostProcessDone
)

func (s Stage) String() string {
	switch s {
	case StageUnknown:
		return "unknown"
	case StageCaptureDone:
		return "capture-done"
	case StageRescaleDone:
		return "rescale-done"
	case StageInferenceDone:
		return "inference-done"
	case StagePostProcessDone:
		return "post-process-done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Trigger names the stage completion a pause request latches on.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerASAP
	TriggerCaptureDone
	TriggerRescaleDone
	TriggerInferenceDone
	TriggerPostProcessDone
)

func (t Trigger) String() string {
	switch t {
	case TriggerNone:
		return "none"
	case TriggerASAP:
		return "asap"
	case TriggerCaptureDone:
		return "on-capture-done"
	case TriggerRescaleDone:
		return "on-rescale-done"
	case TriggerInferenceDone:
		return "on-inference-done"
	case TriggerPostProcessDone:
		return "on-post-process-done"
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// stage returns the stage a trigger matches, or StageUnknown for ASAP.
func (t Trigger) stage() Stage {
	switch t {
	case TriggerCaptureDone:
		return StageCaptureDone
	case TriggerRescaleDone:
		return StageRescaleDone
	case TriggerInferenceDone:
		return StageInferenceDone
	case TriggerPostProcessDone:
		return StagePostProcessDone
	}
	return StageUnknown
}

// State is the controller's pause state.
type State int

const (
	StateRunning State = iota
	StatePausePending
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePausePending:
		return "pause-pending"
	case StatePaused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ActiveFn reports whether any pipeline stage currently has hardware in
// flight. RestartFn kicks off a fresh capture; it is only called from
// RequestResume when nothing is in flight, since a resumed pipeline with no
// stage running would otherwise stay idle forever.
type (
	ActiveFn  func() bool
	RestartFn func()
)

// Controller owns the pause/resume state of one pipeline.
type Controller struct {
	state         State
	trigger       Trigger
	pausedAt      Stage
	lastCompleted Stage

	active  ActiveFn
	restart RestartFn
}

// New creates a running controller. active and restart may be nil when the
// owner never resumes an idle pipeline (tests, mostly).
func New(active ActiveFn, restart RestartFn) *Controller {
	return &Controller{
		state:    StateRunning,
		trigger:  TriggerNone,
		pausedAt: StageUnknown,
		active:   active,
		restart:  restart,
	}
}

func (c *Controller) State() State         { return c.state }
func (c *Controller) PausedAt() Stage      { return c.pausedAt }
func (c *Controller) LastCompleted() Stage { return c.lastCompleted }

// RequestPause arms a pause at the given trigger. A request against an
// already Paused pipeline is a no-op; a second request before the first
// fires simply replaces the trigger. TriggerNone is a caller defect.
func (c *Controller) RequestPause(trigger Trigger) {
	if trigger == TriggerNone {
		panic("pipeline: pause requested with no trigger")
	}
	if c.state == StatePaused {
		return
	}
	c.trigger = trigger
	c.state = StatePausePending
	c.pausedAt = StageUnknown
}

// RequestResume returns the pipeline to Running. A resume while already
// Running is a no-op. When no stage is in flight the controller restarts
// capture, because a pause that landed between stages left nothing running.
func (c *Controller) RequestResume() {
	if c.state == StateRunning {
		return
	}

	restart := c.active == nil || !c.active()

	c.trigger = TriggerNone
	c.pausedAt = StageUnknown
	c.state = StateRunning

	if restart && c.restart != nil {
		c.restart()
	}
}

// NotifyStageCompleted records a stage completion and latches the pause when
// the armed trigger matches. The last-completed stage is recorded
// unconditionally, whatever the pause state.
func (c *Controller) NotifyStageCompleted(stage Stage) {
	c.lastCompleted = stage

	if c.state != StatePausePending {
		return
	}

	if c.trigger == TriggerASAP || c.trigger.stage() == stage {
		c.state = StatePaused
		c.pausedAt = stage
	}
}

// Paused reports whether the pipeline is fully paused, and if so where.
func (c *Controller) Paused() (Stage, bool) {
	if c.state != StatePaused {
		return StageUnknown, false
	}
	return c.pausedAt, true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package device

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrel-vision/kestrel/pkg/hostcmd"
	"github.com/kestrel-vision/kestrel/pkg/iface"
	"github.com/kestrel-vision/kestrel/pkg/mlsched"
	"github.com/kestrel-vision/kestrel/pkg/pipeline"
	"github.com/kestrel-vision/kestrel/pkg/talon"
)

// Core is one assembled device: the control loop and everything it drives.
// All loop state is owned by the loop goroutine; the only concurrency in the
// whole device lives inside the link adapters.
type Core struct {
	log   zerolog.Logger
	mem   *Memory
	sched *mlsched.Scheduler
	pipe  *pipeline.Controller
	hooks Hooks

	capture StageEngine
	rescale StageEngine
	infer   InferenceEngine
	notify  NotifyPin

	group   *iface.Group
	engines []*hostcmd.Engine
	stats   *talon.Statistics
	appTx   hostcmd.AppTx
	appRx   hostcmd.AppRx

	img           talon.ImageInfo
	cameraStarted bool
	haveNets      bool
	imgProcDone   bool

	pending chan pendingLink
}

type pendingLink struct {
	name string
	link iface.Link
}

// NewCore assembles a device over its memory and stage hardware. The PreInit
// hook fires here, before any registration; notify may be nil.
func NewCore(mem *Memory, capture, rescale StageEngine, infer InferenceEngine, store mlsched.ModuleStore, pools mlsched.Config, notify NotifyPin, hooks Hooks, log zerolog.Logger) *Core {
	if hooks.PreInit != nil {
		hooks.PreInit()
	}

	c := &Core{
		log:     log,
		mem:     mem,
		hooks:   hooks,
		capture: capture,
		rescale: rescale,
		infer:   infer,
		notify:  notify,
		group:   iface.NewGroup(iface.DefaultMaxInstances),
		stats:   talon.NewStatistics(),
		pending: make(chan pendingLink, 4),
	}
	c.sched = mlsched.New(pools, store, infer, mem, log)
	c.pipe = pipeline.New(c.stageActive, c.restartCapture)
	c.sched.SetStageNotify(func() {
		c.pipe.NotifyStageCompleted(pipeline.StageInferenceDone)
	})
	return c
}

func (c *Core) Scheduler() *mlsched.Scheduler  { return c.sched }
func (c *Core) Pipeline() *pipeline.Controller { return c.pipe }
func (c *Core) Stats() *talon.Statistics       { return c.stats }
func (c *Core) Memory() *Memory                { return c.mem }

// AddLink attaches a host link as a new interface instance with its own
// protocol engine.
func (c *Core) AddLink(name string, link iface.Link) error {
	in := iface.New(name, link)
	if err := c.group.Add(in); err != nil {
		return err
	}
	env := hostcmd.Env{
		Mem:          c.mem,
		EngineStatus: c.sched.Status,
		Camera:       c,
		Resume:       c.pipe.RequestResume,
		AppTx:        &c.appTx,
		AppRx:        &c.appRx,
	}
	c.engines = append(c.engines, hostcmd.New(in, env, c.stats, c.log))
	return nil
}

// QueueLink hands a link to the control loop from another goroutine, the way
// a connection listener must. The loop attaches it on its next pass; a full
// queue rejects the link outright.
func (c *Core) QueueLink(name string, link iface.Link) error {
	select {
	case c.pending <- pendingLink{name: name, link: link}:
		return nil
	default:
		return iface.ErrGroupFull
	}
}

// RegisterNetworks loads the application's network set; runs once, at boot.
func (c *Core) RegisterNetworks(descs []mlsched.NetworkDesc) {
	c.sched.Register(descs)
	c.haveNets = true
}

// SetImage fixes the rescaled-image buffer geometry reported to the host.
func (c *Core) SetImage(img talon.ImageInfo) { c.img = img }

// StartCamera enters free-running capture. The first frame starts
// immediately unless a stage is already in flight.
func (c *Core) StartCamera() {
	if c.cameraStarted {
		return
	}
	c.cameraStarted = true
	if !c.stageActive() {
		c.capture.Trigger()
	}
	c.log.Info().Msg("camera started")
}

// StopCamera stops recapturing after the frame in flight completes.
func (c *Core) StopCamera() { c.cameraStarted = false }

// StreamToHost stages application data for host pickup and pulses the notify
// pin. onComplete fires once the host has collected the buffer.
func (c *Core) StreamToHost(data []byte, onComplete func()) error {
	if err := c.appTx.Set(data, onComplete); err != nil {
		return err
	}
	if c.notify != nil {
		c.notify.Pulse()
	}
	return nil
}

// RegisterHostDataBuffer installs the buffer host app-data sends land in.
func (c *Core) RegisterHostDataBuffer(buf []byte, handler func(n int)) {
	c.appRx.Register(buf, handler)
}

// ScheduleImageProcessingDoneEvent arms the processing-done hook for the
// next loop pass. Called by the application from MLDone once its
// post-processing has nothing further to do.
func (c *Core) ScheduleImageProcessingDoneEvent() { c.imgProcDone = true }

// Camera boundary for the protocol engines.

func (c *Core) Started() bool { return c.cameraStarted }

// CaptureRescaledAsync arms a pause at rescale-done; the host command that
// called it polls RescaledReady until the pipeline lands there.
func (c *Core) CaptureRescaledAsync() {
	c.pipe.RequestPause(pipeline.TriggerRescaleDone)
}

func (c *Core) RescaledReady() bool {
	at, paused := c.pipe.Paused()
	return paused && at == pipeline.StageRescaleDone
}

func (c *Core) Image() talon.ImageInfo { return c.img }

// stageActive reports hardware in flight on any pipeline stage.
func (c *Core) stageActive() bool {
	return c.capture.Busy() || c.rescale.Busy() || c.infer.Busy()
}

// restartCapture is the pipeline's resume restart: a pause that landed
// between stages left nothing running, so the next frame starts here.
func (c *Core) restartCapture() {
	if c.cameraStarted {
		c.capture.Trigger()
	}
}

func (c *Core) paused() bool {
	_, p := c.pipe.Paused()
	return p
}

// RunOnce executes one control-loop pass and reports whether anything
// progressed. The ordering keeps completions flowing downstream within a
// pass while every stage start checks the pause state first.
func (c *Core) RunOnce() bool {
	worked := false

	for {
		select {
		case p := <-c.pending:
			if err := c.AddLink(p.name, p.link); err != nil {
				c.log.Warn().Err(err).Str("iface", p.name).Msg("queued link rejected")
				p.link.Close()
			} else {
				c.log.Info().Str("iface", p.name).Msg("link attached")
			}
			worked = true
			continue
		default:
		}
		break
	}

	for _, e := range c.engines {
		if e.Step() {
			worked = true
		}
	}

	var dead []*iface.Instance
	for _, in := range c.group.Instances() {
		moved, err := in.ServiceRx()
		if err != nil {
			c.log.Error().Err(err).Str("iface", in.Name()).Msg("link receive failed, dropping instance")
			dead = append(dead, in)
			continue
		}
		if moved {
			worked = true
		}
		moved, err = in.ServiceTx()
		if err != nil {
			c.log.Error().Err(err).Str("iface", in.Name()).Msg("link send failed, dropping instance")
			dead = append(dead, in)
			continue
		}
		if moved {
			worked = true
		}
	}
	for _, in := range dead {
		c.removeInstance(in)
	}

	if c.infer.TakeDone() {
		c.sched.EngineDone()
		worked = true
	}

	// Inference completion latched above or on an earlier pass: run the
	// application's post-processing, then report the frame finished.
	if c.sched.TakeWorkDone() {
		if c.hooks.MLDone != nil {
			c.hooks.MLDone()
		}
		c.pipe.NotifyStageCompleted(pipeline.StagePostProcessDone)
		if !c.paused() && c.cameraStarted {
			c.capture.Trigger()
		}
		worked = true
	}

	if c.imgProcDone {
		c.imgProcDone = false
		if c.hooks.ImageProcessingDone != nil {
			c.hooks.ImageProcessingDone()
		}
		worked = true
	}

	if c.capture.TakeDone() {
		c.pipe.NotifyStageCompleted(pipeline.StageCaptureDone)
		if !c.paused() {
			if c.hooks.Preprocess != nil {
				c.hooks.Preprocess()
			}
			c.rescale.Trigger()
		}
		worked = true
	}

	if c.rescale.TakeDone() {
		c.pipe.NotifyStageCompleted(pipeline.StageRescaleDone)
		if c.hooks.RescaleDone != nil {
			c.hooks.RescaleDone()
		}
		if !c.paused() && c.haveNets {
			c.sched.Start()
		}
		worked = true
	}

	return worked
}

func (c *Core) removeInstance(in *iface.Instance) {
	c.group.Remove(in)
	for i, e := range c.engines {
		if e.Instance() == in {
			c.engines = append(c.engines[:i], c.engines[i+1:]...)
			return
		}
	}
}

// idleSleep bounds the spin rate when a pass makes no progress.
const idleSleep = 200 * time.Microsecond

// Run fires the Init hook and drives the loop until ctx is done.
func (c *Core) Run(ctx context.Context) {
	if c.hooks.Init != nil {
		c.hooks.Init()
	}
	c.log.Info().Int("links", len(c.group.Instances())).Msg("control loop running")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !c.RunOnce() {
			time.Sleep(idleSleep)
		}
	}
}

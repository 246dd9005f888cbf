// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package hostcmd implements the device-side command protocol engine: one
// non-blocking state machine per interface instance, advanced one step per
// control-loop pass.
//
// A step never blocks. Every wait - for link bytes, for a transmit to drain,
// for the pipeline to pause - is expressed as "no progress this pass"; the
// loop retries on the next pass. Progress states chain within a single step
// so a command whose bytes have all arrived executes without extra passes.
//
// Framing errors (end-marker or checksum mismatch) are terminal for the
// command attempt: the engine logs, counts, and parks back at the id wait
// without responding. There is no firmware-side timeout or retry;
// resynchronization after a framing loss is the host's responsibility.
package hostcmd

import (
	"github.com/rs/zerolog"

	"github.com/kestrel-vision/kestrel/pkg/iface"
	"github.com/kestrel-vision/kestrel/pkg/talon"
)

// Memory is the device address space the register and bulk commands touch.
type Memory interface {
	// Slice returns the writable RAM window [addr, addr+size).
	Slice(addr, size uint32) ([]byte, error)
	// ReadReg and WriteReg access the 32-bit register file by byte offset.
	ReadReg(offset uint32) (uint32, error)
	WriteReg(offset, value uint32) error
}

// Camera is the capture-side boundary the capture-rescaled-image command
// drives. RescaledReady reports that the pipeline paused at rescale-done and
// the image buffer is stable.
type Camera interface {
	Started() bool
	CaptureRescaledAsync()
	RescaledReady() bool
	Image() talon.ImageInfo
}

// Env wires one engine to its collaborators. All engines of a device share
// the same Env values.
type Env struct {
	Mem          Memory
	EngineStatus func(engineID uint32) uint32
	Camera       Camera
	Resume       func()
	AppTx        *AppTx
	AppRx        *AppRx
}

// Top-level request states
type state int

const (
	stateRequestCmdID state = iota
	stateWaitCmdID
	stateRequestBody
	stateWaitBody
	stateExecute
)

// Command execution sub-states. The response tail (send composed bytes,
// wait for the transmit, idle) is shared by every command that answers with
// a fixed buffer.
type execState int

const (
	execEntry execState = iota

	// send-bulk
	sendReadPayload
	sendWaitPayload
	sendReadTrailer
	sendWaitTrailer

	// recv-bulk
	recvSendPayload
	recvWaitPayload
	recvSendTrailer
	recvWaitTrailer

	// capture-rescaled-image
	capWaitImage

	// shared response tail
	respSend
	respWait
)

// maxBodySize is the largest fixed request body in the catalogue.
const maxBodySize = talon.RecvDataReqSize

// Engine is the per-instance protocol state machine.
type Engine struct {
	in    *iface.Instance
	env   Env
	log   zerolog.Logger
	stats *talon.Statistics

	state state
	exec  execState
	cmdID byte

	idBuf [1]byte
	body  [maxBodySize]byte

	sendReq talon.SendDataRequest
	recvReq talon.RecvDataRequest

	payload    []byte
	trailer    [talon.MarkerSize + talon.ChecksumSize]byte
	trailerLen int
	resp       []byte
	appServing bool
}

// New creates an idle engine on an instance. stats may be nil.
func New(in *iface.Instance, env Env, stats *talon.Statistics, log zerolog.Logger) *Engine {
	return &Engine{
		in:    in,
		env:   env,
		stats: stats,
		log:   log.With().Str("iface", in.Name()).Logger(),
	}
}

// Instance returns the interface instance this engine serves.
func (e *Engine) Instance() *iface.Instance { return e.in }

// Step advances the state machine as far as it can without blocking.
// Returns true when any transition happened this pass.
func (e *Engine) Step() bool {
	worked := false
	for e.step() {
		worked = true
	}
	return worked
}

// step attempts one transition; false means the engine is waiting.
func (e *Engine) step() bool {
	switch e.state {
	case stateRequestCmdID:
		if err := e.in.ReadDataAsync(e.idBuf[:]); err != nil {
			// A leftover transfer from a parked command attempt;
			// keep draining it.
			return false
		}
		e.state = stateWaitCmdID
		return true

	case stateWaitCmdID:
		if !e.in.RxDone() {
			return false
		}
		e.in.ClearRxDone()
		e.cmdID = e.idBuf[0]
		e.state = stateRequestBody
		return true

	case stateRequestBody:
		size, ok := talon.BodySize(e.cmdID)
		if !ok {
			e.log.Warn().Uint8("cmd", e.cmdID).Msg("unknown command id")
			if e.stats != nil {
				e.stats.RecordUnknownCommand()
			}
			e.state = stateRequestCmdID
			return true
		}
		if size == 0 {
			return e.dispatch(nil)
		}
		if err := e.in.ReadDataAsync(e.body[:size]); err != nil {
			return false
		}
		e.state = stateWaitBody
		return true

	case stateWaitBody:
		if !e.in.RxDone() {
			return false
		}
		e.in.ClearRxDone()
		size, _ := talon.BodySize(e.cmdID)
		return e.dispatch(e.body[:size])

	case stateExecute:
		return e.execStep()
	}
	return false
}

// dispatch decodes the body and enters the command's sub-machine. Bodies
// carrying their end marker are validated here; a mismatch parks the
// attempt.
func (e *Engine) dispatch(body []byte) bool {
	if e.stats != nil {
		e.stats.RecordCommand(e.cmdID)
	}

	var err error
	switch e.cmdID {
	case talon.CmdSendData:
		e.sendReq, err = talon.DecodeSendDataRequest(body)
	case talon.CmdRecvData:
		e.recvReq, err = talon.DecodeRecvDataRequest(body)
	case talon.CmdReadReg:
		var req talon.ReadRegRequest
		if req, err = talon.DecodeReadRegRequest(body); err == nil {
			return e.enterReadReg(req)
		}
	case talon.CmdWriteReg:
		var req talon.WriteRegRequest
		if req, err = talon.DecodeWriteRegRequest(body); err == nil {
			return e.enterWriteReg(req)
		}
	case talon.CmdMLStatus:
		var req talon.MLStatusRequest
		if req, err = talon.DecodeMLStatusRequest(body); err == nil {
			return e.enterMLStatus(req)
		}
	case talon.CmdDiscovery:
		return e.enterDiscovery()
	case talon.CmdCaptureRescaled:
		var req talon.CameraRequest
		if req, err = talon.DecodeCameraRequest(body); err == nil {
			return e.enterCapture(req)
		}
	case talon.CmdResumePipeline:
		var req talon.CameraRequest
		if req, err = talon.DecodeCameraRequest(body); err == nil {
			return e.enterResume(req)
		}
	}
	if err != nil {
		return e.park(err)
	}

	// Bulk commands start their sub-machine at the entry state.
	e.state = stateExecute
	e.exec = execEntry
	return true
}

// park abandons the command attempt without responding and returns the
// engine to the id wait. The next well-formed id byte resynchronizes.
func (e *Engine) park(err error) bool {
	e.log.Warn().Err(err).Uint8("cmd", e.cmdID).Msg("command attempt parked")
	if e.stats != nil {
		e.stats.RecordFramingError()
	}
	e.appServing = false
	e.state = stateRequestCmdID
	return true
}

// respond enters the shared response tail with a composed buffer.
func (e *Engine) respond(resp []byte) bool {
	e.resp = resp
	e.state = stateExecute
	e.exec = respSend
	return true
}

func (e *Engine) execStep() bool {
	switch e.cmdID {
	case talon.CmdSendData:
		return e.execSendData()
	case talon.CmdRecvData:
		return e.execRecvData()
	case talon.CmdCaptureRescaled:
		return e.execCapture()
	default:
		return e.execRespTail()
	}
}

// execRespTail sends e.resp and returns to idle once it drained.
func (e *Engine) execRespTail() bool {
	switch e.exec {
	case respSend:
		if err := e.in.SendDataAsync(e.resp); err != nil {
			return false
		}
		e.exec = respWait
		return true
	case respWait:
		if !e.in.TxDone() {
			return false
		}
		e.in.ClearTxDone()
		e.finishAppTx()
		e.state = stateRequestCmdID
		return true
	}
	return false
}

// finishAppTx fires the application transfer-complete notification when the
// finished response carried the app's pending output buffer.
func (e *Engine) finishAppTx() {
	if !e.appServing {
		return
	}
	e.appServing = false
	if e.env.AppTx != nil {
		e.env.AppTx.complete()
	}
}

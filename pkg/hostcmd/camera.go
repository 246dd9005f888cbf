// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import (
	"fmt"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

// enterCapture starts the capture-rescaled-image command. Only the primary
// camera exists; other ids are a host defect and park the attempt, since
// this response has no nak channel.
func (e *Engine) enterCapture(req talon.CameraRequest) bool {
	if req.CameraID != talon.CameraPrimary {
		return e.park(fmt.Errorf("capture for unsupported camera %d", req.CameraID))
	}
	e.state = stateExecute
	e.exec = execEntry
	return true
}

// execCapture pauses the pipeline at rescale-done and answers with the
// stable image buffer. A camera that was never started has no pipeline to
// pause; its last image description is answered immediately.
func (e *Engine) execCapture() bool {
	switch e.exec {
	case execEntry:
		if e.env.Camera.Started() {
			e.env.Camera.CaptureRescaledAsync()
		}
		e.exec = capWaitImage
		return true

	case capWaitImage:
		if e.env.Camera.Started() && !e.env.Camera.RescaledReady() {
			return false
		}
		e.resp = talon.EncodeCaptureResponse(e.env.Camera.Image())
		e.exec = respSend
		return true

	default:
		return e.execRespTail()
	}
}

// enterResume resumes a paused pipeline. An unsupported camera id is
// answered with NAK; the resume response is the one place the protocol has
// an explicit failure byte.
func (e *Engine) enterResume(req talon.CameraRequest) bool {
	if req.CameraID != talon.CameraPrimary {
		e.log.Warn().Uint8("camera", req.CameraID).Msg("resume for unsupported camera")
		return e.respond([]byte{talon.NakByte})
	}
	if e.env.Resume != nil {
		e.env.Resume()
	}
	return e.respond([]byte{talon.AckByte})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import "github.com/kestrel-vision/kestrel/pkg/talon"

func (e *Engine) enterMLStatus(req talon.MLStatusRequest) bool {
	var status uint32
	if e.env.EngineStatus != nil {
		status = e.env.EngineStatus(req.EngineID)
	}
	return e.respond(talon.EncodeMLStatusResponse(status))
}

func (e *Engine) enterDiscovery() bool {
	return e.respond(talon.EncodeDiscoveryResponse())
}

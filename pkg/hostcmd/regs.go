// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import (
	"fmt"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

func (e *Engine) enterReadReg(req talon.ReadRegRequest) bool {
	value, err := e.env.Mem.ReadReg(req.Offset)
	if err != nil {
		return e.park(fmt.Errorf("read-reg: %w", err))
	}
	return e.respond(talon.EncodeReadRegResponse(value))
}

func (e *Engine) enterWriteReg(req talon.WriteRegRequest) bool {
	if err := e.env.Mem.WriteReg(req.Offset, req.Value); err != nil {
		return e.park(fmt.Errorf("write-reg: %w", err))
	}
	return e.respond([]byte{talon.AckByte})
}

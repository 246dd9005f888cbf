// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

// execSendData runs the host->device bulk transfer. The payload is received
// straight into its destination (device memory, or the registered app
// buffer under the app-data flag); the end marker and optional checksum are
// read separately afterward and validated before anything is acknowledged.
func (e *Engine) execSendData() bool {
	req := e.sendReq

	switch e.exec {
	case execEntry:
		dst, err := e.sendTarget(req)
		if err != nil {
			return e.park(err)
		}
		e.payload = dst
		e.exec = sendReadPayload
		return true

	case sendReadPayload:
		if len(e.payload) == 0 {
			e.exec = sendReadTrailer
			return true
		}
		if err := e.in.ReadDataAsync(e.payload); err != nil {
			return false
		}
		e.exec = sendWaitPayload
		return true

	case sendWaitPayload:
		if !e.in.RxDone() {
			return false
		}
		e.in.ClearRxDone()
		e.exec = sendReadTrailer
		return true

	case sendReadTrailer:
		e.trailerLen = talon.MarkerSize
		if req.ControlCode&talon.CCChecksumPresent != 0 {
			e.trailerLen += talon.ChecksumSize
		}
		if err := e.in.ReadDataAsync(e.trailer[:e.trailerLen]); err != nil {
			return false
		}
		e.exec = sendWaitTrailer
		return true

	case sendWaitTrailer:
		if !e.in.RxDone() {
			return false
		}
		e.in.ClearRxDone()

		if marker := binary.LittleEndian.Uint32(e.trailer[:]); marker != talon.EndOfDataMarker {
			return e.park(fmt.Errorf("%w: got 0x%08X", talon.ErrBadEndMarker, marker))
		}
		if req.ControlCode&talon.CCChecksumPresent != 0 {
			got := binary.LittleEndian.Uint32(e.trailer[talon.MarkerSize:])
			if want := talon.Checksum(e.payload); got != want {
				if e.stats != nil {
					e.stats.RecordChecksumError()
				}
				return e.park(fmt.Errorf("%w: got 0x%08X want 0x%08X", talon.ErrBadChecksum, got, want))
			}
		}

		if req.ControlCode&talon.CCAppData != 0 && e.env.AppRx != nil {
			e.env.AppRx.delivered(len(e.payload))
		}

		if req.ControlCode&talon.CCSendAckAfterXfer == 0 {
			e.state = stateRequestCmdID
			return true
		}
		e.resp = []byte{talon.AckByte}
		e.exec = respSend
		return true

	default:
		return e.execRespTail()
	}
}

// sendTarget resolves where an inbound payload lands.
func (e *Engine) sendTarget(req talon.SendDataRequest) ([]byte, error) {
	if req.ControlCode&talon.CCAppData != 0 {
		if e.env.AppRx == nil {
			return nil, fmt.Errorf("app-data send with no receive buffer registered")
		}
		dst, ok := e.env.AppRx.target(req.Size)
		if !ok {
			return nil, fmt.Errorf("app-data send of %d bytes exceeds registered buffer", req.Size)
		}
		return dst, nil
	}
	if req.Size == 0 {
		return nil, nil
	}
	dst, err := e.env.Mem.Slice(req.Offset, req.Size)
	if err != nil {
		return nil, fmt.Errorf("send-bulk target: %w", err)
	}
	return dst, nil
}

// execRecvData runs the device->host bulk transfer: start marker and actual
// length first, then the payload, then the end marker and optional checksum
// over exactly the bytes sent.
func (e *Engine) execRecvData() bool {
	req := e.recvReq

	switch e.exec {
	case execEntry:
		src, err := e.recvSource(req)
		if err != nil {
			return e.park(err)
		}
		e.payload = src
		e.resp = talon.EncodeBulkHeader(uint32(len(src)))
		if err := e.in.SendDataAsync(e.resp); err != nil {
			return false
		}
		e.exec = recvSendPayload
		return true

	case recvSendPayload:
		if !e.in.TxDone() {
			return false
		}
		e.in.ClearTxDone()
		if len(e.payload) == 0 {
			e.exec = recvSendTrailer
			return true
		}
		if err := e.in.SendDataAsync(e.payload); err != nil {
			return false
		}
		e.exec = recvWaitPayload
		return true

	case recvWaitPayload:
		if !e.in.TxDone() {
			return false
		}
		e.in.ClearTxDone()
		e.exec = recvSendTrailer
		return true

	case recvSendTrailer:
		trailer := talon.EncodeBulkTrailer(e.payload, req.ControlCode&talon.CCChecksumPresent != 0)
		if err := e.in.SendDataAsync(trailer); err != nil {
			return false
		}
		e.exec = recvWaitTrailer
		return true

	case recvWaitTrailer:
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

// recvSource resolves what a receive-bulk answers with. Under the app-data
// flag the pending application buffer substitutes for the address, with the
// length clamped to what is actually staged; no pending buffer means an
// empty transfer.
func (e *Engine) recvSource(req talon.RecvDataRequest) ([]byte, error) {
	if req.ControlCode&talon.CCAppData != 0 {
		if e.env.AppTx == nil || !e.env.AppTx.Pending() {
			return nil, nil
		}
		e.appServing = true
		src := e.env.AppTx.take()
		if uint32(len(src)) > req.Size {
			src = src[:req.Size]
		}
		return src, nil
	}
	if req.Size == 0 {
		return nil, nil
	}
	src, err := e.env.Mem.Slice(req.Offset, req.Size)
	if err != nil {
		return nil, fmt.Errorf("recv-bulk source: %w", err)
	}
	return src, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package talon

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Request body sizes in bytes, excluding the leading command id byte.
// Send-bulk carries its end marker (and optional checksum) after the payload,
// so its fixed body is the header alone.
const (
	SendDataReqSize  = 12 // offset + length + control code + mtu
	RecvDataReqSize  = 16 // offset + length + control code + mtu + end marker
	ReadRegReqSize   = 8  // offset + end marker
	WriteRegReqSize  = 12 // offset + value + end marker
	MLStatusReqSize  = 8  // engine id + end marker
	DiscoveryReqSize = 0
	CaptureReqSize   = 5 // camera id + end marker
	ResumeReqSize    = 5 // camera id + end marker
)

// Response sizes for the fixed-layout responses.
const (
	ReadRegRespSize   = 12 // start marker + value + end marker
	MLStatusRespSize  = 12 // start marker + status + end marker
	DiscoveryRespSize = MarkerSize + SignatureSize + MarkerSize
	CaptureRespSize   = 24 // start marker + addr + size + width + height + format + end marker
	BulkHeaderSize    = 8  // start marker + actual length
)

// Wire layout checks. A negative array length here means a record's field
// layout drifted from its documented body size.
var (
	_ [SendDataReqSize - (4 + 4 + 2 + 2)]struct{}
	_ [(4 + 4 + 2 + 2) - SendDataReqSize]struct{}
	_ [RecvDataReqSize - (4 + 4 + 2 + 2 + MarkerSize)]struct{}
	_ [(4 + 4 + 2 + 2 + MarkerSize) - RecvDataReqSize]struct{}
	_ [ReadRegReqSize - (4 + MarkerSize)]struct{}
	_ [(4 + MarkerSize) - ReadRegReqSize]struct{}
	_ [WriteRegReqSize - (4 + 4 + MarkerSize)]struct{}
	_ [(4 + 4 + MarkerSize) - WriteRegReqSize]struct{}
	_ [MLStatusReqSize - (4 + MarkerSize)]struct{}
	_ [(4 + MarkerSize) - MLStatusReqSize]struct{}
	_ [CaptureReqSize - (1 + MarkerSize)]struct{}
	_ [(1 + MarkerSize) - CaptureReqSize]struct{}
	_ [DiscoveryRespSize - 20]struct{}
	_ [20 - DiscoveryRespSize]struct{}
	_ [CaptureRespSize - (MarkerSize + 4 + 4 + 2 + 2 + 4 + MarkerSize)]struct{}
	_ [(MarkerSize + 4 + 4 + 2 + 2 + 4 + MarkerSize) - CaptureRespSize]struct{}
)

// Framing and decode errors
var (
	ErrShortBody      = errors.New("request body shorter than wire layout")
	ErrBadStartMarker = errors.New("start-of-data marker mismatch")
	ErrBadEndMarker   = errors.New("end-of-data marker mismatch")
	ErrBadChecksum    = errors.New("payload checksum mismatch")
	ErrUnknownCommand = errors.New("unknown command id")
)

// BodySize returns the fixed request body size for a command id. The second
// return is false for ids outside the catalogue.
func BodySize(cmd byte) (int, bool) {
	switch cmd {
	case CmdSendData:
		return SendDataReqSize, true
	case CmdRecvData:
		return RecvDataReqSize, true
	case CmdReadReg:
		return ReadRegReqSize, true
	case CmdWriteReg:
		return WriteRegReqSize, true
	case CmdMLStatus:
		return MLStatusReqSize, true
	case CmdDiscovery:
		return DiscoveryReqSize, true
	case CmdCaptureRescaled:
		return CaptureReqSize, true
	case CmdResumePipeline:
		return ResumeReqSize, true
	}
	return 0, false
}

// le is the wire byte order for all multi-byte fields.
var le = binary.LittleEndian

func checkEnd(marker uint32) error {
	if marker != EndOfDataMarker {
		return fmt.Errorf("%w: got 0x%08X", ErrBadEndMarker, marker)
	}
	return nil
}

// SendDataRequest is the fixed header of a send-bulk command. The payload,
// end marker and optional checksum follow it on the wire.
type SendDataRequest struct {
	Offset      uint32
	Size        uint32
	ControlCode uint16
	MTUSize     uint16
}

func DecodeSendDataRequest(b []byte) (SendDataRequest, error) {
	if len(b) < SendDataReqSize {
		return SendDataRequest{}, ErrShortBody
	}
	return SendDataRequest{
		Offset:      le.Uint32(b[0:]),
		Size:        le.Uint32(b[4:]),
		ControlCode: le.Uint16(b[8:]),
		MTUSize:     le.Uint16(b[10:]),
	}, nil
}

func (r SendDataRequest) Encode() []byte {
	b := make([]byte, SendDataReqSize)
	le.PutUint32(b[0:], r.Offset)
	le.PutUint32(b[4:], r.Size)
	le.PutUint16(b[8:], r.ControlCode)
	le.PutUint16(b[10:], r.MTUSize)
	return b
}

// RecvDataRequest is the full body of a receive-bulk command.
type RecvDataRequest struct {
	Offset      uint32
	Size        uint32
	ControlCode uint16
	MTUSize     uint16
}

func DecodeRecvDataRequest(b []byte) (RecvDataRequest, error) {
	if len(b) < RecvDataReqSize {
		return RecvDataRequest{}, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[12:])); err != nil {
		return RecvDataRequest{}, err
	}
	return RecvDataRequest{
		Offset:      le.Uint32(b[0:]),
		Size:        le.Uint32(b[4:]),
		ControlCode: le.Uint16(b[8:]),
		MTUSize:     le.Uint16(b[10:]),
	}, nil
}

func (r RecvDataRequest) Encode() []byte {
	b := make([]byte, RecvDataReqSize)
	le.PutUint32(b[0:], r.Offset)
	le.PutUint32(b[4:], r.Size)
	le.PutUint16(b[8:], r.ControlCode)
	le.PutUint16(b[10:], r.MTUSize)
	le.PutUint32(b[12:], EndOfDataMarker)
	return b
}

// ReadRegRequest reads one 32-bit register at a byte offset.
type ReadRegRequest struct {
	Offset uint32
}

func DecodeReadRegRequest(b []byte) (ReadRegRequest, error) {
	if len(b) < ReadRegReqSize {
		return ReadRegRequest{}, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[4:])); err != nil {
		return ReadRegRequest{}, err
	}
	return ReadRegRequest{Offset: le.Uint32(b[0:])}, nil
}

func (r ReadRegRequest) Encode() []byte {
	b := make([]byte, ReadRegReqSize)
	le.PutUint32(b[0:], r.Offset)
	le.PutUint32(b[4:], EndOfDataMarker)
	return b
}

// WriteRegRequest writes one 32-bit register at a byte offset.
type WriteRegRequest struct {
	Offset uint32
	Value  uint32
}

func DecodeWriteRegRequest(b []byte) (WriteRegRequest, error) {
	if len(b) < WriteRegReqSize {
		return WriteRegRequest{}, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[8:])); err != nil {
		return WriteRegRequest{}, err
	}
	return WriteRegRequest{Offset: le.Uint32(b[0:]), Value: le.Uint32(b[4:])}, nil
}

func (r WriteRegRequest) Encode() []byte {
	b := make([]byte, WriteRegReqSize)
	le.PutUint32(b[0:], r.Offset)
	le.PutUint32(b[4:], r.Value)
	le.PutUint32(b[8:], EndOfDataMarker)
	return b
}

// MLStatusRequest queries one inference engine's status word.
type MLStatusRequest struct {
	EngineID uint32
}

func DecodeMLStatusRequest(b []byte) (MLStatusRequest, error) {
	if len(b) < MLStatusReqSize {
		return MLStatusRequest{}, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[4:])); err != nil {
		return MLStatusRequest{}, err
	}
	return MLStatusRequest{EngineID: le.Uint32(b[0:])}, nil
}

func (r MLStatusRequest) Encode() []byte {
	b := make([]byte, MLStatusReqSize)
	le.PutUint32(b[0:], r.EngineID)
	le.PutUint32(b[4:], EndOfDataMarker)
	return b
}

// CameraRequest is the shared body of the capture-rescaled-image and
// resume-pipeline commands. The camera id is a single unaligned byte on the
// wire, which is why this record gets field-by-field codec treatment.
type CameraRequest struct {
	CameraID uint8
}

func DecodeCameraRequest(b []byte) (CameraRequest, error) {
	if len(b) < CaptureReqSize {
		return CameraRequest{}, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[1:])); err != nil {
		return CameraRequest{}, err
	}
	return CameraRequest{CameraID: b[0]}, nil
}

func (r CameraRequest) Encode() []byte {
	b := make([]byte, CaptureReqSize)
	b[0] = r.CameraID
	le.PutUint32(b[1:], EndOfDataMarker)
	return b
}

// ImageInfo describes the rescaled image buffer a capture command paused on.
type ImageInfo struct {
	BufferAddr uint32
	BufferSize uint32
	Width      uint16
	Height     uint16
	Format     uint32
}

// Response composition (device side)

func EncodeReadRegResponse(value uint32) []byte {
	b := make([]byte, ReadRegRespSize)
	le.PutUint32(b[0:], StartOfDataMarker)
	le.PutUint32(b[4:], value)
	le.PutUint32(b[8:], EndOfDataMarker)
	return b
}

func EncodeMLStatusResponse(status uint32) []byte {
	b := make([]byte, MLStatusRespSize)
	le.PutUint32(b[0:], StartOfDataMarker)
	le.PutUint32(b[4:], status)
	le.PutUint32(b[8:], EndOfDataMarker)
	return b
}

func EncodeDiscoveryResponse() []byte {
	b := make([]byte, DiscoveryRespSize)
	le.PutUint32(b[0:], StartOfDataMarker)
	copy(b[MarkerSize:], Signature)
	le.PutUint32(b[MarkerSize+SignatureSize:], EndOfDataMarker)
	return b
}

func EncodeCaptureResponse(info ImageInfo) []byte {
	b := make([]byte, CaptureRespSize)
	le.PutUint32(b[0:], StartOfDataMarker)
	le.PutUint32(b[4:], info.BufferAddr)
	le.PutUint32(b[8:], info.BufferSize)
	le.PutUint16(b[12:], info.Width)
	le.PutUint16(b[14:], info.Height)
	le.PutUint32(b[16:], info.Format)
	le.PutUint32(b[20:], EndOfDataMarker)
	return b
}

// EncodeBulkHeader is the start marker + actual length prefix of a
// receive-bulk response.
func EncodeBulkHeader(actualSize uint32) []byte {
	b := make([]byte, BulkHeaderSize)
	le.PutUint32(b[0:], StartOfDataMarker)
	le.PutUint32(b[4:], actualSize)
	return b
}

// EncodeBulkTrailer is the end marker plus, when withChecksum is set, the
// additive checksum of payload.
func EncodeBulkTrailer(payload []byte, withChecksum bool) []byte {
	n := MarkerSize
	if withChecksum {
		n += ChecksumSize
	}
	b := make([]byte, n)
	le.PutUint32(b[0:], EndOfDataMarker)
	if withChecksum {
		le.PutUint32(b[MarkerSize:], Checksum(payload))
	}
	return b
}

// Response parsing (host side). Each parser expects the bytes following the
// start marker, since the host locates the marker with SyncToStart.

func ParseRegValue(b []byte) (uint32, error) {
	if len(b) < ReadRegRespSize-MarkerSize {
		return 0, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[4:])); err != nil {
		return 0, err
	}
	return le.Uint32(b[0:]), nil
}

func ParseDiscoverySignature(b []byte) (string, error) {
	if len(b) < DiscoveryRespSize-MarkerSize {
		return "", ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[SignatureSize:])); err != nil {
		return "", err
	}
	return string(b[:SignatureSize]), nil
}

func ParseCaptureInfo(b []byte) (ImageInfo, error) {
	if len(b) < CaptureRespSize-MarkerSize {
		return ImageInfo{}, ErrShortBody
	}
	if err := checkEnd(le.Uint32(b[16:])); err != nil {
		return ImageInfo{}, err
	}
	return ImageInfo{
		BufferAddr: le.Uint32(b[0:]),
		BufferSize: le.Uint32(b[4:]),
		Width:      le.Uint16(b[8:]),
		Height:     le.Uint16(b[10:]),
		Format:     le.Uint32(b[12:]),
	}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package talon

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0},
		{"single byte", []byte{0x42}, 0x42},
		{"all max", []byte{0xFF, 0xFF, 0xFF}, 3 * 0xFF},
		{"sequence", []byte{1, 2, 3, 4, 5}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = 0x%08X, want 0x%08X", got, tt.want)
			}
		})
	}
}

func TestChecksumWraparound(t *testing.T) {
	// 2^24 max-value bytes overflow 32 bits: 0xFF * 2^24 mod 2^32
	data := make([]byte, 1<<24)
	for i := range data {
		data[i] = 0xFF
	}
	want := uint32(0xFF << 24)
	if got := Checksum(data); got != want {
		t.Errorf("Checksum() = 0x%08X, want 0x%08X", got, want)
	}
}

func TestBodySize(t *testing.T) {
	tests := []struct {
		cmd  byte
		size int
		ok   bool
	}{
		{CmdSendData, 12, true},
		{CmdRecvData, 16, true},
		{CmdReadReg, 8, true},
		{CmdWriteReg, 12, true},
		{CmdMLStatus, 8, true},
		{CmdDiscovery, 0, true},
		{CmdCaptureRescaled, 5, true},
		{CmdResumePipeline, 5, true},
		{0x00, 0, false},
		{0x09, 0, false},
		{0xFF, 0, false},
	}
	for _, tt := range tests {
		size, ok := BodySize(tt.cmd)
		if size != tt.size || ok != tt.ok {
			t.Errorf("BodySize(0x%02X) = (%d, %v), want (%d, %v)", tt.cmd, size, ok, tt.size, tt.ok)
		}
	}
}

func TestRequestRoundTrips(t *testing.T) {
	t.Run("send data", func(t *testing.T) {
		in := SendDataRequest{Offset: 0x80001000, Size: 256, ControlCode: CCChecksumPresent | CCSendAckAfterXfer, MTUSize: 64}
		out, err := DecodeSendDataRequest(in.Encode())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out != in {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	})

	t.Run("recv data", func(t *testing.T) {
		in := RecvDataRequest{Offset: 0x80600000, Size: 1024, ControlCode: CCAppData}
		out, err := DecodeRecvDataRequest(in.Encode())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out != in {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	})

	t.Run("read reg", func(t *testing.T) {
		in := ReadRegRequest{Offset: 0x24}
		out, err := DecodeReadRegRequest(in.Encode())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out != in {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	})

	t.Run("write reg", func(t *testing.T) {
		in := WriteRegRequest{Offset: 0x10, Value: 0xCAFEF00D}
		out, err := DecodeWriteRegRequest(in.Encode())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out != in {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	})

	t.Run("camera", func(t *testing.T) {
		in := CameraRequest{CameraID: CameraPrimary}
		out, err := DecodeCameraRequest(in.Encode())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out != in {
			t.Errorf("round trip mismatch: %+v != %+v", out, in)
		}
	})
}

func TestDecodeRejectsBadEndMarker(t *testing.T) {
	tests := []struct {
		name      string
		body      []byte
		markerOff int
		decode    func([]byte) error
	}{
		{"recv data", RecvDataRequest{Size: 8}.Encode(), 12, func(b []byte) error {
			_, err := DecodeRecvDataRequest(b)
			return err
		}},
		{"read reg", ReadRegRequest{Offset: 4}.Encode(), 4, func(b []byte) error {
			_, err := DecodeReadRegRequest(b)
			return err
		}},
		{"write reg", WriteRegRequest{Offset: 4, Value: 1}.Encode(), 8, func(b []byte) error {
			_, err := DecodeWriteRegRequest(b)
			return err
		}},
		{"ml status", MLStatusRequest{EngineID: 0}.Encode(), 4, func(b []byte) error {
			_, err := DecodeMLStatusRequest(b)
			return err
		}},
		{"camera", CameraRequest{}.Encode(), 1, func(b []byte) error {
			_, err := DecodeCameraRequest(b)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.body[tt.markerOff] ^= 0xFF
			err := tt.decode(tt.body)
			if !errors.Is(err, ErrBadEndMarker) {
				t.Errorf("expected ErrBadEndMarker, got %v", err)
			}
		})
	}
}

func TestDecodeRejectsShortBody(t *testing.T) {
	if _, err := DecodeSendDataRequest(make([]byte, SendDataReqSize-1)); !errors.Is(err, ErrShortBody) {
		t.Errorf("expected ErrShortBody, got %v", err)
	}
	if _, err := DecodeCameraRequest(make([]byte, CaptureReqSize-1)); !errors.Is(err, ErrShortBody) {
		t.Errorf("expected ErrShortBody, got %v", err)
	}
}

func TestDiscoveryResponseLayout(t *testing.T) {
	b := EncodeDiscoveryResponse()
	if len(b) != DiscoveryRespSize {
		t.Fatalf("response size = %d, want %d", len(b), DiscoveryRespSize)
	}
	if binary.LittleEndian.Uint32(b[0:]) != StartOfDataMarker {
		t.Error("missing start marker")
	}
	if string(b[4:4+SignatureSize]) != Signature {
		t.Errorf("signature = %q, want %q", b[4:4+SignatureSize], Signature)
	}
	if binary.LittleEndian.Uint32(b[4+SignatureSize:]) != EndOfDataMarker {
		t.Error("missing end marker")
	}

	sig, err := ParseDiscoverySignature(b[MarkerSize:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sig != Signature {
		t.Errorf("parsed signature = %q, want %q", sig, Signature)
	}
}

func TestCaptureResponseRoundTrip(t *testing.T) {
	info := ImageInfo{
		BufferAddr: 0x80610000,
		BufferSize: 300 * 300 * 3,
		Width:      300,
		Height:     300,
		Format:     2,
	}
	b := EncodeCaptureResponse(info)
	if len(b) != CaptureRespSize {
		t.Fatalf("response size = %d, want %d", len(b), CaptureRespSize)
	}
	out, err := ParseCaptureInfo(b[MarkerSize:])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != info {
		t.Errorf("round trip mismatch: %+v != %+v", out, info)
	}
}

func TestBulkTrailer(t *testing.T) {
	payload := []byte{1, 2, 3}

	plain := EncodeBulkTrailer(payload, false)
	if len(plain) != MarkerSize {
		t.Errorf("plain trailer size = %d, want %d", len(plain), MarkerSize)
	}

	summed := EncodeBulkTrailer(payload, true)
	if len(summed) != MarkerSize+ChecksumSize {
		t.Fatalf("checksum trailer size = %d, want %d", len(summed), MarkerSize+ChecksumSize)
	}
	if binary.LittleEndian.Uint32(summed[MarkerSize:]) != 6 {
		t.Errorf("trailer checksum = %d, want 6", binary.LittleEndian.Uint32(summed[MarkerSize:]))
	}
}

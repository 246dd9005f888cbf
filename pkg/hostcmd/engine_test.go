// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kestrel-vision/kestrel/pkg/iface"
	"github.com/kestrel-vision/kestrel/pkg/talon"
)

type fakeMem struct {
	base uint32
	ram  []byte
	regs map[uint32]uint32
}

func newFakeMem(base uint32, size int) *fakeMem {
	return &fakeMem{base: base, ram: make([]byte, size), regs: make(map[uint32]uint32)}
}

func (m *fakeMem) Slice(addr, size uint32) ([]byte, error) {
	total := uint32(len(m.ram))
	if addr < m.base || size > total || addr-m.base > total-size {
		return nil, fmt.Errorf("range [0x%X+0x%X] outside RAM", addr, size)
	}
	off := addr - m.base
	return m.ram[off : off+size : off+size], nil
}

func (m *fakeMem) ReadReg(offset uint32) (uint32, error) { return m.regs[offset], nil }
func (m *fakeMem) WriteReg(offset, value uint32) error   { m.regs[offset] = value; return nil }

type fakeCamera struct {
	started    bool
	captures   int
	readyAfter int // passes of RescaledReady polling before true
	polls      int
	info       talon.ImageInfo
}

func (c *fakeCamera) Started() bool { return c.started }
func (c *fakeCamera) CaptureRescaledAsync() {
	c.captures++
	c.polls = 0
}
func (c *fakeCamera) RescaledReady() bool {
	c.polls++
	return c.polls > c.readyAfter
}
func (c *fakeCamera) Image() talon.ImageInfo { return c.info }

type harness struct {
	t     *testing.T
	host  *iface.LoopbackEnd
	in    *iface.Instance
	eng   *Engine
	mem   *fakeMem
	cam   *fakeCamera
	appTx *AppTx
	appRx *AppRx

	resumed int
}

func newHarness(t *testing.T, budget int) *harness {
	t.Helper()
	dev, host := iface.NewLoopback(budget)
	h := &harness{
		t:     t,
		host:  host,
		in:    iface.New("uart0", dev),
		mem:   newFakeMem(0x8000_0000, 0x1000),
		cam:   &fakeCamera{info: talon.ImageInfo{BufferAddr: 0x8000_0800, BufferSize: 0x300, Width: 32, Height: 24, Format: 1}},
		appTx: &AppTx{},
		appRx: &AppRx{},
	}
	env := Env{
		Mem:          h.mem,
		EngineStatus: func(uint32) uint32 { return 0xDEADBEEF },
		Camera:       h.cam,
		Resume:       func() { h.resumed++ },
		AppTx:        h.appTx,
		AppRx:        h.appRx,
	}
	h.eng = New(h.in, env, talon.NewStatistics(), zerolog.Nop())
	return h
}

// send queues request bytes on the host side of the link.
func (h *harness) send(id byte, body []byte) {
	h.t.Helper()
	if _, err := h.host.Write(append([]byte{id}, body...)); err != nil {
		h.t.Fatalf("host write: %v", err)
	}
}

// pump runs loop passes until the engine and link go idle, returning all
// bytes the device sent.
func (h *harness) pump() []byte {
	h.t.Helper()
	var out []byte
	idle := 0
	for pass := 0; pass < 10000 && idle < 8; pass++ {
		worked := h.eng.Step()
		if moved, err := h.in.ServiceRx(); err != nil {
			h.t.Fatalf("rx: %v", err)
		} else if moved {
			worked = true
		}
		if moved, err := h.in.ServiceTx(); err != nil {
			h.t.Fatalf("tx: %v", err)
		} else if moved {
			worked = true
		}

		buf := make([]byte, 256)
		if n, _ := h.host.TryRead(buf); n > 0 {
			out = append(out, buf[:n]...)
			worked = true
		}

		if worked {
			idle = 0
		} else {
			idle++
		}
	}
	return out
}

func TestDiscoveryRoundTrip(t *testing.T) {
	h := newHarness(t, 0)
	h.send(talon.CmdDiscovery, nil)

	got := h.pump()
	if !bytes.Equal(got, talon.EncodeDiscoveryResponse()) {
		t.Errorf("response = % X", got)
	}
}

func TestDiscoveryChunkedOneBytePerPass(t *testing.T) {
	h := newHarness(t, 1)
	h.send(talon.CmdDiscovery, nil)

	got := h.pump()
	if !bytes.Equal(got, talon.EncodeDiscoveryResponse()) {
		t.Errorf("chunked response = % X", got)
	}
}

func TestWriteThenReadReg(t *testing.T) {
	h := newHarness(t, 0)

	h.send(talon.CmdWriteReg, talon.WriteRegRequest{Offset: 0x24, Value: 0xCAFE0001}.Encode())
	if got := h.pump(); !bytes.Equal(got, []byte{talon.AckByte}) {
		t.Fatalf("write-reg response = % X, want ack", got)
	}
	if h.mem.regs[0x24] != 0xCAFE0001 {
		t.Fatalf("register not written: 0x%08X", h.mem.regs[0x24])
	}

	h.send(talon.CmdReadReg, talon.ReadRegRequest{Offset: 0x24}.Encode())
	if got := h.pump(); !bytes.Equal(got, talon.EncodeReadRegResponse(0xCAFE0001)) {
		t.Errorf("read-reg response = % X", got)
	}
}

func TestMLStatusQuery(t *testing.T) {
	h := newHarness(t, 0)
	h.send(talon.CmdMLStatus, talon.MLStatusRequest{EngineID: 0}.Encode())
	if got := h.pump(); !bytes.Equal(got, talon.EncodeMLStatusResponse(0xDEADBEEF)) {
		t.Errorf("status response = % X", got)
	}
}

func TestSendBulkIntoMemory(t *testing.T) {
	payload := []byte("network weights, say")

	tests := []struct {
		name     string
		checksum bool
		ack      bool
	}{
		{"plain no ack", false, false},
		{"checksum with ack", true, true},
		{"ack without checksum", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 3)

			var cc uint16
			if tt.checksum {
				cc |= talon.CCChecksumPresent
			}
			if tt.ack {
				cc |= talon.CCSendAckAfterXfer
			}
			req := talon.SendDataRequest{Offset: 0x8000_0100, Size: uint32(len(payload)), ControlCode: cc}
			body := append(req.Encode(), payload...)
			body = append(body, talon.EncodeBulkTrailer(payload, tt.checksum)...)
			h.send(talon.CmdSendData, body)

			got := h.pump()
			if tt.ack {
				if !bytes.Equal(got, []byte{talon.AckByte}) {
					t.Fatalf("response = % X, want ack", got)
				}
			} else if len(got) != 0 {
				t.Fatalf("unexpected response without ack flag: % X", got)
			}

			stored, _ := h.mem.Slice(0x8000_0100, uint32(len(payload)))
			if !bytes.Equal(stored, payload) {
				t.Errorf("memory = %q, want %q", stored, payload)
			}
		})
	}
}

func TestSendBulkChecksumMismatchParks(t *testing.T) {
	h := newHarness(t, 0)
	payload := []byte{1, 2, 3, 4}

	req := talon.SendDataRequest{
		Offset: 0x8000_0000, Size: 4,
		ControlCode: talon.CCChecksumPresent | talon.CCSendAckAfterXfer,
	}
	trailer := talon.EncodeBulkTrailer(payload, true)
	trailer[talon.MarkerSize] ^= 0xFF
	body := append(req.Encode(), payload...)
	body = append(body, trailer...)
	h.send(talon.CmdSendData, body)

	if got := h.pump(); len(got) != 0 {
		t.Fatalf("parked attempt must not respond, got % X", got)
	}
	if h.eng.stats.Snapshot().ChecksumErrors != 1 {
		t.Error("checksum error not counted")
	}

	// The engine resynchronizes on the next command.
	h.send(talon.CmdDiscovery, nil)
	if got := h.pump(); !bytes.Equal(got, talon.EncodeDiscoveryResponse()) {
		t.Errorf("post-park discovery = % X", got)
	}
}

func TestSendBulkBadEndMarkerParks(t *testing.T) {
	h := newHarness(t, 0)
	payload := []byte{9, 9}

	req := talon.SendDataRequest{Offset: 0x8000_0000, Size: 2, ControlCode: talon.CCSendAckAfterXfer}
	body := append(req.Encode(), payload...)
	body = append(body, 0xDE, 0xAD, 0xBE, 0xEF) // wrong marker
	h.send(talon.CmdSendData, body)

	if got := h.pump(); len(got) != 0 {
		t.Fatalf("parked attempt must not respond, got % X", got)
	}
	if h.eng.stats.Snapshot().FramingErrors != 1 {
		t.Error("framing error not counted")
	}
}

func TestRecvBulkFromMemory(t *testing.T) {
	h := newHarness(t, 5)
	payload := []byte("stable rescaled image")
	dst, _ := h.mem.Slice(0x8000_0200, uint32(len(payload)))
	copy(dst, payload)

	req := talon.RecvDataRequest{
		Offset: 0x8000_0200, Size: uint32(len(payload)),
		ControlCode: talon.CCChecksumPresent,
	}
	h.send(talon.CmdRecvData, req.Encode())

	want := talon.EncodeBulkHeader(uint32(len(payload)))
	want = append(want, payload...)
	want = append(want, talon.EncodeBulkTrailer(payload, true)...)
	if got := h.pump(); !bytes.Equal(got, want) {
		t.Errorf("response = % X\nwant % X", got, want)
	}
}

func TestRecvBulkAppDataClampAndComplete(t *testing.T) {
	h := newHarness(t, 0)
	staged := []byte("detections cbor blob")
	completed := false
	if err := h.appTx.Set(staged, func() { completed = true }); err != nil {
		t.Fatal(err)
	}

	// The host asks for far more than is staged; the device clamps.
	req := talon.RecvDataRequest{Offset: 0, Size: 1024, ControlCode: talon.CCAppData}
	h.send(talon.CmdRecvData, req.Encode())

	want := talon.EncodeBulkHeader(uint32(len(staged)))
	want = append(want, staged...)
	want = append(want, talon.EncodeBulkTrailer(staged, false)...)
	if got := h.pump(); !bytes.Equal(got, want) {
		t.Fatalf("response = % X", got)
	}
	if !completed {
		t.Error("app transfer-complete callback not fired")
	}
	if h.appTx.Pending() {
		t.Error("app buffer still pending after pickup")
	}
}

func TestRecvBulkAppDataNothingStaged(t *testing.T) {
	h := newHarness(t, 0)
	req := talon.RecvDataRequest{Offset: 0, Size: 64, ControlCode: talon.CCAppData}
	h.send(talon.CmdRecvData, req.Encode())

	want := talon.EncodeBulkHeader(0)
	want = append(want, talon.EncodeBulkTrailer(nil, false)...)
	if got := h.pump(); !bytes.Equal(got, want) {
		t.Errorf("response = % X, want empty transfer", got)
	}
}

func TestSendBulkAppDataDelivers(t *testing.T) {
	h := newHarness(t, 0)
	buf := make([]byte, 32)
	var delivered int
	h.appRx.Register(buf, func(n int) { delivered = n })

	payload := []byte("host config push")
	req := talon.SendDataRequest{
		Size:        uint32(len(payload)),
		ControlCode: talon.CCAppData | talon.CCSendAckAfterXfer,
	}
	body := append(req.Encode(), payload...)
	body = append(body, talon.EncodeBulkTrailer(payload, false)...)
	h.send(talon.CmdSendData, body)

	if got := h.pump(); !bytes.Equal(got, []byte{talon.AckByte}) {
		t.Fatalf("response = % X, want ack", got)
	}
	if delivered != len(payload) {
		t.Errorf("delivered = %d, want %d", delivered, len(payload))
	}
	if !bytes.Equal(buf[:delivered], payload) {
		t.Errorf("app buffer = %q", buf[:delivered])
	}
}

func TestUnknownCommandIDSkipped(t *testing.T) {
	h := newHarness(t, 0)
	h.send(0xEE, nil)
	h.send(talon.CmdDiscovery, nil)

	got := h.pump()
	if !bytes.Equal(got, talon.EncodeDiscoveryResponse()) {
		t.Errorf("response after unknown id = % X", got)
	}
	if h.eng.stats.Snapshot().UnknownCommands != 1 {
		t.Error("unknown command not counted")
	}
}

func TestBadBodyEndMarkerParks(t *testing.T) {
	h := newHarness(t, 0)
	body := talon.WriteRegRequest{Offset: 0x10, Value: 1}.Encode()
	body[8] ^= 0xFF
	h.send(talon.CmdWriteReg, body)

	if got := h.pump(); len(got) != 0 {
		t.Fatalf("parked attempt responded: % X", got)
	}
	if _, ok := h.mem.regs[0x10]; ok {
		t.Error("register written despite bad end marker")
	}
}

func TestCaptureStartedCamera(t *testing.T) {
	h := newHarness(t, 0)
	h.cam.started = true
	h.cam.readyAfter = 3

	h.send(talon.CmdCaptureRescaled, talon.CameraRequest{CameraID: talon.CameraPrimary}.Encode())

	got := h.pump()
	if !bytes.Equal(got, talon.EncodeCaptureResponse(h.cam.info)) {
		t.Errorf("capture response = % X", got)
	}
	if h.cam.captures != 1 {
		t.Errorf("captures = %d, want 1", h.cam.captures)
	}
}

func TestCaptureIdleCameraSkipsTrigger(t *testing.T) {
	h := newHarness(t, 0)
	h.cam.started = false

	h.send(talon.CmdCaptureRescaled, talon.CameraRequest{CameraID: talon.CameraPrimary}.Encode())

	got := h.pump()
	if !bytes.Equal(got, talon.EncodeCaptureResponse(h.cam.info)) {
		t.Errorf("capture response = % X", got)
	}
	if h.cam.captures != 0 {
		t.Errorf("idle camera triggered %d captures", h.cam.captures)
	}
}

func TestCaptureRejectsSecondCamera(t *testing.T) {
	h := newHarness(t, 0)
	h.send(talon.CmdCaptureRescaled, talon.CameraRequest{CameraID: 1}.Encode())

	if got := h.pump(); len(got) != 0 {
		t.Fatalf("unsupported camera got a response: % X", got)
	}

	// Engine stays usable.
	h.send(talon.CmdResumePipeline, talon.CameraRequest{CameraID: talon.CameraPrimary}.Encode())
	if got := h.pump(); !bytes.Equal(got, []byte{talon.AckByte}) {
		t.Errorf("resume after park = % X", got)
	}
}

func TestResumeAckAndNak(t *testing.T) {
	h := newHarness(t, 0)

	h.send(talon.CmdResumePipeline, talon.CameraRequest{CameraID: talon.CameraPrimary}.Encode())
	if got := h.pump(); !bytes.Equal(got, []byte{talon.AckByte}) {
		t.Fatalf("resume response = % X, want ack", got)
	}
	if h.resumed != 1 {
		t.Errorf("resume hook called %d times", h.resumed)
	}

	h.send(talon.CmdResumePipeline, talon.CameraRequest{CameraID: 7}.Encode())
	if got := h.pump(); !bytes.Equal(got, []byte{talon.NakByte}) {
		t.Fatalf("bad-camera resume = % X, want nak", got)
	}
	if h.resumed != 1 {
		t.Error("resume hook called for unsupported camera")
	}
}

func TestBackToBackCommands(t *testing.T) {
	h := newHarness(t, 2)

	// Queue three commands before the engine sees any of them.
	h.send(talon.CmdWriteReg, talon.WriteRegRequest{Offset: 0, Value: 1}.Encode())
	h.send(talon.CmdReadReg, talon.ReadRegRequest{Offset: 0}.Encode())
	h.send(talon.CmdDiscovery, nil)

	want := []byte{talon.AckByte}
	want = append(want, talon.EncodeReadRegResponse(1)...)
	want = append(want, talon.EncodeDiscoveryResponse()...)
	if got := h.pump(); !bytes.Equal(got, want) {
		t.Errorf("pipelined responses = % X\nwant % X", got, want)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package talon

import (
	"errors"
	"fmt"
	"io"
)

// ErrSyncExhausted is returned when SyncToStart scans MaxSyncAttempts bytes
// without finding a complete start-of-data marker.
var ErrSyncExhausted = errors.New("start marker not found within sync budget")

// ErrNak is returned when the device answers a command with NakByte.
var ErrNak = errors.New("device answered NAK")

// Client is a blocking host-side driver for the command catalogue. It owns
// no goroutines; every method writes one request and reads its response to
// completion on the caller's thread.
//
// Stats, when non-nil, is updated with command and error counts.
type Client struct {
	rw    io.ReadWriter
	Stats *Statistics
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{rw: rw}
}

func (c *Client) countCmd(id byte) {
	if c.Stats != nil {
		c.Stats.RecordCommand(id)
	}
}

func (c *Client) countErr(err error) error {
	if err != nil && c.Stats != nil {
		if errors.Is(err, ErrBadEndMarker) || errors.Is(err, ErrBadStartMarker) || errors.Is(err, ErrSyncExhausted) {
			c.Stats.RecordFramingError()
		} else if errors.Is(err, ErrBadChecksum) {
			c.Stats.RecordChecksumError()
		}
	}
	return err
}

func (c *Client) writeRequest(id byte, body []byte) error {
	c.countCmd(id)
	buf := make([]byte, 0, 1+len(body))
	buf = append(buf, id)
	buf = append(buf, body...)
	if _, err := c.rw.Write(buf); err != nil {
		return fmt.Errorf("write request 0x%02X: %w", id, err)
	}
	if c.Stats != nil {
		c.Stats.RecordBytes(0, uint64(len(buf)))
	}
	return nil
}

func (c *Client) readFull(p []byte) error {
	if _, err := io.ReadFull(c.rw, p); err != nil {
		return err
	}
	if c.Stats != nil {
		c.Stats.RecordBytes(uint64(len(p)), 0)
	}
	return nil
}

// SyncToStart consumes bytes one at a time until it has seen the four bytes
// of the start-of-data marker in wire order, giving up after MaxSyncAttempts
// reads. This is the only retry loop in the protocol: a host that lost
// framing scans forward to the next response boundary.
func (c *Client) SyncToStart() error {
	var marker [MarkerSize]byte
	le.PutUint32(marker[:], StartOfDataMarker)

	matched := 0
	var b [1]byte
	for attempt := 0; attempt < MaxSyncAttempts; attempt++ {
		if err := c.readFull(b[:]); err != nil {
			return fmt.Errorf("sync read: %w", err)
		}
		if b[0] == marker[matched] {
			matched++
			if matched == MarkerSize {
				return nil
			}
			continue
		}
		if c.Stats != nil && matched == 0 && attempt == 0 {
			c.Stats.RecordResync()
		}
		// A mismatch can still be the first byte of a fresh marker.
		if b[0] == marker[0] {
			matched = 1
		} else {
			matched = 0
		}
	}
	return ErrSyncExhausted
}

func (c *Client) readAck() error {
	var b [1]byte
	if err := c.readFull(b[:]); err != nil {
		return err
	}
	switch b[0] {
	case AckByte:
		return nil
	case NakByte:
		return ErrNak
	default:
		return fmt.Errorf("%w: unexpected ack byte 0x%02X", ErrBadEndMarker, b[0])
	}
}

// Discover probes the device and returns its signature string.
func (c *Client) Discover() (string, error) {
	if err := c.writeRequest(CmdDiscovery, nil); err != nil {
		return "", err
	}
	if err := c.SyncToStart(); err != nil {
		return "", c.countErr(err)
	}
	body := make([]byte, DiscoveryRespSize-MarkerSize)
	if err := c.readFull(body); err != nil {
		return "", err
	}
	sig, err := ParseDiscoverySignature(body)
	return sig, c.countErr(err)
}

// ReadReg reads one 32-bit register at a byte offset.
func (c *Client) ReadReg(offset uint32) (uint32, error) {
	if err := c.writeRequest(CmdReadReg, ReadRegRequest{Offset: offset}.Encode()); err != nil {
		return 0, err
	}
	if err := c.SyncToStart(); err != nil {
		return 0, c.countErr(err)
	}
	body := make([]byte, ReadRegRespSize-MarkerSize)
	if err := c.readFull(body); err != nil {
		return 0, err
	}
	v, err := ParseRegValue(body)
	return v, c.countErr(err)
}

// WriteReg writes one 32-bit register and waits for the single ack byte.
func (c *Client) WriteReg(offset, value uint32) error {
	if err := c.writeRequest(CmdWriteReg, WriteRegRequest{Offset: offset, Value: value}.Encode()); err != nil {
		return err
	}
	return c.countErr(c.readAck())
}

// MLStatus queries one inference engine's status word.
func (c *Client) MLStatus(engineID uint32) (uint32, error) {
	if err := c.writeRequest(CmdMLStatus, MLStatusRequest{EngineID: engineID}.Encode()); err != nil {
		return 0, err
	}
	if err := c.SyncToStart(); err != nil {
		return 0, c.countErr(err)
	}
	body := make([]byte, MLStatusRespSize-MarkerSize)
	if err := c.readFull(body); err != nil {
		return 0, err
	}
	v, err := ParseRegValue(body)
	return v, c.countErr(err)
}

// SendData writes data into device memory at offset. The end marker and,
// when withChecksum is set, the payload checksum follow the payload. When
// wantAck is set the device confirms the transfer with a single ack byte;
// otherwise the call returns as soon as the bytes are written.
func (c *Client) SendData(offset uint32, data []byte, withChecksum, wantAck bool) error {
	return c.sendData(0, offset, data, withChecksum, wantAck)
}

// SendAppData writes data into the application's registered receive buffer
// instead of device memory; the offset field is ignored on the device side.
// A transfer larger than the registered buffer is a framing loss, so size it
// to fit.
func (c *Client) SendAppData(data []byte, withChecksum, wantAck bool) error {
	return c.sendData(CCAppData, 0, data, withChecksum, wantAck)
}

func (c *Client) sendData(cc uint16, offset uint32, data []byte, withChecksum, wantAck bool) error {
	if withChecksum {
		cc |= CCChecksumPresent
	}
	if wantAck {
		cc |= CCSendAckAfterXfer
	}
	req := SendDataRequest{Offset: offset, Size: uint32(len(data)), ControlCode: cc}
	if err := c.writeRequest(CmdSendData, req.Encode()); err != nil {
		return err
	}
	if _, err := c.rw.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	trailer := EncodeBulkTrailer(data, withChecksum)
	if _, err := c.rw.Write(trailer); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	if c.Stats != nil {
		c.Stats.RecordBytes(0, uint64(len(data)+len(trailer)))
	}
	if !wantAck {
		return nil
	}
	return c.countErr(c.readAck())
}

// RecvData reads size bytes of device memory starting at offset. With
// appData set the device substitutes its pending application output buffer
// for the address, clamping the length, which is why the returned slice can
// be shorter than size.
func (c *Client) RecvData(offset, size uint32, appData, withChecksum bool) ([]byte, error) {
	var cc uint16
	if withChecksum {
		cc |= CCChecksumPresent
	}
	if appData {
		cc |= CCAppData
	}
	req := RecvDataRequest{Offset: offset, Size: size, ControlCode: cc}
	if err := c.writeRequest(CmdRecvData, req.Encode()); err != nil {
		return nil, err
	}
	if err := c.SyncToStart(); err != nil {
		return nil, c.countErr(err)
	}
	var lenBuf [4]byte
	if err := c.readFull(lenBuf[:]); err != nil {
		return nil, err
	}
	actual := le.Uint32(lenBuf[:])
	if actual > size {
		return nil, fmt.Errorf("%w: declared length %d exceeds requested %d", ErrBadStartMarker, actual, size)
	}
	payload := make([]byte, actual)
	if err := c.readFull(payload); err != nil {
		return nil, err
	}
	trailer := make([]byte, MarkerSize)
	if withChecksum {
		trailer = make([]byte, MarkerSize+ChecksumSize)
	}
	if err := c.readFull(trailer); err != nil {
		return nil, err
	}
	if err := checkEnd(le.Uint32(trailer[0:])); err != nil {
		return nil, c.countErr(err)
	}
	if withChecksum {
		if got, want := le.Uint32(trailer[MarkerSize:]), Checksum(payload); got != want {
			return nil, c.countErr(fmt.Errorf("%w: got 0x%08X want 0x%08X", ErrBadChecksum, got, want))
		}
	}
	return payload, nil
}

// CaptureRescaledImage pauses the pipeline at rescale-done and returns the
// stable image buffer description. Only CameraPrimary is valid.
func (c *Client) CaptureRescaledImage(cameraID uint8) (ImageInfo, error) {
	if err := c.writeRequest(CmdCaptureRescaled, CameraRequest{CameraID: cameraID}.Encode()); err != nil {
		return ImageInfo{}, err
	}
	if err := c.SyncToStart(); err != nil {
		return ImageInfo{}, c.countErr(err)
	}
	body := make([]byte, CaptureRespSize-MarkerSize)
	if err := c.readFull(body); err != nil {
		return ImageInfo{}, err
	}
	info, err := ParseCaptureInfo(body)
	return info, c.countErr(err)
}

// ResumePipeline restarts a paused pipeline. The device answers NAK for an
// unsupported camera id.
func (c *Client) ResumePipeline(cameraID uint8) error {
	if err := c.writeRequest(CmdResumePipeline, CameraRequest{CameraID: cameraID}.Encode()); err != nil {
		return err
	}
	return c.countErr(c.readAck())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package iface

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialLink adapts a UART port to the non-blocking Link contract by running
// reads with a short timeout, so a TryRead with no buffered bytes costs one
// millisecond instead of blocking the loop.
type SerialLink struct {
	port serial.Port
}

// OpenSerial opens a UART device in the 8N1 framing the protocol assumes.
func OpenSerial(device string, baudRate int) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	if err := port.SetReadTimeout(time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", device, err)
	}

	return &SerialLink{port: port}, nil
}

func (s *SerialLink) TryRead(p []byte) (int, error) {
	// A timed-out read reports zero bytes with no error, which is
	// exactly the no-progress case.
	return s.port.Read(p)
}

func (s *SerialLink) TryWrite(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialLink) Close() error {
	return s.port.Close()
}

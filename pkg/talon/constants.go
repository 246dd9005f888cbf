// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package talon provides a reference Go implementation of the Talon host
// protocol.
//
// Talon is the byte-oriented command protocol between a host controller (HUB)
// and a Kestrel vision module over UART, I2C or a bridged stream transport.
// This package provides the wire layouts, encode/decode of command records,
// the additive checksum, and a blocking host-side client.
package talon

// Command ids (first byte of every request)
const (
	CmdSendData        = 0x01 // host -> device bulk write
	CmdRecvData        = 0x02 // device -> host bulk read
	CmdReadReg         = 0x03
	CmdWriteReg        = 0x04
	CmdMLStatus        = 0x05
	CmdDiscovery       = 0x06
	CmdCaptureRescaled = 0x07
	CmdResumePipeline  = 0x08
)

// Framing markers, little-endian on the wire
const (
	StartOfDataMarker = 0x50DB50DB
	EndOfDataMarker   = 0xE0DBE0DB
)

// Single-byte transfer acknowledgements
const (
	AckByte = 0x06
	NakByte = 0x15
)

// Control code bits carried by bulk transfer requests
const (
	CCChecksumPresent  = 1 << 0 // a 32-bit additive checksum follows the end marker
	CCSendAckAfterXfer = 1 << 1 // device acks a completed send-bulk with AckByte
	CCAppData          = 1 << 2 // transfer targets the application data buffer
)

// Discovery signature returned by every Kestrel device
const (
	Signature     = "I AM KESTREL"
	SignatureSize = 12
)

// Field sizes
const (
	MarkerSize   = 4
	ChecksumSize = 4
)

// CameraPrimary is the only camera id the pipeline commands accept.
const CameraPrimary = 0

// MaxSyncAttempts bounds the host's one-byte scan for a start marker when
// resynchronizing after line noise.
const MaxSyncAttempts = 50

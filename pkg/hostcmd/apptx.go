// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import "errors"

// ErrAppBufferBusy is returned when an application transfer is registered
// while a previous one is still pending.
var ErrAppBufferBusy = errors.New("application buffer already pending")

// AppTx is the application's pending output buffer. The app stages data
// here; the next receive-bulk command carrying the app-data control flag
// sends it instead of reading device memory, then fires the completion
// callback. One pending buffer at a time, shared by all engines.
type AppTx struct {
	buf        []byte
	onComplete func()
}

// Set stages data for the host. onComplete may be nil.
func (a *AppTx) Set(data []byte, onComplete func()) error {
	if a.buf != nil {
		return ErrAppBufferBusy
	}
	a.buf = data
	a.onComplete = onComplete
	return nil
}

// Pending reports whether staged data awaits pickup.
func (a *AppTx) Pending() bool { return a.buf != nil }

// Len returns the staged byte count.
func (a *AppTx) Len() int { return len(a.buf) }

func (a *AppTx) take() []byte { return a.buf }

func (a *AppTx) complete() {
	done := a.onComplete
	a.buf = nil
	a.onComplete = nil
	if done != nil {
		done()
	}
}

// AppRx is the application's registered inbound buffer. A send-bulk command
// carrying the app-data control flag lands here instead of device memory;
// the handler is told how many bytes arrived.
type AppRx struct {
	buf     []byte
	handler func(n int)
}

// Register installs the buffer the host may target with app-data sends.
// Re-registering replaces the previous buffer.
func (a *AppRx) Register(buf []byte, handler func(n int)) {
	a.buf = buf
	a.handler = handler
}

// Registered reports whether an app receive buffer exists.
func (a *AppRx) Registered() bool { return a.buf != nil }

func (a *AppRx) target(size uint32) ([]byte, bool) {
	if a.buf == nil || int(size) > len(a.buf) {
		return nil, false
	}
	return a.buf[:size], true
}

func (a *AppRx) delivered(n int) {
	if a.handler != nil {
		a.handler(n)
	}
}

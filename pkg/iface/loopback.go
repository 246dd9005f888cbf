// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package iface

import (
	"io"
	"sync"
)

// Loopback is an in-memory link pair. One end behaves like a device link
// with a per-pass transfer budget; the other end is also a blocking
// io.ReadWriter so a host client can drive it from another goroutine.
//
// The budget forces partial progress, which is what the chunked per-pass
// transfer code paths need exercised in tests.
type LoopbackEnd struct {
	shared *loopbackShared
	// in is the queue this end reads from, out the one it writes to.
	in, out *byteQueue
}

type loopbackShared struct {
	mu     sync.Mutex
	cond   *sync.Cond
	budget int
	closed bool
}

type byteQueue struct {
	buf []byte
}

// NewLoopback creates a connected link pair. budget caps how many bytes a
// single TryRead or TryWrite moves; zero means unlimited.
func NewLoopback(budget int) (*LoopbackEnd, *LoopbackEnd) {
	shared := &loopbackShared{budget: budget}
	shared.cond = sync.NewCond(&shared.mu)
	aToB := &byteQueue{}
	bToA := &byteQueue{}
	a := &LoopbackEnd{shared: shared, in: bToA, out: aToB}
	b := &LoopbackEnd{shared: shared, in: aToB, out: bToA}
	return a, b
}

func (e *LoopbackEnd) cap(n int) int {
	if e.shared.budget > 0 && n > e.shared.budget {
		return e.shared.budget
	}
	return n
}

// TryRead implements Link.
func (e *LoopbackEnd) TryRead(p []byte) (int, error) {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	if len(e.in.buf) == 0 {
		if e.shared.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := e.cap(min(len(p), len(e.in.buf)))
	copy(p, e.in.buf[:n])
	e.in.buf = e.in.buf[n:]
	return n, nil
}

// TryWrite implements Link.
func (e *LoopbackEnd) TryWrite(p []byte) (int, error) {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	if e.shared.closed {
		return 0, io.ErrClosedPipe
	}
	n := e.cap(len(p))
	e.out.buf = append(e.out.buf, p[:n]...)
	e.shared.cond.Broadcast()
	return n, nil
}

// Read blocks until bytes are available, for use as the host side of the
// pair from a separate goroutine.
func (e *LoopbackEnd) Read(p []byte) (int, error) {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	for len(e.in.buf) == 0 {
		if e.shared.closed {
			return 0, io.EOF
		}
		e.shared.cond.Wait()
	}
	n := copy(p, e.in.buf)
	e.in.buf = e.in.buf[n:]
	return n, nil
}

// Write queues all of p, ignoring the pass budget.
func (e *LoopbackEnd) Write(p []byte) (int, error) {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	if e.shared.closed {
		return 0, io.ErrClosedPipe
	}
	e.out.buf = append(e.out.buf, p...)
	e.shared.cond.Broadcast()
	return len(p), nil
}

// Close shuts down both ends of the pair.
func (e *LoopbackEnd) Close() error {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	e.shared.closed = true
	e.shared.cond.Broadcast()
	return nil
}

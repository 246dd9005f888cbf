// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package iface

import (
	"errors"
	"net"
	"os"
	"time"
)

// NetLink adapts a stream socket to the non-blocking Link contract with
// short read deadlines. A deadline expiry is reported as zero progress, not
// an error.
type NetLink struct {
	conn net.Conn
}

func NewNetLink(conn net.Conn) *NetLink {
	return &NetLink{conn: conn}
}

func (l *NetLink) TryRead(p []byte) (int, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, err
	}
	n, err := l.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (l *NetLink) TryWrite(p []byte) (int, error) {
	// Socket writes land in the kernel buffer; a short deadline keeps a
	// stalled peer from wedging the loop.
	if err := l.conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, err
	}
	n, err := l.conn.Write(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (l *NetLink) Close() error {
	return l.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

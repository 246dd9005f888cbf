// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package iface

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WSLink adapts a WebSocket connection to the Link contract. A read error on
// a gorilla connection is permanent, so deadline polling is out; instead one
// internal goroutine drains incoming binary messages into a buffer that
// TryRead consumes without blocking. Non-binary messages are skipped.
type WSLink struct {
	conn *websocket.Conn

	mu      sync.Mutex
	buf     []byte
	readErr error
}

func NewWSLink(conn *websocket.Conn) *WSLink {
	w := &WSLink{conn: conn}
	go w.readLoop()
	return w
}

func (w *WSLink) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.mu.Lock()
		w.buf = append(w.buf, data...)
		w.mu.Unlock()
	}
}

func (w *WSLink) TryRead(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		// Surface the read error only once the buffer is drained.
		return 0, w.readErr
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *WSLink) TryWrite(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WSLink) Close() error {
	return w.conn.Close()
}

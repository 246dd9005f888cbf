// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package iface models the byte links a Kestrel device is reachable over and
// the per-link transfer state the control loop services.
//
// Everything here is built for a single-threaded cooperative loop: a transfer
// is registered once, then moved forward a chunk at a time by ServiceRx and
// ServiceTx calls, one per loop pass. Nothing blocks.
package iface

import (
	"errors"
	"fmt"
)

// DefaultMaxInstances matches the two physical host links of the reference
// hardware, one UART and one I2C target.
const DefaultMaxInstances = 2

// Transfer registration errors
var (
	ErrTransferBusy  = errors.New("a transfer is already in flight")
	ErrEmptyTransfer = errors.New("transfer buffer is nil or empty")
	ErrGroupFull     = errors.New("no free interface instance slots")
)

// Link is a byte link serviced from the control loop. TryRead and TryWrite
// must not block: they move whatever the link can accept right now and
// return the count, which may be zero.
type Link interface {
	TryRead(p []byte) (int, error)
	TryWrite(p []byte) (int, error)
	Close() error
}

// Instance pairs a link with its pending receive and send state. The
// protocol engine registers transfers and polls the done flags; the control
// loop drives the handlers.
type Instance struct {
	name string
	link Link

	rxBuf  []byte
	rxGot  int
	rxDone bool

	txBuf  []byte
	txSent int
	txDone bool
}

// New wraps a link in an idle instance.
func New(name string, link Link) *Instance {
	return &Instance{name: name, link: link}
}

func (in *Instance) Name() string { return in.name }
func (in *Instance) Link() Link   { return in.link }

// ReadDataAsync registers a receive of exactly len(dst) bytes into dst.
// Completion is reported through RxDone.
func (in *Instance) ReadDataAsync(dst []byte) error {
	if len(dst) == 0 {
		return ErrEmptyTransfer
	}
	if in.rxBuf != nil {
		return ErrTransferBusy
	}
	in.rxBuf = dst
	in.rxGot = 0
	return nil
}

// SendDataAsync registers a send of all of src. Completion is reported
// through TxDone.
func (in *Instance) SendDataAsync(src []byte) error {
	if len(src) == 0 {
		return ErrEmptyTransfer
	}
	if in.txBuf != nil {
		return ErrTransferBusy
	}
	in.txBuf = src
	in.txSent = 0
	return nil
}

// ServiceRx moves the pending receive forward by whatever the link has
// buffered. Returns true when any bytes moved this pass.
func (in *Instance) ServiceRx() (bool, error) {
	if in.rxBuf == nil {
		return false, nil
	}
	n, err := in.link.TryRead(in.rxBuf[in.rxGot:])
	if err != nil {
		return false, fmt.Errorf("iface %s: rx: %w", in.name, err)
	}
	if n == 0 {
		return false, nil
	}
	in.rxGot += n
	if in.rxGot == len(in.rxBuf) {
		in.rxBuf = nil
		in.rxGot = 0
		in.rxDone = true
	}
	return true, nil
}

// ServiceTx moves the pending send forward by whatever the link will accept.
// Returns true when any bytes moved this pass.
func (in *Instance) ServiceTx() (bool, error) {
	if in.txBuf == nil {
		return false, nil
	}
	n, err := in.link.TryWrite(in.txBuf[in.txSent:])
	if err != nil {
		return false, fmt.Errorf("iface %s: tx: %w", in.name, err)
	}
	if n == 0 {
		return false, nil
	}
	in.txSent += n
	if in.txSent == len(in.txBuf) {
		in.txBuf = nil
		in.txSent = 0
		in.txDone = true
	}
	return true, nil
}

// RxDone reports whether the registered receive has completed. The flag
// stays latched until ClearRxDone, mirroring how a completion flag is
// consumed on a later loop pass.
func (in *Instance) RxDone() bool { return in.rxDone }

// ClearRxDone consumes the receive completion flag.
func (in *Instance) ClearRxDone() { in.rxDone = false }

// TxDone reports whether the registered send has completed.
func (in *Instance) TxDone() bool { return in.txDone }

// ClearTxDone consumes the send completion flag.
func (in *Instance) ClearTxDone() { in.txDone = false }

// RxBusy reports whether a receive is registered and incomplete.
func (in *Instance) RxBusy() bool { return in.rxBuf != nil }

// TxBusy reports whether a send is registered and incomplete.
func (in *Instance) TxBusy() bool { return in.txBuf != nil }

// Group is the fixed set of instances the loop services round-robin.
type Group struct {
	max       int
	instances []*Instance
}

// NewGroup creates a group that accepts at most max instances.
func NewGroup(max int) *Group {
	if max <= 0 {
		max = DefaultMaxInstances
	}
	return &Group{max: max}
}

// Add registers an instance, failing once the group is at capacity.
func (g *Group) Add(in *Instance) error {
	if len(g.instances) >= g.max {
		return ErrGroupFull
	}
	g.instances = append(g.instances, in)
	return nil
}

// Remove drops an instance from the group, closing its link.
func (g *Group) Remove(in *Instance) {
	for i, have := range g.instances {
		if have == in {
			g.instances = append(g.instances[:i], g.instances[i+1:]...)
			in.link.Close()
			return
		}
	}
}

// Instances returns the live instances in service order.
func (g *Group) Instances() []*Instance { return g.instances }

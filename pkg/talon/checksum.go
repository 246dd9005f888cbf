// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package talon

// Checksum returns the additive 32-bit checksum of data: the byte values
// summed into a uint32 with natural wraparound. Both ends compute it over
// the transfer payload only, never over markers or headers.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision
//
// Kestrel - vision device tooling
//
// Host tooling for Talon protocol vision devices: probing, memory and
// register access, pipeline control, event monitoring, and a simulated
// device for development without hardware.

package main

import (
	"os"

	"github.com/kestrel-vision/kestrel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

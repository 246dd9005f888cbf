// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

var discoveryAttempts int

var discoveryCmd = &cobra.Command{
	Use:   "discover",
	Short: "Probe for a Talon device",
	Long: `Send a discovery request and print the device signature.

The device answers with a fixed signature string. A failed attempt scans the
byte stream for the next start-of-data marker before retrying, so a link
that was mid-transfer when the tool attached still converges.

Examples:
  # Probe over serial
  kestrel discover --port /dev/ttyACM0

  # Probe a simulated device
  kestrel discover --addr localhost:7788

Exit codes:
  0 - Device found
  1 - No response within the attempt budget
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryAttempts, "attempts", 3, "Discovery attempts before giving up")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	for attempt := 1; attempt <= discoveryAttempts; attempt++ {
		sig, err := cli.Discover()
		if err == nil {
			fmt.Printf("Device found: %q\n", sig)
			return nil
		}
		fmt.Fprintf(os.Stderr, "Attempt %d/%d: %v\n", attempt, discoveryAttempts, err)
		if errors.Is(err, talon.ErrSyncExhausted) {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Fprintln(os.Stderr, "No device found")
	os.Exit(1)
	return nil
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// TCP connection flag
	tcpAddr string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Kestrel vision device tool",
	Long: `Kestrel - host tooling for Talon protocol vision devices.

Provides commands for probing a device, moving memory, driving the capture
pipeline and monitoring the application event stream, plus a simulated
device for development without hardware.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 921600]
  TCP:       --addr host:7788
  WebSocket: --url ws://host/link [--username user]

For WebSocket authentication, the password is read from the KESTREL_PASSWORD
environment variable, or prompted on stderr if not set. The --password flag
is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 921600, "Baud rate (serial only)")

	// TCP connection flag
	rootCmd.PersistentFlags().StringVarP(&tcpAddr, "addr", "a", "", "TCP address of a simulated device")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

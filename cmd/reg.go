// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var regCmd = &cobra.Command{
	Use:   "reg",
	Short: "Access the device register file",
}

var regReadCmd = &cobra.Command{
	Use:   "read <offset>",
	Short: "Read a 32-bit register",
	Long: `Read the 32-bit register at a byte offset. Offsets accept 0x prefixes
and must be 4-byte aligned.

Example:
  kestrel reg read 0x10 --addr localhost:7788`,
	Args: cobra.ExactArgs(1),
	RunE: runRegRead,
}

var regWriteCmd = &cobra.Command{
	Use:   "write <offset> <value>",
	Short: "Write a 32-bit register",
	Args:  cobra.ExactArgs(2),
	RunE:  runRegWrite,
}

func init() {
	rootCmd.AddCommand(regCmd)
	regCmd.AddCommand(regReadCmd)
	regCmd.AddCommand(regWriteCmd)
}

// parseU32 accepts decimal or 0x-prefixed hex.
func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid 32-bit value %q: %v", s, err)
	}
	return uint32(v), nil
}

func runRegRead(cmd *cobra.Command, args []string) error {
	offset, err := parseU32(args[0])
	if err != nil {
		return err
	}

	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	value, err := cli.ReadReg(offset)
	if err != nil {
		return fmt.Errorf("register read: %v", err)
	}
	fmt.Printf("reg[0x%02X] = 0x%08X (%d)\n", offset, value, value)
	return nil
}

func runRegWrite(cmd *cobra.Command, args []string) error {
	offset, err := parseU32(args[0])
	if err != nil {
		return err
	}
	value, err := parseU32(args[1])
	if err != nil {
		return err
	}

	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	if err := cli.WriteReg(offset, value); err != nil {
		return fmt.Errorf("register write: %v", err)
	}
	fmt.Printf("reg[0x%02X] <- 0x%08X\n", offset, value)
	return nil
}

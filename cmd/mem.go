// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	memOut        string
	memNoChecksum bool
	memNoAck      bool
)

var memCmd = &cobra.Command{
	Use:   "mem",
	Short: "Move device memory",
}

var memReadCmd = &cobra.Command{
	Use:   "read <addr> <size>",
	Short: "Read a device memory range",
	Long: `Read size bytes of device memory starting at addr. Without --out the
bytes are hex dumped; addresses accept 0x prefixes.

Example:
  kestrel mem read 0x80050000 256 --addr localhost:7788`,
	Args: cobra.ExactArgs(2),
	RunE: runMemRead,
}

var memWriteCmd = &cobra.Command{
	Use:   "write <addr> <file>",
	Short: "Write a file into device memory",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemWrite,
}

func init() {
	rootCmd.AddCommand(memCmd)
	memCmd.AddCommand(memReadCmd)
	memCmd.AddCommand(memWriteCmd)
	memReadCmd.Flags().StringVarP(&memOut, "out", "o", "", "Write the bytes to a file instead of dumping")
	memCmd.PersistentFlags().BoolVar(&memNoChecksum, "no-checksum", false, "Skip the payload checksum")
	memWriteCmd.Flags().BoolVar(&memNoAck, "no-ack", false, "Do not wait for the transfer ack")
}

func hexDump(addr uint32, data []byte) {
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Printf("%08X: ", addr+uint32(i))
		for j := i; j < end; j++ {
			fmt.Printf("%02X ", data[j])
		}
		fmt.Println()
	}
}

func runMemRead(cmd *cobra.Command, args []string) error {
	addr, err := parseU32(args[0])
	if err != nil {
		return err
	}
	size, err := parseU32(args[1])
	if err != nil {
		return err
	}

	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	data, err := cli.RecvData(addr, size, false, !memNoChecksum)
	if err != nil {
		return fmt.Errorf("memory read: %v", err)
	}

	if memOut != "" {
		if err := os.WriteFile(memOut, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %v", memOut, err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(data), memOut)
		return nil
	}
	hexDump(addr, data)
	return nil
}

func runMemWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseU32(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	if err := cli.SendData(addr, data, !memNoChecksum, !memNoAck); err != nil {
		return fmt.Errorf("memory write: %v", err)
	}
	fmt.Printf("Wrote %d bytes at 0x%08X\n", len(data), addr)
	return nil
}

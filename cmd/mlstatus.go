// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-vision/kestrel/pkg/mlsched"
)

var mlEngineID uint32

var mlStatusCmd = &cobra.Command{
	Use:   "mlstatus",
	Short: "Query the inference engine status word",
	Long: `Query the inference engine status. An idle engine reports a fixed
placeholder word; anything else is engine-specific run state.

Example:
  kestrel mlstatus --port /dev/ttyACM0`,
	RunE: runMLStatus,
}

func init() {
	rootCmd.AddCommand(mlStatusCmd)
	mlStatusCmd.Flags().Uint32Var(&mlEngineID, "engine", 0, "Engine id to query")
}

func runMLStatus(cmd *cobra.Command, args []string) error {
	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	status, err := cli.MLStatus(mlEngineID)
	if err != nil {
		return fmt.Errorf("status query: %v", err)
	}
	if status == mlsched.StatusIdle {
		fmt.Printf("Engine %d: idle (0x%08X)\n", mlEngineID, status)
	} else {
		fmt.Printf("Engine %d: 0x%08X\n", mlEngineID, status)
	}
	return nil
}

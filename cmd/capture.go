// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

var (
	captureOut      string
	captureNoResume bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a rescaled image from the device",
	Long: `Pause the device pipeline after the next rescale and report the stable
image buffer. With --out the buffer is downloaded before the pipeline is
resumed; without it only the buffer description is printed.

The pipeline stays paused if --no-resume is given, which keeps the buffer
stable for later mem reads at the printed address.

Example:
  kestrel capture --addr localhost:7788 --out frame.raw`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "Write the image buffer to a file")
	captureCmd.Flags().BoolVar(&captureNoResume, "no-resume", false, "Leave the pipeline paused")
}

func runCapture(cmd *cobra.Command, args []string) error {
	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	info, err := cli.CaptureRescaledImage(talon.CameraPrimary)
	if err != nil {
		return fmt.Errorf("capture: %v", err)
	}
	fmt.Printf("Image: %dx%d format=%d at 0x%08X (%d bytes)\n",
		info.Width, info.Height, info.Format, info.BufferAddr, info.BufferSize)

	if captureOut != "" {
		data, err := cli.RecvData(info.BufferAddr, info.BufferSize, false, true)
		if err != nil {
			return fmt.Errorf("image download: %v", err)
		}
		if err := os.WriteFile(captureOut, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %v", captureOut, err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(data), captureOut)
	}

	if captureNoResume {
		fmt.Println("Pipeline left paused; resume with: kestrel resume")
		return nil
	}
	if err := cli.ResumePipeline(talon.CameraPrimary); err != nil {
		return fmt.Errorf("resume: %v", err)
	}
	return nil
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused device pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, conn, err := openClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer conn.Close()

		if err := cli.ResumePipeline(talon.CameraPrimary); err != nil {
			return fmt.Errorf("resume: %v", err)
		}
		fmt.Println("Pipeline resumed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-vision/kestrel/pkg/appmod"
)

var (
	monitorInterval time.Duration
	monitorRaw      bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the device application event stream",
	Long: `Continuously poll the application output buffer and print each event.

The device stages one event at a time; polling faster than the frame rate
sees every event, slower polling sees the device drop the ones it could not
hold. Detection events are decoded; --raw hex dumps the blobs instead.

Press Ctrl+C to stop; link statistics print on exit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 20*time.Millisecond, "Polling interval")
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Hex dump event blobs without decoding")
}

// monitorEventBuf bounds one polled event pickup.
const monitorEventBuf = 4096

func runMonitor(cmd *cobra.Command, args []string) error {
	cli, conn, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Println("Monitoring application events, Ctrl+C to stop")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	events := 0
	for {
		select {
		case <-stop:
			fmt.Printf("\n%d events\n%s", events, cli.Stats.String())
			return nil
		case <-time.After(monitorInterval):
		}

		blob, err := cli.RecvData(0, monitorEventBuf, true, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			continue
		}
		if len(blob) == 0 {
			continue
		}
		events++

		if monitorRaw {
			fmt.Printf("[%s] %d bytes: % X\n", time.Now().Format("15:04:05.000"), len(blob), blob)
			continue
		}
		printEvent(blob)
	}
}

func printEvent(blob []byte) {
	timestamp := time.Now().Format("15:04:05.000")

	msgType, payload, err := appmod.ParseEvent(blob)
	if err != nil {
		fmt.Printf("[%s] undecodable event (%d bytes): %v\n", timestamp, len(blob), err)
		return
	}

	switch msgType {
	case appmod.EventDetections:
		frame, _ := appmod.GetMapUint(payload, appmod.KeyFrame)
		network, _ := appmod.GetMapUint(payload, appmod.KeyNetwork)
		count, _ := appmod.GetMapUint(payload, appmod.KeyCount)
		fmt.Printf("[%s] frame %d net %d: %d detections\n", timestamp, frame, network, count)

		if packed, ok := appmod.GetMapBytes(payload, appmod.KeyBoxes); ok {
			for _, d := range appmod.ParseResults(packed) {
				fmt.Printf("    class=%d score=%.2f box=(%d,%d %dx%d)\n",
					d.Class, float64(d.Score)/256.0, d.X, d.Y, d.W, d.H)
			}
		}
	default:
		fmt.Printf("[%s] event type 0x%02X (%d bytes)\n", timestamp, msgType, len(blob))
	}
}

var thresholdCmd = &cobra.Command{
	Use:   "threshold <value>",
	Short: "Set the device detection score threshold",
	Long: `Push a new score threshold to the detection application. The value is
in 1/256 units: 128 keeps detections scoring 0.5 and above.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseU32(args[0])
		if err != nil {
			return err
		}
		if v > 0xFFFF {
			return fmt.Errorf("threshold %d out of range", v)
		}

		cli, conn, err := openClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer conn.Close()

		if err := cli.SendAppData(appmod.ThresholdMessage(uint16(v)), true, true); err != nil {
			return fmt.Errorf("threshold update: %v", err)
		}
		fmt.Printf("Threshold set to %d (%.2f)\n", v, float64(v)/256.0)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
}

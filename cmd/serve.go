// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Vision

package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kestrel-vision/kestrel/pkg/appmod"
	"github.com/kestrel-vision/kestrel/pkg/device"
	"github.com/kestrel-vision/kestrel/pkg/iface"
	"github.com/kestrel-vision/kestrel/pkg/mlsched"
	"github.com/kestrel-vision/kestrel/pkg/status"
	"github.com/kestrel-vision/kestrel/pkg/talon"
)

var (
	serveConfig    string
	serveDebugAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a simulated Kestrel device",
	Long: `Run a whole simulated device: the capture pipeline on simulated stage
engines, the detection application, and the Talon protocol reachable over
the configured links.

Without --config a default device listens on tcp :7788 with two synthetic
networks. With --debug-addr an HTTP surface serves /healthz, /status,
Prometheus /metrics and a /link WebSocket host link.

Examples:
  kestrel serve
  kestrel serve --config device.toml --debug-addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Device config file (.toml/.yaml/.json)")
	serveCmd.Flags().StringVar(&serveDebugAddr, "debug-addr", "", "Debug HTTP listen address")
}

// serveDefaults is the zero-flag device: one TCP link and two networks, one
// on internal buffers and one with an external result window.
func serveDefaults() device.Config {
	cfg := device.Default()
	cfg.Links = []device.LinkConfig{{Type: "tcp", Listen: ":7788"}}
	cfg.Networks = []device.NetworkConfig{
		{ID: 1, Internal: true},
		{ID: 2, InOutOffset: 0, InOutSize: 0x400},
	}
	return cfg
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(lvl).
		With().Timestamp().Logger()
}

// syntheticModule builds a fake network binary, a distinct repeating pattern
// per id so readback and reload mistakes are visible in dumps.
func syntheticModule(id uint32) []byte {
	img := make([]byte, 0x800)
	for i := range img {
		img[i] = byte(id)*0x10 + byte(i&0x0F)
	}
	return img
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := serveDefaults()
	if serveConfig != "" {
		var err error
		cfg, err = device.Load(serveConfig)
		if err != nil {
			return fmt.Errorf("load config: %v", err)
		}
	}
	log := newLogger(cfg.LogLevel)

	mem := device.NewMemory(cfg.RAMBase, cfg.RAMSize, cfg.RegFileSize)
	store := mlsched.NewMemStore()
	for _, n := range cfg.Networks {
		if _, err := store.AddModule(n.ID, syntheticModule(n.ID)); err != nil {
			return fmt.Errorf("stage network %d: %v", n.ID, err)
		}
	}

	app := appmod.New(log)
	core := device.NewCore(mem,
		device.NewSimStage(2),
		device.NewSimStage(3),
		device.NewSimInference(4),
		store, cfg.Pools(), &device.SimPin{}, app.Hooks(), log)
	app.Attach(core, cfg.Descs(), cfg.Pools().IOBase)

	core.SetImage(talon.ImageInfo{
		BufferAddr: cfg.RAMBase + cfg.ImageOffset,
		BufferSize: cfg.ImageSize,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
		Format:     cfg.Camera.Format,
	})
	seedImageBuffer(mem, cfg)
	seedResultWindows(mem, cfg)

	if cfg.Camera.Autostart {
		core.StartCamera()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, l := range cfg.Links {
		switch l.Type {
		case "serial":
			link, err := iface.OpenSerial(l.Device, l.Baud)
			if err != nil {
				return fmt.Errorf("open %s: %v", l.Device, err)
			}
			if err := core.AddLink(l.Device, link); err != nil {
				return err
			}
			log.Info().Str("device", l.Device).Int("baud", l.Baud).Msg("serial link up")
		case "tcp":
			if err := serveTCP(ctx, core, l.Listen, log); err != nil {
				return err
			}
		}
	}

	if serveDebugAddr != "" {
		serveDebug(ctx, core, log)
	}

	log.Info().Msg("simulated device running, Ctrl+C to stop")
	core.Run(ctx)
	log.Info().Msg("device stopped")
	return nil
}

// seedImageBuffer fills the image buffer with a gradient test pattern.
func seedImageBuffer(mem *device.Memory, cfg device.Config) {
	buf, err := mem.Slice(cfg.RAMBase+cfg.ImageOffset, cfg.ImageSize)
	if err != nil {
		return
	}
	for i := range buf {
		buf[i] = byte(i)
	}
}

// seedResultWindows stages one synthetic detection per external network so
// the event stream has content from the first frame.
func seedResultWindows(mem *device.Memory, cfg device.Config) {
	ioBase := cfg.Pools().IOBase
	for _, n := range cfg.Networks {
		if n.Internal || n.InOutSize < 16 {
			continue
		}
		win, err := mem.Slice(ioBase+n.InOutOffset, n.InOutSize)
		if err != nil {
			continue
		}
		appmod.WriteResults(win, []appmod.Detection{
			{Class: uint16(n.ID), Score: 230, X: 16, Y: 16, W: 64, H: 48},
		})
	}
}

// serveTCP accepts host connections and queues each as a device link. The
// instance cap bounds concurrent hosts; extra connections are dropped.
func serveTCP(ctx context.Context, core *device.Core, listen string, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %v", listen, err)
	}
	log.Info().Str("addr", listen).Msg("tcp link listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			name := conn.RemoteAddr().String()
			if err := core.QueueLink(name, iface.NewNetLink(conn)); err != nil {
				log.Warn().Err(err).Str("peer", name).Msg("connection dropped")
				conn.Close()
			}
		}
	}()
	return nil
}

// serveDebug runs the status surface plus a WebSocket host link endpoint.
func serveDebug(ctx context.Context, core *device.Core, log zerolog.Logger) {
	r := status.NewRouter(status.Source{
		Stats:   core.Stats(),
		Swaps:   core.Scheduler().Swaps,
		Version: rootCmd.Version,
	})

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	r.Get("/link", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		name := "ws:" + req.RemoteAddr
		if err := core.QueueLink(name, iface.NewWSLink(conn)); err != nil {
			log.Warn().Err(err).Str("peer", name).Msg("websocket link dropped")
			conn.Close()
		}
	})

	srv := &http.Server{
		Addr:              serveDebugAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		log.Info().Str("addr", serveDebugAddr).Msg("debug surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug surface failed")
		}
	}()
}

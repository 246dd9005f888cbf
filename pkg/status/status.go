// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

// Package status serves the debug HTTP surface of a simulated device:
// liveness, a JSON counter snapshot, and Prometheus metrics.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

// Source is everything the surface reads. Swaps may be nil when no
// scheduler is wired.
type Source struct {
	Stats   *talon.Statistics
	Swaps   func() uint64
	Version string
}

type statusBody struct {
	Version         string  `json:"version"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	Commands        uint64  `json:"commands"`
	FramingErrors   uint64  `json:"framing_errors"`
	ChecksumErrors  uint64  `json:"checksum_errors"`
	UnknownCommands uint64  `json:"unknown_commands"`
	BytesIn         uint64  `json:"bytes_in"`
	BytesOut        uint64  `json:"bytes_out"`
	CommandRate     float64 `json:"command_rate"`
	NetworkSwaps    uint64  `json:"network_swaps"`
}

func counterFunc(name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "kestrel",
		Subsystem: "talon",
		Name:      name,
		Help:      help,
	}, fn)
}

// NewRouter builds the surface. Each scrape snapshots the live counters; a
// dedicated registry keeps the process-global one out of tests.
func NewRouter(src Source) chi.Router {
	reg := prometheus.NewRegistry()
	snap := func(pick func(talon.Statistics) uint64) func() float64 {
		return func() float64 { return float64(pick(src.Stats.Snapshot())) }
	}
	reg.MustRegister(
		counterFunc("commands_total", "Accepted host commands", snap(func(s talon.Statistics) uint64 { return s.Commands })),
		counterFunc("framing_errors_total", "Parked command attempts", snap(func(s talon.Statistics) uint64 { return s.FramingErrors })),
		counterFunc("checksum_errors_total", "Bulk payload checksum mismatches", snap(func(s talon.Statistics) uint64 { return s.ChecksumErrors })),
		counterFunc("unknown_commands_total", "Command ids outside the catalogue", snap(func(s talon.Statistics) uint64 { return s.UnknownCommands })),
		counterFunc("bytes_in_total", "Payload bytes received", snap(func(s talon.Statistics) uint64 { return s.BytesIn })),
		counterFunc("bytes_out_total", "Payload bytes sent", snap(func(s talon.Statistics) uint64 { return s.BytesOut })),
	)
	if src.Swaps != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "mlsched",
			Name:      "network_swaps_total",
			Help:      "Network images reloaded from flash",
		}, func() float64 { return float64(src.Swaps()) }))
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		s := src.Stats.Snapshot()
		body := statusBody{
			Version:         src.Version,
			UptimeSeconds:   time.Since(s.StartTime).Seconds(),
			Commands:        s.Commands,
			FramingErrors:   s.FramingErrors,
			ChecksumErrors:  s.ChecksumErrors,
			UnknownCommands: s.UnknownCommands,
			BytesIn:         s.BytesIn,
			BytesOut:        s.BytesOut,
			CommandRate:     s.CommandRate,
		}
		if src.Swaps != nil {
			body.NetworkSwaps = src.Swaps()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kestrel Vision

package hostcmd

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/kestrel-vision/kestrel/pkg/talon"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 500
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 500
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzEngine_RandomBytes feeds random byte streams to the engine and
// verifies it never panics and never wedges in a state it cannot leave once
// the stream goes quiet and a valid command follows.
func TestFuzzEngine_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		h := newHarness(t, 1+rng.Intn(8))

		noise := make([]byte, rng.Intn(64))
		rng.Read(noise)
		if _, err := h.host.Write(noise); err != nil {
			t.Fatal(err)
		}
		h.pump()
	}
}

// TestFuzzEngine_NoiseThenCommand verifies the engine recovers from noise
// that never contains a valid command id, since any such byte starts a
// command attempt that consumes the following bytes as its body.
func TestFuzzEngine_NoiseThenCommand(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		h := newHarness(t, 0)

		// Bytes outside the catalogue are each skipped as one unknown
		// command, so the engine is in the id wait afterward.
		noise := make([]byte, rng.Intn(32))
		for j := range noise {
			noise[j] = byte(0x40 + rng.Intn(0xC0))
		}
		if _, err := h.host.Write(noise); err != nil {
			t.Fatal(err)
		}
		h.pump()

		h.send(talon.CmdDiscovery, nil)
		got := h.pump()
		want := talon.EncodeDiscoveryResponse()
		if len(got) < len(want) || string(got[len(got)-len(want):]) != string(want) {
			t.Fatalf("round %d: no discovery response after %d noise bytes: % X", i, len(noise), got)
		}
	}
}

// TestFuzzEngine_TruncatedCommands starts commands whose bodies never fully
// arrive, then checks each engine is parked at a wait rather than crashed.
func TestFuzzEngine_TruncatedCommands(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	ids := []byte{
		talon.CmdSendData, talon.CmdRecvData, talon.CmdReadReg,
		talon.CmdWriteReg, talon.CmdMLStatus, talon.CmdCaptureRescaled,
		talon.CmdResumePipeline,
	}

	for i := 0; i < rounds; i++ {
		h := newHarness(t, 0)
		id := ids[rng.Intn(len(ids))]
		size, _ := talon.BodySize(id)

		body := make([]byte, rng.Intn(size))
		rng.Read(body)
		h.send(id, body)
		h.pump()

		// Host silence stalls the attempt forever; no response, no
		// crash. That the pump returned at all is the property.
	}
}

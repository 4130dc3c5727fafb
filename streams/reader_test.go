package streams_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samaelod/portgen/streams"
)

func writeStreamFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streams.lua")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validStreamFile = `
local config = {}

config.globals = {
	loop_mode = true,
	loop_delay_ms = 20,
	rate_accuracy = "high",
}

config.streams = {
	{
		name = "arp probe",
		count = 4,
		gap_usec = 1000,
		burst_delay_usec = 5000,
		packets = {
			"ffffffffffff0000000000010806",
			"ffffffffffff0000000000020806",
			"ffffffffffff0000000000030806",
		},
	},
	{
		name = "single",
		packets = { "00112233445566778899aabb0800" },
	},
}

return config
`

func TestReadStreamFile(t *testing.T) {
	path := writeStreamFile(t, validStreamFile)

	cfg, err := streams.ReadStreamFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Globals.LoopMode || cfg.Globals.LoopDelayMs != 20 {
		t.Errorf("globals = %+v", cfg.Globals)
	}
	if cfg.Globals.RateAccuracy != "high" {
		t.Errorf("rate_accuracy = %q, want high", cfg.Globals.RateAccuracy)
	}

	if len(cfg.Streams) != 2 {
		t.Fatalf("got %d streams, want 2", len(cfg.Streams))
	}

	s := cfg.Streams[0]
	if s.Name != "arp probe" || s.Count != 4 || s.GapUsec != 1000 || s.BurstDelayUsec != 5000 {
		t.Errorf("stream 0 = %+v", s)
	}
	if len(s.Packets) != 3 {
		t.Errorf("stream 0 has %d packets, want 3", len(s.Packets))
	}

	// count defaults to 1 when omitted
	if cfg.Streams[1].Count != 1 {
		t.Errorf("stream 1 count = %d, want default 1", cfg.Streams[1].Count)
	}
}

func TestReadStreamFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not_a_table", `return 42`},
		{"no_streams", `return { globals = { loop_mode = false } }`},
		{"bad_hex", `return { streams = { { packets = { "zz" } } } }`},
		{"empty_packets", `return { streams = { { name = "x", packets = {} } } }`},
		{"negative_count", `return { streams = { { count = -1, packets = { "aa" } } } }`},
		{"negative_gap", `return { streams = { { gap_usec = -5, packets = { "aa" } } } }`},
		{"bad_accuracy", `return { globals = { rate_accuracy = "turbo" }, streams = { { packets = { "aa" } } } }`},
		{"syntax_error", `return {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeStreamFile(t, tt.content)
			if _, err := streams.ReadStreamFile(path); err == nil {
				t.Errorf("ReadStreamFile accepted %s", tt.name)
			} else {
				t.Logf("rejected as expected: %v", err)
			}
		})
	}
}

func TestReadStreamFileMissing(t *testing.T) {
	if _, err := streams.ReadStreamFile(filepath.Join(t.TempDir(), "nope.lua")); err == nil {
		t.Error("ReadStreamFile accepted a missing file")
	}
}

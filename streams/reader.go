package streams

import (
	"encoding/hex"
	"fmt"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/samaelod/portgen/types"
)

// ReadStreamFile executes a Lua stream script and maps the returned
// table onto a StreamConfig. Scripts are free to generate their packet
// hex programmatically; only the returned table matters.
func ReadStreamFile(path string) (*types.StreamConfig, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoFile(path); err != nil {
		return nil, err
	}

	// Stream file returns the config table
	lv := L.Get(-1)
	table, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua file did not return a table")
	}

	var cfg types.StreamConfig

	if err := gluamapper.Map(table, &cfg); err != nil {
		return nil, err
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}

	return &cfg, nil
}

// ValidateConfig normalizes defaults and rejects streams the compiler
// could not express.
func ValidateConfig(cfg *types.StreamConfig) error {
	if len(cfg.Streams) == 0 {
		return fmt.Errorf("no streams defined")
	}

	switch cfg.Globals.RateAccuracy {
	case "", "high", "low":
	default:
		return fmt.Errorf("unknown rate_accuracy %q", cfg.Globals.RateAccuracy)
	}
	if cfg.Globals.LoopDelayMs < 0 {
		return fmt.Errorf("loop_delay_ms must be >= 0")
	}

	for i := range cfg.Streams {
		s := &cfg.Streams[i]
		if len(s.Packets) == 0 {
			return fmt.Errorf("stream %d (%s): no packets", i, s.Name)
		}
		if s.Count == 0 {
			s.Count = 1
		}
		if s.Count < 0 {
			return fmt.Errorf("stream %d (%s): negative count", i, s.Name)
		}
		if s.GapUsec < 0 || s.BurstDelayUsec < 0 {
			return fmt.Errorf("stream %d (%s): negative delay", i, s.Name)
		}
		for j, p := range s.Packets {
			if _, err := hex.DecodeString(p); err != nil {
				return fmt.Errorf("stream %d (%s): packet %d: bad hex: %w", i, s.Name, j, err)
			}
		}
	}

	return nil
}

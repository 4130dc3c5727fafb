package streams

import (
	"encoding/hex"

	"github.com/samaelod/portgen/port"
	"github.com/samaelod/portgen/types"
)

// Build compiles a stream config into the transmitter's packet list.
// The previous list is cleared first. Each stream with count > 1 becomes
// a repeat block; timestamps are synthesized from the per-stream gaps so
// the transmitter's pacing reproduces them.
func Build(cfg *types.StreamConfig, tx *port.Transmitter) error {
	tx.ClearPacketList()

	var tsNsec int64 // running clock, only deltas matter

	for i := range cfg.Streams {
		s := &cfg.Streams[i]

		pkts := make([][]byte, 0, len(s.Packets))
		for _, p := range s.Packets {
			b, err := hex.DecodeString(p)
			if err != nil {
				return err
			}
			pkts = append(pkts, b)
		}

		if s.Count > 1 {
			delayNsec := int64(s.BurstDelayUsec) * 1000
			tx.LoopNextPacketSet(int64(len(pkts)), int64(s.Count),
				delayNsec/1e9, delayNsec%1e9)
		}

		for _, b := range pkts {
			tx.AppendToPacketList(tsNsec/1e9, tsNsec%1e9, b)
			tsNsec += int64(s.GapUsec) * 1000
		}

		if s.Count <= 1 {
			// Single-pass streams express their trailing delay through
			// the next packet's timestamp instead of a block delay.
			tsNsec += int64(s.BurstDelayUsec) * 1000
		}
	}

	if cfg.Globals.LoopMode {
		delayNsec := int64(cfg.Globals.LoopDelayMs) * 1e6
		tx.SetPacketListLoopMode(true, delayNsec/1e9, delayNsec%1e9)
	}

	switch cfg.Globals.RateAccuracy {
	case "high":
		tx.SetRateAccuracy(types.AccuracyHigh)
	case "low":
		tx.SetRateAccuracy(types.AccuracyLow)
	}

	return nil
}

// BuildRecords feeds pre-timestamped records (typically read back from a
// capture file) into the transmitter, preserving their original pacing.
func BuildRecords(records []types.Record, tx *port.Transmitter) {
	tx.ClearPacketList()
	for i := range records {
		r := &records[i]
		tx.AppendToPacketList(r.TsSec, r.TsNsec, r.Data)
	}
}

package types

import "sync/atomic"

// Stats holds the aggregate packet/byte counters for one port. The Rx and
// Tx monitors and the transmitter each write only their own pair, but the
// console reads all four concurrently, so the fields are atomics.
type Stats struct {
	RxPkts  atomic.Uint64
	RxBytes atomic.Uint64
	TxPkts  atomic.Uint64
	TxBytes atomic.Uint64
}

// StatsSnapshot is a plain-value copy of Stats for display and tests.
type StatsSnapshot struct {
	RxPkts  uint64
	RxBytes uint64
	TxPkts  uint64
	TxBytes uint64
}

func (s *Stats) AddRx(pkts, bytes uint64) {
	s.RxPkts.Add(pkts)
	s.RxBytes.Add(bytes)
}

func (s *Stats) AddTx(pkts, bytes uint64) {
	s.TxPkts.Add(pkts)
	s.TxBytes.Add(bytes)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		RxPkts:  s.RxPkts.Load(),
		RxBytes: s.RxBytes.Load(),
		TxPkts:  s.TxPkts.Load(),
		TxBytes: s.TxBytes.Load(),
	}
}

// Record is one packet to be transmitted (or read back from a capture
// file): absolute timestamp plus raw bytes. Only timestamp deltas matter
// to the transmitter.
type Record struct {
	TsSec  int64
	TsNsec int64
	Data   []byte
}

// Accuracy selects the transmitter's pacing primitive.
type Accuracy int

const (
	AccuracyLow  Accuracy = iota // OS sleep
	AccuracyHigh                 // busy-wait on the monotonic clock
)

// StreamConfig is the scripted description of what a port should send.
// Lua stream files return a table that maps onto this.
type StreamConfig struct {
	Globals GlobalOpts
	Streams []Stream
}

type GlobalOpts struct {
	LoopMode     bool
	LoopDelayMs  int
	RateAccuracy string // "high" | "low"
}

// Stream is a burst of packets sent Count times with GapUsec between
// packets and BurstDelayUsec after each burst.
type Stream struct {
	Name           string
	Packets        []string // hex-encoded frames
	Count          int      // burst repeat count, >= 1
	GapUsec        int      // inter-packet gap within a burst
	BurstDelayUsec int      // delay after each burst
}

package port

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samaelod/portgen/logging"
	"github.com/samaelod/portgen/types"
)

// Worker states. Running is entered by the worker goroutine as its first
// act; Finished on normal completion, stop, or error.
const (
	stateNotStarted int32 = iota
	stateRunning
	stateFinished
)

const txSnapLen = 64

var errStopRequested = errors.New("transmit stop requested")

// Transmitter emits a pre-built packet sequence list on one interface
// with microsecond pacing, burst repetition, and optional global looping.
//
// The sequence list is built off-thread through ClearPacketList /
// LoopNextPacketSet / AppendToPacketList and must not be mutated while
// the worker runs; Start hands the list to the worker and the builder
// methods refuse to touch it until the worker finishes.
type Transmitter struct {
	device string
	log    *logging.Logger

	handle              Handle
	usingInternalHandle bool
	stats               *types.Stats
	usingInternalStats  bool

	seqList        []*packetSequence
	current        *packetSequence
	repeatSeqStart int
	repeatSize     int64
	packetCount    int64

	returnToQIdx int
	loopDelay    int64 // usec

	udelay delayFn

	state   atomic.Int32
	stopReq atomic.Bool
	started chan struct{}
	done    chan struct{}
}

// NewTransmitter opens an internal low-snaplen handle on device. If the
// open fails the transmitter is created anyway; a handle can still be
// lent to it via SetHandle before Start.
func NewTransmitter(device string, log *logging.Logger) *Transmitter {
	t := &Transmitter{
		device:             device,
		log:                log,
		stats:              &types.Stats{},
		usingInternalStats: true,
		returnToQIdx:       -1,
		repeatSeqStart:     -1,
		udelay:             sleepUsec,
	}
	t.state.Store(stateNotStarted)

	caps := openCaps{}
	h, err := openLive(device, txSnapLen, time.Second, &caps, log)
	if err != nil {
		log.Logf("%s: error opening transmit handle: %v", device, err)
		return t
	}
	t.handle = h
	t.usingInternalHandle = true
	return t
}

// Close releases the internal handle if the transmitter still owns one.
// Must not be called while running.
func (t *Transmitter) Close() {
	if t.usingInternalHandle && t.handle != nil {
		t.handle.Close()
		t.usingInternalHandle = false
	}
	t.handle = nil
}

// SetRateAccuracy selects the pacing primitive: high accuracy busy-waits
// on the monotonic clock, low accuracy uses an OS sleep.
func (t *Transmitter) SetRateAccuracy(accuracy types.Accuracy) bool {
	switch accuracy {
	case types.AccuracyHigh:
		t.udelay = busyWaitUsec
		t.log.Logf("%s: rate accuracy set to High - busy wait", t.device)
	case types.AccuracyLow:
		t.udelay = sleepUsec
		t.log.Logf("%s: rate accuracy set to Low - sleep", t.device)
	default:
		t.log.Logf("%s: unsupported rate accuracy value %d", t.device, accuracy)
		return false
	}
	return true
}

// SetHandle replaces the transmit handle with an externally owned one
// (typically the Rx monitor's, so self-sent packets are observable on
// the Rx side). The internal handle, if any, is closed exactly once.
func (t *Transmitter) SetHandle(h Handle) {
	if t.usingInternalHandle && t.handle != nil {
		t.handle.Close()
	}
	t.handle = h
	t.usingInternalHandle = false
}

// UseExternalStats redirects counter updates to a caller-owned stats
// block.
func (t *Transmitter) UseExternalStats(stats *types.Stats) {
	t.stats = stats
	t.usingInternalStats = false
}

// ClearPacketList drops the whole sequence list and resets loop mode.
func (t *Transmitter) ClearPacketList() {
	if t.IsRunning() {
		t.log.Logf("%s: clearPacketList called while transmitting, ignored", t.device)
		return
	}

	t.seqList = nil
	t.current = nil
	t.repeatSeqStart = -1
	t.repeatSize = 0
	t.packetCount = 0
	t.returnToQIdx = -1

	t.SetPacketListLoopMode(false, 0, 0)
}

// LoopNextPacketSet opens a repeat block covering the next size packets:
// they will be emitted repeats times with the given delay after each
// pass. The block is closed automatically by AppendToPacketList once
// size packets have arrived.
func (t *Transmitter) LoopNextPacketSet(size, repeats int64, delaySec, delayNsec int64) {
	if t.IsRunning() {
		t.log.Logf("%s: loopNextPacketSet called while transmitting, ignored", t.device)
		return
	}

	t.current = newPacketSequence()
	t.current.repeatCount = repeats
	t.current.usecDelay = delaySec*1e6 + delayNsec/1000

	t.repeatSeqStart = len(t.seqList)
	t.repeatSize = size
	t.packetCount = 0

	t.seqList = append(t.seqList, t.current)
}

// AppendToPacketList adds one packet, in emission order, stamped with its
// desired absolute transmit time. Timestamp deltas between consecutive
// packets define the pacing; the absolute values are otherwise ignored.
func (t *Transmitter) AppendToPacketList(tsSec, tsNsec int64, pkt []byte) bool {
	if t.IsRunning() {
		t.log.Logf("%s: appendToPacketList called while transmitting, ignored", t.device)
		return false
	}

	tsUsec := uint32(tsNsec / 1000)
	sec := uint32(tsSec)

	if t.current == nil || !t.current.hasFreeSpace(2*pktHdrSize+len(pkt)) {
		if t.current != nil {
			// The delay out of the full sequence is the gap from its
			// last packet to this one.
			t.current.usecDelay = usecDelta(
				t.current.lastTsSec, t.current.lastTsUsec, sec, tsUsec)
		}

		t.current = newPacketSequence()
		t.seqList = append(t.seqList, t.current)
	}

	ok := t.current.appendPacket(sec, tsUsec, pkt) == nil

	t.packetCount++
	if t.repeatSize > 0 && t.packetCount == t.repeatSize {
		t.closeRepeatBlock()
	}

	return ok
}

// closeRepeatBlock finishes the block opened by LoopNextPacketSet. When
// the block spilled over multiple sequences, the end-of-block delay lives
// on the last sequence and the first one records the block length.
func (t *Transmitter) closeRepeatBlock() {
	start := t.seqList[t.repeatSeqStart]

	if t.current != start {
		t.current.usecDelay = start.usecDelay
		start.usecDelay = 0
		start.repeatSize = int64(len(t.seqList) - t.repeatSeqStart)
	}

	t.log.Logf("%s: repeat block closed: start=%d size=%d",
		t.device, t.repeatSeqStart, len(t.seqList)-t.repeatSeqStart)

	t.repeatSize = 0

	// Force a fresh sequence for whatever comes after the block.
	t.current = nil
}

// SetPacketListLoopMode arranges for the whole list to restart from the
// top after the given delay once it is exhausted.
func (t *Transmitter) SetPacketListLoopMode(loop bool, delaySec, delayNsec int64) {
	if loop {
		t.returnToQIdx = 0
	} else {
		t.returnToQIdx = -1
	}
	t.loopDelay = delaySec*1e6 + delayNsec/1000
}

// PacketListInfo reports the built list's shape, mostly for logging and
// the console.
func (t *Transmitter) PacketListInfo() (sequences int, packets, bytes int64) {
	for _, seq := range t.seqList {
		packets += seq.packets
		bytes += seq.bytes
	}
	return len(t.seqList), packets, bytes
}

// Start spawns the transmit worker and does not return until the worker
// has published its state, so IsRunning is accurate immediately after.
func (t *Transmitter) Start() error {
	if t.IsRunning() {
		t.log.Logf("%s: transmit start requested but already running", t.device)
		return fmt.Errorf("%s: transmitter already running", t.device)
	}
	if t.repeatSize > 0 {
		return fmt.Errorf("%s: packet list has an unclosed repeat block", t.device)
	}
	if t.handle == nil {
		return fmt.Errorf("%s: no transmit handle", t.device)
	}

	t.state.Store(stateNotStarted)
	t.stopReq.Store(false)
	t.started = make(chan struct{})
	t.done = make(chan struct{})

	// Ownership of the list transfers to the worker until it finishes.
	go t.run(t.seqList)

	select {
	case <-t.started:
	case <-t.done:
	}
	return nil
}

// Stop requests a cooperative stop and waits for the worker to finish.
// Calling it on a non-running transmitter is a no-op.
func (t *Transmitter) Stop() {
	if !t.IsRunning() {
		t.log.Logf("%s: transmit stop requested but not running", t.device)
		return
	}
	t.stopReq.Store(true)
	<-t.done
}

func (t *Transmitter) IsRunning() bool {
	return t.state.Load() == stateRunning
}

func (t *Transmitter) run(seqs []*packetSequence) {
	defer func() {
		t.state.Store(stateFinished)
		close(t.done)
	}()

	if len(seqs) == 0 {
		t.log.Logf("%s: transmit started with empty packet list", t.device)
		return
	}

	for i, seq := range seqs {
		t.log.Logf("%s: seq[%d]: pkts=%d bytes=%d rptCnt=%d rptSz=%d usecDuration=%d usecDelay=%d",
			t.device, i, seq.packets, seq.bytes, seq.repeatCount,
			seq.repeatSize, seq.usecDuration, seq.usecDelay)
	}

	t.state.Store(stateRunning)
	close(t.started)

	// overHead tracks time already consumed by transmit calls that has
	// not yet been charged against a scheduled delay. Always <= 0.
	var overHead int64

	i := 0
	for {
		for i < len(seqs) {
			rptSz := int(seqs[i].repeatSize)
			rptCnt := seqs[i].repeatCount

			for j := int64(0); j < rptCnt; j++ {
				for k := 0; k < rptSz; k++ {
					seq := seqs[i+k]

					if err := t.transmitSequence(seq, &overHead); err != nil {
						if err == errStopRequested {
							t.log.Logf("%s: transmit stopped by request", t.device)
						} else {
							t.log.Logf("%s: transmit error: %v (overHead=%d)",
								t.device, err, overHead)
						}
						t.stopReq.Store(false)
						return
					}

					overHead = t.applyDelay(seq.usecDelay, overHead)
				}
			}

			i += rptSz
		}

		if t.returnToQIdx < 0 {
			return
		}

		overHead = t.applyDelay(t.loopDelay, overHead)
		i = t.returnToQIdx
	}
}

// applyDelay sleeps for usecDelay minus the accumulated overhead. A
// positive remainder is slept and resets the compensator; otherwise the
// non-positive remainder carries forward as the new overhead.
func (t *Transmitter) applyDelay(usecDelay, overHead int64) int64 {
	usecs := usecDelay + overHead
	if usecs > 0 {
		t.udelay(usecs)
		return 0
	}
	return usecs
}

// transmitSequence walks one sequence packet by packet. Before each send
// it sleeps for the timestamp delta to the previous packet, debited by
// the time the previous send actually took.
func (t *Transmitter) transmitSequence(seq *packetSequence, overHead *int64) error {
	cur := seq.cursor()

	prevSec, prevUsec, ok := cur.peekTs()
	if !ok {
		return nil
	}

	ovrStart := time.Now()
	for {
		tsSec, tsUsec, data, ok := cur.next()
		if !ok {
			break
		}

		usec := usecDelta(prevSec, prevUsec, tsSec, tsUsec)

		*overHead -= usecSince(ovrStart)
		usec += *overHead
		if usec > 0 {
			t.udelay(usec)
			*overHead = 0
		} else {
			*overHead = usec
		}

		prevSec, prevUsec = tsSec, tsUsec
		ovrStart = time.Now()

		if err := t.handle.WritePacketData(data); err != nil {
			return err
		}
		t.stats.AddTx(1, uint64(len(data)))

		if t.stopReq.Load() {
			return errStopRequested
		}
	}

	return nil
}

package port

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/samaelod/portgen/logging"
	"github.com/samaelod/portgen/types"
)

type direction int

const (
	directionRx direction = iota
	directionTx
)

func (d direction) String() string {
	if d == directionRx {
		return "rx"
	}
	return "tx"
}

const (
	monitorSnapLen = 64
	monitorTimeout = 1000 * time.Millisecond
)

// Monitor observes one direction of a port's traffic and bumps the
// matching counters. It only ever looks at packet headers.
//
// Two degradations are possible at open time and recorded as flags:
// isPromisc goes false when the interface refuses promiscuous mode, and
// isDirectional goes false when the packet layer cannot restrict the
// handle to one direction. A non-directional Tx monitor leaves the tx
// counters to the transmitter, and a non-directional Rx monitor counts
// self-transmitted traffic too.
type Monitor struct {
	device string
	dir    direction
	stats  *types.Stats
	log    *logging.Logger

	handle        Handle
	isPromisc     bool
	isDirectional bool

	stopReq atomic.Bool
	done    chan struct{}
}

func newMonitor(device string, dir direction, stats *types.Stats, log *logging.Logger) *Monitor {
	m := &Monitor{
		device:        device,
		dir:           dir,
		stats:         stats,
		log:           log,
		isPromisc:     true,
		isDirectional: true,
	}

	caps := openCaps{promisc: true, noLocal: true}
	h, err := openLive(device, monitorSnapLen, monitorTimeout, &caps, log)
	if err != nil {
		log.Logf("%s: error opening %s monitor: %v", device, dir, err)
		return m
	}
	m.isPromisc = caps.promisc

	pcapDir := pcap.DirectionIn
	if dir == directionTx {
		pcapDir = pcap.DirectionOut
	}
	if err := h.SetDirection(pcapDir); err != nil {
		log.Logf("%s: error setting direction(%s): %v", device, dir, err)
		m.isDirectional = false
	}

	m.handle = h
	return m
}

// Handle exposes the monitor's handle so the port can lend it to the
// transmitter. The monitor remains the owner.
func (m *Monitor) Handle() Handle {
	return m.handle
}

func (m *Monitor) IsPromiscuous() bool { return m.isPromisc }
func (m *Monitor) IsDirectional() bool { return m.isDirectional }

// Start begins the counting loop. No-op when the handle never opened.
func (m *Monitor) Start() {
	if m.handle == nil {
		return
	}
	m.done = make(chan struct{})
	go m.run()
}

func (m *Monitor) run() {
	defer close(m.done)

	for !m.stopReq.Load() {
		data, ci, err := m.handle.ReadPacketData()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if err == io.EOF {
				m.log.Logf("%s: %s monitor: handle closed", m.device, m.dir)
				return
			}
			m.log.Logf("%s: %s monitor: error reading packet: %v", m.device, m.dir, err)
			continue
		}
		_ = data

		switch m.dir {
		case directionRx:
			m.stats.AddRx(1, uint64(ci.Length))
		case directionTx:
			if m.isDirectional {
				m.stats.AddTx(1, uint64(ci.Length))
			}
		}
	}
}

// Stop requests the loop to end. The loop observes the request within
// one read timeout; use Wait to join.
func (m *Monitor) Stop() {
	m.stopReq.Store(true)
}

// Wait blocks until the loop has exited. Safe to call after Stop only.
func (m *Monitor) Wait() {
	if m.done != nil {
		<-m.done
	}
}

// close releases the handle. The port calls this after Wait.
func (m *Monitor) close() {
	if m.handle != nil {
		m.handle.Close()
		m.handle = nil
	}
}

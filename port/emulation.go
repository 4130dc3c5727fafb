package port

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/samaelod/portgen/logging"
)

const emulationTimeout = 100 * time.Millisecond

// The capture filter matches the control-plane protocols the device
// emulator speaks: ARP and ICMPv4/v6, tagged or untagged. The 'vlan'
// keyword in BPF shifts decoding offsets by 4 on every use, so the
// repeated identical clause is what actually matches deeper stacked
// tags. Best-effort up to four VLANs.
const emulationFilter = "arp or icmp or icmp6 or " +
	"(vlan and (arp or icmp or icmp6)) or " +
	"(vlan and (arp or icmp or icmp6)) or " +
	"(vlan and (arp or icmp or icmp6)) or " +
	"(vlan and (arp or icmp or icmp6))"

// PacketBuffer wraps one received control-plane packet. The underlying
// bytes belong to the capture layer and are valid only for the duration
// of DeviceManager.ReceivePacket; copy to retain.
type PacketBuffer struct {
	data []byte
}

func NewPacketBuffer(data []byte) *PacketBuffer {
	return &PacketBuffer{data: data}
}

func (b *PacketBuffer) Data() []byte { return b.data }
func (b *PacketBuffer) Length() int  { return len(b.data) }

// DeviceManager is the device-emulator seam. ReceivePacket is called
// synchronously from the receive loop; any reply it wants to send goes
// back through the port's SendEmulationPacket on the same call stack.
type DeviceManager interface {
	ReceivePacket(buf *PacketBuffer)
}

// EmulationTransceiver owns the single bidirectional handle used for
// control-plane traffic. Filter problems are logged and bypassed: an
// unfiltered receiver is still a working receiver.
type EmulationTransceiver struct {
	device string
	dm     DeviceManager
	log    *logging.Logger

	handle filterHandle

	state   atomic.Int32
	stopReq atomic.Bool
	started chan struct{}
	done    chan struct{}

	openFn func(device string) (filterHandle, error)
}

func NewEmulationTransceiver(device string, dm DeviceManager, log *logging.Logger) *EmulationTransceiver {
	x := &EmulationTransceiver{
		device: device,
		dm:     dm,
		log:    log,
	}
	x.state.Store(stateNotStarted)
	x.openFn = func(device string) (filterHandle, error) {
		// Promiscuous is required here: without it the handle misses
		// the emulated devices' MAC addresses. The pcap binding has no
		// no-local-capture option, so noLocal only takes part in the
		// usual loopback fallback.
		caps := openCaps{promisc: true, noLocal: true}
		h, err := openLive(device, captureSnapLen, emulationTimeout, &caps, log)
		if err != nil {
			return nil, err
		}
		if !caps.promisc {
			h.Close()
			return nil, fmt.Errorf("promiscuous mode unavailable")
		}
		return h, nil
	}
	return x
}

// Start brings up the receive loop and returns once its state is
// published.
func (x *EmulationTransceiver) Start() error {
	if x.IsRunning() {
		x.log.Logf("%s: emulation receive start requested but already running", x.device)
		return fmt.Errorf("%s: emulation transceiver already running", x.device)
	}

	x.state.Store(stateNotStarted)
	x.stopReq.Store(false)
	x.started = make(chan struct{})
	x.done = make(chan struct{})

	go x.run()

	select {
	case <-x.started:
	case <-x.done:
	}
	return nil
}

// Stop requests a cooperative stop and waits for the loop to exit. No-op
// when not running.
func (x *EmulationTransceiver) Stop() {
	if !x.IsRunning() {
		x.log.Logf("%s: emulation receive stop requested but not running", x.device)
		return
	}
	x.stopReq.Store(true)
	<-x.done
}

func (x *EmulationTransceiver) IsRunning() bool {
	return x.state.Load() == stateRunning
}

func (x *EmulationTransceiver) run() {
	defer func() {
		x.state.Store(stateFinished)
		close(x.done)
	}()

	handle, err := x.openFn(x.device)
	if err != nil {
		x.log.Logf("%s: unable to open emulation handle: %v - device emulation will not work",
			x.device, err)
		return
	}
	x.handle = handle

	if err := handle.SetBPFFilter(emulationFilter); err != nil {
		// Unfiltered still works, the device manager just sees more
		// traffic than it needs to.
		x.log.Logf("%s: error setting emulation filter: %v", x.device, err)
	}

	x.state.Store(stateRunning)
	close(x.started)

loop:
	for {
		data, _, err := handle.ReadPacketData()
		switch {
		case err == nil:
			// The buffer is only valid during this call; the device
			// manager copies what it needs to keep.
			x.dm.ReceivePacket(NewPacketBuffer(data))
		case isTimeout(err):
			// go back to the loop
		case err == io.EOF:
			x.log.Logf("%s: emulation handle closed: %v", x.device, err)
			break loop
		default:
			x.log.Logf("%s: emulation read error: %v", x.device, err)
		}

		if x.stopReq.Load() {
			x.log.Logf("%s: emulation receive stop observed", x.device)
			break loop
		}
	}

	handle.Close()
	x.handle = nil
	x.stopReq.Store(false)
}

// TransmitPacket injects a control-plane packet through the emulation
// handle. Called synchronously by the device manager from inside
// ReceivePacket; there is no queue.
func (x *EmulationTransceiver) TransmitPacket(buf *PacketBuffer) error {
	h := x.handle
	if h == nil {
		return fmt.Errorf("%s: emulation handle not open", x.device)
	}
	return h.WritePacketData(buf.Data())
}

// Package port implements the per-port packet engine: direction-aware
// traffic monitors, a paced packet transmitter, a filtered capture sink,
// and the control-plane transceiver for device emulation. Each worker
// runs its own goroutine around a blocking packet-layer loop and stops
// cooperatively.
package port

import (
	"strings"

	"github.com/google/gopacket/pcap"

	"github.com/samaelod/portgen/logging"
	"github.com/samaelod/portgen/types"
)

// Port aggregates the four workers sharing one interface and one stats
// record.
type Port struct {
	id     int
	device string

	name        string
	description string
	notes       string

	stats types.Stats
	log   *logging.Logger

	monitorRx   *Monitor
	monitorTx   *Monitor
	transmitter *Transmitter
	capturer    *Capturer
	emulXcvr    *EmulationTransceiver

	isUsable            bool
	hasExclusiveControl bool
}

// NewPort constructs the workers for device. The port is marked unusable
// when either monitor could not open a handle. A monitor without a handle
// never starts its loop; the transmitter, capturer and emulation
// transceiver are not gated by IsUsable.
func NewPort(id int, device string, dm DeviceManager, log *logging.Logger) *Port {
	p := &Port{
		id:       id,
		device:   device,
		name:     device,
		log:      log,
		isUsable: true,
	}

	p.monitorRx = newMonitor(device, directionRx, &p.stats, log)
	p.monitorTx = newMonitor(device, directionTx, &p.stats, log)
	p.transmitter = NewTransmitter(device, log)
	p.capturer = NewCapturer(device, log)
	p.emulXcvr = NewEmulationTransceiver(device, dm, log)

	if p.monitorRx.Handle() == nil || p.monitorTx.Handle() == nil {
		p.isUsable = false
	}

	if ifs, err := pcap.FindAllDevs(); err != nil {
		log.Logf("error in FindAllDevs: %v", err)
	} else {
		for _, iface := range ifs {
			if iface.Name == device {
				p.name = iface.Name
				p.description = iface.Description
				break
			}
		}
	}

	return p
}

// Init wires stats ownership and the shared handle, publishes the port's
// limitation notes, and starts the two monitors.
func (p *Port) Init() {
	if !p.monitorTx.IsDirectional() {
		p.transmitter.UseExternalStats(&p.stats)
	}

	if h := p.monitorRx.Handle(); h != nil {
		// Transmit on the Rx handle so self-emitted packets are seen by
		// the Rx monitor when direction restriction is unavailable.
		p.transmitter.SetHandle(h)
	}

	p.updateNotes()

	p.monitorRx.Start()
	p.monitorTx.Start()
}

// Close stops every worker, joins them, then releases the handles.
// Stopping before joining before closing matters: closing a handle under
// a blocked reader is how monitors get stuck.
func (p *Port) Close() {
	p.monitorRx.Stop()
	p.monitorTx.Stop()

	if p.emulXcvr.IsRunning() {
		p.emulXcvr.Stop()
	}
	if p.capturer.IsRunning() {
		p.capturer.Stop()
	}
	if p.transmitter.IsRunning() {
		p.transmitter.Stop()
	}

	p.monitorRx.Wait()
	p.monitorTx.Wait()

	p.transmitter.Close()
	p.monitorRx.close()
	p.monitorTx.close()
}

func (p *Port) updateNotes() {
	var notes []string

	if !p.monitorRx.IsPromiscuous() || !p.monitorTx.IsPromiscuous() {
		notes = append(notes, "non promiscuous mode")
	}

	if !p.monitorRx.IsDirectional() && !p.hasExclusiveControl {
		notes = append(notes,
			"rx frames/bytes: includes packets transmitted by others as well as self")
	}

	if !p.monitorTx.IsDirectional() && !p.hasExclusiveControl {
		notes = append(notes,
			"tx frames/bytes: only self-transmitted packets (tx by others NOT included)")
	}

	if len(notes) == 0 {
		p.notes = ""
		return
	}
	p.notes = "limitation(s): " + strings.Join(notes, "; ") +
		"; rx/tx rates are also subject to the above"
}

func (p *Port) ID() int                    { return p.id }
func (p *Port) Device() string             { return p.device }
func (p *Port) Name() string               { return p.name }
func (p *Port) Description() string        { return p.description }
func (p *Port) Notes() string              { return p.notes }
func (p *Port) IsUsable() bool             { return p.isUsable }
func (p *Port) Stats() types.StatsSnapshot { return p.stats.Snapshot() }
func (p *Port) Transmitter() *Transmitter  { return p.transmitter }
func (p *Port) Capturer() *Capturer        { return p.capturer }

// SetRateAccuracy selects the transmitter's pacing primitive.
func (p *Port) SetRateAccuracy(accuracy types.Accuracy) bool {
	return p.transmitter.SetRateAccuracy(accuracy)
}

func (p *Port) StartDeviceEmulation() error {
	return p.emulXcvr.Start()
}

func (p *Port) StopDeviceEmulation() {
	p.emulXcvr.Stop()
}

// SendEmulationPacket is the path by which the device manager replies to
// a received control-plane packet.
func (p *Port) SendEmulationPacket(buf *PacketBuffer) error {
	return p.emulXcvr.TransmitPacket(buf)
}

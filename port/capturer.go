package port

import (
	"bufio"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/portgen/logging"
)

const (
	captureSnapLen   = 65535
	captureTimeout   = 1000 * time.Millisecond
	captureBatchSize = 1000
	capturePollDelay = 500 * time.Millisecond
)

// captureHandle is what the capture loop needs from the packet layer.
type captureHandle interface {
	filterHandle
	LinkType() layers.LinkType
}

// Capturer streams packets matching a BPF filter into a pcap dump file.
// A filter that fails to compile or install is fatal to the session: the
// state goes straight to Finished and nothing is written.
type Capturer struct {
	device string
	log    *logging.Logger
	filter string

	capFile string

	state   atomic.Int32
	stopReq atomic.Bool
	started chan struct{}
	done    chan struct{}

	// openFn opens the live handle; tests substitute a fake.
	openFn func(device string) (captureHandle, error)
}

// NewCapturer creates the capturer and its temporary dump file. The file
// lives for the capturer's lifetime and is truncated at each session.
func NewCapturer(device string, log *logging.Logger) *Capturer {
	c := &Capturer{
		device: device,
		log:    log,
	}
	c.state.Store(stateNotStarted)
	c.openFn = func(device string) (captureHandle, error) {
		caps := openCaps{promisc: true}
		return openLive(device, captureSnapLen, captureTimeout, &caps, log)
	}

	f, err := os.CreateTemp("", "portgen-cap-*.pcap")
	if err != nil {
		log.Logf("%s: unable to create temp capture file: %v", device, err)
		return c
	}
	c.capFile = f.Name()
	f.Close()
	log.Logf("%s: capture file %s", device, c.capFile)

	return c
}

// CaptureFile is the path of the dump file; standard pcap format.
func (c *Capturer) CaptureFile() string {
	return c.capFile
}

// Start begins capturing packets matching filter. Returns once the
// worker has published Running (or already failed into Finished).
func (c *Capturer) Start(filter string) error {
	if c.IsRunning() {
		c.log.Logf("%s: capture start requested but already running", c.device)
		return fmt.Errorf("%s: capturer already running", c.device)
	}
	if c.capFile == "" {
		return fmt.Errorf("%s: no capture file", c.device)
	}

	c.filter = filter
	c.state.Store(stateNotStarted)
	c.stopReq.Store(false)
	c.started = make(chan struct{})
	c.done = make(chan struct{})

	go c.run()

	select {
	case <-c.started:
	case <-c.done:
	}
	return nil
}

// Stop requests the capture loop to end and waits for it, polling the
// way the loop itself is paced.
func (c *Capturer) Stop() {
	if !c.IsRunning() {
		c.log.Logf("%s: capture stop requested but not running", c.device)
		return
	}
	c.stopReq.Store(true)
	for c.IsRunning() {
		c.log.Logf("%s: capture stopping...", c.device)
		select {
		case <-c.done:
			return
		case <-time.After(capturePollDelay):
		}
	}
	<-c.done
}

func (c *Capturer) IsRunning() bool {
	return c.state.Load() == stateRunning
}

func (c *Capturer) run() {
	defer func() {
		c.state.Store(stateFinished)
		close(c.done)
	}()

	net, mask := lookupNet(c.device)
	c.log.Logf("%s: capture net=%08x mask=%08x", c.device, net, mask)

	handle, err := c.openFn(c.device)
	if err != nil {
		c.log.Logf("%s: error opening capture handle: %v", c.device, err)
		return
	}
	defer handle.Close()

	if err := handle.SetBPFFilter(c.filter); err != nil {
		c.log.Logf("%s: can't compile/apply filter %q: %v", c.device, c.filter, err)
		return
	}

	f, err := os.OpenFile(c.capFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		c.log.Logf("%s: can't open capture file: %v", c.device, err)
		return
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	defer bw.Flush()

	w := pcapgo.NewWriter(bw)
	if err := w.WriteFileHeader(captureSnapLen, handle.LinkType()); err != nil {
		c.log.Logf("%s: can't write capture file header: %v", c.device, err)
		return
	}

	c.state.Store(stateRunning)
	close(c.started)

	// Packets are processed in batches; each completed batch flushes the
	// dump and the loop goes again.
	looping := true
	for looping {
		n := 0
		for n < captureBatchSize {
			if c.stopReq.Load() {
				c.log.Logf("%s: capture stop observed", c.device)
				looping = false
				break
			}

			data, ci, err := handle.ReadPacketData()
			if err != nil {
				if isTimeout(err) {
					continue
				}
				c.log.Logf("%s: capture read error: %v", c.device, err)
				looping = false
				break
			}

			if err := w.WritePacket(ci, data); err != nil {
				c.log.Logf("%s: capture write error: %v", c.device, err)
				looping = false
				break
			}
			n++
		}
		bw.Flush()
	}

	c.stopReq.Store(false)
}

// lookupNet resolves the device's network and mask for filter
// compilation; zeroes on failure. The packet layer applies the netmask
// itself when installing a filter on a live handle, so this is only
// informational.
func lookupNet(device string) (net, mask uint32) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return 0, 0
	}
	for _, iface := range ifs {
		if iface.Name != device {
			continue
		}
		for _, addr := range iface.Addresses {
			ip4 := addr.IP.To4()
			if ip4 == nil || addr.Netmask == nil {
				continue
			}
			m := addr.Netmask
			if len(m) != 4 {
				continue
			}
			net = uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
			mask = uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
			return net & mask, mask
		}
	}
	return 0, 0
}

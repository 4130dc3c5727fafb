package port

import (
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/samaelod/portgen/logging"
)

// Handle is the slice of the live packet layer the workers need. It is
// satisfied by *pcap.Handle; tests substitute fakes.
type Handle interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	WritePacketData(data []byte) error
	Close()
}

// filterHandle adds what the capturer and the emulation transceiver need
// on top of a plain Handle.
type filterHandle interface {
	Handle
	SetBPFFilter(filter string) error
}

// openCaps describes which open-time capabilities are still being
// requested. The fallback loop drops them one at a time based on the
// error text the packet layer returns, so after openLive returns the
// struct records what was actually granted.
type openCaps struct {
	promisc bool
	noLocal bool // no-local-capture; never passed to pcapOpenLive, only dropped on a "loopback" error
}

// pcapOpenLive is swapped out by tests exercising the fallback chain.
var pcapOpenLive = pcap.OpenLive

// openLive opens a live handle for device, retrying with fewer
// capabilities when the error text points at one of them. The two axes
// are independent: a "promiscuous" failure drops promiscuous mode, a
// "loopback" failure drops no-local-capture.
func openLive(device string, snaplen int32, timeout time.Duration, caps *openCaps, log *logging.Logger) (*pcap.Handle, error) {
	for {
		h, err := pcapOpenLive(device, snaplen, caps.promisc, timeout)
		if err == nil {
			return h, nil
		}

		msg := err.Error()
		switch {
		case caps.promisc && strings.Contains(msg, "promiscuous"):
			log.Logf("%s: can't set promiscuous mode, trying non-promisc", device)
			caps.promisc = false
		case caps.noLocal && strings.Contains(msg, "loopback"):
			log.Logf("%s: can't set no local capture mode", device)
			caps.noLocal = false
		default:
			return nil, err
		}
	}
}

func isTimeout(err error) bool {
	return err == pcap.NextErrorTimeoutExpired
}

package port

import (
	"bytes"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
)

// recordingDeviceManager copies every buffer it is handed, honouring the
// borrow-only contract.
type recordingDeviceManager struct {
	mu       sync.Mutex
	received [][]byte

	// reply, when set, is injected back through the transceiver from
	// inside ReceivePacket, like a real device manager answering ARP.
	reply func(buf *PacketBuffer)
}

func (r *recordingDeviceManager) ReceivePacket(buf *PacketBuffer) {
	cp := make([]byte, buf.Length())
	copy(cp, buf.Data())
	r.mu.Lock()
	r.received = append(r.received, cp)
	r.mu.Unlock()
	if r.reply != nil {
		r.reply(buf)
	}
}

func (r *recordingDeviceManager) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

type fakeEmulationHandle struct {
	fakeHandle
	filterErr error
	filters   []string
	filterMu  sync.Mutex
}

func (f *fakeEmulationHandle) SetBPFFilter(filter string) error {
	f.filterMu.Lock()
	f.filters = append(f.filters, filter)
	f.filterMu.Unlock()
	return f.filterErr
}

func newTestTransceiver(dm DeviceManager, fh *fakeEmulationHandle) *EmulationTransceiver {
	x := NewEmulationTransceiver("fake0", dm, nil)
	x.openFn = func(device string) (filterHandle, error) {
		return fh, nil
	}
	return x
}

func TestEmulationDeliversPackets(t *testing.T) {
	dm := &recordingDeviceManager{}
	fh := &fakeEmulationHandle{}
	fh.queue = queuedPackets(3, 64)
	for i := range fh.queue {
		fh.queue[i].data[0] = byte(i + 1)
	}
	want := [][]byte{
		append([]byte{1}, make([]byte, monitorSnapLen-1)...),
		append([]byte{2}, make([]byte, monitorSnapLen-1)...),
		append([]byte{3}, make([]byte, monitorSnapLen-1)...),
	}

	x := newTestTransceiver(dm, fh)
	if err := x.Start(); err != nil {
		t.Fatal(err)
	}
	if !x.IsRunning() {
		t.Error("transceiver not running after start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for dm.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("device manager received nothing")
		}
		runtime.Gosched()
	}

	x.Stop()
	if x.IsRunning() {
		t.Error("transceiver running after stop")
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	for i, got := range dm.received {
		if !bytes.Equal(got, want[i]) {
			t.Errorf("received packet %d mismatch", i)
		}
	}

	fh.filterMu.Lock()
	if len(fh.filters) != 1 || fh.filters[0] != emulationFilter {
		t.Errorf("installed filters = %v", fh.filters)
	}
	fh.filterMu.Unlock()

	fh.mu.Lock()
	if !fh.closed {
		t.Error("handle not closed after stop")
	}
	fh.mu.Unlock()
}

func TestEmulationFilterFailureIsBypassed(t *testing.T) {
	dm := &recordingDeviceManager{}
	fh := &fakeEmulationHandle{filterErr: errors.New("offset kludge")}
	fh.queue = queuedPackets(2, 64)

	x := newTestTransceiver(dm, fh)
	if err := x.Start(); err != nil {
		t.Fatal(err)
	}
	if !x.IsRunning() {
		t.Fatal("filter failure must not stop the receiver")
	}

	deadline := time.Now().Add(5 * time.Second)
	for dm.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("packets not delivered on unfiltered handle")
		}
		runtime.Gosched()
	}

	x.Stop()
}

func TestEmulationSynchronousReply(t *testing.T) {
	fh := &fakeEmulationHandle{}
	fh.queue = queuedPackets(1, 64)

	var x *EmulationTransceiver
	dm := &recordingDeviceManager{}
	dm.reply = func(buf *PacketBuffer) {
		// Reply with the same bytes, the way an ARP responder would.
		if err := x.TransmitPacket(buf); err != nil {
			t.Errorf("reply transmit failed: %v", err)
		}
	}
	x = newTestTransceiver(dm, fh)

	if err := x.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for fh.writtenCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("no reply was transmitted")
		}
		runtime.Gosched()
	}

	x.Stop()

	fh.mu.Lock()
	defer fh.mu.Unlock()
	if len(fh.written) != 1 || len(fh.written[0]) != monitorSnapLen {
		t.Errorf("reply = %d packets, want 1 of %d bytes", len(fh.written), monitorSnapLen)
	}
}

func TestEmulationTransmitWithoutHandle(t *testing.T) {
	dm := &recordingDeviceManager{}
	x := NewEmulationTransceiver("fake0", dm, nil)

	if err := x.TransmitPacket(NewPacketBuffer([]byte{1, 2, 3})); err == nil {
		t.Error("transmit succeeded without an open handle")
	}
}

func TestEmulationOpenFailure(t *testing.T) {
	dm := &recordingDeviceManager{}
	x := NewEmulationTransceiver("fake0", dm, nil)
	x.openFn = func(device string) (filterHandle, error) {
		return nil, errors.New("promiscuous mode unavailable")
	}

	if err := x.Start(); err != nil {
		t.Fatal(err)
	}
	if x.IsRunning() {
		t.Error("transceiver running after open failure")
	}
}

package port

import (
	"errors"
	"testing"
	"time"

	"github.com/google/gopacket/pcap"
)

// swapOpenLive installs a fake raw open for the duration of one test.
func swapOpenLive(t *testing.T, fn func(device string, snaplen int32, promisc bool, timeout time.Duration) (*pcap.Handle, error)) {
	t.Helper()
	orig := pcapOpenLive
	pcapOpenLive = fn
	t.Cleanup(func() { pcapOpenLive = orig })
}

func TestOpenLivePromiscFallback(t *testing.T) {
	var attempts []bool
	swapOpenLive(t, func(device string, snaplen int32, promisc bool, timeout time.Duration) (*pcap.Handle, error) {
		attempts = append(attempts, promisc)
		if promisc {
			return nil, errors.New("failed to set hardware filter to promiscuous mode")
		}
		// A nil handle with a nil error is fine for this test; the
		// caller only looks at the error.
		return nil, nil
	})

	caps := openCaps{promisc: true, noLocal: true}
	_, err := openLive("fake0", 64, time.Second, &caps, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(attempts) != 2 || attempts[0] != true || attempts[1] != false {
		t.Errorf("open attempts (promisc) = %v, want [true false]", attempts)
	}
	if caps.promisc {
		t.Error("caps.promisc still set after fallback")
	}
	if !caps.noLocal {
		t.Error("caps.noLocal dropped without a loopback error")
	}
}

func TestOpenLiveLoopbackFallback(t *testing.T) {
	calls := 0
	swapOpenLive(t, func(device string, snaplen int32, promisc bool, timeout time.Duration) (*pcap.Handle, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("local capture not supported on loopback device")
		}
		return nil, nil
	})

	caps := openCaps{promisc: true, noLocal: true}
	_, err := openLive("lo", 64, time.Second, &caps, nil)
	if err != nil {
		t.Fatal(err)
	}

	if caps.noLocal {
		t.Error("caps.noLocal still set after loopback fallback")
	}
	if !caps.promisc {
		t.Error("caps.promisc dropped without a promiscuous error")
	}
}

func TestOpenLiveBothFallbacks(t *testing.T) {
	calls := 0
	swapOpenLive(t, func(device string, snaplen int32, promisc bool, timeout time.Duration) (*pcap.Handle, error) {
		calls++
		switch calls {
		case 1:
			return nil, errors.New("promiscuous mode refused")
		case 2:
			return nil, errors.New("loopback interface: no local capture")
		default:
			return nil, nil
		}
	})

	caps := openCaps{promisc: true, noLocal: true}
	if _, err := openLive("fake0", 64, time.Second, &caps, nil); err != nil {
		t.Fatal(err)
	}

	if caps.promisc || caps.noLocal {
		t.Errorf("caps = %+v after double fallback, want both false", caps)
	}
	if calls != 3 {
		t.Errorf("open attempted %d times, want 3", calls)
	}
}

func TestOpenLiveHardFailure(t *testing.T) {
	swapOpenLive(t, func(device string, snaplen int32, promisc bool, timeout time.Duration) (*pcap.Handle, error) {
		return nil, errors.New("no such device")
	})

	caps := openCaps{promisc: true, noLocal: true}
	if _, err := openLive("fake0", 64, time.Second, &caps, nil); err == nil {
		t.Fatal("openLive succeeded against a hard failure")
	}
}

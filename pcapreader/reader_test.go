package pcapreader_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/portgen/pcapreader"
)

func writeTestPcap(t *testing.T, pkts [][]byte, base time.Time, gap time.Duration) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}

	for i, p := range pkts {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * gap),
			CaptureLength: len(p),
			Length:        len(p),
		}
		if err := w.WritePacket(ci, p); err != nil {
			t.Fatal(err)
		}
	}

	return path
}

func TestReadRecords(t *testing.T) {
	pkts := [][]byte{
		bytes.Repeat([]byte{0x11}, 60),
		bytes.Repeat([]byte{0x22}, 128),
		bytes.Repeat([]byte{0x33}, 1500),
	}
	base := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	path := writeTestPcap(t, pkts, base, 10*time.Millisecond)

	records, linkType, err := pcapreader.ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}

	if linkType != layers.LinkTypeEthernet {
		t.Errorf("linkType = %v, want Ethernet", linkType)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	for i, r := range records {
		if !bytes.Equal(r.Data, pkts[i]) {
			t.Errorf("record %d data mismatch", i)
		}
		want := base.Add(time.Duration(i) * 10 * time.Millisecond)
		if r.TsSec != want.Unix() || r.TsNsec != int64(want.Nanosecond()) {
			t.Errorf("record %d ts = (%d,%d), want (%d,%d)",
				i, r.TsSec, r.TsNsec, want.Unix(), want.Nanosecond())
		}
	}

	// deltas are what the transmitter replays; make sure they survived
	d := (records[1].TsSec-records[0].TsSec)*1e9 + records[1].TsNsec - records[0].TsNsec
	if d != 10_000_000 {
		t.Errorf("inter-record delta = %d ns, want 10ms", d)
	}
}

func TestReadRecordsEmptyFile(t *testing.T) {
	path := writeTestPcap(t, nil, time.Now(), 0)

	records, _, err := pcapreader.ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records from empty capture", len(records))
	}
}

func TestReadRecordsMissingFile(t *testing.T) {
	if _, _, err := pcapreader.ReadRecords(filepath.Join(t.TempDir(), "nope.pcap")); err == nil {
		t.Error("ReadRecords accepted a missing file")
	}
}

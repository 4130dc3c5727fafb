// Package pcapreader loads capture files (pcap or pcapng) into replay
// records for the transmitter.
package pcapreader

import (
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"

	"github.com/samaelod/portgen/types"
)

type packetSource interface {
	LinkType() layers.LinkType
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
}

func detectFormat(path string) (format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 8)
	n, err := file.Read(header)
	if err != nil || n < 4 {
		return "pcap", nil // Default to pcap
	}

	magic := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24

	// pcapng Section Header Block
	if magic == 0x0A0D0D0A {
		return "pcapng", nil
	}

	// classic pcap, either endianness, usec or nsec resolution
	if magic == 0xA1B2C3D4 || magic == 0xD4C3B2A1 || magic == 0xA1B23C4D || magic == 0x4D3CB2A1 {
		return "pcap", nil
	}

	return "pcap", nil
}

type pcapSource struct {
	handle *pcap.Handle
}

func (p *pcapSource) LinkType() layers.LinkType {
	return p.handle.LinkType()
}

func (p *pcapSource) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	return p.handle.ReadPacketData()
}

type pcapngSource struct {
	reader *pcapgo.NgReader
	file   *os.File
}

func (p *pcapngSource) LinkType() layers.LinkType {
	return p.reader.LinkType()
}

func (p *pcapngSource) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	return p.reader.ReadPacketData()
}

func openPacketSource(path string) (packetSource, func(), error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	if format == "pcapng" {
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		reader, err := pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		src := &pcapngSource{reader: reader, file: file}
		return src, func() { file.Close() }, nil
	}

	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, nil, err
	}
	src := &pcapSource{handle: handle}
	return src, func() { handle.Close() }, nil
}

// ReadRecords reads every packet of a capture file, preserving the
// original timestamps so a replay reproduces the file's pacing. The
// file's link type is returned for display.
func ReadRecords(path string) ([]types.Record, layers.LinkType, error) {
	source, closeFn, err := openPacketSource(path)
	if err != nil {
		return nil, 0, err
	}
	defer closeFn()

	var records []types.Record
	for {
		data, ci, err := source.ReadPacketData()
		if err != nil {
			// EOF or a truncated trailer both just end the file
			break
		}

		pkt := make([]byte, len(data))
		copy(pkt, data)

		ts := ci.Timestamp
		records = append(records, types.Record{
			TsSec:  ts.Unix(),
			TsNsec: int64(ts.Nanosecond()),
			Data:   pkt,
		})
	}

	return records, source.LinkType(), nil
}

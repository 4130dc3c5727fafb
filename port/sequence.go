package port

import (
	"encoding/binary"
	"errors"
)

// Packets are stored back to back in a fixed-capacity buffer, each
// prefixed by a 16-byte header: tsSec, tsUsec, caplen, len (all uint32,
// little endian). The layout mirrors a send queue so one sequence can be
// walked without touching any other allocation.
const (
	pktHdrSize = 16

	// seqBufSize is the fixed capacity of one sequence buffer.
	seqBufSize = 1 << 20
)

var errSequenceFull = errors.New("packet sequence buffer full")

// packetSequence is a bounded run of packets with per-packet timestamps
// plus the delay to observe after the run. repeatCount/repeatSize default
// to 1; only the first sequence of a repeat block carries the block's
// size and count.
type packetSequence struct {
	buf []byte

	packets      int64
	bytes        int64
	usecDuration int64 // sum of inter-packet deltas within the sequence
	usecDelay    int64 // delay after the sequence
	repeatCount  int64
	repeatSize   int64

	lastTsSec  uint32
	lastTsUsec uint32
}

func newPacketSequence() *packetSequence {
	return &packetSequence{
		buf:         make([]byte, 0, seqBufSize),
		repeatCount: 1,
		repeatSize:  1,
	}
}

func (s *packetSequence) hasFreeSpace(n int) bool {
	return cap(s.buf)-len(s.buf) >= n
}

// appendPacket adds one record. Fails cleanly when the remaining space is
// insufficient; the caller then finalizes this sequence and allocates a
// successor.
func (s *packetSequence) appendPacket(tsSec, tsUsec uint32, data []byte) error {
	if !s.hasFreeSpace(pktHdrSize + len(data)) {
		return errSequenceFull
	}

	if s.packets > 0 {
		s.usecDuration += usecDelta(s.lastTsSec, s.lastTsUsec, tsSec, tsUsec)
	}

	var hdr [pktHdrSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], tsSec)
	binary.LittleEndian.PutUint32(hdr[4:8], tsUsec)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(data)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(data)))
	s.buf = append(s.buf, hdr[:]...)
	s.buf = append(s.buf, data...)

	s.packets++
	s.bytes += int64(len(data))
	s.lastTsSec = tsSec
	s.lastTsUsec = tsUsec
	return nil
}

// usecDelta is the signed microsecond difference between two packet
// timestamps.
func usecDelta(fromSec, fromUsec, toSec, toUsec uint32) int64 {
	return (int64(toSec)-int64(fromSec))*1e6 + int64(toUsec) - int64(fromUsec)
}

// seqCursor walks a sequence's records in emission order.
type seqCursor struct {
	buf []byte
	off int
}

func (s *packetSequence) cursor() seqCursor {
	return seqCursor{buf: s.buf}
}

// next returns the next record. The returned data aliases the sequence
// buffer and must not be retained past the sequence's lifetime.
func (c *seqCursor) next() (tsSec, tsUsec uint32, data []byte, ok bool) {
	if c.off+pktHdrSize > len(c.buf) {
		return 0, 0, nil, false
	}
	hdr := c.buf[c.off : c.off+pktHdrSize]
	tsSec = binary.LittleEndian.Uint32(hdr[0:4])
	tsUsec = binary.LittleEndian.Uint32(hdr[4:8])
	caplen := int(binary.LittleEndian.Uint32(hdr[8:12]))
	c.off += pktHdrSize
	if c.off+caplen > len(c.buf) {
		return 0, 0, nil, false
	}
	data = c.buf[c.off : c.off+caplen]
	c.off += caplen
	return tsSec, tsUsec, data, true
}

// peekTs returns the first record's timestamp without advancing.
func (c *seqCursor) peekTs() (tsSec, tsUsec uint32, ok bool) {
	if c.off+pktHdrSize > len(c.buf) {
		return 0, 0, false
	}
	hdr := c.buf[c.off : c.off+pktHdrSize]
	return binary.LittleEndian.Uint32(hdr[0:4]), binary.LittleEndian.Uint32(hdr[4:8]), true
}

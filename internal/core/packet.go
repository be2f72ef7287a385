// Package core defines core data structures with zero external dependencies.
package core

import "time"

// ByteOrder of a capture file, detected from its magic number.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (b ByteOrder) String() string {
	if b == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// GlobalHeader is the validated 24-byte pcap file header.
type GlobalHeader struct {
	ByteOrder    ByteOrder
	Nanosecond   bool // true when sub-second fields are nanoseconds, otherwise microseconds
	VersionMajor uint16
	VersionMinor uint16
	SnapLen      uint32
	LinkType     uint32 // FCS bits masked off
}

// RawRecordHeader is the 16-byte per-record header as stored in the file.
type RawRecordHeader struct {
	TsSec      uint32
	TsFrac     uint32 // microseconds or nanoseconds depending on GlobalHeader
	CaptureLen uint32
	OrigLen    uint32
}

// PacketRecord is one decoded record. Data aliases the reader's buffer and is
// only valid until the next record is read.
type PacketRecord struct {
	Number     uint64    // 0-based position in the file
	Timestamp  time.Time // normalized to nanosecond resolution
	CaptureLen uint32
	OrigLen    uint32
	Truncated  bool // CaptureLen exceeded the declared snap length
	Data       []byte
}

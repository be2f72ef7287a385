// Package pcapfile reads classic pcap capture files record by record.
package pcapfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapscan/internal/core"
)

const (
	globalHeaderLen = 24
	recordHeaderLen = 16

	magicMicros     = 0xa1b2c3d4
	magicNanos      = 0xa1b23c4d
	magicMicrosSwap = 0xd4c3b2a1
	magicNanosSwap  = 0x4d3cb2a1
	magicPcapNG     = 0x0a0d0d0a

	// Writers that leave snaplen at 0 mean "no limit"; use the libpcap maximum.
	defaultSnapLen = 262144
	linkTypeMask   = 0x0FFFFFFF

	// Allocation ceiling for a single record when the file size is unknown.
	maxUnsizedRecordLen = 256 << 20

	readBufferSize = 64 << 10
)

// Reader is a forward-only, offset-tracking reader over one capture file.
type Reader struct {
	closer io.Closer
	r      *bufio.Reader
	order  binary.ByteOrder
	header core.GlobalHeader

	size    int64 // total bytes, -1 when unknown
	offset  int64
	records uint64 // record headers consumed
	buf     []byte
}

// Open opens path and validates its global header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat pcap file %s: %w", path, err)
	}
	rd, err := NewReader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

// NewReader validates the global header read from r. size is the total
// stream length in bytes, or -1 if unknown.
func NewReader(r io.Reader, size int64) (*Reader, error) {
	rd := &Reader{
		r:    bufio.NewReaderSize(r, readBufferSize),
		size: size,
	}
	if err := rd.readGlobalHeader(); err != nil {
		return nil, err
	}
	return rd, nil
}

func (rd *Reader) readGlobalHeader() error {
	var hdr [globalHeaderLen]byte
	n, err := io.ReadFull(rd.r, hdr[:])
	rd.offset += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: global header needs %d bytes, got %d", core.ErrFormat, globalHeaderLen, n)
		}
		return fmt.Errorf("failed to read global header: %w", err)
	}

	var h core.GlobalHeader
	switch magic := binary.LittleEndian.Uint32(hdr[0:4]); magic {
	case magicMicros:
		rd.order, h.ByteOrder = binary.LittleEndian, core.LittleEndian
	case magicNanos:
		rd.order, h.ByteOrder, h.Nanosecond = binary.LittleEndian, core.LittleEndian, true
	case magicMicrosSwap:
		rd.order, h.ByteOrder = binary.BigEndian, core.BigEndian
	case magicNanosSwap:
		rd.order, h.ByteOrder, h.Nanosecond = binary.BigEndian, core.BigEndian, true
	case magicPcapNG:
		return fmt.Errorf("%w: pcapng is not supported", core.ErrFormat)
	default:
		return fmt.Errorf("%w: unknown magic 0x%08x", core.ErrFormat, magic)
	}

	h.VersionMajor = rd.order.Uint16(hdr[4:6])
	h.VersionMinor = rd.order.Uint16(hdr[6:8])
	if h.VersionMajor != 2 {
		return fmt.Errorf("%w: unsupported version %d.%d", core.ErrFormat, h.VersionMajor, h.VersionMinor)
	}
	// bytes 8..16 are thiszone and sigfigs, always zero in practice
	h.SnapLen = rd.order.Uint32(hdr[16:20])
	if h.SnapLen == 0 {
		h.SnapLen = defaultSnapLen
	}
	h.LinkType = rd.order.Uint32(hdr[20:24]) & linkTypeMask

	rd.header = h
	return nil
}

// Header returns the validated global header.
func (rd *Reader) Header() core.GlobalHeader { return rd.header }

// LinkType returns the link-layer type of every record in the file.
func (rd *Reader) LinkType() uint32 { return rd.header.LinkType }

// Offset returns the number of bytes consumed so far.
func (rd *Reader) Offset() int64 { return rd.offset }

// ReadRecordHeader reads the next 16-byte record header. It returns io.EOF
// when the stream ends exactly on a record boundary.
func (rd *Reader) ReadRecordHeader() (core.RawRecordHeader, error) {
	var hdr [recordHeaderLen]byte
	start := rd.offset
	n, err := io.ReadFull(rd.r, hdr[:])
	rd.offset += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.RawRecordHeader{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return core.RawRecordHeader{}, &core.TruncatedRecordError{
				Record: rd.records,
				Offset: start,
				Want:   recordHeaderLen,
				Have:   int64(n),
				Header: true,
			}
		}
		return core.RawRecordHeader{}, fmt.Errorf("failed to read record %d header: %w", rd.records, err)
	}
	rd.records++

	return core.RawRecordHeader{
		TsSec:      rd.order.Uint32(hdr[0:4]),
		TsFrac:     rd.order.Uint32(hdr[4:8]),
		CaptureLen: rd.order.Uint32(hdr[8:12]),
		OrigLen:    rd.order.Uint32(hdr[12:16]),
	}, nil
}

// ReadPayload reads exactly n bytes. The returned slice is reused by the
// next call.
func (rd *Reader) ReadPayload(n uint32) ([]byte, error) {
	record := rd.records - 1
	want := int64(n)
	if rd.size >= 0 {
		if left := rd.size - rd.offset; want > left {
			return nil, &core.TruncatedRecordError{Record: record, Offset: rd.offset, Want: want, Have: left}
		}
	} else if want > maxUnsizedRecordLen {
		return nil, fmt.Errorf("%w: record %d captured length %d exceeds %d", core.ErrFormat, record, n, maxUnsizedRecordLen)
	}

	if cap(rd.buf) < int(n) {
		rd.buf = make([]byte, n)
	}
	buf := rd.buf[:n]

	start := rd.offset
	got, err := io.ReadFull(rd.r, buf)
	rd.offset += int64(got)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &core.TruncatedRecordError{Record: record, Offset: start, Want: want, Have: int64(got)}
		}
		return nil, fmt.Errorf("failed to read record %d payload: %w", record, err)
	}
	return buf, nil
}

// Close releases the underlying file. It is safe to call more than once.
func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	err := rd.closer.Close()
	rd.closer = nil
	return err
}

// LinkTypeName names a pcap link type, e.g. "Ethernet".
func LinkTypeName(lt uint32) string {
	if lt <= 0xff {
		return layers.LinkType(lt).String()
	}
	return fmt.Sprintf("LinkType(%d)", lt)
}

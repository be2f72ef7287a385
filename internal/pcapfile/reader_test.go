package pcapfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/pcaptest"
)

func TestOpenScenarioFile(t *testing.T) {
	pkts := pcaptest.Scenario(t)
	path := pcaptest.WriteFile(t, t.TempDir(), pkts...)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	h := r.Header()
	assert.Equal(t, core.LittleEndian, h.ByteOrder)
	assert.False(t, h.Nanosecond)
	assert.Equal(t, uint16(2), h.VersionMajor)
	assert.Equal(t, uint32(65535), h.SnapLen)
	assert.Equal(t, uint32(1), r.LinkType())
	assert.Equal(t, "Ethernet", LinkTypeName(r.LinkType()))

	d := NewRecordDecoder(r)
	for i, want := range pkts {
		rec, err := d.Next()
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, uint64(i), rec.Number)
		assert.True(t, want.Timestamp.Equal(rec.Timestamp), "record %d timestamp %v", i, rec.Timestamp)
		assert.Equal(t, uint32(len(want.Data)), rec.CaptureLen)
		assert.Equal(t, want.Data, rec.Data)
		assert.False(t, rec.Truncated)
	}
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGlobalHeaderVariants(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	data := []byte{1, 2, 3, 4}

	tests := []struct {
		name      string
		order     binary.ByteOrder
		nanos     bool
		wantOrder core.ByteOrder
		wantTime  time.Time
	}{
		{"little endian micros", binary.LittleEndian, false, core.LittleEndian, ts.Truncate(time.Microsecond)},
		{"big endian micros", binary.BigEndian, false, core.BigEndian, ts.Truncate(time.Microsecond)},
		{"little endian nanos", binary.LittleEndian, true, core.LittleEndian, ts},
		{"big endian nanos", binary.BigEndian, true, core.BigEndian, ts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := pcaptest.NewRawFile(tt.order, tt.nanos, 1500, 1).Record(ts, 4, 60, data).Bytes()
			r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
			require.NoError(t, err)

			assert.Equal(t, tt.wantOrder, r.Header().ByteOrder)
			assert.Equal(t, tt.nanos, r.Header().Nanosecond)
			assert.Equal(t, uint32(1500), r.Header().SnapLen)

			rec, err := NewRecordDecoder(r).Next()
			require.NoError(t, err)
			assert.True(t, tt.wantTime.Equal(rec.Timestamp), "got %v want %v", rec.Timestamp, tt.wantTime)
			assert.Equal(t, uint32(4), rec.CaptureLen)
			assert.Equal(t, uint32(60), rec.OrigLen)
			assert.Equal(t, data, rec.Data)
		})
	}
}

func TestOpenFormatErrors(t *testing.T) {
	dir := t.TempDir()
	valid := pcaptest.NewRawFile(binary.LittleEndian, false, 65535, 1).Bytes()

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badVersion[4:6], 3)

	pcapng := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(pcapng[0:4], 0x0a0d0d0a)

	tests := []struct {
		name    string
		content []byte
		msg     string
	}{
		{"empty file", nil, "global header"},
		{"short header", valid[:10], "global header"},
		{"unknown magic", append([]byte{0xde, 0xad, 0xbe, 0xef}, valid[4:]...), "unknown magic"},
		{"pcapng", pcapng, "pcapng"},
		{"bad version", badVersion, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := pcaptest.WriteBytes(t, dir, "f.pcap", tt.content)
			_, err := Open(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrFormat)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("does-not-exist.pcap")
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrFormat))
}

func TestHeaderOnlyFile(t *testing.T) {
	path := pcaptest.NewRawFile(binary.LittleEndian, false, 65535, 1).Write(t, t.TempDir(), "empty.pcap")
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = NewRecordDecoder(r).Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestZeroSnapLenDefault(t *testing.T) {
	raw := pcaptest.NewRawFile(binary.LittleEndian, false, 0, 1).Bytes()
	r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Equal(t, uint32(defaultSnapLen), r.Header().SnapLen)
}

func TestLinkTypeFCSBitsMasked(t *testing.T) {
	raw := pcaptest.NewRawFile(binary.LittleEndian, false, 65535, 0x10000000|1).Bytes()
	r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), r.LinkType())
}

func TestTruncatedRecordHeader(t *testing.T) {
	raw := pcaptest.NewRawFile(binary.LittleEndian, false, 65535, 1).
		Record(pcaptest.BaseTime, 4, 4, []byte{1, 2, 3, 4}).
		Raw([]byte{0, 1, 2, 3, 4, 5}).
		Bytes()

	for _, size := range []int64{int64(len(raw)), -1} {
		r, err := NewReader(bytes.NewReader(raw), size)
		require.NoError(t, err)
		d := NewRecordDecoder(r)

		_, err = d.Next()
		require.NoError(t, err)

		_, err = d.Next()
		var tre *core.TruncatedRecordError
		require.ErrorAs(t, err, &tre)
		assert.True(t, tre.Header)
		assert.Equal(t, uint64(1), tre.Record)
		assert.Equal(t, int64(6), tre.Have)
		assert.Equal(t, int64(24+16+4), tre.Offset)
	}
}

func TestTruncatedRecordPayload(t *testing.T) {
	raw := pcaptest.NewRawFile(binary.LittleEndian, false, 65535, 1).
		Record(pcaptest.BaseTime, 100, 100, []byte{1, 2, 3}).
		Bytes()

	t.Run("known size", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
		require.NoError(t, err)
		_, err = NewRecordDecoder(r).Next()

		var tre *core.TruncatedRecordError
		require.ErrorAs(t, err, &tre)
		assert.False(t, tre.Header)
		assert.Equal(t, int64(100), tre.Want)
		assert.Equal(t, int64(3), tre.Have)
	})

	t.Run("unknown size", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader(raw), -1)
		require.NoError(t, err)
		_, err = NewRecordDecoder(r).Next()
		assert.ErrorIs(t, err, core.ErrTruncatedRecord)
	})
}

func TestOversizedRecordIsFlagged(t *testing.T) {
	big := bytes.Repeat([]byte{0xab}, 200)
	raw := pcaptest.NewRawFile(binary.LittleEndian, false, 128, 1).
		Record(pcaptest.BaseTime, 200, 200, big).
		Record(pcaptest.BaseTime, 4, 4, []byte{9, 9, 9, 9}).
		Bytes()

	r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	d := NewRecordDecoder(r)

	rec, err := d.Next()
	require.NoError(t, err)
	assert.True(t, rec.Truncated)
	assert.Len(t, rec.Data, 200)

	rec, err = d.Next()
	require.NoError(t, err)
	assert.False(t, rec.Truncated)
	assert.Equal(t, []byte{9, 9, 9, 9}, rec.Data)
	assert.Equal(t, uint64(1), rec.Number)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCloseIdempotent(t *testing.T) {
	path := pcaptest.WriteFile(t, t.TempDir())
	r, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

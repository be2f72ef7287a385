package pcapfile

import (
	"time"

	"firestige.xyz/pcapscan/internal/core"
)

// RecordDecoder yields packet records from a Reader in file order.
type RecordDecoder struct {
	r    *Reader
	next uint64
}

// NewRecordDecoder wraps r.
func NewRecordDecoder(r *Reader) *RecordDecoder {
	return &RecordDecoder{r: r}
}

// Next returns the next record, io.EOF at a clean end of file, or a
// *core.TruncatedRecordError when the file stops inside a record.
//
// A captured length above the snap length is not fatal: the record is
// flagged Truncated and exactly the declared number of bytes is consumed so
// the following record boundary stays aligned.
func (d *RecordDecoder) Next() (core.PacketRecord, error) {
	hdr, err := d.r.ReadRecordHeader()
	if err != nil {
		return core.PacketRecord{}, err
	}
	data, err := d.r.ReadPayload(hdr.CaptureLen)
	if err != nil {
		return core.PacketRecord{}, err
	}

	rec := core.PacketRecord{
		Number:     d.next,
		Timestamp:  d.timestamp(hdr),
		CaptureLen: hdr.CaptureLen,
		OrigLen:    hdr.OrigLen,
		Truncated:  hdr.CaptureLen > d.r.header.SnapLen,
		Data:       data,
	}
	d.next++
	return rec, nil
}

func (d *RecordDecoder) timestamp(hdr core.RawRecordHeader) time.Time {
	nsec := int64(hdr.TsFrac)
	if !d.r.header.Nanosecond {
		nsec *= int64(time.Microsecond)
	}
	return time.Unix(int64(hdr.TsSec), nsec).UTC()
}

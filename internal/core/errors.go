// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// Capture file errors
	ErrFormat          = errors.New("pcapscan: invalid pcap format")
	ErrTruncatedRecord = errors.New("pcapscan: truncated pcap record")

	// Packet decoding errors, internal to the decoder
	ErrPacketTooShort   = errors.New("pcapscan: packet too short")
	ErrUnsupportedProto = errors.New("pcapscan: unsupported protocol")

	// Session errors
	ErrSessionClosed     = errors.New("pcapscan: session closed")
	ErrAlreadyConfigured = errors.New("pcapscan: session already configured")
	ErrUnknownColumn     = errors.New("pcapscan: unknown column")
	ErrInvalidBatchSize  = errors.New("pcapscan: invalid batch size")
	ErrInvalidRowLimit   = errors.New("pcapscan: invalid row limit")

	// Predicate errors
	ErrUnsupportedPredicate = errors.New("pcapscan: predicate not translatable")
	ErrInvalidPredicate     = errors.New("pcapscan: invalid predicate")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcapscan: invalid configuration")
)

// TruncatedRecordError reports a capture file that ends inside a record.
type TruncatedRecordError struct {
	Record uint64 // index of the record being read
	Offset int64  // file offset where the short read started
	Want   int64  // bytes required
	Have   int64  // bytes left in the file
	Header bool   // true if the record header itself was cut
}

func (e *TruncatedRecordError) Error() string {
	part := "payload"
	if e.Header {
		part = "header"
	}
	return fmt.Sprintf("%v: record %d %s at offset %d needs %d bytes, %d left",
		ErrTruncatedRecord, e.Record, part, e.Offset, e.Want, e.Have)
}

func (e *TruncatedRecordError) Unwrap() error { return ErrTruncatedRecord }

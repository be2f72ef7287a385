// Package decoder implements L2-L4 protocol stack decoding into flat,
// nullable fields.
package decoder

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapscan/internal/core"
)

// Decoder decodes packet records into fields.
type Decoder interface {
	Decode(rec core.PacketRecord) core.Fields
}

// StandardDecoder decodes Ethernet captures through the fixed
// Ethernet -> {ARP | IPv4 -> {TCP | UDP -> DNS | ICMP}} chain.
type StandardDecoder struct {
	linkType uint32
}

// NewStandardDecoder creates a decoder for records of the given link type.
func NewStandardDecoder(linkType uint32) *StandardDecoder {
	return &StandardDecoder{linkType: linkType}
}

// Decode fills the record metadata and the decoded layer fields.
func (d *StandardDecoder) Decode(rec core.PacketRecord) core.Fields {
	f := Decode(rec.Data, d.linkType)
	f.PacketNumber = rec.Number
	f.Timestamp = rec.Timestamp
	f.CapturedLength = rec.CaptureLen
	f.OriginalLength = rec.OrigLen
	f.Truncated = rec.Truncated
	if rec.Truncated {
		f.Anomalies |= core.AnomalyOversizedRecord
	}
	return f
}

// Decode never fails: a layer that cannot be decoded leaves its fields and
// those of every inner layer null. Only record-independent fields are set;
// Data aliases data.
func Decode(data []byte, linkType uint32) core.Fields {
	f := core.Fields{Data: data}
	if linkType != uint32(layers.LinkTypeEthernet) {
		return f
	}

	payload, err := decodeEthernet(&f, data)
	if err != nil {
		f.Anomalies |= core.AnomalyShortEthernet
		return f
	}
	f.PayloadLength = core.Some(uint32(len(payload)))

	switch f.EtherType.Value {
	case etherTypeARP:
		rest, err := decodeARP(&f, payload)
		if err != nil {
			f.Anomalies |= core.AnomalyShortARP
			return f
		}
		f.PayloadLength = core.Some(uint32(len(rest)))

	case etherTypeIPv4, etherTypeIPv6:
		decodeNetwork(&f, payload)
	}
	return f
}

func decodeNetwork(f *core.Fields, data []byte) {
	switch ipVersion(data) {
	case 4:
		payload, fragment, err := decodeIPv4(f, data)
		if err != nil {
			f.Anomalies |= core.AnomalyShortIP
			if err == errBadHeaderLen {
				f.PayloadLength = core.Opt[uint32]{}
			}
			return
		}
		f.PayloadLength = core.Some(uint32(len(payload)))
		if fragment {
			return
		}
		decodeTransport(f, payload, f.IPProtocol.Value)
	case 6:
		// IPv6 is recorded by version only
		f.IPVersion = core.Some[uint8](6)
	default:
		f.Anomalies |= core.AnomalyShortIP
	}
}

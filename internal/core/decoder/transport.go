// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/pcapscan/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	icmpHeaderLen   = 8

	// Protocol numbers
	protocolICMP = 1
	protocolTCP  = 6
	protocolUDP  = 17

	dnsPort = 53
)

// decodeTransport decodes the transport layer selected by protocol.
func decodeTransport(f *core.Fields, data []byte, protocol uint8) {
	switch protocol {
	case protocolTCP:
		if err := decodeTCP(f, data); err != nil {
			f.Anomalies |= core.AnomalyShortTCP
		}
	case protocolUDP:
		payload, err := decodeUDP(f, data)
		if err != nil {
			f.Anomalies |= core.AnomalyShortUDP
			return
		}
		if f.SrcPort.Value == dnsPort || f.DstPort.Value == dnsPort {
			decodeDNS(f, payload)
		}
	case protocolICMP:
		if err := decodeICMP(f, data); err != nil {
			f.Anomalies |= core.AnomalyShortICMP
		}
	default:
		// Unsupported transport protocol (e.g., SCTP, GRE); IP fields only
	}
}

// decodeUDP decodes the UDP header and returns the datagram payload,
// clamped to the UDP length field when consistent.
func decodeUDP(f *core.Fields, data []byte) ([]byte, error) {
	if len(data) < udpHeaderLen {
		return nil, core.ErrPacketTooShort
	}

	length := binary.BigEndian.Uint16(data[4:6])
	f.HasUDP = true
	f.SrcPort = core.Some(binary.BigEndian.Uint16(data[0:2]))
	f.DstPort = core.Some(binary.BigEndian.Uint16(data[2:4]))
	f.UDPLength = core.Some(length)

	end := len(data)
	if int(length) >= udpHeaderLen && int(length) <= end {
		end = int(length)
	}
	payload := data[udpHeaderLen:end]
	f.PayloadLength = core.Some(uint32(len(payload)))
	return payload, nil
}

// decodeTCP decodes the TCP header. Payload beyond the header is not decoded.
func decodeTCP(f *core.Fields, data []byte) error {
	if len(data) < tcpHeaderMinLen {
		return core.ErrPacketTooShort
	}

	f.HasTCP = true
	f.SrcPort = core.Some(binary.BigEndian.Uint16(data[0:2]))
	f.DstPort = core.Some(binary.BigEndian.Uint16(data[2:4]))
	f.TCPSeq = core.Some(binary.BigEndian.Uint32(data[4:8]))
	f.TCPAck = core.Some(binary.BigEndian.Uint32(data[8:12]))

	// TCP Flags (lower 6 bits of byte 13): URG, ACK, PSH, RST, SYN, FIN
	f.TCPFlags = core.Some(data[13] & 0x3F)

	// Data Offset (upper 4 bits of byte 12), 32-bit words
	headerLen := int(data[12]>>4) * 4
	if headerLen < tcpHeaderMinLen || len(data) < headerLen {
		f.PayloadLength = core.Opt[uint32]{}
		return errBadHeaderLen
	}

	f.PayloadLength = core.Some(uint32(len(data) - headerLen))
	return nil
}

// decodeICMP decodes ICMP type and code.
func decodeICMP(f *core.Fields, data []byte) error {
	if len(data) < icmpHeaderLen {
		return core.ErrPacketTooShort
	}

	f.HasICMP = true
	f.ICMPType = core.Some(data[0])
	f.ICMPCode = core.Some(data[1])
	f.PayloadLength = core.Some(uint32(len(data) - icmpHeaderLen))
	return nil
}

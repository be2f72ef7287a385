// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
	"time"
)

// Opt is a nullable value. The zero value is null.
type Opt[T any] struct {
	Value T
	Valid bool
}

// Some returns a non-null Opt holding v.
func Some[T any](v T) Opt[T] { return Opt[T]{Value: v, Valid: true} }

// MAC is an Ethernet hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// TCP flag bits as carried in the low six bits of header byte 13.
const (
	TCPFlagFIN uint8 = 0x01
	TCPFlagSYN uint8 = 0x02
	TCPFlagRST uint8 = 0x04
	TCPFlagPSH uint8 = 0x08
	TCPFlagACK uint8 = 0x10
	TCPFlagURG uint8 = 0x20
)

// Fields is the flat decoded view of one packet record. A field of a layer
// that did not decode is null; invalid netip.Addr values are null addresses.
type Fields struct {
	// Record metadata
	PacketNumber   uint64
	Timestamp      time.Time
	CapturedLength uint32
	OriginalLength uint32
	Truncated      bool

	// L2
	SrcMAC    Opt[MAC]
	DstMAC    Opt[MAC]
	EtherType Opt[uint16]
	VLANID    Opt[uint16]

	// Layer presence
	HasARP  bool
	HasIP   bool
	HasTCP  bool
	HasUDP  bool
	HasICMP bool
	HasDNS  bool

	// ARP
	ARPOp       Opt[uint16]
	ARPSenderIP netip.Addr
	ARPTargetIP netip.Addr

	// L3
	IPVersion  Opt[uint8]
	SrcIP      netip.Addr
	DstIP      netip.Addr
	IPProtocol Opt[uint8]
	IPTTL      Opt[uint8]

	// L4
	SrcPort   Opt[uint16]
	DstPort   Opt[uint16]
	TCPFlags  Opt[uint8]
	TCPSeq    Opt[uint32]
	TCPAck    Opt[uint32]
	UDPLength Opt[uint16]
	ICMPType  Opt[uint8]
	ICMPCode  Opt[uint8]

	// DNS (first question only)
	DNSID        Opt[uint16]
	DNSResponse  Opt[bool]
	DNSQueryName Opt[string]
	DNSQueryType Opt[uint16]

	PayloadLength Opt[uint32]

	// Data aliases the record buffer, see PacketRecord.
	Data []byte

	// Anomalies is not a column; it feeds metrics and logs.
	Anomalies Anomaly
}

// TCPFlagString renders flag bits in tcpdump order, e.g. "SA" for SYN+ACK.
func TCPFlagString(flags uint8) string {
	const order = "FSRPAU"
	out := make([]byte, 0, len(order))
	for i := 0; i < len(order); i++ {
		if flags&(1<<i) != 0 {
			out = append(out, order[i])
		}
	}
	if len(out) == 0 {
		return "."
	}
	return string(out)
}

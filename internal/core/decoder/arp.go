package decoder

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/pcapscan/internal/core"
)

const arpFixedLen = 8

// decodeARP decodes the ARP op code and, for IPv4 ARP, the sender and
// target protocol addresses. The layer decodes only if the whole address
// section is present.
func decodeARP(f *core.Fields, data []byte) ([]byte, error) {
	if len(data) < arpFixedLen {
		return nil, core.ErrPacketTooShort
	}

	protoType := binary.BigEndian.Uint16(data[2:4])
	hwLen := int(data[4])
	protoLen := int(data[5])
	bodyEnd := arpFixedLen + 2*(hwLen+protoLen)
	if len(data) < bodyEnd {
		return nil, core.ErrPacketTooShort
	}

	f.HasARP = true
	f.ARPOp = core.Some(binary.BigEndian.Uint16(data[6:8]))

	if protoType == etherTypeIPv4 && protoLen == 4 {
		senderAt := arpFixedLen + hwLen
		targetAt := senderAt + protoLen + hwLen
		f.ARPSenderIP = netip.AddrFrom4([4]byte(data[senderAt : senderAt+4]))
		f.ARPTargetIP = netip.AddrFrom4([4]byte(data[targetAt : targetAt+4]))
	}

	return data[bodyEnd:], nil
}

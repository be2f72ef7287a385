// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/pcapscan/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806
	etherTypeIPv6 = 0x86DD
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// decodeEthernet decodes the Ethernet frame header (including VLAN tags)
// into f and returns the remaining payload.
func decodeEthernet(f *core.Fields, data []byte) ([]byte, error) {
	if len(data) < ethernetHeaderLen {
		return nil, core.ErrPacketTooShort
	}

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := ethernetHeaderLen

	// Handle VLAN tags (can be nested: QinQ); the outermost ID is kept
	var vlan core.Opt[uint16]
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return nil, core.ErrPacketTooShort
		}

		// VLAN header: 2 bytes TCI + 2 bytes EtherType
		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		if !vlan.Valid {
			vlan = core.Some(tci & 0x0FFF)
		}

		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	var dst, src core.MAC
	copy(dst[:], data[0:6])
	copy(src[:], data[6:12])
	f.DstMAC = core.Some(dst)
	f.SrcMAC = core.Some(src)
	f.EtherType = core.Some(etherType)
	f.VLANID = vlan

	return data[offset:], nil
}

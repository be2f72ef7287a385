// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"firestige.xyz/pcapscan/internal/core"
)

const ipv4HeaderMinLen = 20

// errBadHeaderLen marks a header whose fixed fields decoded but whose
// declared length does not fit the captured bytes.
var errBadHeaderLen = errors.New("header length out of bounds")

// ipVersion reads the version nibble, 0 if data is empty.
func ipVersion(data []byte) uint8 {
	if len(data) < 1 {
		return 0
	}
	return data[0] >> 4
}

// decodeIPv4 decodes the IPv4 header into f and returns the payload, clamped
// to the header total length when that length is consistent. fragment is
// true for non-first fragments, whose payload holds no transport header.
func decodeIPv4(f *core.Fields, data []byte) (payload []byte, fragment bool, err error) {
	if len(data) < ipv4HeaderMinLen {
		return nil, false, core.ErrPacketTooShort
	}

	f.HasIP = true
	f.IPVersion = core.Some[uint8](4)
	f.IPTTL = core.Some(data[8])
	f.IPProtocol = core.Some(data[9])
	f.SrcIP = netip.AddrFrom4([4]byte(data[12:16]))
	f.DstIP = netip.AddrFrom4([4]byte(data[16:20]))

	// IHL (Internet Header Length) - lower 4 bits of first byte, 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return nil, false, errBadHeaderLen
	}

	end := len(data)
	if totalLen := int(binary.BigEndian.Uint16(data[2:4])); totalLen >= headerLen && totalLen <= end {
		end = totalLen
	}

	// Flags and Fragment Offset (2 bytes at offset 6)
	fragmentOffset := binary.BigEndian.Uint16(data[6:8]) & 0x1FFF
	return data[headerLen:end], fragmentOffset != 0, nil
}

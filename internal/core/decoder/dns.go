package decoder

import (
	"encoding/binary"
	"strconv"

	"firestige.xyz/pcapscan/internal/core"
)

const (
	dnsHeaderLen = 12

	// Compression pointers followed before a name is rejected. Loops in
	// malformed messages end here.
	maxPointerHops = 16
	maxNameLen     = 255
)

// decodeDNS decodes the DNS header and the first question of msg. A message
// with no questions is not treated as DNS.
func decodeDNS(f *core.Fields, msg []byte) {
	if len(msg) < dnsHeaderLen {
		f.Anomalies |= core.AnomalyShortDNS
		return
	}
	if binary.BigEndian.Uint16(msg[4:6]) == 0 {
		return
	}

	f.HasDNS = true
	f.DNSID = core.Some(binary.BigEndian.Uint16(msg[0:2]))
	f.DNSResponse = core.Some(msg[2]&0x80 != 0)

	name, end, ok := readName(msg, dnsHeaderLen)
	if !ok {
		f.Anomalies |= core.AnomalyDNSName
		return
	}
	f.DNSQueryName = core.Some(name)
	if end+2 <= len(msg) {
		f.DNSQueryType = core.Some(binary.BigEndian.Uint16(msg[end : end+2]))
	}
}

// readName decodes the possibly compressed name at off. end is the offset
// just past the name as written at off, i.e. after the first pointer if any.
func readName(msg []byte, off int) (name string, end int, ok bool) {
	buf := make([]byte, 0, 64)
	end = -1
	wireLen := 0
	hops := 0

	for {
		if off >= len(msg) {
			return "", 0, false
		}
		c := int(msg[off])

		switch c & 0xC0 {
		case 0x00:
			if c == 0 {
				if end < 0 {
					end = off + 1
				}
				if len(buf) == 0 {
					return ".", end, true
				}
				return string(buf), end, true
			}
			if off+1+c > len(msg) {
				return "", 0, false
			}
			wireLen += c + 1
			if wireLen > maxNameLen {
				return "", 0, false
			}
			if len(buf) > 0 {
				buf = append(buf, '.')
			}
			buf = appendLabel(buf, msg[off+1:off+1+c])
			off += 1 + c

		case 0xC0:
			if off+1 >= len(msg) {
				return "", 0, false
			}
			if end < 0 {
				end = off + 2
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, false
			}
			off = (c&0x3F)<<8 | int(msg[off+1])

		default:
			// 0x40 and 0x80 label types are reserved
			return "", 0, false
		}
	}
}

// appendLabel writes label in presentation form: dots and backslashes are
// escaped, bytes outside printable ASCII become \DDD.
func appendLabel(buf, label []byte) []byte {
	for _, b := range label {
		switch {
		case b == '.' || b == '\\':
			buf = append(buf, '\\', b)
		case b < 0x21 || b > 0x7e:
			buf = append(buf, '\\')
			if b < 100 {
				buf = append(buf, '0')
			}
			if b < 10 {
				buf = append(buf, '0')
			}
			buf = strconv.AppendUint(buf, uint64(b), 10)
		default:
			buf = append(buf, b)
		}
	}
	return buf
}

// Package pcaptest builds packets and capture files for tests.
package pcaptest

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/dns/dnsmessage"
)

// Addresses used by the packet builders.
var (
	ClientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	ServerMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	ClientIP  = net.IP{192, 168, 1, 10}
	ServerIP  = net.IP{192, 168, 1, 1}

	// BaseTime is the timestamp of the first packet in generated files.
	BaseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// Packet is one record to be written to a capture file.
type Packet struct {
	Timestamp time.Time
	Data      []byte
	OrigLen   int // 0 means len(Data)
}

// Serialize encodes the given layers with lengths and checksums fixed.
func Serialize(tb testing.TB, ls ...gopacket.SerializableLayer) []byte {
	tb.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		tb.Fatalf("serialize layers: %v", err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: ClientMAC, DstMAC: ServerMAC, EthernetType: t}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    ClientIP,
		DstIP:    ServerIP,
	}
}

// ARPRequest asks who has ServerIP.
func ARPRequest(tb testing.TB) []byte {
	tb.Helper()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(ClientMAC),
		SourceProtAddress: []byte(ClientIP),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte(ServerIP),
	}
	return Serialize(tb, ethernet(layers.EthernetTypeARP), arp)
}

// ICMPEchoRequest is a ping from ClientIP to ServerIP.
func ICMPEchoRequest(tb testing.TB, id, seq uint16) []byte {
	tb.Helper()
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	return Serialize(tb, ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4), icmp,
		gopacket.Payload([]byte("pingpingpingping")))
}

// UDPDatagram carries payload between the given ports.
func UDPDatagram(tb testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	tb.Helper()
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("udp checksum layer: %v", err)
	}
	return Serialize(tb, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

// DNSQueryPayload builds a standard A query for name (e.g. "example.com.").
func DNSQueryPayload(tb testing.TB, id uint16, name string) []byte {
	tb.Helper()
	b := dnsmessage.NewBuilder(make([]byte, 0, 512), dnsmessage.Header{ID: id, RecursionDesired: true})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		tb.Fatalf("dns start questions: %v", err)
	}
	q := dnsmessage.Question{
		Name:  dnsmessage.MustNewName(name),
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}
	if err := b.Question(q); err != nil {
		tb.Fatalf("dns question: %v", err)
	}
	msg, err := b.Finish()
	if err != nil {
		tb.Fatalf("dns finish: %v", err)
	}
	return msg
}

// DNSQuery is a UDP datagram from port 33000 to port 53 asking for name.
func DNSQuery(tb testing.TB, id uint16, name string) []byte {
	tb.Helper()
	return UDPDatagram(tb, 33000, 53, DNSQueryPayload(tb, id, name))
}

// TCPSYN opens a connection from srcPort to dstPort.
func TCPSYN(tb testing.TB, srcPort, dstPort uint16, seq uint32) []byte {
	tb.Helper()
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		SYN:     true,
		Window:  64240,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("tcp checksum layer: %v", err)
	}
	return Serialize(tb, ethernet(layers.EthernetTypeIPv4), ip, tcp)
}

// IPv6UDP is a UDP datagram over IPv6.
func IPv6UDP(tb testing.TB) []byte {
	tb.Helper()
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   64,
		SrcIP:      net.ParseIP("fe80::1"),
		DstIP:      net.ParseIP("fe80::2"),
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("udp checksum layer: %v", err)
	}
	return Serialize(tb, ethernet(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload([]byte("v6")))
}

// Scenario returns ARP, ICMP echo, DNS query, plain UDP and TCP SYN, in that order.
func Scenario(tb testing.TB) []Packet {
	tb.Helper()
	frames := [][]byte{
		ARPRequest(tb),
		ICMPEchoRequest(tb, 7, 1),
		DNSQuery(tb, 0xbeef, "example.com."),
		UDPDatagram(tb, 40000, 9999, []byte("hello")),
		TCPSYN(tb, 51000, 443, 1000),
	}
	return Sequence(frames...)
}

// Sequence timestamps frames one millisecond apart starting at BaseTime.
func Sequence(frames ...[]byte) []Packet {
	pkts := make([]Packet, len(frames))
	for i, f := range frames {
		pkts[i] = Packet{Timestamp: BaseTime.Add(time.Duration(i) * time.Millisecond), Data: f}
	}
	return pkts
}

// WriteFile writes an Ethernet capture to dir and returns its path.
func WriteFile(tb testing.TB, dir string, pkts ...Packet) string {
	tb.Helper()
	path := filepath.Join(dir, "capture.pcap")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create pcap: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		tb.Fatalf("write pcap header: %v", err)
	}
	for _, p := range pkts {
		orig := p.OrigLen
		if orig == 0 {
			orig = len(p.Data)
		}
		ci := gopacket.CaptureInfo{Timestamp: p.Timestamp, CaptureLength: len(p.Data), Length: orig}
		if err := w.WritePacket(ci, p.Data); err != nil {
			tb.Fatalf("write pcap packet: %v", err)
		}
	}
	return path
}

// RawFile assembles pcap bytes by hand, for files a well-behaved writer
// would refuse to produce.
type RawFile struct {
	order binary.ByteOrder
	nanos bool
	buf   bytes.Buffer
}

// NewRawFile writes a global header with the given byte order, resolution,
// snap length and link type.
func NewRawFile(order binary.ByteOrder, nanos bool, snapLen, linkType uint32) *RawFile {
	f := &RawFile{order: order, nanos: nanos}
	magic := uint32(0xa1b2c3d4)
	if nanos {
		magic = 0xa1b23c4d
	}
	var hdr [24]byte
	order.PutUint32(hdr[0:4], magic)
	order.PutUint16(hdr[4:6], 2)
	order.PutUint16(hdr[6:8], 4)
	order.PutUint32(hdr[16:20], snapLen)
	order.PutUint32(hdr[20:24], linkType)
	f.buf.Write(hdr[:])
	return f
}

// Record appends a record header declaring capLen followed by data. data may
// be shorter than capLen to produce a truncated file.
func (f *RawFile) Record(ts time.Time, capLen, origLen uint32, data []byte) *RawFile {
	frac := uint32(ts.Nanosecond())
	if !f.nanos {
		frac /= 1000
	}
	var hdr [16]byte
	f.order.PutUint32(hdr[0:4], uint32(ts.Unix()))
	f.order.PutUint32(hdr[4:8], frac)
	f.order.PutUint32(hdr[8:12], capLen)
	f.order.PutUint32(hdr[12:16], origLen)
	f.buf.Write(hdr[:])
	f.buf.Write(data)
	return f
}

// Raw appends arbitrary bytes.
func (f *RawFile) Raw(b []byte) *RawFile {
	f.buf.Write(b)
	return f
}

// Bytes returns the file contents.
func (f *RawFile) Bytes() []byte { return f.buf.Bytes() }

// Write stores the file under dir and returns its path.
func (f *RawFile) Write(tb testing.TB, dir, name string) string {
	tb.Helper()
	return WriteBytes(tb, dir, name, f.Bytes())
}

// WriteBytes stores b as dir/name.
func WriteBytes(tb testing.TB, dir, name string, b []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

package decoder

import (
	"net/netip"
	"testing"
	"time"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/pcaptest"
)

const linkTypeEthernet = 1

func TestDecodeScenario(t *testing.T) {
	pkts := pcaptest.Scenario(t)

	t.Run("arp", func(t *testing.T) {
		f := Decode(pkts[0].Data, linkTypeEthernet)
		if !f.HasARP || f.HasIP || f.ARPOp.Value != 1 {
			t.Errorf("Expected ARP request, got %+v", f)
		}
		if f.ARPTargetIP != netip.MustParseAddr("192.168.1.1") {
			t.Errorf("Unexpected ARP target %v", f.ARPTargetIP)
		}
		if f.IPVersion.Valid || f.SrcIP.IsValid() || f.SrcPort.Valid || f.DNSID.Valid {
			t.Error("Expected null network and transport fields")
		}
	})

	t.Run("icmp", func(t *testing.T) {
		f := Decode(pkts[1].Data, linkTypeEthernet)
		if !f.HasIP || !f.HasICMP || f.ICMPType.Value != 8 || f.ICMPCode.Value != 0 {
			t.Errorf("Expected ICMP echo request, got %+v", f)
		}
		if f.SrcPort.Valid || f.DstPort.Valid {
			t.Error("Expected null ports for ICMP")
		}
		if f.PayloadLength.Value != 16 {
			t.Errorf("Expected payload length 16, got %d", f.PayloadLength.Value)
		}
	})

	t.Run("dns", func(t *testing.T) {
		f := Decode(pkts[2].Data, linkTypeEthernet)
		if !f.HasUDP || !f.HasDNS {
			t.Fatalf("Expected UDP and DNS, got %+v", f)
		}
		if f.DstPort.Value != 53 || f.DNSID.Value != 0xbeef {
			t.Errorf("Unexpected port %d id 0x%04x", f.DstPort.Value, f.DNSID.Value)
		}
		if f.DNSQueryName.Value != "example.com" || f.DNSQueryType.Value != 1 {
			t.Errorf("Unexpected question %q type %d", f.DNSQueryName.Value, f.DNSQueryType.Value)
		}
		if f.DNSResponse.Value {
			t.Error("Expected query")
		}
	})

	t.Run("udp", func(t *testing.T) {
		f := Decode(pkts[3].Data, linkTypeEthernet)
		if !f.HasUDP || f.HasDNS || f.DNSID.Valid {
			t.Errorf("Expected plain UDP, got %+v", f)
		}
		if f.SrcPort.Value != 40000 || f.DstPort.Value != 9999 {
			t.Errorf("Unexpected ports %d->%d", f.SrcPort.Value, f.DstPort.Value)
		}
		if f.UDPLength.Value != 13 || f.PayloadLength.Value != 5 {
			t.Errorf("Expected udp length 13 payload 5, got %d %d", f.UDPLength.Value, f.PayloadLength.Value)
		}
	})

	t.Run("tcp", func(t *testing.T) {
		f := Decode(pkts[4].Data, linkTypeEthernet)
		if !f.HasTCP || f.HasUDP {
			t.Errorf("Expected TCP, got %+v", f)
		}
		if f.TCPFlags.Value != core.TCPFlagSYN || f.TCPSeq.Value != 1000 {
			t.Errorf("Unexpected flags 0x%02x seq %d", f.TCPFlags.Value, f.TCPSeq.Value)
		}
		if f.UDPLength.Valid || f.ICMPType.Valid {
			t.Error("Expected null UDP and ICMP fields")
		}
		if f.PayloadLength.Value != 0 {
			t.Errorf("Expected empty payload, got %d", f.PayloadLength.Value)
		}
	})

	for i, p := range pkts {
		f := Decode(p.Data, linkTypeEthernet)
		if f.SrcMAC.Value.String() != "00:11:22:33:44:55" {
			t.Errorf("packet %d: unexpected src mac %v", i, f.SrcMAC.Value)
		}
		if f.Anomalies != 0 {
			t.Errorf("packet %d: unexpected anomalies %v", i, f.Anomalies)
		}
	}
}

func TestDecodeIPv6VersionOnly(t *testing.T) {
	f := Decode(pcaptest.IPv6UDP(t), linkTypeEthernet)
	if !f.IPVersion.Valid || f.IPVersion.Value != 6 {
		t.Errorf("Expected ip_version 6, got %+v", f.IPVersion)
	}
	if f.HasIP || f.SrcIP.IsValid() || f.HasUDP || f.SrcPort.Valid {
		t.Errorf("Expected IPv6 to be recorded by version only, got %+v", f)
	}
	if f.EtherType.Value != 0x86DD {
		t.Errorf("Expected EtherType 0x86DD, got 0x%04x", f.EtherType.Value)
	}
}

func TestDecodeNonEthernetLinkType(t *testing.T) {
	data := pcaptest.TCPSYN(t, 1, 2, 3)
	f := Decode(data, 101) // LINKTYPE_RAW
	if f.SrcMAC.Valid || f.EtherType.Valid || f.HasIP || f.HasTCP || f.PayloadLength.Valid {
		t.Errorf("Expected all decoded fields null, got %+v", f)
	}
	if len(f.Data) != len(data) {
		t.Errorf("Expected data to be kept, got %d bytes", len(f.Data))
	}
}

func TestDecodeShortEthernet(t *testing.T) {
	f := Decode(make([]byte, 10), linkTypeEthernet)
	if f.SrcMAC.Valid || f.PayloadLength.Valid {
		t.Error("Expected null fields for short frame")
	}
	if !f.Anomalies.Has(core.AnomalyShortEthernet) {
		t.Errorf("Expected short ethernet anomaly, got %v", f.Anomalies)
	}
}

func TestDecodeTruncatedIP(t *testing.T) {
	frame := pcaptest.TCPSYN(t, 1, 2, 3)[:14+12]
	f := Decode(frame, linkTypeEthernet)
	if !f.EtherType.Valid || f.EtherType.Value != 0x0800 {
		t.Error("Expected Ethernet fields")
	}
	if f.HasIP || f.IPVersion.Valid || f.HasTCP {
		t.Errorf("Expected null IP fields, got %+v", f)
	}
	if f.PayloadLength.Value != 12 {
		t.Errorf("Expected Ethernet payload length 12, got %d", f.PayloadLength.Value)
	}
}

func TestDecodeBadIHL(t *testing.T) {
	frame := pcaptest.TCPSYN(t, 1, 2, 3)
	frame[14] = 0x4F // IHL 15: header overruns the frame
	f := Decode(frame, linkTypeEthernet)
	if !f.HasIP || f.IPProtocol.Value != 6 {
		t.Errorf("Expected IP fields, got %+v", f)
	}
	if f.HasTCP || f.SrcPort.Valid {
		t.Error("Expected null TCP fields")
	}
	if f.PayloadLength.Valid {
		t.Errorf("Expected null payload length, got %d", f.PayloadLength.Value)
	}
}

func TestDecodeFragmentSkipsTransport(t *testing.T) {
	frame := pcaptest.UDPDatagram(t, 1000, 53, []byte("not a header"))
	frame[14+6], frame[14+7] = 0x00, 0x10 // Fragment offset 16
	f := Decode(frame, linkTypeEthernet)
	if !f.HasIP {
		t.Fatal("Expected IP")
	}
	if f.HasUDP || f.HasDNS || f.SrcPort.Valid {
		t.Errorf("Expected no transport on non-first fragment, got %+v", f)
	}
}

func TestDecodeDNSPointerLoopOverUDP(t *testing.T) {
	payload := []byte{
		0x00, 0x2A, 0x01, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0, // Header, one question
		0xC0, 0x0C, // Pointer to itself
		0x00, 0x01, 0x00, 0x01,
	}
	f := Decode(pcaptest.UDPDatagram(t, 33000, 53, payload), linkTypeEthernet)
	if !f.HasDNS || f.DNSID.Value != 42 {
		t.Errorf("Expected DNS header, got %+v", f)
	}
	if f.DNSQueryName.Valid || f.DNSQueryType.Valid {
		t.Error("Expected null question fields")
	}
}

func TestStandardDecoderMetadata(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	data := pcaptest.TCPSYN(t, 1, 2, 3)
	rec := core.PacketRecord{
		Number:     9,
		Timestamp:  ts,
		CaptureLen: uint32(len(data)),
		OrigLen:    1500,
		Truncated:  true,
		Data:       data,
	}

	f := NewStandardDecoder(linkTypeEthernet).Decode(rec)
	if f.PacketNumber != 9 || !f.Timestamp.Equal(ts) {
		t.Errorf("Unexpected metadata %d %v", f.PacketNumber, f.Timestamp)
	}
	if f.CapturedLength != uint32(len(data)) || f.OriginalLength != 1500 {
		t.Errorf("Unexpected lengths %d %d", f.CapturedLength, f.OriginalLength)
	}
	if !f.Truncated || !f.Anomalies.Has(core.AnomalyOversizedRecord) {
		t.Error("Expected truncated record to be flagged")
	}
	if !f.HasTCP {
		t.Error("Expected TCP to decode")
	}
}

func BenchmarkDecode(b *testing.B) {
	data := pcaptest.DNSQuery(b, 1, "example.com.")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Decode(data, linkTypeEthernet)
	}
}

package decoder

import (
	"net/netip"
	"testing"

	"firestige.xyz/pcapscan/internal/core"
)

func TestDecodeARP(t *testing.T) {
	data := []byte{
		0x00, 0x01, // Hardware type: Ethernet
		0x08, 0x00, // Protocol type: IPv4
		0x06,       // Hardware size
		0x04,       // Protocol size
		0x00, 0x02, // Opcode: reply
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Sender MAC
		192, 168, 1, 1, // Sender IP
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Target MAC
		192, 168, 1, 10, // Target IP
		0x00, 0x00, // Padding
	}

	var f core.Fields
	rest, err := decodeARP(&f, data)
	if err != nil {
		t.Fatalf("decodeARP failed: %v", err)
	}
	if !f.HasARP || f.ARPOp.Value != 2 {
		t.Errorf("Expected ARP reply, got %+v", f.ARPOp)
	}
	if f.ARPSenderIP != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("Unexpected sender %v", f.ARPSenderIP)
	}
	if f.ARPTargetIP != netip.MustParseAddr("192.168.1.10") {
		t.Errorf("Unexpected target %v", f.ARPTargetIP)
	}
	if len(rest) != 2 {
		t.Errorf("Expected 2 trailing bytes, got %d", len(rest))
	}
}

func TestDecodeARPNonIPv4(t *testing.T) {
	data := []byte{
		0x00, 0x01,
		0x86, 0xDD, // Protocol type: IPv6
		0x06, 0x00, // Protocol size: 0
		0x00, 0x01,
		0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
	}

	var f core.Fields
	if _, err := decodeARP(&f, data); err != nil {
		t.Fatalf("decodeARP failed: %v", err)
	}
	if !f.HasARP || f.ARPSenderIP.IsValid() || f.ARPTargetIP.IsValid() {
		t.Errorf("Expected op only, got %+v", f)
	}
}

func TestDecodeARPTooShort(t *testing.T) {
	data := []byte{0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x01, 0x00, 0x11}

	var f core.Fields
	if _, err := decodeARP(&f, data); err == nil {
		t.Fatal("Expected error for truncated ARP")
	}
	if f.HasARP || f.ARPOp.Valid {
		t.Error("Expected null ARP fields")
	}
}

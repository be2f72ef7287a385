// Package core defines core types.
package core

import "strings"

// Anomaly is a bit set of non-fatal decode anomalies seen on one record.
type Anomaly uint16

const (
	AnomalyOversizedRecord Anomaly = 1 << iota // captured length above snap length
	AnomalyShortEthernet
	AnomalyShortARP
	AnomalyShortIP
	AnomalyShortTCP
	AnomalyShortUDP
	AnomalyShortICMP
	AnomalyShortDNS
	AnomalyDNSName // query name unreadable: pointer hops, reserved label, bounds
)

// Anomaly label names following {layer}.{kind} convention, used as metric labels.
const (
	LabelOversizedRecord = "record.oversized"
	LabelShortEthernet   = "ethernet.short"
	LabelShortARP        = "arp.short"
	LabelShortIP         = "ip.short"
	LabelShortTCP        = "tcp.short"
	LabelShortUDP        = "udp.short"
	LabelShortICMP       = "icmp.short"
	LabelShortDNS        = "dns.short"
	LabelDNSName         = "dns.bad_name"
)

var anomalyLabels = []struct {
	bit   Anomaly
	label string
}{
	{AnomalyOversizedRecord, LabelOversizedRecord},
	{AnomalyShortEthernet, LabelShortEthernet},
	{AnomalyShortARP, LabelShortARP},
	{AnomalyShortIP, LabelShortIP},
	{AnomalyShortTCP, LabelShortTCP},
	{AnomalyShortUDP, LabelShortUDP},
	{AnomalyShortICMP, LabelShortICMP},
	{AnomalyShortDNS, LabelShortDNS},
	{AnomalyDNSName, LabelDNSName},
}

// Has reports whether every bit of o is set in a.
func (a Anomaly) Has(o Anomaly) bool { return a&o == o }

// Labels returns the label of every set bit, in declaration order.
func (a Anomaly) Labels() []string {
	if a == 0 {
		return nil
	}
	out := make([]string, 0, 2)
	for _, l := range anomalyLabels {
		if a&l.bit != 0 {
			out = append(out, l.label)
		}
	}
	return out
}

func (a Anomaly) String() string {
	if a == 0 {
		return "none"
	}
	return strings.Join(a.Labels(), ",")
}

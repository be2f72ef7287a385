package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapscan/internal/core"
)

func TestTranslateSupported(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"dst_port == 53", "dst_port == 53"},
		{"53 == dst_port", "dst_port == 53"},
		{"1000 < tcp_seq", "tcp_seq > 1000"},
		{"ip_ttl >= 64", "ip_ttl >= 64"},
		{"src_ip != '10.0.0.1'", `src_ip != "10.0.0.1"`},
		{"has_dns", "has_dns == true"},
		{"truncated == false", "truncated == false"},
		{"has_udp && dst_port == 53", "(has_udp == true && dst_port == 53)"},
		{"has_arp || has_icmp", "(has_arp == true || has_icmp == true)"},
		{"(src_port == 53 || dst_port == 53) && has_udp", "((src_port == 53 || dst_port == 53) && has_udp == true)"},
		{`timestamp >= timestamp("2024-03-01T12:00:00Z")`, `timestamp >= timestamp("2024-03-01T12:00:00Z")`},
		{`dns_query_name == "example.com"`, `dns_query_name == "example.com"`},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Translate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestTranslateUnsupported(t *testing.T) {
	tests := []string{
		"!(dst_port == 53)",               // negation
		"dst_port + 1 == 54",              // arithmetic
		"src_port == dst_port",            // column against column
		"dns_query_name.endsWith('.com')", // method call
		"has_dns < true",                  // ordering on bool
		"data == b'abc'",                  // bytes column
		"dst_port in [53, 5353]",          // membership
		"size(dns_query_name) > 3",        // function call
		"dst_port ==",                     // does not parse
		"no_such_column == 1",             // does not type-check
		"dst_port == 'http'",              // type mismatch
		"dst_port",                        // not a bool
		"1 == 1",                          // no column
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			p, err := Translate(expr)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, core.ErrUnsupportedPredicate)
		})
	}
}

func TestTranslateParseFailureIsAlsoInvalid(t *testing.T) {
	_, err := Translate("dst_port ==")
	assert.ErrorIs(t, err, core.ErrUnsupportedPredicate)
	assert.ErrorIs(t, err, core.ErrInvalidPredicate)
}

func TestComparisonNullNeverMatches(t *testing.T) {
	var f core.Fields // every nullable field is null
	for _, expr := range []string{"dst_port == 53", "dst_port != 53", "dst_port < 1", "src_ip != ''", "dns_response == false"} {
		p, err := Translate(expr)
		require.NoError(t, err)
		assert.False(t, p.Eval(&f), expr)
	}
}

func TestPredicateEval(t *testing.T) {
	f := core.Fields{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		HasUDP:    true,
		DstPort:   core.Some[uint16](53),
		IPTTL:     core.Some[uint8](64),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"dst_port == 53", true},
		{"dst_port != 53", false},
		{"dst_port > 52 && dst_port < 54", true},
		{"ip_ttl < 64 || has_udp", true},
		{"ip_ttl <= 63 || has_tcp", false},
		{"has_udp && src_port == 1", false},
		{`timestamp < timestamp("2024-03-01T12:00:00.5Z")`, true},
		{`timestamp > timestamp("2024-03-01T12:00:00Z")`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Translate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Eval(&f))
		})
	}
}

func TestColumnsAndReferences(t *testing.T) {
	p, err := Translate("has_udp && (dst_port == 53 || src_port == 53) && dst_port > 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"has_udp", "dst_port", "src_port"}, Columns(p))

	refs, err := References("!(dst_port == 53) && size(dns_query_name) > 3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dst_port", "dns_query_name"}, refs)

	_, err = References("dst_port ==")
	assert.ErrorIs(t, err, core.ErrInvalidPredicate)
}

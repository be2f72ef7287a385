// Package schema defines the fixed, ordered column set produced by a scan.
package schema

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/google/cel-go/cel"

	"firestige.xyz/pcapscan/internal/core"
)

// Kind groups column types by how values compare.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindString
	KindTimestamp
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindBinary:
		return "bytes"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column describes one output column.
//
// Value returns the column value of f in its comparison form: int64 for
// KindInt, bool, string, time.Time or []byte. ok is false for null.
type Column struct {
	Name     string
	Type     arrow.DataType
	Nullable bool
	Kind     Kind

	Value  func(f *core.Fields) (v any, ok bool)
	Append func(b array.Builder, f *core.Fields)
}

// Field returns the arrow field for c.
func (c Column) Field() arrow.Field {
	return arrow.Field{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
}

// CELType returns the type c is declared with in predicate expressions.
// Integer columns are CEL ints so that plain literals such as 53 type-check.
func (c Column) CELType() *cel.Type {
	switch c.Kind {
	case KindInt:
		return cel.IntType
	case KindBool:
		return cel.BoolType
	case KindString:
		return cel.StringType
	case KindTimestamp:
		return cel.TimestampType
	default:
		return cel.BytesType
	}
}

type unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

func appendUint(b array.Builder, v uint64) {
	switch b := b.(type) {
	case *array.Uint8Builder:
		b.Append(uint8(v))
	case *array.Uint16Builder:
		b.Append(uint16(v))
	case *array.Uint32Builder:
		b.Append(uint32(v))
	case *array.Uint64Builder:
		b.Append(v)
	default:
		panic(fmt.Sprintf("schema: unexpected builder %T for unsigned column", b))
	}
}

func uintCol[T unsigned](name string, dt arrow.DataType, get func(*core.Fields) T) Column {
	return Column{
		Name: name, Type: dt, Kind: KindInt,
		Value: func(f *core.Fields) (any, bool) { return int64(get(f)), true },
		Append: func(b array.Builder, f *core.Fields) {
			appendUint(b, uint64(get(f)))
		},
	}
}

func optUintCol[T unsigned](name string, dt arrow.DataType, get func(*core.Fields) core.Opt[T]) Column {
	return Column{
		Name: name, Type: dt, Nullable: true, Kind: KindInt,
		Value: func(f *core.Fields) (any, bool) {
			v := get(f)
			return int64(v.Value), v.Valid
		},
		Append: func(b array.Builder, f *core.Fields) {
			if v := get(f); v.Valid {
				appendUint(b, uint64(v.Value))
			} else {
				b.AppendNull()
			}
		},
	}
}

func boolCol(name string, get func(*core.Fields) bool) Column {
	return Column{
		Name: name, Type: arrow.FixedWidthTypes.Boolean, Kind: KindBool,
		Value:  func(f *core.Fields) (any, bool) { return get(f), true },
		Append: func(b array.Builder, f *core.Fields) { b.(*array.BooleanBuilder).Append(get(f)) },
	}
}

func optBoolCol(name string, get func(*core.Fields) core.Opt[bool]) Column {
	return Column{
		Name: name, Type: arrow.FixedWidthTypes.Boolean, Nullable: true, Kind: KindBool,
		Value: func(f *core.Fields) (any, bool) {
			v := get(f)
			return v.Value, v.Valid
		},
		Append: func(b array.Builder, f *core.Fields) {
			if v := get(f); v.Valid {
				b.(*array.BooleanBuilder).Append(v.Value)
			} else {
				b.AppendNull()
			}
		},
	}
}

func stringCol(name string, get func(*core.Fields) (string, bool)) Column {
	return Column{
		Name: name, Type: arrow.BinaryTypes.String, Nullable: true, Kind: KindString,
		Value: func(f *core.Fields) (any, bool) { return get(f) },
		Append: func(b array.Builder, f *core.Fields) {
			if s, ok := get(f); ok {
				b.(*array.StringBuilder).Append(s)
			} else {
				b.AppendNull()
			}
		},
	}
}

func macCol(name string, get func(*core.Fields) core.Opt[core.MAC]) Column {
	return stringCol(name, func(f *core.Fields) (string, bool) {
		v := get(f)
		if !v.Valid {
			return "", false
		}
		return v.Value.String(), true
	})
}

func addrCol(name string, get func(*core.Fields) netip.Addr) Column {
	return stringCol(name, func(f *core.Fields) (string, bool) {
		a := get(f)
		if !a.IsValid() {
			return "", false
		}
		return a.String(), true
	})
}

var columns = []Column{
	uintCol("packet_number", arrow.PrimitiveTypes.Uint64, func(f *core.Fields) uint64 { return f.PacketNumber }),
	{
		Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_ns, Kind: KindTimestamp,
		Value: func(f *core.Fields) (any, bool) { return f.Timestamp, true },
		Append: func(b array.Builder, f *core.Fields) {
			b.(*array.TimestampBuilder).Append(arrow.Timestamp(f.Timestamp.UnixNano()))
		},
	},
	uintCol("captured_length", arrow.PrimitiveTypes.Uint32, func(f *core.Fields) uint32 { return f.CapturedLength }),
	uintCol("original_length", arrow.PrimitiveTypes.Uint32, func(f *core.Fields) uint32 { return f.OriginalLength }),
	boolCol("truncated", func(f *core.Fields) bool { return f.Truncated }),

	macCol("src_mac", func(f *core.Fields) core.Opt[core.MAC] { return f.SrcMAC }),
	macCol("dst_mac", func(f *core.Fields) core.Opt[core.MAC] { return f.DstMAC }),
	optUintCol("ether_type", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.EtherType }),
	optUintCol("vlan_id", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.VLANID }),

	boolCol("has_arp", func(f *core.Fields) bool { return f.HasARP }),
	boolCol("has_ip", func(f *core.Fields) bool { return f.HasIP }),
	boolCol("has_tcp", func(f *core.Fields) bool { return f.HasTCP }),
	boolCol("has_udp", func(f *core.Fields) bool { return f.HasUDP }),
	boolCol("has_icmp", func(f *core.Fields) bool { return f.HasICMP }),
	boolCol("has_dns", func(f *core.Fields) bool { return f.HasDNS }),

	optUintCol("arp_op", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.ARPOp }),
	addrCol("arp_sender_ip", func(f *core.Fields) netip.Addr { return f.ARPSenderIP }),
	addrCol("arp_target_ip", func(f *core.Fields) netip.Addr { return f.ARPTargetIP }),

	optUintCol("ip_version", arrow.PrimitiveTypes.Uint8, func(f *core.Fields) core.Opt[uint8] { return f.IPVersion }),
	addrCol("src_ip", func(f *core.Fields) netip.Addr { return f.SrcIP }),
	addrCol("dst_ip", func(f *core.Fields) netip.Addr { return f.DstIP }),
	optUintCol("ip_protocol", arrow.PrimitiveTypes.Uint8, func(f *core.Fields) core.Opt[uint8] { return f.IPProtocol }),
	optUintCol("ip_ttl", arrow.PrimitiveTypes.Uint8, func(f *core.Fields) core.Opt[uint8] { return f.IPTTL }),

	optUintCol("src_port", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.SrcPort }),
	optUintCol("dst_port", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.DstPort }),
	optUintCol("tcp_flags", arrow.PrimitiveTypes.Uint8, func(f *core.Fields) core.Opt[uint8] { return f.TCPFlags }),
	optUintCol("tcp_seq", arrow.PrimitiveTypes.Uint32, func(f *core.Fields) core.Opt[uint32] { return f.TCPSeq }),
	optUintCol("tcp_ack", arrow.PrimitiveTypes.Uint32, func(f *core.Fields) core.Opt[uint32] { return f.TCPAck }),
	optUintCol("udp_length", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.UDPLength }),
	optUintCol("icmp_type", arrow.PrimitiveTypes.Uint8, func(f *core.Fields) core.Opt[uint8] { return f.ICMPType }),
	optUintCol("icmp_code", arrow.PrimitiveTypes.Uint8, func(f *core.Fields) core.Opt[uint8] { return f.ICMPCode }),

	optUintCol("dns_id", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.DNSID }),
	optBoolCol("dns_response", func(f *core.Fields) core.Opt[bool] { return f.DNSResponse }),
	stringCol("dns_query_name", func(f *core.Fields) (string, bool) { return f.DNSQueryName.Value, f.DNSQueryName.Valid }),
	optUintCol("dns_query_type", arrow.PrimitiveTypes.Uint16, func(f *core.Fields) core.Opt[uint16] { return f.DNSQueryType }),

	optUintCol("payload_length", arrow.PrimitiveTypes.Uint32, func(f *core.Fields) core.Opt[uint32] { return f.PayloadLength }),
	{
		Name: "data", Type: arrow.BinaryTypes.Binary, Kind: KindBinary,
		Value:  func(f *core.Fields) (any, bool) { return f.Data, true },
		Append: func(b array.Builder, f *core.Fields) { b.(*array.BinaryBuilder).Append(f.Data) },
	},
}

var (
	byName = func() map[string]int {
		m := make(map[string]int, len(columns))
		for i, c := range columns {
			m[c.Name] = i
		}
		return m
	}()

	full = func() *Projection {
		p, err := Project(nil)
		if err != nil {
			panic(err)
		}
		return p
	}()
)

// Columns returns every column in schema order.
func Columns() []Column {
	return append([]Column(nil), columns...)
}

// Names returns every column name in schema order.
func Names() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// Lookup finds a column by name.
func Lookup(name string) (Column, bool) {
	i, ok := byName[name]
	if !ok {
		return Column{}, false
	}
	return columns[i], true
}

// Full returns the projection of every column.
func Full() *Projection { return full }

// Projection is an ordered subset of the schema.
type Projection struct {
	cols   []Column
	schema *arrow.Schema
}

// Project selects names in the given order. nil selects every column; an
// empty non-nil slice selects none, which still yields row counts. Repeated
// names are kept once.
func Project(names []string) (*Projection, error) {
	if names == nil {
		names = Names()
	}
	p := &Projection{cols: make([]Column, 0, len(names))}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		c, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownColumn, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		p.cols = append(p.cols, c)
	}

	fields := make([]arrow.Field, len(p.cols))
	for i, c := range p.cols {
		fields[i] = c.Field()
	}
	p.schema = arrow.NewSchema(fields, nil)
	return p, nil
}

// Columns returns the selected columns in order.
func (p *Projection) Columns() []Column { return p.cols }

// Names returns the selected column names in order.
func (p *Projection) Names() []string {
	names := make([]string, len(p.cols))
	for i, c := range p.cols {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of selected columns.
func (p *Projection) Len() int { return len(p.cols) }

// Schema returns the arrow schema of the projection.
func (p *Projection) Schema() *arrow.Schema { return p.schema }

// Contains reports whether name is selected.
func (p *Projection) Contains(name string) bool {
	return p.schema.HasField(name)
}

// Widen returns p with the given columns appended when not already selected.
func (p *Projection) Widen(names []string) (*Projection, error) {
	return Project(append(p.Names(), names...))
}

// ArrayValue reads row i of arr in the same form Column.Value uses.
func ArrayValue(arr arrow.Array, i int) (any, bool) {
	if arr.IsNull(i) {
		return nil, false
	}
	switch a := arr.(type) {
	case *array.Uint8:
		return int64(a.Value(i)), true
	case *array.Uint16:
		return int64(a.Value(i)), true
	case *array.Uint32:
		return int64(a.Value(i)), true
	case *array.Uint64:
		return int64(a.Value(i)), true
	case *array.Boolean:
		return a.Value(i), true
	case *array.String:
		return a.Value(i), true
	case *array.Timestamp:
		return time.Unix(0, int64(a.Value(i))).UTC(), true
	case *array.Binary:
		return a.Value(i), true
	default:
		return a.GetOneForMarshal(i), true
	}
}

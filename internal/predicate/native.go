package predicate

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/schema"
)

// Predicate is a native filter over decoded fields. The set of
// implementations is closed: *Comparison, *And and *Or.
type Predicate interface {
	// Eval reports whether f matches. A comparison against a null field
	// never matches.
	Eval(f *core.Fields) bool
	String() string

	predicate()
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// flip returns the operator for swapped operands: 5 < x is x > 5.
func (o Op) flip() Op {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return o
	}
}

func (o Op) holds(c int) bool {
	switch o {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	default:
		return false
	}
}

// Comparison compares a column with a literal of the column's kind:
// int64, bool, string or time.Time.
type Comparison struct {
	Column  schema.Column
	Op      Op
	Literal any
}

func (c *Comparison) Eval(f *core.Fields) bool {
	v, ok := c.Column.Value(f)
	if !ok {
		return false
	}
	return c.Op.holds(compareValues(v, c.Literal))
}

func (c *Comparison) String() string {
	return c.Column.Name + " " + c.Op.String() + " " + formatLiteral(c.Literal)
}

func (*Comparison) predicate() {}

// And matches when both sides match.
type And struct {
	Left, Right Predicate
}

func (a *And) Eval(f *core.Fields) bool { return a.Left.Eval(f) && a.Right.Eval(f) }
func (a *And) String() string           { return "(" + a.Left.String() + " && " + a.Right.String() + ")" }
func (*And) predicate()                 {}

// Or matches when either side matches.
type Or struct {
	Left, Right Predicate
}

func (o *Or) Eval(f *core.Fields) bool { return o.Left.Eval(f) || o.Right.Eval(f) }
func (o *Or) String() string           { return "(" + o.Left.String() + " || " + o.Right.String() + ")" }
func (*Or) predicate()                 {}

// Columns returns the columns p reads, in order of first use.
func Columns(p Predicate) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch p := p.(type) {
		case *Comparison:
			if !seen[p.Column.Name] {
				seen[p.Column.Name] = true
				names = append(names, p.Column.Name)
			}
		case *And:
			walk(p.Left)
			walk(p.Right)
		case *Or:
			walk(p.Left)
			walk(p.Right)
		}
	}
	walk(p)
	return names
}

// compareValues orders two values of the same kind. Bools only support
// equality, any difference compares as 1.
func compareValues(a, b any) int {
	switch a := a.(type) {
	case int64:
		return cmp.Compare(a, b.(int64))
	case string:
		return strings.Compare(a, b.(string))
	case time.Time:
		return a.Compare(b.(time.Time))
	case bool:
		if a == b.(bool) {
			return 0
		}
		return 1
	default:
		panic(fmt.Sprintf("predicate: uncomparable value %T", a))
	}
}

func formatLiteral(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case time.Time:
		return `timestamp("` + v.Format(time.RFC3339Nano) + `")`
	default:
		return fmt.Sprint(v)
	}
}

package predicate

import (
	"errors"
	"fmt"
	"time"

	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"
	"github.com/google/cel-go/common/types"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/schema"
)

var comparisonOps = map[string]Op{
	operators.Equals:        OpEq,
	operators.NotEquals:     OpNe,
	operators.Less:          OpLt,
	operators.LessEquals:    OpLe,
	operators.Greater:       OpGt,
	operators.GreaterEquals: OpGe,
}

// Translate converts expr into a native predicate. Any expression outside
// the supported shapes yields an error wrapping core.ErrUnsupportedPredicate,
// including expressions that do not parse or type-check. Supported shapes:
//
//	column OP literal, literal OP column   (OP one of == != < <= > >=)
//	a && b, a || b
//	bool_column
//
// Bool columns support == and != only; timestamp literals are written
// timestamp("2024-03-01T12:00:00Z").
func Translate(expr string) (Predicate, error) {
	checked, err := compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUnsupportedPredicate, err)
	}
	p, err := translate(checked.NativeRep().Expr())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnsupportedPredicate, err)
	}
	return p, nil
}

func translate(e celast.Expr) (Predicate, error) {
	switch e.Kind() {
	case celast.IdentKind:
		col, err := column(e)
		if err != nil {
			return nil, err
		}
		if col.Kind != schema.KindBool {
			return nil, fmt.Errorf("column %s is not bool", col.Name)
		}
		return &Comparison{Column: col, Op: OpEq, Literal: true}, nil

	case celast.CallKind:
		call := e.AsCall()
		args := call.Args()
		if call.IsMemberFunction() {
			return nil, fmt.Errorf("method call %s is not supported", call.FunctionName())
		}
		switch fn := call.FunctionName(); fn {
		case operators.LogicalAnd, operators.LogicalOr:
			return combine(fn, args)
		default:
			op, ok := comparisonOps[fn]
			if !ok || len(args) != 2 {
				return nil, fmt.Errorf("function %s is not supported", fn)
			}
			return comparison(op, args[0], args[1])
		}

	default:
		return nil, fmt.Errorf("expression kind %v is not supported", e.Kind())
	}
}

// combine folds a logical operator over its operands.
func combine(fn string, args []celast.Expr) (Predicate, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s needs two operands", fn)
	}
	acc, err := translate(args[0])
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		next, err := translate(a)
		if err != nil {
			return nil, err
		}
		if fn == operators.LogicalAnd {
			acc = &And{Left: acc, Right: next}
		} else {
			acc = &Or{Left: acc, Right: next}
		}
	}
	return acc, nil
}

func comparison(op Op, lhs, rhs celast.Expr) (Predicate, error) {
	colExpr, litExpr := lhs, rhs
	if lhs.Kind() != celast.IdentKind {
		colExpr, litExpr = rhs, lhs
		op = op.flip()
	}

	col, err := column(colExpr)
	if err != nil {
		return nil, err
	}
	lit, err := literal(litExpr, col.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", col.Name, err)
	}
	if col.Kind == schema.KindBool && op != OpEq && op != OpNe {
		return nil, fmt.Errorf("%s: bool columns support only == and !=", col.Name)
	}
	return &Comparison{Column: col, Op: op, Literal: lit}, nil
}

func column(e celast.Expr) (schema.Column, error) {
	if e.Kind() != celast.IdentKind {
		return schema.Column{}, errors.New("comparison needs a column operand")
	}
	col, ok := schema.Lookup(e.AsIdent())
	if !ok {
		return schema.Column{}, fmt.Errorf("%w: %q", core.ErrUnknownColumn, e.AsIdent())
	}
	if col.Kind == schema.KindBinary {
		return schema.Column{}, fmt.Errorf("column %s cannot be compared natively", col.Name)
	}
	return col, nil
}

// literal converts e to the comparison form of kind.
func literal(e celast.Expr, kind schema.Kind) (any, error) {
	if kind == schema.KindTimestamp {
		return timestampLiteral(e)
	}
	if e.Kind() != celast.LiteralKind {
		return nil, errors.New("comparison needs a literal operand")
	}
	switch v := e.AsLiteral().(type) {
	case types.Int:
		if kind == schema.KindInt {
			return int64(v), nil
		}
	case types.String:
		if kind == schema.KindString {
			return string(v), nil
		}
	case types.Bool:
		if kind == schema.KindBool {
			return bool(v), nil
		}
	}
	return nil, fmt.Errorf("literal of type %s does not match %s column", e.AsLiteral().Type(), kind)
}

func timestampLiteral(e celast.Expr) (any, error) {
	if e.Kind() != celast.CallKind {
		return nil, errors.New(`timestamp needs a timestamp("...") literal`)
	}
	call := e.AsCall()
	args := call.Args()
	if call.FunctionName() != overloads.TypeConvertTimestamp || len(args) != 1 || args[0].Kind() != celast.LiteralKind {
		return nil, errors.New(`timestamp needs a timestamp("...") literal`)
	}
	s, ok := args[0].AsLiteral().(types.String)
	if !ok {
		return nil, errors.New("timestamp literal must be an RFC 3339 string")
	}
	ts, err := time.Parse(time.RFC3339Nano, string(s))
	if err != nil {
		return nil, fmt.Errorf("timestamp literal: %w", err)
	}
	return ts.UTC(), nil
}

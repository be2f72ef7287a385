// Package predicate translates boolean expressions over the schema into
// native filters, and evaluates the ones it cannot translate client-side.
//
// Expressions are CEL (https://github.com/google/cel-go) with one variable
// per column, e.g. `has_dns && dst_port == 53`.
package predicate

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/schema"
)

var env = sync.OnceValues(func() (*cel.Env, error) {
	cols := schema.Columns()
	opts := make([]cel.EnvOption, 0, len(cols))
	for _, c := range cols {
		opts = append(opts, cel.Variable(c.Name, c.CELType()))
	}
	return cel.NewEnv(opts...)
})

// Env returns the CEL environment declaring every column.
func Env() (*cel.Env, error) {
	return env()
}

// compile parses and type-checks expr, which must yield a bool.
func compile(expr string) (*cel.Ast, error) {
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("predicate environment: %w", err)
	}
	checked, iss := e.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPredicate, iss.Err())
	}
	if out := checked.OutputType(); !out.IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression yields %s, not bool", core.ErrInvalidPredicate, out)
	}
	return checked, nil
}

// References returns the columns expr reads, in order of first use.
func References(expr string) ([]string, error) {
	checked, err := compile(expr)
	if err != nil {
		return nil, err
	}
	return references(checked.NativeRep().Expr()), nil
}

func references(root celast.Expr) []string {
	var names []string
	seen := make(map[string]bool)
	celast.PreOrderVisit(root, celast.NewExprVisitor(func(e celast.Expr) {
		if e.Kind() != celast.IdentKind {
			return
		}
		name := e.AsIdent()
		if _, ok := schema.Lookup(name); ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}))
	return names
}

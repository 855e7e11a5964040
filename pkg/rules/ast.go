// Package rules implements the constrained boolean expression grammar
// for ceiling-rule conditions: comparisons between a metric name and a
// literal, combinable with &&, || and ! plus parentheses. Expressions
// are parsed once at configuration-load time into an immutable AST and
// evaluated by tree-walking against a metrics record. No arbitrary
// code ever runs.
package rules

import (
	"fmt"
	"strconv"

	"github.com/pagepulse/pagepulse/pkg/metrics"
)

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
	OpNE Op = "!="
)

// Expr is an immutable expression node. Eval returns an error when the
// expression cannot be decided against the record (missing metric, type
// mismatch); callers treat that as non-matching, never as a failure.
type Expr interface {
	Eval(rec metrics.Record) (bool, error)
	String() string
}

// Compare tests one metric against a numeric or boolean literal.
type Compare struct {
	Metric string
	Op     Op

	// Exactly one literal kind is populated.
	Num    float64
	Flag   bool
	IsFlag bool
}

// Eval resolves the metric and applies the operator.
func (c *Compare) Eval(rec metrics.Record) (bool, error) {
	v, ok := rec.Lookup(c.Metric)
	if !ok {
		return false, fmt.Errorf("metric %q not present", c.Metric)
	}

	if c.IsFlag {
		flag, ok := v.AsBool()
		if !ok {
			return false, fmt.Errorf("metric %q is not boolean", c.Metric)
		}
		switch c.Op {
		case OpEQ:
			return flag == c.Flag, nil
		case OpNE:
			return flag != c.Flag, nil
		default:
			return false, fmt.Errorf("operator %s not defined for booleans", c.Op)
		}
	}

	num, ok := v.AsNumber()
	if !ok {
		return false, fmt.Errorf("metric %q is not numeric", c.Metric)
	}
	switch c.Op {
	case OpLT:
		return num < c.Num, nil
	case OpLE:
		return num <= c.Num, nil
	case OpGT:
		return num > c.Num, nil
	case OpGE:
		return num >= c.Num, nil
	case OpEQ:
		return num == c.Num, nil
	case OpNE:
		return num != c.Num, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

func (c *Compare) String() string {
	lit := strconv.FormatFloat(c.Num, 'g', -1, 64)
	if c.IsFlag {
		lit = strconv.FormatBool(c.Flag)
	}
	return fmt.Sprintf("%s %s %s", c.Metric, c.Op, lit)
}

// And is a short-circuit conjunction. A false left side decides the
// result without touching the right side.
type And struct {
	Left, Right Expr
}

func (a *And) Eval(rec metrics.Record) (bool, error) {
	left, err := a.Left.Eval(rec)
	if err != nil {
		return false, err
	}
	if !left {
		return false, nil
	}
	return a.Right.Eval(rec)
}

func (a *And) String() string {
	return parenIfOr(a.Left) + " && " + parenIfOr(a.Right)
}

// Or is a short-circuit disjunction.
type Or struct {
	Left, Right Expr
}

func (o *Or) Eval(rec metrics.Record) (bool, error) {
	left, err := o.Left.Eval(rec)
	if err != nil {
		return false, err
	}
	if left {
		return true, nil
	}
	return o.Right.Eval(rec)
}

func (o *Or) String() string {
	return o.Left.String() + " || " + o.Right.String()
}

// Not negates its child. An undecidable child stays undecidable, so
// !(missing > 5) is non-matching rather than vacuously true.
type Not struct {
	Expr Expr
}

func (n *Not) Eval(rec metrics.Record) (bool, error) {
	v, err := n.Expr.Eval(rec)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (n *Not) String() string {
	return "!(" + n.Expr.String() + ")"
}

// parenIfOr wraps lower-precedence children so String output re-parses
// to the same tree.
func parenIfOr(e Expr) string {
	if _, ok := e.(*Or); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

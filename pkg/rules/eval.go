package rules

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/orneryd/graphrule/pkg/graph"
)

// errMalformedExpr marks an expression tree the evaluator cannot
// interpret. Unlike ordinary evaluation errors, which merely reject the
// binding tuple, a malformed tree fails the whole rule.
var errMalformedExpr = errors.New("malformed expression")

// evaluator reduces an expression tree to a value under a binding context.
//
// Null follows SQL-style three-valued logic: comparing with null yields
// null, AND/OR use the three-valued truth tables, and a WHERE filter admits
// a binding only when the whole expression evaluates to exactly true.
type evaluator struct {
	g    *graph.Graph
	b    *Bindings
	opts Options
}

// eval reduces e to a value. A nil result with a nil error is the null
// value, not a failure.
func (ev *evaluator) eval(e Expr) (any, error) {
	switch expr := e.(type) {
	case *Literal:
		return expr.Value, nil

	case *VarRef:
		value, ok := ev.b.Get(expr.Name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", expr.Name, ErrUnboundVariable)
		}
		return value, nil

	case *PropertyAccess:
		value, ok := ev.b.Get(expr.Variable)
		if !ok {
			return nil, fmt.Errorf("%q: %w", expr.Variable, ErrUnboundVariable)
		}
		switch entity := value.(type) {
		case *graph.Node:
			return entity.Properties[expr.Property], nil
		case *graph.Edge:
			return entity.Properties[expr.Property], nil
		}
		return nil, fmt.Errorf("property access on non-entity %q: %w", expr.Variable, ErrTypeMismatch)

	case *ListExpr:
		items := make([]any, 0, len(expr.Items))
		for _, item := range expr.Items {
			v, err := ev.eval(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case *Unary:
		return ev.evalUnary(expr)

	case *Binary:
		return ev.evalBinary(expr)
	}
	return nil, fmt.Errorf("unknown expression node %T: %w", e, errMalformedExpr)
}

func (ev *evaluator) evalUnary(expr *Unary) (any, error) {
	operand, err := ev.eval(expr.Operand)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case OpIsNull:
		return operand == nil, nil
	case OpIsNotNull:
		return operand != nil, nil
	case OpNot:
		if operand == nil {
			return nil, nil
		}
		b, ok := operand.(bool)
		if !ok {
			return nil, fmt.Errorf("NOT on non-boolean: %w", ErrTypeMismatch)
		}
		return !b, nil
	case OpNeg:
		switch n := operand.(type) {
		case nil:
			return nil, nil
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("negation of non-number: %w", ErrTypeMismatch)
	}
	return nil, fmt.Errorf("unknown unary operator: %w", ErrTypeMismatch)
}

func (ev *evaluator) evalBinary(expr *Binary) (any, error) {
	// AND/OR evaluate the left side first and may not need the right at
	// all; everything else is strict in both operands.
	if expr.Op == OpAnd || expr.Op == OpOr {
		return ev.evalLogical(expr)
	}

	left, err := ev.eval(expr.Left)
	if err != nil {
		return nil, err
	}
	right, err := ev.eval(expr.Right)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case OpEq, OpNe:
		if left == nil || right == nil {
			return nil, nil
		}
		eq := valuesEqual(left, right, ev.opts.CoerceNumerics)
		if expr.Op == OpNe {
			return !eq, nil
		}
		return eq, nil

	case OpLt, OpLe, OpGt, OpGe:
		if left == nil || right == nil {
			return nil, nil
		}
		cmp, err := orderValues(left, right, ev.opts.CoerceNumerics)
		if err != nil {
			return nil, err
		}
		switch expr.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLe:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return ev.evalArithmetic(expr.Op, left, right)

	case OpIn:
		return ev.evalIn(left, right)
	}
	return nil, fmt.Errorf("unknown binary operator: %w", ErrTypeMismatch)
}

func (ev *evaluator) evalLogical(expr *Binary) (any, error) {
	left, err := ev.eval(expr.Left)
	if err != nil {
		return nil, err
	}
	lb, lok := left.(bool)
	if left != nil && !lok {
		return nil, fmt.Errorf("logical operator on non-boolean: %w", ErrTypeMismatch)
	}

	// Short-circuit where the truth table allows it
	if expr.Op == OpAnd && lok && !lb {
		return false, nil
	}
	if expr.Op == OpOr && lok && lb {
		return true, nil
	}

	right, err := ev.eval(expr.Right)
	if err != nil {
		return nil, err
	}
	rb, rok := right.(bool)
	if right != nil && !rok {
		return nil, fmt.Errorf("logical operator on non-boolean: %w", ErrTypeMismatch)
	}

	if expr.Op == OpAnd {
		switch {
		case rok && !rb:
			return false, nil
		case left == nil || right == nil:
			return nil, nil
		default:
			return lb && rb, nil
		}
	}
	switch {
	case rok && rb:
		return true, nil
	case left == nil || right == nil:
		return nil, nil
	default:
		return lb || rb, nil
	}
}

func (ev *evaluator) evalArithmetic(op BinaryOp, left, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}

	// String concatenation
	if op == OpAdd {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}

	li, lIsInt := asInt(left)
	ri, rIsInt := asInt(right)
	if lIsInt && rIsInt {
		switch op {
		case OpAdd:
			return li + ri, nil
		case OpSub:
			return li - ri, nil
		case OpMul:
			return li * ri, nil
		case OpDiv:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero: %w", ErrNumeric)
			}
			return li / ri, nil
		case OpMod:
			if ri == 0 {
				return nil, fmt.Errorf("modulo by zero: %w", ErrNumeric)
			}
			return li % ri, nil
		}
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic on non-numbers: %w", ErrTypeMismatch)
	}
	switch op {
	case OpAdd:
		return lf + rf, nil
	case OpSub:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	case OpDiv:
		if rf == 0 {
			return nil, fmt.Errorf("division by zero: %w", ErrNumeric)
		}
		return lf / rf, nil
	case OpMod:
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero: %w", ErrNumeric)
		}
		return float64(int64(lf) % int64(rf)), nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator: %w", ErrTypeMismatch)
}

// evalIn implements list membership with three-valued semantics:
// x IN list is the chained OR of x = item over the list.
func (ev *evaluator) evalIn(left, right any) (any, error) {
	if right == nil {
		return nil, nil
	}
	list, ok := right.([]any)
	if !ok {
		return nil, fmt.Errorf("IN requires a list: %w", ErrTypeMismatch)
	}
	if left == nil {
		return nil, nil
	}

	sawNull := false
	for _, item := range list {
		if item == nil {
			sawNull = true
			continue
		}
		if valuesEqual(left, item, ev.opts.CoerceNumerics) {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return false, nil
}

// ---- value comparison helpers ----

// valuesEqual compares two non-null values structurally. With coerce,
// numeric strings compare equal to their numeric value ("42" = 42).
func valuesEqual(a, b any, coerce bool) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		if coerce {
			if bf, bok := stringAsFloat(b); bok {
				return af == bf
			}
		}
		return false
	}
	if coerce {
		if af, aok := stringAsFloat(a); aok {
			if bf, bok := asFloat(b); bok {
				return af == bf
			}
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] == nil || bv[i] == nil {
				if av[i] != bv[i] {
					return false
				}
				continue
			}
			if !valuesEqual(av[i], bv[i], coerce) {
				return false
			}
		}
		return true
	}
	return a == b
}

// orderValues returns -1/0/1 for comparable values. Ordering is defined for
// numbers and for strings; anything else is a type error.
func orderValues(a, b any, coerce bool) (int, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if coerce {
		if !aok {
			af, aok = stringAsFloat(a)
		}
		if !bok {
			bf, bok = stringAsFloat(b)
		}
	}
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch {
		case as < bs:
			return -1, nil
		case as > bs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot order %T and %T: %w", a, b, ErrTypeMismatch)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stringAsFloat(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

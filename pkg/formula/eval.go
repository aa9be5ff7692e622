package formula

import (
	"math"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// RowContext supplies column values for a single row during evaluation.
// Lookup reports false only when the column does not exist in the table
// schema at all. A known column whose cell was never written should
// return the declared type's zero value, and a cell in error state
// should return its error value so the error flows through.
type RowContext interface {
	Lookup(name string) (value.Value, bool)
}

// MapContext is a RowContext backed by a plain map. A name missing from
// the map is treated as an unknown column.
type MapContext map[string]value.Value

func (m MapContext) Lookup(name string) (value.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Config configures an Evaluator. Zero fields fall back to the shared
// built-in registry and the system clock.
type Config struct {
	Funcs *Registry
	Clock Clock
}

// Evaluator evaluates parsed expressions against row contexts. It is
// pure: no storage access, no panics on missing data, all failures
// surface as error-kind values.
type Evaluator struct {
	funcs *Registry
	clock Clock
}

// NewEvaluator creates an evaluator from cfg.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.Funcs == nil {
		cfg.Funcs = DefaultRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Evaluator{funcs: cfg.Funcs, clock: cfg.Clock}
}

var defaultEvaluator = NewEvaluator(Config{})

// Eval evaluates expr against row using the built-in function set and
// the system clock.
func Eval(expr Expr, row RowContext) value.Value {
	return defaultEvaluator.Eval(expr, row)
}

// Eval evaluates expr against row. The result is never a panic: every
// failure mode maps to an error-kind value (#REF, #DIV0, #TYPE,
// #VALUE), and error values referenced from the row context propagate
// through operators and eager function arguments.
func (ev *Evaluator) Eval(expr Expr, row RowContext) value.Value {
	switch e := expr.(type) {
	case *Literal:
		return e.Value
	case *ColumnRef:
		v, ok := row.Lookup(e.Name)
		if !ok {
			return value.Errorf(value.ErrCodeRef, "unknown column %q", e.Name)
		}
		return v
	case *UnaryExpr:
		return ev.evalUnary(e, row)
	case *BinaryExpr:
		return ev.evalBinary(e, row)
	case *FuncCall:
		return ev.evalCall(e, row)
	default:
		return value.Errorf(value.ErrCodeValue, "unsupported expression node %T", expr)
	}
}

func (ev *Evaluator) evalUnary(e *UnaryExpr, row RowContext) value.Value {
	x := ev.Eval(e.X, row)
	if x.IsError() {
		return x
	}
	n, ok := value.ToNumber(x)
	if !ok {
		return value.Errorf(value.ErrCodeType, "unary %s requires a number, got %s", e.Op, x.Kind())
	}
	if e.Op == TOKEN_MINUS {
		return value.Number(-n)
	}
	return value.Number(n)
}

func (ev *Evaluator) evalBinary(e *BinaryExpr, row RowContext) value.Value {
	left := ev.Eval(e.Left, row)
	if left.IsError() {
		return left
	}
	right := ev.Eval(e.Right, row)
	if right.IsError() {
		return right
	}

	switch e.Op {
	case TOKEN_AMP:
		return value.Text(value.ToText(left) + value.ToText(right))
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH, TOKEN_PERCENT, TOKEN_CARET:
		return evalArithmetic(e.Op, left, right)
	case TOKEN_EQ, TOKEN_NE:
		eq := valuesEqual(left, right)
		if e.Op == TOKEN_NE {
			return value.Bool(!eq)
		}
		return value.Bool(eq)
	case TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		cmp, ok := value.Compare(left, right)
		if !ok {
			return value.Errorf(value.ErrCodeType, "cannot order %s against %s", left.Kind(), right.Kind())
		}
		switch e.Op {
		case TOKEN_LT:
			return value.Bool(cmp < 0)
		case TOKEN_LE:
			return value.Bool(cmp <= 0)
		case TOKEN_GT:
			return value.Bool(cmp > 0)
		default:
			return value.Bool(cmp >= 0)
		}
	default:
		return value.Errorf(value.ErrCodeValue, "unsupported operator %s", e.Op)
	}
}

// valuesEqual implements = and !=. Same-kind values compare by value,
// null compares equal to the other side's zero value, and values of
// different kinds are simply unequal rather than an error.
func valuesEqual(left, right value.Value) bool {
	if cmp, ok := value.Compare(left, right); ok {
		return cmp == 0
	}
	return left.Equal(right)
}

func evalArithmetic(op TokenType, left, right value.Value) value.Value {
	if left.Kind() == value.KindDate || right.Kind() == value.KindDate {
		return evalDateArithmetic(op, left, right)
	}

	l, ok := value.ToNumber(left)
	if !ok {
		return value.Errorf(value.ErrCodeType, "operator %s requires a number, got %s", op, left.Kind())
	}
	r, ok := value.ToNumber(right)
	if !ok {
		return value.Errorf(value.ErrCodeType, "operator %s requires a number, got %s", op, right.Kind())
	}

	switch op {
	case TOKEN_PLUS:
		return finiteNumber(l + r)
	case TOKEN_MINUS:
		return finiteNumber(l - r)
	case TOKEN_STAR:
		return finiteNumber(l * r)
	case TOKEN_SLASH:
		if r == 0 {
			return value.Errorf(value.ErrCodeDiv0, "division by zero")
		}
		return finiteNumber(l / r)
	case TOKEN_PERCENT:
		if r == 0 {
			return value.Errorf(value.ErrCodeDiv0, "modulo by zero")
		}
		return finiteNumber(math.Mod(l, r))
	default: // TOKEN_CARET
		return finiteNumber(math.Pow(l, r))
	}
}

// evalDateArithmetic covers the defined date forms: date +/- number
// shifts by whole days in either operand order for +, and date - date
// yields the difference in days. Everything else is a type error.
func evalDateArithmetic(op TokenType, left, right value.Value) value.Value {
	lDate := left.Kind() == value.KindDate
	rDate := right.Kind() == value.KindDate

	switch op {
	case TOKEN_PLUS:
		if lDate && !rDate {
			if n, ok := value.ToNumber(right); ok {
				return value.Date(left.Time().AddDate(0, 0, int(n)))
			}
		}
		if rDate && !lDate {
			if n, ok := value.ToNumber(left); ok {
				return value.Date(right.Time().AddDate(0, 0, int(n)))
			}
		}
	case TOKEN_MINUS:
		if lDate && rDate {
			return value.Number(left.Time().Sub(right.Time()).Hours() / 24)
		}
		if lDate {
			if n, ok := value.ToNumber(right); ok {
				return value.Date(left.Time().AddDate(0, 0, -int(n)))
			}
		}
	}
	return value.Errorf(value.ErrCodeType, "operator %s is not defined for %s and %s", op, left.Kind(), right.Kind())
}

func (ev *Evaluator) evalCall(e *FuncCall, row RowContext) value.Value {
	fn, ok := ev.funcs.Lookup(e.Name)
	if !ok {
		return value.Errorf(value.ErrCodeValue, "unknown function %q", e.Name)
	}
	if got := len(e.Args); got < fn.MinArgs || (fn.MaxArgs >= 0 && got > fn.MaxArgs) {
		return arityError(fn.Name, fn.MinArgs, fn.MaxArgs, got)
	}

	ctx := &CallCtx{
		Clock: ev.clock,
		Eval:  func(x Expr) value.Value { return ev.Eval(x, row) },
	}

	// Lazy control forms receive raw expressions and decide what to
	// evaluate themselves.
	if fn.CallExpr != nil {
		return fn.CallExpr(ctx, e.Args)
	}

	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		args[i] = ev.Eval(a, row)
		if args[i].IsError() {
			return args[i]
		}
	}
	return fn.Call(ctx, args)
}

package formula

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// Clock supplies the current time to TODAY and NOW. Tests inject a
// fixed clock for deterministic results.
type Clock interface {
	Now() time.Time
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// CallCtx carries evaluation services into function implementations.
type CallCtx struct {
	Clock Clock
	// Eval evaluates an argument expression in the calling row context.
	// Only lazy control forms need it.
	Eval func(Expr) value.Value
}

// Func is a formula function. Eager functions implement Call and
// receive fully evaluated arguments with argument errors already
// propagated. Lazy control forms (IF, IFERROR) implement CallExpr
// instead and receive the raw argument expressions.
type Func struct {
	Name     string
	Doc      string
	MinArgs  int
	MaxArgs  int // -1 means variadic
	Call     func(ctx *CallCtx, args []value.Value) value.Value
	CallExpr func(ctx *CallCtx, args []Expr) value.Value
}

// Resolver resolves namespaced extension functions such as
// "stats.zscore". Implementations decide their own name matching.
type Resolver interface {
	Resolve(name string) (*Func, bool)
}

// Registry resolves function names for the evaluator. Built-in names
// match case-insensitively. Namespaced names, identified by a dot, are
// delegated to the extension Resolver when one is installed.
type Registry struct {
	builtins map[string]*Func
	ext      Resolver
}

// NewRegistry creates a registry holding the built-in function set.
// ext may be nil.
func NewRegistry(ext Resolver) *Registry {
	r := &Registry{builtins: make(map[string]*Func), ext: ext}
	r.registerBuiltins()
	return r
}

var defaultRegistry = NewRegistry(nil)

// DefaultRegistry returns the shared registry of built-in functions
// without extensions.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds fn, replacing any existing built-in with the same name.
func (r *Registry) Register(fn *Func) {
	r.builtins[strings.ToLower(fn.Name)] = fn
}

// Lookup resolves a function name from a parsed call.
func (r *Registry) Lookup(name string) (*Func, bool) {
	if strings.Contains(name, ".") {
		if r.ext == nil {
			return nil, false
		}
		return r.ext.Resolve(name)
	}
	fn, ok := r.builtins[strings.ToLower(name)]
	return fn, ok
}

// Builtins returns the built-in functions sorted by name.
func (r *Registry) Builtins() []*Func {
	out := make([]*Func, 0, len(r.builtins))
	for _, fn := range r.builtins {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) registerBuiltins() {
	for _, fn := range []*Func{
		{Name: "SUM", Doc: "Sum of all numeric arguments", MinArgs: 1, MaxArgs: -1, Call: fnSum},
		{Name: "AVERAGE", Doc: "Arithmetic mean of all numeric arguments", MinArgs: 1, MaxArgs: -1, Call: fnAverage},
		{Name: "MIN", Doc: "Smallest numeric argument", MinArgs: 1, MaxArgs: -1, Call: fnMin},
		{Name: "MAX", Doc: "Largest numeric argument", MinArgs: 1, MaxArgs: -1, Call: fnMax},
		{Name: "COUNT", Doc: "Number of non-empty arguments", MinArgs: 1, MaxArgs: -1, Call: fnCount},
		{Name: "ABS", Doc: "Absolute value", MinArgs: 1, MaxArgs: 1, Call: fnAbs},
		{Name: "ROUND", Doc: "Round to a number of digits, half away from zero", MinArgs: 1, MaxArgs: 2, Call: fnRound},
		{Name: "FLOOR", Doc: "Round down to the nearest integer", MinArgs: 1, MaxArgs: 1, Call: fnFloor},
		{Name: "CEILING", Doc: "Round up to the nearest integer", MinArgs: 1, MaxArgs: 1, Call: fnCeiling},
		{Name: "SQRT", Doc: "Square root", MinArgs: 1, MaxArgs: 1, Call: fnSqrt},
		{Name: "POWER", Doc: "Base raised to an exponent", MinArgs: 2, MaxArgs: 2, Call: fnPower},
		{Name: "MOD", Doc: "Remainder of a division", MinArgs: 2, MaxArgs: 2, Call: fnMod},
		{Name: "IF", Doc: "Conditional: IF(cond, then, else); only the taken branch evaluates", MinArgs: 2, MaxArgs: 3, CallExpr: fnIf},
		{Name: "AND", Doc: "True when every argument is true", MinArgs: 1, MaxArgs: -1, Call: fnAnd},
		{Name: "OR", Doc: "True when any argument is true", MinArgs: 1, MaxArgs: -1, Call: fnOr},
		{Name: "NOT", Doc: "Boolean negation", MinArgs: 1, MaxArgs: 1, Call: fnNot},
		{Name: "IFERROR", Doc: "First argument, or the fallback when it errors", MinArgs: 2, MaxArgs: 2, CallExpr: fnIfError},
		{Name: "CONCAT", Doc: "Concatenate all arguments as text", MinArgs: 1, MaxArgs: -1, Call: fnConcat},
		{Name: "LEN", Doc: "Length of text in characters", MinArgs: 1, MaxArgs: 1, Call: fnLen},
		{Name: "UPPER", Doc: "Text in upper case", MinArgs: 1, MaxArgs: 1, Call: fnUpper},
		{Name: "LOWER", Doc: "Text in lower case", MinArgs: 1, MaxArgs: 1, Call: fnLower},
		{Name: "TRIM", Doc: "Text without leading and trailing whitespace", MinArgs: 1, MaxArgs: 1, Call: fnTrim},
		{Name: "LEFT", Doc: "Leading characters of text: LEFT(text, count=1)", MinArgs: 1, MaxArgs: 2, Call: fnLeft},
		{Name: "RIGHT", Doc: "Trailing characters of text: RIGHT(text, count=1)", MinArgs: 1, MaxArgs: 2, Call: fnRight},
		{Name: "CONTAINS", Doc: "True when text contains a substring", MinArgs: 2, MaxArgs: 2, Call: fnContains},
		{Name: "NUMBER", Doc: "Convert a value to a number", MinArgs: 1, MaxArgs: 1, Call: fnNumber},
		{Name: "TEXT", Doc: "Convert a value to text", MinArgs: 1, MaxArgs: 1, Call: fnText},
		{Name: "DATE", Doc: "Parse a date: DATE(text) or DATE(year, month, day)", MinArgs: 1, MaxArgs: 3, Call: fnDate},
		{Name: "TODAY", Doc: "Current date at midnight UTC", MinArgs: 0, MaxArgs: 0, Call: fnToday},
		{Name: "NOW", Doc: "Current date and time", MinArgs: 0, MaxArgs: 0, Call: fnNow},
		{Name: "DAYS", Doc: "Whole days between two dates: DAYS(end, start)", MinArgs: 2, MaxArgs: 2, Call: fnDays},
	} {
		r.Register(fn)
	}
}

func arityError(name string, min, max, got int) value.Value {
	switch {
	case max < 0:
		return value.Errorf(value.ErrCodeValue, "%s expects at least %d argument(s), got %d", name, min, got)
	case min == max:
		return value.Errorf(value.ErrCodeValue, "%s expects %d argument(s), got %d", name, min, got)
	default:
		return value.Errorf(value.ErrCodeValue, "%s expects between %d and %d arguments, got %d", name, min, max, got)
	}
}

// finiteNumber guards against NaN and infinity escaping into cell
// values, e.g. from overflow or POWER(0, -1).
func finiteNumber(f float64) value.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value.NewError(value.ErrCodeValue, "result is not a finite number")
	}
	return value.Number(f)
}

// numArgs coerces every argument to a number. The second return is an
// error value on failure and null on success.
func numArgs(name string, args []value.Value) ([]float64, value.Value) {
	out := make([]float64, len(args))
	for i, a := range args {
		n, ok := value.ToNumber(a)
		if !ok {
			return nil, value.Errorf(value.ErrCodeType, "%s argument %d must be a number, got %s", name, i+1, a.Kind())
		}
		out[i] = n
	}
	return out, value.Null()
}

func fnSum(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("SUM", args)
	if errv.IsError() {
		return errv
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return finiteNumber(total)
}

func fnAverage(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("AVERAGE", args)
	if errv.IsError() {
		return errv
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return finiteNumber(total / float64(len(nums)))
}

func fnMin(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("MIN", args)
	if errv.IsError() {
		return errv
	}
	min := nums[0]
	for _, n := range nums[1:] {
		if n < min {
			min = n
		}
	}
	return value.Number(min)
}

func fnMax(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("MAX", args)
	if errv.IsError() {
		return errv
	}
	max := nums[0]
	for _, n := range nums[1:] {
		if n > max {
			max = n
		}
	}
	return value.Number(max)
}

func fnCount(_ *CallCtx, args []value.Value) value.Value {
	count := 0
	for _, a := range args {
		if !a.IsNull() {
			count++
		}
	}
	return value.Number(float64(count))
}

func fnAbs(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("ABS", args)
	if errv.IsError() {
		return errv
	}
	return value.Number(math.Abs(nums[0]))
}

func fnRound(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("ROUND", args)
	if errv.IsError() {
		return errv
	}
	digits := 0.0
	if len(nums) == 2 {
		digits = math.Trunc(nums[1])
	}
	shift := math.Pow(10, digits)
	return finiteNumber(math.Round(nums[0]*shift) / shift)
}

func fnFloor(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("FLOOR", args)
	if errv.IsError() {
		return errv
	}
	return value.Number(math.Floor(nums[0]))
}

func fnCeiling(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("CEILING", args)
	if errv.IsError() {
		return errv
	}
	return value.Number(math.Ceil(nums[0]))
}

func fnSqrt(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("SQRT", args)
	if errv.IsError() {
		return errv
	}
	if nums[0] < 0 {
		return value.NewError(value.ErrCodeValue, "SQRT of a negative number")
	}
	return value.Number(math.Sqrt(nums[0]))
}

func fnPower(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("POWER", args)
	if errv.IsError() {
		return errv
	}
	return finiteNumber(math.Pow(nums[0], nums[1]))
}

func fnMod(_ *CallCtx, args []value.Value) value.Value {
	nums, errv := numArgs("MOD", args)
	if errv.IsError() {
		return errv
	}
	if nums[1] == 0 {
		return value.NewError(value.ErrCodeDiv0, "modulo by zero")
	}
	return value.Number(math.Mod(nums[0], nums[1]))
}

func fnIf(ctx *CallCtx, args []Expr) value.Value {
	cond := ctx.Eval(args[0])
	if cond.IsError() {
		return cond
	}
	b, ok := value.ToBool(cond)
	if !ok {
		return value.Errorf(value.ErrCodeType, "IF condition must be a boolean, got %s", cond.Kind())
	}
	if b {
		return ctx.Eval(args[1])
	}
	if len(args) == 3 {
		return ctx.Eval(args[2])
	}
	return value.Null()
}

func fnIfError(ctx *CallCtx, args []Expr) value.Value {
	v := ctx.Eval(args[0])
	if v.IsError() {
		return ctx.Eval(args[1])
	}
	return v
}

func boolArgs(name string, args []value.Value) ([]bool, value.Value) {
	out := make([]bool, len(args))
	for i, a := range args {
		b, ok := value.ToBool(a)
		if !ok {
			return nil, value.Errorf(value.ErrCodeType, "%s argument %d must be a boolean, got %s", name, i+1, a.Kind())
		}
		out[i] = b
	}
	return out, value.Null()
}

func fnAnd(_ *CallCtx, args []value.Value) value.Value {
	bools, errv := boolArgs("AND", args)
	if errv.IsError() {
		return errv
	}
	for _, b := range bools {
		if !b {
			return value.Bool(false)
		}
	}
	return value.Bool(true)
}

func fnOr(_ *CallCtx, args []value.Value) value.Value {
	bools, errv := boolArgs("OR", args)
	if errv.IsError() {
		return errv
	}
	for _, b := range bools {
		if b {
			return value.Bool(true)
		}
	}
	return value.Bool(false)
}

func fnNot(_ *CallCtx, args []value.Value) value.Value {
	b, ok := value.ToBool(args[0])
	if !ok {
		return value.Errorf(value.ErrCodeType, "NOT argument must be a boolean, got %s", args[0].Kind())
	}
	return value.Bool(!b)
}

func fnConcat(_ *CallCtx, args []value.Value) value.Value {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(value.ToText(a))
	}
	return value.Text(sb.String())
}

func fnLen(_ *CallCtx, args []value.Value) value.Value {
	return value.Number(float64(utf8.RuneCountInString(value.ToText(args[0]))))
}

func fnUpper(_ *CallCtx, args []value.Value) value.Value {
	return value.Text(strings.ToUpper(value.ToText(args[0])))
}

func fnLower(_ *CallCtx, args []value.Value) value.Value {
	return value.Text(strings.ToLower(value.ToText(args[0])))
}

func fnTrim(_ *CallCtx, args []value.Value) value.Value {
	return value.Text(strings.TrimSpace(value.ToText(args[0])))
}

func textCount(name string, args []value.Value) (string, int, value.Value) {
	s := value.ToText(args[0])
	n := 1
	if len(args) == 2 {
		f, ok := value.ToNumber(args[1])
		if !ok || f < 0 {
			return "", 0, value.Errorf(value.ErrCodeValue, "%s count must be a non-negative number", name)
		}
		n = int(f)
	}
	return s, n, value.Null()
}

func fnLeft(_ *CallCtx, args []value.Value) value.Value {
	s, n, errv := textCount("LEFT", args)
	if errv.IsError() {
		return errv
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return value.Text(string(runes[:n]))
}

func fnRight(_ *CallCtx, args []value.Value) value.Value {
	s, n, errv := textCount("RIGHT", args)
	if errv.IsError() {
		return errv
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return value.Text(string(runes[len(runes)-n:]))
}

func fnContains(_ *CallCtx, args []value.Value) value.Value {
	return value.Bool(strings.Contains(value.ToText(args[0]), value.ToText(args[1])))
}

func fnNumber(_ *CallCtx, args []value.Value) value.Value {
	n, ok := value.ToNumber(args[0])
	if !ok {
		return value.Errorf(value.ErrCodeValue, "cannot convert %q to a number", value.ToText(args[0]))
	}
	return value.Number(n)
}

func fnText(_ *CallCtx, args []value.Value) value.Value {
	return value.Text(value.ToText(args[0]))
}

func fnDate(_ *CallCtx, args []value.Value) value.Value {
	switch len(args) {
	case 1:
		v := args[0]
		if v.Kind() == value.KindDate {
			return v
		}
		t, err := value.ParseDate(value.ToText(v))
		if err != nil {
			return value.Errorf(value.ErrCodeValue, "cannot parse %q as a date", value.ToText(v))
		}
		return value.Date(t)
	case 3:
		nums, errv := numArgs("DATE", args)
		if errv.IsError() {
			return errv
		}
		y, m, d := int(nums[0]), int(nums[1]), int(nums[2])
		return value.Date(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC))
	default:
		return value.NewError(value.ErrCodeValue, "DATE expects 1 or 3 arguments")
	}
}

func fnToday(ctx *CallCtx, _ []value.Value) value.Value {
	t := ctx.Clock.Now().UTC()
	return value.Date(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func fnNow(ctx *CallCtx, _ []value.Value) value.Value {
	return value.Date(ctx.Clock.Now())
}

func fnDays(_ *CallCtx, args []value.Value) value.Value {
	if args[0].Kind() != value.KindDate || args[1].Kind() != value.KindDate {
		return value.Errorf(value.ErrCodeType, "DAYS expects two dates, got %s and %s", args[0].Kind(), args[1].Kind())
	}
	return value.Number(math.Trunc(args[0].Time().Sub(args[1].Time()).Hours() / 24))
}

// Package value defines the typed cell value model for LeapGrid.
//
// A Value is a closed tagged union over the kinds a cell can hold: text,
// number, boolean, date, null, or an evaluation error. Formula evaluation,
// cell storage, and the API layer all speak this type; there is no dynamic
// "any" representation anywhere in the engine.
package value

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	KindError
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a typed cell value. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	t    time.Time
	err  *EvalError
}

// Null returns the null value.
func Null() Value {
	return Value{kind: KindNull}
}

// Text returns a text value.
func Text(s string) Value {
	return Value{kind: KindText, str: s}
}

// Number returns a number value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Date returns a date value. Dates are stored in UTC at second precision;
// the calendar day is what formulas operate on.
func Date(t time.Time) Value {
	return Value{kind: KindDate, t: t.UTC().Truncate(time.Second)}
}

// NewError returns an error value carrying the given code and message.
func NewError(code ErrorCode, msg string) Value {
	return Value{kind: KindError, err: &EvalError{Code: code, Message: msg}}
}

// Errorf returns an error value with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) Value {
	return NewError(code, fmt.Sprintf(format, args...))
}

// FromEvalError wraps an existing evaluation error as a value.
func FromEvalError(err *EvalError) Value {
	return Value{kind: KindError, err: err}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsError reports whether the value is an evaluation error.
func (v Value) IsError() bool { return v.kind == KindError }

// Num returns the numeric payload. Valid only for KindNumber.
func (v Value) Num() float64 { return v.num }

// Str returns the text payload. Valid only for KindText.
func (v Value) Str() string { return v.str }

// Bool returns the boolean payload. Valid only for KindBool.
func (v Value) Bool() bool { return v.b }

// Time returns the date payload. Valid only for KindDate.
func (v Value) Time() time.Time { return v.t }

// Err returns the evaluation error, or nil if the value is not an error.
func (v Value) Err() *EvalError { return v.err }

// Zero returns the type-appropriate zero value for a kind: empty text,
// 0, false, or the zero date. Used for references to cells that have never
// been written.
func Zero(k Kind) Value {
	switch k {
	case KindText:
		return Text("")
	case KindNumber:
		return Number(0)
	case KindBool:
		return Bool(false)
	case KindDate:
		return Date(time.Time{})
	default:
		return Null()
	}
}

// String renders the value for display. Errors render as their code.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindText:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindDate:
		if v.t.IsZero() {
			return ""
		}
		return v.t.Format(dateLayout)
	case KindError:
		return string(v.err.Code)
	default:
		return ""
	}
}

// Equal reports whether two values hold the same kind and payload.
// Error values compare by code only.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindError:
		return v.err.Code == o.err.Code
	default:
		return false
	}
}

// Layouts accepted when decoding date values. The first is the canonical
// storage form.
const dateLayout = time.RFC3339

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Encode serializes the payload for storage. Null and error values have no
// stored payload; callers persist those states separately.
func (v Value) Encode() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(dateLayout)
	default:
		return v.str
	}
}

// Decode parses a stored payload back into a value of the given kind.
func Decode(k Kind, s string) (Value, error) {
	switch k {
	case KindText:
		return Text(s), nil
	case KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid stored number %q", s)
		}
		return Number(f), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Null(), fmt.Errorf("invalid stored boolean %q", s)
		}
		return Bool(b), nil
	case KindDate:
		t, err := ParseDate(s)
		if err != nil {
			return Null(), err
		}
		return Date(t), nil
	case KindNull:
		return Null(), nil
	default:
		return Null(), fmt.Errorf("cannot decode kind %s", k)
	}
}

// ParseDate parses date text in any accepted layout.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

package value

import (
	"strconv"
	"strings"
)

// ToNumber coerces a value to float64 for arithmetic. Booleans count as
// 1/0, numeric text parses strictly, and null is 0 (the zero-value policy
// for never-written cells). Dates and non-numeric text do not coerce.
func ToNumber(v Value) (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindText:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindNull:
		return 0, true
	default:
		return 0, false
	}
}

// ToText coerces a value to its text form. Null is the empty string.
func ToText(v Value) string {
	if v.kind == KindError {
		return string(v.err.Code)
	}
	return v.String()
}

// ToBool coerces a value to a condition. Numbers are true when non-zero,
// text must spell a boolean, null is false.
func ToBool(v Value) (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindNumber:
		return v.num != 0, true
	case KindText:
		switch strings.ToLower(strings.TrimSpace(v.str)) {
		case "true":
			return true, true
		case "false", "":
			return false, true
		}
		return false, false
	case KindNull:
		return false, true
	default:
		return false, false
	}
}

// Compare orders two values of the same kind: -1, 0, or 1. The second
// return is false when the pair is not comparable (mixed kinds, errors).
// Nulls order as the zero value of the other side's kind.
func Compare(a, b Value) (int, bool) {
	if a.kind == KindNull && b.kind != KindNull && b.kind != KindError {
		a = Zero(b.kind)
	}
	if b.kind == KindNull && a.kind != KindNull && a.kind != KindError {
		b = Zero(a.kind)
	}
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindNull:
		return 0, true
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1, true
		case a.num > b.num:
			return 1, true
		}
		return 0, true
	case KindText:
		return strings.Compare(a.str, b.str), true
	case KindBool:
		switch {
		case !a.b && b.b:
			return -1, true
		case a.b && !b.b:
			return 1, true
		}
		return 0, true
	case KindDate:
		switch {
		case a.t.Before(b.t):
			return -1, true
		case a.t.After(b.t):
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Convert coerces a value to the target kind, enforcing the declared column
// type on evaluation results. Errors and nulls pass through unchanged.
func Convert(v Value, k Kind) (Value, bool) {
	if v.kind == KindError || v.kind == KindNull || v.kind == k {
		return v, true
	}
	switch k {
	case KindText:
		return Text(ToText(v)), true
	case KindNumber:
		f, ok := ToNumber(v)
		if !ok {
			return v, false
		}
		return Number(f), true
	case KindBool:
		b, ok := ToBool(v)
		if !ok {
			return v, false
		}
		return Bool(b), true
	case KindDate:
		if v.kind == KindText {
			t, err := ParseDate(strings.TrimSpace(v.str))
			if err != nil {
				return v, false
			}
			return Date(t), true
		}
		return v, false
	default:
		return v, false
	}
}

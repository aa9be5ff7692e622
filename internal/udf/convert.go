package udf

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// toStarlark converts a cell value to its Starlark representation.
// Dates cross the boundary as ISO-8601 strings; scripts that need
// structured dates parse them, and DATE() re-parses results. Error
// values never reach a script: the evaluator propagates argument errors
// before calling.
func toStarlark(v value.Value) (starlark.Value, error) {
	switch v.Kind() {
	case value.KindNull:
		return starlark.None, nil
	case value.KindText:
		return starlark.String(v.Str()), nil
	case value.KindNumber:
		return starlark.Float(v.Num()), nil
	case value.KindBool:
		return starlark.Bool(v.Bool()), nil
	case value.KindDate:
		return starlark.String(value.ToText(v)), nil
	default:
		return nil, fmt.Errorf("unsupported value kind: %s", v.Kind())
	}
}

// fromStarlark converts a script's return value back to a cell value.
// Collections have no cell representation and are rejected.
func fromStarlark(v starlark.Value) (value.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return value.Null(), nil

	case starlark.String:
		return value.Text(string(val)), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return value.Null(), fmt.Errorf("integer result does not fit in a number")
		}
		return value.Number(float64(i64)), nil

	case starlark.Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return value.Null(), fmt.Errorf("result is not a finite number")
		}
		return value.Number(f), nil

	case starlark.Bool:
		return value.Bool(bool(val)), nil

	default:
		return value.Null(), fmt.Errorf("cannot use %s as a cell value", v.Type())
	}
}

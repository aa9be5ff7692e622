package value

import (
	"encoding/json"
	"math"
)

// errorJSON is the wire shape for error values.
type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON encodes the value as the natural JSON scalar for its kind:
// null, string, number, boolean, an RFC 3339 string for dates, and a
// {"code","message"} object for errors. Decoding is schema-directed and
// lives with the column type, so there is no UnmarshalJSON counterpart.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		if v.t.IsZero() {
			return []byte("null"), nil
		}
		return json.Marshal(v.t.Format(dateLayout))
	case KindError:
		return json.Marshal(errorJSON{Code: string(v.err.Code), Message: v.err.Message})
	default:
		return []byte("null"), nil
	}
}

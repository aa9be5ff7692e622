package value

import "fmt"

// ErrorCode identifies an evaluation failure class. Codes are stored on
// cells verbatim and surfaced to API clients.
type ErrorCode string

const (
	// ErrCodeRef means a referenced column does not exist.
	ErrCodeRef ErrorCode = "#REF"

	// ErrCodeDiv0 means division or modulo by zero.
	ErrCodeDiv0 ErrorCode = "#DIV0"

	// ErrCodeType means an operand had an incompatible type for the
	// operator or function that consumed it.
	ErrCodeType ErrorCode = "#TYPE"

	// ErrCodeValue means a literal or conversion input was malformed.
	ErrCodeValue ErrorCode = "#VALUE"

	// ErrCodeCycle means the cell participates in (or sits downstream of)
	// a dependency cycle.
	ErrCodeCycle ErrorCode = "#CYCLE"
)

// Valid reports whether the code is one of the defined evaluation codes.
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrCodeRef, ErrCodeDiv0, ErrCodeType, ErrCodeValue, ErrCodeCycle:
		return true
	}
	return false
}

// EvalError is the error recorded when a formula fails to evaluate.
// It is carried inside error-kind values and propagates through operators.
type EvalError struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

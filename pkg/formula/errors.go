package formula

import "fmt"

// Error message formats used by the lexer and parser.
const (
	ErrUnexpectedToken     = "unexpected token %s, expected %s"
	ErrUnexpectedEOF       = "unexpected end of formula"
	ErrUnterminatedString  = "unterminated string literal"
	ErrUnterminatedBracket = "unterminated column reference, missing ]"
	ErrInvalidNumber       = "invalid numeric literal %q"
	ErrIllegalCharacter    = "illegal character %q"
	ErrEmptyColumnRef      = "empty column reference []"
	ErrTrailingInput       = "unexpected token %s after end of formula"
)

// ParseError represents a syntax error in a formula with position
// information.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// LexError represents an error during tokenization.
type LexError struct {
	Pos     Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

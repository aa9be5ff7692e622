package formula

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a lexical token.
type TokenType int

//nolint:revive // TOKEN_* names are intentionally ALL_CAPS for token conventions
const (
	// TokenEOF represents end of input.
	TOKEN_EOF TokenType = iota
	// TokenIllegal represents an illegal/unrecognized token.
	TOKEN_ILLEGAL

	// TokenIdent represents a column or function identifier.
	TOKEN_IDENT
	// TokenNumber represents a numeric literal.
	TOKEN_NUMBER // 123, 45.67, 1e10
	// TokenString represents a string literal.
	TOKEN_STRING // "hello"

	TOKEN_PLUS    // +
	TOKEN_MINUS   // -
	TOKEN_STAR    // *
	TOKEN_SLASH   // /
	TOKEN_PERCENT // %
	TOKEN_CARET   // ^
	TOKEN_AMP     // &
	TOKEN_EQ      // = or ==
	TOKEN_NE      // != or <>
	TOKEN_LT      // <
	TOKEN_GT      // >
	TOKEN_LE      // <=
	TOKEN_GE      // >=
	TOKEN_DOT     // .
	TOKEN_COMMA   // ,
	TOKEN_LPAREN  // (
	TOKEN_RPAREN  // )

	// Keywords
	TOKEN_TRUE
	TOKEN_FALSE
)

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Position represents a location in the formula source.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", int(t))
}

var tokenNames = map[TokenType]string{
	TOKEN_EOF:     "EOF",
	TOKEN_ILLEGAL: "ILLEGAL",

	TOKEN_IDENT:  "IDENT",
	TOKEN_NUMBER: "NUMBER",
	TOKEN_STRING: "STRING",

	TOKEN_PLUS:    "+",
	TOKEN_MINUS:   "-",
	TOKEN_STAR:    "*",
	TOKEN_SLASH:   "/",
	TOKEN_PERCENT: "%",
	TOKEN_CARET:   "^",
	TOKEN_AMP:     "&",
	TOKEN_EQ:      "=",
	TOKEN_NE:      "!=",
	TOKEN_LT:      "<",
	TOKEN_GT:      ">",
	TOKEN_LE:      "<=",
	TOKEN_GE:      ">=",
	TOKEN_DOT:     ".",
	TOKEN_COMMA:   ",",
	TOKEN_LPAREN:  "(",
	TOKEN_RPAREN:  ")",

	TOKEN_TRUE:  "TRUE",
	TOKEN_FALSE: "FALSE",
}

// keywords maps lowercase keyword strings to their token types.
var keywords = map[string]TokenType{
	"true":  TOKEN_TRUE,
	"false": TOKEN_FALSE,
}

// LookupIdent returns the token type for the given identifier.
// Keyword matching is case-insensitive, so TRUE, true and True all
// lex as TOKEN_TRUE. Everything else is TOKEN_IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TOKEN_IDENT
}

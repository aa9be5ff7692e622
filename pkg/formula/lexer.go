package formula

import "strings"

// Lexer tokenizes formula input.
type Lexer struct {
	input   string
	pos     int  // current position in input (points to current char)
	readPos int  // current reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0}
	l.readChar()
	return l
}

// Tokenize lexes the entire input and returns all tokens including the
// trailing EOF token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			return tokens
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	pos := l.currentPos()

	var tok Token
	switch l.ch {
	case 0:
		tok = Token{Type: TOKEN_EOF, Literal: "", Pos: pos}
	case '+':
		tok = Token{Type: TOKEN_PLUS, Literal: "+", Pos: pos}
	case '-':
		tok = Token{Type: TOKEN_MINUS, Literal: "-", Pos: pos}
	case '*':
		tok = Token{Type: TOKEN_STAR, Literal: "*", Pos: pos}
	case '/':
		tok = Token{Type: TOKEN_SLASH, Literal: "/", Pos: pos}
	case '%':
		tok = Token{Type: TOKEN_PERCENT, Literal: "%", Pos: pos}
	case '^':
		tok = Token{Type: TOKEN_CARET, Literal: "^", Pos: pos}
	case '&':
		tok = Token{Type: TOKEN_AMP, Literal: "&", Pos: pos}
	case ',':
		tok = Token{Type: TOKEN_COMMA, Literal: ",", Pos: pos}
	case '(':
		tok = Token{Type: TOKEN_LPAREN, Literal: "(", Pos: pos}
	case ')':
		tok = Token{Type: TOKEN_RPAREN, Literal: ")", Pos: pos}
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TOKEN_EQ, Literal: "==", Pos: pos}
		} else {
			tok = Token{Type: TOKEN_EQ, Literal: "=", Pos: pos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TOKEN_NE, Literal: "!=", Pos: pos}
		} else {
			tok = Token{Type: TOKEN_ILLEGAL, Literal: "!", Pos: pos}
		}
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = Token{Type: TOKEN_LE, Literal: "<=", Pos: pos}
		case '>':
			l.readChar()
			tok = Token{Type: TOKEN_NE, Literal: "<>", Pos: pos}
		default:
			tok = Token{Type: TOKEN_LT, Literal: "<", Pos: pos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TOKEN_GE, Literal: ">=", Pos: pos}
		} else {
			tok = Token{Type: TOKEN_GT, Literal: ">", Pos: pos}
		}
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber(pos)
		}
		tok = Token{Type: TOKEN_DOT, Literal: ".", Pos: pos}
	case '"':
		return l.readString(pos)
	case '[':
		return l.readBracketIdentifier(pos)
	default:
		if isLetter(l.ch) {
			return l.readIdentifier(pos)
		}
		if isDigit(l.ch) {
			return l.readNumber(pos)
		}
		tok = Token{Type: TOKEN_ILLEGAL, Literal: string(l.ch), Pos: pos}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readString reads a double-quoted string literal. A doubled quote ("")
// inside the string is an escaped quote character. An unterminated
// string produces an ILLEGAL token holding the consumed text.
func (l *Lexer) readString(pos Position) Token {
	var sb strings.Builder
	l.readChar() // consume opening quote
	for {
		if l.ch == 0 {
			return Token{Type: TOKEN_ILLEGAL, Literal: sb.String(), Pos: pos}
		}
		if l.ch == '"' {
			if l.peekChar() == '"' {
				sb.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // consume closing quote
			return Token{Type: TOKEN_STRING, Literal: sb.String(), Pos: pos}
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
}

// readBracketIdentifier reads a [bracketed] column reference. Any
// character except ] may appear inside, which allows column names with
// spaces. Bracketed names never match keywords, so [true] refers to a
// column named "true".
func (l *Lexer) readBracketIdentifier(pos Position) Token {
	var sb strings.Builder
	l.readChar() // consume opening bracket
	for {
		if l.ch == 0 {
			return Token{Type: TOKEN_ILLEGAL, Literal: sb.String(), Pos: pos}
		}
		if l.ch == ']' {
			l.readChar() // consume closing bracket
			return Token{Type: TOKEN_IDENT, Literal: sb.String(), Pos: pos}
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	return Token{Type: LookupIdent(literal), Literal: literal, Pos: pos}
}

// readNumber reads a numeric literal with an optional fractional part
// and optional exponent, such as 42, 3.14, .5 or 1.2e-3.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		twoAhead := byte(0)
		if l.readPos+1 < len(l.input) {
			twoAhead = l.input[l.readPos+1]
		}
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(twoAhead)) {
			l.readChar() // consume e/E
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return Token{Type: TOKEN_NUMBER, Literal: l.input[start:l.pos], Pos: pos}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

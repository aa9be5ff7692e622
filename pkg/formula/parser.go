package formula

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// Parse parses a complete formula expression. The whole input must be
// consumed, so "1 + 2 3" is rejected. Operator precedence, loosest to
// tightest: comparison, & concatenation, + -, * / %, ^ (right
// associative), unary - +, then primaries. Unary minus binds tighter
// than ^, so -2^2 evaluates to 4.
func Parse(input string) (Expr, error) {
	p := newParser(input)
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TOKEN_EOF {
		if p.cur.Type == TOKEN_ILLEGAL {
			return nil, p.lexErrorFor(p.cur)
		}
		return nil, p.errorf(p.cur.Pos, ErrTrailingInput, p.cur.Type)
	}
	return expr, nil
}

// MustParse parses input and panics on error. Intended for tests and
// static built-in definitions.
func MustParse(input string) Expr {
	expr, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return expr
}

type parser struct {
	lex   *Lexer
	input string
	cur   Token
	peek  Token
}

func newParser(input string) *parser {
	p := &parser{lex: NewLexer(input), input: input}
	p.cur = p.lex.NextToken()
	p.peek = p.lex.NextToken()
	return p
}

func (p *parser) next() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *parser) parseExpression() (Expr, error) {
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for isComparisonOp(p.cur.Type) {
		op := p.cur.Type
		p.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *parser) parseConcat() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TOKEN_AMP {
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TOKEN_AMP, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TOKEN_PLUS || p.cur.Type == TOKEN_MINUS {
		op := p.cur.Type
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TOKEN_STAR || p.cur.Type == TOKEN_SLASH || p.cur.Type == TOKEN_PERCENT {
		op := p.cur.Type
		p.next()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.cur.Type == TOKEN_CARET {
		p.next()
		// right associative: 2^3^2 is 2^(3^2)
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Left: left, Op: TOKEN_CARET, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.cur.Type == TOKEN_MINUS || p.cur.Type == TOKEN_PLUS {
		opPos := p.cur.Pos
		op := p.cur.Type
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{OpPos: opPos, Op: op, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.Type {
	case TOKEN_NUMBER:
		f, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, p.errorf(p.cur.Pos, ErrInvalidNumber, p.cur.Literal)
		}
		lit := &Literal{ValuePos: p.cur.Pos, Value: value.Number(f)}
		p.next()
		return lit, nil
	case TOKEN_STRING:
		lit := &Literal{ValuePos: p.cur.Pos, Value: value.Text(p.cur.Literal)}
		p.next()
		return lit, nil
	case TOKEN_TRUE:
		lit := &Literal{ValuePos: p.cur.Pos, Value: value.Bool(true)}
		p.next()
		return lit, nil
	case TOKEN_FALSE:
		lit := &Literal{ValuePos: p.cur.Pos, Value: value.Bool(false)}
		p.next()
		return lit, nil
	case TOKEN_IDENT:
		return p.parseIdent()
	case TOKEN_LPAREN:
		p.next()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TOKEN_RPAREN {
			return nil, p.unexpected(p.cur, ")")
		}
		p.next()
		return expr, nil
	case TOKEN_ILLEGAL:
		return nil, p.lexErrorFor(p.cur)
	case TOKEN_EOF:
		return nil, &ParseError{Pos: p.cur.Pos, Message: ErrUnexpectedEOF}
	default:
		return nil, p.unexpected(p.cur, "expression")
	}
}

// parseIdent handles the three shapes an identifier can open: a bare
// column reference, a built-in call name(...) and a namespaced
// extension call ns.name(...).
func (p *parser) parseIdent() (Expr, error) {
	namePos := p.cur.Pos
	name := p.cur.Literal
	if name == "" {
		return nil, &ParseError{Pos: namePos, Message: ErrEmptyColumnRef}
	}
	switch p.peek.Type {
	case TOKEN_LPAREN:
		p.next() // onto (
		return p.parseCall(name, namePos)
	case TOKEN_DOT:
		p.next() // onto .
		p.next() // onto the name after the dot
		if p.cur.Type != TOKEN_IDENT || p.cur.Literal == "" {
			return nil, p.unexpected(p.cur, "function name")
		}
		name = name + "." + p.cur.Literal
		if p.peek.Type != TOKEN_LPAREN {
			return nil, p.unexpected(p.peek, "(")
		}
		p.next() // onto (
		return p.parseCall(name, namePos)
	default:
		p.next()
		return &ColumnRef{NamePos: namePos, Name: name}, nil
	}
}

// parseCall parses the argument list of a call. The current token is
// the opening parenthesis.
func (p *parser) parseCall(name string, namePos Position) (Expr, error) {
	p.next() // consume (
	var args []Expr
	if p.cur.Type != TOKEN_RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.Type != TOKEN_COMMA {
				break
			}
			p.next() // consume comma
		}
	}
	if p.cur.Type != TOKEN_RPAREN {
		return nil, p.unexpected(p.cur, ")")
	}
	p.next() // consume )
	return &FuncCall{NamePos: namePos, Name: name, Args: args}, nil
}

func isComparisonOp(t TokenType) bool {
	switch t {
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		return true
	default:
		return false
	}
}

func (p *parser) errorf(pos Position, format string, args ...any) error {
	return &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected(tok Token, expected string) error {
	if tok.Type == TOKEN_ILLEGAL {
		return p.lexErrorFor(tok)
	}
	if tok.Type == TOKEN_EOF {
		return &ParseError{Pos: tok.Pos, Message: ErrUnexpectedEOF}
	}
	return p.errorf(tok.Pos, ErrUnexpectedToken, tok.Type, expected)
}

// lexErrorFor classifies an ILLEGAL token by looking at the source
// character it started on.
func (p *parser) lexErrorFor(tok Token) error {
	msg := fmt.Sprintf(ErrIllegalCharacter, tok.Literal)
	if tok.Pos.Offset < len(p.input) {
		switch p.input[tok.Pos.Offset] {
		case '"':
			msg = ErrUnterminatedString
		case '[':
			msg = ErrUnterminatedBracket
		}
	}
	return &LexError{Pos: tok.Pos, Message: msg}
}

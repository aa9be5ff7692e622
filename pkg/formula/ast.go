package formula

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// Expr is the interface implemented by all formula expression nodes.
type Expr interface {
	exprNode()
	Pos() Position
	String() string
}

// Literal is a constant value: a number, a string or a boolean.
type Literal struct {
	ValuePos Position
	Value    value.Value
}

// ColumnRef references another column of the same row by name.
type ColumnRef struct {
	NamePos Position
	Name    string
}

// UnaryExpr is a prefix operation such as -x.
type UnaryExpr struct {
	OpPos Position
	Op    TokenType
	X     Expr
}

// BinaryExpr is an infix operation such as a + b.
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

// FuncCall is a function invocation. Name is the bare function name for
// built-ins or "namespace.name" for loaded extension functions.
type FuncCall struct {
	NamePos Position
	Name    string
	Args    []Expr
}

func (*Literal) exprNode()    {}
func (*ColumnRef) exprNode()  {}
func (*UnaryExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}
func (*FuncCall) exprNode()   {}

func (e *Literal) Pos() Position    { return e.ValuePos }
func (e *ColumnRef) Pos() Position  { return e.NamePos }
func (e *UnaryExpr) Pos() Position  { return e.OpPos }
func (e *BinaryExpr) Pos() Position { return e.Left.Pos() }
func (e *FuncCall) Pos() Position   { return e.NamePos }

func (e *Literal) String() string {
	switch e.Value.Kind() {
	case value.KindText:
		return `"` + strings.ReplaceAll(e.Value.Str(), `"`, `""`) + `"`
	default:
		return e.Value.String()
	}
}

func (e *ColumnRef) String() string {
	if needsBrackets(e.Name) {
		return "[" + e.Name + "]"
	}
	return e.Name
}

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("(%s%s)", e.Op, e.X)
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *FuncCall) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

// needsBrackets reports whether a column name must be written in
// bracket form to survive a round trip through the lexer.
func needsBrackets(name string) bool {
	if name == "" {
		return true
	}
	if LookupIdent(name) != TOKEN_IDENT {
		return true
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if !isLetter(ch) && !isDigit(ch) {
			return true
		}
	}
	return isDigit(name[0])
}

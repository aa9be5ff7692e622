package udf

import (
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"
)

// ScriptFunc is function metadata extracted from a .star file without
// executing it. The functions listing and the REPL use it for
// signatures and docs.
type ScriptFunc struct {
	Name      string   `json:"name"`
	Args      []string `json:"args"`
	Docstring string   `json:"docstring"`
	Line      int      `json:"line"`
}

// Signature returns a human-readable signature for the function.
func (f *ScriptFunc) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}

// ParseScript statically parses a .star file and extracts metadata for
// its exported top-level functions.
func ParseScript(filename string, content []byte) ([]*ScriptFunc, error) {
	f, err := syntax.Parse(filename, content, 0)
	if err != nil {
		return nil, &ParseError{File: filename, Message: err.Error()}
	}

	var funcs []*ScriptFunc
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			continue
		}
		if strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		funcs = append(funcs, &ScriptFunc{
			Name:      def.Name.Name,
			Args:      extractArgs(def.Params),
			Docstring: extractDocstring(def.Body),
			Line:      int(def.Name.NamePos.Line),
		})
	}
	return funcs, nil
}

// extractArgs converts syntax parameters to display strings.
func extractArgs(params []syntax.Expr) []string {
	var args []string
	for _, param := range params {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
		case *syntax.BinaryExpr:
			// Default parameter: def foo(x=1)
			if p.Op == syntax.EQ {
				if ident, ok := p.X.(*syntax.Ident); ok {
					args = append(args, ident.Name+"="+exprToString(p.Y))
				}
			}
		case *syntax.UnaryExpr:
			// *args or **kwargs
			if ident, ok := p.X.(*syntax.Ident); ok {
				prefix := ""
				if p.Op == syntax.STAR {
					prefix = "*"
				} else if p.Op == syntax.STARSTAR {
					prefix = "**"
				}
				args = append(args, prefix+ident.Name)
			}
		}
	}
	return args
}

// extractDocstring gets the docstring from a function body if present.
func extractDocstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	exprStmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := exprStmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, ok := lit.Value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func exprToString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprToString(e.X)
		}
		return exprToString(e.X)
	default:
		return "..."
	}
}

// ParseError is an error during static parsing.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return "parse " + filepath.Base(e.File) + ": " + e.Message
}

package formula

// ExtractRefs returns the column names referenced by the expression,
// deduplicated, in source order. Names are matched exactly as written,
// so [Price] and [price] are distinct references.
func ExtractRefs(expr Expr) []string {
	var names []string
	seen := make(map[string]struct{})
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *ColumnRef:
			if _, ok := seen[n.Name]; !ok {
				seen[n.Name] = struct{}{}
				names = append(names, n.Name)
			}
		case *UnaryExpr:
			walk(n.X)
		case *BinaryExpr:
			walk(n.Left)
			walk(n.Right)
		case *FuncCall:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	walk(expr)
	return names
}

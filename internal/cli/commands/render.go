package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// parseLiteral converts a CLI-provided literal into a typed value.
// Numbers, booleans, and ISO dates are detected; everything else is
// text. The same coercion order applies to cell writes over the API.
func parseLiteral(s string) value.Value {
	if s == "" {
		return value.Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Number(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	case "null":
		return value.Null()
	}
	if t, err := value.ParseDate(s); err == nil {
		return value.Date(t)
	}
	return value.Text(s)
}

// displayValue renders a value for terminal display. Unlike
// value.String, nulls and errors are spelled out.
func displayValue(v value.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsError():
		return v.Err().Error()
	case v.Kind() == value.KindText:
		return strconv.Quote(v.Str())
	default:
		return v.String()
	}
}

// renderResult writes one evaluated value according to the renderer
// mode.
func renderResult(r *output.Renderer, formulaText string, v value.Value) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.EvalOutput{
			Formula: formulaText,
			Kind:    v.Kind().String(),
			Result:  v,
		})
	case output.ModeMarkdown:
		r.Println(output.FormatKeyValue(formulaText, displayValue(v)))
	default:
		styles := r.Styles()
		if v.IsError() {
			r.Println(styles.Error.Render(displayValue(v)))
			return nil
		}
		r.Printf("%s %s\n", displayValue(v), styles.Muted.Render("("+v.Kind().String()+")"))
	}
	return nil
}

// renderBindings writes the current variable bindings as a table.
func renderBindings(r *output.Renderer, vars map[string]value.Value) {
	if len(vars) == 0 {
		r.Muted("no bindings")
		return
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"name", "kind", "value"})
	for _, name := range names {
		v := vars[name]
		t.AppendRow(table.Row{name, v.Kind().String(), displayValue(v)})
	}
	t.Render()
	r.Printf("(%d bindings)\n", len(vars))
}

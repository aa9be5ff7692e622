package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// newTestRenderer returns a non-TTY renderer writing into buffers, so
// output is deterministic and free of ANSI sequences.
func newTestRenderer(mode output.Mode) (*output.Renderer, *bytes.Buffer, *bytes.Buffer) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	return output.NewRendererWithTTY(out, errOut, false, mode), out, errOut
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		input string
		want  value.Value
	}{
		{"", value.Null()},
		{"null", value.Null()},
		{"42", value.Number(42)},
		{"-3.5", value.Number(-3.5)},
		{"true", value.Bool(true)},
		{"False", value.Bool(false)},
		{"hello", value.Text("hello")},
		{"true-ish", value.Text("true-ish")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLiteral(tt.input)
			if !got.Equal(tt.want) {
				t.Errorf("parseLiteral(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLiteralDate(t *testing.T) {
	got := parseLiteral("2024-03-01")
	if got.Kind() != value.KindDate {
		t.Fatalf("parseLiteral(2024-03-01) kind = %v, want date", got.Kind())
	}
	if got.Time().Format("2006-01-02") != "2024-03-01" {
		t.Errorf("parsed date = %v", got.Time())
	}
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		name string
		v    value.Value
		want string
	}{
		{"null", value.Null(), "null"},
		{"number", value.Number(3.5), "3.5"},
		{"integer number", value.Number(3), "3"},
		{"bool", value.Bool(true), "true"},
		{"text is quoted", value.Text("hi"), `"hi"`},
		{"error shows code and message", value.NewError(value.ErrCodeDiv0, "division by zero"), "#DIV0: division by zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayValue(tt.v); got != tt.want {
				t.Errorf("displayValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderResultText(t *testing.T) {
	r, out, _ := newTestRenderer(output.ModeText)

	if err := renderResult(r, "1 + 2", value.Number(3)); err != nil {
		t.Fatalf("renderResult() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "3 (number)") {
		t.Errorf("text output should contain value and kind, got: %q", got)
	}
}

func TestRenderResultTextError(t *testing.T) {
	r, out, _ := newTestRenderer(output.ModeText)

	v := value.NewError(value.ErrCodeDiv0, "division by zero")
	if err := renderResult(r, "1 / 0", v); err != nil {
		t.Fatalf("renderResult() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "#DIV0: division by zero") {
		t.Errorf("error output should contain code and message, got: %q", got)
	}
	if strings.Contains(got, "(error)") {
		t.Errorf("error output should not append a kind suffix, got: %q", got)
	}
}

func TestRenderResultMarkdown(t *testing.T) {
	r, out, _ := newTestRenderer(output.ModeMarkdown)

	if err := renderResult(r, "1 + 2", value.Number(3)); err != nil {
		t.Fatalf("renderResult() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "**1 + 2:** 3") {
		t.Errorf("markdown output = %q", got)
	}
}

func TestRenderResultJSON(t *testing.T) {
	r, out, _ := newTestRenderer(output.ModeJSON)

	if err := renderResult(r, "1 + 2", value.Number(3)); err != nil {
		t.Fatalf("renderResult() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{`"formula": "1 + 2"`, `"kind": "number"`, `"result": 3`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON output should contain %q, got: %q", want, got)
		}
	}
}

func TestRenderBindingsEmpty(t *testing.T) {
	r, out, _ := newTestRenderer(output.ModeText)

	renderBindings(r, map[string]value.Value{})

	if !strings.Contains(out.String(), "no bindings") {
		t.Errorf("empty bindings output = %q", out.String())
	}
}

func TestRenderBindingsTable(t *testing.T) {
	r, out, _ := newTestRenderer(output.ModeText)

	renderBindings(r, map[string]value.Value{
		"price": value.Number(9.5),
		"name":  value.Text("widget"),
	})

	got := out.String()
	for _, want := range []string{"price", "9.5", "name", "(2 bindings)"} {
		if !strings.Contains(got, want) {
			t.Errorf("bindings table should contain %q, got:\n%s", want, got)
		}
	}
	// Sorted by name, so "name" renders before "price".
	if strings.Index(got, "name") > strings.Index(got, "price") {
		t.Errorf("bindings should be sorted by name, got:\n%s", got)
	}
}

func TestParseLets(t *testing.T) {
	vars, err := parseLets([]string{"price=9.5", "label=widget", "cleared="})
	if err != nil {
		t.Fatalf("parseLets() error = %v", err)
	}
	if len(vars) != 3 {
		t.Fatalf("parseLets() returned %d bindings, want 3", len(vars))
	}
	if !vars["price"].Equal(value.Number(9.5)) {
		t.Errorf("price = %v", vars["price"])
	}
	if !vars["label"].Equal(value.Text("widget")) {
		t.Errorf("label = %v", vars["label"])
	}
	if !vars["cleared"].IsNull() {
		t.Errorf("empty value should bind null, got %v", vars["cleared"])
	}
}

func TestParseLetsInvalid(t *testing.T) {
	for _, bad := range []string{"oops", "=5"} {
		if _, err := parseLets([]string{bad}); err == nil {
			t.Errorf("parseLets(%q) should fail", bad)
		}
	}
}

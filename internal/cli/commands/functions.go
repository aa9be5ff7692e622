package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/internal/udf"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
)

// NewFunctionsCommand creates the functions listing command.
func NewFunctionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List available formula functions",
		Long: `List the built-in formula functions and any UDF script modules
loaded from the scripts directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutStore(cmd)

			udfs, funcs, err := loadScripts(cc.Cfg)
			if err != nil {
				return err
			}

			return renderFunctions(cc.Renderer, funcs, udfs)
		},
	}
}

// renderFunctions writes the builtin and script function listing. The
// REPL's .funcs command shares it.
func renderFunctions(r *output.Renderer, funcs *formula.Registry, udfs *udf.Registry) error {
	builtins := funcs.Builtins()
	modules := udfs.Modules()

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(functionsEnvelope(builtins, modules))
	case output.ModeMarkdown:
		renderFunctionsMarkdown(r, builtins, modules)
	default:
		renderFunctionsText(r, builtins, modules)
	}
	return nil
}

func functionsEnvelope(builtins []*formula.Func, modules []*udf.LoadedModule) output.FunctionsOutput {
	out := output.FunctionsOutput{
		Builtins: make([]output.FunctionInfo, 0, len(builtins)),
	}
	for _, fn := range builtins {
		out.Builtins = append(out.Builtins, output.FunctionInfo{Name: fn.Name, Doc: fn.Doc})
	}
	for _, mod := range modules {
		m := output.ModuleInfo{Namespace: mod.Namespace, Path: mod.Path}
		for _, fn := range mod.Functions {
			m.Functions = append(m.Functions, output.ScriptFuncInfo{
				Name:      fn.Name,
				Args:      fn.Args,
				Docstring: fn.Docstring,
			})
		}
		out.Modules = append(out.Modules, m)
	}
	return out
}

func renderFunctionsText(r *output.Renderer, builtins []*formula.Func, modules []*udf.LoadedModule) {
	styles := r.Styles()

	r.Println(styles.Header1.Render("Formula Functions"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 40)))
	r.Println("")

	r.Println(styles.Header2.Render(fmt.Sprintf("Builtins (%d)", len(builtins))))
	width := 0
	for _, fn := range builtins {
		if len(fn.Name) > width {
			width = len(fn.Name)
		}
	}
	for _, fn := range builtins {
		name := fmt.Sprintf("%-*s", width, fn.Name)
		r.Printf("  %s  %s\n", styles.FuncName.Render(name), styles.Muted.Render(fn.Doc))
	}

	if len(modules) == 0 {
		r.Println("")
		r.Muted("No script modules loaded")
		return
	}

	titleCaser := cases.Title(language.English)
	for _, mod := range modules {
		r.Println("")
		header := fmt.Sprintf("%s (%s)", titleCaser.String(mod.Namespace), filepath.Base(mod.Path))
		r.Println(styles.Header2.Render(header))
		for _, fn := range mod.Functions {
			r.Printf("  %s\n", styles.FuncName.Render(mod.Namespace+"."+fn.Signature()))
			if fn.Docstring != "" {
				r.Printf("      %s\n", styles.Muted.Render(firstLine(fn.Docstring)))
			}
		}
	}
}

func renderFunctionsMarkdown(r *output.Renderer, builtins []*formula.Func, modules []*udf.LoadedModule) {
	r.Println(output.FormatHeader(1, "Formula Functions"))
	r.Println("")

	r.Println(output.FormatHeader(2, fmt.Sprintf("Builtins (%d)", len(builtins))))
	r.Println("")
	for _, fn := range builtins {
		if fn.Doc != "" {
			r.Printf("- `%s`: %s\n", fn.Name, fn.Doc)
		} else {
			r.Printf("- `%s`\n", fn.Name)
		}
	}

	for _, mod := range modules {
		r.Println("")
		r.Println(output.FormatHeader(2, fmt.Sprintf("Module %s", mod.Namespace)))
		r.Println("")
		for _, fn := range mod.Functions {
			if fn.Docstring != "" {
				r.Printf("- `%s.%s`: %s\n", mod.Namespace, fn.Signature(), firstLine(fn.Docstring))
			} else {
				r.Printf("- `%s.%s`\n", mod.Namespace, fn.Signature())
			}
		}
	}
}

// firstLine trims a docstring to its summary line.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/pkg/formula"
)

type evalOptions struct {
	lets []string
}

// NewEvalCommand creates the eval command for one-shot formula
// evaluation against literal bindings.
func NewEvalCommand() *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval [formula]",
		Short: "Evaluate a formula against literal bindings",
		Long: `Evaluate a formula expression without touching storage. Column
references resolve against --let bindings; UDF scripts from the
scripts directory are available under their namespace.`,
		Example: `  # Plain arithmetic
  leapgrid eval "1 + 2 * 3"

  # Column references bound to literals
  leapgrid eval "[price] * [qty]" --let price=9.5 --let qty=3

  # Script functions
  leapgrid eval "stats.zscore(13, 10, 2)"

  # Piped input
  echo 'CONCAT("a", "b")' | leapgrid eval`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.lets, "let", nil, "bind a column reference, name=value (repeatable)")

	return cmd
}

func runEval(cmd *cobra.Command, args []string, opts *evalOptions) error {
	cc := NewCommandContextWithoutStore(cmd)

	formulaText, err := formulaFromArgsOrStdin(cmd, args)
	if err != nil {
		return err
	}

	vars, err := parseLets(opts.lets)
	if err != nil {
		return err
	}

	_, funcs, err := loadScripts(cc.Cfg)
	if err != nil {
		return err
	}

	expr, err := formula.Parse(formulaText)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	ev := formula.NewEvaluator(formula.Config{Funcs: funcs})
	result := ev.Eval(expr, vars)

	return renderResult(cc.Renderer, formulaText, result)
}

// formulaFromArgsOrStdin takes the formula from the argument, or from
// piped stdin when no argument is given.
func formulaFromArgsOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(f) {
		return "", fmt.Errorf("no formula given (pass one as an argument or pipe it on stdin)")
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no formula given")
	}
	return text, nil
}

// isTerminal checks if the file is an interactive terminal.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// parseLets parses repeated --let name=value bindings.
func parseLets(lets []string) (formula.MapContext, error) {
	vars := make(formula.MapContext, len(lets))
	for _, binding := range lets {
		name, raw, ok := strings.Cut(binding, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --let %q (want name=value)", binding)
		}
		vars[name] = parseLiteral(raw)
	}
	return vars, nil
}

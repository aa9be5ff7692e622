package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/internal/udf"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
)

// replSession holds the interactive evaluation state: the variable
// bindings and the function registry backing the evaluator.
type replSession struct {
	vars  formula.MapContext
	ev    *formula.Evaluator
	funcs *formula.Registry
	udfs  *udf.Registry
}

// NewReplCommand creates the interactive formula REPL.
func NewReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive formula evaluation",
		Long: `Start an interactive session for evaluating formulas. Column
references resolve against session bindings set with .let; UDF
scripts from the scripts directory are available under their
namespace.`,
		RunE: runRepl,
	}
}

func runRepl(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContextWithoutStore(cmd)

	udfs, funcs, err := loadScripts(cc.Cfg)
	if err != nil {
		return err
	}

	sess := &replSession{
		vars:  make(formula.MapContext),
		ev:    formula.NewEvaluator(formula.Config{Funcs: funcs}),
		funcs: funcs,
		udfs:  udfs,
	}

	// Project-local history next to the data file when there is one.
	historyFile := ""
	if dir := dataDir(cc.Cfg.DataPath); dir != "" {
		_ = os.MkdirAll(dir, 0750)
		historyFile = filepath.Join(dir, "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "leapgrid> ",
		HistoryFile:     historyFile,
		AutoComplete:    newFormulaCompleter(sess),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "LeapGrid Formula REPL")
	if n := udfs.Len(); n > 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d script module(s) from %s\n", n, cc.Cfg.ScriptsDir)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if handled := handleDotCommand(cmd, sess, cc.Renderer, line); handled {
				if line == ".quit" || line == ".exit" {
					break
				}
				continue
			}
		}

		evalREPLLine(cmd, sess, cc.Renderer, line)
	}

	return nil
}

// evalREPLLine parses and evaluates one formula line.
func evalREPLLine(cmd *cobra.Command, sess *replSession, r *output.Renderer, line string) {
	expr, err := formula.Parse(line)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return
	}
	_ = renderResult(r, line, sess.ev.Eval(expr, sess.vars))
}

func handleDotCommand(cmd *cobra.Command, sess *replSession, r *output.Renderer, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())
		return true

	case ".let":
		if len(parts) < 3 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .let <name> <value>")
			return true
		}
		sess.vars[parts[1]] = parseLiteral(strings.Join(parts[2:], " "))
		return true

	case ".unlet":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .unlet <name>")
			return true
		}
		delete(sess.vars, parts[1])
		return true

	case ".env":
		renderBindings(r, sess.vars)
		return true

	case ".funcs":
		if err := renderFunctions(r, sess.funcs, sess.udfs); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return true

	case ".clear":
		fmt.Print("\033[H\033[2J")
		return true

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
		return true
	}
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help               Show this help message
  .let <name> <value> Bind a column reference to a literal
  .unlet <name>       Remove a binding
  .env                Show current bindings
  .funcs              List available functions
  .clear              Clear the screen
  .quit / .exit       Exit the REPL

Tips:
  - Column references like [price] resolve against .let bindings
  - Use arrow keys to navigate history
  - Tab completion works for function names
`
	_, _ = fmt.Fprintln(w, help)
}

// newFormulaCompleter creates a readline completer for function names
// and dot-commands.
func newFormulaCompleter(sess *replSession) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	for _, fn := range sess.funcs.Builtins() {
		items = append(items, readline.PcItem(fn.Name+"("))
	}
	for _, mod := range sess.udfs.Modules() {
		for _, fn := range mod.Functions {
			items = append(items, readline.PcItem(mod.Namespace+"."+fn.Name+"("))
		}
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".let"),
		readline.PcItem(".unlet"),
		readline.PcItem(".env"),
		readline.PcItem(".funcs"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}

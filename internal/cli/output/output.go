// Package output renders CLI command results in text, markdown, or
// JSON. Text mode targets interactive terminals and may use color;
// markdown mode targets pipes and agent consumption; JSON mode emits
// machine-readable envelopes. ModeAuto picks text on a TTY and
// markdown otherwise.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how command output is rendered.
type Mode string

// Rendering modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// ParseMode validates a mode string. The empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeText, ModeMarkdown, ModeJSON:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown output mode %q (valid: auto, text, markdown, json)", s)
	}
}

// Renderer writes command output to a pair of writers in one of the
// rendering modes.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles Styles
}

// NewRenderer creates a renderer, detecting TTY state from out.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
// Tests use it to pin mode resolution and styling.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: buildStyles(styleProfile(isTTY)),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// styleProfile picks the color profile for styled output. Non-TTY
// writers always get Ascii so markdown and JSON output stay free of
// escape codes.
func styleProfile(isTTY bool) termenv.Profile {
	if !isTTY {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// EffectiveMode resolves ModeAuto against the TTY state.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether the output writer is an interactive terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the style set matched to the output profile.
func (r *Renderer) Styles() Styles { return r.styles }

// Writer returns the underlying output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the underlying error writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Println writes a line to the output writer.
func (r *Renderer) Println(a ...any) {
	fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to the output writer.
func (r *Renderer) Printf(format string, a ...any) {
	fmt.Fprintf(r.out, format, a...)
}

// Header writes a section header. Text mode styles it; markdown mode
// emits a markdown heading.
func (r *Renderer) Header(level int, text string) {
	switch r.EffectiveMode() {
	case ModeMarkdown:
		fmt.Fprintln(r.out, FormatHeader(level, text))
	default:
		style := r.styles.Header2
		if level <= 1 {
			style = r.styles.Header1
		}
		fmt.Fprintln(r.out, style.Render(text))
	}
	fmt.Fprintln(r.out)
}

// Muted writes a de-emphasized line.
func (r *Renderer) Muted(text string) {
	fmt.Fprintln(r.out, r.styles.Muted.Render(text))
}

// Success writes a success line with a leading check mark.
func (r *Renderer) Success(text string) {
	fmt.Fprintf(r.out, "%s %s\n", r.styles.StatusSuccess.String(), text)
}

// Warning writes a warning line to the error writer.
func (r *Renderer) Warning(text string) {
	fmt.Fprintln(r.errOut, r.styles.Warning.Render("warning: "+text))
}

// StatusLine writes one name/status pair with an optional detail.
func (r *Renderer) StatusLine(name, status, detail string) {
	if r.EffectiveMode() == ModeMarkdown {
		if detail != "" {
			fmt.Fprintf(r.out, "- **%s**: %s (%s)\n", name, status, detail)
		} else {
			fmt.Fprintf(r.out, "- **%s**: %s\n", name, status)
		}
		return
	}
	line := fmt.Sprintf("  %s  %s", r.styles.Bold.Render(name), status)
	if detail != "" {
		line += "  " + r.styles.Muted.Render(detail)
	}
	fmt.Fprintln(r.out, line)
}

// JSON writes v as indented JSON to the output writer.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewSpinner creates a spinner that writes to the error writer. The
// spinner animates only on a TTY; otherwise it prints plain lines.
func (r *Renderer) NewSpinner(message string) *Spinner {
	return newSpinner(r.errOut, r.isTTY, message, r.styles)
}

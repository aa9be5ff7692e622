package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles is the lipgloss style set used by text-mode rendering. With
// an Ascii profile every style degrades to plain text, so callers can
// apply them unconditionally.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	// StatusSuccess and StatusFailed carry their glyph as the style
	// string, so String() renders the colored icon directly.
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style

	// FuncName styles function and column identifiers in listings.
	FuncName lipgloss.Style
}

func buildStyles(profile termenv.Profile) Styles {
	r := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(profile))

	return Styles{
		Header1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),

		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("12")),

		StatusSuccess: r.NewStyle().Foreground(lipgloss.Color("10")).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(lipgloss.Color("9")).SetString("✗"),

		FuncName: r.NewStyle().Foreground(lipgloss.Color("13")),
	}
}

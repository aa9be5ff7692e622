package output

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newBufferedRenderer(mode Mode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"text", ModeText, false},
		{"markdown", ModeMarkdown, false},
		{"json", ModeJSON, false},
		{"yaml", "", true},
		{"TEXT", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown output mode")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{"auto on tty", ModeAuto, true, ModeText},
		{"auto piped", ModeAuto, false, ModeMarkdown},
		{"explicit text piped", ModeText, false, ModeText},
		{"explicit json on tty", ModeJSON, true, ModeJSON},
		{"explicit markdown on tty", ModeMarkdown, true, ModeMarkdown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newBufferedRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestHeaderMarkdown(t *testing.T) {
	r, out, _ := newBufferedRenderer(ModeMarkdown, false)
	r.Header(1, "Functions")
	r.Header(2, "Builtins")

	assert.Contains(t, out.String(), "# Functions")
	assert.Contains(t, out.String(), "## Builtins")
	assert.False(t, ansiPattern.MatchString(out.String()), "markdown output must not contain ANSI codes")
}

func TestHeaderText(t *testing.T) {
	r, out, _ := newBufferedRenderer(ModeText, false)
	r.Header(1, "Functions")

	assert.Contains(t, out.String(), "Functions")
	assert.NotContains(t, out.String(), "#")
}

func TestStatusLine(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newBufferedRenderer(ModeMarkdown, false)
		r.StatusLine("stats", "loaded", "3 functions")
		assert.Equal(t, "- **stats**: loaded (3 functions)\n", out.String())
	})

	t.Run("markdown without detail", func(t *testing.T) {
		r, out, _ := newBufferedRenderer(ModeMarkdown, false)
		r.StatusLine("stats", "loaded", "")
		assert.Equal(t, "- **stats**: loaded\n", out.String())
	})

	t.Run("text", func(t *testing.T) {
		r, out, _ := newBufferedRenderer(ModeText, false)
		r.StatusLine("stats", "loaded", "3 functions")
		assert.Contains(t, out.String(), "stats")
		assert.Contains(t, out.String(), "loaded")
		assert.Contains(t, out.String(), "3 functions")
	})
}

func TestJSONOutput(t *testing.T) {
	r, out, _ := newBufferedRenderer(ModeJSON, false)

	err := r.JSON(FunctionsOutput{
		Builtins: []FunctionInfo{{Name: "SUM", Doc: "Sum of arguments"}},
	})
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, `"builtins"`)
	assert.Contains(t, s, `"SUM"`)
	assert.False(t, ansiPattern.MatchString(s))
}

func TestSuccessAndWarning(t *testing.T) {
	r, out, errOut := newBufferedRenderer(ModeText, false)

	r.Success("seeded 3 tables")
	r.Warning("scripts directory missing")

	assert.Contains(t, out.String(), "✓ seeded 3 tables")
	assert.Contains(t, errOut.String(), "warning: scripts directory missing")
}

func TestNonTTYOutputHasNoANSI(t *testing.T) {
	r, out, errOut := newBufferedRenderer(ModeAuto, false)

	styles := r.Styles()
	r.Println(styles.Header1.Render("Title"))
	r.Println(styles.Muted.Render("detail"))
	r.Muted("quiet")
	r.Warning("careful")

	combined := out.String() + errOut.String()
	assert.False(t, ansiPattern.MatchString(combined), "non-TTY output must be plain: %q", combined)
}

func TestFormatHeader(t *testing.T) {
	assert.Equal(t, "# Top", FormatHeader(1, "Top"))
	assert.Equal(t, "### Deep", FormatHeader(3, "Deep"))
	assert.Equal(t, "# Clamped", FormatHeader(0, "Clamped"))
	assert.Equal(t, "###### Clamped", FormatHeader(9, "Clamped"))
}

func TestFormatKeyValue(t *testing.T) {
	assert.Equal(t, "**Rows:** 12", FormatKeyValue("Rows", "12"))
}

func TestFormatCodeBlock(t *testing.T) {
	block := FormatCodeBlock("text", "[qty] * [price]\n")
	assert.True(t, strings.HasPrefix(block, "```text\n"))
	assert.True(t, strings.HasSuffix(block, "\n```"))
	assert.Equal(t, 2, strings.Count(block, "```"))
}

func TestSpinnerNonTTY(t *testing.T) {
	r, _, errOut := newBufferedRenderer(ModeText, false)

	sp := r.NewSpinner("Loading seed file...")
	sp.Start()
	sp.Success("Seed loaded")

	s := errOut.String()
	assert.Contains(t, s, "Loading seed file...")
	assert.Contains(t, s, "✓ Seed loaded")
	assert.False(t, ansiPattern.MatchString(s))
}

func TestSpinnerFail(t *testing.T) {
	r, _, errOut := newBufferedRenderer(ModeText, false)

	sp := r.NewSpinner("Loading seed file...")
	sp.Start()
	sp.Fail("seed file not found")

	assert.Contains(t, errOut.String(), "✗ seed file not found")
}

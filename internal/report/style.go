// Package report renders profiling results for the terminal and as JSON.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color modes accepted by NewFormatter.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Style names a role in the report, not a concrete color.
type Style int

const (
	StylePlain Style = iota
	StyleHeader
	StyleSection
	StyleOK
	StyleWarning
	StyleFail
	StyleBold
)

func (s Style) String() string {
	switch s {
	case StylePlain:
		return "plain"
	case StyleHeader:
		return "header"
	case StyleSection:
		return "section"
	case StyleOK:
		return "ok"
	case StyleWarning:
		return "warning"
	case StyleFail:
		return "fail"
	case StyleBold:
		return "bold"
	default:
		return fmt.Sprintf("style(%d)", int(s))
	}
}

// Formatter maps styles to lipgloss styles bound to one output. It holds no
// mutable state after construction.
type Formatter struct {
	styles map[Style]lipgloss.Style
}

// NewFormatter creates a Formatter for w. ColorAuto enables color only when
// w is a terminal.
func NewFormatter(w io.Writer, mode string) (*Formatter, error) {
	r := lipgloss.NewRenderer(w)

	switch mode {
	case ColorAuto, "":
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI)
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	default:
		return nil, fmt.Errorf("unknown color mode %q (want %s, %s or %s)", mode, ColorAuto, ColorAlways, ColorNever)
	}

	return &Formatter{
		styles: map[Style]lipgloss.Style{
			StylePlain:   r.NewStyle(),
			StyleHeader:  r.NewStyle().Foreground(lipgloss.Color("#d75fd7")),
			StyleSection: r.NewStyle().Bold(true).Underline(true),
			StyleOK:      r.NewStyle().Foreground(lipgloss.Color("#5fd75f")),
			StyleWarning: r.NewStyle().Foreground(lipgloss.Color("#ffd700")),
			StyleFail:    r.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
			StyleBold:    r.NewStyle().Bold(true),
		},
	}, nil
}

// Render applies style to text. Unknown styles render plain.
func (f *Formatter) Render(style Style, text string) string {
	s, ok := f.styles[style]
	if !ok {
		return text
	}
	return s.Render(text)
}

// Emphasize renders text in style and bold, for labels like "ERROR".
func (f *Formatter) Emphasize(style Style, text string) string {
	s, ok := f.styles[style]
	if !ok {
		return text
	}
	return s.Bold(true).Render(text)
}

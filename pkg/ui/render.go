package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatweb/pkg/transcript"
)

// DetectStyle picks the glamour style matching the terminal background. It
// queries the terminal, so call it before the program takes over stdin.
func DetectStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// Renderer turns transcript turns into terminal text. Rich turns go through
// glamour, plain turns are only wrapped. Rendered rich text is cached per
// width.
type Renderer struct {
	style string
	width int
	term  *glamour.TermRenderer
	cache map[string]string
}

func NewRenderer(style string, width int) (*Renderer, error) {
	if style == "" {
		style = "dark"
	}
	r := &Renderer{style: style}
	if err := r.SetWidth(width); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) Width() int { return r.width }

// SetWidth rebuilds the markdown renderer when the width changes.
func (r *Renderer) SetWidth(width int) error {
	if width < 20 {
		width = 20
	}
	if r.term != nil && width == r.width {
		return nil
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return errors.Wrap(err, "create markdown renderer")
	}
	r.term = term
	r.width = width
	r.cache = map[string]string{}
	return nil
}

func (r *Renderer) RenderTurn(t transcript.Turn) string {
	label := userLabelStyle.Render("You")
	if t.Role != transcript.RoleUser {
		label = botLabelStyle.Render("Assistant")
	}
	return label + "\n" + r.body(t)
}

func (r *Renderer) body(t transcript.Turn) string {
	if t.Format() == transcript.FormatPlain {
		return lipgloss.NewStyle().Width(r.width).Render(t.Text)
	}
	if out, ok := r.cache[t.Text]; ok {
		return out
	}
	out, err := r.term.Render(t.Text)
	if err != nil {
		log.Debug().Err(err).Msg("markdown rendering failed, showing plain text")
		return lipgloss.NewStyle().Width(r.width).Render(t.Text)
	}
	out = strings.Trim(out, "\n")
	r.cache[t.Text] = out
	return out
}

func (r *Renderer) RenderTranscript(turns []transcript.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, r.RenderTurn(t))
	}
	return strings.Join(parts, "\n\n")
}

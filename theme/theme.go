// Package theme holds the TUI's colors and glyphs.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Theme maps color roles onto a two-anchor gradient.
type Theme struct {
	lo, hi  colorful.Color
	Symbols Symbols
}

type Symbols struct {
	Playhead rune // ▶ transport playing
	PausedAt rune // ▮ transport paused
	LoopMark rune // ⟲ loop region bound
	NoteOn   rune // ● event inside window
	Empty    rune // · empty timeline cell
}

// New builds the default purple-to-amber theme.
func New() *Theme {
	lo, _ := colorful.Hex("#3b1f5e")
	hi, _ := colorful.Hex("#f2a93b")
	return &Theme{
		lo: lo,
		hi: hi,
		Symbols: Symbols{
			Playhead: '▶',
			PausedAt: '▮',
			LoopMark: '⟲',
			NoteOn:   '●',
			Empty:    '·',
		},
	}
}

// Color returns the gradient color for a normalized value 0-1, blended in
// Luv so the ramp stays perceptually even.
func (t *Theme) Color(norm float64) lipgloss.Color {
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return lipgloss.Color(t.lo.BlendLuv(t.hi, norm).Clamped().Hex())
}

// Velocity maps a MIDI velocity onto the gradient.
func (t *Theme) Velocity(vel uint8) lipgloss.Color {
	return t.Color(float64(vel) / 127.0)
}

// Role colors

func (t *Theme) FG() lipgloss.Color      { return t.Color(0.75) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(0.25) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(0.95) }
func (t *Theme) Warning() lipgloss.Color { return lipgloss.Color("#e06c3a") }

// Styles

func (t *Theme) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(t.Accent())
}

func (t *Theme) StatusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.FG())
}

func (t *Theme) MutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Muted())
}

func (t *Theme) WarningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning())
}

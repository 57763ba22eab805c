// Package tui renders workflow progress on the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan

	ColorSuccess = lipgloss.Color("#10B981") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red

	ColorTextMuted = lipgloss.Color("#9CA3AF") // Muted gray
)

// Styles used by Output. Plain output uses the zero styles.
type Styles struct {
	Header  lipgloss.Style
	Step    lipgloss.Style
	Stage   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// ColorStyles returns the colored style set.
func ColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
		Step:    lipgloss.NewStyle().Foreground(ColorTextMuted),
		Stage:   lipgloss.NewStyle().Foreground(ColorSecondary),
		Success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(ColorTextMuted).Italic(true),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Header: s, Step: s, Stage: s, Success: s, Warning: s, Error: s, Muted: s}
}

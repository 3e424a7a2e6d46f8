package console

import "github.com/charmbracelet/lipgloss"

// Styles holds the colors used by the console.
type Styles struct {
	Greeting  lipgloss.Style
	Prompt    lipgloss.Style
	Assistant lipgloss.Style
	Tool      lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Farewell  lipgloss.Style
}

// DefaultStyles returns the colored console palette.
func DefaultStyles() Styles {
	return Styles{
		Greeting: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("2")),

		Prompt: lipgloss.NewStyle().
			Foreground(lipgloss.Color("4")),

		Assistant: lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			TabWidth(lipgloss.NoTabConversion),

		Tool: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")),

		Farewell: lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")),
	}
}

// PlainStyles renders everything without decoration.
func PlainStyles() Styles {
	s := lipgloss.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return Styles{
		Greeting:  s,
		Prompt:    s,
		Assistant: s,
		Tool:      s,
		Warning:   s,
		Error:     s,
		Farewell:  s,
	}
}

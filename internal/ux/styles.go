package ux

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

// Title renders a section heading.
func Title(s string) string { return titleStyle.Render(s) }

// OK renders a success marker.
func OK(s string) string { return okStyle.Render(s) }

// Warn renders a warning.
func Warn(s string) string { return warnStyle.Render(s) }

// Bad renders a failure marker.
func Bad(s string) string { return errStyle.Render(s) }

// Hint renders secondary text.
func Hint(s string) string { return hintStyle.Render(s) }

// Field is one row of a key/value block.
type Field struct {
	Key   string
	Value string
}

// KeyValues renders aligned "key: value" rows.
func KeyValues(fields ...Field) string {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Key))
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(keyStyle.Width(width + 1).Render(f.Key + ":"))
		b.WriteString(" ")
		b.WriteString(valueStyle.Render(f.Value))
		b.WriteString("\n")
	}
	return b.String()
}

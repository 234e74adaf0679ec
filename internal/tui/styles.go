package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	statusStyles = map[string]lipgloss.Style{
		// Terminal states
		"installed":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"up-to-date": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"removed":    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		// Active states
		"checking":    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"downloading": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"extracting":  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"committing":  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		// Skipped / warning
		"declined":    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"missing":     lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"unsupported": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"update":      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		// Error
		"failed": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		// Pending
		"pending": lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

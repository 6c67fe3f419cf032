package ui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#A78BFA"}
	green   = lipgloss.AdaptiveColor{Light: "#1B7F3B", Dark: "#4ADE80"}
	yellow  = lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FACC15"}
	red     = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	cyan    = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#67E8F9"}
	dimText = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

	logoStyle      = lipgloss.NewStyle().Foreground(accent).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	successStyle   = lipgloss.NewStyle().Foreground(green)
	warningStyle   = lipgloss.NewStyle().Foreground(yellow)
	highlightStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(cyan)
	valueStyle     = lipgloss.NewStyle().Foreground(yellow)
	dimStyle       = lipgloss.NewStyle().Foreground(dimText)

	headerStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true).Underline(true)
)

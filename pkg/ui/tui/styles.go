package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	violet    = lipgloss.Color("#A78BFA")
	teal      = lipgloss.Color("#2DD4BF")
	mint      = lipgloss.Color("#4ADE80")
	amber     = lipgloss.Color("#FACC15")
	coral     = lipgloss.Color("#FB923C")
	crimson   = lipgloss.Color("#F87171")
	darkBg    = lipgloss.Color("#111827")
	panelBg   = lipgloss.Color("#1F2937")
	dimWhite  = lipgloss.Color("#9CA3AF")
	emptyGray = lipgloss.Color("#374151")

	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	headerStyle = lipgloss.NewStyle().
			Foreground(violet).
			Bold(true).
			Padding(1, 0).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(violet).
			Background(panelBg).
			Padding(1, 2)

	progressEmptyStyle = lipgloss.NewStyle().
				Foreground(emptyGray)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(teal).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(amber)

	successStyle = lipgloss.NewStyle().
			Foreground(mint).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(crimson).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(coral).
			Bold(true)

	queueItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	queueItemActiveStyle = lipgloss.NewStyle().
				Foreground(mint).
				Bold(true).
				PaddingLeft(2)

	queueItemDoneStyle = lipgloss.NewStyle().
				Foreground(dimWhite).
				Faint(true).
				PaddingLeft(2)

	captionStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Italic(true).
			PaddingLeft(4)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6B7280"))

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Padding(1, 0, 0, 2)

	titleStyle = lipgloss.NewStyle().
			Background(violet).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	rateLimitNormalStyle = lipgloss.NewStyle().
				Foreground(mint)

	rateLimitWarningStyle = lipgloss.NewStyle().
				Foreground(coral)

	rateLimitCriticalStyle = lipgloss.NewStyle().
				Foreground(crimson)
)

// GetRateLimitStyle picks a colour for a usage percentage.
func GetRateLimitStyle(usage float64) lipgloss.Style {
	switch {
	case usage >= 90:
		return rateLimitCriticalStyle
	case usage >= 70:
		return rateLimitWarningStyle
	default:
		return rateLimitNormalStyle
	}
}

func levelColor(level string) lipgloss.Color {
	switch level {
	case "ERROR":
		return crimson
	case "WARN":
		return coral
	case "SUCCESS":
		return mint
	case "INFO":
		return teal
	default:
		return dimWhite
	}
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type snapshot struct {
	width, height int
	showHelp      bool
	finished      bool
	rateLimit     RateLimitView
	logs          []LogMessage
}

func (m *Model) snapshot() snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := make([]LogMessage, len(m.logMessages))
	copy(logs, m.logMessages)
	return snapshot{
		width:     m.width,
		height:    m.height,
		showHelp:  m.showHelp,
		finished:  m.finished,
		rateLimit: m.rateLimit,
		logs:      logs,
	}
}

// View renders the entire TUI
func (m *Model) View() string {
	s := m.snapshot()
	if s.width == 0 || s.height == 0 {
		return "Initializing..."
	}

	columnWidth := (s.width - 4) / 2

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(columnWidth, s),
		m.renderActivePanel(columnWidth),
		m.renderQueuePanel(columnWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderRateLimitPanel(columnWidth, s),
		m.renderLogsPanel(columnWidth, s),
	)

	sections := []string{
		headerStyle.Width(s.width).Render("fedicaption · caption batch"),
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
	}
	if s.showHelp {
		sections = append(sections, m.renderHelp(s.width))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(s.width).Height(s.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderStatsPanel(width int, s snapshot) string {
	title := titleStyle.Render(" BATCH ")

	total, done, skipped, failed := m.Counts()
	captioned := done - skipped - failed

	status := m.spinner.View() + " running"
	if s.finished {
		status = successStyle.Render("✓ finished")
	}

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Status:"), status),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(time.Since(m.sessionStartTime)))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Captioned:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", captioned, total))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Already done:"), statsValueStyle.Render(fmt.Sprintf("%d", skipped))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Failed:"), errorStyleIf(failed > 0).Render(fmt.Sprintf("%d", failed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(formatDuration(m.ETA()))),
	}

	bar := m.bar
	bar.Width = width - 8
	if bar.Width < 10 {
		bar.Width = 10
	}
	stats = append(stats, "", bar.ViewAs(m.Progress()))

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func errorStyleIf(cond bool) lipgloss.Style {
	if cond {
		return errorStyle
	}
	return statsValueStyle
}

func (m *Model) renderActivePanel(width int) string {
	title := titleStyle.Render(" WRITING ")

	active := m.ActiveJobs()
	if len(active) == 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("Idle")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var items []string
	for _, job := range active {
		line := fmt.Sprintf("%s %s", queueItemActiveStyle.Render(job.MediaID), lipgloss.NewStyle().Foreground(dimWhite).Render("in "+job.StatusID))
		items = append(items, line, captionStyle.Render(truncate(job.Caption, width-10)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m *Model) renderQueuePanel(width int) string {
	title := titleStyle.Render(" QUEUE ")

	pending := m.PendingJobs()
	finished := m.FinishedJobs()

	var items []string
	if n := len(pending); n > 0 {
		items = append(items, warningStyle.Render(fmt.Sprintf("⏳ %d pending", n)))
		for i := 0; i < 3 && i < n; i++ {
			items = append(items, queueItemStyle.Render("• "+pending[i].MediaID))
		}
		if n > 3 {
			items = append(items, lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("  ... and %d more", n-3)))
		}
	}

	if n := len(finished); n > 0 {
		items = append(items, "", successStyle.Render(fmt.Sprintf("✓ %d finished", n)))
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, job := range finished[start:] {
			switch job.State {
			case JobFailed:
				items = append(items, errorStyle.PaddingLeft(2).Render("✗ "+job.MediaID))
			case JobSkipped:
				items = append(items, queueItemDoneStyle.Render("↷ "+job.MediaID))
			default:
				items = append(items, queueItemDoneStyle.Render("✓ "+job.MediaID))
			}
		}
	}

	if len(items) == 0 {
		items = append(items, lipgloss.NewStyle().Foreground(dimWhite).Render("Nothing queued"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m *Model) renderRateLimitPanel(width int, s snapshot) string {
	title := titleStyle.Render(" RATE LIMIT ")

	rl := s.rateLimit
	usage := rl.Usage()

	barWidth := width - 8
	if barWidth < 10 {
		barWidth = 10
	}
	filled := int(usage * float64(barWidth) / 100)

	barStyle := GetRateLimitStyle(usage)
	bar := barStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled))

	limit := "unlimited"
	if rl.LimitPerMinute > 0 {
		limit = fmt.Sprintf("%d/min", rl.LimitPerMinute)
	}

	content := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Rate:"),
			barStyle.Render(fmt.Sprintf("%.1f/min of %s (%.0f%%)", rl.RequestsPerMinute, limit, usage))),
		bar,
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Throttled:"), statsValueStyle.Render(fmt.Sprintf("%d", rl.Throttled))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Waited:"), statsValueStyle.Render(formatDuration(rl.TotalWait))),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int, s snapshot) string {
	title := titleStyle.Render(" LOG ")

	start := len(s.logs) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, entry := range s.logs[start:] {
		timestamp := logTimestampStyle.Render(entry.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level))
		message := logMessageStyle.Render(truncate(entry.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No events yet...")
	}

	logsHeight := s.height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp(width int) string {
	help := `
  Keys:
    q/Q      - Quit (unfinished jobs are cancelled)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Queue:
    ⏳       - Waiting for a worker
    ✓        - Caption written
    ↷        - Captioned by an earlier run
    ✗        - Failed, retried on the next run
`
	return panelStyle.Width(width).Render(help)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max < 4 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// formatDuration formats a duration as mm:ss or hh:mm:ss.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

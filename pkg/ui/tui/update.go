package tui

import (
	"time"

	"fedicaption/internal/captioner"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// JobQueuedMsg adds a job to the queue panel.
type JobQueuedMsg struct {
	Job captioner.Job
}

// JobStartMsg is sent when a worker picks up a job.
type JobStartMsg struct {
	Job captioner.Job
}

// JobFinishMsg is sent with the outcome of a job.
type JobFinishMsg struct {
	Result captioner.Result
}

// RateLimitUpdateMsg carries a fresh limiter snapshot.
type RateLimitUpdateMsg struct {
	View RateLimitView
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// BatchDoneMsg is sent once every job has finished.
type BatchDoneMsg struct{}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.mu.Unlock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tea.Batch(tickCmd(), m.spinner.Tick)

	case JobQueuedMsg:
		m.AddJob(msg.Job)
		return m, nil

	case JobStartMsg:
		m.StartJob(msg.Job)
		return m, nil

	case JobFinishMsg:
		m.FinishJob(msg.Result)
		r := msg.Result
		switch {
		case r.Skipped:
			m.AddLogMessage("INFO", "Already captioned: "+r.Job.MediaID)
		case r.Success:
			m.AddLogMessage("SUCCESS", "Captioned: "+r.Job.MediaID)
		default:
			errText := "unknown error"
			if r.Error != nil {
				errText = r.Error.Error()
			}
			m.AddLogMessage("ERROR", "Failed: "+r.Job.MediaID+" - "+errText)
		}
		return m, nil

	case RateLimitUpdateMsg:
		m.UpdateRateLimit(msg.View)
		if msg.View.Usage() >= 90 {
			m.AddLogMessage("WARN", "Approaching the rate limit, requests are being paced")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case BatchDoneMsg:
		m.MarkFinished()
		m.AddLogMessage("INFO", "Batch finished, press q to exit")
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.mu.Lock()
		m.showHelp = !m.showHelp
		m.mu.Unlock()
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

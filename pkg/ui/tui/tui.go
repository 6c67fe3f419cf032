package tui

import (
	"fmt"

	"fedicaption/internal/captioner"
	"fedicaption/pkg/ratelimit"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI is a full-screen dashboard for a caption batch. It satisfies
// captioner.Observer, so it can be handed straight to the worker pool.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for total jobs. Extra program options are
// passed to bubbletea; tests use them to swap input and output.
func NewTUI(total int, opts ...tea.ProgramOption) *TUI {
	model := NewModel(total)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the dashboard until the user quits or Stop is called.
func (t *TUI) Start() error {
	go t.program.Send(TickMsg{})
	_, err := t.program.Run()
	return err
}

// Stop quits the dashboard.
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Model exposes the dashboard state.
func (t *TUI) Model() *Model {
	return t.model
}

// Queue lists jobs before the workers start.
func (t *TUI) Queue(jobs []captioner.Job) {
	for _, job := range jobs {
		t.model.AddJob(job)
	}
}

// JobStarted implements captioner.Observer.
func (t *TUI) JobStarted(job captioner.Job) {
	t.Send(JobStartMsg{Job: job})
}

// JobFinished implements captioner.Observer.
func (t *TUI) JobFinished(result captioner.Result) {
	t.Send(JobFinishMsg{Result: result})
}

// UpdateRateLimit shows a limiter snapshot against the per-minute limit.
func (t *TUI) UpdateRateLimit(stats ratelimit.Stats, limitPerMinute int) {
	t.Send(RateLimitUpdateMsg{View: RateLimitView{
		RequestsPerMinute: stats.RequestsPerMinute,
		LimitPerMinute:    limitPerMinute,
		Throttled:         stats.ThrottledRequests,
		TotalWait:         stats.TotalWait,
	}})
}

// Done tells the dashboard every job has finished.
func (t *TUI) Done() {
	t.Send(BatchDoneMsg{})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}

package tui

import (
	"sync"
	"time"

	"fedicaption/internal/captioner"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// JobState is where a caption job is in the batch.
type JobState int

const (
	JobPending JobState = iota
	JobActive
	JobDone
	JobSkipped
	JobFailed
)

// JobItem is one caption job as shown on screen.
type JobItem struct {
	StatusID  string
	MediaID   string
	Caption   string
	State     JobState
	StartTime time.Time
	Duration  time.Duration
	Error     error
}

// RateLimitView is the limiter snapshot shown in the rate limit panel.
type RateLimitView struct {
	RequestsPerMinute float64
	LimitPerMinute    int
	Throttled         int64
	TotalWait         time.Duration
}

// Usage returns the request rate as a percentage of the minute limit.
func (r RateLimitView) Usage() float64 {
	if r.LimitPerMinute <= 0 {
		return 0
	}
	u := r.RequestsPerMinute / float64(r.LimitPerMinute) * 100
	if u > 100 {
		u = 100
	}
	return u
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of a caption batch.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	jobs     map[string]*JobItem
	jobOrder []string
	total    int
	done     int
	skipped  int
	failed   int
	finished bool

	sessionStartTime time.Time
	rateLimit        RateLimitView

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// NewModel creates a model for a batch of total jobs.
func NewModel(total int) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(teal)

	bar := progress.New(progress.WithGradient(string(violet), string(mint)))
	bar.Width = 40

	return &Model{
		spinner:          s,
		bar:              bar,
		jobs:             make(map[string]*JobItem),
		total:            total,
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) jobLocked(job captioner.Job) *JobItem {
	item, ok := m.jobs[job.MediaID]
	if !ok {
		item = &JobItem{StatusID: job.StatusID, MediaID: job.MediaID, Caption: job.Caption}
		m.jobs[job.MediaID] = item
		m.jobOrder = append(m.jobOrder, job.MediaID)
		if len(m.jobOrder) > m.total {
			m.total = len(m.jobOrder)
		}
	}
	return item
}

// AddJob queues a job.
func (m *Model) AddJob(job captioner.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobLocked(job)
}

// StartJob marks a job as active.
func (m *Model) StartJob(job captioner.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.jobLocked(job)
	item.State = JobActive
	item.StartTime = time.Now()
}

// FinishJob records the outcome of a job.
func (m *Model) FinishJob(result captioner.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.jobLocked(result.Job)
	if item.State == JobDone || item.State == JobSkipped || item.State == JobFailed {
		return
	}
	item.Duration = result.Duration
	switch {
	case result.Skipped:
		item.State = JobSkipped
		m.skipped++
	case result.Success:
		item.State = JobDone
	default:
		item.State = JobFailed
		item.Error = result.Error
		m.failed++
	}
	m.done++
}

// MarkFinished records that no more jobs will arrive.
func (m *Model) MarkFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
}

// UpdateRateLimit replaces the rate limit snapshot.
func (m *Model) UpdateRateLimit(view RateLimitView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = view
}

// AddLogMessage adds a log message, keeping only the most recent ones.
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

func (m *Model) jobsIn(states ...JobState) []*JobItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*JobItem
	for _, id := range m.jobOrder {
		item := m.jobs[id]
		for _, s := range states {
			if item.State == s {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// ActiveJobs returns the jobs currently being written.
func (m *Model) ActiveJobs() []*JobItem {
	return m.jobsIn(JobActive)
}

// PendingJobs returns the queued jobs.
func (m *Model) PendingJobs() []*JobItem {
	return m.jobsIn(JobPending)
}

// FinishedJobs returns done, skipped and failed jobs in submission order.
func (m *Model) FinishedJobs() []*JobItem {
	return m.jobsIn(JobDone, JobSkipped, JobFailed)
}

// Counts returns total, finished, skipped and failed job counts.
func (m *Model) Counts() (total, done, skipped, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, m.done, m.skipped, m.failed
}

// Progress returns the finished fraction of the batch.
func (m *Model) Progress() float64 {
	total, done, _, _ := m.Counts()
	if total == 0 {
		return 0
	}
	p := float64(done) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}

// ETA estimates the time left from the average job duration so far.
func (m *Model) ETA() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.done == 0 || m.done >= m.total {
		return 0
	}
	perJob := time.Since(m.sessionStartTime) / time.Duration(m.done)
	return perJob * time.Duration(m.total-m.done)
}

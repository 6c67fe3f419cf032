package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"fedicaption/internal/captioner"

	tea "github.com/charmbracelet/bubbletea"
)

func job(media string) captioner.Job {
	return captioner.Job{StatusID: "s-" + media, MediaID: media, Caption: "caption for " + media}
}

func TestModel(t *testing.T) {
	model := NewModel(3)

	model.AddJob(job("m1"))
	model.AddJob(job("m2"))
	model.AddJob(job("m3"))

	if got := len(model.PendingJobs()); got != 3 {
		t.Fatalf("Expected 3 pending jobs, got %d", got)
	}

	model.StartJob(job("m1"))
	if got := len(model.ActiveJobs()); got != 1 {
		t.Errorf("Expected 1 active job, got %d", got)
	}

	model.FinishJob(captioner.Result{Job: job("m1"), Success: true})
	model.FinishJob(captioner.Result{Job: job("m2"), Success: true, Skipped: true})
	model.FinishJob(captioner.Result{Job: job("m3"), Error: errors.New("gone")})
	// A repeated result is ignored.
	model.FinishJob(captioner.Result{Job: job("m3"), Error: errors.New("gone")})

	total, done, skipped, failed := model.Counts()
	if total != 3 || done != 3 || skipped != 1 || failed != 1 {
		t.Errorf("Unexpected counts: total=%d done=%d skipped=%d failed=%d", total, done, skipped, failed)
	}
	if model.Progress() != 1 {
		t.Errorf("Expected progress 1, got %f", model.Progress())
	}
	if len(model.ActiveJobs()) != 0 {
		t.Error("Expected no active jobs")
	}
	if got := model.jobs["m3"].Error; got == nil || got.Error() != "gone" {
		t.Errorf("Expected failure to be kept, got %v", got)
	}
}

func TestModelGrowsTotal(t *testing.T) {
	model := NewModel(1)
	model.StartJob(job("a"))
	model.StartJob(job("b"))

	total, _, _, _ := model.Counts()
	if total != 2 {
		t.Errorf("Expected total to grow to 2, got %d", total)
	}
}

func TestUpdateMessages(t *testing.T) {
	model := NewModel(2)

	model.Update(JobQueuedMsg{Job: job("m1")})
	model.Update(JobStartMsg{Job: job("m1")})
	model.Update(JobFinishMsg{Result: captioner.Result{Job: job("m1"), Error: errors.New("rejected")}})
	model.Update(RateLimitUpdateMsg{View: RateLimitView{RequestsPerMinute: 58, LimitPerMinute: 60}})
	model.Update(BatchDoneMsg{})

	if !model.finished {
		t.Error("Expected batch to be finished")
	}

	var levels []string
	for _, m := range model.logMessages {
		levels = append(levels, m.Level)
	}
	if got := strings.Join(levels, ","); got != "ERROR,WARN,INFO" {
		t.Errorf("Unexpected log levels: %s", got)
	}
	if !strings.Contains(model.logMessages[0].Message, "rejected") {
		t.Errorf("Expected error text in log, got %q", model.logMessages[0].Message)
	}
}

func TestKeyPresses(t *testing.T) {
	model := NewModel(1)
	model.AddLogMessage("INFO", "hello")

	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if !model.showHelp {
		t.Error("Expected help to be shown")
	}

	model.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(model.logMessages) != 0 {
		t.Error("Expected logs to be cleared")
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected quit message")
	}
}

func TestLogMessagesAreCapped(t *testing.T) {
	model := NewModel(1)
	for i := 0; i < 60; i++ {
		model.AddLogMessage("INFO", "line")
	}
	if len(model.logMessages) != 50 {
		t.Errorf("Expected 50 log messages, got %d", len(model.logMessages))
	}
}

func TestView(t *testing.T) {
	model := NewModel(2)
	if got := model.View(); got != "Initializing..." {
		t.Errorf("Expected placeholder before sizing, got %q", got)
	}

	model.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	model.Update(JobStartMsg{Job: job("m1")})
	model.Update(JobQueuedMsg{Job: job("m2")})

	view := model.View()
	for _, want := range []string{"BATCH", "WRITING", "QUEUE", "RATE LIMIT", "m1", "1 pending"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestRateLimitUsage(t *testing.T) {
	tests := []struct {
		view     RateLimitView
		expected float64
	}{
		{RateLimitView{RequestsPerMinute: 30, LimitPerMinute: 60}, 50},
		{RateLimitView{RequestsPerMinute: 90, LimitPerMinute: 60}, 100},
		{RateLimitView{RequestsPerMinute: 10}, 0},
	}
	for _, test := range tests {
		if got := test.view.Usage(); got != test.expected {
			t.Errorf("Usage(%+v) = %f, expected %f", test.view, got, test.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{-time.Second, "00:00"},
		{75 * time.Second, "01:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, test := range tests {
		if got := formatDuration(test.d); got != test.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", test.d, got, test.expected)
		}
	}
}

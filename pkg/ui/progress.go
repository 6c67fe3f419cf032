package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// CaptionProgress prints a single updating line while a caption batch runs.
// In verbose mode it prints one line per finished job instead.
type CaptionProgress struct {
	mu        sync.Mutex
	w         io.Writer
	label     string
	total     int
	done      int
	skipped   int
	errors    int
	current   string
	startTime time.Time
	verbose   bool
	now       func() time.Time
}

// NewCaptionProgress creates a display for total jobs written to w.
func NewCaptionProgress(w io.Writer, label string, total int, verbose bool) *CaptionProgress {
	return &CaptionProgress{
		w:         w,
		label:     label,
		total:     total,
		startTime: time.Now(),
		verbose:   verbose,
		now:       time.Now,
	}
}

// Start marks mediaID as in flight.
func (p *CaptionProgress) Start(mediaID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = mediaID
	if !p.verbose {
		p.printProgress()
	}
}

// Complete marks mediaID as captioned. skipped means an earlier run did it.
func (p *CaptionProgress) Complete(mediaID string, skipped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if skipped {
		p.skipped++
	}
	if p.verbose {
		mark := render(successStyle, "✓")
		if skipped {
			mark = render(dimStyle, "↷")
		}
		fmt.Fprintf(p.w, "%s %s\n", mark, mediaID)
		return
	}
	p.printProgress()
}

// Fail marks mediaID as failed.
func (p *CaptionProgress) Fail(mediaID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.errors++
	if p.verbose {
		fmt.Fprintf(p.w, "%s %s: %v\n", render(errorStyle, "✗"), mediaID, err)
		return
	}
	p.printProgress()
}

// Line returns the current progress line without printing it.
func (p *CaptionProgress) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lineLocked()
}

func (p *CaptionProgress) lineLocked() string {
	const barWidth = 20

	progress := 0.0
	if p.total > 0 {
		progress = float64(p.done) / float64(p.total)
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * barWidth)
	bar := render(successStyle, strings.Repeat("━", filled)) + render(dimStyle, strings.Repeat("─", barWidth-filled))

	parts := []string{
		fmt.Sprintf("%s [%s] %d/%d", render(labelStyle, p.label), bar, p.done, p.total),
		p.eta(),
	}
	if p.current != "" && p.done < p.total {
		parts = append(parts, p.current)
	}
	if p.skipped > 0 {
		parts = append(parts, render(dimStyle, fmt.Sprintf("%d skipped", p.skipped)))
	}
	if p.errors > 0 {
		parts = append(parts, render(errorStyle, fmt.Sprintf("%d errors", p.errors)))
	}
	return strings.Join(parts, " • ")
}

func (p *CaptionProgress) printProgress() {
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), p.lineLocked())
}

// Finish prints the batch summary.
func (p *CaptionProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.startTime)
	captioned := p.done - p.errors - p.skipped

	fmt.Fprintf(p.w, "\n%s Captioned %d of %d media in %s\n",
		render(successStyle, "✓"), captioned, p.total, FormatDuration(elapsed))
	if p.skipped > 0 {
		fmt.Fprintf(p.w, "  %s %d already captioned\n", render(dimStyle, "•"), p.skipped)
	}
	if p.errors > 0 {
		fmt.Fprintf(p.w, "  %s %s\n", render(dimStyle, "•"), render(errorStyle, fmt.Sprintf("%d failed", p.errors)))
	}
}

func (p *CaptionProgress) eta() string {
	if p.done == 0 {
		return "calculating..."
	}
	if p.done >= p.total {
		return "done"
	}
	elapsed := p.now().Sub(p.startTime)
	perJob := elapsed / time.Duration(p.done)
	return FormatDuration(perJob * time.Duration(p.total-p.done))
}

// FormatDuration formats d as 12s, 3m4s or 1h2m.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

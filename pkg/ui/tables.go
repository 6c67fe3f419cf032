package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fedicaption/pkg/activitypub"
	"fedicaption/pkg/auth"
	"fedicaption/pkg/models"
	"fedicaption/pkg/platforms"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	mu.Lock()
	plain := plainMode
	mu.Unlock()

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case plain:
				return cellStyle
			case row == table.HeaderRow:
				return headerStyle
			default:
				return cellStyle
			}
		})
	if !plain {
		t = t.BorderStyle(dimStyle)
	}
	return t.String()
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// RenderPosts lists posts with their media counts.
func RenderPosts(posts []models.Post) string {
	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		missing := 0
		for _, a := range p.Attachments {
			if models.NeedsCaption(a) {
				missing++
			}
		}
		rows = append(rows, []string{
			p.ID,
			formatPublished(p.Published),
			strconv.Itoa(len(p.Attachments)),
			strconv.Itoa(missing),
			Truncate(platforms.StripHTML(p.Content), 48),
		})
	}
	return Table([]string{"ID", "Published", "Media", "No alt", "Content"}, rows)
}

func formatPublished(published string) string {
	if t, err := time.Parse(time.RFC3339, published); err == nil {
		return t.UTC().Format(time.DateTime)
	}
	return Truncate(published, 19)
}

// RenderImages lists images that still need alt text.
func RenderImages(refs []models.ImageRef) string {
	rows := make([][]string, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, []string{
			r.PostID,
			r.AttachmentID,
			strconv.Itoa(r.Index),
			r.MediaType,
			Truncate(r.URL, 60),
		})
	}
	return Table([]string{"Post", "Media", "#", "Type", "URL"}, rows)
}

// RenderAccounts lists stored accounts with masked tokens.
func RenderAccounts(accounts []*auth.Account) string {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		masked := auth.SanitizeAccount(a)
		modified := "-"
		if !a.LastModified.IsZero() {
			modified = a.LastModified.Format(time.DateTime)
		}
		platform := a.Platform
		if platform == "" {
			platform = "auto"
		}
		rows = append(rows, []string{a.Name, platform, a.InstanceURL, masked.AccessToken, modified})
	}
	return Table([]string{"Account", "Platform", "Instance", "Token", "Modified"}, rows)
}

// RenderUsageReport shows the client's rate limit and retry statistics.
func RenderUsageReport(r activitypub.UsageReport) string {
	var b strings.Builder

	b.WriteString(render(titleStyle, fmt.Sprintf("API usage for %s (%s)", r.Instance, r.Platform)))
	b.WriteString("\n\n")

	rl := r.RateLimit
	b.WriteString(Table([]string{"Rate limiter", "Value"}, [][]string{
		{"Requests", strconv.FormatInt(rl.TotalRequests, 10)},
		{"Throttled", fmt.Sprintf("%d (%.1f%%)", rl.ThrottledRequests, rl.ThrottleRate)},
		{"Total wait", rl.TotalWait.Round(time.Millisecond).String()},
		{"Average wait", rl.AverageWait.Round(time.Millisecond).String()},
		{"Requests/min", fmt.Sprintf("%.1f", rl.RequestsPerMinute)},
	}))
	b.WriteString("\n")

	rt := r.Retry
	b.WriteString(Table([]string{"Retries", "Value"}, [][]string{
		{"Attempts", strconv.FormatInt(rt.Attempts, 10)},
		{"Successes", strconv.FormatInt(rt.Successes, 10)},
		{"Failures", strconv.FormatInt(rt.Failures, 10)},
		{"Retries", strconv.FormatInt(rt.Retries, 10)},
		{"Retry wait", rt.TotalRetryWait.Round(time.Millisecond).String()},
		{"Success rate", fmt.Sprintf("%.1f%%", rt.SuccessRate)},
	}))

	if len(r.Breakdown.Endpoints) > 0 {
		names := make([]string, 0, len(r.Breakdown.Endpoints))
		for name := range r.Breakdown.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := make([][]string, 0, len(names))
		for _, name := range names {
			e := r.Breakdown.Endpoints[name]
			rows = append(rows, []string{
				name,
				strconv.FormatInt(e.Attempts, 10),
				strconv.FormatInt(e.Successes, 10),
				strconv.FormatInt(e.Failures, 10),
				strconv.FormatInt(e.Retries, 10),
			})
		}
		b.WriteString("\n")
		b.WriteString(Table([]string{"Endpoint", "Attempts", "OK", "Failed", "Retried"}, rows))
	}

	if len(r.Breakdown.StatusCodes) > 0 {
		codes := make([]int, 0, len(r.Breakdown.StatusCodes))
		for code := range r.Breakdown.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		rows := make([][]string, 0, len(codes))
		for _, code := range codes {
			rows = append(rows, []string{strconv.Itoa(code), strconv.FormatInt(r.Breakdown.StatusCodes[code], 10)})
		}
		b.WriteString("\n")
		b.WriteString(Table([]string{"Status", "Count"}, rows))
	}

	if s := r.ServerLimits; s != nil && s.Present {
		reset := "-"
		if !s.Reset.IsZero() {
			reset = s.Reset.Format(time.DateTime)
		}
		b.WriteString("\n")
		b.WriteString(Table([]string{"Server limit", "Value"}, [][]string{
			{"Limit", strconv.Itoa(s.Limit)},
			{"Remaining", strconv.Itoa(s.Remaining)},
			{"Reset", reset},
		}))
	}

	return b.String()
}

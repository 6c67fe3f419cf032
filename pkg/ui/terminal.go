package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ASCIILogo is printed above interactive command output.
const ASCIILogo = `
  ┌─┐┌─┐┌┬┐┬┌─┐┌─┐┌─┐┌┬┐┬┌─┐┌┐┌
  ├┤ ├┤  ││││  ├─┤├─┘ │ ││ ││││
  └  └─┘─┴┘┴└─┘┴ ┴┴   ┴ ┴└─┘┘└┘
  alt text for the fediverse
`

var (
	mu        sync.Mutex
	out       io.Writer = os.Stdout
	errOut    io.Writer = os.Stderr
	quietMode bool
	plainMode bool
)

// SetOutput redirects regular output. Tests use it to capture text.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetErrorOutput redirects error output.
func SetErrorOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	errOut = w
}

// SetQuietMode suppresses everything except errors.
func SetQuietMode(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	quietMode = quiet
}

// IsQuiet reports whether quiet mode is on.
func IsQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quietMode
}

// SetNoColor renders every style as plain text.
func SetNoColor(noColor bool) {
	mu.Lock()
	defer mu.Unlock()
	plainMode = noColor
}

func render(style lipgloss.Style, text string) string {
	mu.Lock()
	plain := plainMode
	mu.Unlock()
	if plain {
		return text
	}
	return style.Render(text)
}

func printLine(text string) {
	mu.Lock()
	w, quiet := out, quietMode
	mu.Unlock()
	if !quiet {
		fmt.Fprintln(w, text)
	}
}

// PrintLogo prints the logo.
func PrintLogo() {
	mu.Lock()
	w, quiet := out, quietMode
	mu.Unlock()
	if !quiet {
		fmt.Fprint(w, render(logoStyle, ASCIILogo))
	}
}

// PrintError prints an error message. Errors are shown even in quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	mu.Lock()
	w := errOut
	mu.Unlock()
	fmt.Fprintln(w, render(errorStyle, "✗ "+msg))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	printLine(render(successStyle, "✓ "+msg))
}

// PrintInfo prints a label and value pair.
func PrintInfo(label string, value string) {
	printLine(fmt.Sprintf("%s: %s", render(labelStyle, label), render(valueStyle, value)))
}

// PrintWarning prints a warning message.
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	printLine(render(warningStyle, "⚠ "+msg))
}

// PrintHighlight prints a highlighted message.
func PrintHighlight(msg string) {
	printLine(render(highlightStyle, msg))
}

// Print writes pre-rendered text, such as a table, as is.
func Print(text string) {
	printLine(text)
}

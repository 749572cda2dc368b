// Package ui provides terminal styling for human-readable output.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// SymbolSuccess marks successful mutations in stderr hints.
const SymbolSuccess = "✓"

const accentColor = "#A78BFA"

// Muted style for secondary info and hints
var Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))

// IsTerminal reports whether stdout is attached to a TTY. Non-TTY
// consumers (pipes, agents) get the JSON envelope instead of styled text.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// TermWidth returns the current stdout terminal width, falling back to
// DefaultTermWidth when stdout is not a terminal or its size is unknown.
func TermWidth() int {
	fd := os.Stdout.Fd()
	if !term.IsTerminal(fd) {
		return DefaultTermWidth
	}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		return w
	}
	return DefaultTermWidth
}

// Successf returns a formatted success message with checkmark symbol
func Successf(format string, args ...interface{}) string {
	return fmt.Sprintf("%s %s", SymbolSuccess, fmt.Sprintf(format, args...))
}

// Hint returns muted hint text
func Hint(msg string) string {
	return Muted.Render(msg)
}

// Package ui holds the lipgloss styles shared by meshctl's output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hopboxdev/meshbox/internal/tunnel"
)

// MaxWidth is the maximum width for styled output.
const MaxWidth = 80

// Colors.
var (
	Green  = lipgloss.Color("2")
	Red    = lipgloss.Color("1")
	Yellow = lipgloss.Color("3")
	Subtle = lipgloss.Color("8")
)

var (
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 1).
			MarginBottom(1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(Subtle)
)

func colored(c lipgloss.Color, s string) string {
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// StateDot returns a colored ● for a tunnel state: green when connected,
// yellow while changing, red when down.
func StateDot(s tunnel.State) string {
	switch s {
	case tunnel.StateConnected:
		return colored(Green, "●")
	case tunnel.StateConnecting, tunnel.StateDisconnecting:
		return colored(Yellow, "●")
	default:
		return colored(Red, "●")
	}
}

// Check returns a green ✔ when on and a subtle ○ otherwise.
func Check(on bool) string {
	if on {
		return colored(Green, "✔")
	}
	return colored(Subtle, "○")
}

// Section renders content inside a bordered box with a bold title.
func Section(title, content string, width int) string {
	if width > MaxWidth {
		width = MaxWidth
	}
	contentWidth := max(width-4, 40)
	return sectionStyle.Width(contentWidth).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

// StepOK returns a green checkmark step line.
func StepOK(msg string) string {
	return colored(Green, "✔") + " " + msg
}

// StepFail returns a red cross step line.
func StepFail(msg string) string {
	return colored(Red, "✘") + " " + msg
}

// Warn returns a yellow warning message (caller writes to stderr).
func Warn(msg string) string {
	return colored(Yellow, "⚠") + " " + msg
}

// Table renders columnar data with subtle-colored headers.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	pad := func(cell string, w int) string {
		return cell + strings.Repeat(" ", max(w-lipgloss.Width(cell), 0))
	}
	var parts []string
	for i, h := range headers {
		parts = append(parts, pad(h, widths[i]))
	}
	lines := []string{headerStyle.Render(strings.TrimRight(strings.Join(parts, "  "), " "))}
	for _, row := range rows {
		parts = parts[:0]
		for i, cell := range row {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts = append(parts, pad(cell, w))
		}
		lines = append(lines, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	return strings.Join(lines, "\n")
}

// Row renders a two-column key-value row, with optional second pair.
func Row(k1, v1, k2, v2 string, width int) string {
	left := fmt.Sprintf("%-12s %s", k1+":", v1)
	if k2 == "" {
		return left
	}
	gap := max(width/2-lipgloss.Width(left), 2)
	return left + strings.Repeat(" ", gap) + k2 + ": " + v2
}

// Bytes formats a byte count for humans.
func Bytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// Dash returns s, or "-" when s is empty.
func Dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"tasksync/internal/model"
)

// Board palette. Adaptive colors keep the board readable on light and dark terminals.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	colorMuted          lipgloss.TerminalColor = ac("240", "243")
	colorSelectedBg     lipgloss.TerminalColor = ac("#e9e9e9", "#262626")
	colorSelectedFg     lipgloss.TerminalColor = ac("235", "255")
	colorCardBorder     lipgloss.TerminalColor = ac("250", "243")
	colorSelectedBorder lipgloss.TerminalColor = ac("232", "255")
	colorAccent         lipgloss.TerminalColor = ac("27", "62")
	colorError          lipgloss.TerminalColor = ac("160", "203")
)

var (
	styleMuted      = lipgloss.NewStyle().Foreground(colorMuted)
	styleError      = lipgloss.NewStyle().Foreground(colorError)
	styleColumnHead = lipgloss.NewStyle().Bold(true)
	styleSelected   = lipgloss.NewStyle().Background(colorSelectedBg).Foreground(colorSelectedFg)
	styleGhost      = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	styleColumn        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorCardBorder).Padding(0, 1)
	styleColumnFocused = styleColumn.BorderForeground(colorSelectedBorder)
	styleColumnTarget  = styleColumn.BorderForeground(colorAccent)
)

func priorityGlyph(p model.Priority) string {
	switch p {
	case model.PriorityCritical:
		return "!!"
	case model.PriorityHigh:
		return "! "
	default:
		return "  "
	}
}

// applyColorProfilePreference honours NO_COLOR and trusts TERM/COLORTERM when the
// detector under-reports.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	profile := termenv.ColorProfile()
	term := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	colorterm := strings.ToLower(strings.TrimSpace(os.Getenv("COLORTERM")))
	if strings.Contains(colorterm, "truecolor") || strings.Contains(colorterm, "24bit") {
		if profile != termenv.Ascii {
			profile = termenv.TrueColor
		}
	} else if strings.Contains(term, "256color") && profile != termenv.TrueColor {
		profile = termenv.ANSI256
	}
	lipgloss.SetColorProfile(profile)
}

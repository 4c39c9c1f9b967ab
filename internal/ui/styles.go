package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	// Text styles
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Status styles
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	// Fragment styles
	Source   = lipgloss.NewStyle().Foreground(ColorPrimary)
	Position = lipgloss.NewStyle().Foreground(ColorMuted)
	Score    = lipgloss.NewStyle().Foreground(ColorSuccess)
	Excerpt  = lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(4)

	// Section styles
	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	if width < 0 {
		width = 0
	}
	return Divider.Render(strings.Repeat("─", width))
}

// FormatSource formats a fragment's source document and its position in it.
func FormatSource(source string, index int) string {
	return Source.Render(source) + Position.Render(fmt.Sprintf(" #%d", index))
}

// FormatSimilarity formats a cosine similarity.
func FormatSimilarity(similarity float64) string {
	return Score.Render(fmt.Sprintf("(%.4f)", similarity))
}

// FormatLabel formats a numbered list label such as [1].
func FormatLabel(n int) string {
	return Highlight.Render(fmt.Sprintf("[%d]", n))
}

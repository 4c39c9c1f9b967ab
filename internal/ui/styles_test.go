package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	m.Run()
}

func TestHorizontalRule(t *testing.T) {
	assert.Equal(t, "───", HorizontalRule(3))
	assert.Equal(t, "", HorizontalRule(-1))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "manual.pdf #4", FormatSource("manual.pdf", 4))
	assert.Equal(t, "(0.9312)", FormatSimilarity(0.93123))
	assert.Equal(t, "[2]", FormatLabel(2))
}

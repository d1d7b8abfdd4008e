package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// BgStyle renders text with a background that survives the ANSI resets
// lipgloss emits between styled segments.
type BgStyle struct {
	bg    lipgloss.Color
	space string // cached styled space
}

// NewBgStyle creates a background helper for a hex color.
func NewBgStyle(bgColor string) BgStyle {
	bg := lipgloss.Color(bgColor)
	return BgStyle{
		bg:    bg,
		space: lipgloss.NewStyle().Background(bg).Render(" "),
	}
}

// Render applies style and the background to every character of text,
// spaces included.
func (b BgStyle) Render(text string, style lipgloss.Style) string {
	if text == "" {
		return ""
	}
	wordStyle := style.Background(b.bg)
	if !strings.Contains(text, " ") {
		return wordStyle.Render(text)
	}
	words := strings.Split(text, " ")
	for i, w := range words {
		if w != "" {
			words[i] = wordStyle.Render(w)
		}
	}
	return strings.Join(words, b.space)
}

// Space returns a single styled space.
func (b BgStyle) Space() string {
	return b.space
}

// Spaces returns n styled spaces.
func (b BgStyle) Spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return lipgloss.NewStyle().Background(b.bg).Render(strings.Repeat(" ", n))
}

// Join joins rendered parts with n styled spaces.
func (b BgStyle) Join(parts []string, n int) string {
	return strings.Join(parts, b.Spaces(n))
}

// FillLine pads rendered content to width with the background color,
// truncating content that is wider.
func (b BgStyle) FillLine(content string, width int) string {
	if width <= 0 {
		return content
	}
	if ansi.StringWidth(content) > width {
		content = ansi.Truncate(content, width, "…")
	}
	return lipgloss.NewStyle().Background(b.bg).Width(width).Render(content)
}

// Package display holds pure text helpers shared by both surfaces.
package display

import (
	"fmt"
	"strings"

	"github.com/five82/flyover/internal/state"
)

// NormalizeTitle strips parenthetical and bracketed annotations, including
// nested ones, collapses whitespace and trims separator punctuation left
// dangling at the end. "Song (feat. A (Remix))" becomes "Song".
// A title that is nothing but annotation is returned collapsed but intact.
func NormalizeTitle(title string) string {
	var b strings.Builder
	depth := 0
	for _, r := range title {
		switch r {
		case '(', '[':
			depth++
			continue
		case ')', ']':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}

	out := strings.TrimRight(collapse(b.String()), " -:–—")
	if out == "" {
		return collapse(title)
	}
	return out
}

// NormalizeArtists applies NormalizeTitle to each name and joins them.
func NormalizeArtists(names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if n = NormalizeTitle(n); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, ", ")
}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ProgressBar draws a fixed-width bar. The fill never exceeds width, whatever
// position the remote reported.
func ProgressBar(positionMs, durationMs, width int) string {
	if width <= 0 {
		return ""
	}
	if durationMs <= 0 {
		return strings.Repeat("─", width)
	}
	filled := int(float64(width) * state.Percent(positionMs, durationMs) / 100)
	if filled >= width {
		return strings.Repeat("━", width)
	}
	return strings.Repeat("━", filled) + "●" + strings.Repeat("─", width-filled-1)
}

// TrackLine renders "Title - Artists" with both halves normalized.
func TrackLine(t state.Track) string {
	title := NormalizeTitle(t.Title)
	if title == "" {
		title = "Unknown Track"
	}
	if artists := NormalizeArtists(t.Artists); artists != "" {
		return title + " - " + artists
	}
	return title
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

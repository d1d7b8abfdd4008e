package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/five82/flyover/internal/display"
	"github.com/five82/flyover/internal/state"
)

// renderMain lays out header, command bar and the active view.
func (m Model) renderMain() string {
	header := m.renderHeader()
	cmdBar := m.renderCommandBar()
	bodyHeight := max(m.height-2, 1)

	var body string
	switch {
	case m.currentView == ViewLogs:
		body = m.renderLogs()
	case !m.snapshot.Connection.Connected:
		body = m.renderDisconnected(m.width)
	default:
		body = m.renderPlayer(bodyHeight)
	}
	if toasts := m.renderToasts(); toasts != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, toasts, body)
	}
	body = lipgloss.NewStyle().MaxHeight(bodyHeight).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, cmdBar, body)
}

// renderPlayer shows what is playing, the progress bar and either the queue
// or the search pane.
func (m Model) renderPlayer(height int) string {
	snap := m.snapshot
	width := max(m.width, 20)

	sections := []string{m.renderNowPlaying(width), ""}
	used := lipgloss.Height(sections[0]) + 1
	rest := max(height-used, 3)
	if m.search.active() {
		sections = append(sections, m.renderSearch(width, rest))
	} else {
		sections = append(sections, m.renderQueue(snap.Queue, width, rest))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderNowPlaying(width int) string {
	styles := m.theme.Styles()
	snap := m.snapshot
	if snap.Track == nil {
		return styles.MutedText.Render("Nothing playing")
	}

	title := display.NormalizeTitle(snap.Track.Title)
	if title == "" {
		title = "Unknown Track"
	}
	lines := []string{
		styles.Text.Bold(true).Render(ansi.Truncate(title, width, "…")),
		styles.MutedText.Render(ansi.Truncate(display.NormalizeArtists(snap.Track.Artists), width, "…")),
	}
	if snap.Track.Album != "" {
		lines = append(lines, styles.FaintText.Render(ansi.Truncate(snap.Track.Album, width, "…")))
	}

	pos := snap.PositionAt(m.now())
	elapsed := display.FormatDuration(pos)
	total := display.FormatDuration(snap.DurationMs)
	barWidth := max(width-len(elapsed)-len(total)-2, LayoutMinProgressWidth)
	lines = append(lines, styles.FaintText.Render(elapsed)+" "+
		styles.AccentText.Render(display.ProgressBar(pos, snap.DurationMs, barWidth))+" "+
		styles.FaintText.Render(total))

	lines = append(lines, m.renderFlags())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderFlags() string {
	styles := m.theme.Styles()
	snap := m.snapshot
	status := styles.WarningText.Render("❚❚ Paused")
	if snap.IsPlaying {
		status = styles.SuccessText.Render("▶ Playing")
	}
	flags := []string{status}
	if pb := snap.Playback; pb != nil {
		shuffle := styles.FaintText.Render("shuffle off")
		if pb.Shuffle {
			shuffle = styles.AccentText.Render("shuffle on")
		}
		repeat := styles.FaintText.Render("repeat off")
		switch pb.Repeat {
		case state.RepeatContext:
			repeat = styles.AccentText.Render("repeat all")
		case state.RepeatTrack:
			repeat = styles.AccentText.Render("repeat one")
		}
		flags = append(flags, shuffle, repeat)
	}
	return strings.Join(flags, "  ")
}

func (m Model) renderQueue(queue []state.Track, width, height int) string {
	styles := m.theme.Styles()
	lines := []string{styles.AccentText.Bold(true).Render("Up Next")}
	if len(queue) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, styles.FaintText.Render("Queue is empty"))...)
	}

	limit := min(len(queue), QueueDisplayLimit, max(height-2, 1))
	for i, t := range queue[:limit] {
		n := styles.FaintText.Render(fmt.Sprintf("%2d.", i+1))
		line := ansi.Truncate(display.TrackLine(t), max(width-5, 1), "…")
		dur := ""
		if t.DurationMs > 0 {
			dur = " " + styles.FaintText.Render(display.FormatDuration(t.DurationMs))
		}
		lines = append(lines, n+" "+styles.Text.Render(line)+dur)
	}
	if more := len(queue) - limit; more > 0 {
		lines = append(lines, styles.MutedText.Render(fmt.Sprintf("… %d more", more)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderToasts renders the visible toasts, newest last.
func (m Model) renderToasts() string {
	if m.toasts == nil || m.toasts.Len() == 0 {
		return ""
	}
	styles := m.theme.Styles()
	items := m.toasts.Items()
	lines := make([]string, 0, len(items))
	for _, t := range items {
		badge := styles.SeverityStyle(t.Severity).Render(strings.ToUpper(string(t.Severity)))
		lines = append(lines, badge+" "+styles.Text.Render(ansi.Truncate(t.Message, max(m.width-12, 10), "…")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// renderHeader renders the status bar: name, connection state, device and
// overlay settings.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth

	name := "flyover"
	if m.version != "" && !compact {
		name += " " + m.version
	}
	parts := []string{
		bg.Render(name, styles.AccentText.Bold(true)),
		m.renderConnection(bg),
	}

	snap := m.snapshot
	if pb := snap.Playback; pb != nil && pb.Device.Name != "" {
		parts = append(parts,
			bg.Render("Device:", styles.MutedText)+bg.Space()+bg.Render(pb.Device.Name, styles.Text),
			bg.Render("Vol:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d%%", pb.Device.VolumePercent), styles.Text),
		)
	}
	if !compact {
		parts = append(parts,
			bg.Render("Overlay:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d%%", m.prefs.Opacity), styles.Text))
		hk := "off"
		if m.prefs.GlobalHotkeys {
			hk = "on"
		}
		parts = append(parts,
			bg.Render("Hotkeys:", styles.MutedText)+bg.Space()+bg.Render(hk, styles.Text))
	}

	return bg.FillLine(bg.Join(parts, 2), m.width)
}

// renderConnection is the persistent connection indicator.
func (m Model) renderConnection(bg BgStyle) string {
	styles := m.theme.Styles()
	snap := m.snapshot
	switch {
	case m.connecting:
		return bg.Render("● Connecting...", styles.WarningText.Bold(true))
	case !snap.Connection.Connected:
		return bg.Render("● Disconnected", styles.DangerText.Bold(true))
	case snap.IsOffline():
		return bg.Render("● Offline", styles.WarningText.Bold(true)) + bg.Space() +
			bg.Render("retrying", styles.MutedText)
	default:
		return bg.Render("● Connected", styles.SuccessText)
	}
}

// renderCommandBar renders the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch {
	case m.currentView == ViewLogs:
		followLabel := "Pause"
		if !m.logs.follow {
			followLabel = "Follow"
		}
		commands = []cmd{
			{"f", followLabel},
			{"v", "Level " + m.logs.minLevel + "+"},
			{"/", "Search"},
			{"n/N", "Next/Prev"},
			{"l", "Back"},
			{"?", "More"},
		}
	case m.search.browsing():
		commands = []cmd{
			{"j/k", "Select"},
			{"enter", "Queue/Play"},
			{"/", "Edit query"},
			{"esc", "Close"},
			{"?", "More"},
		}
	case !m.snapshot.Connection.Connected:
		commands = []cmd{
			{"c", "Connect"},
			{"l", "Logs"},
			{"T", "Theme"},
			{"?", "More"},
			{"q", "Quit"},
		}
	default:
		commands = []cmd{
			{"space", "Play/Pause"},
			{"n/p", "Next/Prev"},
			{"←/→", "Seek"},
			{"+/-", "Volume"},
			{"/", "Search"},
			{"o", "Edit overlay"},
			{"?", "More"},
		}
	}

	colon := bg.Render(":", styles.FaintText)
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	if m.currentView == ViewLogs && m.logs.searchQuery != "" {
		segments = append(segments, bg.Render("/"+ansi.Truncate(m.logs.searchQuery, 18, "…"), styles.AccentText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return bg.FillLine(bg.Join(segments, 2), m.width)
}

func truncateMiddle(s string, width int) string {
	if ansi.StringWidth(s) <= width || width < 5 {
		return s
	}
	half := (width - 1) / 2
	return ansi.Truncate(s, half, "") + "…" + ansi.TruncateLeft(s, ansi.StringWidth(s)-(width-1-half), "")
}

func (m Model) renderDisconnected(width int) string {
	styles := m.theme.Styles()
	lines := []string{
		styles.DangerText.Bold(true).Render("Disconnected from Spotify"),
		"",
	}
	switch {
	case m.connecting:
		lines = append(lines, styles.WarningText.Render("Waiting for authorization in your browser..."))
	case m.clientID == "":
		lines = append(lines, styles.MutedText.Render("Set client_id in the config file, then press c to connect."))
	default:
		lines = append(lines, styles.Text.Render("Press c to connect your Spotify account."))
	}
	if e := strings.TrimSpace(m.snapshot.Connection.LastError); e != "" {
		lines = append(lines, "", styles.FaintText.Render(truncateMiddle(e, max(width-4, 10))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/flyover/internal/logtail"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// logState holds the log viewer: the tail of the process log file, the
// level filter and the search.
type logState struct {
	path     string
	viewport viewport.Model
	entries  []logtail.Entry
	visible  []logtail.Entry // entries at or above minLevel
	err      error

	follow      bool
	minLevel    string
	lastRefresh time.Time
	dirty       bool // content must be re-rendered

	searchActive   bool
	searchInput    textinput.Model
	searchQuery    string
	searchRegex    *regexp.Regexp
	searchMatches  []int // indices into visible
	searchMatchIdx int
}

func newLogState(path string) logState {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "Search logs..."
	ti.CharLimit = 100
	return logState{
		path:        path,
		viewport:    viewport.New(0, 0),
		follow:      true,
		minLevel:    logLevels[0],
		dirty:       true,
		searchInput: ti,
	}
}

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

// refreshLogs re-reads the tail of the log file.
func (m Model) refreshLogs() tea.Cmd {
	path := m.logs.path
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.Tail(path, LogBufferLimit)
		return logsMsg{entries: entries, err: err}
	}
}

func (m *Model) handleLogs(msg logsMsg) {
	m.logs.lastRefresh = m.now()
	if msg.err != nil {
		log.Warnw("read log file", "path", m.logs.path, "error", msg.err)
		m.logs.err = msg.err
		return
	}
	m.logs.err = nil
	m.logs.entries = msg.entries
	m.applyLogFilter()
}

// applyLogFilter recomputes the visible entries and search matches, then
// re-renders the viewport.
func (m *Model) applyLogFilter() {
	m.logs.visible = m.logs.visible[:0]
	for _, e := range m.logs.entries {
		if e.AtLeast(m.logs.minLevel) {
			m.logs.visible = append(m.logs.visible, e)
		}
	}
	m.findLogMatches()
	m.logs.dirty = true
	m.updateLogViewport()
}

// resizeLogViewport fits the viewport below the header and command bar,
// leaving one line for the status bar.
func (m *Model) resizeLogViewport() {
	m.logs.viewport.Width = max(m.width, 1)
	m.logs.viewport.Height = max(m.height-3, 1)
	m.logs.dirty = true
	m.updateLogViewport()
}

func (m *Model) updateLogViewport() {
	if m.logs.dirty {
		m.logs.viewport.SetContent(m.renderLogContent())
		m.logs.dirty = false
	}
	if m.logs.follow {
		m.logs.viewport.GotoBottom()
	}
}

// handleLogsKey handles keys in the logs view. It reports false for keys it
// leaves to the global bindings.
func (m *Model) handleLogsKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if m.logs.searchActive {
		return m.handleLogSearchInput(msg), true
	}

	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logs.follow = !m.logs.follow
		m.updateLogViewport()
		return nil, true

	case key.Matches(msg, m.keys.CycleLevel):
		m.logs.minLevel = nextLevel(m.logs.minLevel)
		m.applyLogFilter()
		return nil, true

	case key.Matches(msg, m.keys.Search):
		m.logs.searchActive = true
		m.logs.searchInput.SetValue("")
		return m.logs.searchInput.Focus(), true

	case key.Matches(msg, m.keys.NextMatch), key.Matches(msg, m.keys.PrevMatch):
		if m.logs.searchQuery == "" {
			return nil, false
		}
		step := 1
		if key.Matches(msg, m.keys.PrevMatch) {
			step = -1
		}
		m.stepLogMatch(step)
		return nil, true

	case key.Matches(msg, m.keys.Escape):
		if m.logs.searchQuery != "" {
			m.clearLogSearch()
			return nil, true
		}
		return nil, false

	case key.Matches(msg, m.keys.Top):
		m.logs.viewport.GotoTop()
		m.logs.follow = false
		return nil, true

	case key.Matches(msg, m.keys.Bottom):
		m.logs.viewport.GotoBottom()
		m.logs.follow = true
		return nil, true

	case key.Matches(msg, m.keys.Down):
		m.logs.viewport.ScrollDown(1)
		m.logs.follow = false
		return nil, true

	case key.Matches(msg, m.keys.Up):
		m.logs.viewport.ScrollUp(1)
		m.logs.follow = false
		return nil, true

	case key.Matches(msg, m.keys.HalfPageDown):
		m.logs.viewport.HalfPageDown()
		m.logs.follow = false
		return nil, true

	case key.Matches(msg, m.keys.HalfPageUp):
		m.logs.viewport.HalfPageUp()
		m.logs.follow = false
		return nil, true
	}
	return nil, false
}

func (m *Model) handleLogSearchInput(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		query := strings.TrimSpace(m.logs.searchInput.Value())
		m.logs.searchActive = false
		m.logs.searchInput.Blur()
		if query == "" {
			m.clearLogSearch()
			return nil
		}
		// Queries that are not valid patterns fall back to plain substring
		// matching.
		re, err := regexp.Compile("(?i)" + query)
		if err != nil {
			re = nil
		}
		m.logs.searchQuery = query
		m.logs.searchRegex = re
		m.findLogMatches()
		m.logs.searchMatchIdx = 0
		m.logs.dirty = true
		m.scrollToLogMatch()
		m.updateLogViewport()
		return nil

	case key.Matches(msg, m.keys.Escape):
		m.logs.searchActive = false
		m.logs.searchInput.Blur()
		m.logs.searchInput.SetValue("")
		return nil
	}

	var cmd tea.Cmd
	m.logs.searchInput, cmd = m.logs.searchInput.Update(msg)
	return cmd
}

func (m *Model) clearLogSearch() {
	m.logs.searchQuery = ""
	m.logs.searchRegex = nil
	m.logs.searchMatches = nil
	m.logs.searchMatchIdx = 0
	m.logs.dirty = true
	m.updateLogViewport()
}

func (m *Model) findLogMatches() {
	m.logs.searchMatches = nil
	if m.logs.searchQuery == "" {
		return
	}
	for i, e := range m.logs.visible {
		var hit bool
		if m.logs.searchRegex != nil {
			hit = m.logs.searchRegex.MatchString(formatEntry(e))
		} else {
			hit = e.Matches(m.logs.searchQuery)
		}
		if hit {
			m.logs.searchMatches = append(m.logs.searchMatches, i)
		}
	}
	if m.logs.searchMatchIdx >= len(m.logs.searchMatches) {
		m.logs.searchMatchIdx = 0
	}
}

func (m *Model) stepLogMatch(step int) {
	n := len(m.logs.searchMatches)
	if n == 0 {
		return
	}
	m.logs.searchMatchIdx = (m.logs.searchMatchIdx + step + n) % n
	m.logs.dirty = true
	m.scrollToLogMatch()
	m.updateLogViewport()
}

// scrollToLogMatch centers the active match and stops following.
func (m *Model) scrollToLogMatch() {
	if m.logs.searchMatchIdx >= len(m.logs.searchMatches) {
		return
	}
	m.logs.follow = false
	if m.logs.dirty {
		m.logs.viewport.SetContent(m.renderLogContent())
		m.logs.dirty = false
	}
	line := m.logs.searchMatches[m.logs.searchMatchIdx]
	m.logs.viewport.SetYOffset(max(line-m.logs.viewport.Height/2, 0))
}

func nextLevel(level string) string {
	for i, l := range logLevels {
		if l == level {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return logLevels[0]
}

// formatEntry renders an entry as plain text:
//
//	15:04:05 INFO  [remote] poll failed error=timeout
func formatEntry(e logtail.Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if e.Level != "" {
		fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	}
	if e.Logger != "" {
		b.WriteString("[" + e.Logger + "] ")
	}
	b.WriteString(e.Message)
	for _, f := range e.Fields {
		b.WriteString(" " + f.Key + "=" + f.Value)
	}
	return b.String()
}

func (m Model) levelStyle(level string) lipgloss.Style {
	styles := m.theme.Styles()
	switch level {
	case "debug":
		return styles.FaintText
	case "info":
		return styles.InfoText
	case "warn":
		return styles.WarningText
	case "error", "dpanic", "panic", "fatal":
		return styles.DangerText
	default:
		return styles.Text
	}
}

func (m Model) renderLogContent() string {
	styles := m.theme.Styles()
	width := m.logs.viewport.Width

	switch {
	case m.logs.path == "":
		return styles.MutedText.Render("No log file configured")
	case len(m.logs.visible) == 0:
		return styles.MutedText.Render("No log entries")
	}

	matched := make(map[int]bool, len(m.logs.searchMatches))
	for _, i := range m.logs.searchMatches {
		matched[i] = true
	}
	active := -1
	if m.logs.searchMatchIdx < len(m.logs.searchMatches) {
		active = m.logs.searchMatches[m.logs.searchMatchIdx]
	}

	lines := make([]string, len(m.logs.visible))
	for i, e := range m.logs.visible {
		switch {
		case i == active:
			lines[i] = styles.Selected.Width(width).Render(formatEntry(e))
		case matched[i]:
			lines[i] = styles.AccentText.Render(formatEntry(e))
		default:
			lines[i] = m.renderEntry(e)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderEntry(e logtail.Entry) string {
	styles := m.theme.Styles()
	parts := make([]string, 0, 4+len(e.Fields))
	if !e.Time.IsZero() {
		parts = append(parts, styles.FaintText.Render(e.Time.Local().Format("15:04:05")))
	}
	if e.Level != "" {
		parts = append(parts, m.levelStyle(e.Level).Render(fmt.Sprintf("%-5s", strings.ToUpper(e.Level))))
	}
	if e.Logger != "" {
		parts = append(parts, styles.MutedText.Render("["+e.Logger+"]"))
	}
	parts = append(parts, styles.Text.Render(e.Message))
	for _, f := range e.Fields {
		parts = append(parts, styles.FaintText.Render(f.Key+"=")+styles.MutedText.Render(f.Value))
	}
	return strings.Join(parts, " ")
}

// renderLogs renders the viewport with a status line below it.
func (m Model) renderLogs() string {
	return m.logs.viewport.View() + "\n" + m.renderLogStatus()
}

func (m Model) renderLogStatus() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	if m.logs.searchActive {
		return bg.FillLine(m.logs.searchInput.View(), m.width)
	}

	parts := []string{bg.Render(fmt.Sprintf("%d entries", len(m.logs.visible)), styles.MutedText)}
	if m.logs.minLevel != logLevels[0] {
		parts = append(parts, bg.Render(m.logs.minLevel+"+", styles.WarningText))
	}
	if m.logs.searchQuery != "" {
		if n := len(m.logs.searchMatches); n > 0 {
			parts = append(parts, bg.Render(fmt.Sprintf("match %d/%d", m.logs.searchMatchIdx+1, n), styles.AccentText))
		} else {
			parts = append(parts, bg.Render("no matches", styles.DangerText))
		}
	}
	if m.logs.follow {
		parts = append(parts, bg.Render("following", styles.SuccessText))
	}
	if m.logs.err != nil {
		parts = append(parts, bg.Render(m.logs.err.Error(), styles.DangerText))
	}
	return bg.FillLine(bg.Join(parts, 2), m.width)
}

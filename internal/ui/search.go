package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/five82/flyover/internal/display"
	"github.com/five82/flyover/internal/remote"
	"github.com/five82/flyover/internal/state"
)

type searchFocus int

const (
	searchClosed searchFocus = iota
	searchInput
	searchResults
)

// searchState holds the catalog search pane. Results live in the store; the
// pane only tracks the query and the selected row.
type searchState struct {
	focus    searchFocus
	input    textinput.Model
	query    string
	selected int
	pending  bool
}

func newSearchState() searchState {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "Search tracks, artists, albums, playlists..."
	ti.CharLimit = 100
	return searchState{input: ti}
}

func (s *searchState) open() tea.Cmd {
	s.focus = searchInput
	s.input.SetValue(s.query)
	s.input.CursorEnd()
	return s.input.Focus()
}

func (s *searchState) focusResults() {
	s.focus = searchResults
	s.input.Blur()
}

func (s *searchState) close() {
	s.focus = searchClosed
	s.input.Blur()
}

func (s searchState) typing() bool   { return s.focus == searchInput }
func (s searchState) browsing() bool { return s.focus == searchResults }
func (s searchState) active() bool   { return s.focus != searchClosed }

func (s *searchState) clampSelection(n int) {
	if s.selected >= n {
		s.selected = n - 1
	}
	if s.selected < 0 {
		s.selected = 0
	}
}

// handleSearchInput handles keyboard input while the query is being typed.
func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.search.close()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		query := strings.TrimSpace(m.search.input.Value())
		m.search.query = query
		if query == "" {
			m.search.close()
		} else {
			m.search.focusResults()
			m.search.pending = true
		}
		return m, m.searchCmd(query)
	}

	var cmd tea.Cmd
	m.search.input, cmd = m.search.input.Update(msg)
	return m, cmd
}

// searchCmd runs the query. An empty query clears the results.
func (m Model) searchCmd(query string) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
		defer cancel()
		_, err := ctrl.Search(ctx, query, nil, remote.MaxSearchResults)
		return searchMsg{query: query, err: err}
	}
}

// handleResultsKey handles the result list. It reports false for keys it
// leaves to the global bindings.
func (m *Model) handleResultsKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	results := m.snapshot.SearchResults
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.search.close()
		return nil, true

	case key.Matches(msg, m.keys.Search):
		return m.search.open(), true

	case key.Matches(msg, m.keys.Down):
		if m.search.selected < len(results)-1 {
			m.search.selected++
		}
		return nil, true

	case key.Matches(msg, m.keys.Up):
		if m.search.selected > 0 {
			m.search.selected--
		}
		return nil, true

	case key.Matches(msg, m.keys.Confirm):
		if m.search.selected >= len(results) {
			return nil, true
		}
		r := results[m.search.selected]
		if r.Type == "track" {
			uri := r.URI
			return m.do("add to queue", func(c Controller, ctx context.Context) error { return c.AddToQueue(ctx, uri) }), true
		}
		uri := r.URI
		return m.do("start playback", func(c Controller, ctx context.Context) error { return c.PlayURI(ctx, uri) }), true
	}
	return nil, false
}

// renderSearch renders the search pane: the input line, then results.
func (m Model) renderSearch(width, height int) string {
	styles := m.theme.Styles()
	lines := []string{m.search.input.View()}

	results := m.snapshot.SearchResults
	switch {
	case m.search.pending:
		lines = append(lines, styles.MutedText.Render("Searching..."))
	case m.search.query == "":
		lines = append(lines, styles.FaintText.Render("Type a query and press enter"))
	case len(results) == 0:
		lines = append(lines, styles.MutedText.Render("No results"))
	default:
		rows := max(height-2, 1)
		start := 0
		if m.search.selected >= rows {
			start = m.search.selected - rows + 1
		}
		for i := start; i < len(results) && i < start+rows; i++ {
			lines = append(lines, m.renderResult(results[i], i == m.search.selected && m.search.browsing(), width))
		}
		lines = append(lines, styles.FaintText.Render("enter: queue track or play · esc: close"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderResult(r state.SearchResult, selected bool, width int) string {
	styles := m.theme.Styles()
	kind := fmt.Sprintf("%-8s", r.Type)
	name := display.NormalizeTitle(r.Name)
	if r.Subtitle != "" {
		name += " - " + r.Subtitle
	}
	line := ansi.Truncate(kind+" "+name, max(width-2, 1), "…")
	if selected {
		return styles.Selected.Render("▸ " + line)
	}
	return "  " + styles.MutedText.Render(kind) + " " + styles.Text.Render(ansi.Truncate(name, max(width-11, 1), "…"))
}

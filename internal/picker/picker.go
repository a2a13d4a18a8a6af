// Package picker is an interactive terminal selector for the tables a run
// generates rows for.
package picker

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rowforge/rowforge/internal/schema"
)

// ErrCancelled is returned by Run when the user quits without confirming.
var ErrCancelled = errors.New("table selection cancelled")

// SortField controls the column used for sorting.
type SortField int

const (
	SortByName SortField = iota
	SortByColumns
)

type entry struct {
	table    schema.Table
	selected bool
	visible  bool // false when filtered out
}

// Model is the bubbletea model for choosing tables.
type Model struct {
	entries []entry
	cursor  int

	filter    textinput.Model
	filtering bool

	sortField SortField
	sortAsc   bool

	done      bool
	cancelled bool
	width     int
	height    int

	visibleIdxs []int
}

// New creates a selector over tables. Names in preSelected start checked.
func New(tables []schema.Table, preSelected []string) Model {
	pre := make(map[string]bool, len(preSelected))
	for _, n := range preSelected {
		pre[n] = true
	}

	entries := make([]entry, len(tables))
	for i, t := range tables {
		entries[i] = entry{table: t, selected: pre[t.Name], visible: true}
	}

	filter := textinput.New()
	filter.Prompt = "  Filter: "
	filter.Placeholder = "table name"
	filter.CharLimit = 64

	m := Model{
		entries: entries,
		filter:  filter,
		sortAsc: true,
		width:   100,
		height:  24,
	}
	m.sortEntries()
	m.recomputeVisible()
	return m
}

// Run shows the selector on out and returns the confirmed table names.
func Run(tables []schema.Table, preSelected []string, out io.Writer) ([]string, error) {
	if len(tables) == 0 {
		return nil, errors.New("no tables to select from")
	}
	p := tea.NewProgram(New(tables, preSelected), tea.WithAltScreen(), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running table selection: %w", err)
	}
	m := final.(Model)
	if m.Cancelled() {
		return nil, ErrCancelled
	}
	return m.SelectedNames(), nil
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case "up", "k":
		m.moveCursor(-1)

	case "down", "j":
		m.moveCursor(1)

	case "home":
		m.cursor = 0

	case "end":
		if len(m.visibleIdxs) > 0 {
			m.cursor = len(m.visibleIdxs) - 1
		}

	case " ", "space":
		m.toggleCurrent()

	case "a":
		m.selectAll()

	case "n":
		m.deselectAll()

	case "/":
		m.filtering = true
		m.filter.SetValue("")
		return m, m.filter.Focus()

	case "s":
		m.cycleSort()

	case "enter":
		if m.selectedCount() == 0 {
			return m, nil
		}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter()
		return m, nil

	case "enter":
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Select Tables") + "\n\n")

	switch {
	case m.filtering:
		b.WriteString(m.filter.View() + "\n\n")
	case m.filter.Value() != "":
		b.WriteString(dimStyle.Render(fmt.Sprintf("  Filter: %s (/ to change, esc in filter to clear)", m.filter.Value())) + "\n\n")
	}

	header := fmt.Sprintf("  %-3s %-30s %8s  %-20s", "", "Table", "Columns", "Key")
	b.WriteString(dimStyle.Render(header) + "\n")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", max(min(m.width-4, 66), 0))) + "\n")

	listHeight := max(m.height-12, 5)
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	end := min(start+listHeight, len(m.visibleIdxs))

	if len(m.visibleIdxs) == 0 {
		b.WriteString(dimStyle.Render("  No tables match the filter") + "\n")
	}

	for vi := start; vi < end; vi++ {
		e := m.entries[m.visibleIdxs[vi]]

		checkbox := "[ ]"
		if e.selected {
			checkbox = selectedStyle.Render("[x]")
		}
		cursor := "  "
		nameStyle := lipgloss.NewStyle()
		if vi == m.cursor {
			cursor = highlightStyle.Render("> ")
			nameStyle = nameStyle.Bold(true)
		}

		line := fmt.Sprintf("%s%s %-30s %8d  %-20s",
			cursor, checkbox, nameStyle.Render(truncate(e.table.Name, 30)), len(e.table.Columns), keyLabel(e.table))
		b.WriteString(line + "\n")
	}

	if len(m.visibleIdxs) > listHeight {
		pct := 0
		if len(m.visibleIdxs) > 1 {
			pct = m.cursor * 100 / (len(m.visibleIdxs) - 1)
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n  Showing %d-%d of %d (%d%%)",
			start+1, end, len(m.visibleIdxs), pct)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(fmt.Sprintf("  Selected: %d of %d tables", m.selectedCount(), len(m.entries))) + "\n")

	composite := m.compositeSelected()
	for i, name := range composite {
		if i == 3 {
			b.WriteString(warnStyle.Render(fmt.Sprintf("  ⚠ ...and %d more with composite keys", len(composite)-3)) + "\n")
			break
		}
		b.WriteString(warnStyle.Render(fmt.Sprintf("  ⚠ %s has a composite primary key and will fail", name)) + "\n")
	}

	sortLabels := []string{"name", "columns"}
	dir := "↑"
	if !m.sortAsc {
		dir = "↓"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  Sort: %s %s", sortLabels[m.sortField], dir)) + "\n\n")
	b.WriteString(dimStyle.Render("  space toggle • a all • n none • / filter • s sort • enter confirm • q quit") + "\n")

	return b.String()
}

// Done returns true once the user confirmed or cancelled.
func (m Model) Done() bool {
	return m.done
}

// Cancelled returns true if the user quit without confirming.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// SelectedNames returns the checked table names in display order.
func (m Model) SelectedNames() []string {
	var names []string
	for _, e := range m.entries {
		if e.selected {
			names = append(names, e.table.Name)
		}
	}
	return names
}

func (m *Model) moveCursor(delta int) {
	if len(m.visibleIdxs) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.visibleIdxs)-1)
}

func (m *Model) toggleCurrent() {
	if m.cursor < 0 || m.cursor >= len(m.visibleIdxs) {
		return
	}
	idx := m.visibleIdxs[m.cursor]
	m.entries[idx].selected = !m.entries[idx].selected
}

// selectAll and deselectAll only touch rows the filter leaves visible.
func (m *Model) selectAll() {
	for _, i := range m.visibleIdxs {
		m.entries[i].selected = true
	}
}

func (m *Model) deselectAll() {
	for _, i := range m.visibleIdxs {
		m.entries[i].selected = false
	}
}

func (m *Model) applyFilter() {
	lower := strings.ToLower(m.filter.Value())
	for i := range m.entries {
		m.entries[i].visible = lower == "" || strings.Contains(strings.ToLower(m.entries[i].table.Name), lower)
	}
	m.recomputeVisible()
	if m.cursor >= len(m.visibleIdxs) {
		m.cursor = max(0, len(m.visibleIdxs)-1)
	}
}

func (m *Model) recomputeVisible() {
	m.visibleIdxs = m.visibleIdxs[:0]
	for i, e := range m.entries {
		if e.visible {
			m.visibleIdxs = append(m.visibleIdxs, i)
		}
	}
}

func (m *Model) cycleSort() {
	if m.sortAsc {
		m.sortAsc = false
	} else {
		m.sortField = (m.sortField + 1) % 2
		m.sortAsc = true
	}
	m.sortEntries()
	m.recomputeVisible()
	m.cursor = 0
}

func (m *Model) sortEntries() {
	sort.SliceStable(m.entries, func(i, j int) bool {
		a, b := m.entries[i].table, m.entries[j].table
		var less bool
		switch m.sortField {
		case SortByName:
			less = a.Name < b.Name
		case SortByColumns:
			less = len(a.Columns) < len(b.Columns)
		}
		if !m.sortAsc {
			return !less
		}
		return less
	})
}

func (m *Model) selectedCount() int {
	n := 0
	for _, e := range m.entries {
		if e.selected {
			n++
		}
	}
	return n
}

func (m *Model) compositeSelected() []string {
	var names []string
	for _, e := range m.entries {
		if !e.selected {
			continue
		}
		if _, err := e.table.PrimaryKey(); errors.Is(err, schema.ErrCompositeKey) {
			names = append(names, e.table.Name)
		}
	}
	return names
}

func keyLabel(t schema.Table) string {
	pk, err := t.PrimaryKey()
	switch {
	case err != nil:
		return "composite"
	case pk == nil:
		return "-"
	default:
		return pk.Name + " " + pk.DataType
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	summaryStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Package tui implements the interactive catalog browser. The bubbletea
// program loop is the single owner of all rendering state; finished
// covers reach it only as messages, never by direct mutation from a
// background goroutine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jkorpela/bookstand/internal/catalog"
	"github.com/jkorpela/bookstand/internal/cover"
)

const (
	listWidth  = 44
	listHeight = 24
	coverCols  = 28
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	paneStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	priceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m, tea.WithAltScreen()).Run()
}

// bookItem adapts a catalog book to the list component.
type bookItem struct {
	catalog.Book
}

func (i bookItem) Title() string { return i.Book.Title }

func (i bookItem) Description() string {
	return fmt.Sprintf("%s · %s %s", i.Book.Author, stars(i.Book.Rating), priceStyle.Render(fmt.Sprintf("$%.2f", i.Book.Price)))
}

func (i bookItem) FilterValue() string {
	return i.Book.Title + " " + i.Book.Author + " " + i.Book.Genre
}

func stars(rating float64) string {
	full := int(rating)
	if full > 5 {
		full = 5
	}
	return strings.Repeat("★", full) + strings.Repeat("☆", 5-full) + fmt.Sprintf(" (%.1f)", rating)
}

// coverMsg carries a finished resolution into the program loop.
type coverMsg cover.Result

// Model is the browse screen.
type Model struct {
	ctx   context.Context
	list  list.Model
	coord *cover.Coordinator

	coverW int
	coverH int

	currentCard string
	coverView   string
	coverState  string
}

// NewModel builds the browse screen over a catalog store.
func NewModel(ctx context.Context, store *catalog.Store, coord *cover.Coordinator, coverW, coverH int) Model {
	books := store.Books()
	items := make([]list.Item, len(books))
	for i, b := range books {
		items[i] = bookItem{Book: b}
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, listWidth, listHeight)
	l.Title = "bookstand"
	l.Styles.Title = titleStyle

	m := Model{
		ctx:    ctx,
		list:   l,
		coord:  coord,
		coverW: coverW,
		coverH: coverH,
	}
	m.requestSelected()
	return m
}

// Init starts the single drain of the coordinator's result channel.
func (m Model) Init() tea.Cmd {
	return waitForCover(m.coord.Results())
}

func waitForCover(results <-chan cover.Result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-results
		if !ok {
			return nil
		}
		return coverMsg(r)
	}
}

// Update handles input and cover deliveries.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || (msg.String() == "q" && !m.list.SettingFilter()) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.list.SetSize(listWidth, msg.Height-2)
		return m, nil

	case coverMsg:
		if msg.CardID == m.currentCard {
			m.coverView = ansiImage(msg.Image, coverCols)
			m.coverState = "resolved"
		}
		// Late results for other cards are already filtered by the
		// coordinator; anything left over is simply stale and dropped.
		return m, waitForCover(m.coord.Results())
	}

	var cmd tea.Cmd
	before := m.selectedID()
	m.list, cmd = m.list.Update(msg)
	if m.selectedID() != before {
		m.requestSelected()
	}
	return m, cmd
}

// View renders the book list beside the cover pane.
func (m Model) View() string {
	pane := paneStyle.Render(m.coverView + "\n" + statusStyle.Render(m.coverState))
	return lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), pane)
}

func (m Model) selectedID() string {
	item, ok := m.list.SelectedItem().(bookItem)
	if !ok {
		return ""
	}
	return fmt.Sprintf("book-%d", item.Book.ID)
}

// requestSelected shows the selected book's placeholder immediately and
// schedules its real cover. The previously shown card is discarded so a
// late result for it becomes a no-op.
func (m *Model) requestSelected() {
	item, ok := m.list.SelectedItem().(bookItem)
	if !ok {
		return
	}

	if m.currentCard != "" {
		m.coord.Discard(m.currentCard)
	}

	m.currentCard = fmt.Sprintf("book-%d", item.Book.ID)
	placeholder := m.coord.Request(m.ctx, m.currentCard, item.Book, m.coverW, m.coverH)
	m.coverView = ansiImage(placeholder, coverCols)
	m.coverState = "loading…"
}

// Run starts the browse TUI and blocks until the user quits.
func Run(ctx context.Context, store *catalog.Store, coord *cover.Coordinator, coverW, coverH int) error {
	model := NewModel(ctx, store, coord, coverW, coverH)
	_, err := runProgram(model)
	return err
}

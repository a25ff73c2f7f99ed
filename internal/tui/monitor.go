// Package tui is the interactive terminal front end for a running bridge.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/foldermon/internal/bridge"
	"github.com/mattjoyce/foldermon/internal/events"
	"github.com/mattjoyce/foldermon/internal/worker"
)

const (
	maxEventLog    = 50
	healthInterval = 2 * time.Second
)

// Bridge is the command surface the UI drives.
type Bridge interface {
	Scan(ctx context.Context) (string, error)
	List(ctx context.Context) ([]string, error)
	AddFolderPath(ctx context.Context, path string) error
	RemoveFolder(ctx context.Context, path string) error
	OpenInFileManager(ctx context.Context, path string) error
	Folders() []string
	Restart(ctx context.Context) error
	Health() bridge.Health
}

type mode int

const (
	modeBrowse mode = iota
	modeAdd
)

type (
	eventMsg   events.Event
	healthMsg  bridge.Health
	foldersMsg struct {
		folders []string
		err     error
	}
	scanMsg struct {
		items []string
		err   error
	}
	opMsg struct {
		op   string
		path string
		err  error
	}
)

// Model is the bubbletea model for `foldermon tui`.
type Model struct {
	bridge Bridge
	hub    <-chan events.Event
	theme  Theme

	width  int
	height int
	mode   mode

	health   bridge.Health
	folders  []string
	results  []string
	eventLog []events.Event
	status   string
	lastErr  string
	busy     string

	folderTable table.Model
	input       textinput.Model
	resultsView viewport.Model
}

// NewMonitor builds the model. sub may be nil when no event hub is wired.
func NewMonitor(b Bridge, sub <-chan events.Event) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Folder", Width: 60},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	in := textinput.New()
	in.Placeholder = "/path/to/folder"
	in.Prompt = "Add folder: "
	in.CharLimit = 4096

	m := Model{
		bridge:      b,
		hub:         sub,
		theme:       NewDefaultTheme(),
		folderTable: t,
		input:       in,
		resultsView: viewport.New(80, 8),
	}
	m.setFolders(b.Folders())
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.fetchHealth(),
		m.refreshFolders(),
		tea.EnterAltScreen,
	}
	if m.hub != nil {
		cmds = append(cmds, m.receiveNextEvent())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode == modeAdd {
			return m.updateAddMode(msg)
		}
		return m.updateBrowseMode(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.folderTable.SetWidth(m.width - 6)
		m.folderTable.SetColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Folder", Width: max(m.width-16, 20)},
		})
		m.resultsView.Width = m.width - 6
		m.resultsView.Height = max(m.height/3, 3)
		return m, nil

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		return m, m.receiveNextEvent()

	case healthMsg:
		m.health = bridge.Health(msg)
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg {
			return healthMsg(m.bridge.Health())
		})

	case foldersMsg:
		m.busy = ""
		if msg.err != nil {
			m.lastErr = "list: " + msg.err.Error()
			return m, nil
		}
		m.lastErr = ""
		m.setFolders(msg.folders)
		return m, nil

	case scanMsg:
		m.busy = ""
		if msg.err != nil {
			m.lastErr = "scan: " + msg.err.Error()
			return m, nil
		}
		m.lastErr = ""
		m.results = msg.items
		m.status = fmt.Sprintf("scan: %d changed file(s)", len(msg.items))
		m.resultsView.SetContent(strings.Join(msg.items, "\n"))
		m.resultsView.GotoTop()
		return m, nil

	case opMsg:
		m.busy = ""
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s %s: %v", msg.op, msg.path, msg.err)
			return m, nil
		}
		m.lastErr = ""
		m.status = fmt.Sprintf("%s %s", msg.op, msg.path)
		m.setFolders(m.bridge.Folders())
		return m, nil
	}

	var cmd tea.Cmd
	m.folderTable, cmd = m.folderTable.Update(msg)
	return m, cmd
}

func (m Model) updateBrowseMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		m.busy = "scanning"
		return m, m.scan()
	case "l":
		m.busy = "listing"
		return m, m.refreshFolders()
	case "a":
		m.mode = modeAdd
		m.input.SetValue("")
		return m, m.input.Focus()
	case "d", "x":
		path := m.selectedFolder()
		if path == "" {
			return m, nil
		}
		m.busy = "removing"
		return m, m.run("removed", path, m.bridge.RemoveFolder)
	case "o", "enter":
		path := m.selectedFolder()
		if path == "" {
			return m, nil
		}
		return m, m.run("opened", path, m.bridge.OpenInFileManager)
	case "R":
		m.busy = "restarting worker"
		return m, m.restart()
	case "pgdown", "pgup":
		var cmd tea.Cmd
		m.resultsView, cmd = m.resultsView.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.folderTable, cmd = m.folderTable.Update(msg)
	return m, cmd
}

func (m Model) updateAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		path := strings.TrimSpace(m.input.Value())
		m.mode = modeBrowse
		m.input.Blur()
		if path == "" {
			return m, nil
		}
		m.busy = "adding"
		return m, m.run("added", path, m.bridge.AddFolderPath)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setFolders(folders []string) {
	m.folders = folders
	rows := make([]table.Row, 0, len(folders))
	for i, f := range folders {
		rows = append(rows, table.Row{fmt.Sprintf("%d", i+1), f})
	}
	m.folderTable.SetRows(rows)
	if c := m.folderTable.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.folderTable.SetCursor(len(rows) - 1)
	}
}

func (m Model) selectedFolder() string {
	row := m.folderTable.SelectedRow()
	if len(row) < 2 {
		return ""
	}
	return row[1]
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	inner := m.width - 4

	foldersBox := m.theme.Border.Width(inner).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render(fmt.Sprintf("Monitored Folders (%d)", len(m.folders))),
			m.folderTable.View(),
		),
	)

	resultsBody := m.resultsView.View()
	if len(m.results) == 0 {
		resultsBody = m.theme.Dim.Render("  No scan results yet. Press [s] to scan.")
	}
	resultsBox := m.theme.Border.Width(inner).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render(fmt.Sprintf("Changed Files (%d)", len(m.results))),
			resultsBody,
		),
	)

	eventsBox := m.theme.Border.Width(inner).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Events"),
			m.renderEvents(),
		),
	)

	parts := []string{m.renderHeader(), foldersBox, resultsBox, eventsBox}
	if m.mode == modeAdd {
		parts = append(parts, m.input.View())
	}
	parts = append(parts, m.renderStatus(), m.theme.Dim.Render(
		" [s] Scan • [l] List • [a] Add • [d] Remove • [o] Open • [R] Restart worker • [PgUp/PgDn] Results • [q] Quit"))

	return m.theme.Doc.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	h := m.health
	var state string
	switch {
	case h.Attached:
		state = m.theme.StatusOK.Render("RUNNING")
	case h.State == worker.StateExited:
		state = m.theme.StatusFailed.Render("EXITED")
	default:
		state = m.theme.StatusIdle.Render(strings.ToUpper(string(h.State)))
	}
	if h.State == "" {
		state = m.theme.StatusIdle.Render("UNKNOWN")
	}

	pending := 0
	for _, n := range h.Pending {
		pending += n
	}
	ackMode := "minimal"
	if h.Acks {
		ackMode = "acks"
	}

	cols := []string{
		fmt.Sprintf("Worker: %s", state),
		fmt.Sprintf("PID: %d", h.PID),
		fmt.Sprintf("Pending: %d", pending),
		fmt.Sprintf("Restarts: %d", h.Restarts),
		fmt.Sprintf("Mode: %s", ackMode),
	}
	w := (m.width - 4) / len(cols)
	rendered := make([]string, len(cols))
	for i, c := range cols {
		rendered[i] = lipgloss.NewStyle().Width(w).Render(c)
	}
	return m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 8 {
			break
		}
		ts := e.At.Local().Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-18s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return m.theme.Dim.Render("  No events yet...")
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatus() string {
	switch {
	case m.busy != "":
		return m.theme.StatusRunning.Render(" " + m.busy + "...")
	case m.lastErr != "":
		return m.theme.Error.Render(" " + m.lastErr)
	case m.status != "":
		return m.theme.Highlight.Render(" " + m.status)
	}
	return ""
}

// --- Commands ---

func (m Model) receiveNextEvent() tea.Cmd {
	hub := m.hub
	return func() tea.Msg {
		e, ok := <-hub
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m Model) fetchHealth() tea.Cmd {
	b := m.bridge
	return func() tea.Msg { return healthMsg(b.Health()) }
}

func (m Model) refreshFolders() tea.Cmd {
	b := m.bridge
	return func() tea.Msg {
		folders, err := b.List(context.Background())
		return foldersMsg{folders: folders, err: err}
	}
}

func (m Model) scan() tea.Cmd {
	b := m.bridge
	return func() tea.Msg {
		payload, err := b.Scan(context.Background())
		if err != nil {
			return scanMsg{err: err}
		}
		return scanMsg{items: bridge.ParseScanItems(payload)}
	}
}

func (m Model) restart() tea.Cmd {
	b := m.bridge
	return func() tea.Msg {
		return opMsg{op: "restarted", path: "worker", err: b.Restart(context.Background())}
	}
}

func (m Model) run(op, path string, fn func(context.Context, string) error) tea.Cmd {
	return func() tea.Msg {
		return opMsg{op: op, path: path, err: fn(context.Background(), path)}
	}
}

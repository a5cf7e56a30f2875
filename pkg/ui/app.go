// Package ui is the terminal front end: a bubbletea program showing the saved
// conversations next to the active transcript.
package ui

import (
	"context"
	"fmt"
	"strings"

	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatweb/pkg/conversation"
)

type mode int

const (
	modeChat mode = iota
	modeRename
	modeConfirm
)

// opDoneMsg carries the controller state after an operation finished.
type opDoneMsg struct {
	view conversation.View
	err  error
}

const helpLine = "enter send · ctrl+n new · ctrl+r rename · ctrl+d delete · ctrl+y copy · ctrl+l clear · tab list · ctrl+b sidebar · ctrl+c quit"

type Options struct {
	SidebarWidth int
	HideSidebar  bool
	Style        string
}

// AppModel drives a conversation.Controller. Every controller call that may
// touch the network runs in a tea.Cmd; the model only ever renders
// snapshots.
type AppModel struct {
	ctrl     *conversation.Controller
	bridge   *Bridge
	renderer *Renderer

	view      conversation.View
	lastTurns int

	sidebar      SidebarModel
	sidebarWidth int
	showSidebar  bool
	viewport     viewport.Model
	input        textinput.Model
	prompt       textinput.Model
	spinner      bspinner.Model

	mode         mode
	confirm      *ConfirmRequest
	renameTarget string
	notice       conversation.Notice

	busy    int
	ticking bool

	width  int
	height int
}

// NewAppModel builds the program model. The controller must have been
// created with bridge as its Notifier and Confirmer.
func NewAppModel(ctrl *conversation.Controller, bridge *Bridge, opts Options) (AppModel, error) {
	renderer, err := NewRenderer(opts.Style, 80)
	if err != nil {
		return AppModel{}, err
	}
	if opts.SidebarWidth <= 0 {
		opts.SidebarWidth = 32
	}

	sp := bspinner.New()
	sp.Spinner = bspinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	input := textinput.New()
	input.Placeholder = "Type a message and press enter"
	input.Prompt = "> "
	input.Focus()

	prompt := textinput.New()
	prompt.Prompt = "New subject: "
	prompt.CharLimit = 100

	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()

	m := AppModel{
		ctrl:         ctrl,
		bridge:       bridge,
		renderer:     renderer,
		sidebar:      NewSidebarModel(opts.SidebarWidth),
		sidebarWidth: opts.SidebarWidth,
		showSidebar:  !opts.HideSidebar,
		viewport:     vp,
		input:        input,
		prompt:       prompt,
		spinner:      sp,
		// the initial load is started by Init
		busy:         1,
		ticking:      true,
	}
	m.apply(ctrl.Snapshot())
	return m, nil
}

func (m AppModel) Init() tea.Cmd {
	ctrl := m.ctrl
	load := func() tea.Msg {
		err := ctrl.Load(context.Background())
		return opDoneMsg{view: ctrl.Snapshot(), err: err}
	}
	return tea.Batch(
		load,
		m.spinner.Tick,
		textinput.Blink,
		waitForNotice(m.bridge.notices),
		waitForConfirm(m.bridge.confirms),
	)
}

// start runs op in the background and keeps the spinner ticking until all
// running operations have finished.
func (m *AppModel) start(op func(ctx context.Context) error) tea.Cmd {
	m.busy++
	ctrl := m.ctrl
	run := func() tea.Msg {
		err := op(context.Background())
		return opDoneMsg{view: ctrl.Snapshot(), err: err}
	}
	if m.ticking {
		return run
	}
	m.ticking = true
	return tea.Batch(run, m.spinner.Tick)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = ev.Width
		m.height = ev.Height
		m.layout()
		return m, nil

	case conversation.Notice:
		m.notice = ev
		return m, waitForNotice(m.bridge.notices)

	case ConfirmRequest:
		m.confirm = &ev
		m.mode = modeConfirm
		m.input.Blur()
		return m, waitForConfirm(m.bridge.confirms)

	case opDoneMsg:
		m.busy = max(m.busy-1, 0)
		if ev.err != nil && !errors.Is(ev.err, conversation.ErrStaleResponse) {
			log.Debug().Err(ev.err).Msg("operation failed")
		}
		m.apply(ev.view)
		return m, nil

	case bspinner.TickMsg:
		if m.busy == 0 {
			m.ticking = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		m.apply(m.ctrl.Snapshot())
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(ev)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m AppModel) handleKey(ev tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := ev.String()
	if key == "ctrl+c" {
		if m.confirm != nil {
			m.confirm.Reply <- false
		}
		return m, tea.Quit
	}

	switch m.mode {
	case modeConfirm:
		return m.handleConfirmKey(key)
	case modeRename:
		return m.handleRenameKey(ev)
	}

	switch key {
	case "ctrl+n":
		m.ctrl.StartNewConversation()
		m.apply(m.ctrl.Snapshot())
		return m, nil
	case "ctrl+l":
		m.ctrl.ClearTranscript()
		m.apply(m.ctrl.Snapshot())
		return m, nil
	case "ctrl+y":
		_ = m.ctrl.CopyTranscript()
		return m, nil
	case "ctrl+b":
		m.showSidebar = !m.showSidebar
		if !m.showSidebar {
			m.focusInput()
		}
		m.layout()
		return m, nil
	case "tab":
		if m.sidebar.Focused() || !m.showSidebar {
			m.focusInput()
		} else {
			m.sidebar.SetFocused(true)
			m.input.Blur()
		}
		return m, nil
	case "ctrl+r":
		chatID, subject := m.target()
		m.renameTarget = chatID
		m.prompt.SetValue(subject)
		m.prompt.CursorEnd()
		m.mode = modeRename
		m.input.Blur()
		return m, m.prompt.Focus()
	case "ctrl+d":
		chatID, _ := m.target()
		ctrl := m.ctrl
		return m, m.start(func(ctx context.Context) error {
			return ctrl.DeleteConversation(ctx, chatID)
		})
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(ev)
		return m, cmd
	}

	if m.sidebar.Focused() {
		switch key {
		case "up", "k":
			m.sidebar.MoveUp()
		case "down", "j":
			m.sidebar.MoveDown()
		case "esc":
			m.focusInput()
		case "enter":
			rec, ok := m.sidebar.Selected()
			if !ok {
				return m, nil
			}
			ctrl := m.ctrl
			return m, m.start(func(ctx context.Context) error {
				return ctrl.SelectSavedConversation(ctx, rec.ChatID, rec.Subject)
			})
		}
		return m, nil
	}

	if key == "enter" {
		text := m.input.Value()
		if !m.ctrl.Snapshot().Pending() && strings.TrimSpace(text) != "" {
			m.input.Reset()
		}
		ctrl := m.ctrl
		return m, m.start(func(ctx context.Context) error {
			return ctrl.SubmitMessage(ctx, text)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(ev)
	return m, cmd
}

func (m AppModel) handleConfirmKey(key string) (tea.Model, tea.Cmd) {
	var answer, answered bool
	switch key {
	case "y", "Y":
		answer, answered = true, true
	case "n", "N", "esc":
		answered = true
	}
	if answered && m.confirm != nil {
		m.confirm.Reply <- answer
		m.confirm = nil
		m.mode = modeChat
		if !m.sidebar.Focused() {
			m.input.Focus()
		}
	}
	return m, nil
}

func (m AppModel) handleRenameKey(ev tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch ev.String() {
	case "esc":
		m.leaveRename()
		return m, nil
	case "enter":
		chatID, subject := m.renameTarget, m.prompt.Value()
		m.leaveRename()
		ctrl := m.ctrl
		return m, m.start(func(ctx context.Context) error {
			return ctrl.RenameConversation(ctx, chatID, subject)
		})
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(ev)
	return m, cmd
}

func (m *AppModel) leaveRename() {
	m.mode = modeChat
	m.renameTarget = ""
	m.prompt.Blur()
	m.prompt.Reset()
	if !m.sidebar.Focused() {
		m.input.Focus()
	}
}

func (m *AppModel) focusInput() {
	m.sidebar.SetFocused(false)
	m.input.Focus()
}

// target is the conversation rename and delete act on: the highlighted
// sidebar entry while the list has focus, the active one otherwise.
func (m AppModel) target() (string, string) {
	if m.sidebar.Focused() {
		if rec, ok := m.sidebar.Selected(); ok {
			return rec.ChatID, rec.Subject
		}
	}
	return m.view.Session.ChatID, m.view.Session.Subject
}

func (m *AppModel) apply(view conversation.View) {
	m.view = view
	m.sidebar.SetRecords(view.Saved, view.Session.ChatID)
	m.refreshContent()
}

func (m *AppModel) refreshContent() {
	content := m.renderer.RenderTranscript(m.view.Turns)
	if m.view.Pending() {
		content += "\n\n" + mutedStyle.Render("Assistant is typing…")
	}
	m.viewport.SetContent(content)
	if n := len(m.view.Turns); n != m.lastTurns || m.view.Pending() {
		m.lastTurns = n
		m.viewport.GotoBottom()
	}
}

func (m *AppModel) sidebarOuterWidth() int {
	if !m.showSidebar {
		return 0
	}
	// right border
	return m.sidebar.Width() + 1
}

func (m *AppModel) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	bodyHeight := max(m.height-4, 3)
	sidebarWidth := m.sidebarWidth
	if m.width-sidebarWidth-1 < 30 {
		sidebarWidth = max(m.width/3, 12)
	}
	m.sidebar.SetSize(sidebarWidth, bodyHeight)
	mainWidth := max(m.width-m.sidebarOuterWidth(), 20)
	m.viewport.Width = mainWidth
	m.viewport.Height = bodyHeight
	m.input.Width = max(mainWidth-4, 10)
	m.prompt.Width = max(mainWidth-len(m.prompt.Prompt)-2, 10)
	if err := m.renderer.SetWidth(mainWidth - 2); err != nil {
		log.Warn().Err(err).Msg("could not resize renderer")
	}
	m.refreshContent()
}

func (m AppModel) View() string {
	header := headerStyle.Render("chatweb")
	if s := strings.TrimSpace(m.view.Session.Subject); s != "" {
		header += mutedStyle.Render(" · ") + s
	}
	if m.view.UserName != "" {
		header += mutedStyle.Render(" · " + m.view.UserName)
	}
	if m.busy > 0 {
		header += " " + m.spinner.View()
	}

	body := m.viewport.View()
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(), body)
	}

	var bottom string
	switch m.mode {
	case modeConfirm:
		prompt := ""
		if m.confirm != nil {
			prompt = m.confirm.Prompt
		}
		bottom = warnStyle.Render(fmt.Sprintf("%s [y/n]", prompt))
	case modeRename:
		bottom = m.prompt.View()
	default:
		bottom = m.input.View()
	}

	help := helpLine
	if m.width > 0 {
		help = ansi.Truncate(help, m.width, "…")
	}

	return strings.Join([]string{
		header,
		body,
		renderNotice(m.notice),
		bottom,
		mutedStyle.Render(help),
	}, "\n")
}

func renderNotice(n conversation.Notice) string {
	switch n.Level {
	case conversation.LevelError:
		return errorStyle.Render(n.Text)
	case conversation.LevelWarn:
		return warnStyle.Render(n.Text)
	case conversation.LevelSuccess:
		return successStyle.Render(n.Text)
	case conversation.LevelInfo:
		return infoStyle.Render(n.Text)
	}
	return ""
}

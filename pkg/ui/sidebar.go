package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

// SidebarModel lists the saved conversations. It is driven by AppModel and
// keeps its own cursor, which survives refreshes as long as the entry under
// it still exists.
type SidebarModel struct {
	width   int
	height  int
	focused bool
	records []chatapi.ChatRecord
	active  string
	cursor  int
	offset  int
}

func NewSidebarModel(width int) SidebarModel {
	return SidebarModel{width: width}
}

func (m SidebarModel) Width() int { return m.width }

func (m *SidebarModel) SetSize(width, height int) {
	if width > 0 {
		m.width = width
	}
	m.height = height
	m.clampOffset()
}

func (m *SidebarModel) SetFocused(focused bool) { m.focused = focused }

func (m SidebarModel) Focused() bool { return m.focused }

// SetRecords replaces the list and marks activeChatID. The cursor follows the
// entry it was on, or jumps to the active one.
func (m *SidebarModel) SetRecords(records []chatapi.ChatRecord, activeChatID string) {
	prev := ""
	if sel, ok := m.Selected(); ok {
		prev = sel.ChatID
	}
	m.records = records
	m.active = activeChatID

	m.cursor = 0
	target := prev
	if !m.focused || target == "" {
		target = activeChatID
	}
	for i, rec := range records {
		if rec.ChatID == target {
			m.cursor = i
			break
		}
	}
	m.clampOffset()
}

func (m SidebarModel) Selected() (chatapi.ChatRecord, bool) {
	if m.cursor < 0 || m.cursor >= len(m.records) {
		return chatapi.ChatRecord{}, false
	}
	return m.records[m.cursor], true
}

func (m *SidebarModel) MoveUp() {
	if m.cursor > 0 {
		m.cursor--
	}
	m.clampOffset()
}

func (m *SidebarModel) MoveDown() {
	if m.cursor < len(m.records)-1 {
		m.cursor++
	}
	m.clampOffset()
}

func (m *SidebarModel) clampOffset() {
	rows := m.visibleRows()
	if rows <= 0 {
		m.offset = 0
		return
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

// each entry takes two lines below a two line title
func (m SidebarModel) visibleRows() int {
	if m.height <= 0 {
		return len(m.records)
	}
	return max((m.height-2)/2, 1)
}

func (m SidebarModel) View() string {
	var b strings.Builder
	b.WriteString(subHeaderStyle.Render(fmt.Sprintf("Conversations (%d)", len(m.records))))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(mutedStyle.Render("No saved conversations"))
	}
	end := min(m.offset+m.visibleRows(), len(m.records))
	for i := m.offset; i < end; i++ {
		rec := m.records[i]
		subject := ansi.Truncate(strings.TrimSpace(rec.Subject), m.width-2, "…")
		if subject == "" {
			subject = rec.ChatID
		}
		line := "  " + subject
		if rec.ChatID == m.active {
			line = activeStyle.Render("● " + subject)
		}
		if i == m.cursor && m.focused {
			line = cursorStyle.Render(ansi.Strip(line))
		}
		b.WriteString(line + "\n")
		b.WriteString(mutedStyle.Render("  "+formatTime(rec)) + "\n")
	}

	border := sidebarBorder
	if m.focused {
		border = sidebarFocusedBorder
	}
	return border.Width(m.width).Render(lipgloss.NewStyle().MaxWidth(m.width).Render(strings.TrimRight(b.String(), "\n")))
}

func formatTime(rec chatapi.ChatRecord) string {
	t := rec.UpdatedAt
	if t.IsZero() {
		t = rec.CreatedAt
	}
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	activeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
	cursorStyle    = lipgloss.NewStyle().Reverse(true)

	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	sidebarBorder = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("240")).
			PaddingRight(1)
	sidebarFocusedBorder = sidebarBorder.BorderForeground(lipgloss.Color("63"))
)

// Package ui holds the lipgloss styles shared by the scduck CLI's
// human-readable (non-JSON) output.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPass = lipgloss.Color("10")
	ColorWarn = lipgloss.Color("11")
	ColorFail = lipgloss.Color("9")
	ColorDim  = lipgloss.Color("244")

	Header = lipgloss.NewStyle().Bold(true)
	Pass   = lipgloss.NewStyle().Foreground(ColorPass)
	Warn   = lipgloss.NewStyle().Foreground(ColorWarn)
	Fail   = lipgloss.NewStyle().Bold(true).Foreground(ColorFail)
	Dim    = lipgloss.NewStyle().Foreground(ColorDim)
)

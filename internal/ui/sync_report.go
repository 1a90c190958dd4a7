package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/scduck/scduck/internal/types"
)

// RenderSyncReport renders a SyncStats as a small summary table for
// human-readable (non-JSON) CLI output. Styling (bold/color) is only
// applied when ShouldUseColor reports true (stdout is a terminal, unless
// NO_COLOR, CLICOLOR=0 or CLICOLOR_FORCE decide otherwise), so piped
// output doesn't carry raw ANSI escapes by default.
func RenderSyncReport(tableName string, stats types.SyncStats) string {
	plain := !ShouldUseColor()

	headerText := fmt.Sprintf("synced %s as of %s", tableName, stats.Date)
	header := headerText
	if !plain {
		header = Header.Foreground(ColorPass).Render(headerText)
	}

	rows := [][]string{
		{"new", fmt.Sprint(stats.RowsNew)},
		{"changed", fmt.Sprint(stats.RowsChanged)},
		{"unchanged", fmt.Sprint(stats.RowsUnchanged)},
		{"extended back", fmt.Sprint(stats.RowsExtendedBack)},
		{"reappeared", fmt.Sprint(stats.RowsReappeared)},
		{"deleted", fmt.Sprint(stats.RowsDeleted)},
	}

	t := table.New().Border(lipgloss.HiddenBorder()).Rows(rows...)
	if !plain {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if col == 1 {
				return lipgloss.NewStyle().Bold(true)
			}
			return Dim
		})
	}

	footerText := fmt.Sprintf("total rows in incoming snapshot: %d", stats.RowsTotal)
	footer := footerText
	if !plain {
		footer = Dim.Render(footerText)
	}

	return header + "\n" + t.Render() + "\n" + footer
}

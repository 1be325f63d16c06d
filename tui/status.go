package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderStatusBar shows the node and the acting character on the left and
// the turn counters on the right, padded to the full width.
func (m Model) renderStatusBar() string {
	st := m.status
	left := fmt.Sprintf(" %s | %s", st.Node, st.Character)
	right := fmt.Sprintf("T:%d ", st.Turn)

	candidate := fmt.Sprintf("XP:%d | T:%d | v%d ", st.XP, st.Turn, st.Version)
	if lipgloss.Width(left)+lipgloss.Width(candidate)+2 < m.width {
		right = candidate
	}
	if m.game.Trace {
		right = "trace | " + right
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return styleStatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

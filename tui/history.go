// Package tui is the Bubble Tea playtest dashboard.
package tui

// History keeps recent commands for Up/Down recall.
type History struct {
	entries []string
	limit   int
	pos     int // len(entries) when not browsing
}

func NewHistory(limit int) *History {
	return &History{entries: make([]string, 0, limit), limit: limit}
}

// Push records a command, skipping a repeat of the newest entry, and stops
// browsing.
func (h *History) Push(cmd string) {
	if n := len(h.entries); n == 0 || h.entries[n-1] != cmd {
		h.entries = append(h.entries, cmd)
		if len(h.entries) > h.limit {
			h.entries = h.entries[len(h.entries)-h.limit:]
		}
	}
	h.pos = len(h.entries)
}

// Older steps back, stopping at the oldest entry.
func (h *History) Older() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.pos > 0 {
		h.pos--
	}
	return h.entries[h.pos], true
}

// Newer steps forward. Stepping past the newest entry returns false and
// leaves the caller on a fresh line.
func (h *History) Newer() (string, bool) {
	if h.pos >= len(h.entries) {
		return "", false
	}
	h.pos++
	if h.pos == len(h.entries) {
		return "", false
	}
	return h.entries[h.pos], true
}

// Reset stops browsing.
func (h *History) Reset() {
	h.pos = len(h.entries)
}

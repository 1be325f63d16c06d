package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleNarrative = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleHeading = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	styleOption = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))

	styleReward = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	styleEvent = lipgloss.NewStyle().
			Foreground(lipgloss.Color("177")).
			Italic(true)

	styleTurn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("43"))

	styleDialogue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	stylePlayerInput = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

type lineKind int

const (
	kindNarrative lineKind = iota
	kindHeading
	kindOption
	kindReward
	kindEvent
	kindTurn
	kindDialogue
	kindSystem
	kindError
	kindTrace
)

var errorPrefixes = []string{
	"You can't",
	"You cannot",
	"There is no",
	"That way is closed",
	"I don't understand",
}

var rewardPrefixes = []string{
	"+",
	"Unlocked:",
	"A new place appears:",
	"Hint chain",
}

// classifyLine picks a style from the shape of a playtest output line.
func classifyLine(line string) lineKind {
	switch {
	case strings.HasPrefix(line, "[trace]"):
		return kindTrace
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	case line == "Choices:" || line == "Hints:":
		return kindHeading
	case isOption(line):
		return kindOption
	case hasAnyPrefix(line, errorPrefixes):
		return kindError
	case hasAnyPrefix(line, rewardPrefixes):
		return kindReward
	case strings.HasPrefix(line, "Event:"), strings.HasPrefix(line, "Consequences ripple"):
		return kindEvent
	case strings.HasPrefix(line, "It is ") && strings.HasSuffix(line, "turn."):
		return kindTurn
	case containsQuotedSpeech(line):
		return kindDialogue
	default:
		return kindNarrative
	}
}

// isOption matches numbered entries such as "  2. Cross the bridge".
func isOption(line string) bool {
	rest := strings.TrimLeft(line, " ")
	if len(rest) == len(line) {
		return false
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	return i > 0 && strings.HasPrefix(rest[i:], ". ")
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// containsQuotedSpeech reports a double-quoted span of more than five
// characters.
func containsQuotedSpeech(line string) bool {
	inQuote := false
	quoteLen := 0
	for _, r := range line {
		switch {
		case r == '"' || r == '“' || r == '”':
			if inQuote && quoteLen > 5 {
				return true
			}
			inQuote = !inQuote
			quoteLen = 0
		case inQuote:
			quoteLen++
		}
	}
	return false
}

func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindHeading:
		return styleHeading.Render(line)
	case kindOption:
		return styleOption.Render(line)
	case kindReward:
		return styleReward.Render(line)
	case kindEvent:
		return styleEvent.Render(line)
	case kindTurn:
		return styleTurn.Render(line)
	case kindDialogue:
		return styleDialogue.Render(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styleNarrative.Render(line)
	}
}

func styledSystemMsg(text string) string {
	if text == "" {
		return ""
	}
	return styleSystem.Render("[" + text + "]")
}

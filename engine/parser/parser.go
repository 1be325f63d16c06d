// Package parser converts playtest command strings into Intent structs.
// Intentionally dumb: no NLP, just pattern matching.
package parser

import (
	"strings"

	"github.com/nathoo/lorecore/types"
)

var verbAliases = map[string]string{
	// Look
	"l":        "look",
	"describe": "look",
	"where":    "look",

	// Choose
	"c":      "choose",
	"pick":   "choose",
	"select": "choose",
	"go":     "choose",

	// Hints
	"h":    "hints",
	"hint": "hints",
	"clue": "hints",

	// Hint responses
	"f":        "follow",
	"heed":     "follow",
	"trust":    "follow",
	"skip":     "ignore",
	"dismiss":  "ignore",
	"defy":     "oppose",
	"opposite": "oppose",
	"against":  "oppose",

	// Interactions
	"finish":  "complete",
	"done":    "complete",
	"resolve": "complete",
	"cascade": "effects",
	"status":  "effects",

	// Combat
	"feint":     "bluff",
	"fight":     "duel",
	"attack":    "duel",
	"challenge": "duel",

	// Miscellaneous
	"roll":  "events",
	"event": "events",
	"next":  "turn",
	"pass":  "turn",
	"end":   "turn",
	"i":     "stats",
	"inv":   "stats",
	"sheet": "stats",
	"z":     "wait",
}

// Verbs whose first argument is an object and second a target even without
// a preposition, e.g. "complete bridge bad".
var twoArgVerbs = map[string]bool{
	"complete": true,
	"bluff":    true,
	"duel":     true,
}

var prepositions = map[string]bool{
	"on":    true, "at": true, "to": true,
	"with":  true, "against": true, "as": true,
	"using": true,
}

var articles = map[string]bool{
	"the": true, "a": true, "an": true,
}

// Parse converts a raw command string into an Intent.
func Parse(input string) types.Intent {
	input = strings.TrimSpace(input)
	if input == "" {
		return types.Intent{}
	}

	words := strings.Fields(strings.ToLower(input))

	// A bare number picks that choice.
	if len(words) == 1 && isNumber(words[0]) {
		return types.Intent{Verb: "choose", Object: words[0]}
	}

	words = expandMultiWordVerbs(words)

	if alias, ok := verbAliases[words[0]]; ok {
		words[0] = alias
	}

	verb := words[0]
	rest := stripArticles(words[1:])

	object, target := splitOnPreposition(rest)
	if target == "" && twoArgVerbs[verb] && len(rest) >= 2 {
		object, target = rest[0], strings.Join(rest[1:], " ")
	}

	return types.Intent{
		Verb:   verb,
		Object: object,
		Target: target,
	}
}

// expandMultiWordVerbs handles "look around", "end turn", "random event" etc.
func expandMultiWordVerbs(words []string) []string {
	if len(words) < 2 {
		return words
	}

	switch words[0] {
	case "look":
		if words[1] == "around" {
			return append([]string{"look"}, words[2:]...)
		}
	case "end", "next", "pass":
		if words[1] == "turn" {
			return append([]string{"turn"}, words[2:]...)
		}
	case "random":
		if words[1] == "event" || words[1] == "events" {
			return append([]string{"events"}, words[2:]...)
		}
	case "show":
		switch words[1] {
		case "hints":
			return append([]string{"hints"}, words[2:]...)
		case "stats":
			return append([]string{"stats"}, words[2:]...)
		}
	}

	return words
}

// stripArticles removes articles ("the", "a", "an") from the word list.
func stripArticles(words []string) []string {
	result := make([]string, 0, len(words))
	for _, w := range words {
		if !articles[w] {
			result = append(result, w)
		}
	}
	return result
}

// splitOnPreposition splits words on the first preposition.
// Words before the preposition become the object, words after become the target.
// If no preposition is found, all words become the object.
func splitOnPreposition(words []string) (object, target string) {
	for i, w := range words {
		if prepositions[w] {
			object = strings.Join(words[:i], " ")
			target = strings.Join(words[i+1:], " ")
			return object, target
		}
	}
	return strings.Join(words, " "), ""
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

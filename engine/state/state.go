// Package state manages the per-evaluation session snapshot: stat clamping,
// story flag coercion and inventory lookups.
package state

import (
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/nathoo/lorecore/types"
)

const (
	MinStat = 1
	MaxStat = 10
	// DefaultStat is used when a character has never had a stat set.
	DefaultStat = 5
)

// Defs holds the immutable campaign definitions loaded from Lua.
type Defs struct {
	Campaign     types.Campaign
	Nodes        map[string]types.StoryNode
	Characters   []types.Character
	Triggers     []types.TriggerDef
	CascadeRules []types.CascadeRule
	Hints        []types.HintDef
	HintChains   []types.HintChain
	RandomEvents []types.RandomEvent
}

// ClampStat bounds a stat value to [MinStat, MaxStat].
func ClampStat(v int) int {
	return min(max(v, MinStat), MaxStat)
}

// NewSessionState creates an empty snapshot.
func NewSessionState() *types.SessionState {
	return &types.SessionState{
		Stats:       map[string]int{},
		StoryFlags:  map[string]any{},
		Inventory:   []string{},
		ChoicesMade: []types.Choice{},
	}
}

// Snapshot builds the evaluation state for one character in a session.
func Snapshot(rec *types.SessionRecord, ch *types.Character) *types.SessionState {
	s := NewSessionState()
	if rec != nil {
		for k, v := range rec.StoryFlags {
			s.StoryFlags[k] = v
		}
		s.TurnCount = rec.TurnCount
		s.Location = rec.Location
		s.PlayerCount = len(rec.TurnOrder)
		s.ChoicesMade = append(s.ChoicesMade, rec.ChoicesMade...)
	}
	if ch != nil {
		for k, v := range ch.Stats {
			s.Stats[k] = ClampStat(v)
		}
		s.Inventory = append(s.Inventory, ch.Inventory...)
	}
	return s
}

// Clone returns a deep copy so evaluators can fold effects without
// touching the caller's snapshot.
func Clone(s *types.SessionState) *types.SessionState {
	c := NewSessionState()
	for k, v := range s.Stats {
		c.Stats[k] = v
	}
	for k, v := range s.StoryFlags {
		c.StoryFlags[k] = v
	}
	c.Inventory = append(c.Inventory, s.Inventory...)
	c.ChoicesMade = append(c.ChoicesMade, s.ChoicesMade...)
	c.TurnCount = s.TurnCount
	c.Location = s.Location
	c.PlayerCount = s.PlayerCount
	return c
}

// GetStat returns a stat and whether it is set.
func GetStat(s *types.SessionState, name string) (int, bool) {
	v, ok := s.Stats[name]
	return v, ok
}

// StatOrDefault returns the stat or DefaultStat when unset.
func StatOrDefault(stats map[string]int, name string) int {
	if v, ok := stats[name]; ok {
		return v
	}
	return DefaultStat
}

// HasItem reports whether the inventory holds item, ignoring case.
func HasItem(s *types.SessionState, item string) bool {
	return slices.ContainsFunc(s.Inventory, func(have string) bool {
		return strings.EqualFold(have, item)
	})
}

// AddItem appends item unless it is already held.
func AddItem(s *types.SessionState, item string) bool {
	if item == "" || HasItem(s, item) {
		return false
	}
	s.Inventory = append(s.Inventory, item)
	return true
}

// GetFlag returns a story flag and whether it is set.
func GetFlag(s *types.SessionState, name string) (any, bool) {
	v, ok := s.StoryFlags[name]
	return v, ok
}

// NumericFlag reads a flag as a number. Numeric strings count.
func NumericFlag(s *types.SessionState, name string) (float64, bool) {
	v, ok := s.StoryFlags[name]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// CoerceFlag turns the strings "true" and "false" into booleans. Every
// other value is returned unchanged.
func CoerceFlag(v any) any {
	if str, ok := v.(string); ok {
		switch str {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v
}

// FlagEquals compares two flag values after coercion. Numbers compare by
// value regardless of their Go type.
func FlagEquals(a, b any) bool {
	a, b = CoerceFlag(a), CoerceFlag(b)
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat converts numeric values and numeric strings.
func ToFloat(v any) (float64, bool) {
	if f, ok := number(v); ok {
		return f, true
	}
	if str, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

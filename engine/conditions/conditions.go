// Package conditions implements the predicate tables for triggers, hints and
// random events. Every evaluator is pure: a missing stat or flag means the
// condition is not met.
package conditions

import (
	"strings"

	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// EvalTrigger evaluates a single trigger condition against the snapshot.
// Only RandomChance draws from roller.
func EvalTrigger(c types.TriggerCondition, s *types.SessionState, roller dice.Roller) bool {
	switch c := c.(type) {
	case types.StatThreshold:
		v, ok := state.GetStat(s, c.Stat)
		return ok && v >= c.MinValue

	case types.ItemPossessed:
		return state.HasItem(s, c.ItemName)

	case types.FlagSet:
		v, ok := state.GetFlag(s, c.FlagName)
		return ok && state.FlagEquals(v, c.FlagValue)

	case types.RelationshipScore:
		v, ok := state.NumericFlag(s, "relationship_"+c.NPC)
		return ok && v >= c.MinScore

	case types.FactionReputation:
		v, ok := state.NumericFlag(s, "faction_"+c.Faction)
		return ok && v >= c.MinReputation

	case types.ChoiceMade:
		want := strings.ToLower(c.Contains)
		for _, ch := range s.ChoicesMade {
			if ch.NodeID == c.NodeID && strings.Contains(strings.ToLower(ch.ChoiceText), want) {
				return true
			}
		}
		return false

	case types.PlayerCount:
		return s.PlayerCount >= c.MinPlayers

	case types.RandomChance:
		if roller == nil {
			return false
		}
		return roller.Percent() < c.Probability

	default:
		return false
	}
}

// EvalHint returns true if every hint condition holds (AND logic).
// Empty conditions are vacuously true.
func EvalHint(c types.HintConditions, s *types.SessionState) bool {
	if c.Invalid != "" {
		return false
	}
	if !statsAtLeast(c.StatThreshold, s) || !flagsMatch(c.FlagRequired, s) {
		return false
	}
	for _, item := range c.ItemRequired {
		if !state.HasItem(s, item) {
			return false
		}
	}
	return true
}

// EvalEvent returns true if every random event condition holds.
func EvalEvent(c types.EventConditions, s *types.SessionState) bool {
	if c.Invalid != "" {
		return false
	}
	if !statsAtLeast(c.StatThresholds, s) || !flagsMatch(c.RequiredFlags, s) {
		return false
	}
	if s.TurnCount < c.MinTurn {
		return false
	}
	if c.Location != "" && s.Location != c.Location {
		return false
	}
	return true
}

func statsAtLeast(thresholds map[string]int, s *types.SessionState) bool {
	for stat, want := range thresholds {
		v, ok := state.GetStat(s, stat)
		if !ok || v < want {
			return false
		}
	}
	return true
}

func flagsMatch(want map[string]any, s *types.SessionState) bool {
	for flag, wv := range want {
		v, ok := state.GetFlag(s, flag)
		if !ok || !state.FlagEquals(v, wv) {
			return false
		}
	}
	return true
}

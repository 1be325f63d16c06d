package loader

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// ValidationError collects all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

func (e *ValidationError) errorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

func (e *ValidationError) warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

var knownOutcomes = map[types.OutcomeType]bool{
	types.OutcomeGood:    true,
	types.OutcomeBad:     true,
	types.OutcomeNeutral: true,
}

var knownCategories = map[types.EventCategory]bool{
	types.CategoryEncounter:  true,
	types.CategoryWeather:    true,
	types.CategoryFortune:    true,
	types.CategoryMisfortune: true,
	types.CategoryDiscovery:  true,
	types.CategoryAmbush:     true,
}

// validate checks cross references. Broken structure (missing start node,
// dangling choice targets, duplicate ids, chains naming unknown hints) is
// an error. Content that loads but can never behave as written is a
// warning. The returned warnings are also carried by a ValidationError.
func validate(defs *state.Defs) ([]string, error) {
	ve := &ValidationError{}

	if defs.Campaign.ID == "" {
		ve.errorf("campaign has no id")
	}
	if defs.Campaign.Title == "" {
		ve.errorf("campaign has no title")
	}
	switch {
	case defs.Campaign.StartNode == "":
		ve.errorf("campaign has no start node")
	case len(defs.Nodes) > 0:
		if _, ok := defs.Nodes[defs.Campaign.StartNode]; !ok {
			ve.errorf("start node %q is not defined", defs.Campaign.StartNode)
		}
	}

	interactions := map[string]bool{}
	for _, id := range slices.Sorted(maps.Keys(defs.Nodes)) {
		n := defs.Nodes[id]
		for i, c := range n.Choices {
			if c.Text == "" {
				ve.warnf("node %s: choice %d has no text", id, i+1)
			}
			if c.Target != "" {
				if _, ok := defs.Nodes[c.Target]; !ok {
					ve.errorf("node %s: choice %q targets unknown node %q", id, c.Text, c.Target)
				}
			}
			if c.InteractionID != "" {
				interactions[c.InteractionID] = true
			}
		}
	}

	seen := map[string]bool{}
	for _, ch := range defs.Characters {
		if seen[ch.ID] {
			ve.errorf("character %q defined twice", ch.ID)
		}
		seen[ch.ID] = true
		for stat, v := range ch.Stats {
			if v != state.ClampStat(v) {
				ve.warnf("character %s: %s = %d is outside [%d, %d] and will be clamped", ch.ID, stat, v, state.MinStat, state.MaxStat)
			}
		}
	}

	validateTriggers(defs, ve)
	validateCascades(defs, interactions, ve)
	hintIDs := validateHints(defs, ve)
	validateChains(defs, hintIDs, ve)
	validateEvents(defs, ve)

	if len(ve.Errors) > 0 {
		return ve.Warnings, ve
	}
	return ve.Warnings, nil
}

func validateTriggers(defs *state.Defs, ve *ValidationError) {
	seen := map[string]bool{}
	for _, t := range defs.Triggers {
		if seen[t.ID] {
			ve.errorf("trigger %q defined twice", t.ID)
		}
		seen[t.ID] = true
		switch c := t.Condition.(type) {
		case types.InvalidCondition:
			ve.warnf("trigger %s: condition never holds: %s", t.ID, c.Reason)
		case types.ChoiceMade:
			if len(defs.Nodes) > 0 {
				if _, ok := defs.Nodes[c.NodeID]; !ok {
					ve.warnf("trigger %s: choice_made refers to unknown node %q", t.ID, c.NodeID)
				}
			}
		}
		if len(t.Effects) == 0 {
			ve.warnf("trigger %s has no effects", t.ID)
		}
		effs := make([]types.Effect, 0, len(t.Effects))
		for _, spec := range t.Effects {
			effs = append(effs, spec.Effect)
		}
		validateEffects("trigger "+t.ID, effs, defs, ve)
	}
}

func validateCascades(defs *state.Defs, interactions map[string]bool, ve *ValidationError) {
	seen := map[string]bool{}
	for _, r := range defs.CascadeRules {
		if seen[r.ID] {
			ve.errorf("cascade %q defined twice", r.ID)
		}
		seen[r.ID] = true
		if r.SourceInteractionID == "" || r.TargetInteractionID == "" {
			ve.errorf("cascade %s needs both a source and a target interaction", r.ID)
		}
		if !knownOutcomes[r.SourceOutcome] {
			ve.warnf("cascade %s: outcome %q never occurs", r.ID, r.SourceOutcome)
		}
		if inv, ok := r.Effect.(types.InvalidCascade); ok {
			ve.warnf("cascade %s: effect has no result: %s", r.ID, inv.Reason)
		}
		if len(interactions) == 0 {
			continue
		}
		for _, id := range []string{r.SourceInteractionID, r.TargetInteractionID} {
			if id != "" && !interactions[id] {
				ve.warnf("cascade %s: interaction %q is not offered by any node choice", r.ID, id)
			}
		}
	}
}

func validateHints(defs *state.Defs, ve *ValidationError) map[string]bool {
	ids := map[string]bool{}
	for _, h := range defs.Hints {
		if ids[h.ID] {
			ve.errorf("hint %q defined twice", h.ID)
		}
		ids[h.ID] = true
		if h.Text == "" {
			ve.warnf("hint %s has no text", h.ID)
		}
		if h.NodeID != "" && len(defs.Nodes) > 0 {
			if _, ok := defs.Nodes[h.NodeID]; !ok {
				ve.warnf("hint %s: node %q is not defined", h.ID, h.NodeID)
			}
		}
		if h.Conditions.Invalid != "" {
			ve.warnf("hint %s: never eligible: %s", h.ID, h.Conditions.Invalid)
		}
		validateEffects("hint "+h.ID+" on_follow", h.FollowOutcome, defs, ve)
		validateEffects("hint "+h.ID+" on_ignore", h.IgnoreOutcome, defs, ve)
		validateEffects("hint "+h.ID+" on_oppose", h.OppositeOutcome, defs, ve)
	}
	return ids
}

func validateChains(defs *state.Defs, hintIDs map[string]bool, ve *ValidationError) {
	seen := map[string]bool{}
	for _, c := range defs.HintChains {
		if seen[c.ID] {
			ve.errorf("hint chain %q defined twice", c.ID)
		}
		seen[c.ID] = true
		if len(c.HintIDs) == 0 {
			ve.warnf("hint chain %s lists no hints", c.ID)
		}
		for _, id := range c.HintIDs {
			if !hintIDs[id] {
				ve.errorf("hint chain %s: unknown hint %q", c.ID, id)
			}
		}
		validateEffects("hint chain "+c.ID+" reward", c.Reward, defs, ve)
	}
}

func validateEvents(defs *state.Defs, ve *ValidationError) {
	seen := map[string]bool{}
	for _, ev := range defs.RandomEvents {
		if seen[ev.ID] {
			ve.errorf("random event %q defined twice", ev.ID)
		}
		seen[ev.ID] = true
		if !knownCategories[ev.Category] {
			ve.warnf("random event %s: unknown category %q", ev.ID, ev.Category)
		}
		if ev.Probability <= 0 || ev.Probability > 100 {
			ve.warnf("random event %s: probability %g is outside (0, 100]", ev.ID, ev.Probability)
		}
		if ev.Conditions.Invalid != "" {
			ve.warnf("random event %s: never eligible: %s", ev.ID, ev.Conditions.Invalid)
		}
		validateEffects("random event "+ev.ID, ev.Effects, defs, ve)
	}
}

func validateEffects(where string, effs []types.Effect, defs *state.Defs, ve *ValidationError) {
	for _, e := range effs {
		switch e := e.(type) {
		case types.InvalidEffect:
			ve.warnf("%s: effect %q is skipped: %s", where, e.Type, e.Reason)
		case types.SpawnNode:
			if len(defs.Nodes) > 0 {
				if _, ok := defs.Nodes[e.NodeID]; !ok {
					ve.warnf("%s: spawn_node refers to unknown node %q", where, e.NodeID)
				}
			}
		case types.ModifyStat:
			if e.Change == 0 {
				ve.warnf("%s: modify_stat %s changes nothing", where, e.Stat)
			}
		}
	}
}

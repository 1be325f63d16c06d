// Package cascade links one interaction's outcome to effects on another.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/types"
)

// InteractionEffects folds every satisfied rule targeting target. Lock and
// unlock OR-accumulate, difficulty sums, and the last satisfied
// change_outcome rule in list order wins.
func InteractionEffects(rules []types.CascadeRule, target string, completed []types.CompletedInteraction) types.InteractionEffects {
	var fx types.InteractionEffects
	for _, r := range rules {
		if r.TargetInteractionID != target || !satisfied(r, completed) {
			continue
		}
		switch e := r.Effect.(type) {
		case types.CascadeLock:
			fx.IsLocked = true
		case types.CascadeUnlock:
			fx.IsUnlocked = true
		case types.CascadeDifficulty:
			fx.DifficultyModifier += e.Delta
		case types.CascadeOutcome:
			fx.OutcomeModifier = e.Outcome
		}
	}
	return fx
}

func satisfied(r types.CascadeRule, completed []types.CompletedInteraction) bool {
	for _, c := range completed {
		if c.InteractionID == r.SourceInteractionID && c.Outcome == r.SourceOutcome {
			return true
		}
	}
	return false
}

// Triggered returns the rules a completed (interaction, outcome) pair
// satisfies, in list order.
func Triggered(rules []types.CascadeRule, interactionID string, outcome types.OutcomeType) []types.CascadeRule {
	var out []types.CascadeRule
	for _, r := range rules {
		if r.SourceInteractionID == interactionID && r.SourceOutcome == outcome {
			out = append(out, r)
		}
	}
	return out
}

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (types.OutcomeType, error) {
	switch o := types.OutcomeType(s); o {
	case types.OutcomeGood, types.OutcomeBad, types.OutcomeNeutral:
		return o, nil
	}
	return "", fmt.Errorf("invalid outcome %q: want good, bad or neutral", s)
}

// Store is what the cascade engine needs from persistence.
type Store interface {
	CascadeRules(ctx context.Context, campaignID string) ([]types.CascadeRule, error)
	AppendCascadeLog(ctx context.Context, l types.CascadeLog) error
}

// Engine applies cascade rules against stored definitions.
type Engine struct {
	Store Store
	Now   func() time.Time
}

func New(st Store) *Engine {
	return &Engine{Store: st, Now: time.Now}
}

// Apply appends one CascadeLog per rule triggered by the completed
// interaction. It is the only write path for cascades.
func (e *Engine) Apply(ctx context.Context, campaignID, sessionID, characterID, interactionID string, outcome types.OutcomeType) ([]types.CascadeLog, error) {
	rules, err := e.Store.CascadeRules(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load cascade rules: %w", err)
	}
	var logs []types.CascadeLog
	for _, r := range Triggered(rules, interactionID, outcome) {
		typ, value := codec.EncodeCascadeEffect(r.Effect)
		l := types.CascadeLog{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			CharacterID: characterID,
			RuleID:      r.ID,
			AppliedAt:   e.now(),
			Context: map[string]any{
				"source_interaction": interactionID,
				"outcome":            string(outcome),
				"target_interaction": r.TargetInteractionID,
				"effect_type":        string(typ),
				"effect_value":       value,
			},
		}
		if err := e.Store.AppendCascadeLog(ctx, l); err != nil {
			return logs, fmt.Errorf("append cascade log for rule %s: %w", r.ID, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// Effects computes a target interaction's status from the rules and the
// session's completed interactions.
func (e *Engine) Effects(ctx context.Context, campaignID, target string, completed []types.CompletedInteraction) (types.InteractionEffects, error) {
	rules, err := e.Store.CascadeRules(ctx, campaignID)
	if err != nil {
		return types.InteractionEffects{}, fmt.Errorf("load cascade rules: %w", err)
	}
	return InteractionEffects(rules, target, completed), nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

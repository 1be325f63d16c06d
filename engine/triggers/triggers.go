// Package triggers implements the one-shot trigger engine: every active,
// not yet fired trigger whose condition holds fires its effects once per
// session.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/engine/conditions"
	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/effects"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// Fired is one trigger that fired during an evaluation.
type Fired struct {
	Trigger types.TriggerDef
	Context map[string]any
}

// Result is the output of one evaluation pass.
type Result struct {
	Fired         []Fired
	StateUpdates  types.StateDelta
	Messages      []string
	XPAwarded     int
	UnlockedPaths []string
	SpawnedNodes  []string
	Events        []types.Event
}

// FiredIDs returns the ids of the fired triggers in firing order.
func (r Result) FiredIDs() []string {
	ids := make([]string, 0, len(r.Fired))
	for _, f := range r.Fired {
		ids = append(ids, f.Trigger.ID)
	}
	return ids
}

// Evaluate runs triggers in definition order against s. Conditions see the
// snapshot as passed in; effects fold into a working copy so later effects
// of the same trigger observe earlier ones. s itself is not modified.
func Evaluate(defs []types.TriggerDef, s *types.SessionState, alreadyFired map[string]bool, roller dice.Roller) Result {
	var res Result
	var out effects.Outcome
	working := state.Clone(s)
	firedNow := map[string]bool{}

	for _, t := range defs {
		if !t.IsActive || alreadyFired[t.ID] || firedNow[t.ID] {
			continue
		}
		if !conditions.EvalTrigger(t.Condition, s, roller) {
			continue
		}
		firedNow[t.ID] = true

		effs := make([]types.Effect, 0, len(t.Effects))
		for _, spec := range t.Effects {
			effs = append(effs, spec.Effect)
		}
		out.Add(effects.Apply(working, effs))
		res.Fired = append(res.Fired, Fired{Trigger: t, Context: firingContext(t)})
	}

	res.StateUpdates = out.Delta
	res.Messages = out.Messages
	res.XPAwarded = out.XP
	res.UnlockedPaths = out.UnlockedPaths
	res.SpawnedNodes = out.SpawnedNodes
	res.Events = out.Events
	return res
}

// firingContext records the trigger's first effect only.
func firingContext(t types.TriggerDef) map[string]any {
	ctx := map[string]any{"trigger_name": t.Name}
	if len(t.Effects) == 0 {
		return ctx
	}
	first := t.Effects[0]
	typ, payload := codec.EncodeEffect(first.Effect)
	ctx["event_name"] = first.Name
	ctx["event_type"] = string(typ)
	ctx["payload"] = payload
	return ctx
}

// Store is what the trigger engine needs from persistence.
type Store interface {
	Triggers(ctx context.Context, campaignID string) ([]types.TriggerDef, error)
	FiredTriggerIDs(ctx context.Context, sessionID string) (map[string]bool, error)
	AppendTriggerFiring(ctx context.Context, f types.TriggerFiring) error
}

// LogError reports a firing that was computed but not durably recorded.
// The trigger may fire again on the next evaluation.
type LogError struct {
	TriggerID string
	Err       error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("record firing of trigger %s: %v", e.TriggerID, e.Err)
}

func (e *LogError) Unwrap() error { return e.Err }

// Engine evaluates a campaign's triggers against stored firing history.
type Engine struct {
	Store Store
	RNG   dice.Roller
	Now   func() time.Time
}

// New creates a trigger engine.
func New(st Store, rng dice.Roller) *Engine {
	return &Engine{Store: st, RNG: rng, Now: time.Now}
}

// Run evaluates and records firings. When some firings fail to record the
// computed result is still returned together with the joined LogErrors, so
// the caller can apply effects and retry the whole evaluation.
func (e *Engine) Run(ctx context.Context, campaignID, sessionID, characterID string, s *types.SessionState) (Result, error) {
	defs, err := e.Store.Triggers(ctx, campaignID)
	if err != nil {
		return Result{}, fmt.Errorf("load triggers: %w", err)
	}
	fired, err := e.Store.FiredTriggerIDs(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load fired triggers: %w", err)
	}

	res := Evaluate(defs, s, fired, e.RNG)

	var errs []error
	for _, f := range res.Fired {
		rec := types.TriggerFiring{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			CharacterID: characterID,
			TriggerID:   f.Trigger.ID,
			FiredAt:     e.now(),
			Context:     f.Context,
		}
		if err := e.Store.AppendTriggerFiring(ctx, rec); err != nil {
			errs = append(errs, &LogError{TriggerID: f.Trigger.ID, Err: err})
		}
	}
	return res, errors.Join(errs...)
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

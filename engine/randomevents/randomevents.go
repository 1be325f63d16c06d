// Package randomevents filters and rolls probabilistic campaign events.
package randomevents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/engine/conditions"
	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/types"
)

// Eligible returns the events that may roll now, in list order.
//
// A non-recurring event is out once its id is in fired. A recurring event
// with a cooldown is out once it has any log entry at all; logged holds the
// ids with at least one entry.
func Eligible(events []types.RandomEvent, s *types.SessionState, fired, logged map[string]bool) []types.RandomEvent {
	var out []types.RandomEvent
	for _, ev := range events {
		if !ev.IsActive {
			continue
		}
		if !ev.IsRecurring && fired[ev.ID] {
			continue
		}
		if ev.IsRecurring && ev.CooldownTurns > 0 && logged[ev.ID] {
			continue
		}
		if !conditions.EvalEvent(ev.Conditions, s) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Roll tries each event in order and returns the first that succeeds.
// Rolling stops at the first success, so earlier events win ties.
func Roll(eligible []types.RandomEvent, roller dice.Roller) (types.RandomEvent, bool) {
	for _, ev := range eligible {
		if roller.Percent() < ev.Probability {
			return ev, true
		}
	}
	return types.RandomEvent{}, false
}

// IsPositive reports whether an event's category counts as good fortune.
func IsPositive(c types.EventCategory) bool {
	return c == types.CategoryFortune || c == types.CategoryDiscovery
}

// Result is the outcome of one check.
type Result struct {
	FiredEvent *types.RandomEvent
	Effects    []types.Effect
	Message    string
	Log        *types.RandomEventLog
}

// Store is what the random event engine needs from persistence.
type Store interface {
	RandomEvents(ctx context.Context, campaignID string) ([]types.RandomEvent, error)
	AppendRandomEventLog(ctx context.Context, l types.RandomEventLog) error
	RandomEventLogs(ctx context.Context, sessionID string) ([]types.RandomEventLog, error)
}

// Engine checks a campaign's random events against the session log.
type Engine struct {
	Store Store
	RNG   dice.Roller
	Now   func() time.Time
}

func New(st Store, rng dice.Roller) *Engine {
	return &Engine{Store: st, RNG: rng, Now: time.Now}
}

// Check filters, rolls and, on success, logs one event. firedEventIDs is
// the session's record of events already fired.
func (e *Engine) Check(ctx context.Context, campaignID, sessionID, characterID string, s *types.SessionState, firedEventIDs []string) (Result, error) {
	events, err := e.Store.RandomEvents(ctx, campaignID)
	if err != nil {
		return Result{}, fmt.Errorf("load random events: %w", err)
	}
	logs, err := e.Store.RandomEventLogs(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load random event logs: %w", err)
	}
	fired := make(map[string]bool, len(firedEventIDs))
	for _, id := range firedEventIDs {
		fired[id] = true
	}
	logged := make(map[string]bool, len(logs))
	for _, l := range logs {
		logged[l.EventID] = true
	}

	ev, ok := Roll(Eligible(events, s, fired, logged), e.RNG)
	if !ok {
		return Result{}, nil
	}

	l := types.RandomEventLog{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		EventID:     ev.ID,
		CharacterID: characterID,
		FiredAt:     e.now(),
		Outcome: map[string]any{
			"name":     ev.Name,
			"category": string(ev.Category),
			"effects":  codec.EncodeEffects(ev.Effects),
		},
		WasPositive: IsPositive(ev.Category),
	}
	res := Result{FiredEvent: &ev, Effects: ev.Effects, Message: ev.Description, Log: &l}
	if err := e.Store.AppendRandomEventLog(ctx, l); err != nil {
		return res, fmt.Errorf("append random event log: %w", err)
	}
	return res, nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Package engine provides the session orchestrator that wires the rule
// subsystems into one action: load the session, apply the action, run
// triggers on the new snapshot, merge the effects back, persist and
// broadcast.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/nathoo/lorecore/engine/cascade"
	"github.com/nathoo/lorecore/engine/combat"
	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/effects"
	"github.com/nathoo/lorecore/engine/hints"
	"github.com/nathoo/lorecore/engine/randomevents"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/engine/triggers"
	"github.com/nathoo/lorecore/realtime"
	"github.com/nathoo/lorecore/store"
	"github.com/nathoo/lorecore/types"
)

var (
	// ErrUnknownAction is returned for an action kind Handle does not know.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidAction is returned when a known action is missing or
	// misstates a field.
	ErrInvalidAction = errors.New("invalid action")
)

// ActionKind names a player action.
type ActionKind string

const (
	ActionChoiceMade           ActionKind = "choice_made"
	ActionNodeCompleted        ActionKind = "node_completed"
	ActionInteractionCompleted ActionKind = "interaction_completed"
	ActionHintResponse         ActionKind = "hint_response"
	ActionStatChange           ActionKind = "stat_change"
	ActionRandomEventCheck     ActionKind = "random_event_check"
)

// Action is one player action against a session.
type Action struct {
	Kind        ActionKind     `json:"kind"`
	CharacterID string         `json:"character_id"`
	NodeID      string         `json:"node_id,omitempty"`
	ChoiceText  string         `json:"choice_text,omitempty"`
	TargetNode  string         `json:"target_node_id,omitempty"`
	Interaction string         `json:"interaction_id,omitempty"`
	Outcome     string         `json:"outcome,omitempty"`
	HintID      string         `json:"hint_id,omitempty"`
	Response    string         `json:"response,omitempty"`
	StatChanges map[string]int `json:"stat_changes,omitempty"`
}

// Result is everything one action produced.
type Result struct {
	Triggers        triggers.Result
	CascadeLogs     []types.CascadeLog
	HintResponse    *types.HintResponseRecord
	RandomEvent     *randomevents.Result
	ChainsCompleted []string
	Messages        []string
	XPAwarded       int
	UnlockedPaths   []string
	SpawnedNodes    []string
	Events          []types.Event
	Session         types.SessionRecord
	Character       types.Character
	State           *types.SessionState
}

// Engine holds the store, the synchronizer and every rule subsystem.
type Engine struct {
	Store    store.Store
	Sync     *realtime.Synchronizer
	RNG      dice.Roller
	Triggers *triggers.Engine
	Cascade  *cascade.Engine
	Hints    *hints.Engine
	Events   *randomevents.Engine
	Combat   *combat.Resolver
}

// New creates an engine. A nil synchronizer gets an in-process broker.
func New(st store.Store, sync *realtime.Synchronizer, rng dice.Roller) *Engine {
	if sync == nil {
		sync = realtime.NewSynchronizer(st, realtime.NewMemoryBroker())
	}
	return &Engine{
		Store:    st,
		Sync:     sync,
		RNG:      rng,
		Triggers: triggers.New(st, rng),
		Cascade:  cascade.New(st),
		Hints:    hints.New(st),
		Events:   randomevents.New(st, rng),
		Combat:   combat.New(st, rng),
	}
}

// StartSession creates a session at the campaign's start node with the
// given players in turn order.
func (e *Engine) StartSession(ctx context.Context, campaignID string, players []string) (types.SessionRecord, error) {
	camp, err := e.Store.Campaign(ctx, campaignID)
	if err != nil {
		return types.SessionRecord{}, fmt.Errorf("load campaign: %w", err)
	}
	loc, _, err := e.nodeLocation(ctx, campaignID, camp.StartNode)
	if err != nil {
		return types.SessionRecord{}, err
	}
	rec := types.SessionRecord{
		ID:            uuid.NewString(),
		CampaignID:    campaignID,
		CurrentNodeID: camp.StartNode,
		Location:      loc,
		TurnOrder:     append([]string{}, players...),
		Status:        types.SessionWaiting,
		StoryFlags:    map[string]any{},
	}
	if len(players) > 0 {
		rec.CurrentTurnPlayerID = players[0]
		rec.Status = types.SessionActive
	}
	if err := e.Sync.Commit(ctx, &rec, realtime.KindState, []types.Event{{Type: "session_started"}}); err != nil {
		return types.SessionRecord{}, err
	}
	return rec, nil
}

// Snapshot loads the evaluation state for one character.
func (e *Engine) Snapshot(ctx context.Context, sessionID, characterID string) (types.SessionRecord, types.Character, *types.SessionState, error) {
	rec, err := e.Store.Session(ctx, sessionID)
	if err != nil {
		return rec, types.Character{}, nil, fmt.Errorf("load session: %w", err)
	}
	ch, err := e.Store.Character(ctx, characterID)
	if err != nil {
		return rec, ch, nil, fmt.Errorf("load character: %w", err)
	}
	return rec, ch, state.Snapshot(&rec, &ch), nil
}

// Handle applies one action to a session. Trigger log failures are
// returned alongside a committed result; every other failure aborts before
// anything is persisted.
func (e *Engine) Handle(ctx context.Context, sessionID string, a Action) (Result, error) {
	unlock := e.Sync.Lock(sessionID)
	defer unlock()

	rec, ch, s, err := e.Snapshot(ctx, sessionID, a.CharacterID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	var out effects.Outcome

	switch a.Kind {
	case ActionChoiceMade:
		node := a.NodeID
		if node == "" {
			node = rec.CurrentNodeID
		}
		c := types.Choice{NodeID: node, ChoiceText: a.ChoiceText}
		rec.ChoicesMade = append(rec.ChoicesMade, c)
		s.ChoicesMade = append(s.ChoicesMade, c)
		if a.TargetNode != "" {
			if err := e.moveTo(ctx, &rec, s, a.TargetNode); err != nil {
				return res, err
			}
		}
		out.Events = append(out.Events, types.Event{Type: "choice_made", Data: map[string]any{"node": node, "choice": a.ChoiceText}})

	case ActionNodeCompleted:
		rec.TurnCount++
		s.TurnCount++
		out.Events = append(out.Events, types.Event{Type: "node_completed", Data: map[string]any{"node": rec.CurrentNodeID, "turn": rec.TurnCount}})
		if err := e.rollEvents(ctx, &rec, ch.ID, s, &res, &out); err != nil {
			return res, err
		}

	case ActionRandomEventCheck:
		if err := e.rollEvents(ctx, &rec, ch.ID, s, &res, &out); err != nil {
			return res, err
		}

	case ActionInteractionCompleted:
		outcome, err := cascade.ParseOutcome(a.Outcome)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrInvalidAction, err)
		}
		if a.Interaction == "" {
			return res, fmt.Errorf("%w: interaction id is required", ErrInvalidAction)
		}
		logs, err := e.Cascade.Apply(ctx, rec.CampaignID, sessionID, ch.ID, a.Interaction, outcome)
		if err != nil {
			return res, err
		}
		rec.CompletedInteractions = append(rec.CompletedInteractions, types.CompletedInteraction{InteractionID: a.Interaction, Outcome: outcome})
		res.CascadeLogs = logs
		out.Events = append(out.Events, types.Event{Type: "interaction_completed", Data: map[string]any{"interaction": a.Interaction, "outcome": string(outcome), "rules": len(logs)}})

	case ActionHintResponse:
		r, err := hints.ParseResponse(a.Response)
		if err != nil {
			return res, err
		}
		hr, err := e.Hints.Respond(ctx, sessionID, a.HintID, ch.ID, r)
		if err != nil {
			return res, err
		}
		res.HintResponse = &hr
		out.Add(effects.Apply(s, hr.AppliedOutcome))
		completed, err := e.chainRewards(ctx, rec.CampaignID, sessionID, ch.ID, a.HintID, s, &out)
		if err != nil {
			return res, err
		}
		res.ChainsCompleted = completed

	case ActionStatChange:
		names := make([]string, 0, len(a.StatChanges))
		for k := range a.StatChanges {
			names = append(names, k)
		}
		sort.Strings(names)
		effs := make([]types.Effect, 0, len(names))
		for _, k := range names {
			effs = append(effs, types.ModifyStat{Stat: k, Change: a.StatChanges[k]})
		}
		out.Add(effects.Apply(s, effs))

	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}

	tr, trErr := e.Triggers.Run(ctx, rec.CampaignID, sessionID, ch.ID, s)
	var logErr *triggers.LogError
	if trErr != nil && !errors.As(trErr, &logErr) {
		return res, trErr
	}
	res.Triggers = tr
	effects.Merge(s, tr.StateUpdates)
	out.Add(effects.Outcome{
		Delta:         tr.StateUpdates,
		Events:        tr.Events,
		Messages:      tr.Messages,
		XP:            tr.XPAwarded,
		UnlockedPaths: tr.UnlockedPaths,
		SpawnedNodes:  tr.SpawnedNodes,
	})
	for _, f := range tr.Fired {
		out.Events = append(out.Events, types.Event{Type: "trigger_fired", Data: map[string]any{"trigger": f.Trigger.ID, "name": f.Trigger.Name}})
	}

	ch.Stats = s.Stats
	ch.Inventory = s.Inventory
	ch.XP += out.XP
	rec.StoryFlags = s.StoryFlags
	rec.UnlockedPaths = appendUnique(rec.UnlockedPaths, out.UnlockedPaths...)
	rec.SpawnedNodes = appendUnique(rec.SpawnedNodes, out.SpawnedNodes...)

	if err := e.Store.PutCharacter(ctx, ch); err != nil {
		return res, fmt.Errorf("persist character: %w", err)
	}
	if err := e.Sync.Commit(ctx, &rec, realtime.KindState, out.Events); err != nil {
		return res, err
	}

	res.Messages = out.Messages
	res.XPAwarded = out.XP
	res.UnlockedPaths = out.UnlockedPaths
	res.SpawnedNodes = out.SpawnedNodes
	res.Events = out.Events
	res.Session = rec
	res.Character = ch
	res.State = s
	return res, trErr
}

// nodeLocation reports the location of a campaign node. ok is false when
// the campaign does not define the node.
func (e *Engine) nodeLocation(ctx context.Context, campaignID, nodeID string) (loc string, ok bool, err error) {
	if nodeID == "" {
		return "", false, nil
	}
	nodes, err := e.Store.Nodes(ctx, campaignID)
	if err != nil {
		return "", false, fmt.Errorf("load nodes: %w", err)
	}
	n, ok := nodes[nodeID]
	return n.Location, ok, nil
}

// moveTo sets the current node and takes on its location. A node the
// campaign does not define, such as one spawned at runtime, keeps the
// previous location.
func (e *Engine) moveTo(ctx context.Context, rec *types.SessionRecord, s *types.SessionState, nodeID string) error {
	loc, ok, err := e.nodeLocation(ctx, rec.CampaignID, nodeID)
	if err != nil {
		return err
	}
	rec.CurrentNodeID = nodeID
	if ok {
		rec.Location = loc
		s.Location = loc
	}
	return nil
}

func (e *Engine) rollEvents(ctx context.Context, rec *types.SessionRecord, characterID string, s *types.SessionState, res *Result, out *effects.Outcome) error {
	ev, err := e.Events.Check(ctx, rec.CampaignID, rec.ID, characterID, s, rec.FiredEvents)
	if err != nil {
		return err
	}
	if ev.FiredEvent == nil {
		return nil
	}
	res.RandomEvent = &ev
	rec.FiredEvents = appendUnique(rec.FiredEvents, ev.FiredEvent.ID)
	out.Add(effects.Apply(s, ev.Effects))
	if ev.Message != "" {
		out.Messages = append(out.Messages, ev.Message)
	}
	out.Events = append(out.Events, types.Event{Type: "random_event", Data: map[string]any{"event": ev.FiredEvent.ID, "category": string(ev.FiredEvent.Category)}})
	return nil
}

// chainRewards grants the reward of every chain the response completed.
// The completion flag keeps a reward from being granted twice.
func (e *Engine) chainRewards(ctx context.Context, campaignID, sessionID, characterID, hintID string, s *types.SessionState, out *effects.Outcome) ([]string, error) {
	chains, err := e.Store.HintChains(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load hint chains: %w", err)
	}
	candidates := hints.ChainsContaining(chains, hintID)
	if len(candidates) == 0 {
		return nil, nil
	}
	records, err := e.Store.HintResponses(ctx, sessionID, characterID)
	if err != nil {
		return nil, fmt.Errorf("load hint responses: %w", err)
	}
	var done []string
	for _, c := range candidates {
		flag := hints.CompletionFlag(c.ID)
		if v, ok := s.StoryFlags[flag]; ok && state.FlagEquals(v, true) {
			continue
		}
		if !hints.ChainProgress(c, records).Completed {
			continue
		}
		out.Add(effects.Apply(s, append(append([]types.Effect{}, c.Reward...), types.SetFlag{Flag: flag, Value: true})))
		out.Events = append(out.Events, types.Event{Type: "hint_chain_completed", Data: map[string]any{"chain": c.ID}})
		done = append(done, c.ID)
	}
	return done, nil
}

// ActiveHints lists the hints eligible for a character at the session's
// current node.
func (e *Engine) ActiveHints(ctx context.Context, sessionID, characterID string) ([]types.HintDef, error) {
	rec, _, s, err := e.Snapshot(ctx, sessionID, characterID)
	if err != nil {
		return nil, err
	}
	return e.Hints.ActiveHints(ctx, rec.CampaignID, rec.CurrentNodeID, s)
}

// InteractionEffects reports an interaction's cascade status for a session.
func (e *Engine) InteractionEffects(ctx context.Context, sessionID, interactionID string) (types.InteractionEffects, error) {
	rec, err := e.Store.Session(ctx, sessionID)
	if err != nil {
		return types.InteractionEffects{}, fmt.Errorf("load session: %w", err)
	}
	return e.Cascade.Effects(ctx, rec.CampaignID, interactionID, rec.CompletedInteractions)
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}

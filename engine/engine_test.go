package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/hints"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/realtime"
	"github.com/nathoo/lorecore/store/memory"
	"github.com/nathoo/lorecore/types"
)

func testDefs() *state.Defs {
	return &state.Defs{
		Campaign: types.Campaign{ID: "vale", Title: "Ashen Vale", StartNode: "gate"},
		Nodes: map[string]types.StoryNode{
			"gate": {ID: "gate", Title: "The Gate", Choices: []types.NodeChoice{{Text: "Enter", Target: "hall"}}},
			"hall": {ID: "hall", Title: "The Hall"},
		},
		Characters: []types.Character{
			{ID: "aria", Name: "Aria", PlayerID: "p1", Stats: map[string]int{"strength": 4, "wisdom": 5}},
			{ID: "bram", Name: "Bram", PlayerID: "p2", Stats: map[string]int{"strength": 7}},
		},
		Triggers: []types.TriggerDef{
			{ID: "t_strong", Name: "Strong", Type: types.TriggerStatThreshold, IsActive: true,
				Condition: types.StatThreshold{Stat: "strength", MinValue: 6},
				Effects: []types.EffectSpec{
					{Name: "badge", Effect: types.GrantItem{Item: "iron_badge"}},
					{Name: "xp", Effect: types.AwardXP{Amount: 10}},
				}},
			{ID: "t_gate", Name: "Chose gate", Type: types.TriggerChoiceMade, IsActive: true,
				Condition: types.ChoiceMade{NodeID: "gate", Contains: "enter"},
				Effects:   []types.EffectSpec{{Effect: types.UnlockPath{PathID: "hall_path"}}}},
		},
		CascadeRules: []types.CascadeRule{
			{ID: "c1", SourceInteractionID: "bridge", SourceOutcome: types.OutcomeBad, TargetInteractionID: "ferry",
				Effect: types.CascadeLock{}},
		},
		Hints: []types.HintDef{
			{ID: "h1", NodeID: "gate", Text: "Look up.", IsActive: true,
				FollowOutcome: []types.Effect{types.ModifyStat{Stat: "wisdom", Change: 1}}},
			{ID: "h2", NodeID: "gate", Text: "Listen.", IsActive: true},
		},
		HintChains: []types.HintChain{
			{ID: "watcher", Name: "Watcher", HintIDs: []string{"h1", "h2"}, Reward: []types.Effect{types.AwardXP{Amount: 25}}},
		},
		RandomEvents: []types.RandomEvent{
			{ID: "ev_rain", Name: "Rain", Description: "Rain falls.", Category: types.CategoryWeather,
				Probability: 50, IsActive: true, Effects: []types.Effect{types.SetFlag{Flag: "wet", Value: true}}},
		},
	}
}

func newTestEngine(t *testing.T, rng dice.Roller) (*Engine, types.SessionRecord) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	if err := st.SeedCampaign(ctx, testDefs()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := New(st, nil, rng)
	rec, err := e.StartSession(ctx, "vale", []string{"aria", "bram"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return e, rec
}

func TestStartSession(t *testing.T) {
	_, rec := newTestEngine(t, &dice.Scripted{})
	if rec.CurrentNodeID != "gate" {
		t.Errorf("node = %q, want gate", rec.CurrentNodeID)
	}
	if rec.CurrentTurnPlayerID != "aria" || rec.Status != types.SessionActive {
		t.Errorf("turn = %q status = %q", rec.CurrentTurnPlayerID, rec.Status)
	}
	if rec.Version != 1 {
		t.Errorf("version = %d, want 1", rec.Version)
	}
}

func TestStartSession_UnknownCampaign(t *testing.T) {
	e, _ := newTestEngine(t, &dice.Scripted{})
	if _, err := e.StartSession(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown campaign")
	}
}

func TestHandle_ChoiceFiresTrigger(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	res, err := e.Handle(context.Background(), rec.ID, Action{
		Kind: ActionChoiceMade, CharacterID: "aria", ChoiceText: "Enter the hall", TargetNode: "hall",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Session.CurrentNodeID != "hall" {
		t.Errorf("node = %q, want hall", res.Session.CurrentNodeID)
	}
	if got := res.Triggers.FiredIDs(); !reflect.DeepEqual(got, []string{"t_gate"}) {
		t.Errorf("fired = %v, want [t_gate]", got)
	}
	if !reflect.DeepEqual(res.Session.UnlockedPaths, []string{"hall_path"}) {
		t.Errorf("unlocked = %v", res.Session.UnlockedPaths)
	}

	// A second identical choice must not fire the trigger again.
	res, err = e.Handle(context.Background(), rec.ID, Action{
		Kind: ActionChoiceMade, CharacterID: "aria", NodeID: "gate", ChoiceText: "enter again",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(res.Triggers.Fired) != 0 {
		t.Errorf("fired again: %v", res.Triggers.FiredIDs())
	}
	if len(res.Session.UnlockedPaths) != 1 {
		t.Errorf("unlocked = %v, want one entry", res.Session.UnlockedPaths)
	}
}

func TestHandle_StatChange(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	res, err := e.Handle(context.Background(), rec.ID, Action{
		Kind: ActionStatChange, CharacterID: "aria", StatChanges: map[string]int{"strength": 3, "wisdom": 20},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Character.Stats["strength"] != 7 {
		t.Errorf("strength = %d, want 7", res.Character.Stats["strength"])
	}
	if res.Character.Stats["wisdom"] != state.MaxStat {
		t.Errorf("wisdom = %d, want clamp to %d", res.Character.Stats["wisdom"], state.MaxStat)
	}
	// Crossing the threshold fires t_strong within the same action.
	if !state.HasItem(res.State, "iron_badge") {
		t.Error("expected iron_badge from t_strong")
	}
	if res.Character.XP != 10 || res.XPAwarded != 10 {
		t.Errorf("xp = %d awarded = %d, want 10", res.Character.XP, res.XPAwarded)
	}

	ch, err := e.Store.Character(context.Background(), "aria")
	if err != nil {
		t.Fatalf("load character: %v", err)
	}
	if ch.XP != 10 || len(ch.Inventory) != 1 {
		t.Errorf("persisted character = %+v", ch)
	}
}

func TestHandle_InteractionCascade(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	ctx := context.Background()
	res, err := e.Handle(ctx, rec.ID, Action{
		Kind: ActionInteractionCompleted, CharacterID: "aria", Interaction: "bridge", Outcome: "bad",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(res.CascadeLogs) != 1 {
		t.Fatalf("cascade logs = %d, want 1", len(res.CascadeLogs))
	}
	fx, err := e.InteractionEffects(ctx, rec.ID, "ferry")
	if err != nil {
		t.Fatalf("effects: %v", err)
	}
	if !fx.IsLocked {
		t.Errorf("ferry should be locked: %+v", fx)
	}
}

func TestHandle_InteractionBadOutcome(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	_, err := e.Handle(context.Background(), rec.ID, Action{
		Kind: ActionInteractionCompleted, CharacterID: "aria", Interaction: "bridge", Outcome: "great",
	})
	if err == nil {
		t.Fatal("expected error for unknown outcome")
	}
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("err = %v, want ErrInvalidAction", err)
	}
	got, _ := e.Store.Session(context.Background(), rec.ID)
	if got.Version != rec.Version {
		t.Errorf("version moved to %d on a rejected action", got.Version)
	}
}

func TestHandle_HintChainReward(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	ctx := context.Background()

	res, err := e.Handle(ctx, rec.ID, Action{Kind: ActionHintResponse, CharacterID: "aria", HintID: "h1", Response: "follow"})
	if err != nil {
		t.Fatalf("handle h1: %v", err)
	}
	if res.Character.Stats["wisdom"] != 6 {
		t.Errorf("wisdom = %d, want 6", res.Character.Stats["wisdom"])
	}
	if len(res.ChainsCompleted) != 0 {
		t.Errorf("chain completed early: %v", res.ChainsCompleted)
	}

	res, err = e.Handle(ctx, rec.ID, Action{Kind: ActionHintResponse, CharacterID: "aria", HintID: "h2", Response: "ignored"})
	if err != nil {
		t.Fatalf("handle h2: %v", err)
	}
	if !reflect.DeepEqual(res.ChainsCompleted, []string{"watcher"}) {
		t.Errorf("completed = %v, want [watcher]", res.ChainsCompleted)
	}
	if res.Character.XP != 25 {
		t.Errorf("xp = %d, want 25", res.Character.XP)
	}

	// Responding again does not grant the reward twice.
	res, err = e.Handle(ctx, rec.ID, Action{Kind: ActionHintResponse, CharacterID: "aria", HintID: "h2", Response: "followed"})
	if err != nil {
		t.Fatalf("handle h2 again: %v", err)
	}
	if len(res.ChainsCompleted) != 0 || res.Character.XP != 25 {
		t.Errorf("reward granted twice: completed=%v xp=%d", res.ChainsCompleted, res.Character.XP)
	}
	if _, ok := res.Session.StoryFlags[hints.CompletionFlag("watcher")]; !ok {
		t.Error("completion flag missing")
	}
}

func TestHandle_HintErrors(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	ctx := context.Background()
	_, err := e.Handle(ctx, rec.ID, Action{Kind: ActionHintResponse, CharacterID: "aria", HintID: "h1", Response: "maybe"})
	if !errors.Is(err, hints.ErrInvalidResponse) {
		t.Errorf("err = %v, want ErrInvalidResponse", err)
	}
	_, err = e.Handle(ctx, rec.ID, Action{Kind: ActionHintResponse, CharacterID: "aria", HintID: "ghost", Response: "follow"})
	if !errors.Is(err, hints.ErrUnknownHint) {
		t.Errorf("err = %v, want ErrUnknownHint", err)
	}
}

func TestHandle_NodeCompletedRollsEvent(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{Percents: []float64{10}})
	res, err := e.Handle(context.Background(), rec.ID, Action{Kind: ActionNodeCompleted, CharacterID: "aria"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Session.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", res.Session.TurnCount)
	}
	if res.RandomEvent == nil || res.RandomEvent.FiredEvent.ID != "ev_rain" {
		t.Fatalf("random event = %+v, want ev_rain", res.RandomEvent)
	}
	if !reflect.DeepEqual(res.Session.FiredEvents, []string{"ev_rain"}) {
		t.Errorf("fired events = %v", res.Session.FiredEvents)
	}
	if v, _ := state.GetFlag(res.State, "wet"); v != true {
		t.Errorf("wet = %v, want true", v)
	}

	// Non-recurring: a second completion never fires it again.
	res, err = e.Handle(context.Background(), rec.ID, Action{Kind: ActionRandomEventCheck, CharacterID: "aria"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.RandomEvent != nil {
		t.Errorf("event fired twice: %+v", res.RandomEvent.FiredEvent)
	}
}

func TestHandle_EventMiss(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{Percents: []float64{90}})
	res, err := e.Handle(context.Background(), rec.ID, Action{Kind: ActionRandomEventCheck, CharacterID: "bram"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.RandomEvent != nil {
		t.Errorf("unexpected event %+v", res.RandomEvent.FiredEvent)
	}
	// Bram already has strength 7 so t_strong fires on any action.
	if got := res.Triggers.FiredIDs(); !reflect.DeepEqual(got, []string{"t_strong"}) {
		t.Errorf("fired = %v", got)
	}
}

func TestHandle_LocationGatesEvents(t *testing.T) {
	ctx := context.Background()
	defs := testDefs()
	defs.Triggers = nil
	defs.Nodes["gate"] = types.StoryNode{ID: "gate", Location: "outside"}
	defs.Nodes["hall"] = types.StoryNode{ID: "hall", Location: "cellar"}
	defs.RandomEvents = []types.RandomEvent{
		{ID: "ev_rats", Name: "Rats", Category: types.CategoryEncounter, Probability: 100, IsActive: true,
			Conditions: types.EventConditions{Location: "cellar"}},
	}
	st := memory.New()
	if err := st.SeedCampaign(ctx, defs); err != nil {
		t.Fatal(err)
	}
	e := New(st, nil, &dice.Scripted{})
	rec, err := e.StartSession(ctx, "vale", []string{"aria"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Location != "outside" {
		t.Errorf("start location = %q, want outside", rec.Location)
	}

	res, err := e.Handle(ctx, rec.ID, Action{Kind: ActionNodeCompleted, CharacterID: "aria"})
	if err != nil {
		t.Fatal(err)
	}
	if res.RandomEvent != nil {
		t.Fatalf("cellar event fired outside: %+v", res.RandomEvent.FiredEvent)
	}

	res, err = e.Handle(ctx, rec.ID, Action{Kind: ActionChoiceMade, CharacterID: "aria", ChoiceText: "Enter", TargetNode: "hall"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Session.Location != "cellar" || res.State.Location != "cellar" {
		t.Errorf("location = %q / %q, want cellar", res.Session.Location, res.State.Location)
	}

	res, err = e.Handle(ctx, rec.ID, Action{Kind: ActionNodeCompleted, CharacterID: "aria"})
	if err != nil {
		t.Fatal(err)
	}
	if res.RandomEvent == nil || res.RandomEvent.FiredEvent.ID != "ev_rats" {
		t.Fatalf("random event = %+v, want ev_rats", res.RandomEvent)
	}

	// A node the campaign does not define keeps the current location.
	res, err = e.Handle(ctx, rec.ID, Action{Kind: ActionChoiceMade, CharacterID: "aria", ChoiceText: "Dig", TargetNode: "tunnel"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Session.CurrentNodeID != "tunnel" || res.Session.Location != "cellar" {
		t.Errorf("session = %s at %q", res.Session.CurrentNodeID, res.Session.Location)
	}
}

func TestHandle_UnknownAction(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	_, err := e.Handle(context.Background(), rec.ID, Action{Kind: "dance", CharacterID: "aria"})
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestHandle_UnknownSession(t *testing.T) {
	e, _ := newTestEngine(t, &dice.Scripted{})
	if _, err := e.Handle(context.Background(), "missing", Action{Kind: ActionStatChange, CharacterID: "aria"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandle_PublishesUpdate(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsub, err := e.Sync.Subscribe(ctx, rec.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if _, err := e.Handle(ctx, rec.ID, Action{Kind: ActionChoiceMade, CharacterID: "aria", ChoiceText: "wait"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	select {
	case u := <-ch:
		if u.Kind != realtime.KindState || u.Version != rec.Version+1 {
			t.Errorf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestActiveHints(t *testing.T) {
	e, rec := newTestEngine(t, &dice.Scripted{})
	hs, err := e.ActiveHints(context.Background(), rec.ID, "aria")
	if err != nil {
		t.Fatalf("active hints: %v", err)
	}
	if len(hs) != 2 {
		t.Errorf("hints = %d, want 2", len(hs))
	}
}

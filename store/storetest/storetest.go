// Package storetest holds the behaviour every store.Store implementation
// must share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/store"
	"github.com/nathoo/lorecore/types"
)

// Defs returns a small campaign exercising every definition kind.
func Defs() *state.Defs {
	return &state.Defs{
		Campaign: types.Campaign{ID: "vale", Title: "Ashen Vale", Author: "nathoo", Version: "1.0", StartNode: "gate", Intro: "Ash falls."},
		Nodes: map[string]types.StoryNode{
			"gate": {ID: "gate", Title: "Gate", Text: "A gate.", Location: "outside",
				Choices: []types.NodeChoice{{Text: "Enter", Target: "hall", InteractionID: "open_gate"}}},
			"hall": {ID: "hall", Title: "Hall", Text: "A hall."},
		},
		Characters: []types.Character{
			{ID: "aria", Name: "Aria", PlayerID: "p1", Stats: map[string]int{"strength": 4}, Inventory: []string{"torch"}},
		},
		Triggers: []types.TriggerDef{
			{ID: "t1", Name: "Strong", Type: types.TriggerStatThreshold, IsActive: true, SourceOrder: 0,
				Condition: types.StatThreshold{Stat: "strength", MinValue: 6},
				Effects: []types.EffectSpec{
					{Name: "badge", Effect: types.GrantItem{Item: "badge"}},
					{Name: "note", Effect: types.ShowMessage{Text: "You feel strong."}},
				}},
			{ID: "t0", Name: "Lucky", Type: types.TriggerRandomChance, IsActive: false, SourceOrder: 1,
				Condition: types.RandomChance{Probability: 12.5},
				Effects:   []types.EffectSpec{{Effect: types.SetFlag{Flag: "lucky", Value: true}}}},
		},
		CascadeRules: []types.CascadeRule{
			{ID: "c1", SourceInteractionID: "open_gate", SourceOutcome: types.OutcomeBad, TargetInteractionID: "hall_door",
				Effect: types.CascadeDifficulty{Delta: 2}, Priority: 1},
		},
		Hints: []types.HintDef{
			{ID: "h1", NodeID: "gate", HintType: "warning", Text: "Look up.", IsActive: true, Priority: 3,
				Conditions:    types.HintConditions{StatThreshold: map[string]int{"wisdom": 4}, ItemRequired: []string{"torch"}},
				FollowOutcome: []types.Effect{types.ModifyStat{Stat: "wisdom", Change: 1}}},
		},
		HintChains: []types.HintChain{
			{ID: "ch1", Name: "Watcher", HintIDs: []string{"h1"}, Reward: []types.Effect{types.AwardXP{Amount: 5}}},
		},
		RandomEvents: []types.RandomEvent{
			{ID: "e1", Name: "Rain", Description: "Rain.", Category: types.CategoryWeather, Probability: 30, IsActive: true,
				Conditions: types.EventConditions{MinTurn: 2, Location: "outside"},
				Effects:    []types.Effect{types.SetFlag{Flag: "wet", Value: true}}},
		},
	}
}

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("Definitions", func(t *testing.T) { testDefinitions(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
	t.Run("TriggerFirings", func(t *testing.T) { testFirings(t, open(t)) })
	t.Run("Logs", func(t *testing.T) { testLogs(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("Encounters", func(t *testing.T) { testEncounters(t, open(t)) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceled(t, open(t)) })
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	if err := st.SeedCampaign(context.Background(), Defs()); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func testDefinitions(t *testing.T, st store.Store) {
	ctx := context.Background()
	seed(t, st)
	want := Defs()

	camp, err := st.Campaign(ctx, "vale")
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	if camp != want.Campaign {
		t.Errorf("campaign = %+v, want %+v", camp, want.Campaign)
	}

	nodes, err := st.Nodes(ctx, "vale")
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if !reflect.DeepEqual(nodes["gate"], want.Nodes["gate"]) || len(nodes) != 2 {
		t.Errorf("nodes = %+v", nodes)
	}

	trs, err := st.Triggers(ctx, "vale")
	if err != nil {
		t.Fatalf("triggers: %v", err)
	}
	if len(trs) != 2 || trs[0].ID != "t1" || trs[1].ID != "t0" {
		t.Fatalf("triggers out of definition order: %+v", trs)
	}
	for i := range want.Triggers {
		want.Triggers[i].CampaignID = "vale"
	}
	if !reflect.DeepEqual(trs, want.Triggers) {
		t.Errorf("triggers = %+v\nwant %+v", trs, want.Triggers)
	}

	rules, err := st.CascadeRules(ctx, "vale")
	if err != nil {
		t.Fatalf("cascade rules: %v", err)
	}
	if len(rules) != 1 || rules[0].Effect != (types.CascadeDifficulty{Delta: 2}) || rules[0].CampaignID != "vale" {
		t.Errorf("rules = %+v", rules)
	}

	h, err := st.Hint(ctx, "h1")
	if err != nil {
		t.Fatalf("hint: %v", err)
	}
	if h.CampaignID != "vale" || h.Conditions.StatThreshold["wisdom"] != 4 || len(h.FollowOutcome) != 1 {
		t.Errorf("hint = %+v", h)
	}
	if hs, _ := st.Hints(ctx, "vale"); len(hs) != 1 {
		t.Errorf("hints = %d, want 1", len(hs))
	}

	chains, err := st.HintChains(ctx, "vale")
	if err != nil {
		t.Fatalf("chains: %v", err)
	}
	if len(chains) != 1 || !reflect.DeepEqual(chains[0].HintIDs, []string{"h1"}) || chains[0].Reward[0] != (types.AwardXP{Amount: 5}) {
		t.Errorf("chains = %+v", chains)
	}

	evs, err := st.RandomEvents(ctx, "vale")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 1 || evs[0].Conditions.MinTurn != 2 || evs[0].Probability != 30 {
		t.Errorf("events = %+v", evs)
	}

	ch, err := st.Character(ctx, "aria")
	if err != nil {
		t.Fatalf("character: %v", err)
	}
	if ch.Stats["strength"] != 4 || !reflect.DeepEqual(ch.Inventory, []string{"torch"}) {
		t.Errorf("character = %+v", ch)
	}

	// Reseeding replaces definitions rather than appending.
	seed(t, st)
	if trs, _ := st.Triggers(ctx, "vale"); len(trs) != 2 {
		t.Errorf("triggers after reseed = %d, want 2", len(trs))
	}
}

func testNotFound(t *testing.T, st store.Store) {
	ctx := context.Background()
	checks := map[string]error{}
	_, checks["campaign"] = st.Campaign(ctx, "nope")
	_, checks["hint"] = st.Hint(ctx, "nope")
	_, checks["session"] = st.Session(ctx, "nope")
	_, checks["character"] = st.Character(ctx, "nope")
	_, checks["encounter"] = st.Encounter(ctx, "nope")
	checks["update encounter"] = st.UpdateEncounter(ctx, types.CombatEncounter{ID: "nope"})
	for name, err := range checks {
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("%s: err = %v, want ErrNotFound", name, err)
		}
	}
}

func testFirings(t *testing.T, st store.Store) {
	ctx := context.Background()
	f := types.TriggerFiring{ID: "f1", SessionID: "s1", CharacterID: "aria", TriggerID: "t1",
		FiredAt: time.UnixMilli(1_700_000_000_000).UTC(), Context: map[string]any{"trigger_name": "Strong"}}
	if err := st.AppendTriggerFiring(ctx, f); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.ID = "f2"
	if err := st.AppendTriggerFiring(ctx, f); err != nil {
		t.Fatalf("duplicate append should be a no-op: %v", err)
	}
	if err := st.AppendTriggerFiring(ctx, types.TriggerFiring{ID: "f3", SessionID: "s2", TriggerID: "t1", FiredAt: f.FiredAt}); err != nil {
		t.Fatalf("append other session: %v", err)
	}

	got, err := st.FiredTriggerIDs(ctx, "s1")
	if err != nil {
		t.Fatalf("fired: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]bool{"t1": true}) {
		t.Errorf("fired = %v", got)
	}
	if got, _ := st.FiredTriggerIDs(ctx, "empty"); len(got) != 0 {
		t.Errorf("fired for unknown session = %v", got)
	}
}

func testLogs(t *testing.T, st store.Store) {
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000).UTC()

	for i, id := range []string{"l1", "l2"} {
		err := st.AppendCascadeLog(ctx, types.CascadeLog{ID: id, SessionID: "s1", CharacterID: "aria", RuleID: "c1",
			AppliedAt: at.Add(time.Duration(i) * time.Second), Context: map[string]any{"outcome": "bad"}})
		if err != nil {
			t.Fatalf("cascade log: %v", err)
		}
	}
	cl, err := st.CascadeLogs(ctx, "s1")
	if err != nil {
		t.Fatalf("cascade logs: %v", err)
	}
	if len(cl) != 2 || cl[0].ID != "l1" || cl[1].ID != "l2" {
		t.Errorf("cascade logs = %+v", cl)
	}

	for i, r := range []types.HintResponseRecord{
		{ID: "r1", SessionID: "s1", HintID: "h1", CharacterID: "aria", Response: types.ResponseFollowed},
		{ID: "r2", SessionID: "s1", HintID: "h1", CharacterID: "bram", Response: types.ResponseIgnored},
		{ID: "r3", SessionID: "s1", HintID: "h2", CharacterID: "aria", Response: types.ResponseOpposite},
	} {
		r.RespondedAt = at.Add(time.Duration(i) * time.Second)
		r.Context = map[string]any{"hint_type": "warning"}
		if err := st.AppendHintResponse(ctx, r); err != nil {
			t.Fatalf("hint response: %v", err)
		}
	}
	rs, err := st.HintResponses(ctx, "s1", "aria")
	if err != nil {
		t.Fatalf("hint responses: %v", err)
	}
	if len(rs) != 2 || rs[0].ID != "r1" || rs[1].Response != types.ResponseOpposite {
		t.Errorf("aria responses = %+v", rs)
	}
	if all, _ := st.HintResponses(ctx, "s1", ""); len(all) != 3 {
		t.Errorf("all responses = %d, want 3", len(all))
	}

	if err := st.AppendRandomEventLog(ctx, types.RandomEventLog{ID: "x1", SessionID: "s1", EventID: "e1", CharacterID: "aria",
		FiredAt: at, Outcome: map[string]any{"name": "Rain"}, WasPositive: false}); err != nil {
		t.Fatalf("event log: %v", err)
	}
	el, err := st.RandomEventLogs(ctx, "s1")
	if err != nil {
		t.Fatalf("event logs: %v", err)
	}
	if len(el) != 1 || el[0].EventID != "e1" || el[0].Outcome["name"] != "Rain" {
		t.Errorf("event logs = %+v", el)
	}

	b := types.BluffAttempt{ID: "b1", SessionID: "s1", ActorID: "aria", TargetID: "bram", AttemptType: types.BluffScout, StatUsed: "perception", RollValue: 9, Difficulty: 5,
		Success: true, RevealedInfo: &types.RevealedInfo{Stat: "agility", Hint: "quick"}, CreatedAt: at}
	if err := st.AppendBluff(ctx, b); err != nil {
		t.Fatalf("bluff: %v", err)
	}
	bl, err := st.Bluffs(ctx, "s1")
	if err != nil {
		t.Fatalf("bluffs: %v", err)
	}
	if len(bl) != 1 || !bl[0].Success || bl[0].RevealedInfo == nil || bl[0].RevealedInfo.Stat != "agility" {
		t.Errorf("bluffs = %+v", bl)
	}
}

func testSessions(t *testing.T, st store.Store) {
	ctx := context.Background()
	rec := types.SessionRecord{
		ID: "s1", CampaignID: "vale", CurrentNodeID: "gate", CurrentTurnPlayerID: "aria",
		TurnOrder: []string{"aria", "bram"}, Status: types.SessionActive,
		StoryFlags:            map[string]any{"door_open": true, "torches": 3.0, "name": "x"},
		TurnCount:             2,
		ChoicesMade:           []types.Choice{{NodeID: "gate", ChoiceText: "Enter"}},
		CompletedInteractions: []types.CompletedInteraction{{InteractionID: "open_gate", Outcome: types.OutcomeGood}},
		UnlockedPaths:         []string{"p1"},
		SpawnedNodes:          []string{"n1"},
		FiredEvents:           []string{"e1"},
		Version:               4,
		UpdatedAt:             time.UnixMilli(1_700_000_000_000).UTC(),
	}
	if err := st.PutSession(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("updated at = %v, want %v", got.UpdatedAt, rec.UpdatedAt)
	}
	got.UpdatedAt = rec.UpdatedAt
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("session = %+v\nwant %+v", got, rec)
	}

	// Mutating the returned copy must not leak into the store.
	got.StoryFlags["door_open"] = false
	again, _ := st.Session(ctx, "s1")
	if again.StoryFlags["door_open"] != true {
		t.Error("returned session aliases stored state")
	}

	rec.Version = 5
	rec.CurrentNodeID = "hall"
	if err := st.PutSession(ctx, rec); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _ := st.Session(ctx, "s1"); got.CurrentNodeID != "hall" || got.Version != 5 {
		t.Errorf("overwrite not visible: %+v", got)
	}

	ch := types.Character{ID: "bram", Name: "Bram", PlayerID: "p2", Stats: map[string]int{"agility": 8}, XP: 40}
	if err := st.PutCharacter(ctx, ch); err != nil {
		t.Fatalf("put character: %v", err)
	}
	gotCh, err := st.Character(ctx, "bram")
	if err != nil {
		t.Fatalf("character: %v", err)
	}
	if gotCh.XP != 40 || gotCh.Stats["agility"] != 8 || gotCh.Name != "Bram" {
		t.Errorf("character = %+v", gotCh)
	}
}

func testEncounters(t *testing.T, st store.Store) {
	ctx := context.Background()
	enc := types.CombatEncounter{
		ID: "enc1", SessionID: "s1", NodeID: "hall", CombatType: types.CombatDuel, StatsHidden: true,
		Status: types.CombatPending, CreatedAt: time.UnixMilli(1_700_000_000_000).UTC(),
		Participants: []types.CombatParticipant{
			{CharacterID: "aria", Role: "attacker", VisibleEquipment: []string{"sword"}},
			{CharacterID: "bram", Role: "defender", IsReady: true},
		},
	}
	if err := st.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateEncounter(ctx, enc); err == nil {
		t.Error("creating a duplicate encounter should fail")
	}

	resolved := time.UnixMilli(1_700_000_060_000).UTC()
	enc.Status = types.CombatResolved
	enc.Outcome = &types.CombatOutcome{WinnerID: "aria", Summary: "Aria wins."}
	enc.ResolvedAt = &resolved
	if err := st.UpdateEncounter(ctx, enc); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := st.Encounter(ctx, "enc1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.CombatResolved || got.Outcome == nil || got.Outcome.WinnerID != "aria" {
		t.Errorf("encounter = %+v", got)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(resolved) {
		t.Errorf("resolved at = %v", got.ResolvedAt)
	}
	if len(got.Participants) != 2 || !got.Participants[1].IsReady || got.Participants[0].VisibleEquipment[0] != "sword" {
		t.Errorf("participants = %+v", got.Participants)
	}
}

func testCanceled(t *testing.T, st store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Session(ctx, "s1"); !errors.Is(err, context.Canceled) {
		t.Errorf("session: err = %v, want context.Canceled", err)
	}
	if err := st.AppendCascadeLog(ctx, types.CascadeLog{ID: "l", SessionID: "s1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("append: err = %v, want context.Canceled", err)
	}
}

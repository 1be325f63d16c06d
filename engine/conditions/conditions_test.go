package conditions

import (
	"testing"

	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
	"pgregory.net/rapid"
)

func testState() *types.SessionState {
	s := state.NewSessionState()
	s.Stats = map[string]int{"wisdom": 6, "magic": 3}
	s.StoryFlags = map[string]any{
		"gate_open":         true,
		"weather":           "storm",
		"relationship_mira": 4,
		"faction_guild":     2.5,
	}
	s.Inventory = []string{"Torch"}
	s.TurnCount = 3
	s.Location = "forest"
	s.PlayerCount = 2
	s.ChoicesMade = []types.Choice{{NodeID: "gate", ChoiceText: "Bribe the guard"}}
	return s
}

func TestEvalTrigger(t *testing.T) {
	s := testState()

	tests := []struct {
		name string
		cond types.TriggerCondition
		want bool
	}{
		{"stat met", types.StatThreshold{Stat: "wisdom", MinValue: 5}, true},
		{"stat equal", types.StatThreshold{Stat: "wisdom", MinValue: 6}, true},
		{"stat below", types.StatThreshold{Stat: "magic", MinValue: 5}, false},
		{"stat missing", types.StatThreshold{Stat: "luck", MinValue: 1}, false},
		{"item case-insensitive", types.ItemPossessed{ItemName: "torch"}, true},
		{"item missing", types.ItemPossessed{ItemName: "rope"}, false},
		{"flag bool", types.FlagSet{FlagName: "gate_open", FlagValue: true}, true},
		{"flag string true", types.FlagSet{FlagName: "gate_open", FlagValue: "true"}, true},
		{"flag mismatch", types.FlagSet{FlagName: "gate_open", FlagValue: false}, false},
		{"flag string", types.FlagSet{FlagName: "weather", FlagValue: "storm"}, true},
		{"flag unset", types.FlagSet{FlagName: "nope", FlagValue: false}, false},
		{"relationship met", types.RelationshipScore{NPC: "mira", MinScore: 4}, true},
		{"relationship below", types.RelationshipScore{NPC: "mira", MinScore: 5}, false},
		{"relationship unknown npc", types.RelationshipScore{NPC: "oren", MinScore: 0}, false},
		{"faction met", types.FactionReputation{Faction: "guild", MinReputation: 2}, true},
		{"faction below", types.FactionReputation{Faction: "guild", MinReputation: 3}, false},
		{"choice substring", types.ChoiceMade{NodeID: "gate", Contains: "BRIBE"}, true},
		{"choice wrong node", types.ChoiceMade{NodeID: "bridge", Contains: "bribe"}, false},
		{"choice no match", types.ChoiceMade{NodeID: "gate", Contains: "fight"}, false},
		{"players met", types.PlayerCount{MinPlayers: 2}, true},
		{"players short", types.PlayerCount{MinPlayers: 3}, false},
		{"invalid", types.InvalidCondition{Type: "stat_threshold", Reason: "missing stat"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalTrigger(tt.cond, s, nil); got != tt.want {
				t.Errorf("EvalTrigger(%#v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvalTrigger_RandomChance(t *testing.T) {
	s := testState()
	roller := &dice.Scripted{Percents: []float64{24.9, 25, 80}}
	cond := types.RandomChance{Probability: 25}

	want := []bool{true, false, false}
	for i, w := range want {
		if got := EvalTrigger(cond, s, roller); got != w {
			t.Errorf("roll %d: got %v, want %v", i, got, w)
		}
	}
}

func TestEvalTrigger_RandomChanceBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rng := dice.NewRNG(rapid.Int64().Draw(t, "seed"))
		s := state.NewSessionState()
		if EvalTrigger(types.RandomChance{Probability: 0}, s, rng) {
			t.Fatal("probability 0 fired")
		}
		if !EvalTrigger(types.RandomChance{Probability: 100}, s, rng) {
			t.Fatal("probability 100 did not fire")
		}
	})
}

func TestEvalHint_Conjunctive(t *testing.T) {
	cond := types.HintConditions{
		StatThreshold: map[string]int{"wisdom": 5},
		ItemRequired:  []string{"torch"},
	}
	s := testState()
	if !EvalHint(cond, s) {
		t.Fatal("expected eligible with wisdom 6 and a torch")
	}

	s.Inventory = nil
	if EvalHint(cond, s) {
		t.Error("removing the torch should make the hint ineligible")
	}
}

func TestEvalHint(t *testing.T) {
	s := testState()
	tests := []struct {
		name string
		cond types.HintConditions
		want bool
	}{
		{"empty", types.HintConditions{}, true},
		{"flag required", types.HintConditions{FlagRequired: map[string]any{"gate_open": true}}, true},
		{"flag wrong value", types.HintConditions{FlagRequired: map[string]any{"weather": "clear"}}, false},
		{"stat unset", types.HintConditions{StatThreshold: map[string]int{"stealth": 1}}, false},
		{"invalid", types.HintConditions{Invalid: "bad table"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalHint(tt.cond, s); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvalEvent(t *testing.T) {
	s := testState()
	tests := []struct {
		name string
		cond types.EventConditions
		want bool
	}{
		{"empty", types.EventConditions{}, true},
		{"min turn met", types.EventConditions{MinTurn: 3}, true},
		{"min turn early", types.EventConditions{MinTurn: 4}, false},
		{"location match", types.EventConditions{Location: "forest"}, true},
		{"location mismatch", types.EventConditions{Location: "cave"}, false},
		{"stats and flags", types.EventConditions{StatThresholds: map[string]int{"wisdom": 6}, RequiredFlags: map[string]any{"weather": "storm"}}, true},
		{"stat below", types.EventConditions{StatThresholds: map[string]int{"magic": 4}}, false},
		{"invalid", types.EventConditions{Invalid: "min_turn"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalEvent(tt.cond, s); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvalEvent_NoLocation(t *testing.T) {
	s := testState()
	s.Location = ""
	if EvalEvent(types.EventConditions{Location: "forest"}, s) {
		t.Error("a session without a location cannot match a location condition")
	}
}

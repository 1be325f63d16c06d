package effects

import (
	"reflect"
	"testing"

	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
	"pgregory.net/rapid"
)

func testState() *types.SessionState {
	s := state.NewSessionState()
	s.Stats = map[string]int{"wisdom": 6, "magic": 3}
	return s
}

func TestApply_ModifyStat(t *testing.T) {
	tests := []struct {
		name  string
		start int
		delta int
		want  int
	}{
		{"simple", 3, 2, 5},
		{"clamps high", 9, 5, 10},
		{"clamps low", 2, -5, 1},
		{"zero", 4, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := state.NewSessionState()
			s.Stats["magic"] = tt.start
			out := Apply(s, []types.Effect{types.ModifyStat{Stat: "magic", Change: tt.delta}})
			if s.Stats["magic"] != tt.want {
				t.Errorf("magic = %d, want %d", s.Stats["magic"], tt.want)
			}
			if out.Delta.Stats["magic"] != tt.want {
				t.Errorf("delta magic = %d, want %d", out.Delta.Stats["magic"], tt.want)
			}
		})
	}
}

func TestApply_ModifyStat_UnsetUsesDefault(t *testing.T) {
	s := state.NewSessionState()
	Apply(s, []types.Effect{types.ModifyStat{Stat: "luck", Change: 2}})
	if got := s.Stats["luck"]; got != state.DefaultStat+2 {
		t.Errorf("luck = %d, want %d", got, state.DefaultStat+2)
	}
}

func TestApply_StatsStayInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := state.NewSessionState()
		s.Stats["strength"] = rapid.IntRange(state.MinStat, state.MaxStat).Draw(t, "start")
		n := rapid.IntRange(1, 20).Draw(t, "n")
		var effs []types.Effect
		for i := 0; i < n; i++ {
			effs = append(effs, types.ModifyStat{Stat: "strength", Change: rapid.IntRange(-50, 50).Draw(t, "change")})
		}
		Apply(s, effs)
		if v := s.Stats["strength"]; v < state.MinStat || v > state.MaxStat {
			t.Fatalf("strength = %d, out of [1,10]", v)
		}
	})
}

func TestApply_LaterEffectsObserveEarlier(t *testing.T) {
	s := testState()
	Apply(s, []types.Effect{
		types.ModifyStat{Stat: "magic", Change: 4},
		types.ModifyStat{Stat: "magic", Change: 4},
	})
	if s.Stats["magic"] != 10 {
		t.Errorf("magic = %d, want 10", s.Stats["magic"])
	}
}

func TestApply_SetFlag(t *testing.T) {
	s := testState()
	out := Apply(s, []types.Effect{
		types.SetFlag{Flag: "gate_open", Value: "true"},
		types.SetFlag{Flag: "weather", Value: "rain"},
	})
	if s.StoryFlags["gate_open"] != true {
		t.Errorf("gate_open = %v, want true", s.StoryFlags["gate_open"])
	}
	if out.Delta.Flags["weather"] != "rain" {
		t.Errorf("delta weather = %v", out.Delta.Flags["weather"])
	}
}

func TestApply_GrantItem(t *testing.T) {
	s := testState()
	s.Inventory = []string{"Rope"}
	out := Apply(s, []types.Effect{
		types.GrantItem{Item: "rope"},
		types.GrantItem{Item: "lantern"},
	})
	if !reflect.DeepEqual(s.Inventory, []string{"Rope", "lantern"}) {
		t.Errorf("inventory = %v", s.Inventory)
	}
	if !reflect.DeepEqual(out.Delta.Items, []string{"lantern"}) {
		t.Errorf("delta items = %v", out.Delta.Items)
	}
}

func TestApply_SurfacedOutputs(t *testing.T) {
	s := testState()
	before := state.Clone(s)
	out := Apply(s, []types.Effect{
		types.ShowMessage{Text: "The runes glow."},
		types.AwardXP{Amount: 25},
		types.AwardXP{Amount: 5},
		types.UnlockPath{PathID: "hidden_stair"},
		types.SpawnNode{NodeID: "crypt"},
		types.InvalidEffect{Type: "modify_stat", Reason: "missing stat"},
	})

	if !reflect.DeepEqual(s, before) {
		t.Error("surfaced effects should not change the snapshot")
	}
	if out.XP != 30 {
		t.Errorf("XP = %d, want 30", out.XP)
	}
	if !reflect.DeepEqual(out.Messages, []string{"The runes glow."}) {
		t.Errorf("messages = %v", out.Messages)
	}
	if !reflect.DeepEqual(out.UnlockedPaths, []string{"hidden_stair"}) {
		t.Errorf("unlocked = %v", out.UnlockedPaths)
	}
	if !reflect.DeepEqual(out.SpawnedNodes, []string{"crypt"}) {
		t.Errorf("spawned = %v", out.SpawnedNodes)
	}
}

func TestApply_Events(t *testing.T) {
	s := testState()
	out := Apply(s, []types.Effect{types.ModifyStat{Stat: "magic", Change: 2}})
	if len(out.Events) != 1 || out.Events[0].Type != "stat_changed" {
		t.Fatalf("events = %v", out.Events)
	}
	if out.Events[0].Data["to"] != 5 {
		t.Errorf("event data = %v", out.Events[0].Data)
	}
}

func TestOutcome_Add(t *testing.T) {
	a := Outcome{Delta: types.StateDelta{Stats: map[string]int{"magic": 4}}, XP: 10}
	b := Outcome{
		Delta:    types.StateDelta{Stats: map[string]int{"magic": 6}, Items: []string{"orb"}},
		XP:       5,
		Messages: []string{"hi"},
	}
	a.Add(b)
	if a.Delta.Stats["magic"] != 6 || a.XP != 15 || len(a.Messages) != 1 || len(a.Delta.Items) != 1 {
		t.Errorf("merged = %+v", a)
	}
}

func TestMerge(t *testing.T) {
	s := testState()
	Merge(s, types.StateDelta{
		Stats: map[string]int{"magic": 15},
		Flags: map[string]any{"door": "false"},
		Items: []string{"key", "KEY"},
	})
	if s.Stats["magic"] != 10 {
		t.Errorf("magic = %d, want 10", s.Stats["magic"])
	}
	if s.StoryFlags["door"] != false {
		t.Errorf("door = %v", s.StoryFlags["door"])
	}
	if len(s.Inventory) != 1 {
		t.Errorf("inventory = %v", s.Inventory)
	}
}

package loader

import (
	"reflect"
	"strings"
	"testing"

	"github.com/nathoo/lorecore/types"
)

const header = `Campaign { id = "t", title = "T", start = "a" }
Node "a" { text = "A" }
`

func TestConditionHelpers(t *testing.T) {
	tests := []struct {
		when string
		want types.TriggerCondition
	}{
		{`StatAtLeast("strength", 7)`, types.StatThreshold{Stat: "strength", MinValue: 7}},
		{`HasItem("torch")`, types.ItemPossessed{ItemName: "torch"}},
		{`FlagSet("gate_open")`, types.FlagSet{FlagName: "gate_open", FlagValue: true}},
		{`FlagIs("mood", "grim")`, types.FlagSet{FlagName: "mood", FlagValue: "grim"}},
		{`FlagIs("seen", "false")`, types.FlagSet{FlagName: "seen", FlagValue: false}},
		{`RelationshipAtLeast("miller", 3)`, types.RelationshipScore{NPC: "miller", MinScore: 3}},
		{`ReputationAtLeast("wardens", 2.5)`, types.FactionReputation{Faction: "wardens", MinReputation: 2.5}},
		{`Chose("a", "left")`, types.ChoiceMade{NodeID: "a", Contains: "left"}},
		{`PlayersAtLeast(3)`, types.PlayerCount{MinPlayers: 3}},
		{`Chance(40)`, types.RandomChance{Probability: 40}},
	}
	for _, tt := range tests {
		t.Run(tt.when, func(t *testing.T) {
			src := header + `Trigger "x" { when = ` + tt.when + `, effects = { AwardXP(1) } }`
			defs, _, err := LoadString(src, "fallback")
			if err != nil {
				t.Fatal(err)
			}
			if got := defs.Triggers[0].Condition; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEffectHelpers(t *testing.T) {
	src := header + `Trigger "x" {
		when = FlagSet("go"),
		effects = {
			ModifyStat("wisdom", -2),
			GrantItem("rope"),
			SetFlag("door", "ajar"),
			SetFlag("lit"),
			Say("hello"),
			AwardXP(15),
			UnlockPath("north"),
			SpawnNode("a"),
		},
	}`
	defs, warnings, err := LoadString(src, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	want := []types.Effect{
		types.ModifyStat{Stat: "wisdom", Change: -2},
		types.GrantItem{Item: "rope"},
		types.SetFlag{Flag: "door", Value: "ajar"},
		types.SetFlag{Flag: "lit", Value: true},
		types.ShowMessage{Text: "hello"},
		types.AwardXP{Amount: 15},
		types.UnlockPath{PathID: "north"},
		types.SpawnNode{NodeID: "a"},
	}
	var got []types.Effect
	for _, spec := range defs.Triggers[0].Effects {
		got = append(got, spec.Effect)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v\nwant %#v", got, want)
	}
}

func TestCascadeForms(t *testing.T) {
	src := header + `
Cascade "c1" { source = "s", on = "bad", target = "t", effect = Lock() }
Cascade "c2" { source = "s", on = "good", target = "t", effect = "unlock" }
Cascade "c3" { source = "s", on = "neutral", target = "t", effect = "modify_difficulty", value = -1 }
Cascade "c4" { source = "s", on = "bad", target = "t", effect = "explode" }`
	defs, warnings, err := LoadString(src, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []types.CascadeEffect{
		types.CascadeLock{},
		types.CascadeUnlock{},
		types.CascadeDifficulty{Delta: -1},
	}
	for i, w := range want {
		if got := defs.CascadeRules[i].Effect; got != w {
			t.Errorf("c%d effect = %#v, want %#v", i+1, got, w)
		}
	}
	if _, ok := defs.CascadeRules[3].Effect.(types.InvalidCascade); !ok {
		t.Errorf("c4 effect = %#v, want InvalidCascade", defs.CascadeRules[3].Effect)
	}
	if !containsLine(warnings, "cascade c4") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"invalid hint condition", `Hint "h" { text = "x", conditions = { stat_threshold = "lots" } }`, "hint h: never eligible"},
		{"invalid hint outcome", `Hint "h" { text = "x", on_follow = { { type = "teleport" } } }`, `effect "teleport" is skipped`},
		{"unknown category", `RandomEvent "e" { category = "meteor", probability = 5 }`, `unknown category "meteor"`},
		{"zero probability", `RandomEvent "e" { category = "weather", probability = 0 }`, "probability 0 is outside"},
		{"unknown spawn", `Trigger "t" { when = FlagSet("f"), effects = { SpawnNode("zz") } }`, `unknown node "zz"`},
		{"clamped stat", `Character "c" { name = "C", stats = { strength = 14 } }`, "will be clamped"},
		{"unknown outcome", `Cascade "c" { source = "s", on = "great", target = "t", effect = Lock() }`, `outcome "great" never occurs`},
		{"no effects", `Trigger "t" { when = FlagSet("f") }`, "trigger t has no effects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, warnings, err := LoadString(header+tt.src, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !containsLine(warnings, tt.want) {
				t.Errorf("warnings %v missing %q", warnings, tt.want)
			}
		})
	}
}

func TestNoCampaign(t *testing.T) {
	_, _, err := LoadString(`Node "a" { text = "A" }`, "x")
	if err == nil || !strings.Contains(err.Error(), "Campaign") {
		t.Fatalf("err = %v", err)
	}
}

func TestDuplicateNode(t *testing.T) {
	_, _, err := LoadString(header+`Node "a" { text = "again" }`, "")
	if err == nil || !strings.Contains(err.Error(), `node "a" defined twice`) {
		t.Fatalf("err = %v", err)
	}
}

func TestSandbox(t *testing.T) {
	for _, expr := range []string{
		`os.exit(1)`,
		`io.write("x")`,
		`dofile("x.lua")`,
		`require("x")`,
		`math.randomseed(1)`,
		`math.random()`,
	} {
		t.Run(expr, func(t *testing.T) {
			if _, _, err := LoadString(header+expr, ""); err == nil {
				t.Errorf("%s should fail inside the sandbox", expr)
			}
		})
	}
}

func TestSandboxKeepsSafeLibs(t *testing.T) {
	src := `
local title = string.upper("vale") .. tostring(math.floor(2.7))
local parts = {}
table.insert(parts, "a")
Campaign { id = "s", title = title, start = parts[1] }
Node "a" { text = "A" }`
	defs, _, err := LoadString(src, "")
	if err != nil {
		t.Fatal(err)
	}
	if defs.Campaign.Title != "VALE2" {
		t.Errorf("Title = %q", defs.Campaign.Title)
	}
}

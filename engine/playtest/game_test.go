package playtest

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/nathoo/lorecore/loader"
	"github.com/nathoo/lorecore/types"
)

const testCampaign = `
Campaign { id = "vale", title = "Vale", start = "gate", intro = "Ash falls." }

Node "gate" {
  title = "The Gate",
  text = "A rusted gate.",
  choices = {
    { text = "Enter the hall", target = "hall" },
    { text = "Cross the bridge", target = "hall", interaction = "bridge" },
  },
}
Node "hall" {
  text = "An empty hall.",
  choices = { { text = "Take the ferry", target = "gate", interaction = "ferry" } },
}

Character "aria" { name = "Aria", player = "p1", stats = { strength = 4, charisma = 5 } }
Character "bram" { name = "Bram", player = "p2", stats = { strength = 7 } }

Trigger "entered" {
  when = Chose("gate", "enter"),
  effects = { Say("The gate groans."), AwardXP(10) },
}

Cascade "sink" { source = "bridge", on = "bad", target = "ferry", effect = Lock() }

Hint "h1" { node = "gate", kind = "omen", text = "Smoke rises.", on_follow = { ModifyStat("wisdom", 1) } }
`

func newTestGame(t *testing.T) *Game {
	t.Helper()
	defs, _, err := loader.LoadString(testCampaign, "vale")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	g, err := New(context.Background(), defs, 42)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	g.SaveDir = t.TempDir()
	return g
}

func outputContains(out []string, substr string) bool {
	return slices.ContainsFunc(out, func(line string) bool { return strings.Contains(line, substr) })
}

func TestNew(t *testing.T) {
	g := newTestGame(t)
	st := g.Status(context.Background())
	if st.Node != "The Gate" || st.Character != "Aria" || st.Version != 1 {
		t.Errorf("status = %+v", st)
	}
	rec, err := g.Record(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rec.TurnOrder, []string{"p1", "p2"}) {
		t.Errorf("turn order = %v", rec.TurnOrder)
	}
}

func TestStep_Look(t *testing.T) {
	g := newTestGame(t)
	out := g.Step(context.Background(), "look").Output
	for _, want := range []string{"The Gate", "A rusted gate.", "Choices:", "  1. Enter the hall", "  2. Cross the bridge", "It is Aria's turn."} {
		if !slices.Contains(out, want) {
			t.Errorf("look output missing %q: %v", want, out)
		}
	}
}

func TestStep_ChooseFiresTrigger(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	res := g.Step(ctx, "1")
	for _, want := range []string{"The gate groans.", "+10 XP", "An empty hall."} {
		if !outputContains(res.Output, want) {
			t.Errorf("output missing %q: %v", want, res.Output)
		}
	}
	if len(res.Effects) != 2 {
		t.Errorf("effects = %v, want the trigger's two", res.Effects)
	}
	ch, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ch.XP != 10 {
		t.Errorf("xp = %d, want 10", ch.XP)
	}

	// The trigger is one-shot.
	g.Step(ctx, "go ferry")
	res = g.Step(ctx, "choose enter")
	if outputContains(res.Output, "groans") {
		t.Errorf("trigger fired twice: %v", res.Output)
	}
}

func TestStep_ChooseMissing(t *testing.T) {
	g := newTestGame(t)
	tests := []struct {
		input string
		want  string
	}{
		{"choose 9", "There is no such choice here."},
		{"choose swim", "There is no such choice here."},
		{"choose", "Choose which?"},
	}
	for _, tt := range tests {
		if out := g.Step(context.Background(), tt.input).Output; !outputContains(out, tt.want) {
			t.Errorf("Step(%q) = %v, want %q", tt.input, out, tt.want)
		}
	}
}

func TestStep_CascadeLocksChoice(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	out := g.Step(ctx, "complete bridge bad").Output
	if !outputContains(out, "Interaction bridge ends bad.") || !outputContains(out, "(sink)") {
		t.Errorf("complete output = %v", out)
	}
	if out := g.Step(ctx, "effects ferry").Output; !slices.Equal(out, []string{"ferry: (locked)"}) {
		t.Errorf("effects output = %v", out)
	}
	if out := g.Step(ctx, "effects bridge").Output; !slices.Equal(out, []string{"bridge: unaffected"}) {
		t.Errorf("effects output = %v", out)
	}

	g.Step(ctx, "choose enter")
	if out := g.Step(ctx, "look").Output; !slices.Contains(out, "  1. Take the ferry (locked)") {
		t.Errorf("look output = %v", out)
	}
	if out := g.Step(ctx, "choose ferry").Output; !slices.Equal(out, []string{"That way is closed to you now."}) {
		t.Errorf("choose output = %v", out)
	}
}

func TestStep_InvalidOutcome(t *testing.T) {
	g := newTestGame(t)
	out := g.Step(context.Background(), "complete bridge great").Output
	if !outputContains(out, "You can't do that:") {
		t.Errorf("output = %v", out)
	}
}

func TestStep_Hints(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	out := g.Step(ctx, "hints").Output
	if !slices.Equal(out, []string{"Hints:", "  1. [omen] Smoke rises."}) {
		t.Fatalf("hints output = %v", out)
	}
	res := g.Step(ctx, "follow 1")
	if len(res.Effects) != 1 {
		t.Errorf("effects = %v", res.Effects)
	}
	ch, err := g.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Stats["wisdom"] != 6 {
		t.Errorf("wisdom = %d, want 6", ch.Stats["wisdom"])
	}

	if out := g.Step(ctx, "ignore h9").Output; !outputContains(out, "You can't do that:") {
		t.Errorf("unknown hint output = %v", out)
	}
	if out := g.Step(ctx, "oppose").Output; !outputContains(out, "Oppose which hint?") {
		t.Errorf("bare oppose output = %v", out)
	}
}

func TestStep_TurnAndStats(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	if out := g.Step(ctx, "end turn").Output; !slices.Equal(out, []string{"It is now Bram's turn."}) {
		t.Errorf("turn output = %v", out)
	}
	out := g.Step(ctx, "stats").Output
	if len(out) != 3 || out[0] != "Bram (p2), 0 XP" || out[1] != "Stats: {strength 7}" {
		t.Errorf("stats output = %v", out)
	}
}

func TestStep_Wait(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	if out := g.Step(ctx, "wait").Output; len(out) == 0 || out[0] != "Time passes." {
		t.Errorf("wait output = %v", out)
	}
	if rec, _ := g.Record(ctx); rec.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", rec.TurnCount)
	}
	if out := g.Step(ctx, "events").Output; !slices.Equal(out, []string{"Nothing stirs."}) {
		t.Errorf("events output = %v", out)
	}
}

func TestStep_Combat(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)

	out := g.Step(ctx, "bluff flex bram").Output
	if len(out) != 1 || !strings.HasPrefix(out[0], "Aria tries to flex Bram:") {
		t.Errorf("bluff output = %v", out)
	}
	if out := g.Step(ctx, "bluff flex zed").Output; !slices.Equal(out, []string{"There is nobody called zed."}) {
		t.Errorf("bluff output = %v", out)
	}
	if out := g.Step(ctx, "bluff juggle bram").Output; !outputContains(out, "unknown bluff type") {
		t.Errorf("bluff output = %v", out)
	}

	out = g.Step(ctx, "duel bram strength").Output
	if len(out) != 2 || !strings.HasPrefix(out[0], "Aria ") || !strings.Contains(out[1], "bests") {
		t.Errorf("duel output = %v", out)
	}
	if out := g.Step(ctx, "duel aria strength").Output; !slices.Equal(out, []string{"You cannot duel yourself."}) {
		t.Errorf("duel output = %v", out)
	}
}

func TestStep_Unknown(t *testing.T) {
	g := newTestGame(t)
	if out := g.Step(context.Background(), "dance wildly").Output; !slices.Equal(out, []string{"I don't understand that."}) {
		t.Errorf("output = %v", out)
	}
	if res := g.Step(context.Background(), "   "); len(res.Output) != 0 {
		t.Errorf("blank input output = %v", res.Output)
	}
}

func TestTrace(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	if out, _ := g.Meta(ctx, "/trace"); !slices.Equal(out, []string{"Trace output enabled."}) {
		t.Errorf("trace on = %v", out)
	}
	out := g.Step(ctx, "1").Output
	if !outputContains(out, "[trace] Effects: 2") || !outputContains(out, "[trace]   award_xp") {
		t.Errorf("traced output = %v", out)
	}
	if out, _ := g.Meta(ctx, "/trace"); !slices.Equal(out, []string{"Trace output disabled."}) {
		t.Errorf("trace off = %v", out)
	}
}

func TestMeta(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	tests := []struct {
		input string
		want  string
		quit  bool
	}{
		{"/quit", "Goodbye.", true},
		{"/exit", "Goodbye.", true},
		{"/help", "System:", false},
		{"/state", "Node: gate", false},
		{"/bogus", "Unknown command: /bogus", false},
		{"/load nothing", "Load failed:", false},
	}
	for _, tt := range tests {
		out, quit := g.Meta(ctx, tt.input)
		if quit != tt.quit || !outputContains(out, tt.want) {
			t.Errorf("Meta(%q) = %v, %v; want %q, %v", tt.input, out, quit, tt.want, tt.quit)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	g.Step(ctx, "1")
	pos := g.roller.rng.Position()

	if out, _ := g.Meta(ctx, "/save slot"); !slices.Equal(out, []string{"Game saved to slot."}) {
		t.Fatalf("save output = %v", out)
	}

	g.Step(ctx, "turn")
	g.Step(ctx, "duel aria strength")
	g.Step(ctx, "bluff flex aria")

	out, _ := g.Meta(ctx, "/load slot")
	if len(out) == 0 || out[0] != "Game loaded from slot (turn 0)." {
		t.Fatalf("load output = %v", out)
	}
	rec, err := g.Record(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.CurrentNodeID != "hall" || rec.CurrentTurnPlayerID != "p1" {
		t.Errorf("restored record = %+v", rec)
	}
	if got := g.roller.rng.Position(); got != pos {
		t.Errorf("rng position = %d, want %d", got, pos)
	}
	ch, _ := g.Active(ctx)
	if ch.XP != 10 {
		t.Errorf("restored xp = %d, want 10", ch.XP)
	}
}

func TestLoadBytes_OtherCampaign(t *testing.T) {
	ctx := context.Background()
	g := newTestGame(t)
	data, err := g.SaveBytes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	g.Defs.Campaign.ID = "elsewhere"
	if _, err := g.LoadBytes(ctx, data); err == nil || !strings.Contains(err.Error(), "belongs to campaign") {
		t.Errorf("err = %v", err)
	}
}

func TestPickChoice(t *testing.T) {
	choices := []types.NodeChoice{{Text: "Enter the hall"}, {Text: "Cross the bridge"}}
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"1", "Enter the hall", true},
		{"2", "Cross the bridge", true},
		{"0", "", false},
		{"3", "", false},
		{"BRIDGE", "Cross the bridge", true},
		{"swim", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := pickChoice(choices, tt.ref)
		if ok != tt.ok || got.Text != tt.want {
			t.Errorf("pickChoice(%q) = %q, %v; want %q, %v", tt.ref, got.Text, ok, tt.want, tt.ok)
		}
	}
}

func TestDescribeEffects(t *testing.T) {
	tests := []struct {
		fx   types.InteractionEffects
		want string
	}{
		{types.InteractionEffects{}, ""},
		{types.InteractionEffects{IsLocked: true}, " (locked)"},
		{types.InteractionEffects{DifficultyModifier: 2, OutcomeModifier: "good"}, " (difficulty +2, outcome good)"},
		{types.InteractionEffects{DifficultyModifier: -1}, " (difficulty -1)"},
	}
	for _, tt := range tests {
		if got := describeEffects(tt.fx); got != tt.want {
			t.Errorf("describeEffects(%+v) = %q, want %q", tt.fx, got, tt.want)
		}
	}
}

func TestNodeDisplayName(t *testing.T) {
	tests := []struct{ id, want string }{
		{"hall", "Hall"},
		{"far_bank", "Far Bank"},
		{"hidden_cellar", "Hidden Cellar"},
	}
	for _, tt := range tests {
		if got := NodeDisplayName(tt.id); got != tt.want {
			t.Errorf("NodeDisplayName(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

package playtest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nathoo/lorecore/engine"
	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/engine/parser"
	"github.com/nathoo/lorecore/engine/triggers"
	"github.com/nathoo/lorecore/types"
)

// Step parses and runs one game command. Errors become output lines.
func (g *Game) Step(ctx context.Context, input string) types.Result {
	intent := parser.Parse(input)
	var res types.Result
	var err error

	switch intent.Verb {
	case "":
		return res
	case "look":
		res.Output, err = g.look(ctx)
	case "choose":
		res, err = g.choose(ctx, intent.Object)
	case "hints":
		res.Output, err = g.hints(ctx)
	case "follow", "ignore", "oppose":
		res, err = g.respond(ctx, intent.Verb, intent.Object)
	case "complete":
		res, err = g.complete(ctx, intent.Object, intent.Target)
	case "effects":
		res.Output, err = g.effects(ctx, intent.Object)
	case "bluff":
		res.Output, err = g.bluff(ctx, intent.Object, intent.Target)
	case "duel":
		res.Output, err = g.duel(ctx, intent.Object, intent.Target)
	case "events":
		res, err = g.act(ctx, engine.Action{Kind: engine.ActionRandomEventCheck})
		if err == nil && len(res.Output) == 0 {
			res.Output = []string{"Nothing stirs."}
		}
	case "wait":
		res, err = g.act(ctx, engine.Action{Kind: engine.ActionNodeCompleted})
		if err == nil {
			res.Output = append([]string{"Time passes."}, res.Output...)
		}
	case "turn":
		res.Output, err = g.turn(ctx)
	case "stats":
		res.Output, err = g.stats(ctx)
	default:
		res.Output = []string{"I don't understand that."}
	}

	if err != nil {
		res.Output = append(res.Output, errorLine(err))
	}
	if g.Trace {
		res.Output = append(res.Output, TraceLines(res)...)
	}
	return res
}

func errorLine(err error) string {
	var logErr *triggers.LogError
	if errors.As(err, &logErr) {
		return fmt.Sprintf("[warning: %v]", err)
	}
	return "You can't do that: " + err.Error()
}

// TraceLines renders the effects and events of a step.
func TraceLines(res types.Result) []string {
	var lines []string
	if len(res.Effects) > 0 {
		lines = append(lines, fmt.Sprintf("[trace] Effects: %d", len(res.Effects)))
		for _, e := range res.Effects {
			typ, payload := codec.EncodeEffect(e)
			lines = append(lines, fmt.Sprintf("[trace]   %s %v", typ, payload))
		}
	}
	if len(res.Events) > 0 {
		lines = append(lines, fmt.Sprintf("[trace] Events: %d", len(res.Events)))
		for _, e := range res.Events {
			lines = append(lines, fmt.Sprintf("[trace]   %s %v", e.Type, e.Data))
		}
	}
	return lines
}

func (g *Game) look(ctx context.Context) ([]string, error) {
	rec, err := g.Record(ctx)
	if err != nil {
		return nil, err
	}
	n, ok := g.Defs.Nodes[rec.CurrentNodeID]
	if !ok {
		return []string{fmt.Sprintf("You are at %s.", NodeDisplayName(rec.CurrentNodeID))}, nil
	}
	title := n.Title
	if title == "" {
		title = NodeDisplayName(n.ID)
	}
	lines := []string{title}
	if n.Text != "" {
		lines = append(lines, n.Text)
	}
	if len(n.Choices) > 0 {
		lines = append(lines, "Choices:")
		for i, ch := range n.Choices {
			line := fmt.Sprintf("  %d. %s", i+1, ch.Text)
			if ch.InteractionID != "" {
				fx, err := g.Engine.InteractionEffects(ctx, g.SessionID, ch.InteractionID)
				if err != nil {
					return lines, err
				}
				line += describeEffects(fx)
			}
			lines = append(lines, line)
		}
	}
	if ch, err := g.Active(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("It is %s's turn.", displayName(ch)))
	}
	return lines, nil
}

func describeEffects(fx types.InteractionEffects) string {
	var tags []string
	if fx.IsLocked {
		tags = append(tags, "locked")
	}
	if fx.DifficultyModifier != 0 {
		tags = append(tags, fmt.Sprintf("difficulty %+d", fx.DifficultyModifier))
	}
	if fx.OutcomeModifier != "" {
		tags = append(tags, "outcome "+fx.OutcomeModifier)
	}
	if len(tags) == 0 {
		return ""
	}
	return " (" + strings.Join(tags, ", ") + ")"
}

// pickChoice resolves a 1-based number or a case-insensitive text fragment.
func pickChoice(choices []types.NodeChoice, ref string) (types.NodeChoice, bool) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(choices) {
			return choices[n-1], true
		}
		return types.NodeChoice{}, false
	}
	ref = strings.ToLower(ref)
	for _, ch := range choices {
		if ref != "" && strings.Contains(strings.ToLower(ch.Text), ref) {
			return ch, true
		}
	}
	return types.NodeChoice{}, false
}

func (g *Game) choose(ctx context.Context, ref string) (types.Result, error) {
	if ref == "" {
		return types.Result{Output: []string{"Choose which? Give a number or part of the text."}}, nil
	}
	rec, err := g.Record(ctx)
	if err != nil {
		return types.Result{}, err
	}
	choice, ok := pickChoice(g.Defs.Nodes[rec.CurrentNodeID].Choices, ref)
	if !ok {
		return types.Result{Output: []string{"There is no such choice here."}}, nil
	}
	if choice.InteractionID != "" {
		fx, err := g.Engine.InteractionEffects(ctx, g.SessionID, choice.InteractionID)
		if err != nil {
			return types.Result{}, err
		}
		if fx.IsLocked {
			return types.Result{Output: []string{"That way is closed to you now."}}, nil
		}
	}
	res, err := g.act(ctx, engine.Action{
		Kind:       engine.ActionChoiceMade,
		NodeID:     rec.CurrentNodeID,
		ChoiceText: choice.Text,
		TargetNode: choice.Target,
	})
	if err != nil && res.Events == nil {
		return res, err
	}
	if choice.Target != "" {
		desc, lookErr := g.look(ctx)
		if lookErr != nil {
			return res, lookErr
		}
		res.Output = append(res.Output, desc...)
	}
	if choice.InteractionID != "" {
		res.Output = append(res.Output, fmt.Sprintf("[interaction %s begins; finish it with: complete %s good|neutral|bad]", choice.InteractionID, choice.InteractionID))
	}
	return res, err
}

// act runs an action for the active character and renders what it did.
// A trigger log failure still returns the committed output with the error.
func (g *Game) act(ctx context.Context, a engine.Action) (types.Result, error) {
	ch, err := g.Active(ctx)
	if err != nil {
		return types.Result{}, err
	}
	a.CharacterID = ch.ID
	res, err := g.Engine.Handle(ctx, g.SessionID, a)
	var logErr *triggers.LogError
	if err != nil && !errors.As(err, &logErr) {
		return types.Result{}, err
	}
	return render(res), err
}

func render(res engine.Result) types.Result {
	out := types.Result{Events: res.Events}
	if out.Events == nil {
		out.Events = []types.Event{}
	}
	if res.HintResponse != nil {
		out.Effects = append(out.Effects, res.HintResponse.AppliedOutcome...)
	}
	if ev := res.RandomEvent; ev != nil && ev.FiredEvent != nil {
		out.Effects = append(out.Effects, ev.Effects...)
		out.Output = append(out.Output, fmt.Sprintf("Event: %s (%s)", ev.FiredEvent.Name, ev.FiredEvent.Category))
	}
	for _, f := range res.Triggers.Fired {
		for _, spec := range f.Trigger.Effects {
			out.Effects = append(out.Effects, spec.Effect)
		}
	}
	out.Output = append(out.Output, res.Messages...)
	for _, l := range res.CascadeLogs {
		out.Output = append(out.Output, fmt.Sprintf("Consequences ripple outward (%s).", l.RuleID))
	}
	for _, id := range res.ChainsCompleted {
		out.Output = append(out.Output, fmt.Sprintf("Hint chain %s complete.", id))
	}
	if res.XPAwarded != 0 {
		out.Output = append(out.Output, fmt.Sprintf("+%d XP", res.XPAwarded))
	}
	for _, p := range res.UnlockedPaths {
		out.Output = append(out.Output, "Unlocked: "+p)
	}
	for _, n := range res.SpawnedNodes {
		out.Output = append(out.Output, "A new place appears: "+NodeDisplayName(n))
	}
	return out
}

func (g *Game) hints(ctx context.Context) ([]string, error) {
	ch, err := g.Active(ctx)
	if err != nil {
		return nil, err
	}
	hs, err := g.Engine.ActiveHints(ctx, g.SessionID, ch.ID)
	if err != nil {
		return nil, err
	}
	g.lastHints = hs
	if len(hs) == 0 {
		return []string{"You sense nothing unusual."}, nil
	}
	lines := []string{"Hints:"}
	for i, h := range hs {
		line := fmt.Sprintf("  %d. [%s] %s", i+1, h.HintType, h.Text)
		if h.SourceFlavor != "" {
			line += " (from " + h.SourceFlavor + ")"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// hintID resolves a number from the last hints listing or a raw hint id.
func (g *Game) hintID(ref string) string {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(g.lastHints) {
		return g.lastHints[n-1].ID
	}
	return ref
}

func (g *Game) respond(ctx context.Context, verb, ref string) (types.Result, error) {
	if ref == "" {
		return types.Result{Output: []string{fmt.Sprintf("%s which hint? Try \"hints\" first.", strings.ToUpper(verb[:1])+verb[1:])}}, nil
	}
	res, err := g.act(ctx, engine.Action{Kind: engine.ActionHintResponse, HintID: g.hintID(ref), Response: verb})
	if err != nil && res.Events == nil {
		return res, err
	}
	if len(res.Output) == 0 {
		res.Output = []string{"Noted."}
	}
	return res, err
}

func (g *Game) complete(ctx context.Context, interaction, outcome string) (types.Result, error) {
	if interaction == "" || outcome == "" {
		return types.Result{Output: []string{"Usage: complete <interaction> <good|neutral|bad>"}}, nil
	}
	res, err := g.act(ctx, engine.Action{Kind: engine.ActionInteractionCompleted, Interaction: interaction, Outcome: outcome})
	if err != nil && res.Events == nil {
		return res, err
	}
	res.Output = append([]string{fmt.Sprintf("Interaction %s ends %s.", interaction, outcome)}, res.Output...)
	return res, err
}

func (g *Game) effects(ctx context.Context, interaction string) ([]string, error) {
	if interaction == "" {
		return []string{"Usage: effects <interaction>"}, nil
	}
	fx, err := g.Engine.InteractionEffects(ctx, g.SessionID, interaction)
	if err != nil {
		return nil, err
	}
	desc := describeEffects(fx)
	if desc == "" {
		return []string{fmt.Sprintf("%s: unaffected", interaction)}, nil
	}
	return []string{interaction + ":" + desc}, nil
}

func (g *Game) bluff(ctx context.Context, kind, targetRef string) ([]string, error) {
	if kind == "" || targetRef == "" {
		return []string{"Usage: bluff <flex|feign_weakness|scout|intimidate> <target>"}, nil
	}
	actor, err := g.Active(ctx)
	if err != nil {
		return nil, err
	}
	target, ok := g.findCharacter(ctx, targetRef)
	if !ok {
		return []string{fmt.Sprintf("There is nobody called %s.", targetRef)}, nil
	}
	b, err := g.Engine.Combat.Bluff(ctx, g.SessionID, actor.ID, target.ID, types.BluffType(kind))
	if err != nil {
		return nil, err
	}
	verdict := "It fails."
	if b.Success {
		verdict = "It works."
	}
	lines := []string{fmt.Sprintf("%s tries to %s %s: %d against %d. %s",
		displayName(actor), strings.ReplaceAll(kind, "_", " "), displayName(target), b.RollValue, b.Difficulty, verdict)}
	if b.RevealedInfo != nil {
		lines = append(lines, b.RevealedInfo.Hint)
	}
	return lines, nil
}

func (g *Game) duel(ctx context.Context, targetRef, stat string) ([]string, error) {
	if targetRef == "" || stat == "" {
		return []string{"Usage: duel <target> <stat>"}, nil
	}
	actor, err := g.Active(ctx)
	if err != nil {
		return nil, err
	}
	target, ok := g.findCharacter(ctx, targetRef)
	if !ok {
		return []string{fmt.Sprintf("There is nobody called %s.", targetRef)}, nil
	}
	if target.ID == actor.ID {
		return []string{"You cannot duel yourself."}, nil
	}
	rec, err := g.Record(ctx)
	if err != nil {
		return nil, err
	}
	enc, err := g.Engine.Combat.StartCombat(ctx, g.SessionID, rec.CurrentNodeID, types.CombatDuel, []types.CombatParticipant{
		{CharacterID: actor.ID, Role: "challenger"},
		{CharacterID: target.ID, Role: "defender"},
	}, true)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{actor.ID, target.ID} {
		if enc, err = g.Engine.Combat.SetReady(ctx, enc.ID, id); err != nil {
			return nil, err
		}
	}
	enc, dr, err := g.Engine.Combat.DuelEncounter(ctx, enc.ID, stat)
	if err != nil {
		return nil, err
	}
	lines := []string{fmt.Sprintf("%s %d, %s %d.", displayName(actor), dr.AttackerRoll, displayName(target), dr.DefenderRoll)}
	if enc.Outcome != nil {
		lines = append(lines, enc.Outcome.Summary)
	}
	return lines, nil
}

func (g *Game) turn(ctx context.Context) ([]string, error) {
	if _, err := g.Engine.Sync.AdvanceTurn(ctx, g.SessionID); err != nil {
		return nil, err
	}
	g.lastHints = nil
	ch, err := g.Active(ctx)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("It is now %s's turn.", displayName(ch))}, nil
}

func (g *Game) stats(ctx context.Context) ([]string, error) {
	ch, err := g.Active(ctx)
	if err != nil {
		return nil, err
	}
	lines := []string{
		fmt.Sprintf("%s (%s), %d XP", displayName(ch), playerOf(ch), ch.XP),
		"Stats: " + formatStats(ch.Stats),
	}
	if len(ch.Inventory) == 0 {
		lines = append(lines, "Carrying nothing.")
	} else {
		lines = append(lines, "Carrying: "+strings.Join(ch.Inventory, ", "))
	}
	return lines, nil
}

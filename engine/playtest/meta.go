package playtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nathoo/lorecore/engine/save"
)

// Meta runs a slash command. It reports true when the front end should exit.
func (g *Game) Meta(ctx context.Context, input string) ([]string, bool) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil, false
	}
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch parts[0] {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true
	case "/save":
		return g.cmdSave(ctx, arg), false
	case "/load":
		return g.cmdLoad(ctx, arg), false
	case "/help":
		return HelpLines(), false
	case "/state":
		return g.StateLines(ctx), false
	case "/trace":
		g.Trace = !g.Trace
		if g.Trace {
			return []string{"Trace output enabled."}, false
		}
		return []string{"Trace output disabled."}, false
	}
	return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", parts[0])}, false
}

// SaveBytes snapshots the session, its characters and the dice position.
func (g *Game) SaveBytes(ctx context.Context) ([]byte, error) {
	rec, err := g.Record(ctx)
	if err != nil {
		return nil, err
	}
	chars, err := g.Characters(ctx)
	if err != nil {
		return nil, err
	}
	return save.Save(g.Defs.Campaign, rec, chars, g.roller.rng)
}

// LoadBytes replaces the session and characters with a snapshot and
// resumes the saved dice sequence.
func (g *Game) LoadBytes(ctx context.Context, data []byte) (*save.SaveData, error) {
	sd, err := save.Load(data)
	if err != nil {
		return nil, err
	}
	if sd.Session.CampaignID != g.Defs.Campaign.ID {
		return nil, fmt.Errorf("save belongs to campaign %q, not %q", sd.Session.CampaignID, g.Defs.Campaign.ID)
	}
	if err := g.Engine.Store.PutSession(ctx, sd.Session); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	for _, ch := range sd.Characters {
		if err := g.Engine.Store.PutCharacter(ctx, ch); err != nil {
			return nil, fmt.Errorf("restore character %s: %w", ch.ID, err)
		}
	}
	g.roller.rng = sd.RNG()
	g.SessionID = sd.Session.ID
	g.lastHints = nil
	return sd, nil
}

func (g *Game) savePath(name string) string {
	if name == "" {
		name = "quicksave"
	}
	return filepath.Join(g.SaveDir, name+".json")
}

func (g *Game) cmdSave(ctx context.Context, name string) []string {
	data, err := g.SaveBytes(ctx)
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	if err := os.MkdirAll(g.SaveDir, 0o755); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	path := g.savePath(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	return []string{fmt.Sprintf("Game saved to %s.", strings.TrimSuffix(filepath.Base(path), ".json"))}
}

func (g *Game) cmdLoad(ctx context.Context, name string) []string {
	path := g.savePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}
	sd, err := g.LoadBytes(ctx, data)
	if err != nil {
		return []string{fmt.Sprintf("Load failed: %v", err)}
	}
	out := []string{fmt.Sprintf("Game loaded from %s (turn %d).", strings.TrimSuffix(filepath.Base(path), ".json"), sd.Session.TurnCount)}
	return append(out, g.Step(ctx, "look").Output...)
}

// HelpLines lists the playtest commands.
func HelpLines() []string {
	return []string{
		"System:",
		"  /save [name]   Save the session (default: quicksave)",
		"  /load [name]   Load a session (default: quicksave)",
		"  /state         Dump the session, characters and dice",
		"  /trace         Toggle effect and event trace output",
		"  /help          Show this help",
		"  /quit          Exit",
		"",
		"Story:",
		"  look (l)                          Describe the current node",
		"  choose <n|text> (c, go)           Take a choice",
		"  hints (h)                         List hints for the active character",
		"  follow|ignore|oppose <n|hint>     Respond to a hint",
		"  complete <interaction> <outcome>  Finish an interaction: good, neutral or bad",
		"  effects <interaction>             Show cascade effects on an interaction",
		"  bluff <type> <target>             flex, feign_weakness, scout or intimidate",
		"  duel <target> <stat>              Hidden-stat roll-off",
		"  events (roll)                     Check for a random event",
		"  wait (z)                          Complete the node and let a turn pass",
		"  turn (next)                       Hand the turn to the next player",
		"  stats (i)                         Show the active character",
		"  again (g)                         Repeat the last command",
	}
}

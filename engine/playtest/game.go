// Package playtest drives one local session from typed commands. Both the
// plain CLI and the TUI sit on top of Game.
package playtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/nathoo/lorecore/engine"
	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/store/memory"
	"github.com/nathoo/lorecore/types"
)

// roller forwards to a replaceable generator so a loaded save can resume
// its dice sequence under an engine that was built earlier.
type roller struct {
	rng *dice.RNG
}

func (r *roller) Roll(sides int) int { return r.rng.Roll(sides) }
func (r *roller) Percent() float64   { return r.rng.Percent() }
func (r *roller) Intn(n int) int     { return r.rng.Intn(n) }

// Game is a playtest session over an in-memory store.
type Game struct {
	Engine    *engine.Engine
	Defs      *state.Defs
	SessionID string
	SaveDir   string
	Trace     bool

	roller    *roller
	lastHints []types.HintDef
}

// New seeds a memory store with defs and starts a session with every
// campaign character in definition order.
func New(ctx context.Context, defs *state.Defs, seed int64) (*Game, error) {
	st := memory.New()
	if err := st.SeedCampaign(ctx, defs); err != nil {
		return nil, fmt.Errorf("seed campaign: %w", err)
	}
	r := &roller{rng: dice.NewRNG(seed)}
	eng := engine.New(st, nil, r)

	var players []string
	for _, ch := range defs.Characters {
		p := playerOf(ch)
		if !slices.Contains(players, p) {
			players = append(players, p)
		}
	}
	rec, err := eng.StartSession(ctx, defs.Campaign.ID, players)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	home, _ := os.UserHomeDir()
	return &Game{
		Engine:    eng,
		Defs:      defs,
		SessionID: rec.ID,
		SaveDir:   filepath.Join(home, ".lorecore", "saves"),
		roller:    r,
	}, nil
}

func playerOf(ch types.Character) string {
	if ch.PlayerID != "" {
		return ch.PlayerID
	}
	return ch.ID
}

// Record returns the stored session.
func (g *Game) Record(ctx context.Context) (types.SessionRecord, error) {
	return g.Engine.Store.Session(ctx, g.SessionID)
}

// Active returns the character whose player holds the turn. With no turn
// holder the first campaign character acts.
func (g *Game) Active(ctx context.Context) (types.Character, error) {
	rec, err := g.Record(ctx)
	if err != nil {
		return types.Character{}, err
	}
	for _, def := range g.Defs.Characters {
		if playerOf(def) == rec.CurrentTurnPlayerID {
			return g.Engine.Store.Character(ctx, def.ID)
		}
	}
	if len(g.Defs.Characters) == 0 {
		return types.Character{}, fmt.Errorf("campaign %s has no characters", g.Defs.Campaign.ID)
	}
	return g.Engine.Store.Character(ctx, g.Defs.Characters[0].ID)
}

// Characters returns the stored characters in definition order.
func (g *Game) Characters(ctx context.Context) ([]types.Character, error) {
	out := make([]types.Character, 0, len(g.Defs.Characters))
	for _, def := range g.Defs.Characters {
		ch, err := g.Engine.Store.Character(ctx, def.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// findCharacter matches an id or display name, ignoring case.
func (g *Game) findCharacter(ctx context.Context, ref string) (types.Character, bool) {
	chars, err := g.Characters(ctx)
	if err != nil {
		return types.Character{}, false
	}
	for _, ch := range chars {
		if strings.EqualFold(ch.ID, ref) || strings.EqualFold(ch.Name, ref) {
			return ch, true
		}
	}
	return types.Character{}, false
}

func displayName(ch types.Character) string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ID
}

// NodeDisplayName derives a readable name from a node id:
// "far_bank" -> "Far Bank".
func NodeDisplayName(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Status is what a front end shows outside the narrative.
type Status struct {
	Node      string
	Character string
	XP        int
	Turn      int
	Version   int64
}

// Status summarizes the session for a status bar.
func (g *Game) Status(ctx context.Context) Status {
	rec, err := g.Record(ctx)
	if err != nil {
		return Status{}
	}
	st := Status{Node: NodeDisplayName(rec.CurrentNodeID), Turn: rec.TurnCount, Version: rec.Version}
	if n, ok := g.Defs.Nodes[rec.CurrentNodeID]; ok && n.Title != "" {
		st.Node = n.Title
	}
	if ch, err := g.Active(ctx); err == nil {
		st.Character = displayName(ch)
		st.XP = ch.XP
	}
	return st
}

// StateLines dumps the session and characters for /state.
func (g *Game) StateLines(ctx context.Context) []string {
	rec, err := g.Record(ctx)
	if err != nil {
		return []string{fmt.Sprintf("State unavailable: %v", err)}
	}
	lines := []string{
		fmt.Sprintf("Session: %s (v%d, %s)", rec.ID, rec.Version, rec.Status),
		fmt.Sprintf("Node: %s", rec.CurrentNodeID),
		fmt.Sprintf("Turn: %d, player %s of %v", rec.TurnCount, rec.CurrentTurnPlayerID, rec.TurnOrder),
	}
	if len(rec.StoryFlags) > 0 {
		keys := make([]string, 0, len(rec.StoryFlags))
		for k := range rec.StoryFlags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, rec.StoryFlags[k]))
		}
		lines = append(lines, "Flags: "+strings.Join(parts, ", "))
	}
	if len(rec.UnlockedPaths) > 0 {
		lines = append(lines, fmt.Sprintf("Unlocked: %v", rec.UnlockedPaths))
	}
	if len(rec.CompletedInteractions) > 0 {
		parts := make([]string, 0, len(rec.CompletedInteractions))
		for _, ci := range rec.CompletedInteractions {
			parts = append(parts, ci.InteractionID+":"+string(ci.Outcome))
		}
		lines = append(lines, "Interactions: "+strings.Join(parts, ", "))
	}
	chars, err := g.Characters(ctx)
	if err != nil {
		return append(lines, fmt.Sprintf("Characters unavailable: %v", err))
	}
	for _, ch := range chars {
		lines = append(lines, fmt.Sprintf("%s: xp %d, stats %s, inventory %v", ch.ID, ch.XP, formatStats(ch.Stats), ch.Inventory))
	}
	lines = append(lines, fmt.Sprintf("RNG: seed %d, position %d", g.roller.rng.Seed(), g.roller.rng.Position()))
	return lines
}

func formatStats(stats map[string]int) string {
	names := make([]string, 0, len(stats))
	for k := range stats {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+" "+strconv.Itoa(stats[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

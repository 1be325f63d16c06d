// Package combat resolves encounters and stat bluffs with hidden-stat rolls.
// Raw stat values never leave this package; a successful scout only yields
// a qualitative description.
package combat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/keylock"
	"github.com/nathoo/lorecore/types"
)

var (
	ErrInvalidTransition = errors.New("invalid combat transition")
	ErrUnknownEncounter  = errors.New("unknown combat encounter")
	ErrUnknownBluff      = errors.New("unknown bluff type")
	ErrNotParticipant    = errors.New("not a participant")
)

// Transition moves an encounter along pending -> active -> resolved.
// ResolvedAt is set on entering resolved and never again.
func Transition(enc *types.CombatEncounter, to types.CombatStatus, now time.Time) error {
	switch {
	case enc.Status == types.CombatPending && to == types.CombatActive:
	case enc.Status == types.CombatActive && to == types.CombatResolved:
		t := now
		enc.ResolvedAt = &t
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, enc.Status, to)
	}
	enc.Status = to
	return nil
}

// AllReady reports whether every participant is ready. An encounter with no
// participants is never ready.
func AllReady(enc types.CombatEncounter) bool {
	if len(enc.Participants) == 0 {
		return false
	}
	for _, p := range enc.Participants {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// ParseCombatType validates a combat type name.
func ParseCombatType(s string) (types.CombatType, error) {
	switch t := types.CombatType(s); t {
	case types.CombatPvP, types.CombatPvE, types.CombatDuel:
		return t, nil
	}
	return "", fmt.Errorf("invalid combat type %q", s)
}

// --- bluffs -----------------------------------------------------------------

// ScoutableStats are the stats a successful scout can reveal.
var ScoutableStats = []string{"strength", "agility", "magic"}

var scoutHints = map[string][3]string{
	"strength": {
		"Their grip looks soft; they avoid heavy lifting.",
		"Steady shoulders. They could hold their own in a scuffle.",
		"Corded muscle under the sleeves; they hit hard.",
	},
	"agility": {
		"They move stiffly and favour one leg.",
		"Light on their feet, though not remarkably so.",
		"Every step is balanced; they could dodge an arrow.",
	},
	"magic": {
		"No trace of the arcane clings to them.",
		"A faint hum of power, kept well in check.",
		"The air bends around them; raw power barely contained.",
	},
}

// ScoutHint maps a true stat value to its qualitative tier description.
func ScoutHint(stat string, value int) string {
	tiers, ok := scoutHints[stat]
	if !ok {
		return "You can't read anything useful."
	}
	switch {
	case value <= 3:
		return tiers[0]
	case value <= 6:
		return tiers[1]
	default:
		return tiers[2]
	}
}

// bluffRule returns the stat a bluff rolls with and its difficulty.
func bluffRule(t types.BluffType, target map[string]int) (string, int, error) {
	switch t {
	case types.BluffFlex:
		return "charisma", 5, nil
	case types.BluffFeignWeakness:
		return "charisma", 6, nil
	case types.BluffIntimidate:
		return "charisma", state.StatOrDefault(target, "wisdom"), nil
	case types.BluffScout:
		return "perception", state.StatOrDefault(target, "stealth"), nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownBluff, t)
}

// AttemptBluff rolls stat + d6 against the bluff's difficulty. Any stat a
// character has never had set, on either side, counts as state.DefaultStat.
func AttemptBluff(actorID, targetID string, t types.BluffType, actorStats, targetStats map[string]int, roller dice.Roller) (types.BluffAttempt, error) {
	stat, difficulty, err := bluffRule(t, targetStats)
	if err != nil {
		return types.BluffAttempt{}, err
	}
	roll := state.StatOrDefault(actorStats, stat) + roller.Roll(6)
	b := types.BluffAttempt{
		ActorID:     actorID,
		TargetID:    targetID,
		AttemptType: t,
		StatUsed:    stat,
		RollValue:   roll,
		Difficulty:  difficulty,
		Success:     roll >= difficulty,
	}
	if b.Success && t == types.BluffScout {
		revealed := ScoutableStats[roller.Intn(len(ScoutableStats))]
		b.RevealedInfo = &types.RevealedInfo{
			Stat: revealed,
			Hint: ScoutHint(revealed, state.StatOrDefault(targetStats, revealed)),
		}
	}
	return b, nil
}

// DuelResult is a hidden-stat roll-off. Only the totals are exposed.
type DuelResult struct {
	Stat         string
	AttackerRoll int
	DefenderRoll int
	AttackerWins bool
}

// Duel rolls stat + d6 for both sides. Ties go to the defender.
func Duel(stat string, attacker, defender map[string]int, roller dice.Roller) DuelResult {
	a := state.StatOrDefault(attacker, stat) + roller.Roll(6)
	d := state.StatOrDefault(defender, stat) + roller.Roll(6)
	return DuelResult{Stat: stat, AttackerRoll: a, DefenderRoll: d, AttackerWins: a > d}
}

// --- resolver ---------------------------------------------------------------

// Store is what the resolver needs from persistence.
type Store interface {
	CreateEncounter(ctx context.Context, enc types.CombatEncounter) error
	Encounter(ctx context.Context, encounterID string) (types.CombatEncounter, error)
	UpdateEncounter(ctx context.Context, enc types.CombatEncounter) error
	AppendBluff(ctx context.Context, b types.BluffAttempt) error
	Character(ctx context.Context, characterID string) (types.Character, error)
}

// Resolver runs encounters and bluffs against the store.
type Resolver struct {
	Store Store
	RNG   dice.Roller
	Now   func() time.Time

	locks keylock.Set
}

func New(st Store, rng dice.Roller) *Resolver {
	return &Resolver{Store: st, RNG: rng, Now: time.Now}
}

// StartCombat creates a pending encounter.
func (r *Resolver) StartCombat(ctx context.Context, sessionID, nodeID string, t types.CombatType, participants []types.CombatParticipant, statsHidden bool) (types.CombatEncounter, error) {
	if len(participants) == 0 {
		return types.CombatEncounter{}, fmt.Errorf("combat needs at least one participant")
	}
	enc := types.CombatEncounter{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		NodeID:       nodeID,
		CombatType:   t,
		Participants: append([]types.CombatParticipant(nil), participants...),
		StatsHidden:  statsHidden,
		Status:       types.CombatPending,
		CreatedAt:    r.now(),
	}
	if err := r.Store.CreateEncounter(ctx, enc); err != nil {
		return types.CombatEncounter{}, fmt.Errorf("create encounter: %w", err)
	}
	return enc, nil
}

func (r *Resolver) load(ctx context.Context, id string) (types.CombatEncounter, error) {
	enc, err := r.Store.Encounter(ctx, id)
	if err != nil {
		return types.CombatEncounter{}, fmt.Errorf("%w %s: %w", ErrUnknownEncounter, id, err)
	}
	return enc, nil
}

// update applies fn to the stored encounter and writes it back. Updates to
// one encounter are serialized, so a transition is checked against the
// state the previous writer left.
func (r *Resolver) update(ctx context.Context, encounterID string, fn func(enc *types.CombatEncounter) error) (types.CombatEncounter, error) {
	unlock := r.locks.Lock(encounterID)
	defer unlock()

	enc, err := r.load(ctx, encounterID)
	if err != nil {
		return enc, err
	}
	if err := fn(&enc); err != nil {
		return enc, err
	}
	if err := r.Store.UpdateEncounter(ctx, enc); err != nil {
		return enc, fmt.Errorf("update encounter: %w", err)
	}
	return enc, nil
}

// SetReady marks a participant ready. A pending encounter becomes active
// once every participant is ready.
func (r *Resolver) SetReady(ctx context.Context, encounterID, characterID string) (types.CombatEncounter, error) {
	return r.update(ctx, encounterID, func(enc *types.CombatEncounter) error {
		if enc.Status != types.CombatPending {
			return fmt.Errorf("%w: encounter is %s", ErrInvalidTransition, enc.Status)
		}
		found := false
		for i := range enc.Participants {
			if enc.Participants[i].CharacterID == characterID {
				enc.Participants[i].IsReady = true
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: character %s in encounter %s", ErrNotParticipant, characterID, encounterID)
		}
		if AllReady(*enc) {
			return Transition(enc, types.CombatActive, r.now())
		}
		return nil
	})
}

// Activate moves a pending encounter to active without waiting for ready
// checks.
func (r *Resolver) Activate(ctx context.Context, encounterID string) (types.CombatEncounter, error) {
	return r.update(ctx, encounterID, func(enc *types.CombatEncounter) error {
		return Transition(enc, types.CombatActive, r.now())
	})
}

// ResolveCombat records the outcome and closes an active encounter.
func (r *Resolver) ResolveCombat(ctx context.Context, encounterID string, outcome types.CombatOutcome) (types.CombatEncounter, error) {
	return r.update(ctx, encounterID, func(enc *types.CombatEncounter) error {
		return resolve(enc, outcome, r.now())
	})
}

func resolve(enc *types.CombatEncounter, outcome types.CombatOutcome, now time.Time) error {
	if err := Transition(enc, types.CombatResolved, now); err != nil {
		return err
	}
	enc.Outcome = &outcome
	return nil
}

// Bluff loads both characters, resolves the attempt and appends it to the
// bluff log.
func (r *Resolver) Bluff(ctx context.Context, sessionID, actorID, targetID string, t types.BluffType) (types.BluffAttempt, error) {
	actor, err := r.Store.Character(ctx, actorID)
	if err != nil {
		return types.BluffAttempt{}, fmt.Errorf("load actor: %w", err)
	}
	target, err := r.Store.Character(ctx, targetID)
	if err != nil {
		return types.BluffAttempt{}, fmt.Errorf("load target: %w", err)
	}
	b, err := AttemptBluff(actorID, targetID, t, actor.Stats, target.Stats, r.RNG)
	if err != nil {
		return types.BluffAttempt{}, err
	}
	b.ID = uuid.NewString()
	b.SessionID = sessionID
	b.CreatedAt = r.now()
	if err := r.Store.AppendBluff(ctx, b); err != nil {
		return b, fmt.Errorf("append bluff: %w", err)
	}
	return b, nil
}

// DuelEncounter rolls a duel between the first two participants of an
// active encounter and resolves it.
func (r *Resolver) DuelEncounter(ctx context.Context, encounterID, stat string) (types.CombatEncounter, DuelResult, error) {
	var res DuelResult
	enc, err := r.update(ctx, encounterID, func(enc *types.CombatEncounter) error {
		if enc.Status != types.CombatActive {
			return fmt.Errorf("%w: encounter is %s", ErrInvalidTransition, enc.Status)
		}
		if len(enc.Participants) < 2 {
			return fmt.Errorf("duel needs two participants")
		}
		attacker, err := r.Store.Character(ctx, enc.Participants[0].CharacterID)
		if err != nil {
			return fmt.Errorf("load attacker: %w", err)
		}
		defender, err := r.Store.Character(ctx, enc.Participants[1].CharacterID)
		if err != nil {
			return fmt.Errorf("load defender: %w", err)
		}
		res = Duel(stat, attacker.Stats, defender.Stats, r.RNG)
		winner, loser := defender, attacker
		if res.AttackerWins {
			winner, loser = attacker, defender
		}
		return resolve(enc, types.CombatOutcome{
			WinnerID: winner.ID,
			Summary:  fmt.Sprintf("%s bests %s in a contest of %s.", displayName(winner), displayName(loser), stat),
		}, r.now())
	})
	if err != nil {
		return enc, DuelResult{}, err
	}
	return enc, res, nil
}

func displayName(ch types.Character) string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ID
}

func (r *Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

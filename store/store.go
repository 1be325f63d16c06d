// Package store defines the persistence collaborator the rule engine reads
// definitions from, appends logs to, and keeps session records in.
package store

import (
	"context"
	"errors"

	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Definitions are the campaign-authored records. They are read-only to the
// engine once seeded.
type Definitions interface {
	SeedCampaign(ctx context.Context, defs *state.Defs) error
	Campaign(ctx context.Context, campaignID string) (types.Campaign, error)
	Nodes(ctx context.Context, campaignID string) (map[string]types.StoryNode, error)
	Triggers(ctx context.Context, campaignID string) ([]types.TriggerDef, error)
	CascadeRules(ctx context.Context, campaignID string) ([]types.CascadeRule, error)
	Hints(ctx context.Context, campaignID string) ([]types.HintDef, error)
	Hint(ctx context.Context, hintID string) (types.HintDef, error)
	HintChains(ctx context.Context, campaignID string) ([]types.HintChain, error)
	RandomEvents(ctx context.Context, campaignID string) ([]types.RandomEvent, error)
}

// Logs are the append-only evidence tables. Records are never rewritten.
type Logs interface {
	FiredTriggerIDs(ctx context.Context, sessionID string) (map[string]bool, error)
	// AppendTriggerFiring is idempotent per (session, trigger): a second
	// firing of the same trigger in a session is ignored.
	AppendTriggerFiring(ctx context.Context, f types.TriggerFiring) error
	AppendCascadeLog(ctx context.Context, l types.CascadeLog) error
	CascadeLogs(ctx context.Context, sessionID string) ([]types.CascadeLog, error)
	AppendHintResponse(ctx context.Context, r types.HintResponseRecord) error
	// HintResponses returns records oldest first.
	HintResponses(ctx context.Context, sessionID, characterID string) ([]types.HintResponseRecord, error)
	AppendRandomEventLog(ctx context.Context, l types.RandomEventLog) error
	RandomEventLogs(ctx context.Context, sessionID string) ([]types.RandomEventLog, error)
	AppendBluff(ctx context.Context, b types.BluffAttempt) error
	Bluffs(ctx context.Context, sessionID string) ([]types.BluffAttempt, error)
}

// Sessions hold the mutable shared records.
type Sessions interface {
	Session(ctx context.Context, sessionID string) (types.SessionRecord, error)
	PutSession(ctx context.Context, rec types.SessionRecord) error
	Character(ctx context.Context, characterID string) (types.Character, error)
	PutCharacter(ctx context.Context, ch types.Character) error
	CreateEncounter(ctx context.Context, enc types.CombatEncounter) error
	Encounter(ctx context.Context, encounterID string) (types.CombatEncounter, error)
	UpdateEncounter(ctx context.Context, enc types.CombatEncounter) error
}

// Store is the full collaborator.
type Store interface {
	Definitions
	Logs
	Sessions
}

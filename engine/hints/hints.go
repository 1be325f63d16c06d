// Package hints filters conditional hints, records player responses and
// derives response streaks and chain progress from the response log.
package hints

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/engine/conditions"
	"github.com/nathoo/lorecore/types"
)

var (
	ErrUnknownHint     = errors.New("unknown hint")
	ErrInvalidResponse = errors.New("invalid hint response")
)

// Active returns the hints eligible at nodeID for s: active, global or at
// that node, and with every condition met. Higher priority comes first;
// ties keep definition order.
func Active(defs []types.HintDef, nodeID string, s *types.SessionState) []types.HintDef {
	var out []types.HintDef
	for _, h := range defs {
		if !h.IsActive {
			continue
		}
		if h.NodeID != "" && h.NodeID != nodeID {
			continue
		}
		if !conditions.EvalHint(h.Conditions, s) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// ParseResponse validates a response name. "follow", "ignore" and "oppose"
// are accepted as shorthands.
func ParseResponse(s string) (types.HintResponse, error) {
	switch s {
	case "followed", "follow":
		return types.ResponseFollowed, nil
	case "ignored", "ignore":
		return types.ResponseIgnored, nil
	case "opposite", "oppose":
		return types.ResponseOpposite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResponse, s)
}

// Outcome selects the hint's payload for a response.
func Outcome(h types.HintDef, r types.HintResponse) ([]types.Effect, error) {
	switch r {
	case types.ResponseFollowed:
		return h.FollowOutcome, nil
	case types.ResponseIgnored:
		return h.IgnoreOutcome, nil
	case types.ResponseOpposite:
		return h.OppositeOutcome, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidResponse, r)
}

// Streaks scans records (oldest first) from the newest backward. The follow
// and ignore streaks are trailing runs; the opposite count is a total.
func Streaks(records []types.HintResponseRecord) types.HintStreaks {
	var st types.HintStreaks
	for _, r := range records {
		if r.Response == types.ResponseOpposite {
			st.OppositeCount++
		}
	}
	st.FollowStreak = trailing(records, types.ResponseFollowed)
	st.IgnoreStreak = trailing(records, types.ResponseIgnored)
	return st
}

func trailing(records []types.HintResponseRecord, want types.HintResponse) int {
	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Response != want {
			break
		}
		n++
	}
	return n
}

// ChainStatus is a character's progress through a hint chain.
type ChainStatus struct {
	Chain      types.HintChain
	Responded  []string
	NextHintID string
	Completed  bool
}

// ChainProgress reports which of a chain's hints have any response in
// records. A chain is complete once every hint has one.
func ChainProgress(chain types.HintChain, records []types.HintResponseRecord) ChainStatus {
	seen := map[string]bool{}
	for _, r := range records {
		seen[r.HintID] = true
	}
	st := ChainStatus{Chain: chain}
	for _, id := range chain.HintIDs {
		if seen[id] {
			st.Responded = append(st.Responded, id)
		} else if st.NextHintID == "" {
			st.NextHintID = id
		}
	}
	st.Completed = len(chain.HintIDs) > 0 && len(st.Responded) == len(chain.HintIDs)
	return st
}

// ChainsContaining returns the chains that list hintID.
func ChainsContaining(chains []types.HintChain, hintID string) []types.HintChain {
	var out []types.HintChain
	for _, c := range chains {
		if slices.Contains(c.HintIDs, hintID) {
			out = append(out, c)
		}
	}
	return out
}

// CompletionFlag is the story flag set once a chain's reward is granted.
func CompletionFlag(chainID string) string {
	return "chain_" + chainID + "_complete"
}

// Store is what the hint engine needs from persistence.
type Store interface {
	Hints(ctx context.Context, campaignID string) ([]types.HintDef, error)
	Hint(ctx context.Context, hintID string) (types.HintDef, error)
	HintChains(ctx context.Context, campaignID string) ([]types.HintChain, error)
	AppendHintResponse(ctx context.Context, r types.HintResponseRecord) error
	HintResponses(ctx context.Context, sessionID, characterID string) ([]types.HintResponseRecord, error)
}

// Engine serves hint operations against stored definitions and logs.
type Engine struct {
	Store Store
	Now   func() time.Time
}

func New(st Store) *Engine {
	return &Engine{Store: st, Now: time.Now}
}

// ActiveHints loads a campaign's hints and filters them for nodeID.
func (e *Engine) ActiveHints(ctx context.Context, campaignID, nodeID string, s *types.SessionState) ([]types.HintDef, error) {
	defs, err := e.Store.Hints(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load hints: %w", err)
	}
	return Active(defs, nodeID, s), nil
}

// Respond records a response and returns it with the selected outcome
// embedded. The caller applies the outcome to state.
func (e *Engine) Respond(ctx context.Context, sessionID, hintID, characterID string, r types.HintResponse) (types.HintResponseRecord, error) {
	h, err := e.Store.Hint(ctx, hintID)
	if err != nil {
		return types.HintResponseRecord{}, fmt.Errorf("%w %s: %w", ErrUnknownHint, hintID, err)
	}
	effs, err := Outcome(h, r)
	if err != nil {
		return types.HintResponseRecord{}, err
	}
	rec := types.HintResponseRecord{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		HintID:         hintID,
		CharacterID:    characterID,
		Response:       r,
		AppliedOutcome: effs,
		Context: map[string]any{
			"outcome":        codec.EncodeOutcome(effs),
			"hint_type":      h.HintType,
			"is_red_herring": h.IsRedHerring,
		},
		RespondedAt: e.now(),
	}
	if err := e.Store.AppendHintResponse(ctx, rec); err != nil {
		return rec, fmt.Errorf("append hint response: %w", err)
	}
	return rec, nil
}

// Streaks derives a character's streaks from the stored log.
func (e *Engine) Streaks(ctx context.Context, sessionID, characterID string) (types.HintStreaks, error) {
	records, err := e.Store.HintResponses(ctx, sessionID, characterID)
	if err != nil {
		return types.HintStreaks{}, fmt.Errorf("load hint responses: %w", err)
	}
	return Streaks(records), nil
}

// Chains reports progress through every chain in the campaign.
func (e *Engine) Chains(ctx context.Context, campaignID, sessionID, characterID string) ([]ChainStatus, error) {
	chains, err := e.Store.HintChains(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load hint chains: %w", err)
	}
	records, err := e.Store.HintResponses(ctx, sessionID, characterID)
	if err != nil {
		return nil, fmt.Errorf("load hint responses: %w", err)
	}
	out := make([]ChainStatus, 0, len(chains))
	for _, c := range chains {
		out = append(out, ChainProgress(c, records))
	}
	return out, nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Package memory provides an in-process Store used by the playtest front
// ends, the server when no database is configured, and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/store"
	"github.com/nathoo/lorecore/types"
)

type campaignDefs struct {
	campaign     types.Campaign
	nodes        map[string]types.StoryNode
	triggers     []types.TriggerDef
	cascadeRules []types.CascadeRule
	hints        []types.HintDef
	hintChains   []types.HintChain
	randomEvents []types.RandomEvent
}

// Store keeps every record in maps guarded by one RWMutex. Reads return
// copies so callers cannot mutate stored state.
type Store struct {
	mu sync.RWMutex

	campaigns  map[string]*campaignDefs
	hintIndex  map[string]types.HintDef
	sessions   map[string]types.SessionRecord
	characters map[string]types.Character
	encounters map[string]types.CombatEncounter

	firings   map[string]map[string]types.TriggerFiring
	cascades  map[string][]types.CascadeLog
	responses map[string][]types.HintResponseRecord
	events    map[string][]types.RandomEventLog
	bluffs    map[string][]types.BluffAttempt
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns:  map[string]*campaignDefs{},
		hintIndex:  map[string]types.HintDef{},
		sessions:   map[string]types.SessionRecord{},
		characters: map[string]types.Character{},
		encounters: map[string]types.CombatEncounter{},
		firings:    map[string]map[string]types.TriggerFiring{},
		cascades:   map[string][]types.CascadeLog{},
		responses:  map[string][]types.HintResponseRecord{},
		events:     map[string][]types.RandomEventLog{},
		bluffs:     map[string][]types.BluffAttempt{},
	}
}

// SeedCampaign replaces a campaign's definitions and upserts its
// characters.
func (s *Store) SeedCampaign(ctx context.Context, defs *state.Defs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if defs == nil || defs.Campaign.ID == "" {
		return fmt.Errorf("campaign id is required")
	}
	id := defs.Campaign.ID
	cd := &campaignDefs{
		campaign:     defs.Campaign,
		nodes:        make(map[string]types.StoryNode, len(defs.Nodes)),
		triggers:     append([]types.TriggerDef(nil), defs.Triggers...),
		cascadeRules: append([]types.CascadeRule(nil), defs.CascadeRules...),
		hints:        append([]types.HintDef(nil), defs.Hints...),
		hintChains:   append([]types.HintChain(nil), defs.HintChains...),
		randomEvents: append([]types.RandomEvent(nil), defs.RandomEvents...),
	}
	for k, n := range defs.Nodes {
		cd.nodes[k] = n
	}
	for i := range cd.triggers {
		cd.triggers[i].CampaignID = id
	}
	for i := range cd.cascadeRules {
		cd.cascadeRules[i].CampaignID = id
	}
	for i := range cd.hints {
		cd.hints[i].CampaignID = id
	}
	for i := range cd.hintChains {
		cd.hintChains[i].CampaignID = id
	}
	for i := range cd.randomEvents {
		cd.randomEvents[i].CampaignID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.campaigns[id]; ok {
		for _, h := range old.hints {
			delete(s.hintIndex, h.ID)
		}
	}
	s.campaigns[id] = cd
	for _, h := range cd.hints {
		s.hintIndex[h.ID] = h
	}
	for _, ch := range defs.Characters {
		s.characters[ch.ID] = cloneCharacter(ch)
	}
	return nil
}

func (s *Store) defs(ctx context.Context, campaignID string) (*campaignDefs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cd, ok := s.campaigns[campaignID]
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, store.ErrNotFound)
	}
	return cd, nil
}

func (s *Store) Campaign(ctx context.Context, campaignID string) (types.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return types.Campaign{}, err
	}
	return cd.campaign, nil
}

func (s *Store) Nodes(ctx context.Context, campaignID string) (map[string]types.StoryNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.StoryNode, len(cd.nodes))
	for k, n := range cd.nodes {
		out[k] = n
	}
	return out, nil
}

func (s *Store) Triggers(ctx context.Context, campaignID string) ([]types.TriggerDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return append([]types.TriggerDef(nil), cd.triggers...), nil
}

func (s *Store) CascadeRules(ctx context.Context, campaignID string) ([]types.CascadeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return append([]types.CascadeRule(nil), cd.cascadeRules...), nil
}

func (s *Store) Hints(ctx context.Context, campaignID string) ([]types.HintDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return append([]types.HintDef(nil), cd.hints...), nil
}

func (s *Store) Hint(ctx context.Context, hintID string) (types.HintDef, error) {
	if err := ctx.Err(); err != nil {
		return types.HintDef{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hintIndex[hintID]
	if !ok {
		return types.HintDef{}, fmt.Errorf("hint %s: %w", hintID, store.ErrNotFound)
	}
	return h, nil
}

func (s *Store) HintChains(ctx context.Context, campaignID string) ([]types.HintChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return append([]types.HintChain(nil), cd.hintChains...), nil
}

func (s *Store) RandomEvents(ctx context.Context, campaignID string) ([]types.RandomEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, err := s.defs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return append([]types.RandomEvent(nil), cd.randomEvents...), nil
}

// --- logs -------------------------------------------------------------------

func (s *Store) FiredTriggerIDs(ctx context.Context, sessionID string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]bool{}
	for id := range s.firings[sessionID] {
		out[id] = true
	}
	return out, nil
}

func (s *Store) AppendTriggerFiring(ctx context.Context, f types.TriggerFiring) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bySession, ok := s.firings[f.SessionID]
	if !ok {
		bySession = map[string]types.TriggerFiring{}
		s.firings[f.SessionID] = bySession
	}
	if _, dup := bySession[f.TriggerID]; dup {
		return nil
	}
	bySession[f.TriggerID] = f
	return nil
}

func (s *Store) AppendCascadeLog(ctx context.Context, l types.CascadeLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascades[l.SessionID] = append(s.cascades[l.SessionID], l)
	return nil
}

func (s *Store) CascadeLogs(ctx context.Context, sessionID string) ([]types.CascadeLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.CascadeLog(nil), s.cascades[sessionID]...), nil
}

func (s *Store) AppendHintResponse(ctx context.Context, r types.HintResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.SessionID] = append(s.responses[r.SessionID], r)
	return nil
}

func (s *Store) HintResponses(ctx context.Context, sessionID, characterID string) ([]types.HintResponseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.HintResponseRecord
	for _, r := range s.responses[sessionID] {
		if characterID == "" || r.CharacterID == characterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) AppendRandomEventLog(ctx context.Context, l types.RandomEventLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[l.SessionID] = append(s.events[l.SessionID], l)
	return nil
}

func (s *Store) RandomEventLogs(ctx context.Context, sessionID string) ([]types.RandomEventLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.RandomEventLog(nil), s.events[sessionID]...), nil
}

func (s *Store) AppendBluff(ctx context.Context, b types.BluffAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bluffs[b.SessionID] = append(s.bluffs[b.SessionID], b)
	return nil
}

func (s *Store) Bluffs(ctx context.Context, sessionID string) ([]types.BluffAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.BluffAttempt(nil), s.bluffs[sessionID]...), nil
}

// --- sessions ---------------------------------------------------------------

func (s *Store) Session(ctx context.Context, sessionID string) (types.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.SessionRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return types.SessionRecord{}, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	return cloneSession(rec), nil
}

func (s *Store) PutSession(ctx context.Context, rec types.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = cloneSession(rec)
	return nil
}

func (s *Store) Character(ctx context.Context, characterID string) (types.Character, error) {
	if err := ctx.Err(); err != nil {
		return types.Character{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.characters[characterID]
	if !ok {
		return types.Character{}, fmt.Errorf("character %s: %w", characterID, store.ErrNotFound)
	}
	return cloneCharacter(ch), nil
}

func (s *Store) PutCharacter(ctx context.Context, ch types.Character) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch.ID == "" {
		return fmt.Errorf("character id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[ch.ID] = cloneCharacter(ch)
	return nil
}

func (s *Store) CreateEncounter(ctx context.Context, enc types.CombatEncounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.encounters[enc.ID]; ok {
		return fmt.Errorf("encounter %s already exists", enc.ID)
	}
	s.encounters[enc.ID] = cloneEncounter(enc)
	return nil
}

func (s *Store) Encounter(ctx context.Context, encounterID string) (types.CombatEncounter, error) {
	if err := ctx.Err(); err != nil {
		return types.CombatEncounter{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	enc, ok := s.encounters[encounterID]
	if !ok {
		return types.CombatEncounter{}, fmt.Errorf("encounter %s: %w", encounterID, store.ErrNotFound)
	}
	return cloneEncounter(enc), nil
}

func (s *Store) UpdateEncounter(ctx context.Context, enc types.CombatEncounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.encounters[enc.ID]; !ok {
		return fmt.Errorf("encounter %s: %w", enc.ID, store.ErrNotFound)
	}
	s.encounters[enc.ID] = cloneEncounter(enc)
	return nil
}

// Session records hold nested maps and slices of arbitrary flag values; a
// JSON round trip is the simplest deep copy that matches what the SQL store
// returns.
func cloneSession(rec types.SessionRecord) types.SessionRecord {
	var out types.SessionRecord
	data, err := json.Marshal(rec)
	if err != nil {
		return rec
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return rec
	}
	return out
}

func cloneCharacter(ch types.Character) types.Character {
	out := ch
	out.Stats = make(map[string]int, len(ch.Stats))
	for k, v := range ch.Stats {
		out.Stats[k] = v
	}
	out.Inventory = append([]string{}, ch.Inventory...)
	return out
}

func cloneEncounter(enc types.CombatEncounter) types.CombatEncounter {
	out := enc
	out.Participants = make([]types.CombatParticipant, len(enc.Participants))
	for i, p := range enc.Participants {
		p.VisibleEquipment = append([]string(nil), p.VisibleEquipment...)
		out.Participants[i] = p
	}
	if enc.Outcome != nil {
		o := *enc.Outcome
		out.Outcome = &o
	}
	if enc.ResolvedAt != nil {
		t := *enc.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nathoo/lorecore/keylock"
	"github.com/nathoo/lorecore/types"
)

// ErrEmptyTurnOrder is returned when a turn cannot advance because nobody
// is in the turn order.
var ErrEmptyTurnOrder = errors.New("turn order is empty")

// SessionStore is what the synchronizer needs from persistence.
type SessionStore interface {
	Session(ctx context.Context, sessionID string) (types.SessionRecord, error)
	PutSession(ctx context.Context, rec types.SessionRecord) error
}

// Synchronizer persists session records and announces every change on the
// session's feed.
type Synchronizer struct {
	Store    SessionStore
	Broker   Broker
	Presence *Presence
	Now      func() time.Time

	locks keylock.Set
}

func NewSynchronizer(st SessionStore, b Broker) *Synchronizer {
	return &Synchronizer{
		Store:    st,
		Broker:   b,
		Presence: NewPresence(),
		Now:      time.Now,
	}
}

func (s *Synchronizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Lock serializes read-modify-write cycles on one session within this
// process and returns the unlock func. Across processes turn advancement
// stays last-write-wins.
func (s *Synchronizer) Lock(sessionID string) func() {
	return s.locks.Lock(sessionID)
}

// Commit bumps the record's version, persists it and publishes an update.
// A failed publish is logged, not returned: the record is already durable.
func (s *Synchronizer) Commit(ctx context.Context, rec *types.SessionRecord, kind string, events []types.Event) error {
	rec.Version++
	rec.UpdatedAt = s.now()
	if err := s.Store.PutSession(ctx, *rec); err != nil {
		rec.Version--
		return fmt.Errorf("persist session %s: %w", rec.ID, err)
	}
	s.publish(ctx, s.updateFrom(rec, kind, events))
	return nil
}

func (s *Synchronizer) updateFrom(rec *types.SessionRecord, kind string, events []types.Event) Update {
	flags := make(map[string]any, len(rec.StoryFlags))
	for k, v := range rec.StoryFlags {
		flags[k] = v
	}
	u := Update{
		SessionID:           rec.ID,
		Kind:                kind,
		Version:             rec.Version,
		CurrentNodeID:       rec.CurrentNodeID,
		Location:            rec.Location,
		CurrentTurnPlayerID: rec.CurrentTurnPlayerID,
		TurnOrder:           append([]string(nil), rec.TurnOrder...),
		StoryFlags:          flags,
		Status:              rec.Status,
		Events:              events,
		At:                  rec.UpdatedAt,
	}
	if s.Presence != nil {
		u.Online = s.Presence.Online(rec.ID)
	}
	return u
}

func (s *Synchronizer) publish(ctx context.Context, u Update) {
	if s.Broker == nil {
		return
	}
	if err := s.Broker.Publish(ctx, u); err != nil {
		slog.WarnContext(ctx, "publish session update", "session", u.SessionID, "kind", u.Kind, "error", err)
		return
	}
	slog.DebugContext(ctx, "session update", "session", u.SessionID, "kind", u.Kind, "version", u.Version)
}

// NextTurn returns the player after current. A current player missing from
// the order hands the turn to the first player.
func NextTurn(order []string, current string) (string, error) {
	if len(order) == 0 {
		return "", ErrEmptyTurnOrder
	}
	i := slices.Index(order, current)
	if i < 0 {
		return order[0], nil
	}
	return order[(i+1)%len(order)], nil
}

// AdvanceTurn is the only mutation path for the current turn player.
func (s *Synchronizer) AdvanceTurn(ctx context.Context, sessionID string) (types.SessionRecord, error) {
	unlock := s.Lock(sessionID)
	defer unlock()
	rec, err := s.Store.Session(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	next, err := NextTurn(rec.TurnOrder, rec.CurrentTurnPlayerID)
	if err != nil {
		return rec, err
	}
	rec.CurrentTurnPlayerID = next
	if err := s.Commit(ctx, &rec, KindTurn, nil); err != nil {
		return rec, err
	}
	return rec, nil
}

// SetNode moves the session to another story node.
func (s *Synchronizer) SetNode(ctx context.Context, sessionID, nodeID, location string) (types.SessionRecord, error) {
	unlock := s.Lock(sessionID)
	defer unlock()
	rec, err := s.Store.Session(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	rec.CurrentNodeID = nodeID
	rec.Location = location
	if err := s.Commit(ctx, &rec, KindNode, nil); err != nil {
		return rec, err
	}
	return rec, nil
}

// Join appends a player to the turn order. The first player to join takes
// the turn and activates a waiting session.
func (s *Synchronizer) Join(ctx context.Context, sessionID, playerID string) (types.SessionRecord, error) {
	unlock := s.Lock(sessionID)
	defer unlock()
	rec, err := s.Store.Session(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	if slices.Contains(rec.TurnOrder, playerID) {
		return rec, nil
	}
	rec.TurnOrder = append(rec.TurnOrder, playerID)
	if rec.CurrentTurnPlayerID == "" {
		rec.CurrentTurnPlayerID = playerID
	}
	if rec.Status == types.SessionWaiting || rec.Status == "" {
		rec.Status = types.SessionActive
	}
	if err := s.Commit(ctx, &rec, KindJoin, []types.Event{{Type: "player_joined", Data: map[string]any{"player": playerID}}}); err != nil {
		return rec, err
	}
	return rec, nil
}

// Leave removes a player. If it was their turn, the player after them
// takes it.
func (s *Synchronizer) Leave(ctx context.Context, sessionID, playerID string) (types.SessionRecord, error) {
	unlock := s.Lock(sessionID)
	defer unlock()
	rec, err := s.Store.Session(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	i := slices.Index(rec.TurnOrder, playerID)
	if i < 0 {
		return rec, nil
	}
	rec.TurnOrder = slices.Delete(rec.TurnOrder, i, i+1)
	if rec.CurrentTurnPlayerID == playerID {
		if len(rec.TurnOrder) == 0 {
			rec.CurrentTurnPlayerID = ""
		} else {
			rec.CurrentTurnPlayerID = rec.TurnOrder[i%len(rec.TurnOrder)]
		}
	}
	if s.Presence != nil {
		s.Presence.Untrack(sessionID, playerID)
	}
	if err := s.Commit(ctx, &rec, KindLeave, []types.Event{{Type: "player_left", Data: map[string]any{"player": playerID}}}); err != nil {
		return rec, err
	}
	return rec, nil
}

// Track marks a player online and announces it when they were offline.
func (s *Synchronizer) Track(ctx context.Context, sessionID, playerID string) {
	if s.Presence.Track(sessionID, playerID) {
		s.publishPresence(ctx, sessionID)
	}
}

// Heartbeat refreshes a player's presence.
func (s *Synchronizer) Heartbeat(ctx context.Context, sessionID, playerID string) {
	if s.Presence.Heartbeat(sessionID, playerID) {
		s.publishPresence(ctx, sessionID)
	}
}

// Untrack marks a player offline.
func (s *Synchronizer) Untrack(ctx context.Context, sessionID, playerID string) {
	if s.Presence.Untrack(sessionID, playerID) {
		s.publishPresence(ctx, sessionID)
	}
}

// Sweep expires silent players and announces each affected session.
func (s *Synchronizer) Sweep(ctx context.Context, ttl time.Duration) {
	for sessionID, players := range s.Presence.Sweep(ttl) {
		slog.InfoContext(ctx, "presence expired", "session", sessionID, "players", players)
		s.publishPresence(ctx, sessionID)
	}
}

func (s *Synchronizer) publishPresence(ctx context.Context, sessionID string) {
	s.publish(ctx, Update{
		SessionID: sessionID,
		Kind:      KindPresence,
		Online:    s.Presence.Online(sessionID),
		At:        s.now(),
	})
}

// Subscribe opens a session feed.
func (s *Synchronizer) Subscribe(ctx context.Context, sessionID string) (<-chan Update, func(), error) {
	return s.Broker.Subscribe(ctx, sessionID)
}

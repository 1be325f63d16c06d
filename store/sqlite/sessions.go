package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nathoo/lorecore/store"
	"github.com/nathoo/lorecore/types"
)

// Session records are stored whole as JSON. The indexed columns exist for
// operators browsing the database.
func (s *Store) Session(ctx context.Context, sessionID string) (types.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.SessionRecord{}, err
	}
	var raw string
	var updated int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT record_json, updated_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&raw, &updated)
	if err != nil {
		return types.SessionRecord{}, notFound(err, "session", sessionID)
	}
	var rec types.SessionRecord
	if err := unmarshalJSON(raw, &rec); err != nil {
		return types.SessionRecord{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

func (s *Store) PutSession(ctx context.Context, rec types.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("session id is required")
	}
	raw, err := marshalJSON(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (id, campaign_id, status, version, record_json, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET campaign_id = excluded.campaign_id, status = excluded.status,
		   version = excluded.version, record_json = excluded.record_json, updated_at = excluded.updated_at`,
		rec.ID, rec.CampaignID, string(rec.Status), rec.Version, raw, toMillis(rec.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Character(ctx context.Context, characterID string) (types.Character, error) {
	if err := ctx.Err(); err != nil {
		return types.Character{}, err
	}
	var ch types.Character
	var stats, inv string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, player_id, stats_json, inventory_json, xp FROM characters WHERE id = ?`, characterID,
	).Scan(&ch.ID, &ch.Name, &ch.PlayerID, &stats, &inv, &ch.XP)
	if err != nil {
		return types.Character{}, notFound(err, "character", characterID)
	}
	if err := unmarshalJSON(stats, &ch.Stats); err != nil {
		return types.Character{}, fmt.Errorf("decode character %s stats: %w", characterID, err)
	}
	if err := unmarshalJSON(inv, &ch.Inventory); err != nil {
		return types.Character{}, fmt.Errorf("decode character %s inventory: %w", characterID, err)
	}
	return ch, nil
}

func (s *Store) PutCharacter(ctx context.Context, ch types.Character) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return putCharacter(ctx, s.sqlDB, ch)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putCharacter(ctx context.Context, db execer, ch types.Character) error {
	if ch.ID == "" {
		return fmt.Errorf("character id is required")
	}
	stats := ch.Stats
	if stats == nil {
		stats = map[string]int{}
	}
	inv := ch.Inventory
	if inv == nil {
		inv = []string{}
	}
	rawStats, err := marshalJSON(stats)
	if err != nil {
		return fmt.Errorf("encode character %s stats: %w", ch.ID, err)
	}
	rawInv, err := marshalJSON(inv)
	if err != nil {
		return fmt.Errorf("encode character %s inventory: %w", ch.ID, err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO characters (id, name, player_id, stats_json, inventory_json, xp) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, player_id = excluded.player_id,
		   stats_json = excluded.stats_json, inventory_json = excluded.inventory_json, xp = excluded.xp`,
		ch.ID, ch.Name, ch.PlayerID, rawStats, rawInv, ch.XP,
	); err != nil {
		return fmt.Errorf("put character %s: %w", ch.ID, err)
	}
	return nil
}

func (s *Store) CreateEncounter(ctx context.Context, enc types.CombatEncounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args, err := encounterArgs(enc)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO combat_encounters (id, session_id, node_id, combat_type, participants_json, stats_hidden,
		   status, outcome_json, created_at, resolved_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("encounter %s already exists", enc.ID)
		}
		return fmt.Errorf("create encounter %s: %w", enc.ID, err)
	}
	return nil
}

func (s *Store) Encounter(ctx context.Context, encounterID string) (types.CombatEncounter, error) {
	if err := ctx.Err(); err != nil {
		return types.CombatEncounter{}, err
	}
	var enc types.CombatEncounter
	var combatType, status, participants string
	var outcome sql.NullString
	var created int64
	var resolved sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, session_id, node_id, combat_type, participants_json, stats_hidden, status, outcome_json,
		   created_at, resolved_at FROM combat_encounters WHERE id = ?`, encounterID,
	).Scan(&enc.ID, &enc.SessionID, &enc.NodeID, &combatType, &participants, &enc.StatsHidden, &status,
		&outcome, &created, &resolved)
	if err != nil {
		return types.CombatEncounter{}, notFound(err, "encounter", encounterID)
	}
	enc.CombatType = types.CombatType(combatType)
	enc.Status = types.CombatStatus(status)
	if err := unmarshalJSON(participants, &enc.Participants); err != nil {
		return types.CombatEncounter{}, fmt.Errorf("decode encounter %s participants: %w", encounterID, err)
	}
	if outcome.Valid {
		var o types.CombatOutcome
		if err := unmarshalJSON(outcome.String, &o); err != nil {
			return types.CombatEncounter{}, fmt.Errorf("decode encounter %s outcome: %w", encounterID, err)
		}
		enc.Outcome = &o
	}
	enc.CreatedAt = fromMillis(created)
	if resolved.Valid {
		t := fromMillis(resolved.Int64)
		enc.ResolvedAt = &t
	}
	return enc, nil
}

func (s *Store) UpdateEncounter(ctx context.Context, enc types.CombatEncounter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args, err := encounterArgs(enc)
	if err != nil {
		return err
	}
	// Same column order as the insert, with id moved to the WHERE clause.
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE combat_encounters SET session_id = ?, node_id = ?, combat_type = ?, participants_json = ?,
		   stats_hidden = ?, status = ?, outcome_json = ?, created_at = ?, resolved_at = ? WHERE id = ?`,
		append(args[1:], args[0])...)
	if err != nil {
		return fmt.Errorf("update encounter %s: %w", enc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update encounter %s: %w", enc.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("encounter %s: %w", enc.ID, store.ErrNotFound)
	}
	return nil
}

func encounterArgs(enc types.CombatEncounter) ([]any, error) {
	participants, err := marshalJSON(enc.Participants)
	if err != nil {
		return nil, fmt.Errorf("encode encounter %s participants: %w", enc.ID, err)
	}
	var outcome sql.NullString
	if enc.Outcome != nil {
		raw, err := marshalJSON(enc.Outcome)
		if err != nil {
			return nil, fmt.Errorf("encode encounter %s outcome: %w", enc.ID, err)
		}
		outcome = sql.NullString{String: raw, Valid: true}
	}
	var resolved sql.NullInt64
	if enc.ResolvedAt != nil {
		resolved = sql.NullInt64{Int64: toMillis(*enc.ResolvedAt), Valid: true}
	}
	return []any{
		enc.ID, enc.SessionID, enc.NodeID, string(enc.CombatType), participants, boolInt(enc.StatsHidden),
		string(enc.Status), outcome, toMillis(enc.CreatedAt), resolved,
	}, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nathoo/lorecore/types"
)

func (s *Store) FiredTriggerIDs(ctx context.Context, sessionID string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT trigger_id FROM trigger_firings WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trigger firings: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trigger firing: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// AppendTriggerFiring ignores a second firing of the same trigger in the
// same session.
func (s *Store) AppendTriggerFiring(ctx context.Context, f types.TriggerFiring) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := marshalJSON(f.Context)
	if err != nil {
		return fmt.Errorf("encode firing context: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO trigger_firings (id, session_id, character_id, trigger_id, context_json, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, trigger_id) DO NOTHING`,
		f.ID, f.SessionID, f.CharacterID, f.TriggerID, raw, toMillis(f.FiredAt),
	)
	if err != nil {
		return fmt.Errorf("append trigger firing: %w", err)
	}
	return nil
}

func (s *Store) AppendCascadeLog(ctx context.Context, l types.CascadeLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := marshalJSON(l.Context)
	if err != nil {
		return fmt.Errorf("encode cascade context: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cascade_logs (id, session_id, character_id, rule_id, context_json, applied_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, l.CharacterID, l.RuleID, raw, toMillis(l.AppliedAt),
	); err != nil {
		return fmt.Errorf("append cascade log: %w", err)
	}
	return nil
}

func (s *Store) CascadeLogs(ctx context.Context, sessionID string) ([]types.CascadeLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, session_id, character_id, rule_id, context_json, applied_at
		 FROM cascade_logs WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query cascade logs: %w", err)
	}
	defer rows.Close()

	var out []types.CascadeLog
	for rows.Next() {
		var l types.CascadeLog
		var raw string
		var at int64
		if err := rows.Scan(&l.ID, &l.SessionID, &l.CharacterID, &l.RuleID, &raw, &at); err != nil {
			return nil, fmt.Errorf("scan cascade log: %w", err)
		}
		if err := unmarshalJSON(raw, &l.Context); err != nil {
			return nil, fmt.Errorf("decode cascade log %s: %w", l.ID, err)
		}
		l.AppliedAt = fromMillis(at)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) AppendHintResponse(ctx context.Context, r types.HintResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := marshalJSON(r.Context)
	if err != nil {
		return fmt.Errorf("encode hint response context: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO hint_responses (id, session_id, hint_id, character_id, response, context_json, responded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.HintID, r.CharacterID, string(r.Response), raw, toMillis(r.RespondedAt),
	); err != nil {
		return fmt.Errorf("append hint response: %w", err)
	}
	return nil
}

// HintResponses lists responses oldest first. An empty characterID returns
// every character's responses.
func (s *Store) HintResponses(ctx context.Context, sessionID, characterID string) ([]types.HintResponseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := `SELECT id, session_id, hint_id, character_id, response, context_json, responded_at
		FROM hint_responses WHERE session_id = ?`
	args := []any{sessionID}
	if characterID != "" {
		query += ` AND character_id = ?`
		args = append(args, characterID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query hint responses: %w", err)
	}
	defer rows.Close()

	var out []types.HintResponseRecord
	for rows.Next() {
		var r types.HintResponseRecord
		var resp, raw string
		var at int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.HintID, &r.CharacterID, &resp, &raw, &at); err != nil {
			return nil, fmt.Errorf("scan hint response: %w", err)
		}
		r.Response = types.HintResponse(resp)
		if err := unmarshalJSON(raw, &r.Context); err != nil {
			return nil, fmt.Errorf("decode hint response %s: %w", r.ID, err)
		}
		r.RespondedAt = fromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AppendRandomEventLog(ctx context.Context, l types.RandomEventLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := marshalJSON(l.Outcome)
	if err != nil {
		return fmt.Errorf("encode event outcome: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO random_event_logs (id, session_id, event_id, character_id, outcome_json, was_positive, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, l.EventID, l.CharacterID, raw, boolInt(l.WasPositive), toMillis(l.FiredAt),
	); err != nil {
		return fmt.Errorf("append random event log: %w", err)
	}
	return nil
}

func (s *Store) RandomEventLogs(ctx context.Context, sessionID string) ([]types.RandomEventLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, session_id, event_id, character_id, outcome_json, was_positive, fired_at
		 FROM random_event_logs WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query random event logs: %w", err)
	}
	defer rows.Close()

	var out []types.RandomEventLog
	for rows.Next() {
		var l types.RandomEventLog
		var raw string
		var at int64
		if err := rows.Scan(&l.ID, &l.SessionID, &l.EventID, &l.CharacterID, &raw, &l.WasPositive, &at); err != nil {
			return nil, fmt.Errorf("scan random event log: %w", err)
		}
		if err := unmarshalJSON(raw, &l.Outcome); err != nil {
			return nil, fmt.Errorf("decode random event log %s: %w", l.ID, err)
		}
		l.FiredAt = fromMillis(at)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) AppendBluff(ctx context.Context, b types.BluffAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var revealed sql.NullString
	if b.RevealedInfo != nil {
		raw, err := marshalJSON(b.RevealedInfo)
		if err != nil {
			return fmt.Errorf("encode revealed info: %w", err)
		}
		revealed = sql.NullString{String: raw, Valid: true}
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO bluff_attempts (id, session_id, actor_id, target_id, attempt_type, stat_used, roll_value,
		   difficulty, success, revealed_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.SessionID, b.ActorID, b.TargetID, string(b.AttemptType), b.StatUsed, b.RollValue,
		b.Difficulty, boolInt(b.Success), revealed, toMillis(b.CreatedAt),
	); err != nil {
		return fmt.Errorf("append bluff attempt: %w", err)
	}
	return nil
}

func (s *Store) Bluffs(ctx context.Context, sessionID string) ([]types.BluffAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, session_id, actor_id, target_id, attempt_type, stat_used, roll_value, difficulty, success,
		   revealed_json, created_at
		 FROM bluff_attempts WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query bluff attempts: %w", err)
	}
	defer rows.Close()

	var out []types.BluffAttempt
	for rows.Next() {
		var b types.BluffAttempt
		var typ string
		var revealed sql.NullString
		var at int64
		if err := rows.Scan(&b.ID, &b.SessionID, &b.ActorID, &b.TargetID, &typ, &b.StatUsed, &b.RollValue,
			&b.Difficulty, &b.Success, &revealed, &at); err != nil {
			return nil, fmt.Errorf("scan bluff attempt: %w", err)
		}
		b.AttemptType = types.BluffType(typ)
		if revealed.Valid {
			var info types.RevealedInfo
			if err := unmarshalJSON(revealed.String, &info); err != nil {
				return nil, fmt.Errorf("decode bluff %s: %w", b.ID, err)
			}
			b.RevealedInfo = &info
		}
		b.CreatedAt = fromMillis(at)
		out = append(out, b)
	}
	return out, rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

var definitionTables = []string{
	"story_nodes", "story_triggers", "cascade_rules", "hints", "hint_chains", "random_events",
}

type storedEffectSpec struct {
	Name    string         `json:"name,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type storedChoice struct {
	Text          string `json:"text"`
	Target        string `json:"target,omitempty"`
	InteractionID string `json:"interaction_id,omitempty"`
}

// SeedCampaign replaces a campaign's definitions in one transaction and
// upserts its characters.
func (s *Store) SeedCampaign(ctx context.Context, defs *state.Defs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if defs == nil || defs.Campaign.ID == "" {
		return fmt.Errorf("campaign id is required")
	}
	id := defs.Campaign.ID

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	for _, table := range definitionTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE campaign_id = ?`, id); err != nil {
			return rollbackWith(tx, fmt.Errorf("clear %s: %w", table, err))
		}
	}
	c := defs.Campaign
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaigns (id, title, author, version, start_node, intro) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, author = excluded.author,
		   version = excluded.version, start_node = excluded.start_node, intro = excluded.intro`,
		c.ID, c.Title, c.Author, c.Version, c.StartNode, c.Intro,
	); err != nil {
		return rollbackWith(tx, fmt.Errorf("upsert campaign: %w", err))
	}

	steps := []func(context.Context, *sql.Tx, string, *state.Defs) error{
		seedNodes, seedTriggers, seedCascadeRules, seedHints, seedHintChains, seedRandomEvents,
	}
	for _, step := range steps {
		if err := step(ctx, tx, id, defs); err != nil {
			return rollbackWith(tx, err)
		}
	}
	for _, ch := range defs.Characters {
		if err := putCharacter(ctx, tx, ch); err != nil {
			return rollbackWith(tx, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func seedNodes(ctx context.Context, tx *sql.Tx, campaignID string, defs *state.Defs) error {
	ids := make([]string, 0, len(defs.Nodes))
	for k := range defs.Nodes {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	for _, k := range ids {
		n := defs.Nodes[k]
		choices := make([]storedChoice, 0, len(n.Choices))
		for _, c := range n.Choices {
			choices = append(choices, storedChoice(c))
		}
		raw, err := marshalJSON(choices)
		if err != nil {
			return fmt.Errorf("encode node %s choices: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO story_nodes (campaign_id, id, title, body, location, choices_json) VALUES (?, ?, ?, ?, ?, ?)`,
			campaignID, k, n.Title, n.Text, n.Location, raw,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", k, err)
		}
	}
	return nil
}

func seedTriggers(ctx context.Context, tx *sql.Tx, campaignID string, defs *state.Defs) error {
	for i, t := range defs.Triggers {
		cond, err := marshalJSON(codec.EncodeTriggerCondition(t.Condition))
		if err != nil {
			return fmt.Errorf("encode trigger %s conditions: %w", t.ID, err)
		}
		specs := make([]storedEffectSpec, 0, len(t.Effects))
		for _, e := range t.Effects {
			typ, payload := codec.EncodeEffect(e.Effect)
			specs = append(specs, storedEffectSpec{Name: e.Name, Type: string(typ), Payload: payload})
		}
		effs, err := marshalJSON(specs)
		if err != nil {
			return fmt.Errorf("encode trigger %s effects: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO story_triggers (campaign_id, id, name, trigger_type, conditions_json, effects_json, is_active, source_order, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			campaignID, t.ID, t.Name, string(t.Type), cond, effs, boolInt(t.IsActive), t.SourceOrder, i,
		); err != nil {
			return fmt.Errorf("insert trigger %s: %w", t.ID, err)
		}
	}
	return nil
}

func seedCascadeRules(ctx context.Context, tx *sql.Tx, campaignID string, defs *state.Defs) error {
	for i, r := range defs.CascadeRules {
		typ, value := codec.EncodeCascadeEffect(r.Effect)
		raw, err := marshalJSON(value)
		if err != nil {
			return fmt.Errorf("encode cascade rule %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cascade_rules (campaign_id, id, source_interaction_id, source_outcome, target_interaction_id,
			   effect_type, effect_value_json, priority, source_order, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			campaignID, r.ID, r.SourceInteractionID, string(r.SourceOutcome), r.TargetInteractionID,
			string(typ), raw, r.Priority, r.SourceOrder, i,
		); err != nil {
			return fmt.Errorf("insert cascade rule %s: %w", r.ID, err)
		}
	}
	return nil
}

func seedHints(ctx context.Context, tx *sql.Tx, campaignID string, defs *state.Defs) error {
	for i, h := range defs.Hints {
		cond, err := marshalJSON(codec.EncodeHintConditions(h.Conditions))
		if err != nil {
			return fmt.Errorf("encode hint %s conditions: %w", h.ID, err)
		}
		outcomes := make([]string, 3)
		for j, effs := range [][]types.Effect{h.FollowOutcome, h.IgnoreOutcome, h.OppositeOutcome} {
			if outcomes[j], err = marshalJSON(codec.EncodeEffects(effs)); err != nil {
				return fmt.Errorf("encode hint %s outcome: %w", h.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hints (id, campaign_id, node_id, hint_type, hint_text, conditions_json, follow_outcome_json,
			   ignore_outcome_json, opposite_outcome_json, is_red_herring, source_flavor, priority, is_active, source_order, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, campaignID, h.NodeID, h.HintType, h.Text, cond, outcomes[0], outcomes[1], outcomes[2],
			boolInt(h.IsRedHerring), h.SourceFlavor, h.Priority, boolInt(h.IsActive), h.SourceOrder, i,
		); err != nil {
			return fmt.Errorf("insert hint %s: %w", h.ID, err)
		}
	}
	return nil
}

func seedHintChains(ctx context.Context, tx *sql.Tx, campaignID string, defs *state.Defs) error {
	for i, c := range defs.HintChains {
		ids, err := marshalJSON(c.HintIDs)
		if err != nil {
			return fmt.Errorf("encode chain %s: %w", c.ID, err)
		}
		reward, err := marshalJSON(codec.EncodeEffects(c.Reward))
		if err != nil {
			return fmt.Errorf("encode chain %s reward: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hint_chains (campaign_id, id, name, hint_ids_json, reward_json, position) VALUES (?, ?, ?, ?, ?, ?)`,
			campaignID, c.ID, c.Name, ids, reward, i,
		); err != nil {
			return fmt.Errorf("insert chain %s: %w", c.ID, err)
		}
	}
	return nil
}

func seedRandomEvents(ctx context.Context, tx *sql.Tx, campaignID string, defs *state.Defs) error {
	for i, e := range defs.RandomEvents {
		cond, err := marshalJSON(codec.EncodeEventConditions(e.Conditions))
		if err != nil {
			return fmt.Errorf("encode event %s conditions: %w", e.ID, err)
		}
		effs, err := marshalJSON(codec.EncodeEffects(e.Effects))
		if err != nil {
			return fmt.Errorf("encode event %s effects: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO random_events (campaign_id, id, name, description, category, probability, conditions_json,
			   effects_json, is_recurring, cooldown_turns, is_active, source_order, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			campaignID, e.ID, e.Name, e.Description, string(e.Category), e.Probability, cond, effs,
			boolInt(e.IsRecurring), e.CooldownTurns, boolInt(e.IsActive), e.SourceOrder, i,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Store) Campaign(ctx context.Context, campaignID string) (types.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return types.Campaign{}, err
	}
	var c types.Campaign
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, title, author, version, start_node, intro FROM campaigns WHERE id = ?`, campaignID,
	).Scan(&c.ID, &c.Title, &c.Author, &c.Version, &c.StartNode, &c.Intro)
	if err != nil {
		return types.Campaign{}, notFound(err, "campaign", campaignID)
	}
	return c, nil
}

func (s *Store) Nodes(ctx context.Context, campaignID string) (map[string]types.StoryNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, title, body, location, choices_json FROM story_nodes WHERE campaign_id = ?`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	out := map[string]types.StoryNode{}
	for rows.Next() {
		var n types.StoryNode
		var raw string
		if err := rows.Scan(&n.ID, &n.Title, &n.Text, &n.Location, &raw); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		var choices []storedChoice
		if err := unmarshalJSON(raw, &choices); err != nil {
			return nil, fmt.Errorf("decode node %s choices: %w", n.ID, err)
		}
		for _, c := range choices {
			n.Choices = append(n.Choices, types.NodeChoice(c))
		}
		out[n.ID] = n
	}
	return out, rows.Err()
}

func (s *Store) Triggers(ctx context.Context, campaignID string) ([]types.TriggerDef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, trigger_type, conditions_json, effects_json, is_active, source_order
		 FROM story_triggers WHERE campaign_id = ? ORDER BY position`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	var out []types.TriggerDef
	for rows.Next() {
		t := types.TriggerDef{CampaignID: campaignID}
		var typ, condRaw, effRaw string
		if err := rows.Scan(&t.ID, &t.Name, &typ, &condRaw, &effRaw, &t.IsActive, &t.SourceOrder); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		t.Type = types.TriggerType(typ)
		var params map[string]any
		if err := unmarshalJSON(condRaw, &params); err != nil {
			t.Condition = types.InvalidCondition{Type: typ, Reason: err.Error()}
		} else {
			t.Condition = codec.TriggerConditionOrInvalid(t.Type, params)
		}
		var specs []storedEffectSpec
		if err := unmarshalJSON(effRaw, &specs); err != nil {
			return nil, fmt.Errorf("decode trigger %s effects: %w", t.ID, err)
		}
		for _, sp := range specs {
			t.Effects = append(t.Effects, types.EffectSpec{
				Name:   sp.Name,
				Effect: codec.EffectOrInvalid(types.EffectType(sp.Type), sp.Payload),
			})
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CascadeRules(ctx context.Context, campaignID string) ([]types.CascadeRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, source_interaction_id, source_outcome, target_interaction_id, effect_type, effect_value_json,
		   priority, source_order
		 FROM cascade_rules WHERE campaign_id = ? ORDER BY position`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query cascade rules: %w", err)
	}
	defer rows.Close()

	var out []types.CascadeRule
	for rows.Next() {
		r := types.CascadeRule{CampaignID: campaignID}
		var outcome, typ, raw string
		if err := rows.Scan(&r.ID, &r.SourceInteractionID, &outcome, &r.TargetInteractionID, &typ, &raw,
			&r.Priority, &r.SourceOrder); err != nil {
			return nil, fmt.Errorf("scan cascade rule: %w", err)
		}
		r.SourceOutcome = types.OutcomeType(outcome)
		var value any
		if err := unmarshalJSON(raw, &value); err != nil {
			return nil, fmt.Errorf("decode cascade rule %s: %w", r.ID, err)
		}
		r.Effect = codec.CascadeEffectOrInvalid(types.CascadeEffectType(typ), value)
		out = append(out, r)
	}
	return out, rows.Err()
}

const hintColumns = `id, campaign_id, node_id, hint_type, hint_text, conditions_json, follow_outcome_json,
	ignore_outcome_json, opposite_outcome_json, is_red_herring, source_flavor, priority, is_active, source_order`

type scanner interface {
	Scan(dest ...any) error
}

func scanHint(row scanner) (types.HintDef, error) {
	var h types.HintDef
	var cond string
	var outcomes [3]string
	if err := row.Scan(&h.ID, &h.CampaignID, &h.NodeID, &h.HintType, &h.Text, &cond,
		&outcomes[0], &outcomes[1], &outcomes[2], &h.IsRedHerring, &h.SourceFlavor,
		&h.Priority, &h.IsActive, &h.SourceOrder); err != nil {
		return h, err
	}
	var m map[string]any
	if err := unmarshalJSON(cond, &m); err != nil {
		h.Conditions = types.HintConditions{Invalid: err.Error()}
	} else {
		h.Conditions = codec.DecodeHintConditions(m)
	}
	var err error
	if h.FollowOutcome, err = decodeEffectList(outcomes[0]); err != nil {
		return h, err
	}
	if h.IgnoreOutcome, err = decodeEffectList(outcomes[1]); err != nil {
		return h, err
	}
	if h.OppositeOutcome, err = decodeEffectList(outcomes[2]); err != nil {
		return h, err
	}
	return h, nil
}

func decodeEffectList(raw string) ([]types.Effect, error) {
	var v any
	if err := unmarshalJSON(raw, &v); err != nil {
		return nil, fmt.Errorf("decode effects: %w", err)
	}
	effs := codec.DecodeEffects(v)
	if len(effs) == 0 {
		return nil, nil
	}
	return effs, nil
}

func (s *Store) Hints(ctx context.Context, campaignID string) ([]types.HintDef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+hintColumns+` FROM hints WHERE campaign_id = ? ORDER BY position`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query hints: %w", err)
	}
	defer rows.Close()

	var out []types.HintDef
	for rows.Next() {
		h, err := scanHint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hint: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) Hint(ctx context.Context, hintID string) (types.HintDef, error) {
	if err := ctx.Err(); err != nil {
		return types.HintDef{}, err
	}
	h, err := scanHint(s.sqlDB.QueryRowContext(ctx, `SELECT `+hintColumns+` FROM hints WHERE id = ?`, hintID))
	if err != nil {
		return types.HintDef{}, notFound(err, "hint", hintID)
	}
	return h, nil
}

func (s *Store) HintChains(ctx context.Context, campaignID string) ([]types.HintChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, hint_ids_json, reward_json FROM hint_chains WHERE campaign_id = ? ORDER BY position`,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("query hint chains: %w", err)
	}
	defer rows.Close()

	var out []types.HintChain
	for rows.Next() {
		c := types.HintChain{CampaignID: campaignID}
		var ids, reward string
		if err := rows.Scan(&c.ID, &c.Name, &ids, &reward); err != nil {
			return nil, fmt.Errorf("scan hint chain: %w", err)
		}
		if err := unmarshalJSON(ids, &c.HintIDs); err != nil {
			return nil, fmt.Errorf("decode chain %s: %w", c.ID, err)
		}
		if c.Reward, err = decodeEffectList(reward); err != nil {
			return nil, fmt.Errorf("decode chain %s reward: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) RandomEvents(ctx context.Context, campaignID string) ([]types.RandomEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, description, category, probability, conditions_json, effects_json, is_recurring,
		   cooldown_turns, is_active, source_order
		 FROM random_events WHERE campaign_id = ? ORDER BY position`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query random events: %w", err)
	}
	defer rows.Close()

	var out []types.RandomEvent
	for rows.Next() {
		e := types.RandomEvent{CampaignID: campaignID}
		var category, cond, effs string
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &category, &e.Probability, &cond, &effs,
			&e.IsRecurring, &e.CooldownTurns, &e.IsActive, &e.SourceOrder); err != nil {
			return nil, fmt.Errorf("scan random event: %w", err)
		}
		e.Category = types.EventCategory(category)
		var m map[string]any
		if err := unmarshalJSON(cond, &m); err != nil {
			e.Conditions = types.EventConditions{Invalid: err.Error()}
		} else {
			e.Conditions = codec.DecodeEventConditions(m)
		}
		if e.Effects, err = decodeEffectList(effs); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Package codec converts loosely shaped parameter bags (Lua tables, JSON
// columns, request bodies) into the typed condition and effect variants,
// and back again for storage.
//
// Bags accept camelCase and snake_case keys. A bag that cannot be decoded
// yields an Invalid variant carrying the reason, never a panic.
package codec

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// EffectOrder is the canonical order effects are decoded in when an
// outcome is written as a map keyed by effect type.
var EffectOrder = []types.EffectType{
	types.EffectModifyStat,
	types.EffectGrantItem,
	types.EffectSetFlag,
	types.EffectAwardXP,
	types.EffectUnlockPath,
	types.EffectSpawnNode,
	types.EffectShowMessage,
}

// DecodeTriggerCondition builds the condition variant for a trigger type.
func DecodeTriggerCondition(typ types.TriggerType, params map[string]any) (types.TriggerCondition, error) {
	switch typ {
	case types.TriggerStatThreshold:
		stat, ok := str(params, "stat", "stat_name", "statName")
		if !ok {
			return nil, missing(typ, "stat")
		}
		v, ok := intParam(params, "minValue", "min_value", "value")
		if !ok {
			return nil, missing(typ, "minValue")
		}
		return types.StatThreshold{Stat: stat, MinValue: v}, nil

	case types.TriggerItemPossessed:
		item, ok := str(params, "itemName", "item_name", "item")
		if !ok {
			return nil, missing(typ, "itemName")
		}
		return types.ItemPossessed{ItemName: item}, nil

	case types.TriggerFlagSet:
		flag, ok := str(params, "flagName", "flag_name", "flag")
		if !ok {
			return nil, missing(typ, "flagName")
		}
		v, ok := lookup(params, "flagValue", "flag_value", "value")
		if !ok {
			return nil, missing(typ, "flagValue")
		}
		return types.FlagSet{FlagName: flag, FlagValue: state.CoerceFlag(v)}, nil

	case types.TriggerRelationshipScore:
		npc, ok := str(params, "npc", "npcId", "npc_id")
		if !ok {
			return nil, missing(typ, "npc")
		}
		v, ok := floatParam(params, "minScore", "min_score", "value")
		if !ok {
			return nil, missing(typ, "minScore")
		}
		return types.RelationshipScore{NPC: npc, MinScore: v}, nil

	case types.TriggerFactionReputation:
		faction, ok := str(params, "faction", "factionId", "faction_id")
		if !ok {
			return nil, missing(typ, "faction")
		}
		v, ok := floatParam(params, "minReputation", "min_reputation", "value")
		if !ok {
			return nil, missing(typ, "minReputation")
		}
		return types.FactionReputation{Faction: faction, MinReputation: v}, nil

	case types.TriggerChoiceMade:
		node, ok := str(params, "nodeId", "node_id", "node")
		if !ok {
			return nil, missing(typ, "nodeId")
		}
		contains, ok := str(params, "choiceContains", "choice_contains", "choiceText", "choice_text", "contains")
		if !ok {
			return nil, missing(typ, "choiceContains")
		}
		return types.ChoiceMade{NodeID: node, Contains: contains}, nil

	case types.TriggerPlayerCount:
		v, ok := intParam(params, "minPlayers", "min_players", "value")
		if !ok {
			return nil, missing(typ, "minPlayers")
		}
		return types.PlayerCount{MinPlayers: v}, nil

	case types.TriggerRandomChance:
		v, ok := floatParam(params, "probability", "chance")
		if !ok {
			return nil, missing(typ, "probability")
		}
		return types.RandomChance{Probability: v}, nil
	}
	return nil, fmt.Errorf("unknown trigger type %q", typ)
}

// TriggerConditionOrInvalid is DecodeTriggerCondition with failures folded
// into an InvalidCondition.
func TriggerConditionOrInvalid(typ types.TriggerType, params map[string]any) types.TriggerCondition {
	c, err := DecodeTriggerCondition(typ, params)
	if err != nil {
		return types.InvalidCondition{Type: string(typ), Reason: err.Error()}
	}
	return c
}

// EncodeTriggerCondition writes a condition back to a camelCase bag.
func EncodeTriggerCondition(c types.TriggerCondition) map[string]any {
	switch c := c.(type) {
	case types.StatThreshold:
		return map[string]any{"stat": c.Stat, "minValue": c.MinValue}
	case types.ItemPossessed:
		return map[string]any{"itemName": c.ItemName}
	case types.FlagSet:
		return map[string]any{"flagName": c.FlagName, "flagValue": c.FlagValue}
	case types.RelationshipScore:
		return map[string]any{"npc": c.NPC, "minScore": c.MinScore}
	case types.FactionReputation:
		return map[string]any{"faction": c.Faction, "minReputation": c.MinReputation}
	case types.ChoiceMade:
		return map[string]any{"nodeId": c.NodeID, "choiceContains": c.Contains}
	case types.PlayerCount:
		return map[string]any{"minPlayers": c.MinPlayers}
	case types.RandomChance:
		return map[string]any{"probability": c.Probability}
	case types.InvalidCondition:
		return map[string]any{"invalid": c.Reason}
	}
	return map[string]any{}
}

// DecodeEffect builds an effect variant from its type and payload. The
// payload may be a bag or, for single-field effects, a bare value.
func DecodeEffect(typ types.EffectType, payload any) (types.Effect, error) {
	bag, _ := payload.(map[string]any)
	switch typ {
	case types.EffectModifyStat:
		stat, ok := str(bag, "stat", "stat_name", "statName")
		if !ok {
			return nil, missing(typ, "stat")
		}
		change, ok := intParam(bag, "change", "delta", "amount", "value")
		if !ok {
			return nil, missing(typ, "change")
		}
		return types.ModifyStat{Stat: stat, Change: change}, nil

	case types.EffectGrantItem:
		item, ok := scalarString(payload, "item", "itemName", "item_name", "name")
		if !ok {
			return nil, missing(typ, "item")
		}
		return types.GrantItem{Item: item}, nil

	case types.EffectSetFlag:
		flag, ok := str(bag, "flag", "flagName", "flag_name", "name")
		if !ok {
			return nil, missing(typ, "flag")
		}
		v, ok := lookup(bag, "value", "flagValue", "flag_value")
		if !ok {
			v = true
		}
		return types.SetFlag{Flag: flag, Value: state.CoerceFlag(v)}, nil

	case types.EffectShowMessage:
		text, ok := scalarString(payload, "message", "text")
		if !ok {
			return nil, missing(typ, "message")
		}
		return types.ShowMessage{Text: text}, nil

	case types.EffectAwardXP:
		var amount int
		var ok bool
		if bag != nil {
			amount, ok = intParam(bag, "amount", "xp", "value")
		} else {
			amount, ok = Int(payload)
		}
		if !ok {
			return nil, missing(typ, "amount")
		}
		return types.AwardXP{Amount: amount}, nil

	case types.EffectUnlockPath:
		path, ok := scalarString(payload, "pathId", "path_id", "path")
		if !ok {
			return nil, missing(typ, "pathId")
		}
		return types.UnlockPath{PathID: path}, nil

	case types.EffectSpawnNode:
		node, ok := scalarString(payload, "nodeId", "node_id", "node")
		if !ok {
			return nil, missing(typ, "nodeId")
		}
		return types.SpawnNode{NodeID: node}, nil
	}
	return nil, fmt.Errorf("unknown effect type %q", typ)
}

// EffectOrInvalid is DecodeEffect with failures folded into an
// InvalidEffect.
func EffectOrInvalid(typ types.EffectType, payload any) types.Effect {
	e, err := DecodeEffect(typ, payload)
	if err != nil {
		return types.InvalidEffect{Type: string(typ), Reason: err.Error()}
	}
	return e
}

// EncodeEffect returns the type and camelCase payload of an effect.
func EncodeEffect(e types.Effect) (types.EffectType, map[string]any) {
	switch e := e.(type) {
	case types.ModifyStat:
		return types.EffectModifyStat, map[string]any{"stat": e.Stat, "change": e.Change}
	case types.GrantItem:
		return types.EffectGrantItem, map[string]any{"item": e.Item}
	case types.SetFlag:
		return types.EffectSetFlag, map[string]any{"flag": e.Flag, "value": e.Value}
	case types.ShowMessage:
		return types.EffectShowMessage, map[string]any{"message": e.Text}
	case types.AwardXP:
		return types.EffectAwardXP, map[string]any{"amount": e.Amount}
	case types.UnlockPath:
		return types.EffectUnlockPath, map[string]any{"pathId": e.PathID}
	case types.SpawnNode:
		return types.EffectSpawnNode, map[string]any{"nodeId": e.NodeID}
	case types.InvalidEffect:
		return types.EffectType(e.Type), map[string]any{"invalid": e.Reason}
	}
	return "", nil
}

// DecodeEffects reads the list form [{"type": ..., ...payload}] used for
// stored effect lists. Map-form outcomes are accepted too.
func DecodeEffects(v any) []types.Effect {
	switch v := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return DecodeOutcome(v)
	case []map[string]any:
		out := make([]types.Effect, 0, len(v))
		for _, item := range v {
			out = append(out, decodeListItem(item))
		}
		return out
	case []any:
		out := make([]types.Effect, 0, len(v))
		for _, item := range v {
			bag, ok := item.(map[string]any)
			if !ok {
				out = append(out, types.InvalidEffect{Reason: fmt.Sprintf("effect entry is %T, not a table", item)})
				continue
			}
			out = append(out, decodeListItem(bag))
		}
		return out
	}
	return []types.Effect{types.InvalidEffect{Reason: fmt.Sprintf("effects are %T", v)}}
}

func decodeListItem(bag map[string]any) types.Effect {
	typ, _ := str(bag, "type", "eventType", "event_type")
	payload := any(bag)
	if p, ok := bag["payload"]; ok {
		payload = p
	}
	return EffectOrInvalid(types.EffectType(typ), payload)
}

// EncodeEffects writes the list form.
func EncodeEffects(effs []types.Effect) []map[string]any {
	out := make([]map[string]any, 0, len(effs))
	for _, e := range effs {
		typ, payload := EncodeEffect(e)
		item := map[string]any{"type": string(typ)}
		for k, v := range payload {
			item[k] = v
		}
		out = append(out, item)
	}
	return out
}

// DecodeOutcome reads a hint or reward outcome written as a map keyed by
// effect type, e.g. {"grant_item": "cursed_ring"}. A key may hold a list to
// apply the same effect type more than once. Keys decode in EffectOrder
// followed by any unknown keys sorted by name.
func DecodeOutcome(m map[string]any) []types.Effect {
	if len(m) == 0 {
		return nil
	}
	var out []types.Effect
	seen := map[string]bool{}
	for _, typ := range EffectOrder {
		v, ok := m[string(typ)]
		if !ok {
			continue
		}
		seen[string(typ)] = true
		out = append(out, decodeOutcomeValue(typ, v)...)
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, decodeOutcomeValue(types.EffectType(k), m[k])...)
	}
	return out
}

func decodeOutcomeValue(typ types.EffectType, v any) []types.Effect {
	if list, ok := v.([]any); ok {
		out := make([]types.Effect, 0, len(list))
		for _, item := range list {
			out = append(out, EffectOrInvalid(typ, item))
		}
		return out
	}
	return []types.Effect{EffectOrInvalid(typ, v)}
}

// EncodeOutcome writes effects in the map form read by DecodeOutcome.
func EncodeOutcome(effs []types.Effect) map[string]any {
	out := map[string]any{}
	for _, e := range effs {
		typ, payload := EncodeEffect(e)
		if typ == "" {
			continue
		}
		var v any = payload
		switch e := e.(type) {
		case types.GrantItem:
			v = e.Item
		case types.ShowMessage:
			v = e.Text
		case types.AwardXP:
			v = e.Amount
		case types.UnlockPath:
			v = e.PathID
		case types.SpawnNode:
			v = e.NodeID
		}
		key := string(typ)
		if prev, ok := out[key]; ok {
			if list, ok := prev.([]any); ok {
				out[key] = append(list, v)
			} else {
				out[key] = []any{prev, v}
			}
			continue
		}
		out[key] = v
	}
	return out
}

// DecodeCascadeEffect builds a cascade effect from its type and value.
func DecodeCascadeEffect(typ types.CascadeEffectType, value any) (types.CascadeEffect, error) {
	if bag, ok := value.(map[string]any); ok {
		if reason, ok := bag["invalid"].(string); ok {
			return nil, errors.New(reason)
		}
	}
	switch typ {
	case types.CascadeEffectLock:
		return types.CascadeLock{}, nil
	case types.CascadeEffectUnlock:
		return types.CascadeUnlock{}, nil
	case types.CascadeEffectModifyDifficulty:
		v, ok := Int(unwrap(value, "modifier", "delta", "value"))
		if !ok {
			return nil, fmt.Errorf("%s: value %v is not a number", typ, value)
		}
		return types.CascadeDifficulty{Delta: v}, nil
	case types.CascadeEffectChangeOutcome:
		s, ok := unwrap(value, "outcome", "value").(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%s: value %v is not an outcome", typ, value)
		}
		return types.CascadeOutcome{Outcome: s}, nil
	}
	return nil, fmt.Errorf("unknown cascade effect %q", typ)
}

// CascadeEffectOrInvalid is DecodeCascadeEffect with failures folded into
// an InvalidCascade.
func CascadeEffectOrInvalid(typ types.CascadeEffectType, value any) types.CascadeEffect {
	e, err := DecodeCascadeEffect(typ, value)
	if err != nil {
		return types.InvalidCascade{Type: string(typ), Reason: err.Error()}
	}
	return e
}

// EncodeCascadeEffect returns the type and value of a cascade effect.
func EncodeCascadeEffect(e types.CascadeEffect) (types.CascadeEffectType, any) {
	switch e := e.(type) {
	case types.CascadeLock:
		return types.CascadeEffectLock, nil
	case types.CascadeUnlock:
		return types.CascadeEffectUnlock, nil
	case types.CascadeDifficulty:
		return types.CascadeEffectModifyDifficulty, e.Delta
	case types.CascadeOutcome:
		return types.CascadeEffectChangeOutcome, e.Outcome
	case types.InvalidCascade:
		return types.CascadeEffectType(e.Type), map[string]any{"invalid": e.Reason}
	}
	return "", nil
}

// DecodeHintConditions reads {stat_threshold, flag_required, item_required}.
// item_required may be a single name or a list.
func DecodeHintConditions(m map[string]any) types.HintConditions {
	var hc types.HintConditions
	if len(m) == 0 {
		return hc
	}
	if reason, ok := m["invalid"].(string); ok {
		hc.Invalid = reason
		return hc
	}
	var err error
	if v, ok := lookup(m, "stat_threshold", "statThreshold"); ok {
		if hc.StatThreshold, err = statMap(v); err != nil {
			hc.Invalid = "stat_threshold: " + err.Error()
			return hc
		}
	}
	if v, ok := lookup(m, "flag_required", "flagRequired"); ok {
		flags, ok := v.(map[string]any)
		if !ok {
			hc.Invalid = fmt.Sprintf("flag_required is %T, not a table", v)
			return hc
		}
		hc.FlagRequired = make(map[string]any, len(flags))
		for k, fv := range flags {
			hc.FlagRequired[k] = state.CoerceFlag(fv)
		}
	}
	if v, ok := lookup(m, "item_required", "itemRequired"); ok {
		if hc.ItemRequired, err = stringList(v); err != nil {
			hc.Invalid = "item_required: " + err.Error()
			return hc
		}
	}
	return hc
}

// EncodeHintConditions writes the snake_case bag read by DecodeHintConditions.
func EncodeHintConditions(hc types.HintConditions) map[string]any {
	out := map[string]any{}
	if len(hc.StatThreshold) > 0 {
		out["stat_threshold"] = hc.StatThreshold
	}
	if len(hc.FlagRequired) > 0 {
		out["flag_required"] = hc.FlagRequired
	}
	if len(hc.ItemRequired) > 0 {
		out["item_required"] = hc.ItemRequired
	}
	if hc.Invalid != "" {
		out["invalid"] = hc.Invalid
	}
	return out
}

// DecodeEventConditions reads {stat_thresholds, required_flags, min_turn,
// location}.
func DecodeEventConditions(m map[string]any) types.EventConditions {
	var ec types.EventConditions
	if len(m) == 0 {
		return ec
	}
	if reason, ok := m["invalid"].(string); ok {
		ec.Invalid = reason
		return ec
	}
	var err error
	if v, ok := lookup(m, "stat_thresholds", "statThresholds", "stat_threshold"); ok {
		if ec.StatThresholds, err = statMap(v); err != nil {
			ec.Invalid = "stat_thresholds: " + err.Error()
			return ec
		}
	}
	if v, ok := lookup(m, "required_flags", "requiredFlags", "flag_required"); ok {
		flags, ok := v.(map[string]any)
		if !ok {
			ec.Invalid = fmt.Sprintf("required_flags is %T, not a table", v)
			return ec
		}
		ec.RequiredFlags = make(map[string]any, len(flags))
		for k, fv := range flags {
			ec.RequiredFlags[k] = state.CoerceFlag(fv)
		}
	}
	if v, ok := lookup(m, "min_turn", "minTurn"); ok {
		n, ok := Int(v)
		if !ok {
			ec.Invalid = fmt.Sprintf("min_turn %v is not a number", v)
			return ec
		}
		ec.MinTurn = n
	}
	if v, ok := lookup(m, "location"); ok {
		loc, ok := v.(string)
		if !ok {
			ec.Invalid = fmt.Sprintf("location is %T, not a string", v)
			return ec
		}
		ec.Location = loc
	}
	return ec
}

// EncodeEventConditions writes the snake_case bag read by
// DecodeEventConditions.
func EncodeEventConditions(ec types.EventConditions) map[string]any {
	out := map[string]any{}
	if len(ec.StatThresholds) > 0 {
		out["stat_thresholds"] = ec.StatThresholds
	}
	if len(ec.RequiredFlags) > 0 {
		out["required_flags"] = ec.RequiredFlags
	}
	if ec.MinTurn > 0 {
		out["min_turn"] = ec.MinTurn
	}
	if ec.Location != "" {
		out["location"] = ec.Location
	}
	if ec.Invalid != "" {
		out["invalid"] = ec.Invalid
	}
	return out
}

// Int converts an any value to int, handling float64 from JSON and Lua.
// Fractional floats are rejected.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// Float converts numbers and numeric strings to float64.
func Float(v any) (float64, bool) {
	return state.ToFloat(v)
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func str(m map[string]any, keys ...string) (string, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func intParam(m map[string]any, keys ...string) (int, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0, false
	}
	return Int(v)
}

func floatParam(m map[string]any, keys ...string) (float64, bool) {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0, false
	}
	return Float(v)
}

// scalarString accepts either a bare string or a bag holding one of keys.
func scalarString(payload any, keys ...string) (string, bool) {
	if s, ok := payload.(string); ok {
		return s, s != ""
	}
	bag, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	return str(bag, keys...)
}

// unwrap pulls a value out of a single-field bag, or returns v as is.
func unwrap(v any, keys ...string) any {
	bag, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if inner, ok := lookup(bag, keys...); ok {
		return inner
	}
	return nil
}

func statMap(v any) (map[string]int, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if typed, ok := v.(map[string]int); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("got %T, want a table", v)
	}
	out := make(map[string]int, len(m))
	for k, raw := range m {
		n, ok := Int(raw)
		if !ok {
			return nil, fmt.Errorf("%s = %v is not a whole number", k, raw)
		}
		out[k] = n
	}
	return out, nil
}

func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entry %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("got %T, want a string or list", v)
}

func missing[T ~string](typ T, key string) error {
	return fmt.Errorf("%s: missing or invalid %q", typ, key)
}

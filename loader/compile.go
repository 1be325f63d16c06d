package loader

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/lorecore/engine/codec"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	if s, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

// firstString returns the first non-empty string among keys.
func firstString(tbl *lua.LTable, keys ...string) string {
	for _, k := range keys {
		if s := getString(tbl, k); s != "" {
			return s
		}
	}
	return ""
}

func getBool(tbl *lua.LTable, key string, def bool) bool {
	if b, ok := tbl.RawGetString(key).(lua.LBool); ok {
		return bool(b)
	}
	return def
}

func getNumber(tbl *lua.LTable, key string) float64 {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

func getInt(tbl *lua.LTable, key string) int {
	return int(getNumber(tbl, key))
}

func getTable(tbl *lua.LTable, key string) *lua.LTable {
	if t, ok := tbl.RawGetString(key).(*lua.LTable); ok {
		return t
	}
	return nil
}

// toGoValue converts a Lua value to a Go value recursively. Tables with a
// sequence part become []any, others map[string]any. Integral numbers
// become int.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		return m
	}
	return nil
}

// tableToAnyMap converts the string-keyed part of a table, skipping the
// listed keys.
func tableToAnyMap(tbl *lua.LTable, skip ...string) map[string]any {
	if tbl == nil {
		return nil
	}
	m := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok {
			return
		}
		for _, s := range skip {
			if string(ks) == s {
				return
			}
		}
		m[string(ks)] = toGoValue(v)
	})
	return m
}

func tableToStrings(tbl *lua.LTable) []string {
	if tbl == nil {
		return nil
	}
	var out []string
	for i := 1; i <= tbl.MaxN(); i++ {
		if s, ok := tbl.RawGetInt(i).(lua.LString); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// compile converts all collected Lua data into Defs. fallbackID names the
// campaign when its table carries no id.
func compile(coll *collector, fallbackID string) (*state.Defs, error) {
	if coll.campaign == nil {
		return nil, fmt.Errorf("no Campaign{} definition found")
	}
	defs := &state.Defs{
		Campaign: compileCampaign(coll.campaign, fallbackID),
		Nodes:    map[string]types.StoryNode{},
	}
	cid := defs.Campaign.ID

	for _, raw := range coll.nodes {
		if _, dup := defs.Nodes[raw.id]; dup {
			return nil, fmt.Errorf("node %q defined twice", raw.id)
		}
		defs.Nodes[raw.id] = compileNode(raw)
	}
	for _, raw := range coll.characters {
		defs.Characters = append(defs.Characters, compileCharacter(raw))
	}
	for _, raw := range coll.triggers {
		t := compileTrigger(raw)
		t.CampaignID = cid
		defs.Triggers = append(defs.Triggers, t)
	}
	for _, raw := range coll.cascades {
		r := compileCascade(raw)
		r.CampaignID = cid
		defs.CascadeRules = append(defs.CascadeRules, r)
	}
	for _, raw := range coll.hints {
		h := compileHint(raw)
		h.CampaignID = cid
		defs.Hints = append(defs.Hints, h)
	}
	for _, raw := range coll.chains {
		c := compileChain(raw)
		c.CampaignID = cid
		defs.HintChains = append(defs.HintChains, c)
	}
	for _, raw := range coll.events {
		ev := compileEvent(raw)
		ev.CampaignID = cid
		defs.RandomEvents = append(defs.RandomEvents, ev)
	}
	return defs, nil
}

func compileCampaign(tbl *lua.LTable, fallbackID string) types.Campaign {
	c := types.Campaign{
		ID:        getString(tbl, "id"),
		Title:     getString(tbl, "title"),
		Author:    getString(tbl, "author"),
		Version:   getString(tbl, "version"),
		StartNode: firstString(tbl, "start", "start_node"),
		Intro:     getString(tbl, "intro"),
	}
	if c.ID == "" {
		c.ID = fallbackID
	}
	return c
}

func compileNode(raw rawDef) types.StoryNode {
	n := types.StoryNode{
		ID:       raw.id,
		Title:    getString(raw.table, "title"),
		Text:     firstString(raw.table, "text", "description"),
		Location: getString(raw.table, "location"),
	}
	choices := getTable(raw.table, "choices")
	if choices == nil {
		return n
	}
	for i := 1; i <= choices.MaxN(); i++ {
		ct, ok := choices.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		n.Choices = append(n.Choices, types.NodeChoice{
			Text:          getString(ct, "text"),
			Target:        firstString(ct, "target", "to"),
			InteractionID: getString(ct, "interaction"),
		})
	}
	return n
}

func compileCharacter(raw rawDef) types.Character {
	ch := types.Character{
		ID:        raw.id,
		Name:      getString(raw.table, "name"),
		PlayerID:  getString(raw.table, "player"),
		Stats:     map[string]int{},
		Inventory: tableToStrings(getTable(raw.table, "inventory")),
		XP:        getInt(raw.table, "xp"),
	}
	if stats := getTable(raw.table, "stats"); stats != nil {
		stats.ForEach(func(k, v lua.LValue) {
			ks, ok := k.(lua.LString)
			if !ok {
				return
			}
			if n, ok := v.(lua.LNumber); ok {
				ch.Stats[string(ks)] = int(n)
			}
		})
	}
	if ch.Inventory == nil {
		ch.Inventory = []string{}
	}
	return ch
}

// compileTrigger accepts either when = <condition helper> or the bag form
// type = "...", conditions = { ... }.
func compileTrigger(raw rawDef) types.TriggerDef {
	t := types.TriggerDef{
		ID:          raw.id,
		Name:        getString(raw.table, "name"),
		IsActive:    getBool(raw.table, "active", true),
		SourceOrder: raw.order,
	}
	var params map[string]any
	if when := getTable(raw.table, "when"); when != nil {
		t.Type = types.TriggerType(getString(when, "type"))
		params = tableToAnyMap(when, "type")
	} else {
		t.Type = types.TriggerType(getString(raw.table, "type"))
		params = tableToAnyMap(getTable(raw.table, "conditions"))
	}
	t.Condition = codec.TriggerConditionOrInvalid(t.Type, params)
	if t.Name == "" {
		t.Name = raw.id
	}

	effs := getTable(raw.table, "effects")
	if effs == nil {
		return t
	}
	for i := 1; i <= effs.MaxN(); i++ {
		et, ok := effs.RawGetInt(i).(*lua.LTable)
		if !ok {
			t.Effects = append(t.Effects, types.EffectSpec{Effect: types.InvalidEffect{Reason: "effect entry is not a table"}})
			continue
		}
		spec := types.EffectSpec{Name: getString(et, "label")}
		decoded := codec.DecodeEffects([]any{tableToAnyMap(et, "label")})
		spec.Effect = decoded[0]
		t.Effects = append(t.Effects, spec)
	}
	return t
}

// compileCascade reads effect = Lock() or effect = "lock", value = ...
func compileCascade(raw rawDef) types.CascadeRule {
	r := types.CascadeRule{
		ID:                  raw.id,
		SourceInteractionID: firstString(raw.table, "source", "source_interaction"),
		SourceOutcome:       types.OutcomeType(firstString(raw.table, "on", "outcome", "source_outcome")),
		TargetInteractionID: firstString(raw.table, "target", "target_interaction"),
		Priority:            getInt(raw.table, "priority"),
		SourceOrder:         raw.order,
	}
	var typ string
	var value any
	if et := getTable(raw.table, "effect"); et != nil {
		typ = getString(et, "type")
		value = toGoValue(et.RawGetString("value"))
	} else {
		typ = getString(raw.table, "effect")
		value = toGoValue(raw.table.RawGetString("value"))
	}
	r.Effect = codec.CascadeEffectOrInvalid(types.CascadeEffectType(typ), value)
	return r
}

func compileHint(raw rawDef) types.HintDef {
	tbl := raw.table
	return types.HintDef{
		ID:              raw.id,
		NodeID:          getString(tbl, "node"),
		HintType:        firstString(tbl, "kind", "hint_type"),
		Text:            getString(tbl, "text"),
		Conditions:      codec.DecodeHintConditions(tableToAnyMap(getTable(tbl, "conditions"))),
		FollowOutcome:   outcome(tbl, "on_follow"),
		IgnoreOutcome:   outcome(tbl, "on_ignore"),
		OppositeOutcome: outcome(tbl, "on_oppose"),
		IsRedHerring:    getBool(tbl, "red_herring", false),
		SourceFlavor:    getString(tbl, "flavor"),
		Priority:        getInt(tbl, "priority"),
		IsActive:        getBool(tbl, "active", true),
		SourceOrder:     raw.order,
	}
}

// outcome decodes an effect list or a map-form outcome stored under key.
func outcome(tbl *lua.LTable, key string) []types.Effect {
	v := tbl.RawGetString(key)
	if v == lua.LNil {
		return nil
	}
	return codec.DecodeEffects(toGoValue(v))
}

func compileChain(raw rawDef) types.HintChain {
	return types.HintChain{
		ID:      raw.id,
		Name:    firstString(raw.table, "name", "chain_name"),
		HintIDs: tableToStrings(getTable(raw.table, "hints")),
		Reward:  outcome(raw.table, "reward"),
	}
}

func compileEvent(raw rawDef) types.RandomEvent {
	tbl := raw.table
	return types.RandomEvent{
		ID:            raw.id,
		Name:          getString(tbl, "name"),
		Description:   getString(tbl, "description"),
		Category:      types.EventCategory(getString(tbl, "category")),
		Probability:   getNumber(tbl, "probability"),
		Conditions:    codec.DecodeEventConditions(tableToAnyMap(getTable(tbl, "conditions"))),
		Effects:       outcome(tbl, "effects"),
		IsRecurring:   getBool(tbl, "recurring", false),
		CooldownTurns: getInt(tbl, "cooldown"),
		IsActive:      getBool(tbl, "active", true),
		SourceOrder:   raw.order,
	}
}

// sortedLuaFiles puts campaign.lua first and the rest in name order.
func sortedLuaFiles(files []string) []string {
	var first string
	var others []string
	for _, f := range files {
		if f == "campaign.lua" {
			first = f
		} else {
			others = append(others, f)
		}
	}
	sort.Strings(others)
	if first != "" {
		return append([]string{first}, others...)
	}
	return others
}

package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerConditionHelpers(L)
	registerEffectHelpers(L)
	registerCascadeHelpers(L)
}

// curried returns a constructor of the form Kind "id" { ... } that appends
// to the slice chosen by pick.
func curried(coll *collector, pick func(*collector) *[]rawDef) lua.LGFunction {
	return func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			list := pick(coll)
			*list = append(*list, rawDef{id: id, table: tbl, order: coll.nextSourceOrder()})
			return 0
		}))
		return 1
	}
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Campaign { id = "...", title = "...", start = "...", ... }
	L.SetGlobal("Campaign", L.NewFunction(func(L *lua.LState) int {
		coll.campaign = L.CheckTable(1)
		return 0
	}))

	L.SetGlobal("Node", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.nodes })))
	L.SetGlobal("Character", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.characters })))
	L.SetGlobal("Trigger", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.triggers })))
	L.SetGlobal("Cascade", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.cascades })))
	L.SetGlobal("Hint", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.hints })))
	L.SetGlobal("HintChain", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.chains })))
	L.SetGlobal("RandomEvent", L.NewFunction(curried(coll, func(c *collector) *[]rawDef { return &c.events })))
}

// tagged builds {type = typ, k1 = v1, ...} from alternating key/value pairs.
func tagged(L *lua.LState, typ string, kv ...any) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("type", lua.LString(typ))
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			tbl.RawSetString(key, lua.LString(v))
		case lua.LValue:
			tbl.RawSetString(key, v)
		}
	}
	return tbl
}

func registerConditionHelpers(L *lua.LState) {
	// StatAtLeast("strength", 7)
	L.SetGlobal("StatAtLeast", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "stat_threshold", "stat", L.CheckString(1), "minValue", L.CheckNumber(2)))
		return 1
	}))

	// HasItem("torch")
	L.SetGlobal("HasItem", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "item_possessed", "itemName", L.CheckString(1)))
		return 1
	}))

	// FlagIs("gate_open", value); value defaults to true.
	flagIs := func(L *lua.LState) int {
		value := L.Get(2)
		if value == lua.LNil {
			value = lua.LTrue
		}
		L.Push(tagged(L, "flag_set", "flagName", L.CheckString(1), "flagValue", value))
		return 1
	}
	L.SetGlobal("FlagIs", L.NewFunction(flagIs))
	L.SetGlobal("FlagSet", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "flag_set", "flagName", L.CheckString(1), "flagValue", lua.LTrue))
		return 1
	}))

	// RelationshipAtLeast("miller", 3)
	L.SetGlobal("RelationshipAtLeast", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "relationship_score", "npc", L.CheckString(1), "minScore", L.CheckNumber(2)))
		return 1
	}))

	// ReputationAtLeast("wardens", 10)
	L.SetGlobal("ReputationAtLeast", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "faction_reputation", "faction", L.CheckString(1), "minReputation", L.CheckNumber(2)))
		return 1
	}))

	// Chose("gate", "enter")
	L.SetGlobal("Chose", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "choice_made", "nodeId", L.CheckString(1), "choiceContains", L.CheckString(2)))
		return 1
	}))

	// PlayersAtLeast(2)
	L.SetGlobal("PlayersAtLeast", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "player_count", "minPlayers", L.CheckNumber(1)))
		return 1
	}))

	// Chance(25) rolls a percentage.
	L.SetGlobal("Chance", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "random_chance", "probability", L.CheckNumber(1)))
		return 1
	}))
}

func registerEffectHelpers(L *lua.LState) {
	// ModifyStat("strength", -1)
	L.SetGlobal("ModifyStat", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "modify_stat", "stat", L.CheckString(1), "change", L.CheckNumber(2)))
		return 1
	}))

	// GrantItem("iron_badge")
	L.SetGlobal("GrantItem", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "grant_item", "item", L.CheckString(1)))
		return 1
	}))

	// SetFlag("gate_open", value); value defaults to true.
	L.SetGlobal("SetFlag", L.NewFunction(func(L *lua.LState) int {
		value := L.Get(2)
		if value == lua.LNil {
			value = lua.LTrue
		}
		L.Push(tagged(L, "set_flag", "flag", L.CheckString(1), "value", value))
		return 1
	}))

	say := func(L *lua.LState) int {
		L.Push(tagged(L, "show_message", "message", L.CheckString(1)))
		return 1
	}
	L.SetGlobal("ShowMessage", L.NewFunction(say))
	L.SetGlobal("Say", L.NewFunction(say))

	// AwardXP(25)
	L.SetGlobal("AwardXP", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "award_xp", "amount", L.CheckNumber(1)))
		return 1
	}))

	L.SetGlobal("UnlockPath", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "unlock_path", "pathId", L.CheckString(1)))
		return 1
	}))

	L.SetGlobal("SpawnNode", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "spawn_node", "nodeId", L.CheckString(1)))
		return 1
	}))

	// Named("badge", GrantItem("iron_badge")) labels a trigger effect.
	L.SetGlobal("Named", L.NewFunction(func(L *lua.LState) int {
		label := L.CheckString(1)
		eff := L.CheckTable(2)
		eff.RawSetString("label", lua.LString(label))
		L.Push(eff)
		return 1
	}))
}

func registerCascadeHelpers(L *lua.LState) {
	L.SetGlobal("Lock", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "lock"))
		return 1
	}))
	L.SetGlobal("Unlock", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "unlock"))
		return 1
	}))
	// ModifyDifficulty(2) makes the target interaction harder.
	L.SetGlobal("ModifyDifficulty", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "modify_difficulty", "value", L.CheckNumber(1)))
		return 1
	}))
	L.SetGlobal("ChangeOutcome", L.NewFunction(func(L *lua.LState) int {
		L.Push(tagged(L, "change_outcome", "value", L.CheckString(1)))
		return 1
	}))
}

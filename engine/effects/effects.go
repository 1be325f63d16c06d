// Package effects implements centralized state mutation via the Apply
// function. Every effect type is one atomic operation against the working
// snapshot. Effects that only the session layer can honour (XP, messages,
// unlocked paths, spawned nodes) are surfaced in the Outcome instead.
package effects

import (
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/types"
)

// Outcome is what a run of effects produced.
type Outcome struct {
	Delta         types.StateDelta
	Events        []types.Event
	Messages      []string
	XP            int
	UnlockedPaths []string
	SpawnedNodes  []string
}

// Apply applies effects to the snapshot in order, mutating it, so later
// effects observe earlier ones.
func Apply(s *types.SessionState, effs []types.Effect) Outcome {
	var out Outcome
	for _, eff := range effs {
		out.apply(s, eff)
	}
	return out
}

func (o *Outcome) apply(s *types.SessionState, eff types.Effect) {
	switch e := eff.(type) {
	case types.ModifyStat:
		cur := state.StatOrDefault(s.Stats, e.Stat)
		next := state.ClampStat(cur + e.Change)
		s.Stats[e.Stat] = next
		if o.Delta.Stats == nil {
			o.Delta.Stats = map[string]int{}
		}
		o.Delta.Stats[e.Stat] = next
		o.emit("stat_changed", map[string]any{"stat": e.Stat, "from": cur, "to": next})

	case types.SetFlag:
		v := state.CoerceFlag(e.Value)
		s.StoryFlags[e.Flag] = v
		if o.Delta.Flags == nil {
			o.Delta.Flags = map[string]any{}
		}
		o.Delta.Flags[e.Flag] = v
		o.emit("flag_changed", map[string]any{"flag": e.Flag, "value": v})

	case types.GrantItem:
		if state.AddItem(s, e.Item) {
			o.Delta.Items = append(o.Delta.Items, e.Item)
			o.emit("item_granted", map[string]any{"item": e.Item})
		}

	case types.ShowMessage:
		o.Messages = append(o.Messages, e.Text)

	case types.AwardXP:
		o.XP += e.Amount
		o.emit("xp_awarded", map[string]any{"amount": e.Amount})

	case types.UnlockPath:
		o.UnlockedPaths = append(o.UnlockedPaths, e.PathID)
		o.emit("path_unlocked", map[string]any{"path": e.PathID})

	case types.SpawnNode:
		o.SpawnedNodes = append(o.SpawnedNodes, e.NodeID)
		o.emit("node_spawned", map[string]any{"node": e.NodeID})

	case types.InvalidEffect:
		// Undecodable content does nothing.
	}
}

func (o *Outcome) emit(typ string, data map[string]any) {
	o.Events = append(o.Events, types.Event{Type: typ, Data: data})
}

// Add folds another outcome into o. Later stat and flag values win.
func (o *Outcome) Add(other Outcome) {
	for k, v := range other.Delta.Stats {
		if o.Delta.Stats == nil {
			o.Delta.Stats = map[string]int{}
		}
		o.Delta.Stats[k] = v
	}
	for k, v := range other.Delta.Flags {
		if o.Delta.Flags == nil {
			o.Delta.Flags = map[string]any{}
		}
		o.Delta.Flags[k] = v
	}
	o.Delta.Items = append(o.Delta.Items, other.Delta.Items...)
	o.Events = append(o.Events, other.Events...)
	o.Messages = append(o.Messages, other.Messages...)
	o.XP += other.XP
	o.UnlockedPaths = append(o.UnlockedPaths, other.UnlockedPaths...)
	o.SpawnedNodes = append(o.SpawnedNodes, other.SpawnedNodes...)
}

// Merge writes a delta onto a snapshot. Stats are resulting values and are
// clamped again; items keep set semantics.
func Merge(s *types.SessionState, d types.StateDelta) {
	for k, v := range d.Stats {
		s.Stats[k] = state.ClampStat(v)
	}
	for k, v := range d.Flags {
		s.StoryFlags[k] = state.CoerceFlag(v)
	}
	for _, item := range d.Items {
		state.AddItem(s, item)
	}
}

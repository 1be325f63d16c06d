// Package types defines the shared data structures for the Lore Chronicles
// rule engine. This package contains only type definitions and sum-type
// markers. No logic lives here.
package types

import "time"

// Intent is the parsed representation of a playtest command.
type Intent struct {
	Verb   string
	Object string // optional
	Target string // optional
}

// Event is emitted by the engine after a session action is processed.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Result is the output of a single playtest step.
type Result struct {
	Effects []Effect
	Events  []Event
	Output  []string
}

// Choice is one entry in a session's ordered choice history.
type Choice struct {
	NodeID     string `json:"node_id"`
	ChoiceText string `json:"choice_text"`
}

// SessionState is the evaluation snapshot for one character in one session.
// It is rebuilt for every evaluation and only changed through effects.
type SessionState struct {
	Stats       map[string]int
	StoryFlags  map[string]any
	Inventory   []string
	TurnCount   int
	Location    string // empty when the session has no location
	PlayerCount int
	ChoicesMade []Choice
}

// StateDelta accumulates what a run of effects changed. Stats hold the
// resulting values, not increments.
type StateDelta struct {
	Stats map[string]int `json:"stats,omitempty"`
	Flags map[string]any `json:"flags,omitempty"`
	Items []string       `json:"items,omitempty"`
}

// --- Triggers ---------------------------------------------------------------

// TriggerType names the predicate a trigger is evaluated with.
type TriggerType string

const (
	TriggerStatThreshold     TriggerType = "stat_threshold"
	TriggerItemPossessed     TriggerType = "item_possessed"
	TriggerFlagSet           TriggerType = "flag_set"
	TriggerRelationshipScore TriggerType = "relationship_score"
	TriggerFactionReputation TriggerType = "faction_reputation"
	TriggerChoiceMade        TriggerType = "choice_made"
	TriggerPlayerCount       TriggerType = "player_count"
	TriggerRandomChance      TriggerType = "random_chance"
)

// TriggerCondition is a sum type with one variant per TriggerType.
type TriggerCondition interface {
	triggerCondition()
}

// StatThreshold holds when Stats[Stat] >= MinValue.
type StatThreshold struct {
	Stat     string
	MinValue int
}

// ItemPossessed holds when the inventory contains ItemName, ignoring case.
type ItemPossessed struct {
	ItemName string
}

// FlagSet holds when StoryFlags[FlagName] equals FlagValue.
type FlagSet struct {
	FlagName  string
	FlagValue any
}

// RelationshipScore reads the numeric flag "relationship_<NPC>".
type RelationshipScore struct {
	NPC      string
	MinScore float64
}

// FactionReputation reads the numeric flag "faction_<Faction>".
type FactionReputation struct {
	Faction       string
	MinReputation float64
}

// ChoiceMade holds when a choice at NodeID contains Contains, ignoring case.
type ChoiceMade struct {
	NodeID   string
	Contains string
}

// PlayerCount holds when at least MinPlayers share the session.
type PlayerCount struct {
	MinPlayers int
}

// RandomChance holds when a fresh percentile roll lands below Probability.
type RandomChance struct {
	Probability float64
}

// InvalidCondition stands in for a condition whose parameters could not be
// decoded. It never holds.
type InvalidCondition struct {
	Type   string
	Reason string
}

func (StatThreshold) triggerCondition()     {}
func (ItemPossessed) triggerCondition()     {}
func (FlagSet) triggerCondition()           {}
func (RelationshipScore) triggerCondition() {}
func (FactionReputation) triggerCondition() {}
func (ChoiceMade) triggerCondition()        {}
func (PlayerCount) triggerCondition()       {}
func (RandomChance) triggerCondition()      {}
func (InvalidCondition) triggerCondition()  {}

// --- Effects ----------------------------------------------------------------

// EffectType names an effect variant.
type EffectType string

const (
	EffectUnlockPath  EffectType = "unlock_path"
	EffectSpawnNode   EffectType = "spawn_node"
	EffectModifyStat  EffectType = "modify_stat"
	EffectGrantItem   EffectType = "grant_item"
	EffectSetFlag     EffectType = "set_flag"
	EffectShowMessage EffectType = "show_message"
	EffectAwardXP     EffectType = "award_xp"
)

// Effect is a sum type with one variant per EffectType.
type Effect interface {
	effect()
}

type UnlockPath struct {
	PathID string
}

type SpawnNode struct {
	NodeID string
}

// ModifyStat adds Change to a stat and clamps the result.
type ModifyStat struct {
	Stat   string
	Change int
}

type GrantItem struct {
	Item string
}

type SetFlag struct {
	Flag  string
	Value any
}

type ShowMessage struct {
	Text string
}

type AwardXP struct {
	Amount int
}

// InvalidEffect stands in for an effect that could not be decoded. Applying
// it does nothing.
type InvalidEffect struct {
	Type   string
	Reason string
}

func (UnlockPath) effect()    {}
func (SpawnNode) effect()     {}
func (ModifyStat) effect()    {}
func (GrantItem) effect()     {}
func (SetFlag) effect()       {}
func (ShowMessage) effect()   {}
func (AwardXP) effect()       {}
func (InvalidEffect) effect() {}

// EffectSpec is one named effect in a trigger's ordered effect list.
type EffectSpec struct {
	Name   string
	Effect Effect
}

// TriggerDef is an authored condition plus the effects it fires.
type TriggerDef struct {
	ID          string
	CampaignID  string
	Name        string
	Type        TriggerType
	Condition   TriggerCondition
	IsActive    bool
	Effects     []EffectSpec
	SourceOrder int
}

// TriggerFiring records that a trigger fired in a session.
type TriggerFiring struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	CharacterID string         `json:"character_id"`
	TriggerID   string         `json:"trigger_id"`
	FiredAt     time.Time      `json:"fired_at"`
	Context     map[string]any `json:"context,omitempty"`
}

// --- Cascades ---------------------------------------------------------------

// OutcomeType is how an interaction ended.
type OutcomeType string

const (
	OutcomeGood    OutcomeType = "good"
	OutcomeBad     OutcomeType = "bad"
	OutcomeNeutral OutcomeType = "neutral"
)

// CascadeEffectType names a cascade effect variant.
type CascadeEffectType string

const (
	CascadeEffectUnlock           CascadeEffectType = "unlock"
	CascadeEffectLock             CascadeEffectType = "lock"
	CascadeEffectModifyDifficulty CascadeEffectType = "modify_difficulty"
	CascadeEffectChangeOutcome    CascadeEffectType = "change_outcome"
)

// CascadeEffect is a sum type with one variant per CascadeEffectType.
type CascadeEffect interface {
	cascadeEffect()
}

type CascadeLock struct{}

type CascadeUnlock struct{}

type CascadeDifficulty struct {
	Delta int
}

type CascadeOutcome struct {
	Outcome string
}

// InvalidCascade stands in for an undecodable cascade effect. It folds into
// nothing.
type InvalidCascade struct {
	Type   string
	Reason string
}

func (CascadeLock) cascadeEffect()       {}
func (CascadeUnlock) cascadeEffect()     {}
func (CascadeDifficulty) cascadeEffect() {}
func (CascadeOutcome) cascadeEffect()    {}
func (InvalidCascade) cascadeEffect()    {}

// CascadeRule links one interaction's outcome to an effect on another.
type CascadeRule struct {
	ID                  string
	CampaignID          string
	SourceInteractionID string
	SourceOutcome       OutcomeType
	TargetInteractionID string
	Effect              CascadeEffect
	Priority            int
	SourceOrder         int
}

// CompletedInteraction is one finished interaction and its outcome.
type CompletedInteraction struct {
	InteractionID string      `json:"interaction_id"`
	Outcome       OutcomeType `json:"outcome"`
}

// InteractionEffects is the folded cascade status of one interaction.
type InteractionEffects struct {
	IsLocked           bool   `json:"is_locked"`
	IsUnlocked         bool   `json:"is_unlocked"`
	DifficultyModifier int    `json:"difficulty_modifier"`
	OutcomeModifier    string `json:"outcome_modifier,omitempty"`
}

// CascadeLog is the append-only evidence that a cascade rule applied.
type CascadeLog struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	CharacterID string         `json:"character_id"`
	RuleID      string         `json:"rule_id"`
	AppliedAt   time.Time      `json:"applied_at"`
	Context     map[string]any `json:"context,omitempty"`
}

// --- Hints ------------------------------------------------------------------

// HintResponse is how a player answered a hint.
type HintResponse string

const (
	ResponseFollowed HintResponse = "followed"
	ResponseIgnored  HintResponse = "ignored"
	ResponseOpposite HintResponse = "opposite"
)

// HintConditions are AND-ed. Invalid is set when the authored bag could not
// be decoded; such a hint is never eligible.
type HintConditions struct {
	StatThreshold map[string]int
	FlagRequired  map[string]any
	ItemRequired  []string
	Invalid       string
}

// HintDef is an authored hint. An empty NodeID makes the hint global.
type HintDef struct {
	ID              string
	CampaignID      string
	NodeID          string
	HintType        string
	Text            string
	Conditions      HintConditions
	FollowOutcome   []Effect
	IgnoreOutcome   []Effect
	OppositeOutcome []Effect
	IsRedHerring    bool
	SourceFlavor    string
	Priority        int
	IsActive        bool
	SourceOrder     int
}

// HintResponseRecord is the append-only record of a hint response.
type HintResponseRecord struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	HintID         string         `json:"hint_id"`
	CharacterID    string         `json:"character_id"`
	Response       HintResponse   `json:"response"`
	AppliedOutcome []Effect       `json:"-"`
	Context        map[string]any `json:"context,omitempty"`
	RespondedAt    time.Time      `json:"responded_at"`
}

// HintChain groups ordered hints with a completion reward.
type HintChain struct {
	ID         string
	CampaignID string
	Name       string
	HintIDs    []string
	Reward     []Effect
}

// HintStreaks are derived from a character's response log.
type HintStreaks struct {
	FollowStreak  int `json:"follow_streak"`
	IgnoreStreak  int `json:"ignore_streak"`
	OppositeCount int `json:"opposite_count"`
}

// --- Random events ----------------------------------------------------------

// EventCategory classifies a random event.
type EventCategory string

const (
	CategoryEncounter  EventCategory = "encounter"
	CategoryWeather    EventCategory = "weather"
	CategoryFortune    EventCategory = "fortune"
	CategoryMisfortune EventCategory = "misfortune"
	CategoryDiscovery  EventCategory = "discovery"
	CategoryAmbush     EventCategory = "ambush"
)

// EventConditions are AND-ed; the zero value always holds.
type EventConditions struct {
	StatThresholds map[string]int
	RequiredFlags  map[string]any
	MinTurn        int
	Location       string
	Invalid        string
}

// RandomEvent is a probabilistic event. Probability is a percentage.
type RandomEvent struct {
	ID            string
	CampaignID    string
	Name          string
	Description   string
	Category      EventCategory
	Probability   float64
	Conditions    EventConditions
	Effects       []Effect
	IsRecurring   bool
	CooldownTurns int
	IsActive      bool
	SourceOrder   int
}

// RandomEventLog is the append-only record of a fired random event.
type RandomEventLog struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	EventID     string         `json:"event_id"`
	CharacterID string         `json:"character_id"`
	FiredAt     time.Time      `json:"fired_at"`
	Outcome     map[string]any `json:"outcome,omitempty"`
	WasPositive bool           `json:"was_positive"`
}

// --- Combat -----------------------------------------------------------------

type CombatType string

const (
	CombatPvP  CombatType = "pvp"
	CombatPvE  CombatType = "pve"
	CombatDuel CombatType = "duel"
)

type CombatStatus string

const (
	CombatPending  CombatStatus = "pending"
	CombatActive   CombatStatus = "active"
	CombatResolved CombatStatus = "resolved"
)

type CombatParticipant struct {
	CharacterID      string   `json:"character_id"`
	Role             string   `json:"role"`
	VisibleEquipment []string `json:"visible_equipment,omitempty"`
	IsReady          bool     `json:"is_ready"`
}

type CombatOutcome struct {
	WinnerID string `json:"winner_id,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// CombatEncounter moves pending -> active -> resolved. Resolved is terminal.
type CombatEncounter struct {
	ID           string              `json:"id"`
	SessionID    string              `json:"session_id"`
	NodeID       string              `json:"node_id,omitempty"`
	CombatType   CombatType          `json:"combat_type"`
	Participants []CombatParticipant `json:"participants"`
	StatsHidden  bool                `json:"stats_hidden"`
	Status       CombatStatus        `json:"status"`
	Outcome      *CombatOutcome      `json:"outcome,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ResolvedAt   *time.Time          `json:"resolved_at,omitempty"`
}

type BluffType string

const (
	BluffFlex          BluffType = "flex"
	BluffFeignWeakness BluffType = "feign_weakness"
	BluffScout         BluffType = "scout"
	BluffIntimidate    BluffType = "intimidate"
)

// RevealedInfo is the qualitative read a successful scout produces.
type RevealedInfo struct {
	Stat string `json:"stat"`
	Hint string `json:"hint"`
}

// BluffAttempt is the append-only record of one bluff.
type BluffAttempt struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	ActorID      string        `json:"actor_id"`
	TargetID     string        `json:"target_id"`
	AttemptType  BluffType     `json:"attempt_type"`
	StatUsed     string        `json:"stat_used"`
	RollValue    int           `json:"roll_value"`
	Difficulty   int           `json:"difficulty"`
	Success      bool          `json:"success"`
	RevealedInfo *RevealedInfo `json:"revealed_info,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// --- Sessions and campaign content ------------------------------------------

type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// SessionRecord is the persisted, shared state of one playthrough. It is the
// single source of truth; broadcasts only announce changes to it.
type SessionRecord struct {
	ID                    string                 `json:"id"`
	CampaignID            string                 `json:"campaign_id"`
	CurrentNodeID         string                 `json:"current_node_id"`
	CurrentTurnPlayerID   string                 `json:"current_turn_player_id"`
	TurnOrder             []string               `json:"turn_order"`
	Status                SessionStatus          `json:"status"`
	StoryFlags            map[string]any         `json:"story_flags"`
	TurnCount             int                    `json:"turn_count"`
	Location              string                 `json:"location,omitempty"`
	ChoicesMade           []Choice               `json:"choices_made"`
	CompletedInteractions []CompletedInteraction `json:"completed_interactions"`
	UnlockedPaths         []string               `json:"unlocked_paths"`
	SpawnedNodes          []string               `json:"spawned_nodes"`
	FiredEvents           []string               `json:"fired_events"`
	Version               int64                  `json:"version"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// Character holds one participant's stats and inventory.
type Character struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	PlayerID  string         `json:"player_id"`
	Stats     map[string]int `json:"stats"`
	Inventory []string       `json:"inventory"`
	XP        int            `json:"xp"`
}

// Campaign holds campaign metadata from Lua.
type Campaign struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Version   string `json:"version"`
	StartNode string `json:"start_node"`
	Intro     string `json:"intro"`
}

// NodeChoice is an option offered at a story node. InteractionID is set when
// taking the choice starts a tracked interaction.
type NodeChoice struct {
	Text          string
	Target        string
	InteractionID string
}

// StoryNode is a playtest node. The real node graph lives with the host.
type StoryNode struct {
	ID       string
	Title    string
	Text     string
	Location string
	Choices  []NodeChoice
}

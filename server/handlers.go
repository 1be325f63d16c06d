package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/nathoo/lorecore/engine"
	"github.com/nathoo/lorecore/engine/combat"
	"github.com/nathoo/lorecore/engine/triggers"
	"github.com/nathoo/lorecore/types"
)

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return false
	}
	return true
}

type campaignResponse struct {
	Campaign types.Campaign `json:"campaign"`
	Nodes    []nodeView     `json:"nodes"`
}

type nodeView struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	Location string       `json:"location,omitempty"`
	Choices  []choiceView `json:"choices,omitempty"`
}

type choiceView struct {
	Text          string `json:"text"`
	Target        string `json:"target,omitempty"`
	InteractionID string `json:"interaction_id,omitempty"`
}

func (s *Server) getCampaign(c *gin.Context) {
	ctx := c.Request.Context()
	camp, err := s.Engine.Store.Campaign(ctx, c.Param("campaign"))
	if err != nil {
		writeError(c, err)
		return
	}
	nodes, err := s.Engine.Store.Nodes(ctx, camp.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := campaignResponse{Campaign: camp, Nodes: make([]nodeView, 0, len(nodes))}
	for _, n := range nodes {
		v := nodeView{ID: n.ID, Title: n.Title, Text: n.Text, Location: n.Location}
		for _, ch := range n.Choices {
			v.Choices = append(v.Choices, choiceView{Text: ch.Text, Target: ch.Target, InteractionID: ch.InteractionID})
		}
		resp.Nodes = append(resp.Nodes, v)
	}
	sort.Slice(resp.Nodes, func(i, j int) bool { return resp.Nodes[i].ID < resp.Nodes[j].ID })
	c.JSON(http.StatusOK, resp)
}

type createSessionRequest struct {
	CampaignID string   `json:"campaign_id" binding:"required"`
	Players    []string `json:"players"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if !bind(c, &req) {
		return
	}
	rec, err := s.Engine.StartSession(c.Request.Context(), req.CampaignID, req.Players)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getSession(c *gin.Context) {
	rec, err := s.Engine.Store.Session(c.Request.Context(), c.Param("session"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type eventView struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Category types.EventCategory `json:"category"`
	Message  string              `json:"message"`
}

type actionResponse struct {
	Session         types.SessionRecord       `json:"session"`
	Character       types.Character           `json:"character"`
	FiredTriggers   []string                  `json:"fired_triggers"`
	Messages        []string                  `json:"messages"`
	XPAwarded       int                       `json:"xp_awarded"`
	UnlockedPaths   []string                  `json:"unlocked_paths,omitempty"`
	SpawnedNodes    []string                  `json:"spawned_nodes,omitempty"`
	CascadeRules    []string                  `json:"cascade_rules,omitempty"`
	HintResponse    *types.HintResponseRecord `json:"hint_response,omitempty"`
	ChainsCompleted []string                  `json:"chains_completed,omitempty"`
	RandomEvent     *eventView                `json:"random_event,omitempty"`
	Events          []types.Event             `json:"events"`
	// Warning reports trigger firings that were applied but not durably
	// logged; they may fire again.
	Warning string `json:"warning,omitempty"`
}

func newActionResponse(res engine.Result) actionResponse {
	resp := actionResponse{
		Session:         res.Session,
		Character:       res.Character,
		FiredTriggers:   res.Triggers.FiredIDs(),
		Messages:        res.Messages,
		XPAwarded:       res.XPAwarded,
		UnlockedPaths:   res.UnlockedPaths,
		SpawnedNodes:    res.SpawnedNodes,
		HintResponse:    res.HintResponse,
		ChainsCompleted: res.ChainsCompleted,
		Events:          res.Events,
	}
	for _, l := range res.CascadeLogs {
		resp.CascadeRules = append(resp.CascadeRules, l.RuleID)
	}
	if ev := res.RandomEvent; ev != nil && ev.FiredEvent != nil {
		resp.RandomEvent = &eventView{
			ID:       ev.FiredEvent.ID,
			Name:     ev.FiredEvent.Name,
			Category: ev.FiredEvent.Category,
			Message:  ev.Message,
		}
	}
	if resp.Messages == nil {
		resp.Messages = []string{}
	}
	if resp.Events == nil {
		resp.Events = []types.Event{}
	}
	return resp
}

func (s *Server) postAction(c *gin.Context) {
	var a engine.Action
	if !bind(c, &a) {
		return
	}
	if a.CharacterID == "" {
		writeError(c, fmt.Errorf("%w: character_id is required", errBadRequest))
		return
	}
	res, err := s.Engine.Handle(c.Request.Context(), c.Param("session"), a)
	var logErr *triggers.LogError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, newActionResponse(res))
	case errors.As(err, &logErr) && res.Session.ID != "":
		resp := newActionResponse(res)
		resp.Warning = err.Error()
		c.JSON(http.StatusOK, resp)
	default:
		writeError(c, err)
	}
}

type playerRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
}

func (s *Server) joinSession(c *gin.Context) {
	var req playerRequest
	if !bind(c, &req) {
		return
	}
	rec, err := s.Engine.Sync.Join(c.Request.Context(), c.Param("session"), req.PlayerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) leaveSession(c *gin.Context) {
	rec, err := s.Engine.Sync.Leave(c.Request.Context(), c.Param("session"), c.Param("player"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) advanceTurn(c *gin.Context) {
	rec, err := s.Engine.Sync.AdvanceTurn(c.Request.Context(), c.Param("session"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type nodeRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

func (s *Server) setNode(c *gin.Context) {
	var req nodeRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	rec, err := s.Engine.Store.Session(ctx, c.Param("session"))
	if err != nil {
		writeError(c, err)
		return
	}
	nodes, err := s.Engine.Store.Nodes(ctx, rec.CampaignID)
	if err != nil {
		writeError(c, err)
		return
	}
	node, ok := nodes[req.NodeID]
	if !ok {
		writeError(c, fmt.Errorf("%w: unknown node %q", errBadRequest, req.NodeID))
		return
	}
	rec, err = s.Engine.Sync.SetNode(ctx, rec.ID, req.NodeID, node.Location)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// hintView leaves out the red herring flag and the outcomes.
type hintView struct {
	ID       string `json:"id"`
	NodeID   string `json:"node_id,omitempty"`
	HintType string `json:"hint_type"`
	Text     string `json:"text"`
	Flavor   string `json:"source_flavor,omitempty"`
	Priority int    `json:"priority"`
}

func (s *Server) activeHints(c *gin.Context) {
	character := c.Query("character")
	if character == "" {
		writeError(c, fmt.Errorf("%w: character query parameter is required", errBadRequest))
		return
	}
	hs, err := s.Engine.ActiveHints(c.Request.Context(), c.Param("session"), character)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]hintView, 0, len(hs))
	for _, h := range hs {
		out = append(out, hintView{ID: h.ID, NodeID: h.NodeID, HintType: h.HintType, Text: h.Text, Flavor: h.SourceFlavor, Priority: h.Priority})
	}
	c.JSON(http.StatusOK, gin.H{"hints": out})
}

func (s *Server) streaks(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.Engine.Store.Session(ctx, c.Param("session")); err != nil {
		writeError(c, err)
		return
	}
	st, err := s.Engine.Hints.Streaks(ctx, c.Param("session"), c.Param("character"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type chainView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	HintIDs    []string `json:"hint_ids"`
	Responded  []string `json:"responded"`
	NextHintID string   `json:"next_hint_id,omitempty"`
	Completed  bool     `json:"completed"`
}

func (s *Server) chains(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := s.Engine.Store.Session(ctx, c.Param("session"))
	if err != nil {
		writeError(c, err)
		return
	}
	sts, err := s.Engine.Hints.Chains(ctx, rec.CampaignID, rec.ID, c.Param("character"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]chainView, 0, len(sts))
	for _, st := range sts {
		out = append(out, chainView{
			ID:         st.Chain.ID,
			Name:       st.Chain.Name,
			HintIDs:    st.Chain.HintIDs,
			Responded:  append([]string{}, st.Responded...),
			NextHintID: st.NextHintID,
			Completed:  st.Completed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"chains": out})
}

func (s *Server) interactionEffects(c *gin.Context) {
	fx, err := s.Engine.InteractionEffects(c.Request.Context(), c.Param("session"), c.Param("interaction"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fx)
}

type startEncounterRequest struct {
	NodeID       string                    `json:"node_id"`
	CombatType   string                    `json:"combat_type" binding:"required"`
	Participants []types.CombatParticipant `json:"participants" binding:"required"`
	StatsHidden  *bool                     `json:"stats_hidden"`
}

func (s *Server) startEncounter(c *gin.Context) {
	var req startEncounterRequest
	if !bind(c, &req) {
		return
	}
	ct, err := combat.ParseCombatType(req.CombatType)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if len(req.Participants) == 0 {
		writeError(c, fmt.Errorf("%w: at least one participant is required", errBadRequest))
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Engine.Store.Session(ctx, c.Param("session")); err != nil {
		writeError(c, err)
		return
	}
	hidden := true
	if req.StatsHidden != nil {
		hidden = *req.StatsHidden
	}
	enc, err := s.Engine.Combat.StartCombat(ctx, c.Param("session"), req.NodeID, ct, req.Participants, hidden)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, enc)
}

func (s *Server) getEncounter(c *gin.Context) {
	enc, err := s.Engine.Store.Encounter(c.Request.Context(), c.Param("encounter"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enc)
}

type readyRequest struct {
	CharacterID string `json:"character_id" binding:"required"`
}

func (s *Server) readyEncounter(c *gin.Context) {
	var req readyRequest
	if !bind(c, &req) {
		return
	}
	enc, err := s.Engine.Combat.SetReady(c.Request.Context(), c.Param("encounter"), req.CharacterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enc)
}

func (s *Server) activateEncounter(c *gin.Context) {
	enc, err := s.Engine.Combat.Activate(c.Request.Context(), c.Param("encounter"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enc)
}

func (s *Server) resolveEncounter(c *gin.Context) {
	var out types.CombatOutcome
	if !bind(c, &out) {
		return
	}
	enc, err := s.Engine.Combat.ResolveCombat(c.Request.Context(), c.Param("encounter"), out)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enc)
}

type duelRequest struct {
	Stat string `json:"stat" binding:"required"`
}

type duelView struct {
	Stat         string `json:"stat"`
	AttackerRoll int    `json:"attacker_roll"`
	DefenderRoll int    `json:"defender_roll"`
	AttackerWins bool   `json:"attacker_wins"`
}

func (s *Server) duelEncounter(c *gin.Context) {
	var req duelRequest
	if !bind(c, &req) {
		return
	}
	enc, res, err := s.Engine.Combat.DuelEncounter(c.Request.Context(), c.Param("encounter"), req.Stat)
	if err != nil {
		writeError(c, err)
		return
	}
	duel := duelView{
		Stat:         res.Stat,
		AttackerRoll: res.AttackerRoll,
		DefenderRoll: res.DefenderRoll,
		AttackerWins: res.AttackerWins,
	}
	c.JSON(http.StatusOK, gin.H{"encounter": enc, "duel": duel})
}

type bluffRequest struct {
	ActorID     string `json:"actor_id" binding:"required"`
	TargetID    string `json:"target_id" binding:"required"`
	AttemptType string `json:"attempt_type" binding:"required"`
}

func (s *Server) bluff(c *gin.Context) {
	var req bluffRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.Engine.Store.Session(ctx, c.Param("session")); err != nil {
		writeError(c, err)
		return
	}
	b, err := s.Engine.Combat.Bluff(ctx, c.Param("session"), req.ActorID, req.TargetID, types.BluffType(req.AttemptType))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

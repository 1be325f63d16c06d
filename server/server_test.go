package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nathoo/lorecore/engine"
	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/loader"
	"github.com/nathoo/lorecore/realtime"
	"github.com/nathoo/lorecore/store/memory"
	"github.com/nathoo/lorecore/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testCampaign = `
Campaign { id = "vale", title = "Ashen Vale", start = "gate" }

Node "gate" {
  text = "A rusted gate.",
  choices = {
    { text = "Enter the hall", target = "hall" },
    { text = "Cross the bridge", target = "hall", interaction = "bridge" },
  },
}
Node "hall" { text = "An empty hall.", location = "indoors" }

Character "aria" { name = "Aria", player = "p1", stats = { strength = 4, charisma = 5, wisdom = 6 } }
Character "bram" { name = "Bram", player = "p2", stats = { strength = 7, wisdom = 3 } }

Trigger "t_gate" {
  when = Chose("gate", "enter"),
  effects = { UnlockPath("hall_path"), Say("The gate swings open.") },
}

Cascade "c1" { source = "bridge", on = "bad", target = "ferry", effect = Lock() }

Hint "h1" { node = "gate", kind = "omen", text = "Look up.", red_herring = true, on_follow = { AwardXP(5) } }
`

func newTestServer(t *testing.T, rng dice.Roller) *Server {
	t.Helper()
	defs, _, err := loader.LoadString(testCampaign, "vale")
	if err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	st := memory.New()
	if err := st.SeedCampaign(context.Background(), defs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return New(engine.New(st, nil, rng))
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func startSession(t *testing.T, s *Server, players ...string) types.SessionRecord {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/sessions", map[string]any{"campaign_id": "vale", "players": players})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	return decode[types.SessionRecord](t, w)
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	env := decode[errorEnvelope](t, w)
	if env.Error.Code != code || env.Error.Message == "" {
		t.Errorf("error = %+v, want code %q", env.Error, code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	if w := do(t, s, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetCampaign(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	w := do(t, s, http.MethodGet, "/api/campaigns/vale", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[campaignResponse](t, w)
	if resp.Campaign.StartNode != "gate" || len(resp.Nodes) != 2 || resp.Nodes[0].ID != "gate" {
		t.Errorf("resp = %+v", resp)
	}
	wantError(t, do(t, s, http.MethodGet, "/api/campaigns/nope", nil), http.StatusNotFound, "not_found")
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria", "bram")
	if rec.CurrentNodeID != "gate" || rec.CurrentTurnPlayerID != "aria" {
		t.Errorf("rec = %+v", rec)
	}
	w := do(t, s, http.MethodGet, "/api/sessions/"+rec.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[types.SessionRecord](t, w); got.ID != rec.ID || got.Version != rec.Version {
		t.Errorf("got %+v", got)
	}
}

func TestCreateSession_Errors(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	wantError(t, do(t, s, http.MethodPost, "/api/sessions", map[string]any{"campaign_id": "nope"}), http.StatusNotFound, "not_found")
	wantError(t, do(t, s, http.MethodPost, "/api/sessions", "{not json"), http.StatusBadRequest, "bad_request")
	wantError(t, do(t, s, http.MethodPost, "/api/sessions", map[string]any{}), http.StatusBadRequest, "bad_request")
	wantError(t, do(t, s, http.MethodGet, "/api/sessions/missing", nil), http.StatusNotFound, "not_found")
}

func TestPostAction_Choice(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	w := do(t, s, http.MethodPost, "/api/sessions/"+rec.ID+"/actions", engine.Action{
		Kind: engine.ActionChoiceMade, CharacterID: "aria", ChoiceText: "Enter the hall", TargetNode: "hall",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[actionResponse](t, w)
	if !slices.Equal(resp.FiredTriggers, []string{"t_gate"}) {
		t.Errorf("fired = %v", resp.FiredTriggers)
	}
	if !slices.Equal(resp.Messages, []string{"The gate swings open."}) {
		t.Errorf("messages = %v", resp.Messages)
	}
	if resp.Session.CurrentNodeID != "hall" || !slices.Contains(resp.Session.UnlockedPaths, "hall_path") {
		t.Errorf("session = %+v", resp.Session)
	}
	if resp.Session.Version != rec.Version+1 {
		t.Errorf("version = %d, want %d", resp.Session.Version, rec.Version+1)
	}
}

func TestPostAction_Errors(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	path := "/api/sessions/" + rec.ID + "/actions"

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown kind", path, engine.Action{Kind: "dance", CharacterID: "aria"}, http.StatusBadRequest, "bad_request"},
		{"no character", path, engine.Action{Kind: engine.ActionNodeCompleted}, http.StatusBadRequest, "bad_request"},
		{"bad outcome", path, engine.Action{Kind: engine.ActionInteractionCompleted, CharacterID: "aria", Interaction: "bridge", Outcome: "great"}, http.StatusBadRequest, "bad_request"},
		{"bad response", path, engine.Action{Kind: engine.ActionHintResponse, CharacterID: "aria", HintID: "h1", Response: "shrug"}, http.StatusBadRequest, "bad_request"},
		{"unknown hint", path, engine.Action{Kind: engine.ActionHintResponse, CharacterID: "aria", HintID: "h9", Response: "follow"}, http.StatusNotFound, "not_found"},
		{"unknown character", path, engine.Action{Kind: engine.ActionNodeCompleted, CharacterID: "zed"}, http.StatusNotFound, "not_found"},
		{"unknown session", "/api/sessions/nope/actions", engine.Action{Kind: engine.ActionNodeCompleted, CharacterID: "aria"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantError(t, do(t, s, http.MethodPost, tt.path, tt.body), tt.status, tt.code)
		})
	}
}

func TestTurnAndPlayers(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria", "bram")
	base := "/api/sessions/" + rec.ID

	w := do(t, s, http.MethodPost, base+"/turn", nil)
	if got := decode[types.SessionRecord](t, w); got.CurrentTurnPlayerID != "bram" {
		t.Errorf("turn = %q, want bram", got.CurrentTurnPlayerID)
	}

	w = do(t, s, http.MethodPost, base+"/players", playerRequest{PlayerID: "cora"})
	if got := decode[types.SessionRecord](t, w); !slices.Equal(got.TurnOrder, []string{"aria", "bram", "cora"}) {
		t.Errorf("order = %v", got.TurnOrder)
	}

	w = do(t, s, http.MethodDelete, base+"/players/bram", nil)
	if got := decode[types.SessionRecord](t, w); got.CurrentTurnPlayerID != "cora" {
		t.Errorf("turn after bram left = %q, want cora", got.CurrentTurnPlayerID)
	}

	empty := startSession(t, s)
	wantError(t, do(t, s, http.MethodPost, "/api/sessions/"+empty.ID+"/turn", nil), http.StatusConflict, "conflict")
}

func TestSetNode(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	path := "/api/sessions/" + rec.ID + "/node"

	wantError(t, do(t, s, http.MethodPut, path, nodeRequest{NodeID: "attic"}), http.StatusBadRequest, "bad_request")
	w := do(t, s, http.MethodPut, path, nodeRequest{NodeID: "hall"})
	if got := decode[types.SessionRecord](t, w); got.CurrentNodeID != "hall" || got.Location != "indoors" {
		t.Errorf("node = %q at %q", got.CurrentNodeID, got.Location)
	}
}

func TestActiveHints(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	base := "/api/sessions/" + rec.ID

	w := do(t, s, http.MethodGet, base+"/hints?character=aria", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "herring") {
		t.Error("hint response exposes the red herring flag")
	}
	got := decode[struct {
		Hints []hintView `json:"hints"`
	}](t, w)
	if len(got.Hints) != 1 || got.Hints[0].ID != "h1" {
		t.Errorf("hints = %+v", got.Hints)
	}

	wantError(t, do(t, s, http.MethodGet, base+"/hints", nil), http.StatusBadRequest, "bad_request")
}

func TestHintStreaksAndChains(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	base := "/api/sessions/" + rec.ID
	w := do(t, s, http.MethodPost, base+"/actions", engine.Action{Kind: engine.ActionHintResponse, CharacterID: "aria", HintID: "h1", Response: "follow"})
	if w.Code != http.StatusOK {
		t.Fatalf("respond: %d %s", w.Code, w.Body.String())
	}
	if resp := decode[actionResponse](t, w); resp.XPAwarded != 5 || resp.HintResponse == nil {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, s, http.MethodGet, base+"/characters/aria/streaks", nil)
	if got := decode[types.HintStreaks](t, w); got.FollowStreak != 1 {
		t.Errorf("streaks = %+v", got)
	}
	w = do(t, s, http.MethodGet, base+"/characters/aria/chains", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("chains: %d", w.Code)
	}
}

func TestInteractionEffects(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	base := "/api/sessions/" + rec.ID
	w := do(t, s, http.MethodPost, base+"/actions", engine.Action{
		Kind: engine.ActionInteractionCompleted, CharacterID: "aria", Interaction: "bridge", Outcome: "bad",
	})
	if resp := decode[actionResponse](t, w); !slices.Equal(resp.CascadeRules, []string{"c1"}) {
		t.Errorf("cascade rules = %v", resp.CascadeRules)
	}
	w = do(t, s, http.MethodGet, base+"/interactions/ferry", nil)
	if got := decode[types.InteractionEffects](t, w); !got.IsLocked {
		t.Errorf("ferry = %+v, want locked", got)
	}
}

func TestEncounterFlow(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{Rolls: []int{2, 2}})
	rec := startSession(t, s, "aria", "bram")

	w := do(t, s, http.MethodPost, "/api/sessions/"+rec.ID+"/encounters", map[string]any{
		"combat_type": "duel",
		"participants": []map[string]any{
			{"character_id": "aria", "role": "challenger"},
			{"character_id": "bram", "role": "defender"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	enc := decode[types.CombatEncounter](t, w)
	if enc.Status != types.CombatPending || !enc.StatsHidden {
		t.Errorf("enc = %+v", enc)
	}
	base := "/api/encounters/" + enc.ID

	wantError(t, do(t, s, http.MethodPost, base+"/ready", readyRequest{CharacterID: "zed"}), http.StatusBadRequest, "bad_request")
	do(t, s, http.MethodPost, base+"/ready", readyRequest{CharacterID: "aria"})
	w = do(t, s, http.MethodPost, base+"/ready", readyRequest{CharacterID: "bram"})
	if got := decode[types.CombatEncounter](t, w); got.Status != types.CombatActive {
		t.Fatalf("status = %q, want active", got.Status)
	}

	w = do(t, s, http.MethodPost, base+"/duel", duelRequest{Stat: "strength"})
	if w.Code != http.StatusOK {
		t.Fatalf("duel: %d %s", w.Code, w.Body.String())
	}
	got := decode[struct {
		Encounter types.CombatEncounter `json:"encounter"`
		Duel      duelView              `json:"duel"`
	}](t, w)
	// 4+2 against 7+2: the defender wins.
	if got.Duel.AttackerRoll != 6 || got.Duel.DefenderRoll != 9 || got.Duel.AttackerWins {
		t.Errorf("duel = %+v", got.Duel)
	}
	if got.Encounter.Status != types.CombatResolved || got.Encounter.Outcome.WinnerID != "bram" {
		t.Errorf("encounter = %+v", got.Encounter)
	}

	wantError(t, do(t, s, http.MethodPost, base+"/resolve", types.CombatOutcome{WinnerID: "aria"}), http.StatusConflict, "conflict")
	wantError(t, do(t, s, http.MethodGet, "/api/encounters/none", nil), http.StatusNotFound, "not_found")
}

func TestStartEncounter_Errors(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria")
	path := "/api/sessions/" + rec.ID + "/encounters"
	wantError(t, do(t, s, http.MethodPost, path, map[string]any{
		"combat_type": "brawl", "participants": []map[string]any{{"character_id": "aria"}},
	}), http.StatusBadRequest, "bad_request")
	wantError(t, do(t, s, http.MethodPost, path, map[string]any{
		"combat_type": "pve", "participants": []map[string]any{},
	}), http.StatusBadRequest, "bad_request")
}

func TestBluff(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{Rolls: []int{1}})
	rec := startSession(t, s, "aria", "bram")
	path := "/api/sessions/" + rec.ID + "/bluffs"

	w := do(t, s, http.MethodPost, path, bluffRequest{ActorID: "aria", TargetID: "bram", AttemptType: "flex"})
	if w.Code != http.StatusCreated {
		t.Fatalf("bluff: %d %s", w.Code, w.Body.String())
	}
	b := decode[types.BluffAttempt](t, w)
	if b.RollValue != 6 || b.Difficulty != 5 || !b.Success {
		t.Errorf("bluff = %+v", b)
	}

	wantError(t, do(t, s, http.MethodPost, path, bluffRequest{ActorID: "aria", TargetID: "bram", AttemptType: "juggle"}), http.StatusBadRequest, "bad_request")
	wantError(t, do(t, s, http.MethodPost, path, bluffRequest{ActorID: "aria", TargetID: "zed", AttemptType: "flex"}), http.StatusNotFound, "not_found")
}

func TestStatusFor(t *testing.T) {
	if status, code := statusFor(context.Canceled); status != http.StatusInternalServerError || code != "internal" {
		t.Errorf("got %d %s", status, code)
	}
}

func readUpdate(t *testing.T, conn *websocket.Conn, kind string) realtime.Update {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	for {
		var u realtime.Update
		if err := conn.ReadJSON(&u); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if u.Kind == kind {
			return u
		}
	}
}

func TestFeed(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	rec := startSession(t, s, "aria", "bram")
	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + rec.ID + "/feed?player=p1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	snap := readUpdate(t, conn, KindSnapshot)
	if snap.SessionID != rec.ID || snap.Version != rec.Version || snap.CurrentNodeID != "gate" {
		t.Errorf("snapshot = %+v", snap)
	}
	if p := readUpdate(t, conn, realtime.KindPresence); !slices.Contains(p.Online, "p1") {
		t.Errorf("presence = %+v", p)
	}
	if err := conn.WriteJSON(clientMessage{Type: "heartbeat"}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(ts.URL+"/api/sessions/"+rec.ID+"/turn", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	u := readUpdate(t, conn, realtime.KindTurn)
	if u.CurrentTurnPlayerID != "bram" || u.Version != rec.Version+1 {
		t.Errorf("turn update = %+v", u)
	}
}

func TestFeed_UnknownSession(t *testing.T) {
	s := newTestServer(t, &dice.Scripted{})
	wantError(t, do(t, s, http.MethodGet, "/api/sessions/nope/feed", nil), http.StatusNotFound, "not_found")
}

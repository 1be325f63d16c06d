package save

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/types"
)

func testSession() types.SessionRecord {
	return types.SessionRecord{
		ID:                  "s1",
		CampaignID:          "vale",
		CurrentNodeID:       "hall",
		CurrentTurnPlayerID: "aria",
		TurnOrder:           []string{"aria", "bram"},
		Status:              types.SessionActive,
		StoryFlags:          map[string]any{"door_open": true, "torches": 3},
		TurnCount:           7,
		ChoicesMade:         []types.Choice{{NodeID: "gate", ChoiceText: "Enter"}},
		UnlockedPaths:       []string{"hall_path"},
		Version:             9,
		UpdatedAt:           time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	rng := dice.NewRNG(42)
	for range 5 {
		rng.Roll(6)
	}
	chars := []types.Character{{ID: "aria", Name: "Aria", Stats: map[string]int{"strength": 6}, Inventory: []string{"torch"}, XP: 30}}
	camp := types.Campaign{ID: "vale", Title: "Ashen Vale", Version: "1.0"}

	data, err := Save(camp, testSession(), chars, rng)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	sd, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if sd.Campaign.Title != "Ashen Vale" {
		t.Errorf("campaign = %q", sd.Campaign.Title)
	}
	if sd.Session.CurrentNodeID != "hall" || sd.Session.TurnCount != 7 || sd.Session.Version != 9 {
		t.Errorf("session = %+v", sd.Session)
	}
	if sd.Session.StoryFlags["door_open"] != true {
		t.Errorf("door_open = %v", sd.Session.StoryFlags["door_open"])
	}
	if !sd.Session.UpdatedAt.Equal(testSession().UpdatedAt) {
		t.Errorf("updated at = %v", sd.Session.UpdatedAt)
	}
	if len(sd.Characters) != 1 || sd.Characters[0].XP != 30 || sd.Characters[0].Stats["strength"] != 6 {
		t.Errorf("characters = %+v", sd.Characters)
	}
	if sd.RNGSeed != 42 || sd.RNGPosition != 5 {
		t.Errorf("rng = (%d, %d), want (42, 5)", sd.RNGSeed, sd.RNGPosition)
	}
}

func TestRestoredRNGContinues(t *testing.T) {
	rng := dice.NewRNG(7)
	rng.Roll(20)
	rng.Percent()

	data, err := Save(types.Campaign{}, testSession(), nil, rng)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	sd, err := Load(data)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	restored := sd.RNG()
	for i := range 10 {
		if a, b := rng.Roll(100), restored.Roll(100); a != b {
			t.Fatalf("roll %d: original %d, restored %d", i, a, b)
		}
	}
}

func TestLoad_NormalizesNils(t *testing.T) {
	raw := `{"version":"1","session":{"id":"s1"},"characters":[{"id":"aria"}]}`
	sd, err := Load([]byte(raw))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if sd.Session.StoryFlags == nil || sd.Session.TurnOrder == nil || sd.Session.ChoicesMade == nil {
		t.Errorf("session has nil fields: %+v", sd.Session)
	}
	if sd.Characters[0].Stats == nil || sd.Characters[0].Inventory == nil {
		t.Errorf("character has nil fields: %+v", sd.Characters[0])
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `not json at all`},
		{"wrong version", `{"version":"99","session":{"id":"s1"}}`},
		{"no session", `{"version":"1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSave_ValidJSON(t *testing.T) {
	data, err := Save(types.Campaign{ID: "vale"}, testSession(), nil, nil)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("save is not valid JSON: %v", err)
	}
	for _, key := range []string{"version", "campaign", "session", "characters", "rng_seed", "rng_position"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

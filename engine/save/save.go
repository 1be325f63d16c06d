// Package save implements JSON snapshots of a playtest session.
package save

import (
	"encoding/json"
	"fmt"

	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/types"
)

// FormatVersion is written to every snapshot.
const FormatVersion = "1"

// SaveData is the JSON-serializable save format.
type SaveData struct {
	Version     string              `json:"version"`
	Campaign    types.Campaign      `json:"campaign"`
	Session     types.SessionRecord `json:"session"`
	Characters  []types.Character   `json:"characters"`
	RNGSeed     int64               `json:"rng_seed"`
	RNGPosition int64               `json:"rng_position"`
}

// Save serializes a session, its characters and the RNG position. A nil
// rng records seed and position zero.
func Save(camp types.Campaign, rec types.SessionRecord, chars []types.Character, rng *dice.RNG) ([]byte, error) {
	data := SaveData{
		Version:    FormatVersion,
		Campaign:   camp,
		Session:    rec,
		Characters: chars,
	}
	if rng != nil {
		data.RNGSeed = rng.Seed()
		data.RNGPosition = rng.Position()
	}
	return json.MarshalIndent(data, "", "  ")
}

// Load deserializes a snapshot. Maps and slices are never nil after load.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	if sd.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported save version %q", sd.Version)
	}
	if sd.Session.ID == "" {
		return nil, fmt.Errorf("save has no session")
	}
	rec := &sd.Session
	if rec.StoryFlags == nil {
		rec.StoryFlags = map[string]any{}
	}
	if rec.TurnOrder == nil {
		rec.TurnOrder = []string{}
	}
	if rec.ChoicesMade == nil {
		rec.ChoicesMade = []types.Choice{}
	}
	if rec.CompletedInteractions == nil {
		rec.CompletedInteractions = []types.CompletedInteraction{}
	}
	if sd.Characters == nil {
		sd.Characters = []types.Character{}
	}
	for i := range sd.Characters {
		if sd.Characters[i].Stats == nil {
			sd.Characters[i].Stats = map[string]int{}
		}
		if sd.Characters[i].Inventory == nil {
			sd.Characters[i].Inventory = []string{}
		}
	}
	return &sd, nil
}

// RNG rebuilds the roller at the saved position.
func (sd *SaveData) RNG() *dice.RNG {
	return dice.Restore(sd.RNGSeed, sd.RNGPosition)
}

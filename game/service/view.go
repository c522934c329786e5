package service

import (
	"encoding/json"

	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/engine"
)

// PlayerView is a player as one viewer sees it. Points is nil when the
// viewer may not see it.
type PlayerView struct {
	*engine.Player
	Points *int `json:"points,omitempty"`
}

// GameView is a game as one viewer sees it
type GameView struct {
	*engine.Game
	Players []*PlayerView `json:"players"`
}

// GiftOutcome is a gift result with the receiver projected for the giver
type GiftOutcome struct {
	*combat.GiftResult
	Receiver *PlayerView `json:"receiver"`
}

// pointsVisible reports whether viewer may see p's point total
func pointsVisible(g *engine.Game, p *engine.Player, viewer string) bool {
	return g.Mode != engine.ModeHidden || p.UserID == viewer
}

// NewPlayerView projects p for viewer
func NewPlayerView(g *engine.Game, p *engine.Player, viewer string) *PlayerView {
	if p == nil {
		return nil
	}
	v := &PlayerView{Player: p}
	if pointsVisible(g, p, viewer) {
		points := p.Points
		v.Points = &points
	}
	return v
}

// NewGameView projects g for viewer. Hidden games show each viewer only
// their own points.
func NewGameView(g *engine.Game, viewer string) *GameView {
	if g == nil {
		return nil
	}
	v := &GameView{Game: g, Players: make([]*PlayerView, 0, len(g.Players))}
	for _, p := range g.Players {
		v.Players = append(v.Players, NewPlayerView(g, p, viewer))
	}
	return v
}

// secretFields are the payload keys of each log type that carry a point total
var secretFields = map[engine.LogType][]string{
	engine.LogPointAdd:      {"amount", "old_points", "new_points"},
	engine.LogPointSubtract: {"amount", "old_points", "new_points"},
	engine.LogLeave:         {"points"},
}

// redactLogs strips other players' point totals from the entries of a
// hidden game. Entries are copied; the input is left untouched.
func redactLogs(g *engine.Game, entries []engine.LogEntry, viewer string) []engine.LogEntry {
	if g.Mode != engine.ModeHidden {
		return entries
	}
	out := make([]engine.LogEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		keys, ok := secretFields[e.Type]
		if !ok {
			continue
		}

		var payload map[string]json.RawMessage
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			out[i].Payload = json.RawMessage(`{}`)
			continue
		}
		var owner string
		if raw, ok := payload["player"]; ok {
			_ = json.Unmarshal(raw, &owner)
		}
		if owner != "" && owner == viewer {
			continue
		}
		for _, k := range keys {
			delete(payload, k)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			data = json.RawMessage(`{}`)
		}
		out[i].Payload = data
	}
	return out
}

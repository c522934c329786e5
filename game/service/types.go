package service

import (
	"time"

	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/engine"
)

// GameSummary is the list view of a game
type GameSummary struct {
	ID          string       `json:"id"`
	Phase       engine.Phase `json:"phase"`
	Mode        engine.Mode  `json:"mode"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	Players     int          `json:"players"`
	Living      int          `json:"living"`
	NextPointAt *time.Time   `json:"next_point_at,omitempty"`
}

func summarize(g *engine.Game) *GameSummary {
	return &GameSummary{
		ID:          g.ID,
		Phase:       g.Phase,
		Mode:        g.Mode,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		Players:     len(g.Players),
		Living:      len(g.Living()),
		NextPointAt: g.NextPointAt,
	}
}

// AttackOutcome is an attack result plus the game-over check that follows it.
// Defender is projected for the attacker.
type AttackOutcome struct {
	*combat.AttackResult
	Defender *PlayerView `json:"defender"`
	GameOver bool        `json:"game_over"`
	Winners  []string    `json:"winners,omitempty"`
}

// LeaveResult describes a player leaving a running game
type LeaveResult struct {
	Player   *engine.Player `json:"player"`
	GameOver bool           `json:"game_over"`
	Winners  []string       `json:"winners,omitempty"`
}

// PlayerStats is one row of the stats table. Points is nil when the viewer
// may not see it.
type PlayerStats struct {
	UserID   string          `json:"user_id"`
	Lives    int             `json:"lives"`
	Points   *int            `json:"points,omitempty"`
	Range    int             `json:"range"`
	Kills    int             `json:"kills"`
	Alive    bool            `json:"alive"`
	Team     string          `json:"team,omitempty"`
	Color    string          `json:"color"`
	Position engine.Position `json:"position"`
}

// Event payloads published after each command

type walkEvent struct {
	Player string            `json:"player"`
	From   engine.Position   `json:"from"`
	To     engine.Position   `json:"to"`
	Steps  int               `json:"steps"`
	Path   []engine.Position `json:"path"`
}

type attackEvent struct {
	Attacker          string `json:"attacker"`
	Defender          string `json:"defender"`
	Killed            bool   `json:"killed"`
	PointsTransferred int    `json:"points_transferred,omitempty"`
	RemainingLives    int    `json:"remaining_lives"`
}

type giftEvent struct {
	Giver    string `json:"giver"`
	Receiver string `json:"receiver"`
	Amount   int    `json:"amount"`
}

type rangeEvent struct {
	Player   string `json:"player"`
	OldRange int    `json:"old_range"`
	NewRange int    `json:"new_range"`
}

type endEvent struct {
	Actor   string   `json:"actor"`
	Forced  bool     `json:"forced"`
	Winners []string `json:"winners,omitempty"`
}

type startedEvent struct {
	Actor       string        `json:"actor"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	NextPointAt *time.Time    `json:"next_point_at,omitempty"`
	Board       *engine.Board `json:"board"`
}

type leaveEvent struct {
	Player string `json:"player"`
}

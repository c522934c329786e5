package engine

import (
	"encoding/json"
	"time"
)

// Phase is the lifecycle phase of a game
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseStarting Phase = "starting"
	PhaseStarted  Phase = "started"
	PhaseEnded    Phase = "ended"
)

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	switch p {
	case PhaseSetup, PhaseStarting, PhaseStarted, PhaseEnded:
		return true
	}
	return false
}

// Mode selects the win condition and visibility rules of a game
type Mode string

const (
	ModeFFA    Mode = "ffa"
	ModeHidden Mode = "hidden"
	ModeTeam   Mode = "team"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFFA, ModeHidden, ModeTeam:
		return m, nil
	}
	return "", ErrInvalidMode
}

// Game rule constants
const (
	DefaultLives     = 3
	DefaultPoints    = 1
	DefaultRange     = 2
	DefaultMaxPlayer = 20
	MinPlayers       = 2

	// RangeCost is charged by every range increase, at the check and at the mutation
	RangeCost = 2
	// WalkCost is charged per step actually taken
	WalkCost = 1
	// AttackCost is charged per attack
	AttackCost = 1
	// MinGift is the smallest giftable amount
	MinGift = 1
	// MinLivingToLeave is the living-player count required before someone may leave
	MinLivingToLeave = 5

	BoardWidthPerPlayer  = 5
	BoardHeightPerPlayer = 3

	UnsetColor = "UNSET"
)

// Position represents x,y coordinates on the board
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Unplaced is the sentinel position of a player that has no cell
var Unplaced = Position{X: -1, Y: -1}

// Player is one participant of a game
type Player struct {
	ID       string   `json:"id"`
	GameID   string   `json:"game_id"`
	UserID   string   `json:"user_id"`
	Seat     int      `json:"seat"`
	Position Position `json:"position"`
	Lives    int      `json:"lives"`
	Points   int      `json:"points"`
	Range    int      `json:"range"`
	Kills    int      `json:"kills"`
	Color    string   `json:"color"`
	Team     string   `json:"team,omitempty"`
	Version  int      `json:"version"`
}

// Alive reports whether the player still has lives
func (p *Player) Alive() bool {
	return p.Lives > 0
}

// Clone returns a copy of the player
func (p *Player) Clone() *Player {
	c := *p
	return &c
}

// Game is the full state of one game including its roster
type Game struct {
	ID             string        `json:"id"`
	Phase          Phase         `json:"phase"`
	Mode           Mode          `json:"mode"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	PointInterval  time.Duration `json:"point_interval"`
	NextPointAt    *time.Time    `json:"next_point_at,omitempty"`
	CreatedBy      string        `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	PreviousGameID string        `json:"previous_game_id,omitempty"`
	Players        []*Player     `json:"players"`
}

// Player returns the player with the given user id, or nil
func (g *Game) Player(userID string) *Player {
	for _, p := range g.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Living returns the players with lives left, in seat order
func (g *Game) Living() []*Player {
	living := make([]*Player, 0, len(g.Players))
	for _, p := range g.Players {
		if p.Alive() {
			living = append(living, p)
		}
	}
	return living
}

// IsOwner reports whether userID created the game
func (g *Game) IsOwner(userID string) bool {
	return g.CreatedBy == userID
}

// Replace swaps the stored player that has the same id as p
func (g *Game) Replace(p *Player) {
	for i, existing := range g.Players {
		if existing.ID == p.ID {
			g.Players[i] = p
			return
		}
	}
}

// Clone returns a deep copy of the game and its players
func (g *Game) Clone() *Game {
	c := *g
	if g.NextPointAt != nil {
		next := *g.NextPointAt
		c.NextPointAt = &next
	}
	c.Players = make([]*Player, len(g.Players))
	for i, p := range g.Players {
		c.Players[i] = p.Clone()
	}
	return &c
}

// LogType identifies the kind of audit log entry
type LogType string

const (
	LogInfo          LogType = "info"
	LogWalk          LogType = "walk"
	LogAttack        LogType = "attack"
	LogKill          LogType = "kill"
	LogGift          LogType = "gift"
	LogRangeIncrease LogType = "range_increase"
	LogPointAdd      LogType = "point_add"
	LogPointSubtract LogType = "point_subtract"
	LogLifeAdd       LogType = "life_add"
	LogLifeRemove    LogType = "life_remove"
	LogAPGranted     LogType = "ap_granted"
	LogLeave         LogType = "leave"
	LogEnd           LogType = "end"
)

// LogEntry is an immutable audit record of a mutation
type LogEntry struct {
	ID        int64           `json:"id"`
	GameID    string          `json:"game_id"`
	Type      LogType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewLogEntry marshals payload into a log entry for gameID
func NewLogEntry(gameID string, typ LogType, payload any, at time.Time) (LogEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return LogEntry{}, err
	}
	return LogEntry{
		GameID:    gameID,
		Type:      typ,
		Payload:   data,
		CreatedAt: at,
	}, nil
}

// BoardPlayer is the renderer-facing projection of one player
type BoardPlayer struct {
	PlayerID string `json:"player_id"`
	UserID   string `json:"user_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Lives    int    `json:"lives"`
	Range    int    `json:"range"`
	Color    string `json:"color"`
	Team     string `json:"team,omitempty"`
}

// Board is the read-only projection consumed by board renderers
type Board struct {
	GameID  string        `json:"game_id"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Players []BoardPlayer `json:"players"`
}

// Board projects the game into its renderer view
func (g *Game) Board() *Board {
	b := &Board{
		GameID:  g.ID,
		Width:   g.Width,
		Height:  g.Height,
		Players: make([]BoardPlayer, 0, len(g.Players)),
	}
	for _, p := range g.Players {
		b.Players = append(b.Players, BoardPlayer{
			PlayerID: p.ID,
			UserID:   p.UserID,
			X:        p.Position.X,
			Y:        p.Position.Y,
			Lives:    p.Lives,
			Range:    p.Range,
			Color:    p.Color,
			Team:     p.Team,
		})
	}
	return b
}

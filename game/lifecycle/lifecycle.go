// Package lifecycle drives a game through its phases and owns roster
// changes.
//
//	setup ──FinishSetup──▶ starting ──Start──▶ started ──End/ForceEnd──▶ ended
//	                                                                    │
//	               setup ◀───────────────PlayAgain──────────────────────┘
//
// Every operation runs inside the caller's unit of work and updates the
// passed game in place.
package lifecycle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/store"
)

// SystemActor is recorded as the actor of automatic transitions
const SystemActor = "SYSTEM"

// Rules are the tunable roster and starting-stat settings
type Rules struct {
	MaxPlayers  int
	StartLives  int
	StartPoints int
	StartRange  int
}

// DefaultRules returns the classic game settings
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:  engine.DefaultMaxPlayer,
		StartLives:  engine.DefaultLives,
		StartPoints: engine.DefaultPoints,
		StartRange:  engine.DefaultRange,
	}
}

// Info is the payload of info entries
type Info struct {
	Message string `json:"message"`
	Player  string `json:"player,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

// EndLog is the payload of end entries
type EndLog struct {
	Message string   `json:"message"`
	Actor   string   `json:"actor"`
	Winners []string `json:"winners,omitempty"`
}

// Manager applies lifecycle transitions
type Manager struct {
	ledger *ledger.Ledger
	rules  Rules
	now    func() time.Time
	newID  func() string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Manager
type Option func(*Manager)

// WithRules overrides the default rules
func WithRules(r Rules) Option {
	return func(m *Manager) { m.rules = r }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand sets the source used for spawn cells and colors
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

// WithIDs sets the id generator for games and players
func WithIDs(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// New creates a lifecycle manager writing through l
func New(l *ledger.Ledger, opts ...Option) *Manager {
	m := &Manager{
		ledger: l,
		rules:  DefaultRules(),
		now:    time.Now,
		newID:  uuid.NewString,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules returns the active rules
func (m *Manager) Rules() Rules {
	return m.rules
}

func (m *Manager) newPlayer(gameID, userID string, seat int, team string) *engine.Player {
	return &engine.Player{
		ID:       m.newID(),
		GameID:   gameID,
		UserID:   userID,
		Seat:     seat,
		Position: engine.Unplaced,
		Lives:    m.rules.StartLives,
		Points:   m.rules.StartPoints,
		Range:    m.rules.StartRange,
		Color:    engine.UnsetColor,
		Team:     team,
	}
}

func requirePhase(g *engine.Game, phase engine.Phase) error {
	if g.Phase != phase {
		return engine.ErrWrongPhase
	}
	return nil
}

// requireSetupOwner guards every roster and settings change
func requireSetupOwner(g *engine.Game, actor string) error {
	if err := requirePhase(g, engine.PhaseSetup); err != nil {
		return err
	}
	if !g.IsOwner(actor) {
		return engine.ErrNotOwner
	}
	return nil
}

func (m *Manager) update(ctx context.Context, tx store.Tx, g *engine.Game) error {
	if err := tx.UpdateGame(ctx, g); err != nil {
		return fmt.Errorf("update game %s: %w", g.ID, err)
	}
	return nil
}

// CreateSetupGame creates a game in setup with creator as its only player
func (m *Manager) CreateSetupGame(ctx context.Context, tx store.Tx, creator string, mode engine.Mode, interval time.Duration) (*engine.Game, error) {
	if creator == "" {
		return nil, engine.ErrMissingUser
	}
	if _, err := engine.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, engine.ErrInvalidPointInterval
	}

	g := &engine.Game{
		ID:            m.newID(),
		Phase:         engine.PhaseSetup,
		Mode:          mode,
		PointInterval: interval,
		CreatedBy:     creator,
		CreatedAt:     m.now().UTC(),
	}
	g.Players = []*engine.Player{m.newPlayer(g.ID, creator, 0, "")}
	if err := tx.InsertGame(ctx, g); err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	if _, err := m.ledger.Log(ctx, tx, g.ID, engine.LogInfo, Info{Message: "Game has been created", Actor: creator}); err != nil {
		return nil, err
	}
	return g, nil
}

// AddPlayer adds userID to a game in setup
func (m *Manager) AddPlayer(ctx context.Context, tx store.Tx, g *engine.Game, actor, userID string) (*engine.Player, error) {
	if err := requireSetupOwner(g, actor); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, engine.ErrMissingUser
	}
	if g.Player(userID) != nil {
		return nil, engine.ErrAlreadyInGame
	}
	if len(g.Players) >= m.rules.MaxPlayers {
		return nil, engine.ErrRosterFull
	}

	seat := 0
	for _, p := range g.Players {
		seat = max(seat, p.Seat+1)
	}
	p := m.newPlayer(g.ID, userID, seat, "")
	if err := tx.InsertPlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("insert player: %w", err)
	}
	if _, err := m.ledger.Log(ctx, tx, g.ID, engine.LogInfo, Info{Message: "Player has been added to the game", Player: userID, Actor: actor}); err != nil {
		return nil, err
	}
	g.Players = append(g.Players, p)
	return p.Clone(), nil
}

// RemovePlayer deletes userID from a game in setup. The roster never drops
// below two players.
func (m *Manager) RemovePlayer(ctx context.Context, tx store.Tx, g *engine.Game, actor, userID string) error {
	if err := requireSetupOwner(g, actor); err != nil {
		return err
	}
	p := g.Player(userID)
	if p == nil {
		return engine.ErrPlayerNotFound
	}
	if len(g.Players) <= engine.MinPlayers {
		return engine.ErrRosterMinimum
	}

	if err := tx.DeletePlayer(ctx, g.ID, p.ID); err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if _, err := m.ledger.Log(ctx, tx, g.ID, engine.LogInfo, Info{Message: "Player has been removed from the game", Player: userID, Actor: actor}); err != nil {
		return err
	}
	for i, existing := range g.Players {
		if existing.ID == p.ID {
			g.Players = append(g.Players[:i], g.Players[i+1:]...)
			break
		}
	}
	return nil
}

// SetMode changes the win condition while in setup
func (m *Manager) SetMode(ctx context.Context, tx store.Tx, g *engine.Game, actor string, mode engine.Mode) error {
	if err := requireSetupOwner(g, actor); err != nil {
		return err
	}
	if _, err := engine.ParseMode(string(mode)); err != nil {
		return err
	}
	g.Mode = mode
	return m.update(ctx, tx, g)
}

// SetPointInterval changes how often points are granted while in setup
func (m *Manager) SetPointInterval(ctx context.Context, tx store.Tx, g *engine.Game, actor string, interval time.Duration) error {
	if err := requireSetupOwner(g, actor); err != nil {
		return err
	}
	if interval <= 0 {
		return engine.ErrInvalidPointInterval
	}
	g.PointInterval = interval
	return m.update(ctx, tx, g)
}

// SetTeam assigns userID to team while in setup; an empty team clears it
func (m *Manager) SetTeam(ctx context.Context, tx store.Tx, g *engine.Game, actor, userID, team string) (*engine.Player, error) {
	if err := requireSetupOwner(g, actor); err != nil {
		return nil, err
	}
	p := g.Player(userID)
	if p == nil {
		return nil, engine.ErrPlayerNotFound
	}
	next := p.Clone()
	next.Team = team
	if err := tx.UpdatePlayer(ctx, next); err != nil {
		return nil, fmt.Errorf("update player: %w", err)
	}
	g.Replace(next)
	return next.Clone(), nil
}

// FinishSetup sizes the board, places every tank on a distinct cell with a
// distinct color and moves the game to starting
func (m *Manager) FinishSetup(ctx context.Context, tx store.Tx, g *engine.Game, actor string) error {
	if err := requireSetupOwner(g, actor); err != nil {
		return err
	}
	if len(g.Players) < engine.MinPlayers {
		return engine.ErrRosterMinimum
	}
	if len(g.Players) > m.rules.MaxPlayers {
		return engine.ErrRosterFull
	}

	m.rngMu.Lock()
	g.Place(m.rng)
	m.rngMu.Unlock()

	for _, p := range g.Players {
		if err := tx.UpdatePlayer(ctx, p); err != nil {
			return fmt.Errorf("place player %s: %w", p.UserID, err)
		}
	}
	g.Phase = engine.PhaseStarting
	if err := m.update(ctx, tx, g); err != nil {
		return err
	}
	_, err := m.ledger.Log(ctx, tx, g.ID, engine.LogInfo, Info{Message: "Game has been finished setting up", Actor: actor})
	return err
}

// Start moves a starting game to started. The first point grant is due
// immediately.
func (m *Manager) Start(ctx context.Context, tx store.Tx, g *engine.Game, actor string) error {
	if err := requirePhase(g, engine.PhaseStarting); err != nil {
		return err
	}
	if len(g.Players) < engine.MinPlayers {
		return engine.ErrRosterMinimum
	}
	now := m.now().UTC()
	g.Phase = engine.PhaseStarted
	g.NextPointAt = &now
	if err := m.update(ctx, tx, g); err != nil {
		return err
	}
	_, err := m.ledger.Log(ctx, tx, g.ID, engine.LogInfo, Info{Message: "Game has started", Actor: actor})
	return err
}

// End finishes a started game that has a winner. It reports false without
// error when the game had already ended.
func (m *Manager) End(ctx context.Context, tx store.Tx, g *engine.Game) (bool, error) {
	return m.end(ctx, tx, g, EndLog{
		Message: "Game over",
		Actor:   SystemActor,
		Winners: engine.UserIDs(g.Winners()),
	})
}

// ForceEnd stops a started game on request. An empty actor is recorded as
// the system. It reports false without error when the game had already
// ended.
func (m *Manager) ForceEnd(ctx context.Context, tx store.Tx, g *engine.Game, actor string) (bool, error) {
	if actor == "" {
		actor = SystemActor
	}
	return m.end(ctx, tx, g, EndLog{Message: "Game was force-ended", Actor: actor})
}

func (m *Manager) end(ctx context.Context, tx store.Tx, g *engine.Game, payload EndLog) (bool, error) {
	switch g.Phase {
	case engine.PhaseEnded:
		return false, nil
	case engine.PhaseStarted:
	default:
		return false, engine.ErrWrongPhase
	}
	g.Phase = engine.PhaseEnded
	g.NextPointAt = nil
	if err := m.update(ctx, tx, g); err != nil {
		return false, err
	}
	if _, err := m.ledger.Log(ctx, tx, g.ID, engine.LogEnd, payload); err != nil {
		return false, err
	}
	return true, nil
}

// Leave takes a living player out of a running game. At least five tanks
// must be alive so that four remain.
func (m *Manager) Leave(ctx context.Context, tx store.Tx, g *engine.Game, userID string) (*engine.Player, error) {
	if err := requirePhase(g, engine.PhaseStarted); err != nil {
		return nil, err
	}
	p := g.Player(userID)
	if p == nil {
		return nil, engine.ErrPlayerNotFound
	}
	if !p.Alive() {
		return nil, engine.ErrPlayerNotAlive
	}
	if len(g.Living()) < engine.MinLivingToLeave {
		return nil, engine.ErrLeaveDenied
	}
	return m.ledger.Vacate(ctx, tx, g, userID)
}

// PlayAgain creates a new setup game from an ended one, keeping its roster,
// teams, mode and interval. actor becomes the owner without joining.
func (m *Manager) PlayAgain(ctx context.Context, tx store.Tx, source *engine.Game, actor string) (*engine.Game, error) {
	if actor == "" {
		return nil, engine.ErrMissingUser
	}
	if err := requirePhase(source, engine.PhaseEnded); err != nil {
		return nil, err
	}

	g := &engine.Game{
		ID:             m.newID(),
		Phase:          engine.PhaseSetup,
		Mode:           source.Mode,
		PointInterval:  source.PointInterval,
		CreatedBy:      actor,
		CreatedAt:      m.now().UTC(),
		PreviousGameID: source.ID,
	}
	for i, p := range source.Players {
		g.Players = append(g.Players, m.newPlayer(g.ID, p.UserID, i, p.Team))
	}
	if err := tx.InsertGame(ctx, g); err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	if _, err := m.ledger.Log(ctx, tx, g.ID, engine.LogInfo, Info{Message: "Game has been created from a previous game", Actor: actor}); err != nil {
		return nil, err
	}
	return g, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/events"
	"github.com/wricardo/tank-tactics/game/lifecycle"
	"github.com/wricardo/tank-tactics/game/scheduler"
	"github.com/wricardo/tank-tactics/game/store"
)

// DefaultPointInterval is used when a game is created without an interval
const DefaultPointInterval = time.Hour

// Deps are the collaborators of the game service
type Deps struct {
	Store     store.Store
	Lifecycle *lifecycle.Manager
	Combat    *combat.Resolver
	Scheduler *scheduler.Scheduler
	// Bus may be nil when nobody observes the games
	Bus    events.Publisher
	Logger logrus.FieldLogger
	Now    func() time.Time

	DefaultPointInterval time.Duration
}

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	store     store.Store
	lifecycle *lifecycle.Manager
	combat    *combat.Resolver
	scheduler *scheduler.Scheduler
	bus       events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
	interval  time.Duration
}

// NewGameService creates a new game service instance
func NewGameService(d Deps) GameService {
	s := &gameServiceImpl{
		store:     d.Store,
		lifecycle: d.Lifecycle,
		combat:    d.Combat,
		scheduler: d.Scheduler,
		bus:       d.Bus,
		log:       d.Logger,
		now:       d.Now,
		interval:  d.DefaultPointInterval,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.interval <= 0 {
		s.interval = DefaultPointInterval
	}
	return s
}

type gameFunc func(ctx context.Context, tx store.Tx, g *engine.Game) error

// within loads gameID inside one unit of work and runs fn against it
func (s *gameServiceImpl) within(ctx context.Context, gameID string, fn gameFunc) error {
	return s.store.Within(ctx, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.Game(ctx, gameID)
		if err != nil {
			return notFound(err)
		}
		return fn(ctx, tx, g)
	})
}

// running is within for commands that need a started game
func (s *gameServiceImpl) running(ctx context.Context, gameID string, fn gameFunc) error {
	return s.within(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		if g.Phase != engine.PhaseStarted {
			return engine.ErrWrongPhase
		}
		return fn(ctx, tx, g)
	})
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return engine.ErrGameNotFound
	}
	return err
}

// publish sends an event after commit; failures are only logged
func (s *gameServiceImpl) publish(ctx context.Context, typ events.Type, gameID string, data any) {
	if s.bus == nil {
		return
	}
	e, err := events.New(typ, gameID, data, s.now().UTC())
	if err == nil {
		err = s.bus.Publish(ctx, e)
	}
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"game_id": gameID,
			"event":   typ,
		}).Warn("publish failed")
	}
}

func (s *gameServiceImpl) logger(gameID, userID string) logrus.FieldLogger {
	return s.log.WithFields(logrus.Fields{"game_id": gameID, "user_id": userID})
}

// CreateGame creates a game in setup with creator as its first player
func (s *gameServiceImpl) CreateGame(ctx context.Context, creator string, opts CreateOptions) (*engine.Game, error) {
	if opts.Mode == "" {
		opts.Mode = engine.ModeFFA
	}
	if opts.PointInterval == 0 {
		opts.PointInterval = s.interval
	}

	var g *engine.Game
	err := s.store.Within(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		g, err = s.lifecycle.CreateSetupGame(ctx, tx, creator, opts.Mode, opts.PointInterval)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger(g.ID, creator).Info("game created")
	return g, nil
}

// GetGame retrieves a game with its roster
func (s *gameServiceImpl) GetGame(ctx context.Context, gameID string) (*engine.Game, error) {
	g, err := s.store.Game(ctx, gameID)
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

// ViewGame returns the game as viewer sees it
func (s *gameServiceImpl) ViewGame(ctx context.Context, gameID, viewer string) (*GameView, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return NewGameView(g, viewer), nil
}

// ListGames returns summaries of every game, optionally filtered by phase
func (s *gameServiceImpl) ListGames(ctx context.Context, phases ...engine.Phase) ([]*GameSummary, error) {
	games, err := s.store.Games(ctx, phases...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	out := make([]*GameSummary, 0, len(games))
	for _, g := range games {
		out = append(out, summarize(g))
	}
	return out, nil
}

func (s *gameServiceImpl) AddPlayer(ctx context.Context, gameID, actor, userID string) (*engine.Player, error) {
	var p *engine.Player
	err := s.within(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		p, err = s.lifecycle.AddPlayer(ctx, tx, g, actor, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger(gameID, userID).Info("player added")
	return p, nil
}

func (s *gameServiceImpl) RemovePlayer(ctx context.Context, gameID, actor, userID string) error {
	err := s.within(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return s.lifecycle.RemovePlayer(ctx, tx, g, actor, userID)
	})
	if err != nil {
		return err
	}
	s.logger(gameID, userID).Info("player removed")
	return nil
}

func (s *gameServiceImpl) SetMode(ctx context.Context, gameID, actor string, mode engine.Mode) (*engine.Game, error) {
	return s.updateGame(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return s.lifecycle.SetMode(ctx, tx, g, actor, mode)
	})
}

func (s *gameServiceImpl) SetPointInterval(ctx context.Context, gameID, actor string, interval time.Duration) (*engine.Game, error) {
	return s.updateGame(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return s.lifecycle.SetPointInterval(ctx, tx, g, actor, interval)
	})
}

func (s *gameServiceImpl) SetTeam(ctx context.Context, gameID, actor, userID, team string) (*engine.Player, error) {
	var p *engine.Player
	err := s.within(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		p, err = s.lifecycle.SetTeam(ctx, tx, g, actor, userID, team)
		return err
	})
	return p, err
}

// FinishSetup places every tank and moves the game to starting
func (s *gameServiceImpl) FinishSetup(ctx context.Context, gameID, actor string) (*engine.Game, error) {
	g, err := s.updateGame(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return s.lifecycle.FinishSetup(ctx, tx, g, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logger(gameID, actor).WithField("board", fmt.Sprintf("%dx%d", g.Width, g.Height)).Info("setup finished")
	return g, nil
}

// updateGame runs fn and returns the game as committed
func (s *gameServiceImpl) updateGame(ctx context.Context, gameID string, fn gameFunc) (*engine.Game, error) {
	var out *engine.Game
	err := s.within(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		if err := fn(ctx, tx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Start begins the game and arms its point grants
func (s *gameServiceImpl) Start(ctx context.Context, gameID, actor string) (*engine.Game, error) {
	g, err := s.updateGame(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return s.lifecycle.Start(ctx, tx, g, actor)
	})
	if err != nil {
		return nil, err
	}

	delay := time.Duration(0)
	if g.NextPointAt != nil {
		delay = max(g.NextPointAt.Sub(s.now()), 0)
	}
	s.scheduler.Arm(g.ID, delay)
	s.publish(ctx, events.TypeStarted, g.ID, startedEvent{
		Actor:       actor,
		Width:       g.Width,
		Height:      g.Height,
		NextPointAt: g.NextPointAt,
		Board:       g.Board(),
	})
	s.logger(gameID, actor).Info("game started")
	return g, nil
}

// ForceEnd stops a running game. Ending an ended game changes nothing.
func (s *gameServiceImpl) ForceEnd(ctx context.Context, gameID, actor string) (*engine.Game, error) {
	var ended bool
	g, err := s.updateGame(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		ended, err = s.lifecycle.ForceEnd(ctx, tx, g, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.scheduler.Cancel(gameID)
	if ended {
		s.publish(ctx, events.TypeEnd, gameID, endEvent{Actor: actorOrSystem(actor), Forced: true})
		s.logger(gameID, actor).Info("game force-ended")
	}
	return g, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return lifecycle.SystemActor
	}
	return actor
}

// endIfFinished runs the game-over check inside the caller's unit of work
func (s *gameServiceImpl) endIfFinished(ctx context.Context, tx store.Tx, g *engine.Game) (bool, []string, error) {
	if !g.IsFinished() {
		return false, nil, nil
	}
	ended, err := s.lifecycle.End(ctx, tx, g)
	if err != nil {
		return false, nil, err
	}
	return ended, engine.UserIDs(g.Winners()), nil
}

// afterEnd cancels the timer and announces the winners
func (s *gameServiceImpl) afterEnd(ctx context.Context, gameID string, winners []string) {
	s.scheduler.Cancel(gameID)
	s.publish(ctx, events.TypeEnd, gameID, endEvent{Actor: lifecycle.SystemActor, Winners: winners})
	s.log.WithFields(logrus.Fields{
		"game_id": gameID,
		"winners": winners,
	}).Info("game over")
}

// Leave takes userID out of a running game
func (s *gameServiceImpl) Leave(ctx context.Context, gameID, userID string) (*LeaveResult, error) {
	res := &LeaveResult{}
	err := s.running(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		p, err := s.lifecycle.Leave(ctx, tx, g, userID)
		if err != nil {
			return err
		}
		res.Player = p
		res.GameOver, res.Winners, err = s.endIfFinished(ctx, tx, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeLeave, gameID, leaveEvent{Player: userID})
	s.logger(gameID, userID).Info("player left")
	if res.GameOver {
		s.afterEnd(ctx, gameID, res.Winners)
	}
	return res, nil
}

// PlayAgain creates a new setup game from an ended one
func (s *gameServiceImpl) PlayAgain(ctx context.Context, gameID, actor string) (*engine.Game, error) {
	var next *engine.Game
	err := s.within(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		next, err = s.lifecycle.PlayAgain(ctx, tx, g, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger(next.ID, actor).WithField("previous_game_id", gameID).Info("game created from previous game")
	return next, nil
}

// Walk moves userID up to steps cells in dir
func (s *gameServiceImpl) Walk(ctx context.Context, gameID, userID string, dir engine.Direction, steps int) (*combat.WalkResult, error) {
	var res *combat.WalkResult
	err := s.running(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		res, err = s.combat.Walk(ctx, tx, g, userID, dir, steps)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Taken > 0 {
		s.publish(ctx, events.TypeWalk, gameID, walkEvent{
			Player: userID,
			From:   res.From,
			To:     res.To,
			Steps:  res.Taken,
			Path:   res.Path,
		})
	}
	return res, nil
}

// Attack resolves an attack and ends the game when it has a winner
func (s *gameServiceImpl) Attack(ctx context.Context, gameID, userID, targetID string) (*AttackOutcome, error) {
	out := &AttackOutcome{}
	var hidden bool
	err := s.running(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		res, err := s.combat.Attack(ctx, tx, g, userID, targetID)
		if err != nil {
			return err
		}
		out.AttackResult = res
		out.Defender = NewPlayerView(g, res.Defender, userID)
		hidden = g.Mode == engine.ModeHidden
		out.GameOver, out.Winners, err = s.endIfFinished(ctx, tx, g)
		return err
	})
	if err != nil {
		return nil, err
	}

	e := attackEvent{
		Attacker:       userID,
		Defender:       targetID,
		Killed:         out.Killed,
		RemainingLives: out.RemainingLives,
	}
	if !hidden {
		e.PointsTransferred = out.PointsTransferred
	}
	s.publish(ctx, events.TypeAttack, gameID, e)
	if out.Killed {
		s.logger(gameID, userID).WithField("target", targetID).Info("tank destroyed")
	}
	if out.GameOver {
		s.afterEnd(ctx, gameID, out.Winners)
	}
	return out, nil
}

func (s *gameServiceImpl) Gift(ctx context.Context, gameID, userID, targetID string, amount int) (*GiftOutcome, error) {
	var res *GiftOutcome
	err := s.running(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		gift, err := s.combat.Gift(ctx, tx, g, userID, targetID, amount)
		if err != nil {
			return err
		}
		res = &GiftOutcome{GiftResult: gift, Receiver: NewPlayerView(g, gift.Receiver, userID)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeGift, gameID, giftEvent{Giver: userID, Receiver: targetID, Amount: amount})
	return res, nil
}

func (s *gameServiceImpl) IncreaseRange(ctx context.Context, gameID, userID string) (*combat.RangeResult, error) {
	var res *combat.RangeResult
	err := s.running(ctx, gameID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		res, err = s.combat.IncreaseRange(ctx, tx, g, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeRangeIncrease, gameID, rangeEvent{Player: userID, OldRange: res.OldRange, NewRange: res.NewRange})
	return res, nil
}

// Board returns the renderer projection of a game
func (s *gameServiceImpl) Board(ctx context.Context, gameID string) (*engine.Board, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g.Board(), nil
}

// PlayerStats lists every player's stats as seen by viewer. In hidden mode
// only the viewer's own points are shown.
func (s *gameServiceImpl) PlayerStats(ctx context.Context, gameID, viewer string) ([]PlayerStats, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	stats := make([]PlayerStats, 0, len(g.Players))
	for _, p := range g.Players {
		row := PlayerStats{
			UserID:   p.UserID,
			Lives:    p.Lives,
			Range:    p.Range,
			Kills:    p.Kills,
			Alive:    p.Alive(),
			Team:     p.Team,
			Color:    p.Color,
			Position: p.Position,
		}
		if pointsVisible(g, p, viewer) {
			points := p.Points
			row.Points = &points
		}
		stats = append(stats, row)
	}
	return stats, nil
}

// PlayersInRange lists the living tanks userID can reach, itself included
func (s *gameServiceImpl) PlayersInRange(ctx context.Context, gameID, userID string) ([]engine.BoardPlayer, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	p := g.Player(userID)
	if p == nil {
		return nil, engine.ErrPlayerNotFound
	}
	board := g.Board()
	byID := make(map[string]engine.BoardPlayer, len(board.Players))
	for _, bp := range board.Players {
		byID[bp.PlayerID] = bp
	}
	inRange := g.PlayersInRange(p)
	out := make([]engine.BoardPlayer, 0, len(inRange))
	for _, r := range inRange {
		out = append(out, byID[r.ID])
	}
	return out, nil
}

// Logs returns the newest limit audit entries of a game
// Logs returns the newest limit entries as viewer may see them
func (s *gameServiceImpl) Logs(ctx context.Context, gameID, viewer string, limit int) ([]engine.LogEntry, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Logs(ctx, gameID, limit)
	if err != nil {
		return nil, err
	}
	return redactLogs(g, entries, viewer), nil
}

func (s *gameServiceImpl) Resume(ctx context.Context) (int, error) {
	n, err := s.scheduler.Resume(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume point grants: %w", err)
	}
	s.log.WithField("games", n).Info("point grants resumed")
	return n, nil
}

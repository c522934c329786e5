// Package scheduler grants action points to running games on their point
// interval.
//
// Each started game owns one timer in a Registry. When it fires, Tick grants
// one point to every living tank, stores the next due time on the game and
// re-arms itself. Resume rebuilds the timers from NextPointAt after a
// restart.
//
// At most one process may run a Scheduler against a given store: timers are
// process-local and two owners would grant points twice.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/events"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/lifecycle"
	"github.com/wricardo/tank-tactics/game/store"
)

// DefaultMinDelay is the shortest delay Resume arms a timer with
const DefaultMinDelay = time.Second

// Timer is a pending callback
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the scheduler
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

// Registry maps game ids to their pending timer. It also tracks ticks in
// flight so a game cancelled mid-tick is not re-armed when the tick ends.
type Registry struct {
	mu        sync.Mutex
	timers    map[string]Timer
	ticking   map[string]int
	cancelled map[string]bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		timers:    make(map[string]Timer),
		ticking:   make(map[string]int),
		cancelled: make(map[string]bool),
	}
}

// Arm stores t for gameID, stopping any timer it replaces. An explicit Arm
// lifts a cancellation still pending for a tick in flight.
func (r *Registry) Arm(gameID string, t Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, gameID)
	r.store(gameID, t)
}

func (r *Registry) store(gameID string, t Timer) {
	if old, ok := r.timers[gameID]; ok {
		old.Stop()
	}
	r.timers[gameID] = t
}

// Cancel stops and forgets the timer of gameID. It reports whether one was
// armed.
func (r *Registry) Cancel(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticking[gameID] > 0 {
		r.cancelled[gameID] = true
	}
	t, ok := r.timers[gameID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.timers, gameID)
	return true
}

// begin records a tick of gameID in flight
func (r *Registry) begin(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticking[gameID]++
}

// finish ends a tick of gameID and stores t as its next timer, unless the
// game was cancelled while the tick ran. A refused t is stopped. t may be
// nil. It reports whether t was stored.
func (r *Registry) finish(gameID string, t Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelled := r.cancelled[gameID]
	if r.ticking[gameID]--; r.ticking[gameID] <= 0 {
		delete(r.ticking, gameID)
		delete(r.cancelled, gameID)
	}
	if t == nil {
		return false
	}
	if cancelled {
		t.Stop()
		return false
	}
	r.store(gameID, t)
	return true
}

// Armed reports whether gameID has a pending timer
func (r *Registry) Armed(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[gameID]
	return ok
}

// Len returns the number of armed games
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// CancelAll stops every timer, including the next one of ticks in flight
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	for id := range r.ticking {
		r.cancelled[id] = true
	}
}

// Grant is the data of ap_granted events
type Grant struct {
	Amount      int       `json:"amount"`
	Players     []string  `json:"players"`
	NextPointAt time.Time `json:"next_point_at"`
}

// Scheduler drives the point grants of every started game
type Scheduler struct {
	store     store.Store
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Manager
	bus       events.Publisher
	registry  *Registry
	clock     Clock
	minDelay  time.Duration
	log       logrus.FieldLogger
	stopped   atomic.Bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithMinDelay sets the shortest delay used by Resume
func WithMinDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.minDelay = d }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithRegistry shares a registry with the caller
func WithRegistry(r *Registry) Option {
	return func(s *Scheduler) { s.registry = r }
}

// New creates a scheduler. bus may be nil.
func New(st store.Store, l *ledger.Ledger, m *lifecycle.Manager, bus events.Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     st,
		ledger:    l,
		lifecycle: m,
		bus:       bus,
		registry:  NewRegistry(),
		clock:     RealClock(),
		minDelay:  DefaultMinDelay,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the timers for inspection
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Arm schedules the next tick of gameID after delay. It does nothing once
// the scheduler is stopped.
func (s *Scheduler) Arm(gameID string, delay time.Duration) {
	if s.stopped.Load() {
		return
	}
	s.registry.Arm(gameID, s.clock.AfterFunc(delay, s.fire(gameID)))
}

func (s *Scheduler) fire(gameID string) func() {
	return func() {
		if err := s.Tick(context.Background(), gameID); err != nil {
			s.log.WithError(err).WithField("game_id", gameID).Error("point grant failed")
		}
	}
}

// rearm ends the tick in flight and schedules the next one, unless the game
// was cancelled or the scheduler stopped meanwhile
func (s *Scheduler) rearm(gameID string, delay time.Duration) {
	var t Timer
	if !s.stopped.Load() {
		t = s.clock.AfterFunc(delay, s.fire(gameID))
	}
	if !s.registry.finish(gameID, t) && t != nil {
		s.log.WithField("game_id", gameID).Debug("cancelled during tick, not re-armed")
	}
}

// Cancel drops the pending tick of gameID
func (s *Scheduler) Cancel(gameID string) {
	if s.registry.Cancel(gameID) {
		s.log.WithField("game_id", gameID).Debug("point grants cancelled")
	}
}

// Stop cancels every pending tick and refuses new ones
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.registry.CancelAll()
}

// Tick runs one point grant for gameID. A game that is no longer running
// is ended if needed and its timer is dropped. A Cancel that lands while the
// tick runs wins over the re-arm.
func (s *Scheduler) Tick(ctx context.Context, gameID string) error {
	s.registry.begin(gameID)

	var (
		running  bool
		granted  []*engine.Player
		interval time.Duration
		next     time.Time
	)
	err := s.store.Within(ctx, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.Game(ctx, gameID)
		if err != nil {
			return err
		}
		if g.Phase != engine.PhaseStarted {
			if _, err := s.lifecycle.ForceEnd(ctx, tx, g, lifecycle.SystemActor); err != nil && !errors.Is(err, engine.ErrWrongPhase) {
				return err
			}
			return nil
		}

		running = true
		interval = g.PointInterval
		if granted, err = s.ledger.GrantAll(ctx, tx, g, 1); err != nil {
			return err
		}
		next = s.clock.Now().UTC().Add(interval)
		g.NextPointAt = &next
		return tx.UpdateGame(ctx, g)
	})

	logger := s.log.WithField("game_id", gameID)
	if errors.Is(err, store.ErrNotFound) {
		s.registry.finish(gameID, nil)
		s.registry.Cancel(gameID)
		logger.Warn("game vanished, point grants stopped")
		return nil
	}
	if err != nil {
		s.rearm(gameID, s.minDelay)
		return err
	}
	if !running {
		s.registry.finish(gameID, nil)
		s.registry.Cancel(gameID)
		logger.Info("game no longer running, point grants stopped")
		return nil
	}

	s.publish(ctx, gameID, Grant{Amount: 1, Players: engine.UserIDs(granted), NextPointAt: next})
	s.rearm(gameID, interval)
	logger.WithField("players", len(granted)).Debug("points granted")
	return nil
}

// Resume arms a timer for every started game, honouring the stored due
// time. It returns how many games were armed.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	games, err := s.store.Games(ctx, engine.PhaseStarted)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	for _, g := range games {
		delay := s.minDelay
		if g.NextPointAt != nil {
			delay = max(g.NextPointAt.Sub(now), s.minDelay)
		}
		s.Arm(g.ID, delay)
		s.log.WithFields(logrus.Fields{
			"game_id": g.ID,
			"delay":   delay.String(),
		}).Info("point grants resumed")
	}
	return len(games), nil
}

func (s *Scheduler) publish(ctx context.Context, gameID string, data Grant) {
	if s.bus == nil {
		return
	}
	e, err := events.New(events.TypeAPGranted, gameID, data, s.clock.Now().UTC())
	if err == nil {
		err = s.bus.Publish(ctx, e)
	}
	if err != nil {
		s.log.WithError(err).WithField("game_id", gameID).Warn("publish failed")
	}
}

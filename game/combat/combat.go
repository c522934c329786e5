// Package combat resolves the in-game actions of a running game: attack,
// gift, walk and range increase.
//
// Each action validates its preconditions against the game loaded in the
// current unit of work, in a fixed order, and then applies its effects
// through the ledger so every stat change is audited.
package combat

import (
	"context"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/store"
)

// AttackLog is the payload of attack entries
type AttackLog struct {
	Player string `json:"player"`
	Target string `json:"target"`
}

// GiftLog is the payload of gift entries
type GiftLog struct {
	Player string `json:"player"`
	Target string `json:"target"`
	Amount int    `json:"amount"`
}

// AttackResult describes the outcome of an attack
type AttackResult struct {
	Attacker          *engine.Player `json:"attacker"`
	Defender          *engine.Player `json:"defender"`
	Killed            bool           `json:"killed"`
	PointsTransferred int            `json:"points_transferred"`
	RemainingLives    int            `json:"remaining_lives"`
}

// GiftResult describes a completed gift
type GiftResult struct {
	Giver    *engine.Player `json:"giver"`
	Receiver *engine.Player `json:"receiver"`
	Amount   int            `json:"amount"`
}

// WalkResult describes a walk; Taken may be lower than Requested when the
// path was blocked
type WalkResult struct {
	Player    *engine.Player    `json:"player"`
	Direction engine.Direction  `json:"direction"`
	Requested int               `json:"requested"`
	Taken     int               `json:"taken"`
	From      engine.Position   `json:"from"`
	To        engine.Position   `json:"to"`
	Path      []engine.Position `json:"path"`
}

// RangeResult describes a range increase
type RangeResult struct {
	Player   *engine.Player `json:"player"`
	OldRange int            `json:"old_range"`
	NewRange int            `json:"new_range"`
	Cost     int            `json:"cost"`
}

// Resolver applies combat rules through a ledger
type Resolver struct {
	ledger *ledger.Ledger
}

// New creates a resolver writing through l
func New(l *ledger.Ledger) *Resolver {
	return &Resolver{ledger: l}
}

// Attack makes attackerID shoot defenderID, taking one life. A kill moves
// half the victim's points to the attacker.
func (r *Resolver) Attack(ctx context.Context, tx store.Tx, g *engine.Game, attackerID, defenderID string) (*AttackResult, error) {
	attacker := g.Player(attackerID)
	if attacker == nil {
		return nil, engine.ErrPlayerNotFound
	}
	if !attacker.Alive() {
		return nil, engine.ErrPlayerNotAlive
	}
	if attacker.Points < engine.AttackCost {
		return nil, engine.ErrInsufficientPoints
	}

	defender := g.Player(defenderID)
	if defender == nil {
		return nil, engine.ErrTargetNotFound
	}
	if !defender.Alive() {
		return nil, engine.ErrTargetAlreadyDead
	}
	if defender.ID == attacker.ID {
		return nil, engine.ErrCannotTargetSelf
	}
	if !engine.InRange(attacker, defender) {
		return nil, engine.ErrTargetOutOfRange
	}

	defender, err := r.ledger.RemoveLife(ctx, tx, g, defenderID)
	if err != nil {
		return nil, err
	}
	attacker, err = r.ledger.SubtractPoints(ctx, tx, g, attackerID, engine.AttackCost)
	if err != nil {
		return nil, err
	}
	if _, err := r.ledger.Log(ctx, tx, g.ID, engine.LogAttack, AttackLog{Player: attackerID, Target: defenderID}); err != nil {
		return nil, err
	}

	result := &AttackResult{RemainingLives: defender.Lives}
	if defender.Alive() {
		result.Attacker, result.Defender = attacker, defender
		return result, nil
	}

	half := defender.Points / 2
	if attacker, err = r.ledger.AddKill(ctx, tx, g, attackerID, defenderID); err != nil {
		return nil, err
	}
	if half > 0 {
		if defender, err = r.ledger.SubtractPoints(ctx, tx, g, defenderID, half); err != nil {
			return nil, err
		}
		if attacker, err = r.ledger.AddPoints(ctx, tx, g, attackerID, half); err != nil {
			return nil, err
		}
	}

	result.Attacker, result.Defender = attacker, defender
	result.Killed = true
	result.PointsTransferred = half
	result.RemainingLives = 0
	return result, nil
}

// Gift moves amount points from giverID to receiverID. Dead givers may
// gift to anyone alive regardless of range.
func (r *Resolver) Gift(ctx context.Context, tx store.Tx, g *engine.Game, giverID, receiverID string, amount int) (*GiftResult, error) {
	giver := g.Player(giverID)
	if giver == nil {
		return nil, engine.ErrPlayerNotFound
	}
	receiver := g.Player(receiverID)
	if receiver == nil {
		return nil, engine.ErrTargetNotFound
	}
	if giver.ID == receiver.ID {
		return nil, engine.ErrCannotTargetSelf
	}
	if amount < engine.MinGift {
		return nil, engine.ErrGiftBelowMinimum
	}
	if giver.Points <= 0 || giver.Points < amount {
		return nil, engine.ErrInsufficientPoints
	}
	if !receiver.Alive() {
		return nil, engine.ErrTargetDead
	}
	if giver.Alive() && !engine.InRange(giver, receiver) {
		return nil, engine.ErrTargetOutOfRange
	}

	giver, err := r.ledger.SubtractPoints(ctx, tx, g, giverID, amount)
	if err != nil {
		return nil, err
	}
	receiver, err = r.ledger.AddPoints(ctx, tx, g, receiverID, amount)
	if err != nil {
		return nil, err
	}
	if _, err := r.ledger.Log(ctx, tx, g.ID, engine.LogGift, GiftLog{Player: giverID, Target: receiverID, Amount: amount}); err != nil {
		return nil, err
	}
	return &GiftResult{Giver: giver, Receiver: receiver, Amount: amount}, nil
}

// Walk moves userID up to steps cells in dir, stopping early at the board
// edge or another living tank. Only the steps taken are paid for.
func (r *Resolver) Walk(ctx context.Context, tx store.Tx, g *engine.Game, userID string, dir engine.Direction, steps int) (*WalkResult, error) {
	p := g.Player(userID)
	if p == nil {
		return nil, engine.ErrPlayerNotFound
	}
	if !p.Alive() {
		return nil, engine.ErrPlayerNotAlive
	}
	dir, err := engine.ParseDirection(string(dir))
	if err != nil {
		return nil, err
	}
	if steps < 0 {
		return nil, engine.ErrInvalidAmount
	}
	if p.Points < steps*engine.WalkCost {
		return nil, engine.ErrInsufficientPoints
	}

	from := p.Position
	path := g.PlanWalk(p, dir, steps)
	moved, err := r.ledger.Move(ctx, tx, g, userID, dir, path)
	if err != nil {
		return nil, err
	}
	return &WalkResult{
		Player:    moved,
		Direction: dir,
		Requested: steps,
		Taken:     len(path),
		From:      from,
		To:        moved.Position,
		Path:      path,
	}, nil
}

// IncreaseRange spends engine.RangeCost points for one more range
func (r *Resolver) IncreaseRange(ctx context.Context, tx store.Tx, g *engine.Game, userID string) (*RangeResult, error) {
	p := g.Player(userID)
	if p == nil {
		return nil, engine.ErrPlayerNotFound
	}
	if !p.Alive() {
		return nil, engine.ErrPlayerNotAlive
	}
	if p.Points < engine.RangeCost {
		return nil, engine.ErrInsufficientPoints
	}
	old := p.Range
	updated, err := r.ledger.IncreaseRange(ctx, tx, g, userID)
	if err != nil {
		return nil, err
	}
	return &RangeResult{Player: updated, OldRange: old, NewRange: updated.Range, Cost: engine.RangeCost}, nil
}

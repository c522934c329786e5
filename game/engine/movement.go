package engine

import (
	"math"
	"strings"
)

// Direction is one of the eight compass directions a tank can walk
type Direction string

const (
	Up        Direction = "up"
	UpRight   Direction = "up-right"
	Right     Direction = "right"
	DownRight Direction = "down-right"
	Down      Direction = "down"
	DownLeft  Direction = "down-left"
	Left      Direction = "left"
	UpLeft    Direction = "up-left"
)

// Directions lists every direction clockwise starting north
var Directions = []Direction{Up, UpRight, Right, DownRight, Down, DownLeft, Left, UpLeft}

// offsets per direction; y grows downward
var offsets = map[Direction]struct{ dx, dy int }{
	Up:        {0, -1},
	UpRight:   {1, -1},
	Right:     {1, 0},
	DownRight: {1, 1},
	Down:      {0, 1},
	DownLeft:  {-1, 1},
	Left:      {-1, 0},
	UpLeft:    {-1, -1},
}

var directionAliases = map[string]Direction{
	"n":          Up,
	"north":      Up,
	"ne":         UpRight,
	"northeast":  UpRight,
	"e":          Right,
	"east":       Right,
	"se":         DownRight,
	"southeast":  DownRight,
	"s":          Down,
	"south":      Down,
	"sw":         DownLeft,
	"southwest":  DownLeft,
	"w":          Left,
	"west":       Left,
	"nw":         UpLeft,
	"northwest":  UpLeft,
	"upright":    UpRight,
	"downright":  DownRight,
	"downleft":   DownLeft,
	"upleft":     UpLeft,
	"up_right":   UpRight,
	"down_right": DownRight,
	"down_left":  DownLeft,
	"up_left":    UpLeft,
}

// ParseDirection accepts a direction name or compass alias, case-insensitively
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := offsets[Direction(s)]; ok {
		return Direction(s), nil
	}
	if d, ok := directionAliases[s]; ok {
		return d, nil
	}
	return "", ErrInvalidDirection
}

// Step returns the cell adjacent to pos in direction d
func Step(pos Position, d Direction) Position {
	o := offsets[d]
	return Position{X: pos.X + o.dx, Y: pos.Y + o.dy}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ChebyshevDistance is the king-move distance between two cells
func ChebyshevDistance(a, b Position) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

// EuclideanDistance is the straight-line distance, used only for drawing
func EuclideanDistance(a, b Position) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// InBounds checks that pos lies on the game's board
func (g *Game) InBounds(pos Position) bool {
	return pos.X >= 0 && pos.X < g.Width && pos.Y >= 0 && pos.Y < g.Height
}

// OccupiedBy returns the living player standing on pos, or nil
func (g *Game) OccupiedBy(pos Position) *Player {
	for _, p := range g.Players {
		if p.Alive() && p.Position == pos {
			return p
		}
	}
	return nil
}

// CanMoveTo checks if mover may enter pos: it must be on the board and not
// held by another living player
func (g *Game) CanMoveTo(mover *Player, pos Position) bool {
	if !g.InBounds(pos) {
		return false
	}
	if occ := g.OccupiedBy(pos); occ != nil && occ.ID != mover.ID {
		return false
	}
	return true
}

// InRange reports whether target is alive and within from's range
func InRange(from, target *Player) bool {
	return target.Alive() && ChebyshevDistance(from.Position, target.Position) <= from.Range
}

// PlayersInRange lists living players within p's range, p included when alive
func (g *Game) PlayersInRange(p *Player) []*Player {
	var out []*Player
	for _, other := range g.Players {
		if InRange(p, other) {
			out = append(out, other)
		}
	}
	return out
}

// PlanWalk walks p one cell at a time in direction d, stopping at the first
// illegal step. It returns the cells entered; len(path) is the steps taken.
func (g *Game) PlanWalk(p *Player, d Direction, steps int) []Position {
	var path []Position
	pos := p.Position
	for i := 0; i < steps; i++ {
		next := Step(pos, d)
		if !g.CanMoveTo(p, next) {
			break
		}
		path = append(path, next)
		pos = next
	}
	return path
}

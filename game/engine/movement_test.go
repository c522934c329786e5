package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlayer(id string, x, y int) *Player {
	return &Player{
		ID:       id,
		UserID:   "user-" + id,
		Position: Position{X: x, Y: y},
		Lives:    DefaultLives,
		Points:   DefaultPoints,
		Range:    DefaultRange,
	}
}

func newBoard(width, height int, players ...*Player) *Game {
	return &Game{
		ID:      "game-1",
		Phase:   PhaseStarted,
		Mode:    ModeFFA,
		Width:   width,
		Height:  height,
		Players: players,
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"up", Up, false},
		{"UP", Up, false},
		{" down-left ", DownLeft, false},
		{"ne", UpRight, false},
		{"SouthWest", DownLeft, false},
		{"w", Left, false},
		{"up_left", UpLeft, false},
		{"sideways", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDirection)
				assert.Equal(t, KindInvalidInput, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStepCoversEightNeighbours(t *testing.T) {
	origin := Position{X: 5, Y: 5}
	seen := make(map[Position]bool)
	for _, d := range Directions {
		next := Step(origin, d)
		assert.Equal(t, 1, ChebyshevDistance(origin, next), "direction %s", d)
		seen[next] = true
	}
	assert.Len(t, seen, 8)
	assert.Equal(t, Position{X: 5, Y: 4}, Step(origin, Up))
	assert.Equal(t, Position{X: 6, Y: 6}, Step(origin, DownRight))
}

func TestDistances(t *testing.T) {
	a := Position{X: 0, Y: 0}
	b := Position{X: 3, Y: 4}

	assert.Equal(t, 4, ChebyshevDistance(a, b))
	assert.Equal(t, 4, ChebyshevDistance(b, a))
	assert.InDelta(t, 5.0, EuclideanDistance(a, b), 1e-9)
	assert.Equal(t, 0, ChebyshevDistance(a, a))
}

func TestInRange(t *testing.T) {
	attacker := newPlayer("a", 5, 5)
	attacker.Range = 2

	near := newPlayer("b", 7, 3)
	far := newPlayer("c", 8, 5)
	dead := newPlayer("d", 5, 6)
	dead.Lives = 0

	assert.True(t, InRange(attacker, near))
	assert.False(t, InRange(attacker, far))
	assert.False(t, InRange(attacker, dead), "dead players are never in range")
}

func TestPlayersInRangeIncludesSelf(t *testing.T) {
	a := newPlayer("a", 0, 0)
	b := newPlayer("b", 1, 1)
	c := newPlayer("c", 9, 9)
	g := newBoard(10, 10, a, b, c)

	got := g.PlayersInRange(a)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestCanMoveTo(t *testing.T) {
	mover := newPlayer("a", 1, 1)
	blocker := newPlayer("b", 2, 1)
	corpse := newPlayer("c", 1, 2)
	corpse.Lives = 0
	g := newBoard(4, 3, mover, blocker, corpse)

	assert.False(t, g.CanMoveTo(mover, Position{X: -1, Y: 1}), "left edge")
	assert.False(t, g.CanMoveTo(mover, Position{X: 4, Y: 1}), "right edge")
	assert.False(t, g.CanMoveTo(mover, Position{X: 1, Y: 3}), "bottom edge")
	assert.False(t, g.CanMoveTo(mover, blocker.Position), "living tank")
	assert.True(t, g.CanMoveTo(mover, corpse.Position), "dead tanks do not block")
	assert.True(t, g.CanMoveTo(mover, mover.Position), "own cell")
}

func TestPlanWalk(t *testing.T) {
	tests := []struct {
		name     string
		start    Position
		dir      Direction
		steps    int
		blockers []Position
		want     []Position
	}{
		{
			name:  "full walk",
			start: Position{X: 0, Y: 0},
			dir:   Right,
			steps: 3,
			want:  []Position{{1, 0}, {2, 0}, {3, 0}},
		},
		{
			name:  "stops at the edge",
			start: Position{X: 8, Y: 0},
			dir:   Right,
			steps: 5,
			want:  []Position{{9, 0}},
		},
		{
			name:     "stops before a living tank",
			start:    Position{X: 0, Y: 0},
			dir:      DownRight,
			steps:    4,
			blockers: []Position{{3, 3}},
			want:     []Position{{1, 1}, {2, 2}},
		},
		{
			name:  "first step blocked",
			start: Position{X: 0, Y: 0},
			dir:   UpLeft,
			steps: 2,
			want:  nil,
		},
		{
			name:  "zero steps",
			start: Position{X: 4, Y: 4},
			dir:   Down,
			steps: 0,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mover := newPlayer("mover", tt.start.X, tt.start.Y)
			players := []*Player{mover}
			for i, pos := range tt.blockers {
				players = append(players, newPlayer(string(rune('b'+i)), pos.X, pos.Y))
			}
			g := newBoard(10, 10, players...)

			path := g.PlanWalk(mover, tt.dir, tt.steps)
			assert.Equal(t, tt.want, path)
			for _, pos := range path {
				assert.True(t, g.InBounds(pos))
			}
			assert.Equal(t, tt.start, mover.Position, "planning does not move the player")
		})
	}
}

package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFinishedFFA(t *testing.T) {
	a := newPlayer("a", 0, 0)
	b := newPlayer("b", 1, 1)
	g := newBoard(10, 10, a, b)

	assert.False(t, g.IsFinished())
	assert.Nil(t, g.Winners())

	b.Lives = 0
	assert.True(t, g.IsFinished())
	assert.Equal(t, []string{"user-a"}, UserIDs(g.Winners()))

	a.Lives = 0
	assert.True(t, g.IsFinished(), "no survivors still ends the game")

	g.Mode = ModeHidden
	assert.True(t, g.IsFinished())
}

func TestIsFinishedTeam(t *testing.T) {
	a := newPlayer("a", 0, 0)
	b := newPlayer("b", 1, 0)
	c := newPlayer("c", 2, 0)
	d := newPlayer("d", 3, 0)
	a.Team, b.Team = "red", "red"
	c.Team, d.Team = "blue", "blue"
	g := newBoard(20, 12, a, b, c, d)
	g.Mode = ModeTeam

	assert.False(t, g.IsFinished())

	c.Lives = 0
	d.Lives = 0
	assert.True(t, g.IsFinished(), "only red remains")
	assert.Len(t, g.Winners(), 2)

	// FFA would still be running with two survivors
	g.Mode = ModeFFA
	assert.False(t, g.IsFinished())
}

func TestIsFinishedTeamlessPlayersStandAlone(t *testing.T) {
	a := newPlayer("a", 0, 0)
	b := newPlayer("b", 1, 0)
	a.Team = "red"
	g := newBoard(10, 6, a, b)
	g.Mode = ModeTeam

	assert.False(t, g.IsFinished())
	b.Lives = 0
	assert.True(t, g.IsFinished())

	// two teamless survivors are two sides, not one
	c := newPlayer("c", 0, 0)
	d := newPlayer("d", 1, 0)
	g = newBoard(10, 6, c, d)
	g.Mode = ModeTeam
	assert.False(t, g.IsFinished())
	assert.Nil(t, g.Winners())
}

func TestSpawnPositionsAreDistinctAndOnBoard(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for n := MinPlayers; n <= DefaultMaxPlayer; n++ {
		w, h := BoardSize(n)
		assert.Equal(t, n*5, w)
		assert.Equal(t, n*3, h)

		cells := SpawnPositions(rng, w, h, n)
		require.Len(t, cells, n)
		seen := make(map[Position]bool)
		for _, c := range cells {
			assert.False(t, seen[c], "duplicate spawn %v", c)
			seen[c] = true
			assert.True(t, c.X >= 0 && c.X < w && c.Y >= 0 && c.Y < h)
		}
	}
}

func TestAssignColorsDistinct(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for _, n := range []int{2, len(Palette), len(Palette) + 5} {
		colors := AssignColors(rng, n)
		require.Len(t, colors, n)
		seen := make(map[string]bool)
		for _, c := range colors {
			assert.False(t, seen[c], "duplicate color %s", c)
			assert.NotEqual(t, UnsetColor, c)
			seen[c] = true
		}
	}
}

func TestGamePlace(t *testing.T) {
	var players []*Player
	for i := 0; i < 4; i++ {
		p := newPlayer(fmt.Sprint(i), -1, -1)
		p.Color = UnsetColor
		players = append(players, p)
	}
	g := &Game{Phase: PhaseSetup, Players: players}

	g.Place(rand.New(rand.NewPCG(3, 4)))

	assert.Equal(t, 20, g.Width)
	assert.Equal(t, 12, g.Height)
	for _, p := range g.Players {
		assert.True(t, g.InBounds(p.Position))
		assert.NotEqual(t, UnsetColor, p.Color)
		assert.Equal(t, p, g.OccupiedBy(p.Position))
	}
}

func TestGameCloneIsDeep(t *testing.T) {
	next := time.Now()
	g := newBoard(10, 6, newPlayer("a", 0, 0))
	g.NextPointAt = &next

	c := g.Clone()
	c.Players[0].Points = 99
	*c.NextPointAt = next.Add(time.Hour)

	assert.Equal(t, DefaultPoints, g.Players[0].Points)
	assert.Equal(t, next, *g.NextPointAt)
}

func TestBoardProjection(t *testing.T) {
	a := newPlayer("a", 2, 3)
	a.Color = "#ffffff"
	g := newBoard(10, 6, a)

	b := g.Board()
	assert.Equal(t, 10, b.Width)
	assert.Equal(t, 6, b.Height)
	require.Len(t, b.Players, 1)
	assert.Equal(t, BoardPlayer{
		PlayerID: "a", UserID: "user-a", X: 2, Y: 3,
		Lives: DefaultLives, Range: DefaultRange, Color: "#ffffff",
	}, b.Players[0])
}

func TestErrorsMatchByCode(t *testing.T) {
	wrapped := fmt.Errorf("attack: %w", ErrTargetOutOfRange)

	assert.True(t, errors.Is(wrapped, ErrTargetOutOfRange))
	assert.False(t, errors.Is(wrapped, ErrTargetDead))
	assert.Equal(t, KindOutOfRange, KindOf(wrapped))
	assert.Equal(t, CodeTargetOutOfRange, CodeOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))

	copyErr := &Error{Kind: KindInvalidState, Code: CodeRosterMinimum, Message: "custom"}
	assert.ErrorIs(t, copyErr, ErrRosterMinimum)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("team")
	require.NoError(t, err)
	assert.Equal(t, ModeTeam, m)

	_, err = ParseMode("battle-royale")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestNewLogEntry(t *testing.T) {
	at := time.Unix(1700000000, 0)
	entry, err := NewLogEntry("g", LogGift, map[string]int{"amount": 3}, at)
	require.NoError(t, err)
	assert.Equal(t, LogGift, entry.Type)
	assert.JSONEq(t, `{"amount":3}`, string(entry.Payload))
	assert.Equal(t, at, entry.CreatedAt)
}

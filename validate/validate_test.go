package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store/memory"
)

func validState() *memory.State {
	next := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &memory.State{
		Games: []*engine.Game{
			{
				ID:    "setup",
				Phase: engine.PhaseSetup,
				Mode:  engine.ModeFFA,
				Players: []*engine.Player{
					{ID: "p1", GameID: "setup", UserID: "alice", Seat: 1, Lives: 3, Points: 1, Range: 2, Color: engine.UnsetColor},
					{ID: "p2", GameID: "setup", UserID: "bob", Seat: 2, Lives: 3, Points: 1, Range: 2, Color: engine.UnsetColor},
				},
			},
			{
				ID:          "live",
				Phase:       engine.PhaseStarted,
				Mode:        engine.ModeTeam,
				Width:       10,
				Height:      6,
				NextPointAt: &next,
				Players: []*engine.Player{
					{ID: "p3", GameID: "live", UserID: "alice", Seat: 1, Position: engine.Position{X: 0, Y: 0}, Lives: 3, Points: 4, Range: 2, Color: "#e6194b", Team: "red"},
					{ID: "p4", GameID: "live", UserID: "bob", Seat: 2, Position: engine.Position{X: 9, Y: 5}, Lives: 0, Points: 0, Range: 3, Color: "#3cb44b", Team: "blue"},
					{ID: "p5", GameID: "live", UserID: "carol", Seat: 3, Position: engine.Position{X: 9, Y: 5}, Lives: 1, Points: 0, Range: 2, Color: "#ffe119", Team: "blue"},
				},
			},
		},
		Logs: map[string][]engine.LogEntry{
			"setup": {{ID: 1, GameID: "setup", Type: engine.LogInfo}},
			"live":  {{ID: 2, GameID: "live", Type: engine.LogInfo}, {ID: 3, GameID: "live", Type: engine.LogAPGranted}},
		},
		NextLogID: 3,
	}
}

func writeSnapshot(t *testing.T, state *memory.State) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	snap, err := memory.NewSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, snap.Save(state))
	return path
}

func TestValidateSnapshot_Valid(t *testing.T) {
	result := validateSnapshot(writeSnapshot(t, validState()))

	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Info, 1)
	assert.Contains(t, result.Info[0], "2 game(s), 3 log entries")
}

func TestValidateSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *memory.State)
		want   string
	}{
		{
			name:   "unknown phase",
			mutate: func(s *memory.State) { s.Games[0].Phase = "paused" },
			want:   `unknown phase "paused"`,
		},
		{
			name:   "unknown mode",
			mutate: func(s *memory.State) { s.Games[0].Mode = "coop" },
			want:   `unknown mode "coop"`,
		},
		{
			name:   "started without next point",
			mutate: func(s *memory.State) { s.Games[1].NextPointAt = nil },
			want:   "started without a next point time",
		},
		{
			name: "ended with next point",
			mutate: func(s *memory.State) {
				s.Games[1].Phase = engine.PhaseEnded
			},
			want: "next point time set in phase ended",
		},
		{
			name:   "board not sized for a roster",
			mutate: func(s *memory.State) { s.Games[1].Height = 7 },
			want:   "board 10x7 is not sized for a roster",
		},
		{
			name: "roster larger than board",
			mutate: func(s *memory.State) {
				s.Games[1].Width, s.Games[1].Height = engine.BoardSize(1)
				s.Games[1].Players[0].Position = engine.Position{X: 0, Y: 0}
				s.Games[1].Players[2].Position = engine.Position{X: 1, Y: 1}
			},
			want: "board for 1 players holds 3",
		},
		{
			name:   "off the board",
			mutate: func(s *memory.State) { s.Games[1].Players[0].Position = engine.Position{X: 10, Y: 0} },
			want:   "alice is off the board at (10,0)",
		},
		{
			name:   "living tanks share a cell",
			mutate: func(s *memory.State) { s.Games[1].Players[0].Position = engine.Position{X: 9, Y: 5} },
			want:   "alice and carol share (9,5)",
		},
		{
			name:   "negative points",
			mutate: func(s *memory.State) { s.Games[1].Players[0].Points = -1 },
			want:   "alice has negative stats",
		},
		{
			name:   "color unset after setup",
			mutate: func(s *memory.State) { s.Games[1].Players[2].Color = engine.UnsetColor },
			want:   "carol has no color after setup",
		},
		{
			name:   "duplicate seat",
			mutate: func(s *memory.State) { s.Games[0].Players[1].Seat = 1 },
			want:   "seat 1 taken by alice and bob",
		},
		{
			name:   "duplicate user",
			mutate: func(s *memory.State) { s.Games[0].Players[1].UserID = "alice" },
			want:   "user alice joined twice",
		},
		{
			name: "log ids go backwards",
			mutate: func(s *memory.State) {
				s.Logs["live"][1].ID = 2
			},
			want: "log id 2 does not increase after 2",
		},
		{
			name:   "log id beyond next id",
			mutate: func(s *memory.State) { s.NextLogID = 2 },
			want:   "log id 3 exceeds next id 2",
		},
		{
			name: "logs of unknown game",
			mutate: func(s *memory.State) {
				s.Logs["gone"] = []engine.LogEntry{{ID: 1, GameID: "gone"}}
			},
			want: "Logs for unknown game gone",
		},
		{
			name:   "log filed under wrong game",
			mutate: func(s *memory.State) { s.Logs["live"][0].GameID = "setup" },
			want:   "Log 2 filed under live belongs to setup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validState()
			tt.mutate(state)

			result := validateSnapshot(writeSnapshot(t, state))
			assert.False(t, result.Valid)
			assert.Empty(t, result.Info)

			found := false
			for _, e := range result.Errors {
				found = found || strings.Contains(e, tt.want)
			}
			assert.True(t, found, "want %q in %v", tt.want, result.Errors)
		})
	}
}

func TestValidateSnapshot_Unreadable(t *testing.T) {
	dir := t.TempDir()

	missing := validateSnapshot(filepath.Join(dir, "missing.json"))
	assert.False(t, missing.Valid)
	assert.Contains(t, missing.Errors, "Snapshot file does not exist")

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o600))
	result := validateSnapshot(broken)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "failed to unmarshal snapshot")
}

func TestReport(t *testing.T) {
	good := writeSnapshot(t, validState())
	assert.True(t, report([]string{good}))

	bad := validState()
	bad.Games[0].Mode = "coop"
	assert.False(t, report([]string{good, writeSnapshot(t, bad)}))
}

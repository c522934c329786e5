// Command validate checks memory store snapshot files for states the game
// rules can never produce. For every game it checks:
//   - phase and mode are known values
//   - the board matches a roster size once setup is finished
//   - living tanks are on the board and never share a cell
//   - lives, points, range and kills are never negative
//   - seats and user ids are unique and colors are assigned after setup
//   - only started games carry a next point time
//
// Log entries must have increasing ids below the snapshot's next id and
// belong to a game in the snapshot.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store/memory"
)

// ValidationResult captures the outcome of validating a single snapshot.
// Info holds the summary lines of a valid file.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
	Info   []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// validateSnapshot loads and validates one snapshot file
func validateSnapshot(path string) ValidationResult {
	result := ValidationResult{File: path, Valid: true}

	snap, err := memory.NewSnapshot(path)
	if err != nil {
		result.fail("Failed to open snapshot: %v", err)
		return result
	}
	state, err := snap.Load()
	if err != nil {
		result.fail("%v", err)
		return result
	}
	if state == nil {
		result.fail("Snapshot file does not exist")
		return result
	}

	validateState(state, &result)
	if result.Valid {
		logs := 0
		for _, entries := range state.Logs {
			logs += len(entries)
		}
		result.Info = append(result.Info, fmt.Sprintf("✓ %d game(s), %d log entries", len(state.Games), logs))
	}
	return result
}

func validateState(state *memory.State, result *ValidationResult) {
	games := make(map[string]bool, len(state.Games))
	for _, g := range state.Games {
		if g == nil {
			result.fail("Null game entry")
			continue
		}
		if games[g.ID] {
			result.fail("Duplicate game %s", g.ID)
		}
		games[g.ID] = true
		validateGame(g, result)
	}

	ids := make([]string, 0, len(state.Logs))
	for id := range state.Logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !games[id] {
			result.fail("Logs for unknown game %s", id)
		}
		var last int64
		for _, e := range state.Logs[id] {
			if e.GameID != id {
				result.fail("Log %d filed under %s belongs to %s", e.ID, id, e.GameID)
			}
			if e.ID <= last {
				result.fail("Game %s: log id %d does not increase after %d", id, e.ID, last)
			}
			if e.ID > state.NextLogID {
				result.fail("Game %s: log id %d exceeds next id %d", id, e.ID, state.NextLogID)
			}
			last = e.ID
		}
	}
}

func validateGame(g *engine.Game, result *ValidationResult) {
	prefix := "Game " + g.ID + ": "

	if !g.Phase.Valid() {
		result.fail(prefix+"unknown phase %q", g.Phase)
	}
	if _, err := engine.ParseMode(string(g.Mode)); err != nil {
		result.fail(prefix+"unknown mode %q", g.Mode)
	}

	switch {
	case g.Phase == engine.PhaseStarted && g.NextPointAt == nil:
		result.fail("%s", prefix+"started without a next point time")
	case g.Phase != engine.PhaseStarted && g.NextPointAt != nil:
		result.fail(prefix+"next point time set in phase %s", g.Phase)
	}

	placed := g.Phase != engine.PhaseSetup
	if placed {
		validateBoard(g, prefix, result)
	}

	seats := make(map[int]string)
	users := make(map[string]bool)
	for _, p := range g.Players {
		if p.GameID != g.ID {
			result.fail(prefix+"player %s belongs to game %s", p.UserID, p.GameID)
		}
		if users[p.UserID] {
			result.fail(prefix+"user %s joined twice", p.UserID)
		}
		users[p.UserID] = true
		if other, ok := seats[p.Seat]; ok {
			result.fail(prefix+"seat %d taken by %s and %s", p.Seat, other, p.UserID)
		}
		seats[p.Seat] = p.UserID

		if p.Lives < 0 || p.Points < 0 || p.Range < 0 || p.Kills < 0 {
			result.fail(prefix+"%s has negative stats (lives=%d points=%d range=%d kills=%d)",
				p.UserID, p.Lives, p.Points, p.Range, p.Kills)
		}
		if placed && (p.Color == "" || p.Color == engine.UnsetColor) {
			result.fail(prefix+"%s has no color after setup", p.UserID)
		}
	}
}

func validateBoard(g *engine.Game, prefix string, result *ValidationResult) {
	if g.Width <= 0 || g.Width%engine.BoardWidthPerPlayer != 0 {
		result.fail(prefix+"board %dx%d is not sized for a roster", g.Width, g.Height)
		return
	}
	n := g.Width / engine.BoardWidthPerPlayer
	if w, h := engine.BoardSize(n); w != g.Width || h != g.Height {
		result.fail(prefix+"board %dx%d is not sized for a roster", g.Width, g.Height)
		return
	}
	if n < len(g.Players) {
		result.fail(prefix+"board for %d players holds %d", n, len(g.Players))
	}

	occupied := make(map[engine.Position]string)
	for _, p := range g.Players {
		if !p.Alive() {
			continue
		}
		if !g.InBounds(p.Position) {
			result.fail(prefix+"%s is off the board at (%d,%d)", p.UserID, p.Position.X, p.Position.Y)
			continue
		}
		if other, ok := occupied[p.Position]; ok {
			result.fail(prefix+"%s and %s share (%d,%d)", other, p.UserID, p.Position.X, p.Position.Y)
		}
		occupied[p.Position] = p.UserID
	}
}

func main() {
	cmd := &cli.Command{
		Name:      "validate",
		Usage:     "check snapshot files for impossible game states",
		ArgsUsage: "[snapshot.json...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				if p := os.Getenv("SNAPSHOT_PATH"); p != "" {
					files = []string{p}
				}
			}
			if len(files) == 0 {
				return fmt.Errorf("no snapshot given and SNAPSHOT_PATH is empty")
			}
			if !report(files) {
				return cli.Exit("❌ Some snapshots have errors", 1)
			}
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// report prints each result and reports whether all files were valid
func report(files []string) bool {
	allValid := true
	for _, file := range files {
		result := validateSnapshot(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)
		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Info {
				fmt.Println("  " + info)
			}
			continue
		}
		fmt.Println("❌ INVALID")
		allValid = false
		for _, err := range result.Errors {
			fmt.Println("  ❌ " + err)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All snapshots are valid!")
	}
	return allValid
}

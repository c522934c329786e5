// Command analyze prints a human-readable summary of finished or running
// games from their audit logs: per-player walks, shots, kills, gifts and
// range upgrades, how many point grants happened and how the game ended.
//
// It reads the store configured by the environment (STORE_DRIVER,
// STORE_DSN, SNAPSHOT_PATH), the same way the server does.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/config"
	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/lifecycle"
	"github.com/wricardo/tank-tactics/game/store"
	"github.com/wricardo/tank-tactics/game/store/backend"
)

// PlayerSummary counts what one player did
type PlayerSummary struct {
	UserID        string
	Steps         int
	Shots         int
	Kills         int
	LivesLost     int
	GiftsSent     int
	PointsGiven   int
	PointsGot     int
	RangeUpgrades int
	Left          bool
}

// Summary is the analysis of one game's log
type Summary struct {
	GameID  string
	Entries int
	Grants  int
	Players map[string]*PlayerSummary
	Ended   bool
	EndedBy string
	Winners []string
	// Malformed counts entries whose payload could not be decoded
	Malformed int
}

func (s *Summary) player(userID string) *PlayerSummary {
	p, ok := s.Players[userID]
	if !ok {
		p = &PlayerSummary{UserID: userID}
		s.Players[userID] = p
	}
	return p
}

// Summarize folds log entries into a Summary
func Summarize(gameID string, entries []engine.LogEntry) *Summary {
	s := &Summary{GameID: gameID, Entries: len(entries), Players: make(map[string]*PlayerSummary)}

	for _, e := range entries {
		var err error
		switch e.Type {
		case engine.LogWalk:
			var step ledger.WalkStep
			if err = json.Unmarshal(e.Payload, &step); err == nil {
				s.player(step.Player).Steps++
			}
		case engine.LogAttack:
			var a combat.AttackLog
			if err = json.Unmarshal(e.Payload, &a); err == nil {
				s.player(a.Player).Shots++
			}
		case engine.LogKill:
			var k ledger.Kill
			if err = json.Unmarshal(e.Payload, &k); err == nil {
				s.player(k.Player).Kills++
			}
		case engine.LogLifeRemove:
			var l ledger.LivesChange
			if err = json.Unmarshal(e.Payload, &l); err == nil {
				s.player(l.Player).LivesLost++
			}
		case engine.LogGift:
			var g combat.GiftLog
			if err = json.Unmarshal(e.Payload, &g); err == nil {
				giver := s.player(g.Player)
				giver.GiftsSent++
				giver.PointsGiven += g.Amount
				s.player(g.Target).PointsGot += g.Amount
			}
		case engine.LogRangeIncrease:
			var r ledger.RangeChange
			if err = json.Unmarshal(e.Payload, &r); err == nil {
				s.player(r.Player).RangeUpgrades++
			}
		case engine.LogAPGranted:
			s.Grants++
		case engine.LogLeave:
			var l ledger.Leave
			if err = json.Unmarshal(e.Payload, &l); err == nil {
				s.player(l.Player).Left = true
			}
		case engine.LogEnd:
			var end lifecycle.EndLog
			if err = json.Unmarshal(e.Payload, &end); err == nil {
				s.Ended = true
				s.EndedBy = end.Actor
				s.Winners = end.Winners
			}
		}
		if err != nil {
			s.Malformed++
		}
	}
	return s
}

// Print writes the summary as a table
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== Game %s ===\n", s.GameID)
	fmt.Fprintf(w, "Log entries: %d | Point grants: %d\n", s.Entries, s.Grants)
	switch {
	case !s.Ended:
		fmt.Fprintln(w, "Status: running")
	case s.EndedBy == lifecycle.SystemActor:
		fmt.Fprintf(w, "Status: ended, winner(s): %s\n", strings.Join(s.Winners, ", "))
	default:
		fmt.Fprintf(w, "Status: force-ended by %s\n", s.EndedBy)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(w, "⚠️  %d entries could not be decoded\n", s.Malformed)
	}

	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "%-12s %5s %5s %5s %5s %6s %6s %5s\n", "Player", "Steps", "Shots", "Kills", "Hits", "Given", "Got", "Range")
	for _, id := range ids {
		p := s.Players[id]
		name := p.UserID
		if p.Left {
			name += "*"
		}
		fmt.Fprintf(w, "%-12s %5d %5d %5d %5d %6d %6d %5d\n",
			name, p.Steps, p.Shots, p.Kills, p.LivesLost, p.PointsGiven, p.PointsGot, p.RangeUpgrades)
	}
}

// analyze summarizes gameIDs, or every game in the store when none given
func analyze(ctx context.Context, st store.Store, gameIDs []string, w io.Writer) error {
	if len(gameIDs) == 0 {
		games, err := st.Games(ctx)
		if err != nil {
			return fmt.Errorf("list games: %w", err)
		}
		for _, g := range games {
			gameIDs = append(gameIDs, g.ID)
		}
	}
	if len(gameIDs) == 0 {
		fmt.Fprintln(w, "No games found")
		return nil
	}

	for _, id := range gameIDs {
		if _, err := st.Game(ctx, id); err != nil {
			return fmt.Errorf("game %s: %w", id, err)
		}
		entries, err := st.Logs(ctx, id, 0)
		if err != nil {
			return fmt.Errorf("logs of %s: %w", id, err)
		}
		Summarize(id, entries).Print(w)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:      "analyze",
		Usage:     "summarize game logs",
		ArgsUsage: "[game id...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
				return err
			}
			s, err := config.Load()
			if err != nil {
				return err
			}
			log := logrus.New()
			log.SetOutput(os.Stderr)
			log.SetLevel(logrus.WarnLevel)

			st, err := backend.Open(ctx, s, log)
			if err != nil {
				return err
			}
			defer st.Close()
			return analyze(ctx, st, cmd.Args().Slice(), os.Stdout)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

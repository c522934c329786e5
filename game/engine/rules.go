package engine

// teamKey groups a player for the team win check; teamless players stand alone
func teamKey(p *Player) string {
	if p.Team == "" {
		return "solo:" + p.ID
	}
	return "team:" + p.Team
}

// IsFinished reports whether the game has a winner under its mode.
// FFA and hidden games end when at most one tank is alive; team games end
// when at most one team still has a living member.
func (g *Game) IsFinished() bool {
	living := g.Living()
	if g.Mode != ModeTeam {
		return len(living) <= 1
	}
	teams := make(map[string]struct{})
	for _, p := range living {
		teams[teamKey(p)] = struct{}{}
		if len(teams) > 1 {
			return false
		}
	}
	return true
}

// Winners returns the living players once the game is finished, nil otherwise
func (g *Game) Winners() []*Player {
	if !g.IsFinished() {
		return nil
	}
	return g.Living()
}

// UserIDs maps players to their user ids
func UserIDs(players []*Player) []string {
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.UserID)
	}
	return ids
}

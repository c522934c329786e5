package engine

import "math/rand/v2"

// Palette holds the tank colors handed out when setup finishes
var Palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#fffac8", "#800000",
	"#aaffc3", "#808000", "#ffd8b1", "#000075", "#808080",
	"#ffffff", "#000000",
}

// BoardSize returns the board dimensions for n players
func BoardSize(n int) (width, height int) {
	return n * BoardWidthPerPlayer, n * BoardHeightPerPlayer
}

// SpawnPositions picks n distinct random cells on a width x height board
func SpawnPositions(rng *rand.Rand, width, height, n int) []Position {
	cells := width * height
	if n > cells {
		n = cells
	}
	out := make([]Position, 0, n)
	for _, idx := range rng.Perm(cells)[:n] {
		out = append(out, Position{X: idx % width, Y: idx / width})
	}
	return out
}

// AssignColors picks n distinct random colors from the palette. When n
// exceeds the palette, the extra tanks get generated colors.
func AssignColors(rng *rand.Rand, n int) []string {
	out := make([]string, 0, n)
	for _, idx := range rng.Perm(len(Palette)) {
		if len(out) == n {
			return out
		}
		out = append(out, Palette[idx])
	}
	seen := make(map[string]struct{}, len(out))
	for _, c := range out {
		seen[c] = struct{}{}
	}
	for len(out) < n {
		c := randomColor(rng)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func randomColor(rng *rand.Rand) string {
	const hex = "0123456789abcdef"
	b := []byte("#000000")
	for i := 1; i < len(b); i++ {
		b[i] = hex[rng.IntN(len(hex))]
	}
	return string(b)
}

// Place finishes setup: sizes the board to the roster and gives every
// player a distinct cell and color
func (g *Game) Place(rng *rand.Rand) {
	g.Width, g.Height = BoardSize(len(g.Players))
	cells := SpawnPositions(rng, g.Width, g.Height, len(g.Players))
	colors := AssignColors(rng, len(g.Players))
	for i, p := range g.Players {
		p.Position = cells[i]
		p.Color = colors[i]
	}
}

// Package engine provides the core rules of the tank tactics game.
//
// The engine package is pure: it holds no state beyond the values passed in
// and performs no I/O. It implements:
//   - The Game, Player and LogEntry data model
//   - Board geometry: Chebyshev range, eight-way movement and collision
//   - Walk planning that stops at the first blocked step
//   - Win detection for free-for-all, hidden and team games
//   - Spawn placement and color assignment when setup finishes
//   - The typed error taxonomy shared by every other package
//
// Usage:
//
//	dir, err := engine.ParseDirection("ne")
//	if err != nil {
//		return err
//	}
//	path := game.PlanWalk(player, dir, 3)
//	// len(path) is the number of steps actually taken
//
// Errors:
//
// Rule violations are *engine.Error values with a Kind and a Code. Compare
// them with errors.Is against the exported sentinels, or classify them with
// engine.KindOf.
package engine

// Package mcp provides a Model Context Protocol server for tank tactics.
//
// The server is a thin client of the REST API: every tool turns into one
// HTTP call carrying the acting user in X-User-ID. The user defaults to the
// one given to NewClient and may be overridden per call with "as_user", so
// one agent can drive several tanks.
//
// MCP Tools:
//   - create_game, list_games, get_game
//   - add_player, remove_player, set_team, set_mode, set_point_interval, finish_setup
//   - start_game, end_game, leave_game, play_again
//   - walk, attack, gift, increase_range
//   - board, stats, in_range, logs, game_rules
//
// API failures come back as tool errors that include the engine error code,
// e.g. "not enough points (INSUFFICIENT_POINTS)".
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080", "alice", log)
//	if err := client.Serve(); err != nil {
//		log.Fatal(err)
//	}
package mcp

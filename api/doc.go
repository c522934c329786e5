// Package api provides the HTTP REST API of the tank tactics server.
//
// Every mutating request names its acting user in the X-User-ID header.
// Requests under /api are logged at debug level and, when configured, rate
// limited per user (or per remote host for anonymous reads).
//
// Endpoints:
//
// Games:
//   - POST /api/games - Create a game in setup {"mode": "ffa|team|hidden", "point_interval": "1h"}
//   - GET /api/games?phase=started - List games, optionally filtered by phase
//   - GET /api/games/{id} - Get a game with its roster; in hidden mode only
//     the X-User-ID viewer's own points are included
//
// Setup (owner only):
//   - POST /api/games/{id}/players - Add a player {"user_id": "bob"}
//   - DELETE /api/games/{id}/players/{user} - Remove a player
//   - PUT /api/games/{id}/players/{user}/team - Assign a team {"team": "red"}
//   - PUT /api/games/{id}/mode - Change the mode
//   - PUT /api/games/{id}/interval - Change the point interval
//   - POST /api/games/{id}/finish-setup - Size the board and place tanks
//
// Lifecycle:
//   - POST /api/games/{id}/start
//   - POST /api/games/{id}/end - Force-end a running game
//   - POST /api/games/{id}/leave
//   - POST /api/games/{id}/play-again - New setup game with the same roster
//
// Actions:
//   - POST /api/games/{id}/walk {"direction": "up-left", "steps": 2}
//   - POST /api/games/{id}/attack {"target": "bob"}
//   - POST /api/games/{id}/gift {"target": "bob", "amount": 1}
//   - POST /api/games/{id}/range
//
// Views:
//   - GET /api/games/{id}/board
//   - GET /api/games/{id}/stats - Points are hidden from others in hidden mode
//   - GET /api/games/{id}/in-range
//   - GET /api/games/{id}/logs?limit=50 - Other players' totals are stripped
//     in hidden mode
//   - GET /ws?game={id} - WebSocket feed of game events
//
// Usage:
//
//	srv := api.NewServer(svc, hub, api.WithRateLimit(5, 10), api.WithLogger(log))
//	http.ListenAndServe(":8080", srv)
//
// Error Handling:
//
// Engine failures carry a stable code and kind. Not found maps to 404,
// invalid state to 409, insufficient resources and out of range to 422 and
// invalid input to 400:
//
//	{
//	  "error": "not enough points",
//	  "code": "INSUFFICIENT_POINTS",
//	  "kind": "insufficient_resource"
//	}
package api

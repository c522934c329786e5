// Package websocket streams game events to browsers and bots.
//
// A client connects to /ws?game=<id> and receives every events.Event of
// that game as one JSON text message:
//
//	{"type":"attack","game_id":"…","at":"…","data":{"attacker":"alice",…}}
//
// The Hub subscribes to the event bus once and fans events out to the
// clients registered for each game. Clients never send commands over the
// socket; those go through the REST API. A client whose buffer fills up is
// disconnected.
package websocket

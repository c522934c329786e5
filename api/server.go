package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/transport/websocket"
)

// UserHeader carries the acting user of a request
const UserHeader = "X-User-ID"

// DefaultLogLimit is the number of log entries returned when no limit is given
const DefaultLogLimit = 50

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	limiter *userLimiter
	log     logrus.FieldLogger
}

// Option configures a Server
type Option func(*Server)

// WithRateLimit limits every user to perSecond requests with the given burst
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.limiter = newUserLimiter(perSecond, burst) }
}

// WithLogger sets the request logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer creates a new API server. hub may be nil to disable /ws.
func NewServer(gameService service.GameService, hub *websocket.Hub, opts ...Option) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.logRequests)
	if s.limiter != nil {
		api.Use(s.limiter.middleware)
	}

	// Games
	api.HandleFunc("/games", s.handleCreateGame).Methods("POST")
	api.HandleFunc("/games", s.handleListGames).Methods("GET")
	api.HandleFunc("/games/{id}", s.handleGetGame).Methods("GET")

	// Setup
	api.HandleFunc("/games/{id}/players", s.handleAddPlayer).Methods("POST")
	api.HandleFunc("/games/{id}/players/{user}", s.handleRemovePlayer).Methods("DELETE")
	api.HandleFunc("/games/{id}/players/{user}/team", s.handleSetTeam).Methods("PUT")
	api.HandleFunc("/games/{id}/mode", s.handleSetMode).Methods("PUT")
	api.HandleFunc("/games/{id}/interval", s.handleSetInterval).Methods("PUT")
	api.HandleFunc("/games/{id}/finish-setup", s.handleFinishSetup).Methods("POST")

	// Lifecycle
	api.HandleFunc("/games/{id}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/games/{id}/end", s.handleForceEnd).Methods("POST")
	api.HandleFunc("/games/{id}/leave", s.handleLeave).Methods("POST")
	api.HandleFunc("/games/{id}/play-again", s.handlePlayAgain).Methods("POST")

	// Actions
	api.HandleFunc("/games/{id}/walk", s.handleWalk).Methods("POST")
	api.HandleFunc("/games/{id}/attack", s.handleAttack).Methods("POST")
	api.HandleFunc("/games/{id}/gift", s.handleGift).Methods("POST")
	api.HandleFunc("/games/{id}/range", s.handleIncreaseRange).Methods("POST")

	// Views
	api.HandleFunc("/games/{id}/board", s.handleBoard).Methods("GET")
	api.HandleFunc("/games/{id}/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/games/{id}/in-range", s.handleInRange).Methods("GET")
	api.HandleFunc("/games/{id}/logs", s.handleLogs).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error string      `json:"error"`
	Code  engine.Code `json:"code,omitempty"`
	Kind  engine.Kind `json:"kind,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

// statusOf maps an engine error kind to its HTTP status
func statusOf(err error) int {
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindInvalidState:
		return http.StatusConflict
	case engine.KindInsufficientResource, engine.KindOutOfRange:
		return http.StatusUnprocessableEntity
	case engine.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with the status of its kind. Unexpected errors are
// logged and hidden from the client.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var e *engine.Error
	if errors.As(err, &e) {
		respondJSON(w, statusOf(err), errorBody{Error: e.Message, Code: e.Code, Kind: e.Kind})
		return
	}
	s.log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

// decode reads a JSON body into dst; an empty body leaves dst untouched
func decode(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// actor returns the acting user or writes a 400
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		s.respondErr(w, r, engine.ErrMissingUser)
		return "", false
	}
	return user, true
}

// intervalRequest accepts an interval as a Go duration string or in ms
type intervalRequest struct {
	PointInterval   string `json:"point_interval,omitempty"`
	PointIntervalMS int64  `json:"point_interval_ms,omitempty"`
}

func (i intervalRequest) duration() (time.Duration, error) {
	if i.PointInterval != "" {
		d, err := time.ParseDuration(i.PointInterval)
		if err != nil {
			return 0, engine.ErrInvalidPointInterval
		}
		return d, nil
	}
	return time.Duration(i.PointIntervalMS) * time.Millisecond, nil
}

// Game Handlers

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode,omitempty"`
		intervalRequest
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := req.duration()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if interval < 0 {
		s.respondErr(w, r, engine.ErrInvalidPointInterval)
		return
	}

	g, err := s.service.CreateGame(r.Context(), user, service.CreateOptions{
		Mode:          engine.Mode(req.Mode),
		PointInterval: interval,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, service.NewGameView(g, user))
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	var phases []engine.Phase
	for _, p := range r.URL.Query()["phase"] {
		phase := engine.Phase(p)
		if !phase.Valid() {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown phase %q", p))
			return
		}
		phases = append(phases, phase)
	}

	games, err := s.service.ListGames(r.Context(), phases...)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(games),
		"games": games,
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.service.ViewGame(r.Context(), mux.Vars(r)["id"], r.Header.Get(UserHeader))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// Setup Handlers

func (s *Server) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.service.AddPlayer(r.Context(), mux.Vars(r)["id"], user, req.UserID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := s.service.RemovePlayer(r.Context(), vars["id"], user, vars["user"]); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Player %s removed", vars["user"]),
	})
}

func (s *Server) handleSetTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Team string `json:"team"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	vars := mux.Vars(r)
	p, err := s.service.SetTeam(r.Context(), vars["id"], user, vars["user"], req.Team)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := s.service.SetMode(r.Context(), mux.Vars(r)["id"], user, engine.Mode(req.Mode))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, service.NewGameView(g, user))
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req intervalRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := req.duration()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	g, err := s.service.SetPointInterval(r.Context(), mux.Vars(r)["id"], user, interval)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, service.NewGameView(g, user))
}

func (s *Server) handleFinishSetup(w http.ResponseWriter, r *http.Request) {
	s.gameCommand(w, r, s.service.FinishSetup)
}

// Lifecycle Handlers

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.gameCommand(w, r, s.service.Start)
}

func (s *Server) handleForceEnd(w http.ResponseWriter, r *http.Request) {
	s.gameCommand(w, r, s.service.ForceEnd)
}

func (s *Server) handlePlayAgain(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	g, err := s.service.PlayAgain(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, service.NewGameView(g, user))
}

// gameCommand runs an actor-only command that returns the game
func (s *Server) gameCommand(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, gameID, actor string) (*engine.Game, error)) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	g, err := cmd(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, service.NewGameView(g, user))
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	res, err := s.service.Leave(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Action Handlers

func (s *Server) handleWalk(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction string `json:"direction"`
		Steps     *int   `json:"steps,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := engine.ParseDirection(req.Direction)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	steps := 1
	if req.Steps != nil {
		steps = *req.Steps
	}

	res, err := s.service.Walk(r.Context(), mux.Vars(r)["id"], user, dir, steps)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.Attack(r.Context(), mux.Vars(r)["id"], user, req.Target)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGift(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target"`
		Amount int    `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.Gift(r.Context(), mux.Vars(r)["id"], user, req.Target, req.Amount)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleIncreaseRange(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	res, err := s.service.IncreaseRange(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// View Handlers

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.Board(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.PlayerStats(r.Context(), mux.Vars(r)["id"], r.Header.Get(UserHeader))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"players": stats})
}

func (s *Server) handleInRange(w http.ResponseWriter, r *http.Request) {
	user, ok := s.actor(w, r)
	if !ok {
		return
	}
	players, err := s.service.PlayersInRange(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"players": players})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	logs, err := s.service.Logs(r.Context(), mux.Vars(r)["id"], r.Header.Get(UserHeader), limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(logs),
		"logs":  logs,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket disabled", http.StatusNotFound)
		return
	}
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		http.Error(w, "game parameter required", http.StatusBadRequest)
		return
	}

	if _, err := s.service.GetGame(r.Context(), gameID); err != nil {
		http.Error(w, "Invalid game", statusOf(err))
		return
	}

	s.hub.ServeWS(w, r, gameID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

const (
	serverName    = "Tank Tactics"
	serverVersion = "1.0.0"
	userHeader    = "X-User-ID"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	mcpServer  *server.MCPServer
	log        logrus.FieldLogger
}

// APIError is a failed REST call
type APIError struct {
	Status  int
	Code    engine.Code
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// NewClient creates a new MCP client that calls the REST API as userID.
// Tools may override the user per call.
func NewClient(baseURL, userID string, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.WithField("component", "mcp"),
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Tank Tactics - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
Be the last tank (or team) standing. Tanks earn action points over time and
spend them to walk, shoot or upgrade their range.

FLOW:
create_game -> add_player (x N) -> finish_setup -> start_game -> actions

Use game_rules for costs and rules. Every tool acts as the configured user
unless "as_user" is given.`),
	)

	c.registerTools()
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Serve runs the MCP server on stdio
func (c *Client) Serve() error {
	if err := server.ServeStdio(c.mcpServer); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func gameIDArg() mcp.ToolOption {
	return mcp.WithString("game_id", mcp.Required(), mcp.Description("Game ID"))
}

func asUserArg() mcp.ToolOption {
	return mcp.WithString("as_user", mcp.Description("Act as this user instead of the configured one"))
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Games
	c.mcpServer.AddTool(mcp.NewTool("create_game",
		mcp.WithDescription("Create a new game in setup; you become its owner"),
		mcp.WithString("mode", mcp.Enum("ffa", "team", "hidden"), mcp.Description("Game mode (default ffa)")),
		mcp.WithString("point_interval", mcp.Description("Time between point grants, e.g. 1h or 30m")),
		asUserArg(),
	), c.handleCreateGame)

	c.mcpServer.AddTool(mcp.NewTool("list_games",
		mcp.WithDescription("List games, optionally filtered by phase"),
		mcp.WithString("phase", mcp.Enum("setup", "starting", "started", "ended")),
	), c.handleListGames)

	c.mcpServer.AddTool(mcp.NewTool("get_game",
		mcp.WithDescription("Get a game and its roster"),
		gameIDArg(),
		asUserArg(),
	), c.handleGetGame)

	// Setup
	c.mcpServer.AddTool(mcp.NewTool("add_player",
		mcp.WithDescription("Add a player to a game in setup (owner only)"),
		gameIDArg(),
		mcp.WithString("player", mcp.Required(), mcp.Description("User ID to add")),
		asUserArg(),
	), c.handleAddPlayer)

	c.mcpServer.AddTool(mcp.NewTool("remove_player",
		mcp.WithDescription("Remove a player from a game in setup (owner only)"),
		gameIDArg(),
		mcp.WithString("player", mcp.Required(), mcp.Description("User ID to remove")),
		asUserArg(),
	), c.handleRemovePlayer)

	c.mcpServer.AddTool(mcp.NewTool("set_team",
		mcp.WithDescription("Assign a player to a team (owner only, setup)"),
		gameIDArg(),
		mcp.WithString("player", mcp.Required()),
		mcp.WithString("team", mcp.Required()),
		asUserArg(),
	), c.handleSetTeam)

	c.mcpServer.AddTool(mcp.NewTool("set_mode",
		mcp.WithDescription("Change the game mode (owner only, setup)"),
		gameIDArg(),
		mcp.WithString("mode", mcp.Required(), mcp.Enum("ffa", "team", "hidden")),
		asUserArg(),
	), c.handleSetMode)

	c.mcpServer.AddTool(mcp.NewTool("set_point_interval",
		mcp.WithDescription("Change the time between point grants (owner only, setup)"),
		gameIDArg(),
		mcp.WithString("point_interval", mcp.Required(), mcp.Description("Duration such as 1h or 45m")),
		asUserArg(),
	), c.handleSetPointInterval)

	c.mcpServer.AddTool(mcp.NewTool("finish_setup",
		mcp.WithDescription("Size the board and place every tank (owner only)"),
		gameIDArg(),
		asUserArg(),
	), c.handleFinishSetup)

	// Lifecycle
	c.mcpServer.AddTool(mcp.NewTool("start_game",
		mcp.WithDescription("Start a placed game (owner only)"),
		gameIDArg(),
		asUserArg(),
	), c.handleStart)

	c.mcpServer.AddTool(mcp.NewTool("end_game",
		mcp.WithDescription("Force-end a running game"),
		gameIDArg(),
		asUserArg(),
	), c.handleEnd)

	c.mcpServer.AddTool(mcp.NewTool("leave_game",
		mcp.WithDescription("Leave a running game; needs at least 5 living tanks"),
		gameIDArg(),
		asUserArg(),
	), c.handleLeave)

	c.mcpServer.AddTool(mcp.NewTool("play_again",
		mcp.WithDescription("Create a new setup game with the roster of an ended game"),
		gameIDArg(),
		asUserArg(),
	), c.handlePlayAgain)

	// Actions
	c.mcpServer.AddTool(mcp.NewTool("walk",
		mcp.WithDescription("Walk your tank; each step costs 1 point and the walk stops at edges and other tanks"),
		gameIDArg(),
		mcp.WithString("direction", mcp.Required(),
			mcp.Enum("up", "up-right", "right", "down-right", "down", "down-left", "left", "up-left")),
		mcp.WithNumber("steps", mcp.Min(1), mcp.DefaultNumber(1)),
		asUserArg(),
	), c.handleWalk)

	c.mcpServer.AddTool(mcp.NewTool("attack",
		mcp.WithDescription("Shoot a tank in range for 1 point; it loses a life"),
		gameIDArg(),
		mcp.WithString("target", mcp.Required(), mcp.Description("User ID to attack")),
		asUserArg(),
	), c.handleAttack)

	c.mcpServer.AddTool(mcp.NewTool("gift",
		mcp.WithDescription("Give points to a living tank in range; dead tanks may gift anywhere"),
		gameIDArg(),
		mcp.WithString("target", mcp.Required()),
		mcp.WithNumber("amount", mcp.Required(), mcp.Min(1)),
		asUserArg(),
	), c.handleGift)

	c.mcpServer.AddTool(mcp.NewTool("increase_range",
		mcp.WithDescription("Spend 2 points to increase your range by 1"),
		gameIDArg(),
		asUserArg(),
	), c.handleIncreaseRange)

	// Views
	c.mcpServer.AddTool(mcp.NewTool("board",
		mcp.WithDescription("Render the board"),
		gameIDArg(),
	), c.handleBoard)

	c.mcpServer.AddTool(mcp.NewTool("stats",
		mcp.WithDescription("Player stats; points of others are hidden in hidden mode"),
		gameIDArg(),
		asUserArg(),
	), c.handleStats)

	c.mcpServer.AddTool(mcp.NewTool("in_range",
		mcp.WithDescription("List the tanks within your range"),
		gameIDArg(),
		asUserArg(),
	), c.handleInRange)

	c.mcpServer.AddTool(mcp.NewTool("logs",
		mcp.WithDescription("Most recent game log entries"),
		gameIDArg(),
		asUserArg(),
		mcp.WithNumber("limit", mcp.Min(0), mcp.DefaultNumber(20)),
	), c.handleLogs)

	c.mcpServer.AddTool(mcp.NewTool("game_rules",
		mcp.WithDescription("Get the rules and action costs"),
	), c.handleGameRules)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, user, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string      `json:"error"`
			Code  engine.Code `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "" {
			errResp.Error = fmt.Sprintf("API error: %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// gameArgs are the arguments shared by most tools
type gameArgs struct {
	GameID string `json:"game_id"`
	AsUser string `json:"as_user"`
}

func (c *Client) user(args gameArgs) string {
	if args.AsUser != "" {
		return args.AsUser
	}
	return c.userID
}

func gamePath(gameID string, parts ...string) string {
	p := "/api/games/" + url.PathEscape(gameID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func failed(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// Tool handlers

func (c *Client) handleCreateGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Mode          string `json:"mode"`
		PointInterval string `json:"point_interval"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	body := map[string]string{}
	if args.Mode != "" {
		body["mode"] = args.Mode
	}
	if args.PointInterval != "" {
		body["point_interval"] = args.PointInterval
	}

	var g engine.Game
	if err := c.apiCall(ctx, c.user(args.gameArgs), "POST", "/api/games", body, &g); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created game: %s\n\n%s", g.ID, formatGame(&g))), nil
}

func (c *Client) handleListGames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/games"
	if phase := request.GetString("phase", ""); phase != "" {
		path += "?phase=" + url.QueryEscape(phase)
	}

	var response struct {
		Count int                    `json:"count"`
		Games []*service.GameSummary `json:"games"`
	}
	if err := c.apiCall(ctx, "", "GET", path, nil, &response); err != nil {
		return failed(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Games (%d):\n\n", response.Count)
	for _, g := range response.Games {
		fmt.Fprintf(&b, "- %s [%s] mode=%s owner=%s players=%d living=%d\n",
			g.ID, g.Phase, g.Mode, g.CreatedBy, g.Players, g.Living)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var g engine.Game
	if err := c.apiCall(ctx, c.user(args), "GET", gamePath(args.GameID), nil, &g); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(formatGame(&g)), nil
}

func (c *Client) handleAddPlayer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Player string `json:"player"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	var p engine.Player
	body := map[string]string{"user_id": args.Player}
	if err := c.apiCall(ctx, c.user(args.gameArgs), "POST", gamePath(args.GameID, "players"), body, &p); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added %s to seat %d", p.UserID, p.Seat)), nil
}

func (c *Client) handleRemovePlayer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Player string `json:"player"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	path := gamePath(args.GameID, "players", url.PathEscape(args.Player))
	if err := c.apiCall(ctx, c.user(args.gameArgs), "DELETE", path, nil, nil); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed %s", args.Player)), nil
}

func (c *Client) handleSetTeam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Player string `json:"player"`
		Team   string `json:"team"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	path := gamePath(args.GameID, "players", url.PathEscape(args.Player), "team")
	var p engine.Player
	if err := c.apiCall(ctx, c.user(args.gameArgs), "PUT", path, map[string]string{"team": args.Team}, &p); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s joined team %s", p.UserID, p.Team)), nil
}

func (c *Client) handleSetMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Mode string `json:"mode"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	return c.gameCommand(ctx, args.gameArgs, "PUT", "mode", map[string]string{"mode": args.Mode})
}

func (c *Client) handleSetPointInterval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		PointInterval string `json:"point_interval"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	return c.gameCommand(ctx, args.gameArgs, "PUT", "interval", map[string]string{"point_interval": args.PointInterval})
}

func (c *Client) handleFinishSetup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.bindGameCommand(ctx, request, "finish-setup")
}

func (c *Client) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.bindGameCommand(ctx, request, "start")
}

func (c *Client) handleEnd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.bindGameCommand(ctx, request, "end")
}

func (c *Client) handlePlayAgain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var g engine.Game
	if err := c.apiCall(ctx, c.user(args), "POST", gamePath(args.GameID, "play-again"), nil, &g); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("New game: %s\n\n%s", g.ID, formatGame(&g))), nil
}

// bindGameCommand posts a body-less command and renders the returned game
func (c *Client) bindGameCommand(ctx context.Context, request mcp.CallToolRequest, action string) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	return c.gameCommand(ctx, args, "POST", action, nil)
}

func (c *Client) gameCommand(ctx context.Context, args gameArgs, method, action string, body interface{}) (*mcp.CallToolResult, error) {
	var g engine.Game
	if err := c.apiCall(ctx, c.user(args), method, gamePath(args.GameID, action), body, &g); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(formatGame(&g)), nil
}

func (c *Client) handleLeave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var res service.LeaveResult
	if err := c.apiCall(ctx, c.user(args), "POST", gamePath(args.GameID, "leave"), nil, &res); err != nil {
		return failed(err), nil
	}
	text := "You left the game."
	if res.GameOver {
		text += "\n" + formatWinners(res.Winners)
	}
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleWalk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Direction string `json:"direction"`
		Steps     *int   `json:"steps"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	body := map[string]interface{}{"direction": args.Direction}
	if args.Steps != nil {
		body["steps"] = *args.Steps
	}
	var res combat.WalkResult
	if err := c.apiCall(ctx, c.user(args.gameArgs), "POST", gamePath(args.GameID, "walk"), body, &res); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(formatWalk(&res)), nil
}

func (c *Client) handleAttack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Target string `json:"target"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	var res service.AttackOutcome
	if err := c.apiCall(ctx, c.user(args.gameArgs), "POST", gamePath(args.GameID, "attack"), map[string]string{"target": args.Target}, &res); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(formatAttack(args.Target, &res)), nil
}

func (c *Client) handleGift(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		gameArgs
		Target string `json:"target"`
		Amount int    `json:"amount"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	body := map[string]interface{}{"target": args.Target, "amount": args.Amount}
	var res service.GiftOutcome
	if err := c.apiCall(ctx, c.user(args.gameArgs), "POST", gamePath(args.GameID, "gift"), body, &res); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Gave %d point(s) to %s", res.Amount, args.Target)), nil
}

func (c *Client) handleIncreaseRange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var res combat.RangeResult
	if err := c.apiCall(ctx, c.user(args), "POST", gamePath(args.GameID, "range"), nil, &res); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Range %d -> %d (cost %d)", res.OldRange, res.NewRange, res.Cost)), nil
}

func (c *Client) handleBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b engine.Board
	if err := c.apiCall(ctx, "", "GET", gamePath(request.GetString("game_id", ""), "board"), nil, &b); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(formatBoard(&b)), nil
}

func (c *Client) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var response struct {
		Players []service.PlayerStats `json:"players"`
	}
	if err := c.apiCall(ctx, c.user(args), "GET", gamePath(args.GameID, "stats"), nil, &response); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(formatStats(response.Players)), nil
}

func (c *Client) handleInRange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	var response struct {
		Players []engine.BoardPlayer `json:"players"`
	}
	if err := c.apiCall(ctx, c.user(args), "GET", gamePath(args.GameID, "in-range"), nil, &response); err != nil {
		return failed(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "In range (%d):\n", len(response.Players))
	for _, p := range response.Players {
		fmt.Fprintf(&b, "- %s at (%d,%d) lives=%d\n", p.UserID, p.X, p.Y, p.Lives)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gameArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	limit := request.GetInt("limit", 20)
	path := fmt.Sprintf("%s?limit=%d", gamePath(args.GameID, "logs"), limit)

	var response struct {
		Logs []engine.LogEntry `json:"logs"`
	}
	if err := c.apiCall(ctx, c.user(args), "GET", path, nil, &response); err != nil {
		return failed(err), nil
	}

	var b strings.Builder
	for _, e := range response.Logs {
		fmt.Fprintf(&b, "%s %-10s %s\n", e.CreatedAt.Format("15:04:05"), e.Type, e.Payload)
	}
	if b.Len() == 0 {
		return mcp.NewToolResultText("No log entries"), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rules := fmt.Sprintf(`Tank Tactics - Rules

SETUP:
- The owner creates a game, adds players (%d to %d) and picks a mode:
  ffa (everyone for themselves), team (last team standing) or hidden
  (point totals are secret).
- finish_setup sizes the board (5 columns and 3 rows per player) and
  places every tank on a free cell.

POINTS:
- Every living tank gets 1 point each point interval.
- Tanks start with %d lives, %d point(s) and range %d.

ACTIONS:
- walk: %d point per step taken, 8 directions, blocked by edges and tanks
- attack: %d point; target must be alive and within range (Chebyshev distance)
  Killing a tank takes all of its points.
- gift: at least %d point to a living tank in range. Dead tanks may gift
  to anyone.
- increase_range: %d points for +1 range
- leave: only while at least %d tanks are alive

The game ends when one tank (or team) remains.`,
		engine.MinPlayers, engine.DefaultMaxPlayer,
		engine.DefaultLives, engine.DefaultPoints, engine.DefaultRange,
		engine.WalkCost, engine.AttackCost, engine.MinGift, engine.RangeCost,
		engine.MinLivingToLeave)
	return mcp.NewToolResultText(rules), nil
}

// Formatting

func formatGame(g *engine.Game) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Game %s | phase=%s | mode=%s | owner=%s | interval=%s\n",
		g.ID, g.Phase, g.Mode, g.CreatedBy, g.PointInterval)
	if g.Width > 0 {
		fmt.Fprintf(&b, "Board: %dx%d\n", g.Width, g.Height)
	}
	if g.NextPointAt != nil {
		fmt.Fprintf(&b, "Next point: %s\n", g.NextPointAt.Format(time.RFC3339))
	}
	b.WriteString("\nPlayers:\n")
	for _, p := range g.Players {
		fmt.Fprintf(&b, "  %d. %s", p.Seat, p.UserID)
		if p.Team != "" {
			fmt.Fprintf(&b, " [%s]", p.Team)
		}
		if g.Phase != engine.PhaseSetup {
			fmt.Fprintf(&b, " at (%d,%d) lives=%d range=%d", p.Position.X, p.Position.Y, p.Lives, p.Range)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatBoard draws the grid with each tank as the first letter of its user
func formatBoard(board *engine.Board) string {
	if board == nil || board.Width == 0 {
		return "Board not placed yet"
	}

	cells := make(map[[2]int]engine.BoardPlayer, len(board.Players))
	for _, p := range board.Players {
		if p.Lives > 0 {
			cells[[2]int{p.X, p.Y}] = p
		}
	}

	var b strings.Builder
	for y := 0; y < board.Height; y++ {
		for x := 0; x < board.Width; x++ {
			if p, ok := cells[[2]int{x, y}]; ok && p.UserID != "" {
				b.WriteString(strings.ToUpper(p.UserID[:1]))
			} else {
				b.WriteString(".")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nLegend:\n")
	players := append([]engine.BoardPlayer(nil), board.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })
	for _, p := range players {
		status := fmt.Sprintf("(%d,%d) lives=%d range=%d", p.X, p.Y, p.Lives, p.Range)
		if p.Lives <= 0 {
			status = "dead"
		}
		fmt.Fprintf(&b, "  %s %s\n", p.UserID, status)
	}
	return b.String()
}

func formatWalk(res *combat.WalkResult) string {
	text := fmt.Sprintf("Walked %d/%d step(s) %s: (%d,%d) -> (%d,%d)",
		res.Taken, res.Requested, res.Direction, res.From.X, res.From.Y, res.To.X, res.To.Y)
	if res.Taken < res.Requested {
		text += "\nBlocked by the board edge or another tank."
	}
	return text
}

func formatAttack(target string, res *service.AttackOutcome) string {
	var b strings.Builder
	if res.AttackResult != nil && res.Killed {
		fmt.Fprintf(&b, "Destroyed %s and took %d point(s)", target, res.PointsTransferred)
	} else if res.AttackResult != nil {
		fmt.Fprintf(&b, "Hit %s; %d lives left", target, res.RemainingLives)
	}
	if res.GameOver {
		b.WriteString("\n" + formatWinners(res.Winners))
	}
	return b.String()
}

func formatWinners(winners []string) string {
	if len(winners) == 0 {
		return "Game over."
	}
	return "Game over. Winner(s): " + strings.Join(winners, ", ")
}

func formatStats(players []service.PlayerStats) string {
	var b strings.Builder
	b.WriteString("Player       Lives Points Range Kills\n")
	for _, p := range players {
		points := "?"
		if p.Points != nil {
			points = fmt.Sprint(*p.Points)
		}
		fmt.Fprintf(&b, "%-12s %5d %6s %5d %5d\n", p.UserID, p.Lives, points, p.Range, p.Kills)
	}
	return b.String()
}

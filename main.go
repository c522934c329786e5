// Command tank-tactics starts the tank tactics game server.
//
// It supports these commands:
//  1. "serve" (default) – runs the HTTP server exposing the REST API, WebSocket feed and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server against an API, spinning up an internal one if none is reachable
//  3. "migrate" – applies the SQL migrations of the configured store and exits
//  4. "version" – prints the version
//
// Settings come from the environment (and an optional .env file); flags
// override host, port and store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/tank-tactics/api"
	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/config"
	"github.com/wricardo/tank-tactics/game/events"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/lifecycle"
	"github.com/wricardo/tank-tactics/game/scheduler"
	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/game/store"
	"github.com/wricardo/tank-tactics/game/store/backend"
	"github.com/wricardo/tank-tactics/transport/mcp"
	"github.com/wricardo/tank-tactics/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Tank Tactics Server"
)

// defaultMCPUser acts for MCP tool calls that name no user
const defaultMCPUser = "agent"

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newCommand builds the CLI
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "tank-tactics",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: ".env files to load (default .env)"},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.StringFlag{Name: "store", Usage: "store driver: memory, sqlite or postgres"},
			&cli.StringFlag{Name: "dsn", Usage: "store DSN (file path for sqlite)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server with API, WebSocket and MCP endpoint",
				Action: runServe,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp"},
				Usage:   "run an MCP stdio server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Value: "http://localhost:8080", Usage: "API to proxy to"},
					&cli.StringFlag{Name: "user", Value: defaultMCPUser, Usage: "default acting user", Sources: cli.EnvVars("MCP_USER")},
				},
				Action: runStdioMCP,
			},
			{
				Name:   "migrate",
				Usage:  "apply SQL migrations and exit",
				Action: runMigrate,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// loadSettings reads .env files and the environment, then applies flags
func loadSettings(cmd *cli.Command) (*config.Settings, error) {
	if err := config.LoadDotEnv(cmd.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	s, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func applyFlags(cmd *cli.Command, s *config.Settings) {
	if cmd.IsSet("host") {
		s.HTTPHost = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.HTTPPort = int(cmd.Int("port"))
	}
	if cmd.IsSet("store") {
		s.StoreDriver = cmd.String("store")
	}
	if cmd.IsSet("dsn") {
		s.StoreDSN = cmd.String("dsn")
	}
	if cmd.Bool("debug") {
		s.LogLevel = "debug"
	}
}

// runtime is the wired engine of one process
type runtime struct {
	settings  *config.Settings
	log       *logrus.Logger
	store     store.Store
	bus       events.Bus
	redis     *events.RedisBus
	scheduler *scheduler.Scheduler
	service   service.GameService
	hub       *websocket.Hub
}

// wire builds every component from the settings
func wire(ctx context.Context, s *config.Settings, log *logrus.Logger) (*runtime, error) {
	st, err := backend.Open(ctx, s, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rt := &runtime{settings: s, log: log, store: st}
	if s.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		rt.redis = events.NewRedisBus(client, s.RedisChannelPrefix, log)
		rt.bus = rt.redis
	} else {
		rt.bus = events.NewLocalBus(log)
	}

	l := ledger.New(time.Now)
	life := lifecycle.New(l, lifecycle.WithRules(s.Rules()))
	rt.scheduler = scheduler.New(st, l, life, rt.bus,
		scheduler.WithMinDelay(s.SchedulerMinDelay),
		scheduler.WithLogger(log),
	)
	rt.service = service.NewGameService(service.Deps{
		Store:                st,
		Lifecycle:            life,
		Combat:               combat.New(l),
		Scheduler:            rt.scheduler,
		Bus:                  rt.bus,
		Logger:               log,
		DefaultPointInterval: s.DefaultPointInterval,
	})
	rt.hub = websocket.NewHub(log)
	return rt, nil
}

// start resumes point grants and runs the hub and the Redis relay in g
func (rt *runtime) start(ctx context.Context, g *errgroup.Group) error {
	if rt.redis != nil {
		g.Go(func() error { return rt.redis.Run(ctx) })
	}
	g.Go(func() error {
		rt.hub.Run(ctx, rt.bus)
		return nil
	})

	n, err := rt.service.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume games: %w", err)
	}
	rt.log.WithField("games", n).Info("resumed running games")
	return nil
}

func (rt *runtime) close() {
	rt.scheduler.Stop()
	if err := rt.store.Close(); err != nil {
		rt.log.WithError(err).Warn("close store")
	}
}

// handler mounts the API and the /mcp endpoint
func (rt *runtime) handler(baseURL string) http.Handler {
	apiServer := api.NewServer(rt.service, rt.hub,
		api.WithRateLimit(rt.settings.RateLimitPerSecond, rt.settings.RateLimitBurst),
		api.WithLogger(rt.log),
	)
	mcpClient := mcp.NewClient(baseURL, defaultMCPUser, rt.log)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer)
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})
	return mux
}

// runServe runs the HTTP server until SIGINT or SIGTERM
func runServe(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log, err := s.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	log.WithField("version", Version).Infof("starting %s", AppName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := wire(ctx, s, log)
	if err != nil {
		return err
	}
	defer rt.close()

	g, ctx := errgroup.WithContext(ctx)
	if err := rt.start(ctx, g); err != nil {
		return err
	}

	addr := s.Addr()
	handler := rt.handler("http://" + loopback(addr))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":  addr,
			"store": s.StoreDriver,
		}).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.NgrokEnabled {
		g.Go(func() error { return serveNgrok(ctx, s, handler, log) })
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

// loopback turns a wildcard listen address into one the process can dial
func loopback(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, s *config.Settings, handler http.Handler, log logrus.FieldLogger) error {
	var tunnel ngrokConfig.Tunnel
	if s.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(s.NgrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(s.NgrokAuthtoken))
	if err != nil {
		// the local server keeps running without the tunnel
		log.WithError(err).Error("failed to start ngrok tunnel")
		return nil
	}

	log.WithField("url", tun.URL()).Info("ngrok tunnel established")
	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Warn("ngrok server error")
	}
	log.Info("ngrok tunnel closed")
	return nil
}

// runStdioMCP serves MCP on stdio. It proxies to --api-url when that API
// answers; otherwise it starts an internal API on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol
	log, err := s.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	baseURL := cmd.String("api-url")
	if !reachable(baseURL) {
		log.WithField("api_url", baseURL).Info("no external API found, starting internal server")

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		rt, err := wire(ctx, s, log)
		if err != nil {
			return err
		}
		defer rt.close()

		g, ctx := errgroup.WithContext(ctx)
		if err := rt.start(ctx, g); err != nil {
			return err
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()
		httpServer := &http.Server{Handler: rt.handler(baseURL)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("internal HTTP server error")
			}
		}()
		defer httpServer.Close()
	}

	log.WithField("api_url", baseURL).Info("MCP stdio server ready")
	return mcp.NewClient(baseURL, cmd.String("user"), log).Serve()
}

// reachable reports whether an API answers its health check
func reachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runMigrate applies the migrations of a SQL store
func runMigrate(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if s.StoreDriver == config.DriverMemory {
		return fmt.Errorf("migrate needs a sql store, got %q", s.StoreDriver)
	}
	log, err := s.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	st, err := backend.Open(ctx, s, log)
	if err != nil {
		return err
	}
	log.WithField("store", s.StoreDriver).Info("migrations applied")
	return st.Close()
}

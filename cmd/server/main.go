// Command server runs the room relay: a WebSocket endpoint that groups
// clients into named rooms and relays each message to everyone in the
// sender's room.
//
// Settings come from the environment (optionally loaded from a .env file)
// and may be overridden by flags. With --ngrok the same router is also served
// through an ngrok tunnel for quick external access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/server"
)

const (
	appName = "roomrelay"
	version = "1.0.0"
)

func main() {
	loadDotEnv()

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// loadDotEnv copies .env entries into the process environment without
// overriding variables that are already set. It must run before flags are
// parsed so env-backed flags see the values. A missing file is normal
// outside development.
func loadDotEnv(filenames ...string) {
	_ = godotenv.Load(filenames...)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    appName,
		Version: version,
		Usage:   "relay chat messages between WebSocket clients grouped into rooms",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "listen address or port (overrides SERVER_PORT)"},
			&cli.StringFlag{Name: "hostname", Usage: "identity reported to clients (overrides SERVER_HOSTNAME)"},
			&cli.StringSliceFlag{Name: "rooms", Usage: "rooms declared at startup (overrides ROOMS)"},
			&cli.StringSliceFlag{Name: "allowed-origins", Usage: "allowed browser origins, * for any (overrides ALLOWED_ORIGINS)"},
			&cli.IntFlag{Name: "max-message-size", Usage: "maximum inbound frame size in bytes (overrides MAX_MESSAGE_SIZE)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides LOG_LEVEL)"},
			&cli.StringFlag{Name: "env", Usage: "dev or prod; prod logs JSON (overrides APP_ENV)"},
			&cli.BoolFlag{Name: "ngrok", Usage: "also serve through an ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: run,
	}
}

// loadConfig layers flags over the environment over the defaults.
func loadConfig(cmd *cli.Command) server.Config {
	cfg := server.NewConfigFromEnv()

	if cmd.IsSet("port") {
		cfg.Port = cmd.String("port")
	}
	if cmd.IsSet("hostname") {
		cfg.Hostname = cmd.String("hostname")
	}
	if cmd.IsSet("rooms") {
		cfg.Rooms = cmd.StringSlice("rooms")
	}
	if cmd.IsSet("allowed-origins") {
		cfg.AllowedOrigins = cmd.StringSlice("allowed-origins")
	}
	if cmd.IsSet("max-message-size") {
		cfg.MaxMessageSize = cmd.Int("max-message-size")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("env") {
		cfg.Env = cmd.String("env")
	}
	return *cfg
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)

	logger := server.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	promRegistry := metrics.NewRegistry()
	m := metrics.New(promRegistry)

	hub := server.NewHub(cfg, logger, m)
	cfg = hub.Config()
	router := server.NewRouter(hub, metrics.Handler(promRegistry))
	httpServer := server.CreateServer(cfg.Port, router)

	logger.Info("starting room relay",
		"addr", cfg.Port,
		"hostname", cfg.Hostname,
		"rooms", cfg.Rooms,
		"env", cfg.Env)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, logger)
	}()

	var wg sync.WaitGroup
	var tunnelServer *http.Server
	if cmd.Bool("ngrok") {
		tunnelServer = server.CreateServer("", router)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTunnel(ctx, tunnelServer, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), logger)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	stop()
	if shutdownErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	if tunnelServer != nil {
		_ = server.ShutdownServer(tunnelServer, cfg.ShutdownTimeout, logger)
	}
	if hubErr := hub.Shutdown(cfg.ShutdownTimeout); hubErr != nil {
		err = errors.Join(err, fmt.Errorf("hub shutdown: %w", hubErr))
	}
	wg.Wait()

	logger.Info("server stopped")
	return err
}

// runTunnel serves srv's handler through an ngrok endpoint until ctx is
// cancelled or the tunnel fails.
func runTunnel(ctx context.Context, srv *http.Server, authToken, domain string, logger *slog.Logger) {
	if authToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	var opts []ngrokConfig.HTTPEndpointOption
	if domain != "" {
		opts = append(opts, ngrokConfig.WithDomain(domain))
		logger.Info("using custom ngrok domain", "domain", domain)
	}

	tun, err := ngrok.Listen(ctx, ngrokConfig.HTTPEndpoint(opts...), ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", "error", err)
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", "error", err)
		}
	}()

	logger.Info("ngrok tunnel established", "url", tun.URL(), "websocket", tun.URL()+"/ws")
	if err := server.ServeListener(srv, tun, logger); err != nil {
		logger.Error("ngrok server error", "error", err)
	}
}

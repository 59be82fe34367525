// Command server runs an ember server with a set of demo controllers.
//
// Configuration is read from a YAML file (see -config) and EMBER_*
// environment variables:
//
//	EMBER_CONFIG     - Config file path
//	EMBER_PORT       - Listen port (default: 8080)
//	EMBER_AUTH_TYPE  - "none", "apikey" or "jwt" (default: "none")
//	EMBER_DEBUG      - Comma-separated debug categories, or "all"
//	EMBER_LOG_LEVEL  - Log level, including "trace"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/rhuss/ember/pkg/auth"
	"github.com/rhuss/ember/pkg/auth/apikey"
	"github.com/rhuss/ember/pkg/auth/jwt"
	"github.com/rhuss/ember/pkg/auth/noop"
	"github.com/rhuss/ember/pkg/config"
	"github.com/rhuss/ember/pkg/debug"
	"github.com/rhuss/ember/pkg/observability"
	"github.com/rhuss/ember/pkg/routing"
	"github.com/rhuss/ember/pkg/server"
	"github.com/rhuss/ember/pkg/static"
	"github.com/rhuss/ember/pkg/wire"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if path := config.Path(*configPath); path != "" {
		err := config.Watch(ctx, path, func(next *config.Config) {
			debug.Init(next.Logging.Debug, next.Logging.Level, next.Logging.Format)
			slog.Info("config reloaded; logging settings applied, other changes need a restart", "path", path)
		}, func(err error) {
			slog.Warn("config reload failed", "error", err)
		})
		if err != nil {
			logger.Warn("config watching disabled", "error", err)
		}
	}

	return srv.ListenAndServe(ctx)
}

// newServer assembles the dispatcher, its middleware and the server from
// cfg. Background work such as the static watcher stops with ctx.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Server, error) {
	base := demoControllers()
	if cfg.Observability.Metrics.Enabled {
		base = append(base, observability.Exposition(cfg.Observability.Metrics.Path, nil))
	}

	chain, err := authChain(cfg.Auth)
	if err != nil {
		return nil, err
	}

	table, err := routing.Build(base...)
	if err != nil {
		return nil, fmt.Errorf("building routes: %w", err)
	}
	dispatcher := routing.NewDispatcher(table,
		routing.WithMiddleware(auth.Middleware(chain, cfg.Auth.Bypass)),
		routing.WithErrorObserver(observability.CountHandlerError),
		routing.WithProduction(cfg.Server.Production),
		routing.WithDispatcherLogger(logger),
	)

	if err := mountStatic(ctx, cfg.Static, dispatcher, base, logger); err != nil {
		return nil, err
	}

	srv := server.New(dispatcher,
		server.WithConfig(server.Config{
			Addr:            net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			MaxBodyBytes:    cfg.Server.MaxBodyBytes,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			ServerHeader:    wire.DefaultServerHeader,
			InsecureCookies: cfg.Server.InsecureCookies,
			Production:      cfg.Server.Production,
		}),
		server.WithLogger(logger),
		server.WithMiddleware(observability.Metrics()),
		server.WithObserver(observability.Observer{}),
	)

	logger.Info("ember configured",
		"routes", dispatcher.Table().Len(),
		"auth", cfg.Auth.Type,
		"metrics", cfg.Observability.Metrics.Enabled,
		"production", cfg.Server.Production,
		"debug", debug.Categories(),
	)
	return srv, nil
}

// authChain builds the authenticator chain for the configured type.
func authChain(cfg config.AuthConfig) (*auth.Chain, error) {
	switch cfg.Type {
	case "", "none":
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}, nil

	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.Entry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, Scopes: k.Scopes},
			})
		}
		return &auth.Chain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}, nil

	case "jwt":
		var secret []byte
		if cfg.JWT.Secret != "" {
			secret = []byte(cfg.JWT.Secret)
		}
		return &auth.Chain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				Issuer:      cfg.JWT.Issuer,
				Audience:    cfg.JWT.Audience,
				JWKSURL:     cfg.JWT.JWKSURL,
				Secret:      secret,
				UserClaim:   cfg.JWT.UserClaim,
				ScopesClaim: cfg.JWT.ScopesClaim,
			})},
			DefaultDecision: auth.No,
		}, nil
	}
	return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
}

// mountStatic adds the configured static mounts to the dispatcher's table
// and, if requested, keeps them in sync with the file system.
func mountStatic(ctx context.Context, cfg config.StaticConfig, d *routing.Dispatcher, base []routing.Controller, logger *slog.Logger) error {
	if len(cfg.Mounts) == 0 {
		return nil
	}
	mounts := make([]static.Mount, len(cfg.Mounts))
	for i, m := range cfg.Mounts {
		mounts[i] = static.Mount{Prefix: m.Prefix, Dir: m.Dir}
	}

	w := static.NewWatcher(d, mounts, base, logger)
	if _, err := w.Rebuild(); err != nil {
		return fmt.Errorf("mounting static files: %w", err)
	}
	if !cfg.Watch {
		return nil
	}
	return w.Start(ctx)
}

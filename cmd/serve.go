package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"agent-relay/internal/config"
	"agent-relay/internal/credential"
	"agent-relay/internal/identity"
	"agent-relay/internal/provider"
	providerfactory "agent-relay/internal/provider/factory"
	"agent-relay/internal/router"
	"agent-relay/internal/server"
)

const serveUsage = `Usage:
  agent-relay serve --config <path> [--port <port>]

Flags:
  --config string   Path to YAML configuration file (required)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("serve command requires --config <path>")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	slog.SetDefault(newLogger(cfg.Log, os.Stderr))

	store, closeStore, err := openCredentialStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		return err
	}

	rt, err := router.New(registry,
		identity.NewResolver(verifier, cfg.Auth.Strict),
		credential.NewResolver(store),
	)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

func openCredentialStore(cfg config.Config) (credential.Store, func(), error) {
	switch cfg.Credentials.Backend {
	case config.CredentialBackendREST:
		rest := cfg.Credentials.REST
		store, err := credential.NewRESTStore(rest.URL, rest.Table, rest.ServiceKey, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise credential store: %w", err)
		}
		return store, func() {}, nil
	default:
		store, err := credential.OpenBoltStore(cfg.Credentials.Bolt.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open credential store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("close credential store", "err", err)
			}
		}, nil
	}
}

// newVerifier returns nil for auth mode "none", which makes every caller anonymous.
func newVerifier(cfg config.Config) (identity.Verifier, error) {
	auth := cfg.Auth
	switch auth.Mode {
	case config.AuthModeJWT:
		v, err := identity.NewJWTVerifier(auth.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("initialise jwt verifier: %w", err)
		}
		return v, nil
	case config.AuthModeNone:
		slog.Warn("auth.mode is none; every caller is anonymous")
		return nil, nil
	default:
		v, err := identity.NewHTTPVerifier(auth.URL, auth.AnonKey, nil)
		if err != nil {
			return nil, fmt.Errorf("initialise auth verifier: %w", err)
		}
		return v, nil
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

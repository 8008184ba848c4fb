package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/snapetech/stalkertuner/internal/config"
	"github.com/snapetech/stalkertuner/internal/httpclient"
	"github.com/snapetech/stalkertuner/internal/logging"
	"github.com/snapetech/stalkertuner/internal/playlist"
	"github.com/snapetech/stalkertuner/internal/portal"
	"github.com/snapetech/stalkertuner/internal/store"
)

// app is the wired portal stack shared by the commands.
type app struct {
	cfg    *config.Config
	store  store.Store
	portal *portal.Client
	cache  *playlist.Cache
}

// loadConfig seeds the environment from --env-file and --config, then reads it.
// Flag overrides for portal, MAC and log level are applied last.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(cmd.String("env-file")); err != nil {
		return nil, fmt.Errorf("env file: %w", err)
	}
	cfgPath := cmd.String("config")
	if cfgPath == "" {
		cfgPath = os.Getenv("STALKER_TUNER_CONFIG")
	}
	if err := config.LoadYAMLFile(cfgPath); err != nil {
		return nil, err
	}
	cfg := config.Load()
	if v := strings.TrimSpace(cmd.String("portal")); v != "" {
		cfg.PortalURL = v
	}
	if v := strings.TrimSpace(cmd.String("mac")); v != "" {
		cfg.MAC = v
	}
	if v := strings.TrimSpace(cmd.String("log-level")); v != "" {
		cfg.LogLevel = v
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// newApp opens the store and builds the portal client and playlist cache from cfg.
func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	base := cfg.PortalBase()
	if base == "" {
		return nil, fmt.Errorf("need a portal URL: set STALKER_TUNER_PORTAL_URL or --portal (got %q)", cfg.PortalURL)
	}
	st, err := store.Open(ctx, store.Options{
		Kind:        cfg.StoreKind,
		Dir:         cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		RedisAddr:   cfg.RedisAddr,
		RedisDB:     cfg.RedisDB,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreKind, err)
	}

	pc := portal.New(base, cfg.MAC, st)
	pc.HTTP = httpclient.NoRedirect(httpclient.WithTimeout(cfg.Timeout))
	pc.Retry = httpclient.RetryPolicy{Retries: cfg.Retries, Backoff: cfg.RetryBackoff}
	pc.Limiter = httpclient.NewHostLimiter(cfg.RateLimit, 2)
	pc.SessionMaxAge = cfg.SessionMaxAge
	pc.ProfileMaxAge = cfg.ProfileMaxAge

	cache := playlist.NewCache(st)
	cache.Threshold = cfg.RegenHits
	cache.Window = cfg.RegenWindow

	return &app{cfg: cfg, store: st, portal: pc, cache: cache}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

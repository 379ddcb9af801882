package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/marcus/lk/internal/audit"
	"github.com/marcus/lk/internal/cache"
	"github.com/marcus/lk/internal/config"
	"github.com/marcus/lk/internal/form"
	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/output"
	"github.com/marcus/lk/internal/reconcile"
)

// session wires the full stack for one command invocation: config, durable
// cache, hub connection, and the reconciliation engine on top.
type session struct {
	cfg    *config.Config
	store  *cache.Store
	client *hub.Client
	engine *reconcile.Engine
	log    *audit.Log
}

// newSession loads config, opens the slot cache, connects to the hub, and
// builds an engine. Callers must Close it.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(getBaseDir())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.ResolveCachePath(getBaseDir()))
	if err != nil {
		return nil, fmt.Errorf("open slot cache: %w", err)
	}

	records, err := store.Load(cfg.EntityID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load cached slots: %w", err)
	}

	client, err := hub.Dial(ctx, cfg.HubURL, cfg.Token)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connect to hub: %w", err)
	}

	log := audit.New(0)
	engine := reconcile.New(client, form.New(cfg.EntityID, store, records), log)
	engine.SetNotify(func(msg string) {
		if !jsonOut {
			output.Info("%s", msg)
		}
	})

	return &session{cfg: cfg, store: store, client: client, engine: engine, log: log}, nil
}

func (s *session) Close() {
	s.client.Close()
	s.store.Close()
}

// withSession runs fn with a connected session and interrupt handling.
func withSession(fn func(ctx context.Context, s *session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

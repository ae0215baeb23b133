package cmd

import (
	"fmt"

	"github.com/longkey1/prepc/internal/openai"
	"github.com/longkey1/prepc/internal/prepc/analytics"
	"github.com/longkey1/prepc/internal/prepc/catalog"
	"github.com/longkey1/prepc/internal/prepc/config"
	"github.com/longkey1/prepc/internal/prepc/session"
	"github.com/longkey1/prepc/internal/prepc/store"
	"github.com/rs/zerolog/log"
)

// app holds everything a command needs, opened from the loaded configuration
type app struct {
	cfg     *config.Config
	kv      store.KV
	repo    *store.Repository
	tracker *analytics.Tracker
	bus     *analytics.Bus
	catalog *catalog.Catalog
	client  *openai.Client
	ctrl    *session.Controller
}

// openApp loads configuration and state. observers are attached to the
// session controller.
func openApp(observers ...func(session.Update)) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	kv, err := store.Open(cfg.StorageDriver, cfg.StorageLocation())
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	log.Debug().Str("driver", cfg.StorageDriver).Str("path", cfg.StorageLocation()).Msg("Opened storage")

	cat, err := catalog.Load(cfg.PromptDirs)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	repo := store.NewRepository(kv)
	tracker := analytics.NewTracker(repo)
	bus, err := analytics.NewBus(tracker, log.Logger)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("starting analytics: %w", err)
	}

	client := openai.NewClient(cfg.OpenAIBaseURL)
	settings := config.ResolveSettings(repo.LoadSettings(), cfg.EnvDefaults())

	options := []session.Option{
		session.WithStore(repo),
		session.WithRecorder(bus),
		session.WithSettings(settings),
	}
	for _, o := range observers {
		options = append(options, session.WithObserver(o))
	}
	ctrl := session.New(repo.LoadConversations(), client, options...)

	bus.Record(analytics.EventAppLoaded, nil)

	return &app{
		cfg:     cfg,
		kv:      kv,
		repo:    repo,
		tracker: tracker,
		bus:     bus,
		catalog: cat,
		client:  client,
		ctrl:    ctrl,
	}, nil
}

// Close flushes analytics and releases the storage
func (a *app) Close() {
	if err := a.bus.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close analytics bus")
	}
	if err := a.kv.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close storage")
	}
}

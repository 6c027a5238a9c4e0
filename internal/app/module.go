// Package app composes the client: configuration, per-account backends,
// caches, timeline managers, outbox senders and the TUI, wired together
// with fx and torn down in reverse on shutdown.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/account"
	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bluesky"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/config"
	"github.com/fastsm/fastsm/internal/lock"
	"github.com/fastsm/fastsm/internal/logging"
	"github.com/fastsm/fastsm/internal/mastodon"
	"github.com/fastsm/fastsm/internal/outbox"
	"github.com/fastsm/fastsm/internal/paths"
	"github.com/fastsm/fastsm/internal/speech"
	"github.com/fastsm/fastsm/internal/timeline"
	"github.com/fastsm/fastsm/internal/tui"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	ConfigPath string // empty = default ~/.fastsm/config.toml
}

// Account bundles one configured account's runtime pieces.
type Account struct {
	Name    string
	Backend backend.Account
	Cache   *cache.TimelineCache
	Manager *timeline.Manager
	Sender  *outbox.Sender
	Machine *account.Machine
	Stream  *mastodon.Stream // nil for platforms that poll only
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideSpeech,
			provideAccounts,
			providePoller,
			provideUI,
			provideNarrator,
		),
		fx.Invoke(registerLifecycle),
	)
}

// speechKit groups the audio collaborators shared by every account.
type speechKit struct {
	Speaker  speech.Speaker
	Player   speech.Player
	Reporter speech.Reporter
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath()
	}
	return config.Load(path)
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(filepath.Join(paths.BaseDir(), "fastsm.log"), "fastsm")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(paths.BaseDir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("dir", paths.BaseDir()))
	return l, nil
}

func provideSpeech(cfg *config.Config, logger *zap.Logger) speechKit {
	speaker := speech.NewLogSpeaker(logger)
	player := speech.NewLogPlayer(logger)
	return speechKit{
		Speaker:  speaker,
		Player:   player,
		Reporter: speech.NewReporter(speaker, player, logger, cfg.QuietErrors),
	}
}

func provideAccounts(cfg *config.Config, b *bus.Bus, kit speechKit, logger *zap.Logger) ([]*Account, error) {
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured; add one to %s", paths.ConfigPath())
	}

	settings := timeline.Settings{
		Reversed:     cfg.Reversed,
		PageSize:     cfg.PageSize,
		MaxPages:     cfg.MaxPages,
		CacheLimit:   cfg.CacheLimit,
		SyncPosition: cfg.SyncPosition,
		Template:     cfg.Template,
	}

	accounts := make([]*Account, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		if err := paths.ValidateAccountName(ac.Name); err != nil {
			return nil, err
		}
		if err := paths.EnsureAccountDir(ac.Name); err != nil {
			return nil, err
		}

		var be backend.Account
		var stream *mastodon.Stream
		switch ac.Platform {
		case "mastodon":
			client := mastodon.New(ac.InstanceURL, ac.AccessToken)
			stream = mastodon.NewStream(ac.Name, client, b, logger)
			be = client
		case "bluesky":
			be = bluesky.New(ac.Handle, ac.AppPassword)
		default:
			return nil, fmt.Errorf("account %q: unknown platform %q", ac.Name, ac.Platform)
		}

		tc, err := cache.New(paths.CacheDBPath(ac.Name), logger)
		if err != nil {
			return nil, fmt.Errorf("account %q: open cache: %w", ac.Name, err)
		}

		deps := timeline.Deps{
			Bus:      b,
			Cache:    tc,
			Users:    cache.NewUserCache(),
			Speaker:  kit.Speaker,
			Player:   kit.Player,
			Reporter: kit.Reporter,
			Logger:   logger.With(zap.String("account", ac.Name)),
		}
		mgr, err := timeline.NewManager(be, ac.Name, paths.PrefsPath(ac.Name), settings, deps)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", ac.Name, err)
		}

		accounts = append(accounts, &Account{
			Name:    ac.Name,
			Backend: be,
			Cache:   tc,
			Manager: mgr,
			Sender:  outbox.NewSender(tc.DB(), ac.Name, be, b, logger),
			Machine: account.NewMachine(ac.Name, b),
			Stream:  stream,
		})
	}
	return accounts, nil
}

func providePoller(accounts []*Account, cfg *config.Config, logger *zap.Logger) *timeline.Poller {
	managers := make([]*timeline.Manager, len(accounts))
	for i, a := range accounts {
		managers[i] = a.Manager
	}
	return timeline.NewPoller(managers, time.Duration(cfg.UpdateMinutes)*time.Minute, logger)
}

func provideUI(accounts []*Account, b *bus.Bus, kit speechKit, logger *zap.Logger) *tui.App {
	managers := make([]*timeline.Manager, len(accounts))
	senders := make(map[string]*outbox.Sender, len(accounts))
	for i, a := range accounts {
		managers[i] = a.Manager
		senders[a.Name] = a.Sender
	}
	return tui.NewApp(managers, senders, kit.Speaker, b, logger)
}

func provideNarrator(ui *tui.App, b *bus.Bus, kit speechKit) *speech.Narrator {
	return speech.NewNarrator(b, kit.Speaker, ui.Post)
}

func registerLifecycle(
	lc fx.Lifecycle,
	accounts []*Account,
	poller *timeline.Poller,
	narrator *speech.Narrator,
	b *bus.Bus,
	lk *lock.Lock,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			narrator.Start()
			for _, a := range accounts {
				go startAccount(runCtx, a, b, logger)
			}
			poller.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			poller.Stop()
			narrator.Stop()
			for _, a := range accounts {
				if a.Stream != nil {
					a.Stream.Stop()
				}
				a.Sender.Stop()
				a.Manager.Stop()
				a.Manager.SaveAll()
				if err := a.Cache.Close(); err != nil {
					logger.Warn("closing cache", zap.String("account", a.Name), zap.Error(err))
				}
			}
			if err := lk.Release(); err != nil {
				logger.Warn("releasing profile lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

// startAccount drives one account from verification to streaming. Timelines
// are hydrated from cache before the network is touched, so a slow or dead
// connection still yields a usable (stale) view.
func startAccount(ctx context.Context, a *Account, b *bus.Bus, logger *zap.Logger) {
	log := logger.With(zap.String("account", a.Name))

	a.Manager.HydrateAll()

	_ = a.Machine.Transition(account.Verifying)
	if v, ok := a.Backend.(interface{ Verify(context.Context) error }); ok {
		if err := v.Verify(ctx); err != nil {
			log.Error("credential verification failed", zap.Error(err))
			_ = a.Machine.Transition(account.AuthRequired)
			return
		}
	}
	_ = a.Machine.Transition(account.Loading)

	// The gate opens once every open timeline fired initial-complete;
	// streaming stays off until then so pushed items never race the
	// initial loads.
	open := len(a.Manager.Timelines())
	gate := account.NewGate(open)
	// Exact-kind subscription: the loaded-event bursts of a busy startup
	// must not be able to crowd a completion out of the buffer.
	events, unsubscribe := b.Subscribe(bus.KindTimelineInitialComplete, open+4)
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				if evt.Account != a.Name {
					continue
				}
				if gate.Complete() {
					return
				}
			}
		}
	}()

	a.Manager.Start(ctx)
	a.Manager.LoadAll(ctx, false)
	a.Sender.Start(ctx)

	select {
	case <-ctx.Done():
		return
	case <-gate.Done():
	}

	if err := a.Machine.Transition(account.Ready); err == nil {
		log.Info("account ready")
	}
	if a.Stream != nil {
		a.Stream.Start(ctx)
	}
}

package app

import (
	"context"
	"errors"
	"io/fs"

	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/bus"
	"github.com/pvieira/emchat/internal/chatlist"
	"github.com/pvieira/emchat/internal/config"
	"github.com/pvieira/emchat/internal/lock"
	"github.com/pvieira/emchat/internal/logging"
	"github.com/pvieira/emchat/internal/outbox"
	"github.com/pvieira/emchat/internal/presence"
	"github.com/pvieira/emchat/internal/push"
	"github.com/pvieira/emchat/internal/readstate"
	"github.com/pvieira/emchat/internal/session"
	"github.com/pvieira/emchat/internal/status"
	"github.com/pvieira/emchat/internal/store"
	"github.com/pvieira/emchat/internal/tui"
	"github.com/pvieira/emchat/internal/window"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module composes the full client: profile storage, backend client, push
// channel, the reconciliation components, and the TUI shell.
func Module(p Params) fx.Option {
	return fx.Module("emchat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideIdentity,
			provideAPIClient,
			provideChannel,
			providePresence,
			provideReadSync,
			provideWindows,
			provideChats,
			provideSender,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		// First run: write a skeleton so the user has something to edit.
		cfg = &config.Config{ServerURL: "http://localhost:8080"}
		if err := config.Save(session.ConfigPath(), cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.LockPath(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideIdentity loads stored credentials. A missing credentials file is
// not an error; it routes the TUI to the login form.
func provideIdentity(p Params, logger *zap.Logger) *session.Identity {
	id, err := session.LoadIdentity(p.Profile)
	if err != nil {
		logger.Info("no stored credentials, login required", zap.Error(err))
		return nil
	}
	return id
}

func provideAPIClient(cfg *config.Config, id *session.Identity, logger *zap.Logger) *api.Client {
	token := ""
	if id != nil {
		token = id.Token
	}
	return api.NewClient(cfg.ServerURL, token, logger)
}

func provideChannel(cfg *config.Config, id *session.Identity, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*push.Channel, error) {
	pushURL, err := cfg.ResolvePushURL()
	if err != nil {
		return nil, err
	}
	token := ""
	if id != nil {
		token = id.Token
	}
	return push.NewChannel(pushURL, token, b, machine, logger), nil
}

func providePresence(client *api.Client, b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(client, b, logger, presence.DefaultGrace)
}

func provideReadSync(client *api.Client, logger *zap.Logger) *readstate.Synchronizer {
	return readstate.New(client, logger)
}

func provideWindows(client *api.Client, id *session.Identity, b *bus.Bus, logger *zap.Logger) *window.Cache {
	userID := ""
	if id != nil {
		userID = id.UserID
	}
	return window.NewCache(client, b, logger, userID)
}

func provideChats(client *api.Client, reads *readstate.Synchronizer, windows *window.Cache, db *store.DB, id *session.Identity, b *bus.Bus, logger *zap.Logger) *chatlist.Aggregator {
	userID := ""
	if id != nil {
		userID = id.UserID
	}
	return chatlist.NewAggregator(client, reads, windows, db, b, logger, userID)
}

func provideSender(db *store.DB, client *api.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, b, logger)
}

func provideApp(p Params, client *api.Client, chats *chatlist.Aggregator, windows *window.Cache, tracker *presence.Tracker, machine *status.Machine, channel *push.Channel, sender *outbox.Sender, db *store.DB, b *bus.Bus, id *session.Identity, logger *zap.Logger) *tui.App {
	return tui.NewApp(tui.Deps{
		API:      client,
		Chats:    chats,
		Windows:  windows,
		Presence: tracker,
		Machine:  machine,
		Channel:  channel,
		Sender:   sender,
		DB:       db,
		Bus:      b,
		Logger:   logger,
		Profile:  p.Profile,
		Identity: id,
	})
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, app *tui.App, channel *push.Channel, tracker *presence.Tracker, chats *chatlist.Aggregator, sender *outbox.Sender, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The TUI owns the terminal; run it in the background and shut
			// the process down when it exits. Session components are
			// started by the app once credentials are in place.
			go func() {
				if err := app.Run(); err != nil {
					logger.Error("tui exited", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			app.Stop()
			sender.Stop()
			chats.Stop()
			tracker.Stop()
			channel.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kincore/internal/api"
	"kincore/internal/cache"
	"kincore/internal/config"
	"kincore/internal/events"
	"kincore/internal/finance"
	"kincore/internal/levels"
	"kincore/internal/log"
	"kincore/internal/membership"
	"kincore/internal/session"
	"kincore/internal/storage"
)

const (
	amqpConnectAttempts = 3
	cacheSweepInterval  = time.Minute
)

// App is the single service graph every command drives.
type App struct {
	Config       *config.Config
	Logger       *log.Logger
	Store        storage.Store
	Client       *api.Client
	Session      *session.Session
	Auth         *session.Authenticator
	Levels       *levels.Provider
	Membership   *membership.Workflows
	Finance      *finance.Service
	Holdings     *finance.Holdings
	Dictionaries *finance.Dictionaries
	Caches       *cache.Manager

	publisher events.Publisher
	amqp      *events.AMQPPublisher
}

// NewApp opens the store, restores the persisted session and wires the
// services around it. Close releases what NewApp acquired.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger, Store: store, publisher: events.Nop{}}

	if cfg.AMQPURL != "" {
		pub := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err := pub.Connect(ctx, amqpConnectAttempts); err != nil {
			// Events are optional; the publisher keeps retrying on each Publish.
			logger.WarnContext(ctx, "AMQP unavailable at startup", log.FieldError, err)
		}
		app.amqp = pub
		app.publisher = pub
	}

	var sess *session.Session
	app.Client = api.New(cfg.APIURL,
		func() string { return sess.Token() },
		api.WithTimeout(cfg.APITimeout),
		api.WithLogger(logger),
	)

	sess = session.New(store, app.Client, logger)
	if err := sess.Restore(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	app.Session = sess
	app.Auth = session.NewAuthenticator(sess, app.Client, app.publisher, logger)

	app.Levels = levels.NewProvider(sess, app.Client, store, app.publisher, logger)
	sess.OnChange(app.Levels.HandleSessionChange)

	app.Membership = membership.New(app.Client, app.Levels, app.publisher, logger)

	dictCache := finance.NewDictionaryCache(cfg.DictionaryTTL)
	app.Dictionaries = finance.NewDictionaries(app.Client, dictCache, logger)
	app.Finance = finance.NewService(app.Client, app.Dictionaries, sess, logger)
	app.Holdings = finance.NewHoldings(app.Client, app.Dictionaries, sess, logger)

	app.Caches = cache.NewManager(logger)
	app.Caches.Register(dictCache)

	return app, nil
}

// StartBackground runs the cache sweep until ctx ends.
func (a *App) StartBackground(ctx context.Context) {
	a.Caches.Start(ctx, cacheSweepInterval)
}

// Ready reports whether the store answers.
func (a *App) Ready(ctx context.Context) error {
	_, _, err := a.Store.Get(ctx, storage.KeyToken)
	return err
}

func (a *App) Close() error {
	var errs []error
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP publisher: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Package app wires the client together with fx: providers for every
// component and a lifecycle hook for the background workers.
package app

import (
	"context"
	"errors"
	"os"

	"github.com/matheus3301/schoolmsg/internal/attachment"
	"github.com/matheus3301/schoolmsg/internal/backend"
	"github.com/matheus3301/schoolmsg/internal/bus"
	"github.com/matheus3301/schoolmsg/internal/config"
	"github.com/matheus3301/schoolmsg/internal/lock"
	"github.com/matheus3301/schoolmsg/internal/logging"
	"github.com/matheus3301/schoolmsg/internal/messaging"
	"github.com/matheus3301/schoolmsg/internal/notify"
	"github.com/matheus3301/schoolmsg/internal/objstore"
	"github.com/matheus3301/schoolmsg/internal/presence"
	"github.com/matheus3301/schoolmsg/internal/profile"
	"github.com/matheus3301/schoolmsg/internal/realtime"
	"github.com/matheus3301/schoolmsg/internal/store"
	"github.com/matheus3301/schoolmsg/internal/template"
	"github.com/matheus3301/schoolmsg/internal/tui"
	"github.com/matheus3301/schoolmsg/internal/tui/ui"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved profile and configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
}

// Module returns the fx module for the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("schoolmsg",
		fx.Supply(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideBackend,
			provideRedis,
			provideTypingEmitter,
			provideMessaging,
			provideFlash,
			providePlatform,
			provideEngine,
			provideTemplates,
			provideValidator,
			provideTransport,
			provideUploader,
			provideListener,
			provideSubscriber,
			provideUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Config.Log.Level, true)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.Profile, p.Config.User.ID)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.Int("pid", l.Holder().PID))
	return l, nil
}

// provideStore takes the lock so the database is never opened by two clients.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		if errors.Is(err, store.ErrDirtySchema) {
			logger.Error("settings database needs repair", zap.String("path", dbPath), zap.Error(err))
		}
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(p Params, logger *zap.Logger) (*backend.Client, error) {
	cfg := p.Config.Backend
	c, err := backend.New(backend.Options{
		Addr:    cfg.Addr,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
	}, logger.Named("backend"))
	if err != nil {
		return nil, err
	}
	logger.Info("backend client ready", zap.String("addr", cfg.Addr))
	return c, nil
}

// provideRedis returns nil when no redis address is configured.
func provideRedis(p Params, logger *zap.Logger) *goredis.Client {
	cfg := p.Config.Redis
	if cfg.Addr == "" {
		logger.Info("redis not configured, typing goes through the backend")
		return nil
	}
	return presence.NewClient(presence.Config{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func provideTypingEmitter(rdb *goredis.Client, client *backend.Client) messaging.TypingEmitter {
	if rdb == nil {
		return client
	}
	return presence.NewRedisEmitter(rdb)
}

func provideMessaging(p Params, client *backend.Client, typing messaging.TypingEmitter, b *bus.Bus, logger *zap.Logger) *messaging.Store {
	u := p.Config.User
	self := messaging.Participant{ID: u.ID, Name: u.Name, Role: messaging.Role(u.Role)}
	return messaging.NewStore(client, typing, b, self, logger.Named("messaging"))
}

func provideFlash() *ui.FlashModel {
	return ui.NewFlashModel()
}

func providePlatform(p Params, flash *ui.FlashModel) *tui.Platform {
	n := p.Config.Notifications
	return tui.NewPlatform(n.PermissionGranted, n.Bell, flash, os.Stdout)
}

func provideEngine(platform *tui.Platform, db *store.DB, ms *messaging.Store, b *bus.Bus, logger *zap.Logger) *notify.Engine {
	return notify.NewEngine(platform, db, ms, b, logger.Named("notify"))
}

func provideTemplates(client *backend.Client, logger *zap.Logger) *template.Library {
	return template.NewLibrary(client, logger.Named("template"))
}

func provideValidator(p Params) *attachment.Validator {
	a := p.Config.Attachments
	return attachment.NewValidator(attachment.Policy{MaxBytes: a.MaxBytes, AllowedTypes: a.AllowedTypes})
}

// provideTransport uploads straight to S3 when a bucket is configured and
// through the backend otherwise.
func provideTransport(p Params, client *backend.Client, logger *zap.Logger) (attachment.Transport, error) {
	cfg := p.Config.S3
	if cfg.Bucket == "" {
		return client, nil
	}
	s3c, err := objstore.NewClient(context.Background(), objstore.Config{
		Region:     cfg.Region,
		Bucket:     cfg.Bucket,
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		Endpoint:   cfg.Endpoint,
		PublicBase: cfg.PublicBase,
		KeyPrefix:  cfg.KeyPrefix,
	}, logger.Named("s3"))
	if err != nil {
		return nil, err
	}
	logger.Info("attachments go to s3", zap.String("bucket", cfg.Bucket))
	return s3c, nil
}

func provideUploader(t attachment.Transport, v *attachment.Validator, logger *zap.Logger) *attachment.Uploader {
	return attachment.NewUploader(t, v, logger.Named("upload"))
}

// provideListener returns nil when no realtime URL is configured.
func provideListener(p Params, ms *messaging.Store, logger *zap.Logger) *realtime.Listener {
	cfg := p.Config.Backend
	if cfg.RealtimeURL == "" {
		return nil
	}
	return realtime.New(cfg.RealtimeURL, cfg.Token, ms, logger.Named("realtime"))
}

// provideSubscriber returns nil without redis.
func provideSubscriber(rdb *goredis.Client, ms *messaging.Store, logger *zap.Logger) *presence.Subscriber {
	if rdb == nil {
		return nil
	}
	return presence.NewSubscriber(rdb, ms, logger.Named("presence"))
}

type uiParams struct {
	fx.In

	Params    Params
	Store     *messaging.Store
	Engine    *notify.Engine
	Templates *template.Library
	Validator *attachment.Validator
	Uploader  *attachment.Uploader
	DB        *store.DB
	Listener  *realtime.Listener
	Platform  *tui.Platform
	Flash     *ui.FlashModel
	Logger    *zap.Logger
}

func provideUI(in uiParams) *tui.App {
	opts := tui.Options{
		Profile:   in.Params.Profile,
		Store:     in.Store,
		Engine:    in.Engine,
		Templates: in.Templates,
		Validator: in.Validator,
		Uploader:  in.Uploader,
		Drafts:    in.DB,
		Platform:  in.Platform,
		Flash:     in.Flash,
		Logger:    in.Logger.Named("tui"),
	}
	// A nil *Listener in the interface would not compare equal to nil.
	if in.Listener != nil {
		opts.Link = in.Listener
	}
	return tui.NewApp(opts)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Lock       *lock.Lock
	DB         *store.DB
	Client     *backend.Client
	Redis      *goredis.Client
	Engine     *notify.Engine
	Listener   *realtime.Listener
	Subscriber *presence.Subscriber
	UI         *tui.App
	Logger     *zap.Logger
}

func registerLifecycle(in lifecycleParams) {
	logger := in.Logger
	var stopPresence context.CancelFunc
	presenceDone := make(chan struct{})

	in.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			in.Engine.Start(context.Background())

			if in.Listener != nil {
				in.Listener.Start(context.Background())
			}

			if in.Subscriber != nil {
				var ctx context.Context
				ctx, stopPresence = context.WithCancel(context.Background())
				go func() {
					defer close(presenceDone)
					if err := in.Subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("presence subscriber stopped", zap.Error(err))
					}
				}()
			}

			logger.Info("client started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			in.UI.Stop()
			if stopPresence != nil {
				stopPresence()
				select {
				case <-presenceDone:
				case <-ctx.Done():
				}
			}
			if in.Listener != nil {
				in.Listener.Stop()
			}
			in.Engine.Stop()

			if err := in.Client.Close(); err != nil {
				logger.Warn("error closing backend client", zap.Error(err))
			}
			if in.Redis != nil {
				if err := in.Redis.Close(); err != nil {
					logger.Warn("error closing redis client", zap.Error(err))
				}
			}
			if err := in.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := in.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

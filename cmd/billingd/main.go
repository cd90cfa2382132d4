package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/handler"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/docstore"
	"github.com/dmitrymomot/billingkit/pkg/eventstore"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/lock"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/processor"
	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/redis"

	"github.com/google/uuid"
)

type appConfig struct {
	Env          string `env:"APP_ENV" envDefault:"development"`
	RedisLock    bool   `env:"REDIS_LOCK_ENABLED" envDefault:"false"`
	DocstoreS3   bool   `env:"DOCSTORE_S3_ENABLED" envDefault:"false"`
	EmailEnabled bool   `env:"EMAIL_NOTIFICATIONS_ENABLED" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("billingd exited", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, "billingd"))
	logger.SetAsDefault(log)

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	events := eventstore.NewPostgresStore(pool)
	ledgerStore := ledger.NewPostgresStore(pool)

	var paddleCfg provider.PaddleConfig
	config.MustLoad(&paddleCfg)
	paddle, err := provider.NewPaddle(paddleCfg)
	if err != nil {
		return fmt.Errorf("paddle: %w", err)
	}

	var internalCfg provider.InternalConfig
	config.MustLoad(&internalCfg)
	internal, err := provider.NewInternal(internalCfg)
	if err != nil {
		return fmt.Errorf("internal provider: %w", err)
	}

	procOpts := []processor.Option{
		processor.WithProviders(paddle, internal),
		processor.WithLogger(log),
		processor.WithNotifier(buildNotifier(appCfg, ledgerStore, log)),
	}

	readyChecks := []func(context.Context) error{pg.Healthcheck(pool)}

	if appCfg.RedisLock {
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		procOpts = append(procOpts, processor.WithTenantLock(lock.NewRedisLocker(client)))
		readyChecks = append(readyChecks, redis.Healthcheck(client))
	}

	if appCfg.DocstoreS3 {
		var s3Cfg docstore.S3Config
		config.MustLoad(&s3Cfg)
		docs, err := docstore.NewS3Store(ctx, s3Cfg)
		if err != nil {
			return fmt.Errorf("docstore: %w", err)
		}
		procOpts = append(procOpts, processor.WithDocStore(docs))
	}

	proc := processor.New(events, ledgerStore, procOpts...)
	sched := processor.NewScheduler(events, ledgerStore, processor.WithSchedulerLogger(log))

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	h := handler.New(proc,
		handler.WithLogger(log),
		handler.WithReadyChecks(readyChecks...),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, h) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildNotifier selects the outbound gateway. Email delivery via Postmark is
// opt-in; without it lifecycle notifications go to the structured log, which
// keeps development environments free of external sends.
func buildNotifier(cfg appConfig, store ledger.Store, log *slog.Logger) notifier.Gateway {
	if !cfg.EmailEnabled {
		return notifier.Log(log)
	}

	var emailCfg notifier.EmailConfig
	config.MustLoad(&emailCfg)

	email, err := notifier.NewEmailGateway(emailCfg, billingEmailResolver(store))
	if err != nil {
		log.Warn("email gateway disabled", logger.Error(err))
		return notifier.Log(log)
	}
	return notifier.NewMulti().Register(notifier.ChannelEmail, email)
}

// billingEmailResolver looks the tenant's billing address up through the
// ledger so the gateway never needs its own database access.
func billingEmailResolver(store ledger.Store) notifier.RecipientResolver {
	return func(ctx context.Context, tenantID uuid.UUID) (string, error) {
		var addr string
		err := store.WithinTenant(ctx, tenantID, func(ctx context.Context, tx ledger.Tx) error {
			t, err := tx.Tenant(ctx)
			if err != nil {
				return err
			}
			addr = t.BillingEmail
			return nil
		})
		return addr, err
	}
}

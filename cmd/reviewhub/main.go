package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	billingapi "github.com/dmitrymomot/reviewhub/modules/billing"
	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/config"
	"github.com/dmitrymomot/reviewhub/pkg/email"
	"github.com/dmitrymomot/reviewhub/pkg/environment"
	"github.com/dmitrymomot/reviewhub/pkg/httpserver"
	"github.com/dmitrymomot/reviewhub/pkg/logger"
	"github.com/dmitrymomot/reviewhub/pkg/mongo"
	"github.com/dmitrymomot/reviewhub/pkg/pg"
	"github.com/dmitrymomot/reviewhub/pkg/ratelimiter"
	"github.com/dmitrymomot/reviewhub/pkg/redis"
	"github.com/dmitrymomot/reviewhub/pkg/requestid"
	"github.com/dmitrymomot/reviewhub/pkg/scheduler"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
	"github.com/dmitrymomot/reviewhub/pkg/subscription/mongostore"
	"github.com/dmitrymomot/reviewhub/pkg/subscription/pgstore"
)

const (
	trialReminderTask = "trial-ending-reminders"
	probeTimeout      = 2 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("reviewhub stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.Env)
	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithConfig(cfg.Log),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	db, err := mongo.Open(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Client().Disconnect(context.WithoutCancel(ctx)); err != nil {
			log.Error("mongo disconnect failed", logger.Error(err))
		}
	}()
	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
		return err
	}
	checks := []httpserver.Check{{Name: "mongo", Fn: mongo.Probe(db.Client(), probeTimeout)}}

	companies := mongostore.NewCompanyRepository(db)
	var payments subscription.PaymentRepository = mongostore.NewPaymentRepository(db)

	if cfg.LedgerBackend == ledgerPostgres {
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
			return err
		}
		payments = pgstore.NewPaymentRepository(pool)
		checks = append(checks, httpserver.Check{Name: "postgres", Fn: pg.Probe(pool, probeTimeout)})
	}

	var (
		priceCache   billing.PriceCache = billing.NewMemoryPriceCache()
		limiterStore ratelimiter.Store
	)
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		priceCache = billing.NewRedisPriceCache(client, cfg.Name+":price:", cfg.Billing.PriceCacheTTL)
		limiterStore = ratelimiter.NewRedisStore(client)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Probe(client, probeTimeout)})
	} else {
		mem := ratelimiter.NewMemoryStore()
		defer mem.Close()
		limiterStore = mem
	}

	provider, err := newProvider(cfg.Billing, priceCache, log)
	if err != nil {
		return err
	}

	opts := []subscription.Option{
		subscription.WithConfig(cfg.Subscription),
		subscription.WithLogger(log),
	}
	service := subscription.NewService(companies, payments, provider, cfg.Billing.Price, opts...)
	ledger := subscription.NewLedger(companies, payments, provider, opts...)
	reconciler := subscription.NewReconciler(companies, provider, service, ledger, opts...)

	sender, err := email.NewSender(cfg.Email, env)
	if err != nil {
		return err
	}
	var reminderLimiter ratelimiter.RateLimiter
	if cfg.ReminderRatePerMinute > 0 {
		if reminderLimiter, err = ratelimiter.NewBucket(limiterStore, ratelimiter.PerMinute(cfg.ReminderRatePerMinute)); err != nil {
			return err
		}
	}
	reminder := subscription.NewReminder(companies, subscription.NewEmailMailer(sender), reminderLimiter, opts...)

	jobs := scheduler.New(scheduler.WithLogger(log), scheduler.WithTaskTimeout(cfg.ReminderTimeout))
	if err := jobs.AddTask(trialReminderTask, cfg.ReminderSchedule, func(ctx context.Context) error {
		_, err := reminder.RunTrialReminders(ctx)
		return err
	}); err != nil {
		return err
	}

	handlerOpts := []billingapi.Option{billingapi.WithLogger(log)}
	if cfg.APIRatePerMinute > 0 {
		apiLimiter, err := ratelimiter.NewBucket(limiterStore, ratelimiter.Config{
			Capacity:       cfg.APIRatePerMinute,
			RefillRate:     cfg.APIRatePerMinute,
			RefillInterval: time.Minute,
		})
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, billingapi.WithRateLimiter(apiLimiter))
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, cfg.HTTP.ReadinessTimeout, checks...))
	r.Mount("/", billingapi.NewHandler(service, reconciler, userFromHeaders, handlerOpts...).Handle())

	srv := httpserver.New(cfg.HTTP, r, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return jobs.Run(ctx) })

	log.InfoContext(ctx, "reviewhub started",
		logger.Environment(string(env)),
		slog.String("ledger", cfg.LedgerBackend),
		slog.Bool("redis", cfg.Redis.Enabled()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newProvider builds a gateway for every configured Stripe account.
func newProvider(cfg billing.Config, cache billing.PriceCache, log *slog.Logger) (*billing.Provider, error) {
	opts := []billing.StripeOption{billing.WithPriceCache(cache), billing.WithStripeLogger(log)}

	var live, test billing.Gateway
	if cfg.LiveAPIKey != "" {
		gw, err := billing.NewStripeGateway(billing.Live, cfg.Live(), opts...)
		if err != nil {
			return nil, err
		}
		live = gw
	}
	if cfg.TestAPIKey != "" {
		gw, err := billing.NewStripeGateway(billing.Test, cfg.Test(), opts...)
		if err != nil {
			return nil, err
		}
		test = gw
	}
	return billing.NewProvider(live, test, billing.WithProviderLogger(log)), nil
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/vidinfra/subflow/internal/api"
	v1 "github.com/vidinfra/subflow/internal/api/v1"
	"github.com/vidinfra/subflow/internal/cache"
	"github.com/vidinfra/subflow/internal/config"
	"github.com/vidinfra/subflow/internal/domain/customer"
	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/proration"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/postgres"
	"github.com/vidinfra/subflow/internal/publisher"
	"github.com/vidinfra/subflow/internal/pubsub"
	pubsubmemory "github.com/vidinfra/subflow/internal/pubsub/memory"
	"github.com/vidinfra/subflow/internal/repository"
	"github.com/vidinfra/subflow/internal/scheduler"
	"github.com/vidinfra/subflow/internal/service"
	"github.com/vidinfra/subflow/internal/types"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			newLogger,

			postgres.NewClient,
			repository.NewOrderRepository,
			repository.NewCustomerRepository,
			repository.NewScheduleRepository,
			subscription.NewStore,

			cache.NewInMemoryCache,
			newPubSub,
			newEventPublisher,

			scheduler.NewDispatcher,
			newGuard,
			newRunner,

			newServiceParams,
			service.NewStatusService,
			service.NewRenewalService,
			newPaymentService,
			service.NewSubscriptionService,
			service.NewTotalsService,
			newSwitchService,
			newHookService,
			newHostService,

			v1.NewHealthHandler,
			newSubscriptionHandler,
			newPaymentHandler,
			newTotalsHandler,
			newSwitchHandler,
			newHostHandler,
			newHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			registerHooks,
			startConsumer,
			startServer,
		),
	)
	app.Run()
}

func newLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.NewLogger(cfg.Logging.Level)
}

func newPubSub(log *logger.Logger) pubsub.PubSub {
	return pubsubmemory.NewPubSub(log)
}

func newEventPublisher(ps pubsub.PubSub, cfg *config.Configuration, log *logger.Logger) publisher.EventPublisher {
	return publisher.NewEventPublisher(ps, cfg.Event.Topic, log)
}

func newGuard(c cache.Cache, subs *subscription.Store, dispatcher *scheduler.Dispatcher, log *logger.Logger) *scheduler.Guard {
	return scheduler.NewGuard(c, subs, dispatcher, log)
}

func newRunner(cfg *config.Configuration, repo schedule.Repository, log *logger.Logger) *scheduler.Runner {
	return scheduler.NewRunner(scheduler.RunnerConfig{
		PollInterval: cfg.Scheduler.PollInterval,
		BatchSize:    cfg.Scheduler.BatchSize,
		Concurrency:  cfg.Scheduler.Concurrency,
	}, repo, log)
}

func newServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	orderRepo order.Repository,
	customerRepo customer.Repository,
	scheduleRepo schedule.Repository,
	subStore *subscription.Store,
	dispatcher *scheduler.Dispatcher,
	guard *scheduler.Guard,
	eventPublisher publisher.EventPublisher,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:         log,
		Config:         cfg,
		OrderRepo:      orderRepo,
		CustomerRepo:   customerRepo,
		ScheduleRepo:   scheduleRepo,
		SubStore:       subStore,
		Dispatcher:     dispatcher,
		Guard:          guard,
		EventPublisher: eventPublisher,
		Gateways:       make(map[string]types.Gateway),
	}
}

func newPaymentService(params service.ServiceParams, status service.StatusService, renewal service.RenewalService) service.PaymentService {
	return service.NewPaymentService(params, status, renewal)
}

func newSwitchService(params service.ServiceParams, status service.StatusService) service.SwitchService {
	return service.NewSwitchService(params, status, proration.NewCalculator())
}

func newHookService(params service.ServiceParams, status service.StatusService, payment service.PaymentService, renewal service.RenewalService) *service.HookService {
	return service.NewHookService(params, status, payment, renewal)
}

func newHostService(params service.ServiceParams, status service.StatusService, payment service.PaymentService) service.HostService {
	return service.NewHostService(params, status, payment)
}

func newSubscriptionHandler(subscriptions service.SubscriptionService, status service.StatusService, log *logger.Logger) *v1.SubscriptionHandler {
	return v1.NewSubscriptionHandler(subscriptions, status, log)
}

func newPaymentHandler(payments service.PaymentService, log *logger.Logger) *v1.PaymentHandler {
	return v1.NewPaymentHandler(payments, log)
}

func newTotalsHandler(totals service.TotalsService, log *logger.Logger) *v1.TotalsHandler {
	return v1.NewTotalsHandler(totals, log)
}

func newSwitchHandler(switches service.SwitchService, log *logger.Logger) *v1.SwitchHandler {
	return v1.NewSwitchHandler(switches, log)
}

func newHostHandler(host service.HostService, log *logger.Logger) *v1.HostHandler {
	return v1.NewHostHandler(host, log)
}

func newHandlers(
	health *v1.HealthHandler,
	subscription *v1.SubscriptionHandler,
	payment *v1.PaymentHandler,
	totals *v1.TotalsHandler,
	switchHandler *v1.SwitchHandler,
	host *v1.HostHandler,
) api.Handlers {
	return api.Handlers{
		Health:       health,
		Subscription: subscription,
		Payment:      payment,
		Totals:       totals,
		Switch:       switchHandler,
		Host:         host,
	}
}

func registerHooks(lc fx.Lifecycle, runner *scheduler.Runner, hooks *service.HookService, log *logger.Logger) {
	hooks.RegisterAll(runner)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runner.Start(context.Background())
			log.Info("scheduled event runner started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			return nil
		},
	})
}

func startConsumer(lc fx.Lifecycle, host service.HostService, ps pubsub.PubSub, cfg *config.Configuration, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := host.Consume(context.Background(), ps, cfg.Event.HostTopic); err != nil {
				return err
			}
			log.Infow("consuming host notifications", "topic", cfg.Event.HostTopic)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
}

func startServer(lc fx.Lifecycle, router *gin.Engine, cfg *config.Configuration, log *logger.Logger) {
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow("starting server", "address", cfg.Server.Address)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("server failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

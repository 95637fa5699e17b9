// Package app собирает сервис из компонентов и управляет их жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/geo"
	"github.com/feistyindonesia-code/webapp/internal/health"
	"github.com/feistyindonesia-code/webapp/internal/httpapi"
	"github.com/feistyindonesia-code/webapp/internal/messaging/kafka"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
	"github.com/feistyindonesia-code/webapp/internal/service/checkout"
	grpcsvc "github.com/feistyindonesia-code/webapp/internal/service/grpc"
	"github.com/feistyindonesia-code/webapp/internal/service/idempotency"
	"github.com/feistyindonesia-code/webapp/internal/service/ledger"
	"github.com/feistyindonesia-code/webapp/internal/service/outbox"
	"github.com/feistyindonesia-code/webapp/internal/service/payment"
	"github.com/feistyindonesia-code/webapp/internal/service/pricing"
	"github.com/feistyindonesia-code/webapp/internal/service/referral"
	"github.com/feistyindonesia-code/webapp/internal/service/webhook"
	"github.com/feistyindonesia-code/webapp/internal/version"
)

const grpcStopTimeout = 5 * time.Second

// components содержит собранный граф сервиса без сетевых слушателей.
type components struct {
	checkout *checkout.Service
	grpc     *grpcsvc.OutletService
	health   *health.Handler
	http     *echo.Echo
	// outbox nil, если Kafka не настроена: события остаются в хранилище.
	outbox  *outbox.Relay
	sweeper *idempotency.Sweeper
}

func buildComponents(cfg Config, storage *runtimeStorage, producer *kafka.Producer, logger *log.Entry) (*components, error) {
	m := metrics.NewCheckoutMetrics()
	store := storage.store

	gateway, err := newPaymentGateway(cfg.Payment, logger)
	if err != nil {
		return nil, err
	}

	l := ledger.New(
		store,
		store,
		pricing.NewPricer(),
		referral.NewRewarder(m, logger.WithField("component", "referral-rewarder")),
		ledger.Config{PaymentExpiry: cfg.PaymentExpiry},
		m,
		logger.WithField("component", "order-ledger"),
	)
	webhooks := webhook.NewProcessor(store, l, m, logger.WithField("component", "webhook"))

	svc, err := checkout.NewService(checkout.Deps{
		Store:     store,
		Matcher:   geo.NewMatcher(store.Outlets(), m, logger.WithField("component", "geo")),
		Ledger:    l,
		Gateway:   gateway,
		Webhooks:  webhooks,
		Registrar: referral.NewRegistrar(store, logger.WithField("component", "referral-registrar")),
		Metrics:   m,
		Logger:    logger.WithField("component", "checkout"),
	}, checkout.Config{
		CallbackURL:     cfg.CallbackURL(),
		ReturnURL:       cfg.ReturnURL(),
		ProviderTimeout: cfg.Payment.ProviderTimeout,
	})
	if err != nil {
		return nil, err
	}

	healthHandler := health.NewHandler(version.GetVersion())
	if storage.pinger != nil {
		healthHandler.RegisterChecker("postgres", health.NewPingChecker("postgres", storage.pinger))
	}
	healthHandler.RegisterChecker("outbox", health.NewOutboxChecker(store.Outbox(), cfg.OutboxMaxAge))

	httpServer, err := httpapi.New(httpapi.Options{
		Callbacks:  svc,
		PrivateKey: cfg.Payment.Gateway.PrivateKey,
		Health:     healthHandler,
		Logger:     logger.WithField("component", "http"),
	})
	if err != nil {
		return nil, err
	}

	c := &components{
		checkout: svc,
		grpc:     grpcsvc.NewOutletService(svc, storage.idempotencyRepo, logger.WithField("component", "grpc")),
		health:   healthHandler,
		http:     httpServer,
		sweeper: idempotency.NewSweeper(storage.idempotencyRepo,
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
			idempotency.WithLogger(logger.WithField("component", "idempotency-sweeper")),
		),
	}
	if producer != nil {
		c.outbox = outbox.NewRelay(store.Outbox(), kafka.NewOutboxPublisher(producer, ""),
			outbox.WithDeadLetters(kafka.NewDLQPublisher(producer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryDelay(cfg.OutboxRetryDelay),
			outbox.WithLogger(logger.WithField("component", "outbox-relay")),
		)
	}
	return c, nil
}

// newPaymentGateway выбирает провайдера: без BaseURL работает mock.
func newPaymentGateway(cfg PaymentConfig, logger *log.Entry) (domain.PaymentGateway, error) {
	if cfg.Gateway.BaseURL == "" {
		logger.Warn("payment provider url is not set, using mock gateway")
		return payment.NewMockGateway(), nil
	}
	return payment.NewHTTPGateway(cfg.Gateway, nil, logger.WithField("component", "payment-gateway"))
}

// Run запускает gRPC и HTTP серверы и фоновые воркеры до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, outbox events stay pending")
	}
	defer closeKafka(producer, logger)

	c, err := buildComponents(cfg, storage, producer, logger)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer, healthServer := newGRPCServer(c.grpc, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		return nil
	})
	g.Go(func() error {
		return httpapi.Serve(gctx, c.http, cfg.HTTPAddr, logger)
	})
	if c.outbox != nil {
		g.Go(func() error {
			c.outbox.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		c.sweeper.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// stopGRPC ждёт завершения активных вызовов, но не дольше grpcStopTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/httpapi"
	"github.com/feistyindonesia-code/webapp/internal/service/ledger"
	"github.com/feistyindonesia-code/webapp/internal/service/payment"
	"github.com/feistyindonesia-code/webapp/internal/storage/postgres"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	// DevPrivateKey подписывает вебхуки при локальном запуске с mock-провайдером.
	DevPrivateKey = "dev-private-key"
)

// PaymentConfig описывает подключение к платёжному провайдеру.
// Пустой Gateway.BaseURL включает mock-провайдер.
type PaymentConfig struct {
	Gateway         payment.GatewayConfig
	ProviderTimeout time.Duration
}

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr string
	// HTTPAddr обслуживает вебхук провайдера, health-пробы и /metrics.
	HTTPAddr string

	StorageDriver string
	PostgresDSN   string

	// При пустом KafkaBrokers outbox копится в хранилище без публикации.
	KafkaBrokers []string

	// PublicBaseURL задаёт внешний адрес сервиса, из него строятся callback и return URL.
	PublicBaseURL string
	PaymentExpiry time.Duration
	Delivery      postgres.DeliveryDefaults
	Payment       PaymentConfig

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxAge ограничивает возраст старейшего pending-события, дальше /healthz деградирует.
	OutboxMaxAge time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:      ":50051",
		HTTPAddr:      ":8080",
		StorageDriver: StorageDriverMemory,
		PublicBaseURL: "http://localhost:8080",
		PaymentExpiry: ledger.DefaultPaymentExpiry,
		Delivery:      postgres.DefaultDeliveryDefaults(),
		Payment: PaymentConfig{
			Gateway: payment.GatewayConfig{
				PrivateKey: DevPrivateKey,
				Method:     payment.DefaultMethod,
				Timeout:    payment.DefaultTimeout,
			},
			ProviderTimeout: payment.DefaultTimeout,
		},
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxAge:                5 * time.Minute,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет обязательные поля перед запуском.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.Payment.Gateway.PrivateKey == "" {
		errs = append(errs, errors.New("payment private key is required"))
	}
	if c.Payment.Gateway.BaseURL != "" && c.Payment.Gateway.APIKey == "" {
		errs = append(errs, errors.New("payment api key is required with a provider base url"))
	}
	return errors.Join(errs...)
}

// CallbackURL возвращает адрес вебхука для провайдера.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + httpapi.CallbackPath
}

// ReturnURL возвращает страницу заказа, куда провайдер возвращает клиента.
func (c Config) ReturnURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/orders"
}

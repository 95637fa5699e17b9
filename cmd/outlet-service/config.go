package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/app"
)

const (
	envLogLevel = "LOG_LEVEL"

	envGRPCAddr      = "OUTLET_GRPC_ADDR"
	envHTTPAddr      = "OUTLET_HTTP_ADDR"
	envStorageDriver = "OUTLET_STORAGE_DRIVER"
	envPostgresDSN   = "OUTLET_POSTGRES_DSN"
	envKafkaBrokers  = "OUTLET_KAFKA_BROKERS"
	envPublicBaseURL = "OUTLET_PUBLIC_BASE_URL"
	envPaymentExpiry = "OUTLET_PAYMENT_EXPIRY"

	envDeliveryServiceRadiusKm = "OUTLET_DELIVERY_SERVICE_RADIUS_KM"
	envDeliveryFreeRadiusKm    = "OUTLET_DELIVERY_FREE_RADIUS_KM"
	envDeliveryFeePerKm        = "OUTLET_DELIVERY_FEE_PER_KM"

	envPaymentBaseURL      = "OUTLET_PAYMENT_BASE_URL"
	envPaymentAPIKey       = "OUTLET_PAYMENT_API_KEY"
	envPaymentPrivateKey   = "OUTLET_PAYMENT_PRIVATE_KEY"
	envPaymentMerchantCode = "OUTLET_PAYMENT_MERCHANT_CODE"
	envPaymentMethod       = "OUTLET_PAYMENT_METHOD"
	envPaymentTimeout      = "OUTLET_PAYMENT_TIMEOUT"

	envOutboxPollInterval = "OUTLET_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "OUTLET_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "OUTLET_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "OUTLET_OUTBOX_RETRY_DELAY"
	envOutboxMaxAge       = "OUTLET_OUTBOX_MAX_AGE"

	envIdempotencyCleanupInterval  = "OUTLET_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "OUTLET_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
)

type envLookup func(string) (string, bool)

func positiveInt(v int) bool                   { return v > 0 }
func positiveInt64(v int64) bool               { return v > 0 }
func positiveDuration(v time.Duration) bool    { return v > 0 }
func nonNegativeDuration(v time.Duration) bool { return v >= 0 }
func nonNegativeFloat(v float64) bool          { return v >= 0 }

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректное значение не роняет запуск: остаётся значение по умолчанию,
// а причина возвращается в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("ignore %s=%q: %v", key, raw, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int, check func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, check, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, check func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, check, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	float := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseFloat(v, nonNegativeFloat, "must be >= 0")
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	str(envPublicBaseURL, &cfg.PublicBaseURL)
	duration(envPaymentExpiry, &cfg.PaymentExpiry, positiveDuration, "must be > 0")

	float(envDeliveryServiceRadiusKm, &cfg.Delivery.ServiceRadiusKm)
	float(envDeliveryFreeRadiusKm, &cfg.Delivery.FreeRadiusKm)
	if v, ok := lookup(envDeliveryFeePerKm); ok {
		parsed, err := parseInt64(v, positiveInt64, "must be > 0")
		if err != nil {
			warn(envDeliveryFeePerKm, v, err)
		} else {
			cfg.Delivery.FeePerKm = parsed
		}
	}

	str(envPaymentBaseURL, &cfg.Payment.Gateway.BaseURL)
	str(envPaymentAPIKey, &cfg.Payment.Gateway.APIKey)
	str(envPaymentPrivateKey, &cfg.Payment.Gateway.PrivateKey)
	str(envPaymentMerchantCode, &cfg.Payment.Gateway.MerchantCode)
	str(envPaymentMethod, &cfg.Payment.Gateway.Method)
	duration(envPaymentTimeout, &cfg.Payment.Gateway.Timeout, positiveDuration, "must be > 0")
	cfg.Payment.ProviderTimeout = cfg.Payment.Gateway.Timeout

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	duration(envOutboxMaxAge, &cfg.OutboxMaxAge, positiveDuration, "must be > 0")

	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")

	return cfg, warnings
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(raw string, check func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !check(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseInt64(raw string, check func(int64) bool, rule string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if !check(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseFloat(raw string, check func(float64) bool, rule string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if !check(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

func parseDuration(raw string, check func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !check(v) {
		return 0, errors.New(rule)
	}
	return v, nil
}

// Package httpapi обслуживает HTTP-поверхность сервиса: вебхук платёжного провайдера,
// health-пробы и метрики Prometheus.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/health"
	"github.com/feistyindonesia-code/webapp/internal/service/payment"
	"github.com/feistyindonesia-code/webapp/internal/service/webhook"
)

const (
	// CallbackPath передаётся провайдеру как callback_url.
	CallbackPath = "/api/v1/payments/callback"
	// SignatureHeader содержит HMAC-SHA256 тела запроса.
	SignatureHeader = "X-Callback-Signature"

	maxCallbackBody = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// CallbackHandler применяет вебхук к заказу.
type CallbackHandler interface {
	HandlePaymentCallback(ctx context.Context, cb webhook.Callback) (webhook.Result, error)
}

// Options содержит зависимости HTTP-сервера.
type Options struct {
	Callbacks CallbackHandler
	// PrivateKey проверяет подпись вебхука.
	PrivateKey string
	Health     *health.Handler
	Logger     *log.Entry
}

// Response описывает тело ответа вебхука.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type server struct {
	callbacks  CallbackHandler
	privateKey string
	logger     *log.Entry
}

// New собирает echo-приложение со всеми маршрутами.
func New(opts Options) (*echo.Echo, error) {
	if opts.Callbacks == nil {
		return nil, errors.New("httpapi: callback handler is required")
	}
	if opts.PrivateKey == "" {
		return nil, errors.New("httpapi: provider private key is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	healthHandler := opts.Health
	if healthHandler == nil {
		healthHandler = health.NewHandler("")
	}

	s := &server{
		callbacks:  opts.Callbacks,
		privateKey: opts.PrivateKey,
		logger:     logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	e.POST(CallbackPath, s.paymentCallback)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", echo.WrapHandler(healthHandler))
	e.GET("/livez", echo.WrapHandler(http.HandlerFunc(health.LivenessHandler)))
	e.GET("/readyz", echo.WrapHandler(http.HandlerFunc(healthHandler.ReadinessHandler)))

	return e, nil
}

// paymentCallback подтверждает вебхук (200, success=true) при любом исходе
// обработки; отказ только при неверной подписи (401) и нечитаемом теле (400).
func (s *server) paymentCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Message: "failed to read body"})
	}

	signature := c.Request().Header.Get(SignatureHeader)
	if !payment.VerifySignature(s.privateKey, body, signature) {
		s.logger.WithField("remote_ip", c.RealIP()).Warn("payment callback with invalid signature")
		return c.JSON(http.StatusUnauthorized, Response{Message: "invalid signature"})
	}

	cb, err := webhook.DecodeCallback(body)
	if err != nil {
		s.logger.WithError(err).Warn("malformed payment callback")
		return c.JSON(http.StatusBadRequest, Response{Message: err.Error()})
	}

	result, err := s.callbacks.HandlePaymentCallback(c.Request().Context(), cb)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"transaction_id": cb.TransactionID,
			"status":         cb.Status,
		}).Error("payment callback processing failed")
	}

	return c.JSON(http.StatusOK, Response{Success: true, Message: string(result)})
}

// Serve запускает сервер и останавливает его при отмене ctx.
func Serve(ctx context.Context, e *echo.Echo, addr string, logger *log.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", addr)
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("http shutdown with error")
		}
		return nil
	}
}

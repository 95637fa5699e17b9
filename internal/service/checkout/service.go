// Package checkout собирает подбор точки, расчёт заказа, оплату и вебхуки
// в один набор операций для транспортного слоя.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/geo"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
	"github.com/feistyindonesia-code/webapp/internal/service/ledger"
	"github.com/feistyindonesia-code/webapp/internal/service/referral"
	"github.com/feistyindonesia-code/webapp/internal/service/webhook"
)

// DefaultProviderTimeout ограничивает вызов провайдера, если в Config не задано иное.
const DefaultProviderTimeout = 10 * time.Second

// Config задаёт адреса, которые передаются провайдеру при открытии платежа.
type Config struct {
	// CallbackURL задаёт публичный адрес POST /api/v1/payments/callback.
	CallbackURL string
	// ReturnURL задаёт адрес возврата клиента, к нему добавляется id заказа.
	ReturnURL       string
	ProviderTimeout time.Duration
}

// Deps содержит зависимости сервиса.
type Deps struct {
	Store     domain.Store
	Matcher   *geo.Matcher
	Ledger    *ledger.Ledger
	Gateway   domain.PaymentGateway
	Webhooks  *webhook.Processor
	Registrar *referral.Registrar
	Metrics   *metrics.CheckoutMetrics
	Logger    *log.Entry
}

// CreateOrderRequest — заказ от клиента. OutletID = 0 означает «ближайшая точка».
type CreateOrderRequest struct {
	OutletID   int64
	CustomerID int64
	Items      []domain.ItemRequest
	Point      domain.GeoPoint
	Address    string
}

// PaymentResult описывает открытый платёж по заказу.
type PaymentResult struct {
	OrderID       string
	TransactionID string
	PaymentURL    string
	AmountMinor   int64
}

// OrderDetails содержит заказ вместе с историей.
type OrderDetails struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Service — фасад операций оформления заказа.
type Service struct {
	store     domain.Store
	matcher   *geo.Matcher
	ledger    *ledger.Ledger
	gateway   domain.PaymentGateway
	webhooks  *webhook.Processor
	registrar *referral.Registrar
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry
	cfg       Config
	now       func() time.Time
}

// NewService проверяет зависимости и создаёт сервис.
func NewService(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("checkout: store is required")
	case deps.Matcher == nil:
		return nil, errors.New("checkout: geo matcher is required")
	case deps.Ledger == nil:
		return nil, errors.New("checkout: ledger is required")
	case deps.Gateway == nil:
		return nil, errors.New("checkout: payment gateway is required")
	case deps.Webhooks == nil:
		return nil, errors.New("checkout: webhook processor is required")
	case deps.Registrar == nil:
		return nil, errors.New("checkout: registrar is required")
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}

	return &Service{
		store:     deps.Store,
		matcher:   deps.Matcher,
		ledger:    deps.Ledger,
		gateway:   deps.Gateway,
		webhooks:  deps.Webhooks,
		registrar: deps.Registrar,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// FindNearestOutlet возвращает ближайшую активную точку.
func (s *Service) FindNearestOutlet(ctx context.Context, point domain.GeoPoint) (geo.Match, error) {
	return s.matcher.FindNearestOutlet(ctx, point)
}

// ListAvailableOutlets возвращает активные точки по возрастанию расстояния.
func (s *Service) ListAvailableOutlets(ctx context.Context, point domain.GeoPoint) ([]geo.Match, error) {
	return s.matcher.ListAvailableOutlets(ctx, point)
}

// QuoteDelivery считает расстояние и стоимость доставки от точки.
func (s *Service) QuoteDelivery(ctx context.Context, outletID int64, point domain.GeoPoint) (geo.Quote, error) {
	if outletID <= 0 {
		return geo.Quote{}, domain.ErrOutletRequired
	}
	return s.matcher.QuoteDelivery(ctx, outletID, point)
}

// CreateOrder считает доставку от выбранной (или ближайшей) точки и сохраняет заказ.
// Цены позиций и итог считаются только на сервере.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	if err := req.Point.Validate(); err != nil {
		return domain.Order{}, err
	}

	outletID := req.OutletID
	if outletID <= 0 {
		nearest, err := s.matcher.FindNearestOutlet(ctx, req.Point)
		if err != nil {
			return domain.Order{}, err
		}
		outletID = nearest.Outlet.ID
	}

	quote, err := s.matcher.QuoteDelivery(ctx, outletID, req.Point)
	if err != nil {
		return domain.Order{}, err
	}
	if !quote.CanDeliver {
		return domain.Order{}, fmt.Errorf("%.2f km from outlet %d: %w", quote.DistanceKm, outletID, domain.ErrOutOfServiceArea)
	}

	return s.ledger.CreateOrder(ctx, ledger.NewOrder{
		OutletID:   outletID,
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Delivery: domain.OrderDelivery{
			Point:      req.Point,
			Address:    req.Address,
			DistanceKm: quote.DistanceKm,
			FeeMinor:   quote.FeeMinor,
		},
	})
}

// CreatePayment открывает платёж у провайдера и привязывает транзакцию к заказу.
func (s *Service) CreatePayment(ctx context.Context, orderID string) (PaymentResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentResult{}, domain.ErrOrderIDRequired
	}

	order, err := s.ledger.EnsurePayable(ctx, orderID, s.now())
	if err != nil {
		return PaymentResult{}, err
	}

	customer, err := s.store.Customers().Get(ctx, order.CustomerID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("load customer %d: %w", order.CustomerID, err)
	}

	req := domain.PaymentRequest{
		OrderID:     order.ID,
		AmountMinor: order.TotalMinor,
		PayerPhone:  customer.Phone,
		PayerName:   customer.Name,
		CallbackURL: s.cfg.CallbackURL,
		ReturnURL:   s.returnURL(order.ID),
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	started := time.Now()
	session, err := s.gateway.CreatePayment(callCtx, req)
	cancel()
	s.metrics.RecordProviderCall(time.Since(started), err)

	logger := s.logger.WithField("order_id", order.ID)
	if err != nil {
		logger.WithError(err).Warn("payment provider call failed")
		if !errors.Is(err, domain.ErrProviderError) && !errors.Is(err, domain.ErrValidation) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderError, err)
		}
		return PaymentResult{}, err
	}

	if err := s.ledger.AttachPaymentReference(ctx, order.ID, session.TransactionID, session.PaymentURL); err != nil {
		logger.WithError(err).WithField("transaction_id", session.TransactionID).Warn("payment reference not attached")
		return PaymentResult{}, err
	}

	s.metrics.RecordPaymentInitiated()
	logger.WithField("transaction_id", session.TransactionID).Info("payment initiated")
	return PaymentResult{
		OrderID:       order.ID,
		TransactionID: session.TransactionID,
		PaymentURL:    session.PaymentURL,
		AmountMinor:   order.TotalMinor,
	}, nil
}

func (s *Service) returnURL(orderID string) string {
	if s.cfg.ReturnURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.ReturnURL, "/") + "/" + orderID
}

// HandlePaymentCallback применяет уведомление провайдера.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb webhook.Callback) (webhook.Result, error) {
	return s.webhooks.HandleCallback(ctx, cb)
}

// GetOrder возвращает заказ с историей.
func (s *Service) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	order, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	timeline, err := s.ledger.Timeline(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	return OrderDetails{Order: order, Timeline: timeline}, nil
}

// ListOrders возвращает заказы клиента.
func (s *Service) ListOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	return s.ledger.ListByCustomer(ctx, customerID, limit)
}

// UpdateOrderStatus выполняет операторский переход: processing или completed.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	switch status {
	case domain.OrderStatusProcessing:
		return s.ledger.MarkProcessing(ctx, orderID)
	case domain.OrderStatusCompleted:
		return s.ledger.Complete(ctx, orderID)
	default:
		if !status.Valid() {
			return domain.Order{}, fmt.Errorf("unknown status %q: %w", status, domain.ErrInvalidArgument)
		}
		return domain.Order{}, fmt.Errorf("operator cannot set %s: %w", status, domain.ErrTransitionNotAllowed)
	}
}

// RegisterCustomer создаёт клиента с реферальным кодом.
func (s *Service) RegisterCustomer(ctx context.Context, phone, name, referrerCode string) (domain.Customer, error) {
	return s.registrar.Register(ctx, phone, name, referrerCode)
}

// AttachReferrer привязывает существующего клиента к владельцу кода.
func (s *Service) AttachReferrer(ctx context.Context, customerID int64, referrerCode string) (domain.Customer, error) {
	return s.registrar.AttachReferrer(ctx, customerID, referrerCode)
}

// Package ledger хранит заказы и управляет их жизненным циклом.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
	"github.com/feistyindonesia-code/webapp/internal/service/pricing"
)

const (
	// DefaultPaymentExpiry — окно, в течение которого pending-заказ можно оплатить.
	DefaultPaymentExpiry = 15 * time.Minute

	defaultListLimit = 100
	maxListLimit     = 500
)

// Rewarder начисляет реферальный бонус внутри транзакции перехода статуса.
type Rewarder interface {
	RewardIfEligible(ctx context.Context, tx domain.Store, order domain.Order) (bool, error)
}

// NewOrder — входные данные для создания заказа. Стоимость доставки уже
// посчитана по расстоянию; цены позиций берутся только из каталога.
type NewOrder struct {
	OutletID   int64
	CustomerID int64
	Items      []domain.ItemRequest
	Delivery   domain.OrderDelivery
}

// OrderEvent описывает payload outbox-событий заказа.
type OrderEvent struct {
	OrderID          string `json:"order_id"`
	OutletID         int64  `json:"outlet_id"`
	CustomerID       int64  `json:"customer_id"`
	Status           string `json:"status"`
	TotalMinor       int64  `json:"total_minor"`
	PaymentReference string `json:"payment_reference,omitempty"`
	Reason           string `json:"reason,omitempty"`
	OccurredAt       string `json:"occurred_at"`
}

// Config задаёт параметры Ledger.
type Config struct {
	PaymentExpiry time.Duration
}

// Ledger — единственная точка изменения заказов.
type Ledger struct {
	store    domain.Store
	tx       domain.TxManager
	pricer   *pricing.Pricer
	rewarder Rewarder
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	expiry   time.Duration
	now      func() time.Time
}

// New создаёт Ledger. store используется для чтения вне транзакций.
func New(
	store domain.Store,
	tx domain.TxManager,
	pricer *pricing.Pricer,
	rewarder Rewarder,
	cfg Config,
	m *metrics.CheckoutMetrics,
	logger *log.Entry,
) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "order-ledger")
	}
	if pricer == nil {
		pricer = pricing.NewPricer()
	}
	if cfg.PaymentExpiry <= 0 {
		cfg.PaymentExpiry = DefaultPaymentExpiry
	}
	return &Ledger{
		store:    store,
		tx:       tx,
		pricer:   pricer,
		rewarder: rewarder,
		metrics:  m,
		logger:   logger,
		expiry:   cfg.PaymentExpiry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder считает заказ по каталогу и сохраняет его вместе с позициями,
// доставкой, outbox-событием и записью в таймлайне в одной транзакции.
// Итоговая сумма всегда равна сумме позиций плюс доставка.
func (l *Ledger) CreateOrder(ctx context.Context, req NewOrder) (domain.Order, error) {
	if req.CustomerID <= 0 {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if req.OutletID <= 0 {
		return domain.Order{}, domain.ErrOutletRequired
	}
	if strings.TrimSpace(req.Delivery.Address) == "" {
		return domain.Order{}, domain.ErrAddressRequired
	}
	if err := req.Delivery.Point.Validate(); err != nil {
		return domain.Order{}, err
	}
	if req.Delivery.FeeMinor < 0 || req.Delivery.DistanceKm < 0 {
		return domain.Order{}, domain.ErrInvalidArgument
	}

	var created domain.Order
	err := l.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		if _, err := tx.Customers().Get(ctx, req.CustomerID); err != nil {
			return err
		}

		priced, err := l.pricer.PriceOrder(ctx, tx.Products(), req.OutletID, req.Items)
		if err != nil {
			return err
		}

		now := l.now()
		orderID := uuid.NewString()
		items := make([]domain.OrderItem, 0, len(priced.Items))
		for _, item := range priced.Items {
			item.ID = uuid.NewString()
			item.OrderID = orderID
			items = append(items, item)
		}

		delivery := req.Delivery
		delivery.OrderID = orderID
		delivery.Address = strings.TrimSpace(delivery.Address)

		order := domain.Order{
			ID:         orderID,
			OutletID:   req.OutletID,
			CustomerID: req.CustomerID,
			Items:      items,
			Delivery:   delivery,
			TotalMinor: priced.ItemsTotal + delivery.FeeMinor,
			Status:     domain.OrderStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
		if err := l.enqueue(ctx, tx, order, domain.EventOrderCreated, ""); err != nil {
			return err
		}
		if err := l.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCreated, "order created", now); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	l.metrics.RecordOrderCreated()
	l.logger.WithFields(log.Fields{
		"order_id":    created.ID,
		"outlet_id":   created.OutletID,
		"customer_id": created.CustomerID,
		"total_minor": created.TotalMinor,
	}).Info("order created")
	return created, nil
}

// EnsurePayable проверяет, что по заказу можно открыть платёж. Просроченный
// pending-заказ без транзакции провайдера при этом переводится в expired.
func (l *Ledger) EnsurePayable(ctx context.Context, orderID string, now time.Time) (domain.Order, error) {
	order, err := l.store.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return order, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, domain.ErrOrderNotPending)
	}

	// С привязанной транзакцией заказ ждёт callback провайдера и не истекает.
	if order.PaymentInitiated() {
		return order, domain.ErrAlreadyInitiated
	}

	if now.Sub(order.CreatedAt) > l.expiry {
		if err := l.expire(ctx, order); err != nil {
			return order, err
		}
		order.Status = domain.OrderStatusExpired
		return order, domain.ErrOrderExpired
	}
	return order, nil
}

func (l *Ledger) expire(ctx context.Context, order domain.Order) error {
	return l.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		_, err := l.ApplyTransition(ctx, tx, order, domain.OrderStatusExpired, "payment window elapsed")
		return err
	})
}

// AttachPaymentReference привязывает транзакцию провайдера к заказу. Повторная
// привязка возвращает ErrAlreadyInitiated, заказ не в pending — ErrOrderNotPending.
func (l *Ledger) AttachPaymentReference(ctx context.Context, orderID, ref, paymentURL string) error {
	if strings.TrimSpace(ref) == "" {
		return domain.ErrInvalidArgument
	}

	return l.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		now := l.now()
		attached, err := tx.Orders().AttachPaymentReference(ctx, orderID, ref, paymentURL, now)
		if err != nil {
			return err
		}
		if !attached {
			current, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if current.PaymentInitiated() {
				return domain.ErrAlreadyInitiated
			}
			return fmt.Errorf("order %s is %s: %w", current.ID, current.Status, domain.ErrOrderNotPending)
		}
		return l.appendTimeline(ctx, tx, orderID, domain.TimelinePaymentInitiated, "transaction "+ref, now)
	})
}

// ApplyTransition переводит заказ в статус to внутри транзакции tx. Заказ в
// терминальном статусе не меняется: возвращается (false, nil). При успешном
// завершении (paid, completed) в той же транзакции начисляется реферальный бонус.
func (l *Ledger) ApplyTransition(ctx context.Context, tx domain.Store, order domain.Order, to domain.OrderStatus, reason string) (bool, error) {
	if order.Status.IsTerminal() {
		return false, nil
	}
	if !domain.CanTransition(order.Status, to) {
		return false, fmt.Errorf("%s -> %s: %w", order.Status, to, domain.ErrTransitionNotAllowed)
	}

	now := l.now()
	changed, err := tx.Orders().TransitionStatus(ctx, order.ID, domain.AllowedSources(to), to, now)
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", order.ID, err)
	}
	if !changed {
		return false, nil
	}

	from := order.Status
	order.Status = to
	order.UpdatedAt = now

	if err := l.enqueue(ctx, tx, order, domain.StatusEventType(to), reason); err != nil {
		return false, err
	}
	if err := l.appendTimeline(ctx, tx, order.ID, domain.TimelineStatusChanged, fmt.Sprintf("%s -> %s: %s", from, to, reason), now); err != nil {
		return false, err
	}

	if to.IsSuccessful() && l.rewarder != nil {
		if _, err := l.rewarder.RewardIfEligible(ctx, tx, order); err != nil {
			return false, fmt.Errorf("referral reward: %w", err)
		}
	}

	l.metrics.RecordStatusTransition(string(to))
	l.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"status":   to,
	}).Info("order status changed")
	return true, nil
}

// MarkProcessing переводит заказ в работу (операторский переход).
func (l *Ledger) MarkProcessing(ctx context.Context, orderID string) (domain.Order, error) {
	return l.operatorTransition(ctx, orderID, domain.OrderStatusProcessing, "accepted by operator")
}

// Complete завершает заказ (операторский переход).
func (l *Ledger) Complete(ctx context.Context, orderID string) (domain.Order, error) {
	return l.operatorTransition(ctx, orderID, domain.OrderStatusCompleted, "completed by operator")
}

func (l *Ledger) operatorTransition(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (domain.Order, error) {
	var result domain.Order
	err := l.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == to || order.Status.IsTerminal() {
			result = order
			return nil
		}

		if _, err := l.ApplyTransition(ctx, tx, order, to, reason); err != nil {
			return err
		}
		result, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// Get возвращает заказ.
func (l *Ledger) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return l.store.Orders().Get(ctx, orderID)
}

// ListByCustomer возвращает заказы клиента, новые первыми.
func (l *Ledger) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if customerID <= 0 {
		return nil, domain.ErrCustomerRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return l.store.Orders().ListByCustomer(ctx, customerID, limit)
}

// Timeline возвращает историю заказа.
func (l *Ledger) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := l.store.Orders().Get(ctx, orderID); err != nil {
		return nil, err
	}
	return l.store.Timeline().List(ctx, orderID)
}

// RecordTimeline добавляет событие в историю заказа внутри tx.
func (l *Ledger) RecordTimeline(ctx context.Context, tx domain.Store, orderID, eventType, reason string) error {
	return l.appendTimeline(ctx, tx, orderID, eventType, reason, l.now())
}

func (l *Ledger) enqueue(ctx context.Context, tx domain.Store, order domain.Order, eventType, reason string) error {
	payload, err := json.Marshal(OrderEvent{
		OrderID:          order.ID,
		OutletID:         order.OutletID,
		CustomerID:       order.CustomerID,
		Status:           string(order.Status),
		TotalMinor:       order.TotalMinor,
		PaymentReference: order.PaymentReference,
		Reason:           reason,
		OccurredAt:       l.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	l.metrics.RecordOutboxEvent()
	return nil
}

func (l *Ledger) appendTimeline(ctx context.Context, tx domain.Store, orderID, eventType, reason string, at time.Time) error {
	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: at,
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	l.metrics.RecordTimelineEvent()
	return nil
}

// Package webhook обрабатывает уведомления платёжного провайдера о статусе транзакций.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
)

// Result — итог обработки callback. Провайдеру подтверждается любой итог.
type Result string

const (
	// ResultApplied — статус заказа изменён.
	ResultApplied Result = "applied"
	// ResultDuplicate — заказ уже в терминальном статусе, повтор проигнорирован.
	ResultDuplicate Result = "duplicate"
	// ResultIgnored — статус провайдера не влечёт перехода.
	ResultIgnored Result = "ignored"
	// ResultUnknownOrder — транзакция не привязана ни к одному заказу.
	ResultUnknownOrder Result = "unknown_order"
	// ResultFailed — сбой при обработке; изменения откатены.
	ResultFailed Result = "failed"
)

// Callback — нормализованное уведомление провайдера.
type Callback struct {
	TransactionID string
	Status        string
	// AmountMinor — сумма, сообщённая провайдером; 0 означает, что сумма не передана.
	AmountMinor int64
}

type callbackPayload struct {
	Reference   string      `json:"reference"`
	Status      string      `json:"status"`
	TotalAmount json.Number `json:"total_amount"`
	Amount      json.Number `json:"amount"`
}

// DecodeCallback разбирает тело callback-запроса провайдера.
func DecodeCallback(body []byte) (Callback, error) {
	var payload callbackPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Callback{}, fmt.Errorf("decode callback: %w", err)
	}

	ref := strings.TrimSpace(payload.Reference)
	if ref == "" {
		return Callback{}, errors.New("decode callback: reference is required")
	}
	if strings.TrimSpace(payload.Status) == "" {
		return Callback{}, errors.New("decode callback: status is required")
	}

	amount := payload.TotalAmount
	if amount == "" {
		amount = payload.Amount
	}
	var amountMinor int64
	if amount != "" {
		v, err := amount.Int64()
		if err != nil {
			return Callback{}, fmt.Errorf("decode callback amount: %w", err)
		}
		amountMinor = v
	}

	return Callback{TransactionID: ref, Status: payload.Status, AmountMinor: amountMinor}, nil
}

// MapStatus переводит статус провайдера в целевой статус заказа.
func MapStatus(providerStatus string) (domain.OrderStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(providerStatus)) {
	case "PAID", "SUCCESS", "SETTLEMENT", "CAPTURE":
		return domain.OrderStatusPaid, true
	case "FAILED", "EXPIRED", "CANCELLED", "CANCEL", "DENY", "REFUND":
		return domain.OrderStatusCancelled, true
	default:
		return "", false
	}
}

// Ledger — операции над заказом, выполняемые в транзакции callback.
type Ledger interface {
	ApplyTransition(ctx context.Context, tx domain.Store, order domain.Order, to domain.OrderStatus, reason string) (bool, error)
	RecordTimeline(ctx context.Context, tx domain.Store, orderID, eventType, reason string) error
}

// Processor применяет callback к заказу в одной транзакции.
type Processor struct {
	tx      domain.TxManager
	ledger  Ledger
	metrics *metrics.CheckoutMetrics
	logger  *log.Entry
}

// NewProcessor создаёт Processor.
func NewProcessor(tx domain.TxManager, ledger Ledger, m *metrics.CheckoutMetrics, logger *log.Entry) *Processor {
	if logger == nil {
		logger = log.WithField("component", "payment-webhook")
	}
	return &Processor{tx: tx, ledger: ledger, metrics: m, logger: logger}
}

// HandleCallback применяет уведомление. Повторная доставка того же уведомления
// ничего не меняет. Ошибка возвращается вместе с ResultFailed; HTTP-слой всё
// равно подтверждает получение.
func (p *Processor) HandleCallback(ctx context.Context, cb Callback) (Result, error) {
	logger := p.logger.WithFields(log.Fields{
		"transaction_id":  cb.TransactionID,
		"provider_status": cb.Status,
	})

	var result Result
	err := p.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		var err error
		result, err = p.apply(ctx, tx, cb, logger)
		return err
	})
	if err != nil {
		result = ResultFailed
		logger.WithError(err).Error("payment callback processing failed")
	}

	p.metrics.RecordCallback(string(result))
	return result, err
}

func (p *Processor) apply(ctx context.Context, tx domain.Store, cb Callback, logger *log.Entry) (Result, error) {
	order, err := tx.Orders().GetByPaymentReference(ctx, cb.TransactionID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("payment callback for unknown transaction")
		return ResultUnknownOrder, nil
	}
	if err != nil {
		return "", fmt.Errorf("load order by reference: %w", err)
	}

	logger = logger.WithFields(log.Fields{"order_id": order.ID, "status": order.Status})
	if order.Status.IsTerminal() {
		logger.Info("payment callback for finished order ignored")
		return ResultDuplicate, nil
	}

	target, ok := MapStatus(cb.Status)
	if !ok {
		logger.Info("payment callback status does not change order")
		return ResultIgnored, nil
	}
	if !domain.CanTransition(order.Status, target) {
		logger.WithField("target", target).Warn("payment callback transition not allowed for current status")
		return ResultIgnored, nil
	}

	if cb.AmountMinor > 0 && cb.AmountMinor != order.TotalMinor {
		logger.WithFields(log.Fields{
			"callback_amount": cb.AmountMinor,
			"order_total":     order.TotalMinor,
		}).Warn("payment callback amount does not match order total")
		p.metrics.RecordAmountMismatch()
		reason := fmt.Sprintf("provider amount %d, order total %d", cb.AmountMinor, order.TotalMinor)
		if err := p.ledger.RecordTimeline(ctx, tx, order.ID, domain.TimelineAmountMismatch, reason); err != nil {
			return "", err
		}
	}

	changed, err := p.ledger.ApplyTransition(ctx, tx, order, target, "provider status "+strings.ToUpper(cb.Status))
	if err != nil {
		return "", err
	}
	if !changed {
		return ResultDuplicate, nil
	}

	logger.WithField("target", target).Info("payment callback applied")
	return ResultApplied, nil
}

// Package referral начисляет реферальные бонусы и регистрирует клиентов с кодами.
package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
)

type rewardedPayload struct {
	OrderID    string `json:"order_id"`
	CustomerID int64  `json:"customer_id"`
	ReferrerID int64  `json:"referrer_id"`
	RewardedAt string `json:"rewarded_at"`
}

// Rewarder начисляет рефереру бонус за успешный заказ приглашённого клиента.
// Не более одного бонуса на заказ.
type Rewarder struct {
	metrics *metrics.CheckoutMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewRewarder создаёт Rewarder.
func NewRewarder(m *metrics.CheckoutMetrics, logger *log.Entry) *Rewarder {
	if logger == nil {
		logger = log.WithField("component", "referral-rewarder")
	}
	return &Rewarder{
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RewardIfEligible вызывается внутри транзакции перехода статуса. Срабатывает, если
// заказ в успешном терминальном статусе, бонус по нему ещё не начислен и у клиента
// есть реферер. Флаг заказа переключается условно, поэтому повторный или
// параллельный вызов не начислит бонус второй раз.
func (r *Rewarder) RewardIfEligible(ctx context.Context, tx domain.Store, order domain.Order) (bool, error) {
	if !order.Status.IsSuccessful() || order.ReferralRewarded {
		return false, nil
	}

	customer, err := tx.Customers().Get(ctx, order.CustomerID)
	if err != nil {
		return false, fmt.Errorf("load customer %d: %w", order.CustomerID, err)
	}
	if !customer.HasReferrer() {
		return false, nil
	}

	now := r.now()
	marked, err := tx.Orders().MarkReferralRewarded(ctx, order.ID, now)
	if err != nil {
		return false, fmt.Errorf("mark referral rewarded: %w", err)
	}
	if !marked {
		return false, nil
	}

	referrerID := *customer.ReferrerID
	if err := tx.Customers().IncrementReferralCount(ctx, referrerID); err != nil {
		return false, fmt.Errorf("increment referral count: %w", err)
	}

	payload, err := json.Marshal(rewardedPayload{
		OrderID:    order.ID,
		CustomerID: customer.ID,
		ReferrerID: referrerID,
		RewardedAt: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, fmt.Errorf("marshal referral payload: %w", err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateCustomer,
		AggregateID:   fmt.Sprintf("%d", referrerID),
		EventType:     domain.EventReferralRewarded,
		Payload:       payload,
	}); err != nil {
		return false, fmt.Errorf("enqueue referral event: %w", err)
	}
	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineReferralRewarded,
		Reason:   fmt.Sprintf("referrer %d credited", referrerID),
		Occurred: now,
	}); err != nil {
		return false, fmt.Errorf("append timeline: %w", err)
	}

	r.metrics.RecordReferralReward()
	r.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": customer.ID,
		"referrer_id": referrerID,
	}).Info("referral reward granted")
	return true, nil
}

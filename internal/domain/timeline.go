package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated     = "OrderCreated"
	TimelinePaymentInitiated = "PaymentInitiated"
	TimelineStatusChanged    = "OrderStatusChanged"
	TimelineAmountMismatch   = "PaymentAmountMismatch"
	TimelineReferralRewarded = "ReferralRewarded"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

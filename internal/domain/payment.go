package domain

import "context"

// PaymentRequest описывает платёж, который нужно открыть у провайдера.
type PaymentRequest struct {
	OrderID     string
	AmountMinor int64
	PayerPhone  string
	PayerName   string
	CallbackURL string
	ReturnURL   string
}

// PaymentSession описывает ответ провайдера на создание платежа.
type PaymentSession struct {
	TransactionID string
	PaymentURL    string
}

// Validate проверяет корректность запроса и возвращает ошибки, если они есть.
func (r PaymentRequest) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.AmountMinor <= 0 {
		errs = append(errs, ErrPaymentAmountInvalid)
	}
	if r.PayerPhone == "" {
		errs = append(errs, ErrPhoneRequired)
	}

	return errs
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// CreatePayment открывает платёж и возвращает ссылку для оплаты.
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error)
}

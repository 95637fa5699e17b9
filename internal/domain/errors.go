package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок ядра. Конкретные ошибки ниже относятся ровно к одному классу,
// поэтому вызывающий код может проверять как errors.Is(err, ErrOrderNotFound),
// так и errors.Is(err, ErrNotFound).
var (
	// ErrValidation — некорректные или отсутствующие входные данные (ошибка вызывающего).
	ErrValidation = errors.New("validation error")
	// ErrNotFound — запрошенная сущность отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState — операция запрещена текущим состоянием заказа.
	ErrInvalidState = errors.New("invalid state")
	// ErrProviderError — платёжный провайдер недоступен или вернул бизнес-ошибку.
	ErrProviderError = errors.New("payment provider error")
	// ErrInternal — сбой хранилища или иная внутренняя ошибка.
	ErrInternal = errors.New("internal error")
)

// KindError — ошибка с фиксированным классом.
type KindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

func (e *KindError) Error() string { return e.msg }

// Is сопоставляет ошибку с её классом.
func (e *KindError) Is(target error) bool { return target == e.kind }

// Kind возвращает класс ошибки.
func (e *KindError) Kind() error { return e.kind }

var (
	// Ошибка некорректного аргумента (например, отрицательное расстояние).
	ErrInvalidArgument = newKindError(ErrValidation, "invalid argument")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = newKindError(ErrValidation, "customer_id is required")
	// Ошибка отсутствующего идентификатора точки.
	ErrOutletRequired = newKindError(ErrValidation, "outlet_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = newKindError(ErrValidation, "order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = newKindError(ErrValidation, "item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = newKindError(ErrValidation, "item price must be non-negative")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = newKindError(ErrValidation, "total must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций с доставкой.
	ErrAmountMismatch = newKindError(ErrValidation, "order total does not match items and delivery fee")
	// Ошибка координат вне допустимого диапазона.
	ErrCoordinatesInvalid = newKindError(ErrValidation, "coordinates are out of range")
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = newKindError(ErrValidation, "delivery address is required")
	// Ошибка отсутствующего телефона клиента.
	ErrPhoneRequired = newKindError(ErrValidation, "phone is required")
	// ErrOutOfServiceArea — точка доставки дальше радиуса обслуживания выбранной точки.
	ErrOutOfServiceArea = newKindError(ErrValidation, "delivery point is outside outlet service radius")
	// ErrInvalidProduct — товар отсутствует, неактивен или принадлежит другой точке.
	ErrInvalidProduct = newKindError(ErrValidation, "invalid product")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = newKindError(ErrValidation, "order_id is required")
	// Ошибка неположительной суммы платежа.
	ErrPaymentAmountInvalid = newKindError(ErrValidation, "payment amount must be positive")
	// ErrReferralCycle — привязка реферера образует цикл.
	ErrReferralCycle = newKindError(ErrValidation, "referral link would create a cycle")
	// ErrCustomerAlreadyExists — клиент с таким телефоном уже зарегистрирован.
	ErrCustomerAlreadyExists = newKindError(ErrValidation, "customer with this phone already exists")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newKindError(ErrNotFound, "order not found")
	// ErrOutletNotFound возвращается, если точка не найдена или неактивна.
	ErrOutletNotFound = newKindError(ErrNotFound, "outlet not found")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = newKindError(ErrNotFound, "customer not found")
	// ErrReferralCodeNotFound — реферальный код никому не принадлежит.
	ErrReferralCodeNotFound = newKindError(ErrNotFound, "referral code not found")
	// ErrNoOutletAvailable — нет ни одной активной точки с активной геопозицией.
	ErrNoOutletAvailable = newKindError(ErrNotFound, "no outlet available")

	// ErrOrderExpired — окно оплаты заказа истекло.
	ErrOrderExpired = newKindError(ErrInvalidState, "order payment window expired")
	// ErrAlreadyInitiated — платёж по заказу уже инициирован.
	ErrAlreadyInitiated = newKindError(ErrInvalidState, "payment already initiated")
	// ErrOrderNotPending — операция требует заказ в статусе pending.
	ErrOrderNotPending = newKindError(ErrInvalidState, "order is not pending")
	// ErrTransitionNotAllowed — переход статуса не предусмотрен автоматом.
	ErrTransitionNotAllowed = newKindError(ErrInvalidState, "status transition not allowed")
	// ErrReferrerAlreadySet — реферер клиента уже установлен и не меняется.
	ErrReferrerAlreadySet = newKindError(ErrInvalidState, "referrer already set")

	// ErrOrderVersionConflict сигнализирует о конфликте при сохранении.
	ErrOrderVersionConflict = newKindError(ErrInternal, "order version conflict")
	// ErrReferralCodeTaken — сгенерированный код уже занят, нужна повторная генерация.
	ErrReferralCodeTaken = newKindError(ErrInternal, "referral code already taken")
	// ErrPaymentReferenceTaken — ссылка провайдера уже привязана к другому заказу.
	ErrPaymentReferenceTaken = newKindError(ErrInternal, "payment reference already attached to another order")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = newKindError(ErrInternal, "outbox publish failed")
)

// Ошибки idempotency-хранилища.
var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// NewProviderError оборачивает описание сбоя провайдера в ErrProviderError.
func NewProviderError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProviderError, fmt.Sprintf(format, args...))
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

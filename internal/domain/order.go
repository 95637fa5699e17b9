package domain

import "time"

// OrderStatus описывает жизненный цикл заказа точки.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ передан в работу оператором.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusPaid — оплата подтверждена платёжным провайдером.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCompleted — заказ выполнен.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — провайдер отклонил или отменил платёж.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusExpired — окно оплаты истекло до инициации платежа.
	OrderStatusExpired OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusExpired,
		OrderStatusCancelled,
		OrderStatusProcessing,
		OrderStatusCompleted,
		OrderStatusPaid,
	},
	OrderStatusProcessing: {OrderStatusCompleted},
}

// Valid проверяет, что статус относится к известным значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusPaid,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// IsSuccessful сообщает, что заказ завершился успешно (основание для реферального бонуса).
func (s OrderStatus) IsSuccessful() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted
}

// CanTransition проверяет переход по таблице статусов.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedSources возвращает статусы, из которых допустим переход в to.
func AllowedSources(to OrderStatus) []OrderStatus {
	var sources []OrderStatus
	for _, from := range []OrderStatus{OrderStatusPending, OrderStatusProcessing} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// ItemRequest — позиция, запрошенная клиентом. Цена берётся только из каталога.
type ItemRequest struct {
	ProductID int64
	Qty       int32
}

// OrderItem представляет одну позицию заказа с зафиксированной ценой.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      int64
	ProductName    string
	Qty            int32
	UnitPriceMinor int64
	SubtotalMinor  int64
}

// OrderDelivery хранит параметры доставки заказа.
type OrderDelivery struct {
	OrderID    string
	Point      GeoPoint
	Address    string
	DistanceKm float64
	FeeMinor   int64
}

// Order агрегирует состояние заказа, его позиции и доставку.
type Order struct {
	ID               string
	OutletID         int64
	CustomerID       int64
	Items            []OrderItem
	Delivery         OrderDelivery
	TotalMinor       int64
	Status           OrderStatus
	PaymentReference string
	PaymentURL       string
	ReferralRewarded bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ItemsTotal возвращает сумму позиций без доставки.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.SubtotalMinor
	}
	return total
}

// PaymentInitiated сообщает, что у заказа уже есть ссылка на платёж.
func (o *Order) PaymentInitiated() bool {
	return o.PaymentReference != ""
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.OutletID <= 0 {
		errs = append(errs, ErrOutletRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.SubtotalMinor != int64(item.Qty)*item.UnitPriceMinor {
			errs = append(errs, ErrAmountMismatch)
		}
		calc += item.SubtotalMinor
	}
	if calc+o.Delivery.FeeMinor != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

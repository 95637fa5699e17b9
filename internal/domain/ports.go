package domain

import (
	"context"
	"time"
)

// OutletRepository читает точки продаж.
type OutletRepository interface {
	// ListActiveWithLocation возвращает активные точки с активной геопозицией.
	ListActiveWithLocation(ctx context.Context) ([]Outlet, error)
	Get(ctx context.Context, id int64) (Outlet, error)
}

// ProductReader читает каталог товаров.
type ProductReader interface {
	// ProductsForOutlet возвращает товары точки с указанными id (активные и неактивные).
	// Отсутствующих в результате id у точки нет.
	ProductsForOutlet(ctx context.Context, outletID int64, ids []int64) (map[int64]Product, error)
}

// CustomerRepository хранит клиентов и реферальные связи.
type CustomerRepository interface {
	// Create сохраняет клиента и присваивает ID.
	Create(ctx context.Context, customer Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	GetByPhone(ctx context.Context, phone string) (Customer, error)
	GetByReferralCode(ctx context.Context, code string) (Customer, error)
	// SetReferrer проставляет реферера, только если он ещё не задан.
	SetReferrer(ctx context.Context, id, referrerID int64) (bool, error)
	IncrementReferralCount(ctx context.Context, id int64) error
}

// OrderRepository описывает хранилище заказов с позициями и доставкой.
type OrderRepository interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	// GetByPaymentReference внутри транзакции блокирует строку заказа.
	GetByPaymentReference(ctx context.Context, ref string) (Order, error)
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]Order, error)
	// AttachPaymentReference сохраняет ссылку на платёж, если она ещё не задана
	// и заказ в статусе pending.
	AttachPaymentReference(ctx context.Context, id, ref, url string, at time.Time) (bool, error)
	// TransitionStatus переводит заказ в to, только если текущий статус входит в from.
	TransitionStatus(ctx context.Context, id string, from []OrderStatus, to OrderStatus, at time.Time) (bool, error)
	// MarkReferralRewarded переключает флаг false -> true; false, если уже был выставлен.
	MarkReferralRewarded(ctx context.Context, id string, at time.Time) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	// Release удаляет запись, чтобы запрос с тем же ключом можно было повторить.
	Release(ctx context.Context, key string) error
	// DeleteExpired удаляет до limit записей с ttl <= before.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Store объединяет репозитории одной единицы работы.
type Store interface {
	Outlets() OutletRepository
	Products() ProductReader
	Customers() CustomerRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// TxManager выполняет fn в одной транзакции. Ошибка fn откатывает все изменения.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Типы событий outbox.
const (
	EventOrderCreated     = "order.created"
	EventOrderPaid        = "order.paid"
	EventOrderCancelled   = "order.cancelled"
	EventOrderExpired     = "order.expired"
	EventOrderProcessing  = "order.processing"
	EventOrderCompleted   = "order.completed"
	EventReferralRewarded = "referral.rewarded"

	AggregateOrder    = "order"
	AggregateCustomer = "customer"
)

// StatusEventType возвращает тип outbox-события для перехода в статус.
func StatusEventType(status OrderStatus) string {
	return "order." + string(status)
}

// OutboxStatus описывает состояние записи outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

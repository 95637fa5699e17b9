package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository.
type orderRepository struct {
	v view
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return domain.ErrOrderVersionConflict
		}
		if order.PaymentReference != "" {
			if _, taken := findByReference(st, order.PaymentReference); taken {
				return domain.ErrPaymentReferenceTaken
			}
		}
		// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
		st.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.v.read(func(st *state) error {
		stored, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

// GetByPaymentReference ищет заказ по идентификатору транзакции провайдера.
func (r orderRepository) GetByPaymentReference(_ context.Context, ref string) (domain.Order, error) {
	var order domain.Order
	err := r.v.read(func(st *state) error {
		stored, ok := findByReference(st, ref)
		if !ok || ref == "" {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r orderRepository) ListByCustomer(_ context.Context, customerID int64, limit int) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	err := r.v.read(func(st *state) error {
		for _, order := range st.orders {
			if order.CustomerID != customerID {
				continue
			}
			result = append(result, cloneOrder(order))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AttachPaymentReference записывает ссылку на платёж, если её ещё нет и заказ pending.
func (r orderRepository) AttachPaymentReference(_ context.Context, id, ref, url string, at time.Time) (bool, error) {
	attached := false
	err := r.v.write(func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if order.PaymentReference != "" || order.Status != domain.OrderStatusPending {
			return nil
		}
		if other, taken := findByReference(st, ref); taken && other.ID != id {
			return domain.ErrPaymentReferenceTaken
		}

		order.PaymentReference = ref
		order.PaymentURL = url
		order.Version++
		order.UpdatedAt = at
		st.orders[id] = order
		attached = true
		return nil
	})
	return attached, err
}

// TransitionStatus переводит заказ в to, если текущий статус входит в from.
func (r orderRepository) TransitionStatus(_ context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus, at time.Time) (bool, error) {
	changed := false
	err := r.v.write(func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if !slices.Contains(from, order.Status) {
			return nil
		}

		order.Status = to
		order.Version++
		order.UpdatedAt = at
		st.orders[id] = order
		changed = true
		return nil
	})
	return changed, err
}

// MarkReferralRewarded выставляет флаг начисления бонуса, если он ещё не выставлен.
func (r orderRepository) MarkReferralRewarded(_ context.Context, id string, at time.Time) (bool, error) {
	marked := false
	err := r.v.write(func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if order.ReferralRewarded {
			return nil
		}

		order.ReferralRewarded = true
		order.Version++
		order.UpdatedAt = at
		st.orders[id] = order
		marked = true
		return nil
	})
	return marked, err
}

func findByReference(st *state, ref string) (domain.Order, bool) {
	if ref == "" {
		return domain.Order{}, false
	}
	for _, order := range st.orders {
		if order.PaymentReference == ref {
			return order, true
		}
	}
	return domain.Order{}, false
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = orderRepository{}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

type orderRepository struct {
	q       querier
	locking bool
}

const orderColumns = `
	o.id, o.outlet_id, o.customer_id, o.total_minor, o.status,
	COALESCE(o.payment_reference, ''), o.payment_url, o.referral_rewarded,
	o.version, o.created_at, o.updated_at,
	d.lat, d.lng, d.address, d.distance_km, d.fee_minor
`

// Create сохраняет заказ, позиции и доставку. Вызывается внутри транзакции.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, outlet_id, customer_id, total_minor, status, payment_reference, payment_url,
			referral_rewarded, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),$7,$8,$9,$10,$11)
	`,
		order.ID, order.OutletID, order.CustomerID, order.TotalMinor, string(order.Status),
		order.PaymentReference, order.PaymentURL, order.ReferralRewarded, order.Version,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		switch uniqueConstraint(err) {
		case "orders_pkey":
			return domain.ErrOrderVersionConflict
		case "orders_payment_reference_key":
			return domain.ErrPaymentReferenceTaken
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, product_name, qty, unit_price_minor, subtotal_minor
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, i, item.ProductID, item.ProductName, item.Qty,
			item.UnitPriceMinor, item.SubtotalMinor,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	d := order.Delivery
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO order_deliveries (order_id, lat, lng, address, distance_km, fee_minor)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, order.ID, d.Point.Lat, d.Point.Lng, d.Address, d.DistanceKm, d.FeeMinor); err != nil {
		return fmt.Errorf("insert order delivery: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getBy(ctx, "o.id = $1", id)
}

// GetByPaymentReference внутри транзакции блокирует строку заказа до её завершения.
func (r *orderRepository) GetByPaymentReference(ctx context.Context, ref string) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.getBy(ctx, "o.payment_reference = $1", ref)
}

func (r *orderRepository) getBy(ctx context.Context, where string, arg any) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		JOIN order_deliveries d ON d.order_id = o.id
		WHERE ` + where
	if r.locking {
		query += ` FOR UPDATE OF o`
	}

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		JOIN order_deliveries d ON d.order_id = o.id
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC, o.id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	// Позиции читаем после закрытия курсора: внутри транзакции соединение одно.
	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// AttachPaymentReference записывает ссылку на платёж, если её ещё нет и заказ pending.
func (r *orderRepository) AttachPaymentReference(ctx context.Context, id, ref, url string, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET payment_reference = $2,
		    payment_url = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $1
		  AND payment_reference IS NULL
		  AND status = $5
	`, id, ref, url, at, string(domain.OrderStatusPending))
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrPaymentReferenceTaken
		}
		return false, fmt.Errorf("attach payment reference: %w", err)
	}

	return r.affectedOrMissing(ctx, res, id)
}

// TransitionStatus переводит заказ в to, если текущий статус входит в from.
func (r *orderRepository) TransitionStatus(ctx context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sources := make([]string, 0, len(from))
	for _, status := range from {
		sources = append(sources, string(status))
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
		  AND status = ANY($4)
	`, id, string(to), at, sources)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}

	return r.affectedOrMissing(ctx, res, id)
}

// MarkReferralRewarded выставляет флаг начисления бонуса, если он ещё не выставлен.
func (r *orderRepository) MarkReferralRewarded(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET referral_rewarded = TRUE,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $1
		  AND referral_rewarded = FALSE
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark referral rewarded: %w", err)
	}

	return r.affectedOrMissing(ctx, res, id)
}

// affectedOrMissing отличает невыполненное условие от отсутствующего заказа.
func (r *orderRepository) affectedOrMissing(ctx context.Context, res sql.Result, id string) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	exists, err := r.orderExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrOrderNotFound
	}
	return false, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, qty, unit_price_minor, subtotal_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Qty, &item.UnitPriceMinor, &item.SubtotalMinor,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.OutletID, &order.CustomerID, &order.TotalMinor, &status,
		&order.PaymentReference, &order.PaymentURL, &order.ReferralRewarded,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
		&order.Delivery.Point.Lat, &order.Delivery.Point.Lng, &order.Delivery.Address,
		&order.Delivery.DistanceKm, &order.Delivery.FeeMinor,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.Delivery.OrderID = order.ID
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)

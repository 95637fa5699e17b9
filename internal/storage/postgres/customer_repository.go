package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

type customerRepository struct {
	q       querier
	locking bool
}

const customerColumns = `id, phone, name, referral_code, referrer_id, referral_count, created_at`

// Create сохраняет клиента. Нарушение уникальности телефона или кода
// возвращается как ErrCustomerAlreadyExists или ErrReferralCodeTaken.
func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO customers (phone, name, referral_code, referrer_id, referral_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`,
		customer.Phone, customer.Name, customer.ReferralCode,
		nullableInt64(customer.ReferrerID), customer.ReferralCount, customer.CreatedAt,
	).Scan(&customer.ID)
	if err != nil {
		switch uniqueConstraint(err) {
		case "customers_phone_key":
			return domain.Customer{}, domain.ErrCustomerAlreadyExists
		case "customers_referral_code_key":
			return domain.Customer{}, domain.ErrReferralCodeTaken
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	return customer, nil
}

func (r *customerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *customerRepository) GetByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	return r.getBy(ctx, "phone = $1", phone)
}

func (r *customerRepository) GetByReferralCode(ctx context.Context, code string) (domain.Customer, error) {
	customer, err := r.getBy(ctx, "referral_code = $1", code)
	if errors.Is(err, domain.ErrCustomerNotFound) {
		return domain.Customer{}, domain.ErrReferralCodeNotFound
	}
	return customer, err
}

func (r *customerRepository) getBy(ctx context.Context, where string, arg any) (domain.Customer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + customerColumns + ` FROM customers WHERE ` + where
	if r.locking {
		query += ` FOR UPDATE`
	}

	var (
		customer   domain.Customer
		referrerID sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&customer.ID, &customer.Phone, &customer.Name, &customer.ReferralCode,
		&referrerID, &customer.ReferralCount, &customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	if referrerID.Valid {
		id := referrerID.Int64
		customer.ReferrerID = &id
	}

	return customer, nil
}

// SetReferrer проставляет реферера, только если он ещё не задан.
func (r *customerRepository) SetReferrer(ctx context.Context, id, referrerID int64) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE customers
		SET referrer_id = $2
		WHERE id = $1 AND referrer_id IS NULL
	`, id, referrerID)
	if err != nil {
		return false, fmt.Errorf("set referrer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *customerRepository) IncrementReferralCount(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE customers SET referral_count = referral_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment referral count: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

var _ domain.CustomerRepository = (*customerRepository)(nil)

package memory

import (
	"context"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

type customerRepository struct {
	v view
}

// Create сохраняет клиента, проверяя уникальность телефона и реферального кода.
func (r customerRepository) Create(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	err := r.v.write(func(st *state) error {
		for _, existing := range st.customers {
			if existing.Phone == customer.Phone {
				return domain.ErrCustomerAlreadyExists
			}
			if existing.ReferralCode == customer.ReferralCode {
				return domain.ErrReferralCodeTaken
			}
		}

		st.customerSeq++
		customer.ID = st.customerSeq
		if customer.CreatedAt.IsZero() {
			customer.CreatedAt = time.Now().UTC()
		}
		st.customers[customer.ID] = cloneCustomer(customer)
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// Get возвращает клиента или ErrCustomerNotFound.
func (r customerRepository) Get(_ context.Context, id int64) (domain.Customer, error) {
	return r.find(func(c domain.Customer) bool { return c.ID == id }, domain.ErrCustomerNotFound)
}

func (r customerRepository) GetByPhone(_ context.Context, phone string) (domain.Customer, error) {
	return r.find(func(c domain.Customer) bool { return c.Phone == phone }, domain.ErrCustomerNotFound)
}

func (r customerRepository) GetByReferralCode(_ context.Context, code string) (domain.Customer, error) {
	return r.find(func(c domain.Customer) bool { return c.ReferralCode == code }, domain.ErrReferralCodeNotFound)
}

// SetReferrer проставляет реферера только клиенту без реферера.
func (r customerRepository) SetReferrer(_ context.Context, id, referrerID int64) (bool, error) {
	updated := false
	err := r.v.write(func(st *state) error {
		customer, ok := st.customers[id]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		if customer.HasReferrer() {
			return nil
		}
		ref := referrerID
		customer.ReferrerID = &ref
		st.customers[id] = customer
		updated = true
		return nil
	})
	return updated, err
}

// IncrementReferralCount увеличивает счётчик приглашённых на единицу.
func (r customerRepository) IncrementReferralCount(_ context.Context, id int64) error {
	return r.v.write(func(st *state) error {
		customer, ok := st.customers[id]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		customer.ReferralCount++
		st.customers[id] = customer
		return nil
	})
}

func (r customerRepository) find(match func(domain.Customer) bool, notFound error) (domain.Customer, error) {
	var found domain.Customer
	err := r.v.read(func(st *state) error {
		for _, customer := range st.customers {
			if match(customer) {
				found = cloneCustomer(customer)
				return nil
			}
		}
		return notFound
	})
	return found, err
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dst := src
	if src.ReferrerID != nil {
		id := *src.ReferrerID
		dst.ReferrerID = &id
	}
	return dst
}

var _ domain.CustomerRepository = customerRepository{}

package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

const (
	referralCodeLength   = 8
	maxCodeAttempts      = 5
	maxReferrerChainWalk = 1000
)

// Registrar регистрирует клиентов и связывает их с реферерами.
type Registrar struct {
	tx      domain.TxManager
	logger  *log.Entry
	newCode func() string
}

// NewRegistrar создаёт Registrar.
func NewRegistrar(tx domain.TxManager, logger *log.Entry) *Registrar {
	if logger == nil {
		logger = log.WithField("component", "referral-registrar")
	}
	return &Registrar{tx: tx, logger: logger, newCode: GenerateCode}
}

// GenerateCode возвращает случайный 8-символьный код в верхнем регистре.
func GenerateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:referralCodeLength])
}

// Register создаёт клиента с новым реферальным кодом. Если передан referrerCode,
// клиент сразу привязывается к владельцу кода.
func (r *Registrar) Register(ctx context.Context, phone, name, referrerCode string) (domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Customer{}, domain.ErrPhoneRequired
	}
	referrerCode = strings.ToUpper(strings.TrimSpace(referrerCode))

	var created domain.Customer
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		err := r.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
			candidate := domain.Customer{
				Phone:        phone,
				Name:         strings.TrimSpace(name),
				ReferralCode: r.newCode(),
			}
			if referrerCode != "" {
				referrer, err := tx.Customers().GetByReferralCode(ctx, referrerCode)
				if err != nil {
					return err
				}
				referrerID := referrer.ID
				candidate.ReferrerID = &referrerID
			}

			customer, err := tx.Customers().Create(ctx, candidate)
			if err != nil {
				return err
			}
			created = customer
			return nil
		})
		if errors.Is(err, domain.ErrReferralCodeTaken) {
			r.logger.WithField("attempt", attempt).Warn("referral code collision, regenerating")
			continue
		}
		if err != nil {
			return domain.Customer{}, err
		}

		r.logger.WithFields(log.Fields{
			"customer_id":  created.ID,
			"has_referrer": created.HasReferrer(),
		}).Info("customer registered")
		return created, nil
	}

	return domain.Customer{}, fmt.Errorf("generate referral code after %d attempts: %w", maxCodeAttempts, domain.ErrReferralCodeTaken)
}

// AttachReferrer привязывает клиента без реферера к владельцу кода.
// Связь, при которой клиент стал бы собственным предком, отклоняется.
func (r *Registrar) AttachReferrer(ctx context.Context, customerID int64, referrerCode string) (domain.Customer, error) {
	referrerCode = strings.ToUpper(strings.TrimSpace(referrerCode))
	if referrerCode == "" {
		return domain.Customer{}, domain.ErrReferralCodeNotFound
	}

	var updated domain.Customer
	err := r.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		customers := tx.Customers()

		customer, err := customers.Get(ctx, customerID)
		if err != nil {
			return err
		}
		if customer.HasReferrer() {
			return domain.ErrReferrerAlreadySet
		}

		referrer, err := customers.GetByReferralCode(ctx, referrerCode)
		if err != nil {
			return err
		}
		if err := ensureNoCycle(ctx, customers, customer.ID, referrer); err != nil {
			return err
		}

		ok, err := customers.SetReferrer(ctx, customer.ID, referrer.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrReferrerAlreadySet
		}

		updated, err = customers.Get(ctx, customer.ID)
		return err
	})
	if err != nil {
		return domain.Customer{}, err
	}

	r.logger.WithFields(log.Fields{
		"customer_id": updated.ID,
		"referrer_id": *updated.ReferrerID,
	}).Info("referrer attached")
	return updated, nil
}

// ensureNoCycle поднимается по цепочке рефереров от referrer и проверяет,
// что customerID в ней не встречается.
func ensureNoCycle(ctx context.Context, customers domain.CustomerRepository, customerID int64, referrer domain.Customer) error {
	current := referrer
	for step := 0; step < maxReferrerChainWalk; step++ {
		if current.ID == customerID {
			return domain.ErrReferralCycle
		}
		if !current.HasReferrer() {
			return nil
		}
		next, err := customers.Get(ctx, *current.ReferrerID)
		if err != nil {
			return fmt.Errorf("walk referrer chain: %w", err)
		}
		current = next
	}
	return domain.ErrReferralCycle
}

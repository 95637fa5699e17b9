package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/service/pricing"
	"github.com/feistyindonesia-code/webapp/internal/service/referral"
	"github.com/feistyindonesia-code/webapp/internal/storage/memory"
)

type LedgerSuite struct {
	suite.Suite

	ctx      context.Context
	store    *memory.Store
	ledger   *Ledger
	referrer domain.Customer
	customer domain.Customer
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.store.PutOutlet(domain.Outlet{
		ID:              1,
		Name:            "Outlet Palopo",
		Active:          true,
		Location:        &domain.GeoPoint{Lat: -2.5833, Lng: 120.3667},
		ServiceRadiusKm: 20,
		FreeRadiusKm:    3,
		FeePerKm:        2000,
	})
	s.store.PutProduct(domain.Product{ID: 1, OutletID: 1, Name: "Nasi Goreng", PriceMinor: 15000, Active: true})
	s.store.PutProduct(domain.Product{ID: 2, OutletID: 1, Name: "Ayam Bakar", PriceMinor: 25000, Active: true})
	s.store.PutProduct(domain.Product{ID: 3, OutletID: 1, Name: "Es Campur", PriceMinor: 9000, Active: false})

	var err error
	s.referrer, err = s.store.Customers().Create(s.ctx, domain.Customer{Phone: "+6281100", Name: "B", ReferralCode: "REFB0001"})
	s.Require().NoError(err)
	referrerID := s.referrer.ID
	s.customer, err = s.store.Customers().Create(s.ctx, domain.Customer{Phone: "+6281101", Name: "A", ReferralCode: "REFA0001", ReferrerID: &referrerID})
	s.Require().NoError(err)

	s.ledger = New(s.store, s.store, pricing.NewPricer(), referral.NewRewarder(nil, nil), Config{}, nil, nil)
}

func (s *LedgerSuite) newOrder() NewOrder {
	return NewOrder{
		OutletID:   1,
		CustomerID: s.customer.ID,
		Items: []domain.ItemRequest{
			{ProductID: 1, Qty: 2},
			{ProductID: 2, Qty: 1},
		},
		Delivery: domain.OrderDelivery{
			Point:      domain.GeoPoint{Lat: -2.5833, Lng: 120.4387},
			Address:    " Jl. Andi Djemma 10 ",
			DistanceKm: 8,
			FeeMinor:   10000,
		},
	}
}

func (s *LedgerSuite) create() domain.Order {
	order, err := s.ledger.CreateOrder(s.ctx, s.newOrder())
	s.Require().NoError(err)
	return order
}

func (s *LedgerSuite) pendingEvents() []string {
	msgs, err := s.store.Outbox().PullPending(s.ctx, 100)
	s.Require().NoError(err)
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.EventType)
	}
	return types
}

func (s *LedgerSuite) TestCreateOrder_DerivesTotal() {
	order := s.create()

	s.Equal(int64(65000), order.TotalMinor)
	s.Equal(int64(55000), order.ItemsTotal())
	s.Equal(domain.OrderStatusPending, order.Status)
	s.Equal("Jl. Andi Djemma 10", order.Delivery.Address)
	s.Equal(order.ID, order.Delivery.OrderID)
	s.Len(order.Items, 2)
	for _, item := range order.Items {
		s.Equal(order.ID, item.OrderID)
		s.NotEmpty(item.ID)
	}

	stored, err := s.store.Orders().Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(65000), stored.TotalMinor)
	s.Empty(stored.ValidateInvariants())

	s.Equal([]string{domain.EventOrderCreated}, s.pendingEvents())

	timeline, err := s.ledger.Timeline(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(timeline, 1)
	s.Equal(domain.TimelineOrderCreated, timeline[0].Type)
}

func (s *LedgerSuite) TestCreateOrder_InactiveProductPersistsNothing() {
	req := s.newOrder()
	req.Items = append(req.Items, domain.ItemRequest{ProductID: 3, Qty: 1})

	_, err := s.ledger.CreateOrder(s.ctx, req)
	s.Require().ErrorIs(err, domain.ErrInvalidProduct)

	orders, err := s.ledger.ListByCustomer(s.ctx, s.customer.ID, 10)
	s.Require().NoError(err)
	s.Empty(orders)
	s.Empty(s.pendingEvents())
}

func (s *LedgerSuite) TestCreateOrder_Validation() {
	cases := []struct {
		name string
		mut  func(*NewOrder)
		want error
	}{
		{name: "unknown customer", mut: func(r *NewOrder) { r.CustomerID = 404 }, want: domain.ErrCustomerNotFound},
		{name: "no customer", mut: func(r *NewOrder) { r.CustomerID = 0 }, want: domain.ErrCustomerRequired},
		{name: "no outlet", mut: func(r *NewOrder) { r.OutletID = 0 }, want: domain.ErrOutletRequired},
		{name: "no address", mut: func(r *NewOrder) { r.Delivery.Address = "  " }, want: domain.ErrAddressRequired},
		{name: "bad point", mut: func(r *NewOrder) { r.Delivery.Point.Lat = 95 }, want: domain.ErrCoordinatesInvalid},
		{name: "negative fee", mut: func(r *NewOrder) { r.Delivery.FeeMinor = -1 }, want: domain.ErrInvalidArgument},
		{name: "no items", mut: func(r *NewOrder) { r.Items = nil }, want: domain.ErrItemsRequired},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := s.newOrder()
			tc.mut(&req)
			_, err := s.ledger.CreateOrder(s.ctx, req)
			s.Require().ErrorIs(err, tc.want)
		})
	}
}

func (s *LedgerSuite) TestEnsurePayable() {
	order := s.create()

	payable, err := s.ledger.EnsurePayable(s.ctx, order.ID, order.CreatedAt.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(order.ID, payable.ID)

	// Ровно на границе окна заказ ещё можно оплатить.
	_, err = s.ledger.EnsurePayable(s.ctx, order.ID, order.CreatedAt.Add(DefaultPaymentExpiry))
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.AttachPaymentReference(s.ctx, order.ID, "T-1", "https://pay.example/T-1"))
	_, err = s.ledger.EnsurePayable(s.ctx, order.ID, order.CreatedAt.Add(time.Minute))
	s.Require().ErrorIs(err, domain.ErrAlreadyInitiated)
	s.Require().ErrorIs(err, domain.ErrInvalidState)

	_, err = s.ledger.EnsurePayable(s.ctx, "missing", time.Now())
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *LedgerSuite) TestEnsurePayable_ExpiresLazily() {
	order := s.create()

	_, err := s.ledger.EnsurePayable(s.ctx, order.ID, order.CreatedAt.Add(16*time.Minute))
	s.Require().ErrorIs(err, domain.ErrOrderExpired)

	stored, err := s.ledger.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusExpired, stored.Status)
	s.Equal([]string{domain.EventOrderCreated, domain.EventOrderExpired}, s.pendingEvents())

	_, err = s.ledger.EnsurePayable(s.ctx, order.ID, order.CreatedAt.Add(time.Minute))
	s.Require().ErrorIs(err, domain.ErrInvalidState)
	s.Require().ErrorIs(err, domain.ErrOrderNotPending)
}

func (s *LedgerSuite) TestAttachPaymentReference_Once() {
	order := s.create()

	s.Require().NoError(s.ledger.AttachPaymentReference(s.ctx, order.ID, "T-1", "https://pay.example/T-1"))
	err := s.ledger.AttachPaymentReference(s.ctx, order.ID, "T-2", "https://pay.example/T-2")
	s.Require().ErrorIs(err, domain.ErrAlreadyInitiated)

	stored, err := s.ledger.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("T-1", stored.PaymentReference)

	s.Require().ErrorIs(s.ledger.AttachPaymentReference(s.ctx, order.ID, " ", ""), domain.ErrInvalidArgument)
	s.Require().ErrorIs(s.ledger.AttachPaymentReference(s.ctx, "missing", "T-9", ""), domain.ErrOrderNotFound)
}

func (s *LedgerSuite) TestAttachPaymentReference_OrderNotPending() {
	order := s.create()
	_, err := s.ledger.MarkProcessing(s.ctx, order.ID)
	s.Require().NoError(err)

	err = s.ledger.AttachPaymentReference(s.ctx, order.ID, "T-1", "https://pay.example/T-1")
	s.Require().ErrorIs(err, domain.ErrOrderNotPending)
	s.Require().NotErrorIs(err, domain.ErrAlreadyInitiated)

	stored, err := s.ledger.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Empty(stored.PaymentReference)
}

func (s *LedgerSuite) TestEnsurePayable_InitiatedOrderDoesNotExpire() {
	order := s.create()
	s.Require().NoError(s.ledger.AttachPaymentReference(s.ctx, order.ID, "T-1", "https://pay.example/T-1"))

	_, err := s.ledger.EnsurePayable(s.ctx, order.ID, order.CreatedAt.Add(DefaultPaymentExpiry+time.Minute))
	s.Require().ErrorIs(err, domain.ErrAlreadyInitiated)

	stored, err := s.ledger.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPending, stored.Status)
	s.Equal([]string{domain.EventOrderCreated}, s.pendingEvents())
}

func (s *LedgerSuite) TestApplyTransition_PaidRewardsReferrerOnce() {
	order := s.create()

	apply := func(o domain.Order, to domain.OrderStatus) bool {
		var changed bool
		err := s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Store) error {
			var err error
			changed, err = s.ledger.ApplyTransition(ctx, tx, o, to, "test")
			return err
		})
		s.Require().NoError(err)
		return changed
	}

	s.True(apply(order, domain.OrderStatusPaid))
	// Устаревший снимок заказа: условное обновление не сработает.
	s.False(apply(order, domain.OrderStatusPaid))

	paid, err := s.ledger.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.False(apply(paid, domain.OrderStatusCancelled), "terminal order must not change")

	stored, err := s.ledger.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaid, stored.Status)
	s.True(stored.ReferralRewarded)

	referrer, err := s.store.Customers().Get(s.ctx, s.referrer.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), referrer.ReferralCount)

	s.Equal([]string{domain.EventOrderCreated, domain.EventOrderPaid, domain.EventReferralRewarded}, s.pendingEvents())
}

func (s *LedgerSuite) TestApplyTransition_RejectsUnknownEdge() {
	order := s.create()
	order.Status = domain.OrderStatusProcessing

	err := s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Store) error {
		_, err := s.ledger.ApplyTransition(ctx, tx, order, domain.OrderStatusPaid, "test")
		return err
	})
	s.Require().ErrorIs(err, domain.ErrTransitionNotAllowed)
}

func (s *LedgerSuite) TestOperatorTransitions() {
	order := s.create()

	processing, err := s.ledger.MarkProcessing(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusProcessing, processing.Status)

	again, err := s.ledger.MarkProcessing(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(processing.Version, again.Version)

	completed, err := s.ledger.Complete(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCompleted, completed.Status)
	s.True(completed.ReferralRewarded)

	// Повторное завершение идемпотентно и не начисляет бонус второй раз.
	_, err = s.ledger.Complete(s.ctx, order.ID)
	s.Require().NoError(err)

	referrer, err := s.store.Customers().Get(s.ctx, s.referrer.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), referrer.ReferralCount)

	_, err = s.ledger.MarkProcessing(s.ctx, "missing")
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *LedgerSuite) TestListByCustomer() {
	s.create()
	s.create()
	s.create()

	orders, err := s.ledger.ListByCustomer(s.ctx, s.customer.ID, 2)
	s.Require().NoError(err)
	s.Len(orders, 2)

	all, err := s.ledger.ListByCustomer(s.ctx, s.customer.ID, 0)
	s.Require().NoError(err)
	s.Len(all, 3)

	_, err = s.ledger.ListByCustomer(s.ctx, 0, 10)
	s.Require().ErrorIs(err, domain.ErrCustomerRequired)
}

func TestNewDefaults(t *testing.T) {
	store := memory.NewStore()
	l := New(store, store, nil, nil, Config{}, nil, nil)

	require.Equal(t, DefaultPaymentExpiry, l.expiry)
	require.NotNil(t, l.pricer)
	require.NotNil(t, l.logger)
}

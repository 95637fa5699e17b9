package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/geo"
	"github.com/feistyindonesia-code/webapp/internal/service/ledger"
	"github.com/feistyindonesia-code/webapp/internal/service/payment"
	"github.com/feistyindonesia-code/webapp/internal/service/pricing"
	"github.com/feistyindonesia-code/webapp/internal/service/referral"
	"github.com/feistyindonesia-code/webapp/internal/service/webhook"
	"github.com/feistyindonesia-code/webapp/internal/storage/memory"
)

var customerPoint = domain.GeoPoint{Lat: -2.5833, Lng: 120.4387}

type CheckoutSuite struct {
	suite.Suite

	ctx      context.Context
	store    *memory.Store
	gateway  *payment.MockGateway
	service  *Service
	referrer domain.Customer
	customer domain.Customer
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}

func (s *CheckoutSuite) SetupTest() {
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
	s.store.PutOutlet(domain.Outlet{
		ID:              2,
		Name:            "Outlet Timur",
		Active:          true,
		Location:        &domain.GeoPoint{Lat: -2.5833, Lng: 120.5667},
		ServiceRadiusKm: 10,
		FreeRadiusKm:    3,
		FeePerKm:        2000,
	})
	s.store.PutProduct(domain.Product{ID: 1, OutletID: 1, Name: "Nasi Goreng", PriceMinor: 15000, Active: true})
	s.store.PutProduct(domain.Product{ID: 2, OutletID: 1, Name: "Ayam Bakar", PriceMinor: 25000, Active: true})
	s.store.PutProduct(domain.Product{ID: 3, OutletID: 2, Name: "Sop Konro", PriceMinor: 30000, Active: true})

	registrar := referral.NewRegistrar(s.store, nil)
	l := ledger.New(s.store, s.store, pricing.NewPricer(), referral.NewRewarder(nil, nil), ledger.Config{}, nil, nil)
	s.gateway = payment.NewMockGateway()

	var err error
	s.service, err = NewService(Deps{
		Store:     s.store,
		Matcher:   geo.NewMatcher(s.store.Outlets(), nil, nil),
		Ledger:    l,
		Gateway:   s.gateway,
		Webhooks:  webhook.NewProcessor(s.store, l, nil, nil),
		Registrar: registrar,
	}, Config{
		CallbackURL: "https://shop.test/api/v1/payments/callback",
		ReturnURL:   "https://shop.test/orders/",
	})
	s.Require().NoError(err)

	s.referrer, err = s.service.RegisterCustomer(s.ctx, "+6281100", "Budi", "")
	s.Require().NoError(err)
	s.customer, err = s.service.RegisterCustomer(s.ctx, "+6281101", "Ani", s.referrer.ReferralCode)
	s.Require().NoError(err)
}

func (s *CheckoutSuite) orderRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID: s.customer.ID,
		Items: []domain.ItemRequest{
			{ProductID: 1, Qty: 2},
			{ProductID: 2, Qty: 1},
		},
		Point:   customerPoint,
		Address: "Jl. Andi Djemma 10",
	}
}

func (s *CheckoutSuite) TestNewServiceRequiresDeps() {
	_, err := NewService(Deps{}, Config{})
	s.Error(err)
}

func (s *CheckoutSuite) TestFindNearestAndList() {
	nearest, err := s.service.FindNearestOutlet(s.ctx, customerPoint)
	s.Require().NoError(err)
	s.Equal(int64(1), nearest.Outlet.ID)
	s.InDelta(8.0, nearest.DistanceKm, 0.001)
	s.True(nearest.CanDeliver)

	all, err := s.service.ListAvailableOutlets(s.ctx, customerPoint)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(int64(2), all[1].Outlet.ID)
	s.False(all[1].CanDeliver)

	quote, err := s.service.QuoteDelivery(s.ctx, 1, customerPoint)
	s.Require().NoError(err)
	s.Equal(int64(10000), quote.FeeMinor)

	_, err = s.service.QuoteDelivery(s.ctx, 0, customerPoint)
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *CheckoutSuite) TestEndToEndPaidOrder() {
	order, err := s.service.CreateOrder(s.ctx, s.orderRequest())
	s.Require().NoError(err)
	s.Equal(int64(1), order.OutletID)
	s.Equal(int64(55000), order.ItemsTotal())
	s.Equal(int64(10000), order.Delivery.FeeMinor)
	s.Equal(int64(65000), order.TotalMinor)

	paid, err := s.service.CreatePayment(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(65000), paid.AmountMinor)
	s.NotEmpty(paid.TransactionID)
	s.Require().Len(s.gateway.Requests, 1)
	s.Equal("+6281101", s.gateway.Requests[0].PayerPhone)
	s.Equal("https://shop.test/orders/"+order.ID, s.gateway.Requests[0].ReturnURL)

	_, err = s.service.CreatePayment(s.ctx, order.ID)
	s.ErrorIs(err, domain.ErrAlreadyInitiated)
	s.Equal(1, s.gateway.CallCount())

	result, err := s.service.HandlePaymentCallback(s.ctx, webhook.Callback{TransactionID: paid.TransactionID, Status: "PAID", AmountMinor: 65000})
	s.Require().NoError(err)
	s.Equal(webhook.ResultApplied, result)

	result, err = s.service.HandlePaymentCallback(s.ctx, webhook.Callback{TransactionID: paid.TransactionID, Status: "PAID", AmountMinor: 65000})
	s.Require().NoError(err)
	s.Equal(webhook.ResultDuplicate, result)

	details, err := s.service.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaid, details.Order.Status)
	s.True(details.Order.ReferralRewarded)
	s.NotEmpty(details.Timeline)

	referrer, err := s.store.Customers().Get(s.ctx, s.referrer.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), referrer.ReferralCount)

	orders, err := s.service.ListOrders(s.ctx, s.customer.ID, 0)
	s.Require().NoError(err)
	s.Len(orders, 1)
}

func (s *CheckoutSuite) TestCreateOrderOutOfServiceArea() {
	req := s.orderRequest()
	req.OutletID = 2
	req.Items = []domain.ItemRequest{{ProductID: 3, Qty: 1}}

	_, err := s.service.CreateOrder(s.ctx, req)
	s.ErrorIs(err, domain.ErrOutOfServiceArea)
	s.ErrorIs(err, domain.ErrValidation)

	orders, err := s.service.ListOrders(s.ctx, s.customer.ID, 0)
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *CheckoutSuite) TestCreateOrderRejectsForeignProduct() {
	req := s.orderRequest()
	req.Items = append(req.Items, domain.ItemRequest{ProductID: 3, Qty: 1})

	_, err := s.service.CreateOrder(s.ctx, req)
	s.ErrorIs(err, domain.ErrInvalidProduct)
}

func (s *CheckoutSuite) TestCreatePaymentProviderFailure() {
	order, err := s.service.CreateOrder(s.ctx, s.orderRequest())
	s.Require().NoError(err)

	s.gateway.Err = domain.NewProviderError("maintenance")
	_, err = s.service.CreatePayment(s.ctx, order.ID)
	s.ErrorIs(err, domain.ErrProviderError)

	stored, err := s.store.Orders().Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Empty(stored.PaymentReference)
	s.Equal(domain.OrderStatusPending, stored.Status)

	// После восстановления провайдера оплату можно повторить.
	s.gateway.Err = nil
	_, err = s.service.CreatePayment(s.ctx, order.ID)
	s.NoError(err)
}

func (s *CheckoutSuite) TestCreatePaymentExpiredOrder() {
	order, err := s.service.CreateOrder(s.ctx, s.orderRequest())
	s.Require().NoError(err)

	s.service.now = func() time.Time { return order.CreatedAt.Add(ledger.DefaultPaymentExpiry + time.Second) }
	_, err = s.service.CreatePayment(s.ctx, order.ID)
	s.ErrorIs(err, domain.ErrOrderExpired)
	s.Equal(0, s.gateway.CallCount())

	stored, err := s.store.Orders().Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusExpired, stored.Status)
}

func (s *CheckoutSuite) TestCreatePaymentRetryAfterWindowKeepsLiveTransaction() {
	order, err := s.service.CreateOrder(s.ctx, s.orderRequest())
	s.Require().NoError(err)
	paid, err := s.service.CreatePayment(s.ctx, order.ID)
	s.Require().NoError(err)

	s.service.now = func() time.Time { return order.CreatedAt.Add(ledger.DefaultPaymentExpiry + time.Second) }
	_, err = s.service.CreatePayment(s.ctx, order.ID)
	s.ErrorIs(err, domain.ErrAlreadyInitiated)
	s.Equal(1, s.gateway.CallCount())

	result, err := s.service.HandlePaymentCallback(s.ctx, webhook.Callback{TransactionID: paid.TransactionID, Status: "PAID", AmountMinor: 65000})
	s.Require().NoError(err)
	s.Equal(webhook.ResultApplied, result)

	stored, err := s.store.Orders().Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaid, stored.Status)
}

func (s *CheckoutSuite) TestCreatePaymentUnknownOrder() {
	_, err := s.service.CreatePayment(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.service.CreatePayment(s.ctx, " ")
	s.ErrorIs(err, domain.ErrOrderIDRequired)
}

func (s *CheckoutSuite) TestUpdateOrderStatus() {
	order, err := s.service.CreateOrder(s.ctx, s.orderRequest())
	s.Require().NoError(err)

	_, err = s.service.UpdateOrderStatus(s.ctx, order.ID, domain.OrderStatusPaid)
	s.ErrorIs(err, domain.ErrTransitionNotAllowed)
	_, err = s.service.UpdateOrderStatus(s.ctx, order.ID, domain.OrderStatus("shipped"))
	s.ErrorIs(err, domain.ErrValidation)

	updated, err := s.service.UpdateOrderStatus(s.ctx, order.ID, domain.OrderStatusProcessing)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusProcessing, updated.Status)

	updated, err = s.service.UpdateOrderStatus(s.ctx, order.ID, domain.OrderStatusCompleted)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCompleted, updated.Status)
	s.True(updated.ReferralRewarded)
}

func (s *CheckoutSuite) TestAttachReferrerRejectsCycle() {
	_, err := s.service.AttachReferrer(s.ctx, s.referrer.ID, s.customer.ReferralCode)
	s.ErrorIs(err, domain.ErrReferralCycle)
}

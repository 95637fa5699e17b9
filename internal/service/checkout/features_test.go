package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/geo"
	"github.com/feistyindonesia-code/webapp/internal/service/checkout"
	"github.com/feistyindonesia-code/webapp/internal/service/ledger"
	"github.com/feistyindonesia-code/webapp/internal/service/payment"
	"github.com/feistyindonesia-code/webapp/internal/service/pricing"
	"github.com/feistyindonesia-code/webapp/internal/service/referral"
	"github.com/feistyindonesia-code/webapp/internal/service/webhook"
	"github.com/feistyindonesia-code/webapp/internal/storage/memory"
)

const featurePath = "../../../features/checkout.feature"

type checkoutFeature struct {
	ctx       context.Context
	store     *memory.Store
	gateway   *payment.MockGateway
	service   *checkout.Service
	customers map[string]domain.Customer

	order    domain.Order
	orderErr error
	payment  checkout.PaymentResult
	result   webhook.Result
}

func (f *checkoutFeature) reset() error {
	f.ctx = context.Background()
	f.store = memory.NewStore()
	f.gateway = payment.NewMockGateway()
	f.customers = make(map[string]domain.Customer)
	f.order = domain.Order{}
	f.orderErr = nil
	f.payment = checkout.PaymentResult{}
	f.result = ""

	l := ledger.New(f.store, f.store, pricing.NewPricer(), referral.NewRewarder(nil, nil), ledger.Config{}, nil, nil)
	svc, err := checkout.NewService(checkout.Deps{
		Store:     f.store,
		Matcher:   geo.NewMatcher(f.store.Outlets(), nil, nil),
		Ledger:    l,
		Gateway:   f.gateway,
		Webhooks:  webhook.NewProcessor(f.store, l, nil, nil),
		Registrar: referral.NewRegistrar(f.store, nil),
	}, checkout.Config{CallbackURL: "https://shop.test/api/v1/payments/callback"})
	if err != nil {
		return err
	}
	f.service = svc
	return nil
}

func (f *checkoutFeature) anActiveOutlet(id int64, lat, lng, serviceKm, freeKm float64, feePerKm int64) error {
	f.store.PutOutlet(domain.Outlet{
		ID:              id,
		Name:            fmt.Sprintf("Outlet %d", id),
		Active:          true,
		Location:        &domain.GeoPoint{Lat: lat, Lng: lng},
		ServiceRadiusKm: serviceKm,
		FreeRadiusKm:    freeKm,
		FeePerKm:        feePerKm,
	})
	return nil
}

func (f *checkoutFeature) outletSellsProduct(outletID, productID int64, name string, price int64) error {
	f.store.PutProduct(domain.Product{ID: productID, OutletID: outletID, Name: name, PriceMinor: price, Active: true})
	return nil
}

func (f *checkoutFeature) outletSellsInactiveProduct(outletID, productID int64, name string, price int64) error {
	f.store.PutProduct(domain.Product{ID: productID, OutletID: outletID, Name: name, PriceMinor: price, Active: false})
	return nil
}

func (f *checkoutFeature) aRegisteredCustomer(name, phone string) error {
	customer, err := f.service.RegisterCustomer(f.ctx, phone, name, "")
	if err != nil {
		return err
	}
	f.customers[name] = customer
	return nil
}

func (f *checkoutFeature) aReferredCustomer(name, phone, referrer string) error {
	owner, ok := f.customers[referrer]
	if !ok {
		return fmt.Errorf("unknown customer %q", referrer)
	}
	customer, err := f.service.RegisterCustomer(f.ctx, phone, name, owner.ReferralCode)
	if err != nil {
		return err
	}
	f.customers[name] = customer
	return nil
}

func (f *checkoutFeature) placeOrder(name string, outletID int64, lat, lng float64, items []domain.ItemRequest) error {
	customer, ok := f.customers[name]
	if !ok {
		return fmt.Errorf("unknown customer %q", name)
	}
	f.order, f.orderErr = f.service.CreateOrder(f.ctx, checkout.CreateOrderRequest{
		OutletID:   outletID,
		CustomerID: customer.ID,
		Items:      items,
		Point:      domain.GeoPoint{Lat: lat, Lng: lng},
		Address:    "Jl. Andi Djemma 10",
	})
	return nil
}

func (f *checkoutFeature) ordersTwoItemsFromNearest(name string, lat, lng float64, qty1 int, product1 int64, qty2 int, product2 int64) error {
	if err := f.placeOrder(name, 0, lat, lng, []domain.ItemRequest{
		{ProductID: product1, Qty: int32(qty1)},
		{ProductID: product2, Qty: int32(qty2)},
	}); err != nil {
		return err
	}
	return f.orderErr
}

func (f *checkoutFeature) ordersOneItemFromOutlet(name string, lat, lng float64, qty int, product, outletID int64) error {
	return f.placeOrder(name, outletID, lat, lng, []domain.ItemRequest{{ProductID: product, Qty: int32(qty)}})
}

func (f *checkoutFeature) theOrderIsPendingWith(subtotal, fee, total int64) error {
	if f.order.Status != domain.OrderStatusPending {
		return fmt.Errorf("expected pending order, got %q", f.order.Status)
	}
	if got := f.order.ItemsTotal(); got != subtotal {
		return fmt.Errorf("expected subtotal %d, got %d", subtotal, got)
	}
	if f.order.Delivery.FeeMinor != fee {
		return fmt.Errorf("expected delivery fee %d, got %d", fee, f.order.Delivery.FeeMinor)
	}
	if f.order.TotalMinor != total {
		return fmt.Errorf("expected total %d, got %d", total, f.order.TotalMinor)
	}
	return nil
}

func (f *checkoutFeature) opensThePayment(string) error {
	var err error
	f.payment, err = f.service.CreatePayment(f.ctx, f.order.ID)
	return err
}

func (f *checkoutFeature) theProviderIsAskedToCharge(amount int64) error {
	if f.gateway.CallCount() != 1 {
		return fmt.Errorf("expected one provider call, got %d", f.gateway.CallCount())
	}
	if got := f.gateway.Requests[0].AmountMinor; got != amount {
		return fmt.Errorf("expected provider amount %d, got %d", amount, got)
	}
	return nil
}

func (f *checkoutFeature) theProviderReports(status string, amount int64) error {
	var err error
	f.result, err = f.service.HandlePaymentCallback(f.ctx, webhook.Callback{
		TransactionID: f.payment.TransactionID,
		Status:        status,
		AmountMinor:   amount,
	})
	return err
}

func (f *checkoutFeature) theCallbackResultIs(want string) error {
	if string(f.result) != want {
		return fmt.Errorf("expected callback result %q, got %q", want, f.result)
	}
	return nil
}

func (f *checkoutFeature) theOrderStatusIs(want string) error {
	details, err := f.service.GetOrder(f.ctx, f.order.ID)
	if err != nil {
		return err
	}
	if string(details.Order.Status) != want {
		return fmt.Errorf("expected status %q, got %q", want, details.Order.Status)
	}
	return nil
}

func (f *checkoutFeature) hasReferrals(name string, want int64) error {
	customer, err := f.store.Customers().Get(f.ctx, f.customers[name].ID)
	if err != nil {
		return err
	}
	if customer.ReferralCount != want {
		return fmt.Errorf("expected %d referrals for %s, got %d", want, name, customer.ReferralCount)
	}
	return nil
}

func (f *checkoutFeature) theOrderIsRejectedAsInvalidProduct() error {
	if !errors.Is(f.orderErr, domain.ErrInvalidProduct) {
		return fmt.Errorf("expected ErrInvalidProduct, got %v", f.orderErr)
	}
	return nil
}

func (f *checkoutFeature) hasNoOrders(name string) error {
	orders, err := f.service.ListOrders(f.ctx, f.customers[name].ID, 0)
	if err != nil {
		return err
	}
	if len(orders) != 0 {
		return fmt.Errorf("expected no orders, got %d", len(orders))
	}
	return nil
}

func initializeCheckoutScenario(sc *godog.ScenarioContext) {
	f := &checkoutFeature{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, f.reset()
	})

	sc.Step(`^an active outlet (\d+) at (-?[\d.]+), (-?[\d.]+) with service radius ([\d.]+) km, free radius ([\d.]+) km and fee (\d+) per km$`, f.anActiveOutlet)
	sc.Step(`^outlet (\d+) sells product (\d+) "([^"]*)" for (\d+)$`, f.outletSellsProduct)
	sc.Step(`^outlet (\d+) sells inactive product (\d+) "([^"]*)" for (\d+)$`, f.outletSellsInactiveProduct)
	sc.Step(`^a registered customer "([^"]*)" with phone "([^"]*)"$`, f.aRegisteredCustomer)
	sc.Step(`^a customer "([^"]*)" with phone "([^"]*)" referred by "([^"]*)"$`, f.aReferredCustomer)

	sc.Step(`^"([^"]*)" at (-?[\d.]+), (-?[\d.]+) orders (\d+) of product (\d+) and (\d+) of product (\d+) from the nearest outlet$`, f.ordersTwoItemsFromNearest)
	sc.Step(`^"([^"]*)" at (-?[\d.]+), (-?[\d.]+) orders (\d+) of product (\d+) from outlet (\d+)$`, f.ordersOneItemFromOutlet)
	sc.Step(`^"([^"]*)" opens the payment$`, f.opensThePayment)
	sc.Step(`^the provider reports the payment as "([^"]*)" for (\d+)$`, f.theProviderReports)

	sc.Step(`^the order is pending with subtotal (\d+), delivery fee (\d+) and total (\d+)$`, f.theOrderIsPendingWith)
	sc.Step(`^the provider is asked to charge (\d+)$`, f.theProviderIsAskedToCharge)
	sc.Step(`^the callback result is "([^"]*)"$`, f.theCallbackResultIs)
	sc.Step(`^the order status is "([^"]*)"$`, f.theOrderStatusIs)
	sc.Step(`^"([^"]*)" has (\d+) referrals?$`, f.hasReferrals)
	sc.Step(`^the order is rejected as an invalid product$`, f.theOrderIsRejectedAsInvalidProduct)
	sc.Step(`^"([^"]*)" has no orders$`, f.hasNoOrders)
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "checkout",
		ScenarioInitializer: initializeCheckoutScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{featurePath},
			Strict:   true,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

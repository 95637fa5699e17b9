// Package grpcsvc публикует операции оформления заказа через gRPC.
// Сообщения кодируются JSON-кодеком (content-subtype "json").
package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/geo"
	"github.com/feistyindonesia-code/webapp/internal/service/checkout"
)

const defaultListOrdersLimit = 100

// Checkout перечисляет операции фасада, которые вызывает транспорт.
type Checkout interface {
	FindNearestOutlet(ctx context.Context, point domain.GeoPoint) (geo.Match, error)
	ListAvailableOutlets(ctx context.Context, point domain.GeoPoint) ([]geo.Match, error)
	QuoteDelivery(ctx context.Context, outletID int64, point domain.GeoPoint) (geo.Quote, error)
	CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (domain.Order, error)
	CreatePayment(ctx context.Context, orderID string) (checkout.PaymentResult, error)
	GetOrder(ctx context.Context, orderID string) (checkout.OrderDetails, error)
	ListOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
	RegisterCustomer(ctx context.Context, phone, name, referrerCode string) (domain.Customer, error)
}

// OutletService реализует OutletServiceServer поверх checkout.Service.
type OutletService struct {
	checkout Checkout
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewOutletService конструирует сервис. idemRepo может быть nil.
func NewOutletService(svc Checkout, idemRepo domain.IdempotencyRepository, logger *log.Entry) *OutletService {
	if logger == nil {
		logger = log.WithField("component", "grpc-outlet-service")
	}
	return &OutletService{
		checkout: svc,
		idemRepo: idemRepo,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FindNearestOutlet возвращает ближайшую точку.
func (s *OutletService) FindNearestOutlet(ctx context.Context, req *FindNearestOutletRequest) (*FindNearestOutletResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	match, err := s.checkout.FindNearestOutlet(ctx, req.Point.toDomain())
	if err != nil {
		return nil, s.fail(err, "FindNearestOutlet", log.Fields{})
	}
	return &FindNearestOutletResponse{Outlet: toMatch(match)}, nil
}

// ListAvailableOutlets возвращает точки с расстоянием до клиента.
func (s *OutletService) ListAvailableOutlets(ctx context.Context, req *ListAvailableOutletsRequest) (*ListAvailableOutletsResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	matches, err := s.checkout.ListAvailableOutlets(ctx, req.Point.toDomain())
	if err != nil {
		return nil, s.fail(err, "ListAvailableOutlets", log.Fields{})
	}

	outlets := make([]OutletMatch, 0, len(matches))
	for _, m := range matches {
		outlets = append(outlets, toMatch(m))
	}
	return &ListAvailableOutletsResponse{Outlets: outlets}, nil
}

// QuoteDelivery считает расстояние и стоимость доставки от точки.
func (s *OutletService) QuoteDelivery(ctx context.Context, req *QuoteDeliveryRequest) (*QuoteDeliveryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	quote, err := s.checkout.QuoteDelivery(ctx, req.OutletID, req.Point.toDomain())
	if err != nil {
		return nil, s.fail(err, "QuoteDelivery", log.Fields{"outlet_id": req.OutletID})
	}
	return &QuoteDeliveryResponse{Outlet: toMatch(quote.Match), FeeMinor: quote.FeeMinor}, nil
}

// CreateOrder создаёт заказ; сумма всегда считается на сервере.
func (s *OutletService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodCreateOrder, req, func(ctx context.Context) (*CreateOrderResponse, error) {
		items := make([]domain.ItemRequest, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, domain.ItemRequest{ProductID: item.ProductID, Qty: item.Qty})
		}

		order, err := s.checkout.CreateOrder(ctx, checkout.CreateOrderRequest{
			OutletID:   req.OutletID,
			CustomerID: req.CustomerID,
			Items:      items,
			Point:      req.Point.toDomain(),
			Address:    req.Address,
		})
		if err != nil {
			return nil, s.fail(err, "CreateOrder", log.Fields{"customer_id": req.CustomerID, "outlet_id": req.OutletID})
		}
		return &CreateOrderResponse{Order: toOrder(order)}, nil
	})
}

// CreatePayment открывает платёж у провайдера.
func (s *OutletService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodCreatePayment, req, func(ctx context.Context) (*CreatePaymentResponse, error) {
		res, err := s.checkout.CreatePayment(ctx, req.OrderID)
		if err != nil {
			return nil, s.fail(err, "CreatePayment", log.Fields{"order_id": req.OrderID})
		}
		return toPaymentResponse(res), nil
	})
}

// GetOrder возвращает состояние заказа и таймлайн событий.
func (s *OutletService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	details, err := s.checkout.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, s.fail(err, "GetOrder", log.Fields{"order_id": req.OrderID})
	}
	return &GetOrderResponse{
		Order:    toOrder(details.Order),
		Timeline: toTimeline(details.Timeline),
	}, nil
}

// ListOrders возвращает заказы клиента.
func (s *OutletService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.checkout.ListOrders(ctx, req.CustomerID, limit)
	if err != nil {
		return nil, s.fail(err, "ListOrders", log.Fields{"customer_id": req.CustomerID})
	}

	result := make([]Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrder(order))
	}
	return &ListOrdersResponse{Orders: result}, nil
}

// UpdateOrderStatus выполняет операторский переход в processing или completed.
func (s *OutletService) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	order, err := s.checkout.UpdateOrderStatus(ctx, req.OrderID, status)
	if err != nil {
		return nil, s.fail(err, "UpdateOrderStatus", log.Fields{"order_id": req.OrderID, "status": status})
	}
	return &UpdateOrderStatusResponse{Order: toOrder(order)}, nil
}

// RegisterCustomer создаёт клиента, опционально по реферальному коду.
func (s *OutletService) RegisterCustomer(ctx context.Context, req *RegisterCustomerRequest) (*RegisterCustomerResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodRegisterCustomer, req, func(ctx context.Context) (*RegisterCustomerResponse, error) {
		customer, err := s.checkout.RegisterCustomer(ctx, req.Phone, req.Name, req.ReferralCode)
		if err != nil {
			return nil, s.fail(err, "RegisterCustomer", log.Fields{})
		}
		return &RegisterCustomerResponse{Customer: toCustomer(customer)}, nil
	})
}

func (s *OutletService) fail(err error, operation string, fields log.Fields) error {
	st := toStatus(err)
	fields["operation"] = operation
	entry := s.logger.WithError(err).WithFields(fields)
	if isServerSide(st) {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	return st
}

var _ OutletServiceServer = (*OutletService)(nil)

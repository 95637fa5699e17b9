package grpcsvc

import (
	"time"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/geo"
	"github.com/feistyindonesia-code/webapp/internal/service/checkout"
)

// Point задаёт координаты клиента.
type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type FindNearestOutletRequest struct {
	Point Point `json:"point"`
}

type FindNearestOutletResponse struct {
	Outlet OutletMatch `json:"outlet"`
}

type ListAvailableOutletsRequest struct {
	Point Point `json:"point"`
}

type ListAvailableOutletsResponse struct {
	Outlets []OutletMatch `json:"outlets"`
}

type QuoteDeliveryRequest struct {
	OutletID int64 `json:"outlet_id" validate:"gt=0"`
	Point    Point `json:"point"`
}

type QuoteDeliveryResponse struct {
	Outlet   OutletMatch `json:"outlet"`
	FeeMinor int64       `json:"fee_minor"`
}

type OrderItemInput struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Qty       int32 `json:"qty" validate:"gt=0"`
}

// CreateOrderRequest с outlet_id = 0 выбирает ближайшую точку.
type CreateOrderRequest struct {
	OutletID   int64            `json:"outlet_id" validate:"gte=0"`
	CustomerID int64            `json:"customer_id" validate:"gt=0"`
	Items      []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	Point      Point            `json:"point"`
	Address    string           `json:"address" validate:"required"`
}

type CreateOrderResponse struct {
	Order Order `json:"order"`
}

type CreatePaymentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

type CreatePaymentResponse struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	AmountMinor   int64  `json:"amount_minor"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

type GetOrderResponse struct {
	Order    Order           `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
}

type ListOrdersRequest struct {
	CustomerID int64 `json:"customer_id" validate:"gt=0"`
	PageSize   int32 `json:"page_size" validate:"gte=0"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

type UpdateOrderStatusResponse struct {
	Order Order `json:"order"`
}

type RegisterCustomerRequest struct {
	Phone        string `json:"phone" validate:"required"`
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code"`
}

type RegisterCustomerResponse struct {
	Customer Customer `json:"customer"`
}

type OutletMatch struct {
	OutletID     int64   `json:"outlet_id"`
	Name         string  `json:"name"`
	DistanceKm   float64 `json:"distance_km"`
	CanDeliver   bool    `json:"can_deliver"`
	FreeRadiusKm float64 `json:"free_radius_km"`
	FeePerKm     int64   `json:"fee_per_km"`
}

type OrderItem struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

type Delivery struct {
	Point      Point   `json:"point"`
	Address    string  `json:"address"`
	DistanceKm float64 `json:"distance_km"`
	FeeMinor   int64   `json:"fee_minor"`
}

type Order struct {
	ID               string      `json:"id"`
	OutletID         int64       `json:"outlet_id"`
	CustomerID       int64       `json:"customer_id"`
	Status           string      `json:"status"`
	Items            []OrderItem `json:"items"`
	Delivery         Delivery    `json:"delivery"`
	TotalMinor       int64       `json:"total_minor"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	PaymentURL       string      `json:"payment_url,omitempty"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	UnixTime int64  `json:"unix_time"`
}

type Customer struct {
	ID            int64  `json:"id"`
	Phone         string `json:"phone"`
	Name          string `json:"name"`
	ReferralCode  string `json:"referral_code"`
	ReferrerID    int64  `json:"referrer_id,omitempty"`
	ReferralCount int64  `json:"referral_count"`
}

func (p Point) toDomain() domain.GeoPoint {
	return domain.GeoPoint{Lat: p.Lat, Lng: p.Lng}
}

func toMatch(m geo.Match) OutletMatch {
	return OutletMatch{
		OutletID:     m.Outlet.ID,
		Name:         m.Outlet.Name,
		DistanceKm:   m.DistanceKm,
		CanDeliver:   m.CanDeliver,
		FreeRadiusKm: m.FreeRadiusKm,
		FeePerKm:     m.FeePerKm,
	}
}

func toOrder(order domain.Order) Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			SubtotalMinor:  item.SubtotalMinor,
		})
	}

	return Order{
		ID:         order.ID,
		OutletID:   order.OutletID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Items:      items,
		Delivery: Delivery{
			Point:      Point{Lat: order.Delivery.Point.Lat, Lng: order.Delivery.Point.Lng},
			Address:    order.Delivery.Address,
			DistanceKm: order.Delivery.DistanceKm,
			FeeMinor:   order.Delivery.FeeMinor,
		},
		TotalMinor:       order.TotalMinor,
		PaymentReference: order.PaymentReference,
		PaymentURL:       order.PaymentURL,
		Version:          order.Version,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

func toTimeline(events []domain.TimelineEvent) []TimelineEvent {
	result := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return result
}

func toCustomer(c domain.Customer) Customer {
	out := Customer{
		ID:            c.ID,
		Phone:         c.Phone,
		Name:          c.Name,
		ReferralCode:  c.ReferralCode,
		ReferralCount: c.ReferralCount,
	}
	if c.ReferrerID != nil {
		out.ReferrerID = *c.ReferrerID
	}
	return out
}

func toPaymentResponse(res checkout.PaymentResult) *CreatePaymentResponse {
	return &CreatePaymentResponse{
		OrderID:       res.OrderID,
		TransactionID: res.TransactionID,
		PaymentURL:    res.PaymentURL,
		AmountMinor:   res.AmountMinor,
	}
}

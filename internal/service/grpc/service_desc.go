package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName задаёт полное имя gRPC-сервиса.
const ServiceName = "outlet.v1.OutletService"

const (
	MethodFindNearestOutlet    = "/" + ServiceName + "/FindNearestOutlet"
	MethodListAvailableOutlets = "/" + ServiceName + "/ListAvailableOutlets"
	MethodQuoteDelivery        = "/" + ServiceName + "/QuoteDelivery"
	MethodCreateOrder          = "/" + ServiceName + "/CreateOrder"
	MethodCreatePayment        = "/" + ServiceName + "/CreatePayment"
	MethodGetOrder             = "/" + ServiceName + "/GetOrder"
	MethodListOrders           = "/" + ServiceName + "/ListOrders"
	MethodUpdateOrderStatus    = "/" + ServiceName + "/UpdateOrderStatus"
	MethodRegisterCustomer     = "/" + ServiceName + "/RegisterCustomer"
)

// OutletServiceServer реализует серверную сторону API точек и заказов.
type OutletServiceServer interface {
	FindNearestOutlet(context.Context, *FindNearestOutletRequest) (*FindNearestOutletResponse, error)
	ListAvailableOutlets(context.Context, *ListAvailableOutletsRequest) (*ListAvailableOutletsResponse, error)
	QuoteDelivery(context.Context, *QuoteDeliveryRequest) (*QuoteDeliveryResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	CreatePayment(context.Context, *CreatePaymentRequest) (*CreatePaymentResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
	RegisterCustomer(context.Context, *RegisterCustomerRequest) (*RegisterCustomerResponse, error)
}

func unaryHandler[Req, Resp any](method string, call func(OutletServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OutletServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OutletServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OutletServiceDesc описывает сервис для grpc.Server.RegisterService.
var OutletServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OutletServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindNearestOutlet", Handler: unaryHandler(MethodFindNearestOutlet, OutletServiceServer.FindNearestOutlet)},
		{MethodName: "ListAvailableOutlets", Handler: unaryHandler(MethodListAvailableOutlets, OutletServiceServer.ListAvailableOutlets)},
		{MethodName: "QuoteDelivery", Handler: unaryHandler(MethodQuoteDelivery, OutletServiceServer.QuoteDelivery)},
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OutletServiceServer.CreateOrder)},
		{MethodName: "CreatePayment", Handler: unaryHandler(MethodCreatePayment, OutletServiceServer.CreatePayment)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OutletServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, OutletServiceServer.ListOrders)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler(MethodUpdateOrderStatus, OutletServiceServer.UpdateOrderStatus)},
		{MethodName: "RegisterCustomer", Handler: unaryHandler(MethodRegisterCustomer, OutletServiceServer.RegisterCustomer)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "outlet/v1/outlet.json",
}

// RegisterOutletServiceServer регистрирует реализацию на сервере.
func RegisterOutletServiceServer(s grpc.ServiceRegistrar, srv OutletServiceServer) {
	s.RegisterService(&OutletServiceDesc, srv)
}

// OutletServiceClient вызывает API с JSON-кодеком.
type OutletServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOutletServiceClient создаёт клиента поверх соединения.
func NewOutletServiceClient(cc grpc.ClientConnInterface) *OutletServiceClient {
	return &OutletServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OutletServiceClient) FindNearestOutlet(ctx context.Context, in *FindNearestOutletRequest, opts ...grpc.CallOption) (*FindNearestOutletResponse, error) {
	return invoke[FindNearestOutletResponse](ctx, c.cc, MethodFindNearestOutlet, in, opts)
}

func (c *OutletServiceClient) ListAvailableOutlets(ctx context.Context, in *ListAvailableOutletsRequest, opts ...grpc.CallOption) (*ListAvailableOutletsResponse, error) {
	return invoke[ListAvailableOutletsResponse](ctx, c.cc, MethodListAvailableOutlets, in, opts)
}

func (c *OutletServiceClient) QuoteDelivery(ctx context.Context, in *QuoteDeliveryRequest, opts ...grpc.CallOption) (*QuoteDeliveryResponse, error) {
	return invoke[QuoteDeliveryResponse](ctx, c.cc, MethodQuoteDelivery, in, opts)
}

func (c *OutletServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	return invoke[CreateOrderResponse](ctx, c.cc, MethodCreateOrder, in, opts)
}

func (c *OutletServiceClient) CreatePayment(ctx context.Context, in *CreatePaymentRequest, opts ...grpc.CallOption) (*CreatePaymentResponse, error) {
	return invoke[CreatePaymentResponse](ctx, c.cc, MethodCreatePayment, in, opts)
}

func (c *OutletServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, MethodGetOrder, in, opts)
}

func (c *OutletServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, MethodListOrders, in, opts)
}

func (c *OutletServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error) {
	return invoke[UpdateOrderStatusResponse](ctx, c.cc, MethodUpdateOrderStatus, in, opts)
}

func (c *OutletServiceClient) RegisterCustomer(ctx context.Context, in *RegisterCustomerRequest, opts ...grpc.CallOption) (*RegisterCustomerResponse, error) {
	return invoke[RegisterCustomerResponse](ctx, c.cc, MethodRegisterCustomer, in, opts)
}

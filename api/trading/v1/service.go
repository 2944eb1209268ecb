package tradingv1

import (
	"context"

	platformgrpc "github.com/louisbranch/catmarket/internal/platform/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "catmarket.trading.v1.TradingService"

const (
	TradingService_CreateOffer_FullMethodName         = "/" + ServiceName + "/CreateOffer"
	TradingService_CancelOffer_FullMethodName         = "/" + ServiceName + "/CancelOffer"
	TradingService_RejectOffer_FullMethodName         = "/" + ServiceName + "/RejectOffer"
	TradingService_AcceptOffer_FullMethodName         = "/" + ServiceName + "/AcceptOffer"
	TradingService_ExpireOffers_FullMethodName        = "/" + ServiceName + "/ExpireOffers"
	TradingService_GetOffer_FullMethodName            = "/" + ServiceName + "/GetOffer"
	TradingService_ListOffers_FullMethodName          = "/" + ServiceName + "/ListOffers"
	TradingService_GetOwnershipHistory_FullMethodName = "/" + ServiceName + "/GetOwnershipHistory"
	TradingService_LeaseEvents_FullMethodName         = "/" + ServiceName + "/LeaseEvents"
	TradingService_AckEvent_FullMethodName            = "/" + ServiceName + "/AckEvent"
)

// TradingServiceServer is the server API for TradingService.
type TradingServiceServer interface {
	CreateOffer(context.Context, *CreateOfferRequest) (*CreateOfferResponse, error)
	CancelOffer(context.Context, *CancelOfferRequest) (*CancelOfferResponse, error)
	RejectOffer(context.Context, *RejectOfferRequest) (*RejectOfferResponse, error)
	AcceptOffer(context.Context, *AcceptOfferRequest) (*AcceptOfferResponse, error)
	ExpireOffers(context.Context, *ExpireOffersRequest) (*ExpireOffersResponse, error)
	GetOffer(context.Context, *GetOfferRequest) (*GetOfferResponse, error)
	ListOffers(context.Context, *ListOffersRequest) (*ListOffersResponse, error)
	GetOwnershipHistory(context.Context, *GetOwnershipHistoryRequest) (*GetOwnershipHistoryResponse, error)
	LeaseEvents(context.Context, *LeaseEventsRequest) (*LeaseEventsResponse, error)
	AckEvent(context.Context, *AckEventRequest) (*AckEventResponse, error)
	mustEmbedUnimplementedTradingServiceServer()
}

// UnimplementedTradingServiceServer must be embedded by implementations.
type UnimplementedTradingServiceServer struct{}

func (UnimplementedTradingServiceServer) CreateOffer(context.Context, *CreateOfferRequest) (*CreateOfferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOffer not implemented")
}
func (UnimplementedTradingServiceServer) CancelOffer(context.Context, *CancelOfferRequest) (*CancelOfferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOffer not implemented")
}
func (UnimplementedTradingServiceServer) RejectOffer(context.Context, *RejectOfferRequest) (*RejectOfferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RejectOffer not implemented")
}
func (UnimplementedTradingServiceServer) AcceptOffer(context.Context, *AcceptOfferRequest) (*AcceptOfferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AcceptOffer not implemented")
}
func (UnimplementedTradingServiceServer) ExpireOffers(context.Context, *ExpireOffersRequest) (*ExpireOffersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ExpireOffers not implemented")
}
func (UnimplementedTradingServiceServer) GetOffer(context.Context, *GetOfferRequest) (*GetOfferResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOffer not implemented")
}
func (UnimplementedTradingServiceServer) ListOffers(context.Context, *ListOffersRequest) (*ListOffersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOffers not implemented")
}
func (UnimplementedTradingServiceServer) GetOwnershipHistory(context.Context, *GetOwnershipHistoryRequest) (*GetOwnershipHistoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOwnershipHistory not implemented")
}
func (UnimplementedTradingServiceServer) LeaseEvents(context.Context, *LeaseEventsRequest) (*LeaseEventsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method LeaseEvents not implemented")
}
func (UnimplementedTradingServiceServer) AckEvent(context.Context, *AckEventRequest) (*AckEventResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AckEvent not implemented")
}
func (UnimplementedTradingServiceServer) mustEmbedUnimplementedTradingServiceServer() {}

// RegisterTradingServiceServer registers srv on s.
func RegisterTradingServiceServer(s grpc.ServiceRegistrar, srv TradingServiceServer) {
	s.RegisterService(&TradingService_ServiceDesc, srv)
}

// unary adapts a typed server method to a grpc.MethodHandler.
func unary[Req any, Resp any](fullMethod string, call func(TradingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TradingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TradingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TradingService_ServiceDesc is the grpc.ServiceDesc for TradingService.
var TradingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TradingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOffer", Handler: unary(TradingService_CreateOffer_FullMethodName, TradingServiceServer.CreateOffer)},
		{MethodName: "CancelOffer", Handler: unary(TradingService_CancelOffer_FullMethodName, TradingServiceServer.CancelOffer)},
		{MethodName: "RejectOffer", Handler: unary(TradingService_RejectOffer_FullMethodName, TradingServiceServer.RejectOffer)},
		{MethodName: "AcceptOffer", Handler: unary(TradingService_AcceptOffer_FullMethodName, TradingServiceServer.AcceptOffer)},
		{MethodName: "ExpireOffers", Handler: unary(TradingService_ExpireOffers_FullMethodName, TradingServiceServer.ExpireOffers)},
		{MethodName: "GetOffer", Handler: unary(TradingService_GetOffer_FullMethodName, TradingServiceServer.GetOffer)},
		{MethodName: "ListOffers", Handler: unary(TradingService_ListOffers_FullMethodName, TradingServiceServer.ListOffers)},
		{MethodName: "GetOwnershipHistory", Handler: unary(TradingService_GetOwnershipHistory_FullMethodName, TradingServiceServer.GetOwnershipHistory)},
		{MethodName: "LeaseEvents", Handler: unary(TradingService_LeaseEvents_FullMethodName, TradingServiceServer.LeaseEvents)},
		{MethodName: "AckEvent", Handler: unary(TradingService_AckEvent_FullMethodName, TradingServiceServer.AckEvent)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catmarket/trading/v1/trading.proto",
}

// TradingServiceClient is the client API for TradingService.
type TradingServiceClient interface {
	CreateOffer(ctx context.Context, in *CreateOfferRequest, opts ...grpc.CallOption) (*CreateOfferResponse, error)
	CancelOffer(ctx context.Context, in *CancelOfferRequest, opts ...grpc.CallOption) (*CancelOfferResponse, error)
	RejectOffer(ctx context.Context, in *RejectOfferRequest, opts ...grpc.CallOption) (*RejectOfferResponse, error)
	AcceptOffer(ctx context.Context, in *AcceptOfferRequest, opts ...grpc.CallOption) (*AcceptOfferResponse, error)
	ExpireOffers(ctx context.Context, in *ExpireOffersRequest, opts ...grpc.CallOption) (*ExpireOffersResponse, error)
	GetOffer(ctx context.Context, in *GetOfferRequest, opts ...grpc.CallOption) (*GetOfferResponse, error)
	ListOffers(ctx context.Context, in *ListOffersRequest, opts ...grpc.CallOption) (*ListOffersResponse, error)
	GetOwnershipHistory(ctx context.Context, in *GetOwnershipHistoryRequest, opts ...grpc.CallOption) (*GetOwnershipHistoryResponse, error)
	LeaseEvents(ctx context.Context, in *LeaseEventsRequest, opts ...grpc.CallOption) (*LeaseEventsResponse, error)
	AckEvent(ctx context.Context, in *AckEventRequest, opts ...grpc.CallOption) (*AckEventResponse, error)
}

type tradingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTradingServiceClient returns a client that speaks the JSON codec.
func NewTradingServiceClient(cc grpc.ClientConnInterface) TradingServiceClient {
	return &tradingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(platformgrpc.JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tradingServiceClient) CreateOffer(ctx context.Context, in *CreateOfferRequest, opts ...grpc.CallOption) (*CreateOfferResponse, error) {
	return invoke[CreateOfferResponse](ctx, c.cc, TradingService_CreateOffer_FullMethodName, in, opts)
}

func (c *tradingServiceClient) CancelOffer(ctx context.Context, in *CancelOfferRequest, opts ...grpc.CallOption) (*CancelOfferResponse, error) {
	return invoke[CancelOfferResponse](ctx, c.cc, TradingService_CancelOffer_FullMethodName, in, opts)
}

func (c *tradingServiceClient) RejectOffer(ctx context.Context, in *RejectOfferRequest, opts ...grpc.CallOption) (*RejectOfferResponse, error) {
	return invoke[RejectOfferResponse](ctx, c.cc, TradingService_RejectOffer_FullMethodName, in, opts)
}

func (c *tradingServiceClient) AcceptOffer(ctx context.Context, in *AcceptOfferRequest, opts ...grpc.CallOption) (*AcceptOfferResponse, error) {
	return invoke[AcceptOfferResponse](ctx, c.cc, TradingService_AcceptOffer_FullMethodName, in, opts)
}

func (c *tradingServiceClient) ExpireOffers(ctx context.Context, in *ExpireOffersRequest, opts ...grpc.CallOption) (*ExpireOffersResponse, error) {
	return invoke[ExpireOffersResponse](ctx, c.cc, TradingService_ExpireOffers_FullMethodName, in, opts)
}

func (c *tradingServiceClient) GetOffer(ctx context.Context, in *GetOfferRequest, opts ...grpc.CallOption) (*GetOfferResponse, error) {
	return invoke[GetOfferResponse](ctx, c.cc, TradingService_GetOffer_FullMethodName, in, opts)
}

func (c *tradingServiceClient) ListOffers(ctx context.Context, in *ListOffersRequest, opts ...grpc.CallOption) (*ListOffersResponse, error) {
	return invoke[ListOffersResponse](ctx, c.cc, TradingService_ListOffers_FullMethodName, in, opts)
}

func (c *tradingServiceClient) GetOwnershipHistory(ctx context.Context, in *GetOwnershipHistoryRequest, opts ...grpc.CallOption) (*GetOwnershipHistoryResponse, error) {
	return invoke[GetOwnershipHistoryResponse](ctx, c.cc, TradingService_GetOwnershipHistory_FullMethodName, in, opts)
}

func (c *tradingServiceClient) LeaseEvents(ctx context.Context, in *LeaseEventsRequest, opts ...grpc.CallOption) (*LeaseEventsResponse, error) {
	return invoke[LeaseEventsResponse](ctx, c.cc, TradingService_LeaseEvents_FullMethodName, in, opts)
}

func (c *tradingServiceClient) AckEvent(ctx context.Context, in *AckEventRequest, opts ...grpc.CallOption) (*AckEventResponse, error) {
	return invoke[AckEventResponse](ctx, c.cc, TradingService_AckEvent_FullMethodName, in, opts)
}

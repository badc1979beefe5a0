package handler

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

// JSONCodecName is the content-subtype clients must request, for example
// with grpc.CallContentSubtype(JSONCodecName).
const JSONCodecName = "json"

const (
	orderServiceName = "storefront.v1.OrderService"

	ReconcileMethod = "/" + orderServiceName + "/Reconcile"
	GetOrderMethod  = "/" + orderServiceName + "/GetOrder"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

type OrderRequest struct {
	SessionID string `json:"session_id"`
}

type OrderLineMessage struct {
	VariantID        string `json:"variant_id,omitempty"`
	Title            string `json:"title"`
	Quantity         int    `json:"quantity"`
	UnitAmountMinor  int64  `json:"unit_amount"`
	TotalAmountMinor int64  `json:"total_amount"`
}

type OrderResponse struct {
	OrderNumber      string             `json:"order_number"`
	SessionID        string             `json:"session_id"`
	CustomerEmail    string             `json:"customer_email,omitempty"`
	Currency         string             `json:"currency"`
	AmountTotalMinor int64              `json:"amount_total"`
	Status           string             `json:"status"`
	Lines            []OrderLineMessage `json:"lines"`
}

// OrderServer is the back-office order API.
type OrderServer interface {
	Reconcile(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

type GRPCHandler struct {
	orderService *service.OrderService
}

func NewGRPCHandler(orderService *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

// Register attaches the order service to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&orderServiceDesc, h)
}

func (h *GRPCHandler) Reconcile(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	order, err := h.orderService.Reconcile(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return orderResponse(order), nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	order, err := h.orderService.GetOrder(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return orderResponse(order), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrMissingSession):
		return status.Error(codes.InvalidArgument, "missing session id")
	case errors.Is(err, service.ErrSessionNotPaid):
		return status.Error(codes.FailedPrecondition, "payment not completed")
	case errors.Is(err, service.ErrOrderNotFound):
		return status.Error(codes.NotFound, "order not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func orderResponse(o domain.Order) *OrderResponse {
	resp := &OrderResponse{
		OrderNumber:      o.OrderNumber,
		SessionID:        o.SessionID,
		CustomerEmail:    o.CustomerEmail,
		Currency:         o.Currency,
		AmountTotalMinor: o.AmountTotalMinor,
		Status:           string(o.Status),
		Lines:            make([]OrderLineMessage, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, OrderLineMessage{
			VariantID:        l.VariantID,
			Title:            l.Title,
			Quantity:         l.Quantity,
			UnitAmountMinor:  l.UnitAmountMinor,
			TotalAmountMinor: l.TotalAmountMinor,
		})
	}
	return resp
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reconcile", Handler: reconcileHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/order.proto",
}

func reconcileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServer).Reconcile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReconcileMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServer).Reconcile(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetOrderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServer).GetOrder(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

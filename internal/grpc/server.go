package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace-service/internal/auth"
	"github.com/marketplace-service/internal/logger"
	"github.com/marketplace-service/internal/model"
	"github.com/marketplace-service/internal/payment"
	"github.com/marketplace-service/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	orders   *service.OrderService
	payments *service.PaymentService
	tokens   *auth.Manager
	log      *zap.Logger
}

func NewServer(orders *service.OrderService, payments *service.PaymentService, tokens *auth.Manager, log *zap.Logger) *Server {
	return &Server{
		orders:   orders,
		payments: payments,
		tokens:   tokens,
		log:      log,
	}
}

// Register adds the order service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

type idRequest struct {
	ID string `json:"id"`
}

type listOrdersRequest struct {
	Status model.OrderStatus `json:"status"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type processPaymentRequest struct {
	OrderID string          `json:"order_id"`
	Payment payment.Details `json:"payment"`
}

func (s *Server) CreateOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	var req service.CreateOrderRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, principal(ctx), req)
	if err != nil {
		return nil, toStatus(ctx, err, "failed to create order")
	}

	log.Info("order created via gRPC", zap.String("order_id", order.ID))
	return encodeResponse("order", order)
}

func (s *Server) GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, principal(ctx), req.ID)
	if err != nil {
		return nil, toStatus(ctx, err, "failed to get order")
	}

	return encodeResponse("order", order)
}

func (s *Server) ListOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listOrdersRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	orders, err := s.orders.GetOrders(ctx, principal(ctx), service.ListOrdersRequest{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return nil, toStatus(ctx, err, "failed to list orders")
	}
	if orders == nil {
		orders = []model.Order{}
	}

	return encodeResponse("orders", orders)
}

func (s *Server) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	var req idRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	order, err := s.orders.CancelOrder(ctx, principal(ctx), req.ID)
	if err != nil {
		return nil, toStatus(ctx, err, "failed to cancel order")
	}

	log.Info("order cancelled via gRPC", zap.String("order_id", order.ID))
	return encodeResponse("order", order)
}

// ProcessPayment answers declined charges with success=false rather than an
// error status; only requests that were never charged fail.
func (s *Server) ProcessPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req processPaymentRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	result, err := s.payments.ProcessPayment(ctx, principal(ctx), req.OrderID, req.Payment)
	if err != nil {
		return nil, toStatus(ctx, err, "failed to process payment")
	}

	return encodeResponse("result", result)
}

// UnaryInterceptor attaches a request logger and authenticates the caller
// from the "authorization" metadata.
func (s *Server) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		log := s.log.With(
			zap.String("request_id", uuid.New().String()),
			zap.String("method", info.FullMethod),
		)
		if key := getMetadata(ctx, "x-idempotency-key"); key != "" {
			log = log.With(zap.String("idempotency_key", key))
		}
		ctx = logger.WithContext(ctx, log)

		token, ok := auth.BearerToken(getMetadata(ctx, "authorization"))
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		p, err := s.tokens.Parse(token)
		if err != nil {
			log.Warn("rejected token", zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		ctx = auth.WithPrincipal(ctx, p)

		return handler(ctx, req)
	}
}

func principal(ctx context.Context) model.Actor {
	p, _ := auth.PrincipalFromContext(ctx)
	return p
}

func getMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

func toStatus(ctx context.Context, err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrNotDigital):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrUnsupportedProcessor),
		errors.Is(err, service.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrGateway):
		return status.Error(codes.Unavailable, err.Error())
	}

	logger.FromContext(ctx).Error(msg, zap.Error(err))
	return status.Error(codes.Internal, msg)
}

package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors/constants"
)

// UnaryServerInterceptor copies the request id and idempotency key from the
// incoming metadata into the context.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		requestID := "unknown"
		idempotencyKey := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(constants.HeaderXRequestId); len(ids) > 0 {
				requestID = ids[0]
			}
			if ids := md.Get(constants.HeaderXIdempotencyKey); len(ids) > 0 {
				idempotencyKey = ids[0]
			}
		}
		return handler(WithRequestIDs(ctx, requestID, idempotencyKey), req)
	}
}

// WithRequestIDs stores the request id and idempotency key in ctx.
func WithRequestIDs(ctx context.Context, requestID, idempotencyKey string) context.Context {
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, requestID)
	return context.WithValue(ctx, constants.ContextKeyIdempotencyKey, idempotencyKey)
}

// GetMetadataValue looks key up in the context values first, then in the
// incoming and outgoing gRPC metadata. It returns "" when absent.
func GetMetadataValue(ctx context.Context, key string) string {
	if v, ok := ctx.Value(constants.Key(key)).(string); ok {
		return v
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

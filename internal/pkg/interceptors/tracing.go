package interceptors

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors/constants"
)

// TraceServerInterceptor logs every unary call with its request id, outcome
// and duration. It runs after UnaryServerInterceptor in the chain.
func TraceServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		slog.DebugContext(ctx, "grpc call",
			"method", info.FullMethod,
			"request_id", GetMetadataValue(ctx, constants.HeaderXRequestId),
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

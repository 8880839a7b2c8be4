package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors/constants"
)

// AttachTracingMetadata stores chi's request id and the client's idempotency
// key where the engine and its log lines look them up.
func AttachTracingMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := interceptors.WithRequestIDs(r.Context(),
			middleware.GetReqID(r.Context()),
			r.Header.Get(constants.HeaderXIdempotencyKey),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type actorKey struct{}

// Actor reads the identity resolved by the auth proxy in front of the
// service. Requests without a role get the zero Actor, which can access
// nothing.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.Actor{
			ID:           r.Header.Get(constants.HeaderXActorID),
			Role:         domain.Role(r.Header.Get(constants.HeaderXActorRole)),
			RestaurantID: r.Header.Get(constants.HeaderXRestaurantID),
		}
		if actor.Role == domain.RoleSystem {
			// only internal callers act as system; they never come through HTTP
			actor = domain.Actor{}
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) domain.Actor {
	a, _ := ctx.Value(actorKey{}).(domain.Actor)
	return a
}

package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middlewares.Actor)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetOrder)
			r.Get("/history", handler.History)
			r.Post("/status", handler.UpdateStatus)
			r.Post("/payment-status", handler.UpdatePaymentStatus)
			r.Post("/payments", handler.AddPayment)
			r.Patch("/items", handler.EditItems)
		})
	})

	r.Get("/board", handler.Board)
	r.Get("/events", handler.Events)

	r.Get("/restaurants/{restaurantID}/accounts", handler.Accounts)
	r.Post("/restaurants/{restaurantID}/accounts/{phone}/settle", handler.SettleAccount)

	r.Post("/webhooks/payments", handler.PaymentWebhook)
	return r
}

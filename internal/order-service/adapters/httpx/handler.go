package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/kitchen-orders/internal/board"
	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/httpx/middlewares"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors/constants"
)

// Handler serves the kitchen API on top of the order engine.
type Handler struct {
	engine   *app.Engine
	editor   *app.Editor
	ledger   *app.Ledger
	payments *app.PaymentHandler
	store    changefeed.Lister
	feed     *changefeed.Feed
	logger   *slog.Logger
}

type Deps struct {
	Engine   *app.Engine
	Editor   *app.Editor
	Ledger   *app.Ledger
	Payments *app.PaymentHandler
	// Store serves list and board queries.
	Store changefeed.Lister
	// Feed backs the event stream. Nil disables /events.
	Feed   *changefeed.Feed
	Logger *slog.Logger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:   d.Engine,
		editor:   d.Editor,
		ledger:   d.Ledger,
		payments: d.Payments,
		store:    d.Store,
		feed:     d.Feed,
		logger:   logger.With("component", "http"),
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.engine.PlaceOrder(r.Context(), req.toNewOrder())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	filter := ports.Filter{RestaurantID: scope}
	for _, s := range r.URL.Query()["status"] {
		st := domain.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_status", s)
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", v)
			return
		}
		filter.Limit = n
	}

	orders, err := h.store.Query(r.Context(), filter)
	if err != nil {
		h.fail(w, r, &domain.PersistenceError{Op: "query orders", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}
	entries, err := h.engine.History(r.Context(), order.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapHistory(entries))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.engine.ApplyStatusTransition(r.Context(), chi.URLParam(r, "id"), domain.Status(req.Status), middlewares.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req PaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}

	if err := h.engine.RecordPayment(r.Context(), order.ID, domain.PaymentStatus(req.PaymentStatus)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondWithOrder(w, r, order.ID)
}

func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var req PartialPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}

	updated, err := h.engine.AddPartialPayment(r.Context(), order.ID, domain.Money(req.Amount), req.Method)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrderToResponse(updated))
}

func (h *Handler) EditItems(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	order, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}

	session, err := h.editor.Open(r.Context(), order.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i, op := range req.Ops {
		if err := applyEdit(session, op); err != nil {
			h.fail(w, r, fmt.Errorf("op %d: %w", i, err))
			return
		}
	}

	saved, err := session.Save(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(saved))
}

func applyEdit(s *app.EditSession, op EditOp) error {
	switch op.Op {
	case "set_quantity":
		return s.SetQuantity(op.LineID, op.Quantity)
	case "remove":
		return s.RemoveItem(op.LineID)
	case "add":
		if op.Item == nil {
			return fmt.Errorf("%w: add needs an item", domain.ErrInvalidOrder)
		}
		return s.AddItem(op.Item.toDomain())
	default:
		return fmt.Errorf("%w: unknown op %q", domain.ErrInvalidOrder, op.Op)
	}
}

func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	orders, err := h.store.Query(r.Context(), ports.Filter{RestaurantID: scope})
	if err != nil {
		h.fail(w, r, &domain.PersistenceError{Op: "query orders", Err: err})
		return
	}

	terminal, _ := strconv.ParseBool(r.URL.Query().Get("terminal"))
	writeJSON(w, http.StatusOK, mapColumns(board.Build(orders, board.Options{IncludeTerminal: terminal})))
}

func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	if !middlewares.ActorFrom(r.Context()).CanAccess(restaurantID) {
		h.fail(w, r, domain.ErrForbidden)
		return
	}
	accounts, err := h.ledger.Accounts(r.Context(), restaurantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccounts(accounts))
}

func (h *Handler) SettleAccount(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	if !middlewares.ActorFrom(r.Context()).CanAccess(restaurantID) {
		h.fail(w, r, domain.ErrForbidden)
		return
	}
	n, amount, err := h.ledger.Settle(r.Context(), restaurantID, chi.URLParam(r, "phone"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{Settled: n, Amount: int64(amount)})
}

// PaymentWebhook acknowledges with 200 whenever the event was applied or
// deliberately ignored, so the gateway stops retrying.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.EventID == "" {
		req.EventID = r.Header.Get(constants.HeaderXIdempotencyKey)
	}

	err := h.payments.Handle(r.Context(), domain.PaymentEvent{
		EventID:           req.EventID,
		ExternalReference: req.ExternalReference,
		Status:            req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondWithOrder(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.engine.Order(r.Context(), id, middlewares.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// accessibleOrder loads the {id} order and checks the actor may see it.
func (h *Handler) accessibleOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	order, err := h.engine.Order(r.Context(), chi.URLParam(r, "id"), middlewares.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return order, true
}

// scope resolves the restaurant a listing covers. Staff are pinned to their
// own restaurant; admins may pick one or see all.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := middlewares.ActorFrom(r.Context())
	requested := r.URL.Query().Get("restaurant_id")

	switch actor.Role {
	case domain.RoleAdmin:
		return requested, true
	case domain.RoleStaff:
		if actor.RestaurantID == "" || (requested != "" && requested != actor.RestaurantID) {
			h.fail(w, r, domain.ErrForbidden)
			return "", false
		}
		return actor.RestaurantID, true
	default:
		h.fail(w, r, domain.ErrForbidden)
		return "", false
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrNotEditable):
		return http.StatusConflict, "not_editable"
	case errors.Is(err, domain.ErrEmptyOrder):
		return http.StatusUnprocessableEntity, "empty_order"
	case errors.Is(err, domain.ErrInvalidOrder):
		return http.StatusUnprocessableEntity, "invalid_order"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case domain.IsPersistence(err):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

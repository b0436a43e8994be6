package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/campus-eats/api/internal/auth"
	"github.com/campus-eats/api/internal/middleware"
	"github.com/campus-eats/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by the student-facing
// order handlers. Satisfied by *service.OrderService; narrow interface for
// testability.
type OrderServicer interface {
	Create(ctx context.Context, actor service.Actor, req service.CreateOrderRequest) (*service.OrderDetail, error)
	Update(ctx context.Context, actor service.Actor, orderID uuid.UUID, req service.UpdateOrderRequest) (*service.OrderDetail, error)
	Cancel(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*service.OrderDetail, error)
	Get(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*service.OrderDetail, error)
	ListCurrent(ctx context.Context, ownerID uuid.UUID) ([]service.OrderDetail, error)
	ListHistory(ctx context.Context, ownerID uuid.UUID) ([]service.OrderDetail, error)
}

// OrderHandler handles the student-facing order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted under /orders behind authentication.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/current", h.ListCurrent)
	r.Get("/history", h.ListHistory)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Patch("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type orderItemRequest struct {
	Name     string          `json:"name"`
	Quantity int32           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	Items               []orderItemRequest `json:"items"`
	PickupTime          string             `json:"pickup_time"`
	SpecialInstructions string             `json:"special_instructions"`
}

// updateOrderRequest patches a pending order. Absent fields keep their
// current values.
type updateOrderRequest struct {
	Items               []orderItemRequest `json:"items"`
	PickupTime          string             `json:"pickup_time"`
	SpecialInstructions *string            `json:"special_instructions"`
}

type orderResponse struct {
	ID                  uuid.UUID           `json:"id"`
	Identifier          string              `json:"identifier"`
	Status              string              `json:"status"`
	PickupTime          string              `json:"pickup_time"`
	SpecialInstructions string              `json:"special_instructions"`
	Items               []orderItemResponse `json:"items"`
	Owner               ownerResponse       `json:"owner"`
	CancelledAt         *time.Time          `json:"cancelled_at"`
	CancelledBy         *string             `json:"cancelled_by"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

type orderItemResponse struct {
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type ownerResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.svc.Create(r.Context(), actorFromClaims(claims), service.CreateOrderRequest{
		PickupTime:          req.PickupTime,
		SpecialInstructions: req.SpecialInstructions,
		Items:               toServiceItems(req.Items),
	})
	if err != nil {
		writeOrderError(w, err, "create order")
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(*detail))
}

// ListCurrent handles GET /orders/current.
func (h *OrderHandler) ListCurrent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListCurrent, "list current orders")
}

// ListHistory handles GET /orders/history.
func (h *OrderHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.svc.ListHistory, "list order history")
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) ([]service.OrderDetail, error), op string) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	details, err := fn(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(details))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.Get(r.Context(), actorFromClaims(claims), orderID)
	if err != nil {
		writeOrderError(w, err, "get order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

// Update handles PATCH /orders/{id}.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.UpdateOrderRequest{
		PickupTime:          req.PickupTime,
		SpecialInstructions: req.SpecialInstructions,
	}
	if req.Items != nil {
		svcReq.Items = toServiceItems(req.Items)
	}

	detail, err := h.svc.Update(r.Context(), actorFromClaims(claims), orderID, svcReq)
	if err != nil {
		writeOrderError(w, err, "update order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

// Cancel handles PATCH /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.Cancel(r.Context(), actorFromClaims(claims), orderID)
	if err != nil {
		writeOrderError(w, err, "cancel order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

// --- Helpers ---

// writeOrderError maps service errors to HTTP statuses. Validation problems
// are 400, authorization 403, unknown orders 404, and every state-machine or
// concurrency violation 409.
func writeOrderError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrMissingPickupTime),
		errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrItemUnavailable):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrTerminalState),
		errors.Is(err, service.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func actorFromClaims(claims *auth.Claims) service.Actor {
	return service.Actor{ID: claims.UserID, Role: claims.Role}
}

func toServiceItems(items []orderItemRequest) []service.ItemInput {
	out := make([]service.ItemInput, len(items))
	for i, item := range items {
		out[i] = service.ItemInput{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		}
	}
	return out
}

func toOrderResponse(d service.OrderDetail) orderResponse {
	o := d.Order
	resp := orderResponse{
		ID:                  o.ID,
		Identifier:          o.Identifier,
		Status:              o.Status,
		PickupTime:          o.PickupTime,
		SpecialInstructions: o.SpecialInstructions,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		Owner: ownerResponse{
			ID:        o.OwnerID,
			Username:  o.OwnerUsername,
			Email:     o.OwnerEmail,
			FirstName: o.OwnerFirstName,
			LastName:  o.OwnerLastName,
		},
	}

	if o.CancelledAt.Valid {
		resp.CancelledAt = &o.CancelledAt.Time
	}
	if o.CancelledBy.Valid {
		resp.CancelledBy = &o.CancelledBy.String
	}

	resp.Items = make([]orderItemResponse, len(d.Items))
	for i, item := range d.Items {
		resp.Items[i] = orderItemResponse{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: numericToString(item.UnitPrice),
		}
	}

	return resp
}

func toOrderResponses(details []service.OrderDetail) []orderResponse {
	out := make([]orderResponse, len(details))
	for i, d := range details {
		out[i] = toOrderResponse(d)
	}
	return out
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

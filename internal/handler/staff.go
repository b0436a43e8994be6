package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/campus-eats/api/internal/middleware"
	"github.com/campus-eats/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StaffOrderServicer defines the service methods needed by the staff-facing
// order handlers. Satisfied by *service.OrderService.
type StaffOrderServicer interface {
	ListActive(ctx context.Context, statusFilter string) ([]service.OrderDetail, error)
	ListCancelled(ctx context.Context) ([]service.OrderDetail, error)
	AdvanceStatus(ctx context.Context, actor service.Actor, orderID uuid.UUID, target string) (*service.OrderDetail, error)
	Cancel(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*service.OrderDetail, error)
}

// StaffOrderHandler handles the staff/manager order workflow endpoints.
type StaffOrderHandler struct {
	svc StaffOrderServicer
}

// NewStaffOrderHandler creates a new StaffOrderHandler.
func NewStaffOrderHandler(svc StaffOrderServicer) *StaffOrderHandler {
	return &StaffOrderHandler{svc: svc}
}

// RegisterRoutes registers staff order endpoints on the given Chi router.
// Expected to be mounted under /staff/orders behind a staff/manager role
// check.
func (h *StaffOrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListActive)
	r.Get("/cancelled", h.ListCancelled)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/cancel", h.Cancel)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// ListActive handles GET /staff/orders. An optional ?status= query narrows
// the listing to one active status.
func (h *StaffOrderHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.ListActive(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		log.Printf("ERROR: list active orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(details))
}

// ListCancelled handles GET /staff/orders/cancelled.
func (h *StaffOrderHandler) ListCancelled(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.ListCancelled(r.Context())
	if err != nil {
		log.Printf("ERROR: list cancelled orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(details))
}

// UpdateStatus handles PATCH /staff/orders/{id}/status.
func (h *StaffOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	detail, err := h.svc.AdvanceStatus(r.Context(), actorFromClaims(claims), orderID, req.Status)
	if err != nil {
		writeOrderError(w, err, "update order status")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

// Cancel handles PATCH /staff/orders/{id}/cancel.
func (h *StaffOrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
		writeOrderError(w, err, "staff cancel order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*detail))
}

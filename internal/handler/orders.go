package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/middleware"
	"github.com/smartcanteen/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (database.Order, error)
	ListOrders(ctx context.Context, username string) ([]database.Order, error)
	GetOrder(ctx context.Context, orderID string) (database.Order, error)
	UpdateStatus(ctx context.Context, orderID, newStatus string) (database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers the endpoints open to any authenticated user.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
}

// RegisterStaffRoutes registers the kitchen-side endpoints.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Patch("/orders/{id}/status", h.UpdateStatus)
}

// --- Request types ---

type createOrderRequest struct {
	Username   string             `json:"username"`
	Items      []cartEntryRequest `json:"items"`
	Preference string             `json:"preference"`
}

// cartEntryRequest accepts the shapes carts have been sent in: a bare id
// string, or an object carrying the id under "id", "_id", "menuItem" or
// "menu_item_id" with an optional "qty". Any other shape decodes to an
// empty id, which the service drops like an unknown item.
type cartEntryRequest struct {
	ItemID string
	Qty    int32

	// badQty is set when qty is present but not a whole number.
	badQty bool
}

func (c *cartEntryRequest) UnmarshalJSON(b []byte) error {
	*c = cartEntryRequest{}

	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		c.ItemID = id
		return nil
	}

	var obj struct {
		ID         json.RawMessage `json:"id"`
		LegacyID   json.RawMessage `json:"_id"`
		MenuItem   json.RawMessage `json:"menuItem"`
		MenuItemID json.RawMessage `json:"menu_item_id"`
		Qty        json.RawMessage `json:"qty"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil
	}
	for _, candidate := range []json.RawMessage{obj.ID, obj.LegacyID, obj.MenuItem, obj.MenuItemID} {
		if id := rawString(candidate); id != "" {
			c.ItemID = id
			break
		}
	}
	qty, ok := parseQty(obj.Qty)
	c.Qty, c.badQty = qty, !ok
	return nil
}

// rawString returns raw as a string, or "" when it is not a JSON string.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

var maxQty = decimal.NewFromInt(math.MaxInt32)

// parseQty reads a qty the way carts send it. Missing, null, false, "" and
// 0 all mean "unset" (0); true counts as 1; numeric strings are accepted.
// ok is false for anything that is not a whole number.
func parseQty(raw json.RawMessage) (qty int32, ok bool) {
	if len(raw) == 0 {
		return 0, true
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}

	var text string
	switch q := v.(type) {
	case nil:
		return 0, true
	case bool:
		if q {
			return 1, true
		}
		return 0, true
	case json.Number:
		text = q.String()
	case string:
		text = strings.TrimSpace(q)
		if text == "" {
			return 0, true
		}
	default:
		return 0, false
	}

	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() || d.Abs().GreaterThan(maxQty) {
		return 0, false
	}
	return int32(d.IntPart()), true
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// Create places an order. Students can only order for themselves; an
// omitted username is taken from the token.
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

	username := req.Username
	if username == "" {
		username = claims.Username
	}
	if !claims.CanActFor(username) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot place orders for another user"})
		return
	}

	entries := make([]service.CartEntry, len(req.Items))
	for i, item := range req.Items {
		if item.badQty {
			writeOrderError(w, fmt.Errorf("item[%d]: %w", i, service.ErrInvalidQuantity), "create order")
			return
		}
		entries[i] = service.CartEntry{ItemID: item.ItemID, Quantity: item.Qty}
	}

	order, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		Username:   username,
		Items:      entries,
		Preference: req.Preference,
	})
	if err != nil {
		writeOrderError(w, err, "create order")
		return
	}

	writeJSON(w, http.StatusCreated, service.NewOrderView(order))
}

// List handles GET /orders?user=. Students only see their own orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	user := r.URL.Query().Get("user")
	if !claims.IsStaff() {
		if user == "" {
			user = claims.Username
		}
		if user != claims.Username {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot list orders of another user"})
			return
		}
	}

	orders, err := h.svc.ListOrders(r.Context(), user)
	if err != nil {
		writeOrderError(w, err, "list orders")
		return
	}

	resp := make([]service.OrderView, len(orders))
	for i, o := range orders {
		resp[i] = service.NewOrderView(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}. Another user's order looks like a missing
// one to students.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, err, "get order")
		return
	}
	if !claims.CanActFor(order.Username) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	writeJSON(w, http.StatusOK, service.NewOrderView(order))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeOrderError(w, err, "update order status")
		return
	}

	writeJSON(w, http.StatusOK, service.NewOrderView(order))
}

// --- Helpers ---

// writeOrderError maps service errors to HTTP status codes. Unknown errors
// are logged and reported as 500.
func writeOrderError(w http.ResponseWriter, err error, op string) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrStatusChanged):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrMissingUsername) ||
		errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrNoValidItems) ||
		errors.Is(err, service.ErrInvalidStatus) ||
		errors.Is(err, service.ErrInvalidTransition)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/smartcanteen/api/internal/database"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	ListMenuItems(ctx context.Context) ([]database.MenuItem, error)
	ListSpecialMenuItems(ctx context.Context) ([]database.MenuItem, error)
	ListComboMenuItems(ctx context.Context) ([]database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	SetMenuItemAvailability(ctx context.Context, arg database.SetMenuItemAvailabilityParams) (database.MenuItem, error)
	SetMenuItemPrice(ctx context.Context, arg database.SetMenuItemPriceParams) (database.MenuItem, error)
	SetMenuItemImage(ctx context.Context, arg database.SetMenuItemImageParams) (database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
}

// MenuHandler handles menu endpoints.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterRoutes registers the public read endpoints.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.List)
	r.Get("/menu/all", h.List)
	r.Get("/menu/specials", h.ListSpecials)
	r.Get("/menu/combos", h.ListCombos)
	r.Get("/menu/{id}", h.Get)
}

// RegisterStaffRoutes registers the mutation endpoints. Callers guard them
// with RequireRole.
func (h *MenuHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/menu", h.Create)
	r.Put("/menu/{id}", h.Update)
	r.Patch("/menu/{id}/availability", h.SetAvailability)
	r.Patch("/menu/{id}/price", h.SetPrice)
	r.Patch("/menu/{id}/image", h.SetImage)
}

// --- Request / Response types ---

// Prices may be sent as JSON numbers or numeric strings.
type createMenuItemRequest struct {
	Name      string       `json:"name"`
	Price     *json.Number `json:"price"`
	Image     string       `json:"image"`
	Available *bool        `json:"available"`
	Special   bool         `json:"special"`
	Combo     bool         `json:"combo"`
}

type updateMenuItemRequest struct {
	Name      *string      `json:"name"`
	Price     *json.Number `json:"price"`
	Image     *string      `json:"image"`
	Available *bool        `json:"available"`
	Special   *bool        `json:"special"`
	Combo     *bool        `json:"combo"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type priceRequest struct {
	Price *json.Number `json:"price"`
}

type imageRequest struct {
	Image string `json:"image"`
}

type menuItemResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Image     string    `json:"image"`
	Available bool      `json:"available"`
	Special   bool      `json:"special"`
	Combo     bool      `json:"combo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type menuItemEnvelope struct {
	Message string           `json:"message"`
	Item    menuItemResponse `json:"item"`
}

func toMenuItemResponse(m database.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:        m.ID,
		Name:      m.Name,
		Price:     database.NumericToDecimal(m.Price).StringFixed(2),
		Image:     m.Image,
		Available: m.Available,
		Special:   m.Special,
		Combo:     m.Combo,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toMenuItemList(items []database.MenuItem) []menuItemResponse {
	resp := make([]menuItemResponse, len(items))
	for i, m := range items {
		resp[i] = toMenuItemResponse(m)
	}
	return resp
}

// --- Helpers ---

var errNegativePrice = errors.New("negative price")

func parsePrice(n json.Number) (pgtype.Numeric, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return pgtype.Numeric{}, err
	}
	if d.IsNegative() {
		return pgtype.Numeric{}, errNegativePrice
	}
	return database.DecimalToNumeric(d), nil
}

func writePriceError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNegativePrice) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be >= 0"})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
}

// menuItemID parses the {id} URL param. A malformed id cannot exist, so it
// is reported as not found.
func menuItemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return uuid.Nil, false
	}
	return id, true
}

// respondMenuItem writes item, or maps err to 404/500.
func respondMenuItem(w http.ResponseWriter, item database.MenuItem, err error, op string) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// --- Handlers ---

func (h *MenuHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context) ([]database.MenuItem, error), op string) {
	items, err := fetch(r.Context())
	if err != nil {
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemList(items))
}

// List returns every menu item. Unavailable items are included; clients
// filter on the available flag.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.store.ListMenuItems, "list menu items")
}

func (h *MenuHandler) ListSpecials(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.store.ListSpecialMenuItems, "list specials")
}

func (h *MenuHandler) ListCombos(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.store.ListComboMenuItems, "list combos")
}

func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := menuItemID(w, r)
	if !ok {
		return
	}
	item, err := h.store.GetMenuItem(r.Context(), id)
	respondMenuItem(w, item, err, "get menu item")
}

// Create adds a menu item. Items are available by default.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || req.Price == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and price are required"})
		return
	}

	price, err := parsePrice(*req.Price)
	if err != nil {
		writePriceError(w, err)
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	item, err := h.store.CreateMenuItem(r.Context(), database.CreateMenuItemParams{
		Name:      name,
		Price:     price,
		Image:     strings.TrimSpace(req.Image),
		Available: available,
		Special:   req.Special,
		Combo:     req.Combo,
	})
	if err != nil {
		log.Printf("ERROR: create menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, menuItemEnvelope{Message: "Menu item added", Item: toMenuItemResponse(item)})
}

// Update replaces the fields present in the body; absent fields keep their
// current value.
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := menuItemID(w, r)
	if !ok {
		return
	}

	var req updateMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := database.UpdateMenuItemParams{ID: id}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name must not be blank"})
			return
		}
		params.Name = pgtype.Text{String: name, Valid: true}
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			writePriceError(w, err)
			return
		}
		params.Price = price
	}
	if req.Image != nil {
		params.Image = pgtype.Text{String: strings.TrimSpace(*req.Image), Valid: true}
	}
	if req.Available != nil {
		params.Available = pgtype.Bool{Bool: *req.Available, Valid: true}
	}
	if req.Special != nil {
		params.Special = pgtype.Bool{Bool: *req.Special, Valid: true}
	}
	if req.Combo != nil {
		params.Combo = pgtype.Bool{Bool: *req.Combo, Valid: true}
	}

	item, err := h.store.UpdateMenuItem(r.Context(), params)
	if err != nil {
		respondMenuItem(w, item, err, "update menu item")
		return
	}
	writeJSON(w, http.StatusOK, menuItemEnvelope{Message: "Menu item updated", Item: toMenuItemResponse(item)})
}

func (h *MenuHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := menuItemID(w, r)
	if !ok {
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Available == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "available is required"})
		return
	}

	item, err := h.store.SetMenuItemAvailability(r.Context(), database.SetMenuItemAvailabilityParams{
		ID:        id,
		Available: *req.Available,
	})
	respondMenuItem(w, item, err, "set menu item availability")
}

func (h *MenuHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := menuItemID(w, r)
	if !ok {
		return
	}

	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Price == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price is required"})
		return
	}
	price, err := parsePrice(*req.Price)
	if err != nil {
		writePriceError(w, err)
		return
	}

	item, err := h.store.SetMenuItemPrice(r.Context(), database.SetMenuItemPriceParams{
		ID:    id,
		Price: price,
	})
	respondMenuItem(w, item, err, "set menu item price")
}

func (h *MenuHandler) SetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := menuItemID(w, r)
	if !ok {
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	image := strings.TrimSpace(req.Image)
	if image == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image is required"})
		return
	}

	item, err := h.store.SetMenuItemImage(r.Context(), database.SetMenuItemImageParams{
		ID:    id,
		Image: image,
	})
	respondMenuItem(w, item, err, "set menu item image")
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/enum"
)

// Errors returned by the order service.
var (
	ErrMissingUsername   = errors.New("username is required")
	ErrEmptyItems        = errors.New("items are required")
	ErrInvalidQuantity   = errors.New("qty must be >= 0")
	ErrMenuItemNotFound  = errors.New("menu item not found")
	ErrNoValidItems      = errors.New("no valid menu items found")
	ErrInvalidStatus     = errors.New("invalid status value")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderNotFound     = errors.New("order not found")
	ErrStatusChanged     = errors.New("order status changed, please retry")
)

// OrderStore defines the DB methods needed by the order service.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, username string) ([]database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// EventPublisher receives order lifecycle events. Delivery is best-effort;
// implementations log their own failures.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order database.Order)
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	Username   string
	Items      []CartEntry
	Preference string
}

// CartEntry is a client-supplied menu item reference. A zero Quantity
// means one.
type CartEntry struct {
	ItemID   string
	Quantity int32
}

// Option configures an OrderService.
type Option func(*OrderService)

// WithTransitionPolicy sets the status transition policy (default strict).
func WithTransitionPolicy(p TransitionPolicy) Option {
	return func(s *OrderService) { s.policy = p }
}

// WithRejectUnknownItems makes CreateOrder fail on cart entries that do not
// resolve to a menu item instead of dropping them.
func WithRejectUnknownItems(reject bool) Option {
	return func(s *OrderService) { s.rejectUnknown = reject }
}

// WithEventPublisher adds a sink for order.created / order.updated events.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *OrderService) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

// OrderService handles order business logic.
type OrderService struct {
	store         OrderStore
	policy        TransitionPolicy
	rejectUnknown bool
	publishers    []EventPublisher
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore, opts ...Option) *OrderService {
	s := &OrderService{store: store, policy: PolicyStrict}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder resolves each cart entry against the menu, snapshots the
// item's name and price, and stores the order as Pending.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (database.Order, error) {
	if req.Username == "" {
		return database.Order{}, ErrMissingUsername
	}
	if len(req.Items) == 0 {
		return database.Order{}, ErrEmptyItems
	}

	items := make([]database.OrderItem, 0, len(req.Items))
	for i, entry := range req.Items {
		if entry.Quantity < 0 {
			return database.Order{}, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		qty := entry.Quantity
		if qty == 0 {
			qty = 1
		}

		menuItem, err := s.resolveMenuItem(ctx, entry.ItemID)
		if err != nil {
			if !errors.Is(err, ErrMenuItemNotFound) {
				return database.Order{}, fmt.Errorf("item[%d]: get menu item: %w", i, err)
			}
			if s.rejectUnknown {
				return database.Order{}, fmt.Errorf("item[%d]: %w", i, err)
			}
			log.Printf("WARN: order for %q: dropping cart entry %d (id %q): %v", req.Username, i, entry.ItemID, err)
			continue
		}

		items = append(items, database.OrderItem{
			MenuItemID: menuItem.ID,
			Name:       menuItem.Name,
			Qty:        qty,
			Price:      database.NumericToDecimal(menuItem.Price),
		})
	}

	if len(items) == 0 {
		return database.Order{}, ErrNoValidItems
	}

	preference := req.Preference
	if preference == "" {
		preference = enum.DefaultPreference
	}

	order, err := s.store.CreateOrder(ctx, database.CreateOrderParams{
		Username:   req.Username,
		Items:      items,
		Preference: preference,
		Status:     enum.OrderStatusPending,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.publish(ctx, enum.EventOrderCreated, order)
	return order, nil
}

// ListOrders returns all orders, or only those whose user exactly matches
// username when it is non-empty. Newest first.
func (s *OrderService) ListOrders(ctx context.Context, username string) ([]database.Order, error) {
	orders, err := s.store.ListOrders(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns a single order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (database.Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return database.Order{}, ErrOrderNotFound
	}
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// UpdateStatus moves an order to newStatus. Setting the status the order
// already has is a no-op that succeeds.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, newStatus string) (database.Order, error) {
	if !IsValidStatus(newStatus) {
		return database.Order{}, ErrInvalidStatus
	}

	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}

	if current.Status == newStatus {
		return current, nil
	}

	if err := validateStatusTransition(s.policy, current.Status, newStatus); err != nil {
		return database.Order{}, err
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         current.ID,
		Status:     newStatus,
		PrevStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusChanged
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	s.publish(ctx, enum.EventOrderUpdated, updated)
	return updated, nil
}

// --- Helpers ---

// resolveMenuItem returns ErrMenuItemNotFound for empty, malformed and
// unknown ids; any other error is a store failure.
func (s *OrderService) resolveMenuItem(ctx context.Context, itemID string) (database.MenuItem, error) {
	if itemID == "" {
		return database.MenuItem{}, ErrMenuItemNotFound
	}
	id, err := uuid.Parse(itemID)
	if err != nil {
		return database.MenuItem{}, ErrMenuItemNotFound
	}
	item, err := s.store.GetMenuItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.MenuItem{}, ErrMenuItemNotFound
		}
		return database.MenuItem{}, err
	}
	return item, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, order database.Order) {
	for _, p := range s.publishers {
		p.PublishOrderEvent(ctx, eventType, order)
	}
}

// OrderTotal sums price * qty over the order's item snapshots.
func OrderTotal(order database.Order) decimal.Decimal {
	total := decimal.Zero
	for _, item := range order.Items {
		total = total.Add(item.Price.Mul(decimalFromQty(item.Qty)))
	}
	return total
}

func decimalFromQty(qty int32) decimal.Decimal {
	return decimal.NewFromInt32(qty)
}

package service

import (
	"time"

	"github.com/smartcanteen/api/internal/database"
)

// OrderView is the JSON shape of an order shared by the REST responses and
// the event streams.
type OrderView struct {
	ID         string          `json:"id"`
	User       string          `json:"user"`
	Items      []OrderItemView `json:"items"`
	Preference string          `json:"preference"`
	Status     string          `json:"status"`
	Total      string          `json:"total"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type OrderItemView struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Qty        int32  `json:"qty"`
	Price      string `json:"price"`
	Subtotal   string `json:"subtotal"`
}

// NewOrderView converts a stored order, computing subtotals and the total.
func NewOrderView(order database.Order) OrderView {
	items := make([]OrderItemView, len(order.Items))
	for i, it := range order.Items {
		items[i] = OrderItemView{
			MenuItemID: it.MenuItemID.String(),
			Name:       it.Name,
			Qty:        it.Qty,
			Price:      it.Price.StringFixed(2),
			Subtotal:   it.Price.Mul(decimalFromQty(it.Qty)).StringFixed(2),
		}
	}
	return OrderView{
		ID:         order.ID.String(),
		User:       order.Username,
		Items:      items,
		Preference: order.Preference,
		Status:     order.Status,
		Total:      OrderTotal(order).StringFixed(2),
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}
